package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/content"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/retrieval"
)

// maxListed caps evidence rows printed per kind.
const maxListed = 5

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderResponse prints a composed response for a human reader.
func renderResponse(ui *UI, resp *retrieval.ComposedResponse) {
	ui.Println()
	ui.Println(resp.Answer)
	ui.Println()

	ui.KeyValue("Type", resp.Type)
	ui.KeyValue("Intent", resp.Intent)
	ui.KeyValue("Confidence", fmt.Sprintf("%.2f", resp.Confidence))
	if len(resp.Keywords) > 0 {
		ui.KeyValue("Keywords", strings.Join(resp.Keywords, ", "))
	}
	if resp.Clarification.Forced {
		ui.Warning("Clarification limit reached; showing best available answer")
	}
	if resp.Cached {
		ui.KeyValue("Cached", true)
	}
	ui.KeyValue("Latency", fmt.Sprintf("%dms", resp.LatencyMs))

	for _, kind := range []content.Kind{content.KindEvent, content.KindArticle, content.KindService, content.KindProduct} {
		items := resp.Structured.Bucket(kind)
		if len(items) == 0 {
			continue
		}
		rows := make([][]string, 0, maxListed)
		for i, item := range items {
			if i == maxListed {
				break
			}
			rows = append(rows, evidenceRow(item))
		}
		ui.Section(fmt.Sprintf("%ss (%d)", kind, len(items)))
		ui.Table([]string{"Title", "When", "Score", "URL"}, rows)
	}

	if len(resp.Options) > 0 {
		ui.Section("Options")
		for i, opt := range resp.Options {
			ui.Println(fmt.Sprintf("  %d) %s", i+1, opt.Text))
		}
	}
}

func evidenceRow(item content.Item) []string {
	when := ""
	switch {
	case item.StartsAt != nil:
		when = item.StartsAt.Format("2 Jan 2006")
	case item.PublishedAt != nil:
		when = item.PublishedAt.Format("2 Jan 2006")
	}
	return []string{truncate(item.Title, 48), when, fmt.Sprintf("%.2f", item.Score), item.URL}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
