package retrieval

import (
	"fmt"
	"strings"

	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/content"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/intent"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/query"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/vocabulary"
)

// ResponseType is the kind of payload returned to the caller.
type ResponseType string

const (
	ResponseEvents        ResponseType = "events"
	ResponseAdvice        ResponseType = "advice"
	ResponseClarification ResponseType = "clarification"
)

// ComposedResponse is the sole contract surfaced to callers.
type ComposedResponse struct {
	Type           ResponseType          `json:"type"`
	Confidence     float64               `json:"confidence"`
	Answer         string                `json:"answer"`
	AnswerMarkdown string                `json:"answer_markdown"`
	Structured     Evidence              `json:"structured"`
	Options        []ClarificationOption `json:"options,omitempty"`
	Intent         intent.Intent         `json:"intent"`
	Keywords       []string              `json:"keywords"`
	Clarification  ClarificationState    `json:"clarification"`
	// PageContext is what the caller should echo on its next turn.
	PageContext *query.PageContext `json:"pageContext,omitempty"`
	RequestID   string             `json:"requestId,omitempty"`
	LatencyMs   int64              `json:"latencyMs"`
	Cached      bool               `json:"cached,omitempty"`
}

// Composer renders final answers and clarification questions.
type Composer struct {
	vocab *vocabulary.Vocabulary
}

// NewComposer creates a composer.
func NewComposer(vocab *vocabulary.Vocabulary) *Composer {
	return &Composer{vocab: vocab}
}

const excerptLimit = 320

// Compose renders a resolved answer.
func (c *Composer) Compose(res intent.Result, ev Evidence, concept *vocabulary.Concept, conf Confidence, state ClarificationState) *ComposedResponse {
	ev = Dedupe(ev)
	resp := &ComposedResponse{
		Type:          ResponseAdvice,
		Confidence:    conf.Value,
		Structured:    ev.withEmptyBuckets(),
		Intent:        res.Intent,
		Clarification: state,
	}
	if res.Intent == intent.Events {
		resp.Type = ResponseEvents
	}

	var prose string
	var inline *content.Item
	switch {
	case res.Intent == intent.Advice && concept != nil:
		prose, inline = c.conceptProse(*concept, ev)
	case res.Intent == intent.Events && len(ev.Events) > 0:
		prose, inline = c.eventProse(ev.Events)
	case ev.Total() > 0:
		prose, inline = c.evidenceProse(ev, PrimaryKinds(res.Intent))
	default:
		prose = c.vocab.FallbackAnswer
	}

	resp.Answer = plainAnswer(prose, inline)
	resp.AnswerMarkdown = renderMarkdown(prose, inline, ev)
	return resp
}

// ComposeClarification renders a disambiguating question.
func (c *Composer) ComposeClarification(res intent.Result, ev Evidence, options []ClarificationOption, conf Confidence, state ClarificationState) *ComposedResponse {
	ev = Dedupe(ev)
	prompt := c.vocab.ClarificationPrompt
	if prompt == "" {
		prompt = "Could you tell me a little more about what you are looking for?"
	}
	if ev.Total() == 0 {
		prompt = c.vocab.FallbackAnswer + " " + prompt
	}
	state.Options = options

	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n")
	var md strings.Builder
	md.WriteString(prompt)
	md.WriteString("\n\n")
	for i, o := range options {
		fmt.Fprintf(&b, "\n%d. %s", i+1, o.Text)
		fmt.Fprintf(&md, "%d. %s\n", i+1, o.Text)
	}

	next := query.PageContext{}
	if len(options) > 0 {
		next = options[0].PageContext
	}
	return &ComposedResponse{
		Type:           ResponseClarification,
		Confidence:     conf.Value,
		Answer:         strings.TrimSpace(b.String()),
		AnswerMarkdown: strings.TrimSpace(md.String()),
		Structured:     ev.withEmptyBuckets(),
		Options:        options,
		Intent:         res.Intent,
		Clarification:  state,
		PageContext:    &next,
	}
}

// conceptProse keeps the template unless the top article is about the
// concept and says strictly more.
func (c *Composer) conceptProse(concept vocabulary.Concept, ev Evidence) (string, *content.Item) {
	if len(ev.Articles) > 0 {
		top := ev.Articles[0]
		title := content.Tokens(top.Title)
		for _, p := range concept.Phrases {
			if containsSequence(title, strings.Fields(p)) && len(strings.TrimSpace(top.Description)) > len(concept.Answer) {
				return strings.TrimSpace(top.Description), &top
			}
		}
	}
	return concept.Answer, nil
}

func (c *Composer) eventProse(events []content.Item) (string, *content.Item) {
	top := events[0]
	var b strings.Builder
	b.WriteString("The next matching event is ")
	b.WriteString(top.Title)
	if details := eventDetails(top); details != "" {
		b.WriteString(" (")
		b.WriteString(details)
		b.WriteString(")")
	}
	b.WriteString(".")
	if n := len(events) - 1; n > 0 {
		fmt.Fprintf(&b, " There %s %d more upcoming %s listed below.", plural(n, "is", "are"), n, plural(n, "date", "dates"))
	}
	return b.String(), &top
}

func (c *Composer) evidenceProse(ev Evidence, primary []content.Kind) (string, *content.Item) {
	kinds := append(append([]content.Kind{}, primary...), content.Kinds...)
	for _, kind := range kinds {
		bucket := ev.Bucket(kind)
		if len(bucket) == 0 {
			continue
		}
		top := bucket[0]
		excerpt := Excerpt(top.Description, excerptLimit)
		if excerpt == "" {
			return fmt.Sprintf("You may find %s useful.", top.Title), &top
		}
		return fmt.Sprintf("%s: %s", top.Title, excerpt), &top
	}
	return c.vocab.FallbackAnswer, nil
}

func plainAnswer(prose string, inline *content.Item) string {
	if inline == nil || inline.URL == "" {
		return prose
	}
	return fmt.Sprintf("%s\n\nRead more: %s (%s)", prose, inline.Title, inline.URL)
}

func renderMarkdown(prose string, inline *content.Item, ev Evidence) string {
	var b strings.Builder
	b.WriteString(prose)
	inlineKey := ""
	if inline != nil {
		inlineKey = itemKey(*inline)
		if inline.URL != "" {
			fmt.Fprintf(&b, "\n\nRead more: [%s](%s)", inline.Title, inline.URL)
		}
	}

	sections := []struct {
		heading string
		items   []content.Item
	}{
		{"Related articles", ev.Articles},
		{"Upcoming events", ev.Events},
		{"Services", ev.Services},
		{"Products", ev.Products},
	}
	for _, s := range sections {
		var lines []string
		for _, it := range s.items {
			if itemKey(it) == inlineKey {
				continue
			}
			lines = append(lines, "- "+markdownBullet(it))
		}
		if len(lines) == 0 {
			continue
		}
		b.WriteString("\n\n### ")
		b.WriteString(s.heading)
		b.WriteString("\n\n")
		b.WriteString(strings.Join(lines, "\n"))
	}
	return b.String()
}

func markdownBullet(it content.Item) string {
	link := it.Title
	if it.URL != "" {
		link = fmt.Sprintf("[%s](%s)", it.Title, it.URL)
	}
	if it.Kind == content.KindEvent {
		if details := eventDetails(it); details != "" {
			return link + " - " + details
		}
	}
	return link
}

func eventDetails(it content.Item) string {
	var parts []string
	if it.StartsAt != nil {
		parts = append(parts, it.StartsAt.Format("Mon 2 Jan 2006"))
	}
	if it.Location != "" {
		parts = append(parts, it.Location)
	}
	if it.Price != "" {
		parts = append(parts, it.Price)
	}
	return strings.Join(parts, ", ")
}

// Dedupe removes items whose normalized url (or title when the url is empty)
// was already seen, scanning buckets in response order.
func Dedupe(ev Evidence) Evidence {
	seen := make(map[string]struct{})
	var out Evidence
	for _, kind := range content.Kinds {
		bucket := ev.Bucket(kind)
		if bucket == nil {
			continue
		}
		kept := make([]content.Item, 0, len(bucket))
		for _, it := range bucket {
			key := itemKey(it)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			kept = append(kept, it)
		}
		out.SetBucket(kind, kept)
	}
	return out
}

func itemKey(it content.Item) string {
	if u := NormalizeURL(it.URL); u != "" {
		return "u:" + u
	}
	return "t:" + strings.Join(content.Tokens(it.Title), " ")
}

// NormalizeURL lower-cases a url and strips its scheme, a leading "www." and
// trailing slashes.
func NormalizeURL(raw string) string {
	u := strings.ToLower(strings.TrimSpace(raw))
	for _, scheme := range []string{"https://", "http://"} {
		u = strings.TrimPrefix(u, scheme)
	}
	u = strings.TrimPrefix(u, "www.")
	return strings.TrimRight(u, "/")
}

// Excerpt shortens text to at most limit bytes on a word boundary.
func Excerpt(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= limit {
		return text
	}
	cut := strings.LastIndex(text[:limit], " ")
	if cut <= 0 {
		cut = limit
	}
	return strings.TrimRight(text[:cut], ",;:.") + "..."
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
