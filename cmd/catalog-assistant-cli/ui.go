package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// UI provides user-friendly output utilities.
type UI struct {
	out      io.Writer
	err      io.Writer
	noColor  bool
	jsonMode bool
}

// NewUI creates a new UI instance.
func NewUI(out, errOut io.Writer, jsonMode, noColor bool) *UI {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	return &UI{out: out, err: errOut, noColor: noColor || !IsTerminal(), jsonMode: jsonMode}
}

func (ui *UI) printf(c *color.Color, w io.Writer, symbol, format string, args ...interface{}) {
	if ui.jsonMode {
		return
	}
	msg := fmt.Sprintf("%s %s\n", symbol, fmt.Sprintf(format, args...))
	if ui.noColor {
		fmt.Fprint(w, msg)
		return
	}
	c.Fprint(w, msg)
}

// Success prints a success message.
func (ui *UI) Success(format string, args ...interface{}) {
	ui.printf(color.New(color.FgGreen), ui.out, "✓", format, args...)
}

// Error prints an error message.
func (ui *UI) Error(format string, args ...interface{}) {
	ui.printf(color.New(color.FgRed), ui.err, "✗", format, args...)
}

// Warning prints a warning message.
func (ui *UI) Warning(format string, args ...interface{}) {
	ui.printf(color.New(color.FgYellow), ui.out, "⚠", format, args...)
}

// Info prints an info message.
func (ui *UI) Info(format string, args ...interface{}) {
	ui.printf(color.New(color.FgCyan), ui.out, "ℹ", format, args...)
}

// Step prints a step message.
func (ui *UI) Step(format string, args ...interface{}) {
	ui.printf(color.New(color.FgBlue), ui.out, "→", format, args...)
}

// Section prints a section header.
func (ui *UI) Section(title string) {
	if ui.jsonMode {
		return
	}
	line := fmt.Sprintf("━━━ %s ━━━", strings.ToUpper(title))
	fmt.Fprintln(ui.out)
	if ui.noColor {
		fmt.Fprintln(ui.out, line)
	} else {
		color.New(color.FgMagenta, color.Bold).Fprintln(ui.out, line)
	}
	fmt.Fprintln(ui.out)
}

// KeyValue prints a key-value pair.
func (ui *UI) KeyValue(key string, value interface{}) {
	if ui.jsonMode {
		return
	}
	if ui.noColor {
		fmt.Fprintf(ui.out, "  %s: %v\n", key, value)
		return
	}
	color.New(color.FgYellow).Fprintf(ui.out, "  %s: ", key)
	fmt.Fprintf(ui.out, "%v\n", value)
}

// Println prints plain text.
func (ui *UI) Println(a ...interface{}) {
	if !ui.jsonMode {
		fmt.Fprintln(ui.out, a...)
	}
}

// Table prints a simple aligned table.
func (ui *UI) Table(headers []string, rows [][]string) {
	if ui.jsonMode || len(headers) == 0 {
		return
	}
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	printRow := func(cells []string, c *color.Color) {
		parts := make([]string, len(widths))
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
		}
		line := strings.Join(parts, "  ")
		if c == nil || ui.noColor {
			fmt.Fprintln(ui.out, line)
			return
		}
		c.Fprintln(ui.out, line)
	}

	printRow(headers, color.New(color.FgCyan, color.Bold))
	sep := make([]string, len(widths))
	for i, w := range widths {
		sep[i] = strings.Repeat("─", w)
	}
	printRow(sep, nil)
	for _, row := range rows {
		printRow(row, nil)
	}
}

// MultiProgress returns an mpb container for concurrent bars, or nil in
// JSON mode.
func (ui *UI) MultiProgress() *mpb.Progress {
	if ui.jsonMode {
		return nil
	}
	return mpb.New(mpb.WithWidth(48), mpb.WithOutput(ui.err))
}

// ScenarioBar adds a counter bar to p.
func ScenarioBar(p *mpb.Progress, name string, total int64) *mpb.Bar {
	if p == nil {
		return nil
	}
	return p.AddBar(total,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DSyncSpaceR}),
			decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(
			decor.Percentage(decor.WC{W: 5}),
			decor.OnComplete(decor.Elapsed(decor.ET_STYLE_GO, decor.WC{W: 8}), " done"),
		),
	)
}

// LoadBar wraps a progressbar for item loads.
type LoadBar struct {
	bar *progressbar.ProgressBar
}

// NewLoadBar creates a determinate progress bar, or a no-op bar in JSON mode.
func (ui *UI) NewLoadBar(total int64, description string) *LoadBar {
	if ui.jsonMode {
		return &LoadBar{}
	}
	bar := progressbar.NewOptions64(
		total,
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionSetWriter(ui.err),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("items"),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(ui.err, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
	return &LoadBar{bar: bar}
}

// Set moves the bar to current.
func (b *LoadBar) Set(current int) {
	if b.bar != nil {
		_ = b.bar.Set(current)
	}
}

// Finish completes the bar.
func (b *LoadBar) Finish() {
	if b.bar != nil {
		_ = b.bar.Finish()
	}
}

// Spinner wraps a spinner for indeterminate waits.
type Spinner struct {
	spinner *spinner.Spinner
}

// NewSpinner creates a spinner, or a no-op spinner when output is not a
// terminal or JSON is requested.
func (ui *UI) NewSpinner(message string) *Spinner {
	if ui.jsonMode || !IsTerminal() {
		return &Spinner{}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message
	s.Writer = ui.err
	return &Spinner{spinner: s}
}

// Start starts the animation.
func (s *Spinner) Start() {
	if s.spinner != nil {
		s.spinner.Start()
	}
}

// Stop stops the animation and clears the line.
func (s *Spinner) Stop() {
	if s.spinner != nil {
		s.spinner.Stop()
	}
}

// FormatDuration formats a duration in a human-readable way.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}

// IsTerminal checks if stdout is a terminal.
func IsTerminal() bool {
	fileInfo, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}
