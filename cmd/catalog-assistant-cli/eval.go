package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/content"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/retrieval"
)

// evalSuite is a YAML file of scripted conversations with expectations.
type evalSuite struct {
	Name      string         `yaml:"name"`
	Scenarios []evalScenario `yaml:"scenarios"`
}

type evalScenario struct {
	Name  string     `yaml:"name"`
	Turns []evalTurn `yaml:"turns"`
}

// evalTurn is one turn. Select picks a 1-based option offered by the
// previous turn instead of sending Query.
type evalTurn struct {
	Query    string     `yaml:"query"`
	Previous string     `yaml:"previous"`
	Select   int        `yaml:"select"`
	Expect   evalExpect `yaml:"expect"`
}

type evalExpect struct {
	Type          string   `yaml:"type"`
	Intent        string   `yaml:"intent"`
	MinConfidence float64  `yaml:"min_confidence"`
	MaxConfidence float64  `yaml:"max_confidence"`
	Contains      []string `yaml:"contains"`
	MinOptions    int      `yaml:"min_options"`
	MinEvents     int      `yaml:"min_events"`
	MinArticles   int      `yaml:"min_articles"`
	Level         *int     `yaml:"level"`
	Forced        *bool    `yaml:"forced"`
	// ConfidenceAbovePrevious requires this turn to beat the previous turn.
	ConfidenceAbovePrevious bool `yaml:"confidence_above_previous"`
}

// scenarioResult is the outcome of one scenario.
type scenarioResult struct {
	Name     string        `json:"name"`
	Passed   bool          `json:"passed"`
	Turns    int           `json:"turns"`
	Failures []string      `json:"failures,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// loadSuite reads and validates a suite file.
func loadSuite(path string) (*evalSuite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read suite: %w", err)
	}
	return parseSuite(data)
}

func parseSuite(data []byte) (*evalSuite, error) {
	var s evalSuite
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse suite: %w", err)
	}
	if len(s.Scenarios) == 0 {
		return nil, fmt.Errorf("suite has no scenarios")
	}
	for i, sc := range s.Scenarios {
		if sc.Name == "" {
			return nil, fmt.Errorf("scenario %d: name is required", i+1)
		}
		if len(sc.Turns) == 0 {
			return nil, fmt.Errorf("scenario %q: no turns", sc.Name)
		}
		for j, t := range sc.Turns {
			if t.Select > 0 && j == 0 {
				return nil, fmt.Errorf("scenario %q: first turn cannot select an option", sc.Name)
			}
			if t.Select == 0 && strings.TrimSpace(t.Query) == "" {
				return nil, fmt.Errorf("scenario %q turn %d: query or select is required", sc.Name, j+1)
			}
		}
	}
	return &s, nil
}

// runSuite runs scenarios with up to parallel in flight. Results keep the
// suite's order. onDone is called after each scenario.
func runSuite(ctx context.Context, a asker, suite *evalSuite, parallel int, onDone func()) []scenarioResult {
	if parallel < 1 {
		parallel = 1
	}
	results := make([]scenarioResult, len(suite.Scenarios))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, sc := range suite.Scenarios {
		i, sc := i, sc
		g.Go(func() error {
			results[i] = runScenario(ctx, a, sc)
			if onDone != nil {
				onDone()
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func runScenario(ctx context.Context, a asker, sc evalScenario) scenarioResult {
	start := time.Now()
	res := scenarioResult{Name: sc.Name}
	conv := newConversation("eval-" + sc.Name)

	var prevConfidence float64
	for i, turn := range sc.Turns {
		input := turn.Query
		if turn.Select > 0 {
			input = strconv.Itoa(turn.Select)
		}
		req, ok := conv.next(input)
		if turn.Select > 0 && (conv.last == nil || len(conv.last.Options) == 0) {
			ok = false
		}
		if !ok {
			res.Failures = append(res.Failures, fmt.Sprintf("turn %d: option %d not offered", i+1, turn.Select))
			break
		}
		if turn.Previous != "" {
			req.PreviousQuery = turn.Previous
		}

		resp, err := a.Ask(ctx, req)
		res.Turns++
		if err != nil {
			res.Failures = append(res.Failures, fmt.Sprintf("turn %d: %v", i+1, err))
			break
		}
		for _, f := range checkExpect(turn.Expect, resp, prevConfidence, i > 0) {
			res.Failures = append(res.Failures, fmt.Sprintf("turn %d: %s", i+1, f))
		}
		conv.record(req, resp)
		prevConfidence = resp.Confidence
	}

	res.Passed = len(res.Failures) == 0
	res.Duration = time.Since(start)
	return res
}

// checkExpect returns one message per unmet expectation.
func checkExpect(exp evalExpect, resp *retrieval.ComposedResponse, prevConfidence float64, hasPrev bool) []string {
	var failures []string
	if exp.Type != "" && string(resp.Type) != exp.Type {
		failures = append(failures, fmt.Sprintf("type %q, want %q", resp.Type, exp.Type))
	}
	if exp.Intent != "" && string(resp.Intent) != exp.Intent {
		failures = append(failures, fmt.Sprintf("intent %q, want %q", resp.Intent, exp.Intent))
	}
	if exp.MinConfidence > 0 && resp.Confidence < exp.MinConfidence {
		failures = append(failures, fmt.Sprintf("confidence %.2f below %.2f", resp.Confidence, exp.MinConfidence))
	}
	if exp.MaxConfidence > 0 && resp.Confidence > exp.MaxConfidence {
		failures = append(failures, fmt.Sprintf("confidence %.2f above %.2f", resp.Confidence, exp.MaxConfidence))
	}
	answer := strings.ToLower(resp.Answer)
	for _, want := range exp.Contains {
		if !strings.Contains(answer, strings.ToLower(want)) {
			failures = append(failures, fmt.Sprintf("answer missing %q", want))
		}
	}
	if len(resp.Options) < exp.MinOptions {
		failures = append(failures, fmt.Sprintf("%d options, want at least %d", len(resp.Options), exp.MinOptions))
	}
	if n := len(resp.Structured.Bucket(content.KindEvent)); n < exp.MinEvents {
		failures = append(failures, fmt.Sprintf("%d events, want at least %d", n, exp.MinEvents))
	}
	if n := len(resp.Structured.Bucket(content.KindArticle)); n < exp.MinArticles {
		failures = append(failures, fmt.Sprintf("%d articles, want at least %d", n, exp.MinArticles))
	}
	if exp.Level != nil && resp.Clarification.Level != *exp.Level {
		failures = append(failures, fmt.Sprintf("clarification level %d, want %d", resp.Clarification.Level, *exp.Level))
	}
	if exp.Forced != nil && resp.Clarification.Forced != *exp.Forced {
		failures = append(failures, fmt.Sprintf("forced %t, want %t", resp.Clarification.Forced, *exp.Forced))
	}
	if exp.ConfidenceAbovePrevious && hasPrev && resp.Confidence <= prevConfidence {
		failures = append(failures, fmt.Sprintf("confidence %.2f not above previous %.2f", resp.Confidence, prevConfidence))
	}
	return failures
}

// newEvalCmd creates the eval subcommand.
func newEvalCmd() *cobra.Command {
	var (
		suitePath string
		server    string
		parallel  int
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Run a scripted evaluation suite",
		Long: `Eval runs every scenario in a YAML suite and checks each turn against its
expectations. It exits non-zero when any scenario fails.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			suite, err := loadSuite(suitePath)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			a, err := newAsker(ctx, server)
			if err != nil {
				return err
			}
			defer a.Close()

			name := suite.Name
			if name == "" {
				name = "eval"
			}
			progress := ui.MultiProgress()
			bar := ScenarioBar(progress, name, int64(len(suite.Scenarios)))

			start := time.Now()
			results := runSuite(ctx, a, suite, parallel, func() {
				if bar != nil {
					bar.Increment()
				}
			})
			if progress != nil {
				progress.Wait()
			}

			failed := 0
			for _, r := range results {
				if !r.Passed {
					failed++
				}
			}

			if outputJSON {
				if err := printJSON(cmd.OutOrStdout(), map[string]any{
					"suite":   suite.Name,
					"passed":  len(results) - failed,
					"failed":  failed,
					"results": results,
				}); err != nil {
					return err
				}
			} else {
				renderResults(results, time.Since(start))
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d scenarios failed", failed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&suitePath, "suite", "", "path to the YAML suite")
	cmd.Flags().StringVar(&server, "server", "", "API base URL (runs in-process when empty)")
	cmd.Flags().IntVar(&parallel, "parallel", 4, "scenarios in flight")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall timeout")
	_ = cmd.MarkFlagRequired("suite")

	return cmd
}

func renderResults(results []scenarioResult, elapsed time.Duration) {
	ui.Section("Results")
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		status := "PASS"
		if !r.Passed {
			status = "FAIL"
		}
		rows = append(rows, []string{status, r.Name, strconv.Itoa(r.Turns), FormatDuration(r.Duration)})
	}
	ui.Table([]string{"Status", "Scenario", "Turns", "Time"}, rows)

	for _, r := range results {
		for _, f := range r.Failures {
			ui.Error("%s: %s", r.Name, f)
		}
	}
	ui.Println()
	ui.KeyValue("Elapsed", FormatDuration(elapsed))
}
