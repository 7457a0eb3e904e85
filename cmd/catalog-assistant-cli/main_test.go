package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/content"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/query"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/retrieval"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/pkg/engine"
)

// fakeAsker answers from a table keyed by query and records requests.
type fakeAsker struct {
	mu        sync.Mutex
	responses map[string]*retrieval.ComposedResponse
	requests  []retrieval.Request
}

func (f *fakeAsker) Ask(_ context.Context, req retrieval.Request) (*retrieval.ComposedResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	resp, ok := f.responses[req.Query]
	if !ok {
		return nil, errors.New("store unavailable")
	}
	return resp, nil
}

func (f *fakeAsker) Close() error { return nil }

func clarifying() *retrieval.ComposedResponse {
	next := query.PageContext{ClarificationLevel: 1, OriginalQuery: "photography", PriorConfidence: 0.3}
	return &retrieval.ComposedResponse{
		Type:       retrieval.ResponseClarification,
		Confidence: 0.3,
		Answer:     "What kind of photography help are you after?",
		Options: []retrieval.ClarificationOption{
			{Text: "Workshops and courses", Query: "photography workshops", PageContext: next},
			{Text: "Photography advice", Query: "photography advice", PageContext: next},
		},
		Clarification: retrieval.ClarificationState{Level: 1, Stage: retrieval.StageAwaitingSelection},
		PageContext:   &next,
	}
}

func TestParseSuite(t *testing.T) {
	suite, err := parseSuite([]byte(`
name: smoke
scenarios:
  - name: clarify
    turns:
      - query: photography
        expect: {type: clarification, min_options: 2}
      - select: 1
        expect: {type: events, min_confidence: 0.6}
`))
	require.NoError(t, err)
	assert.Equal(t, "smoke", suite.Name)
	require.Len(t, suite.Scenarios[0].Turns, 2)
	assert.Equal(t, 1, suite.Scenarios[0].Turns[1].Select)
	assert.Equal(t, 0.6, suite.Scenarios[0].Turns[1].Expect.MinConfidence)

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"empty", `name: x`, "no scenarios"},
		{"unnamed", "scenarios:\n  - turns: [{query: a}]", "name is required"},
		{"no turns", "scenarios:\n  - name: a", "no turns"},
		{"select first", "scenarios:\n  - name: a\n    turns: [{select: 1}]", "first turn"},
		{"blank query", "scenarios:\n  - name: a\n    turns: [{query: ' '}]", "query or select"},
		{"bad yaml", "scenarios: [", "parse suite"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseSuite([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadSuite_SampleFile(t *testing.T) {
	suite, err := loadSuite(filepath.Join("..", "..", "testdata", "eval", "scenarios.yaml"))
	require.NoError(t, err)
	assert.Len(t, suite.Scenarios, 4)
}

func TestCheckExpect(t *testing.T) {
	level := 1
	forced := false
	resp := clarifying()

	assert.Empty(t, checkExpect(evalExpect{
		Type:       "clarification",
		MinOptions: 2,
		Contains:   []string{"PHOTOGRAPHY HELP"},
		Level:      &level,
		Forced:     &forced,
	}, resp, 0, false))

	failures := checkExpect(evalExpect{
		Type:                    "advice",
		Intent:                  "events",
		MinConfidence:           0.6,
		MinEvents:               1,
		ConfidenceAbovePrevious: true,
	}, resp, 0.5, true)
	assert.Len(t, failures, 5)
}

func TestConversation_Next(t *testing.T) {
	conv := newConversation("s-1")

	req, ok := conv.next("photography")
	require.True(t, ok)
	assert.Equal(t, "photography", req.Query)
	assert.Empty(t, req.PreviousQuery)
	assert.Equal(t, "s-1", req.SessionID)
	conv.record(req, clarifying())

	_, ok = conv.next("3")
	assert.False(t, ok)

	req, ok = conv.next("2")
	require.True(t, ok)
	assert.Equal(t, "photography advice", req.Query)
	assert.Equal(t, "photography", req.PreviousQuery)
	assert.Equal(t, 1, req.PageContext.ClarificationLevel)
	assert.Equal(t, "photography", req.PageContext.OriginalQuery)

	// Free text after a clarification continues the thread.
	req, ok = conv.next("landscapes")
	require.True(t, ok)
	assert.Equal(t, "landscapes", req.Query)
	assert.Equal(t, 1, req.PageContext.ClarificationLevel)

	conv.record(req, &retrieval.ComposedResponse{Type: retrieval.ResponseAdvice})
	req, _ = conv.next("42")
	assert.Equal(t, "42", req.Query)
	assert.True(t, req.PageContext.IsZero())
}

func TestRunSuite(t *testing.T) {
	a := &fakeAsker{responses: map[string]*retrieval.ComposedResponse{
		"photography": clarifying(),
		"photography workshops": {
			Type:       retrieval.ResponseEvents,
			Confidence: 0.8,
			Structured: retrieval.Evidence{Events: []content.Item{{Kind: content.KindEvent, ID: "e1", Title: "Bluebell Woodland Workshop"}}},
		},
		"what is the exposure triangle": {Type: retrieval.ResponseAdvice, Confidence: 0.9, Answer: "Aperture, shutter speed and ISO."},
	}}

	suite := &evalSuite{Scenarios: []evalScenario{
		{Name: "clarify", Turns: []evalTurn{
			{Query: "photography", Expect: evalExpect{Type: "clarification", MinOptions: 2}},
			{Select: 1, Expect: evalExpect{Type: "events", MinEvents: 1, ConfidenceAbovePrevious: true}},
		}},
		{Name: "advice", Turns: []evalTurn{
			{Query: "what is the exposure triangle", Expect: evalExpect{Type: "advice", Contains: []string{"aperture"}}},
		}},
		{Name: "wrong type", Turns: []evalTurn{
			{Query: "what is the exposure triangle", Expect: evalExpect{Type: "events"}},
		}},
		{Name: "bad select", Turns: []evalTurn{
			{Query: "what is the exposure triangle"},
			{Select: 1},
		}},
		{Name: "ask error", Turns: []evalTurn{{Query: "unknown"}}},
	}}

	var done int
	var mu sync.Mutex
	results := runSuite(context.Background(), a, suite, 3, func() {
		mu.Lock()
		done++
		mu.Unlock()
	})

	require.Len(t, results, 5)
	assert.Equal(t, 5, done)

	assert.Equal(t, "clarify", results[0].Name)
	assert.True(t, results[0].Passed, results[0].Failures)
	assert.Equal(t, 2, results[0].Turns)

	assert.True(t, results[1].Passed, results[1].Failures)

	assert.False(t, results[2].Passed)
	assert.Contains(t, results[2].Failures[0], `want "events"`)

	assert.False(t, results[3].Passed)
	assert.Contains(t, results[3].Failures[0], "option 1 not offered")

	assert.False(t, results[4].Passed)
	assert.Contains(t, results[4].Failures[0], "store unavailable")

	// The selected option's query and page context were sent.
	for _, req := range a.requests {
		if req.Query == "photography workshops" {
			assert.Equal(t, "photography", req.PreviousQuery)
			assert.Equal(t, 1, req.PageContext.ClarificationLevel)
		}
	}
}

func TestRemoteAsker(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/chat", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(clarifying())
	}))
	defer srv.Close()

	a := &remoteAsker{client: engine.NewClient(engine.ClientConfig{BaseURL: srv.URL, HTTPClient: srv.Client()})}
	resp, err := a.Ask(context.Background(), retrieval.Request{
		Query:       "photography workshops",
		PageContext: query.PageContext{ClarificationLevel: 1, OriginalQuery: "photography"},
	})
	require.NoError(t, err)

	assert.Equal(t, "photography workshops", got["query"])
	pc, ok := got["pageContext"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), pc["clarificationLevel"])

	assert.Equal(t, retrieval.ResponseClarification, resp.Type)
	require.Len(t, resp.Options, 2)
	assert.Equal(t, "photography", resp.Options[0].PageContext.OriginalQuery)
	require.NotNil(t, resp.PageContext)
	assert.Equal(t, 1, resp.PageContext.ClarificationLevel)
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommands_LoadAskEval(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf(`
store:
  driver: sqlite
  sqlite:
    path: %s
analytics:
  enabled: false
observability:
  log_level: error
`, filepath.Join(dir, "catalog.db"))), 0o600))

	fixtures := filepath.Join("..", "..", "internal", "storage", "testdata", "catalog.yaml")
	out, err := runCLI(t, "load", "--config", cfgPath, "--json", "--fixtures", fixtures)
	require.NoError(t, err)
	var loaded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &loaded))
	assert.Equal(t, float64(11), loaded["written"])

	out, err = runCLI(t, "ask", "--config", cfgPath, "--json", "what", "is", "the", "exposure", "triangle")
	require.NoError(t, err)
	var resp retrieval.ComposedResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, retrieval.ResponseAdvice, resp.Type)

	suitePath := filepath.Join(dir, "suite.yaml")
	require.NoError(t, os.WriteFile(suitePath, []byte(`
name: cli
scenarios:
  - name: advice
    turns:
      - query: what is the exposure triangle
        expect: {type: advice, intent: advice}
  - name: clarify
    turns:
      - query: photography
        expect: {type: clarification, min_options: 1}
      - select: 1
`), 0o600))
	out, err = runCLI(t, "eval", "--config", cfgPath, "--json", "--suite", suitePath)
	require.NoError(t, err, out)
	var report struct {
		Passed int `json:"passed"`
		Failed int `json:"failed"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 2, report.Passed)
	assert.Zero(t, report.Failed)

	out, err = runCLI(t, "migrate", "--config", cfgPath, "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"schema_version": 1`)
}
