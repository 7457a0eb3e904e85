package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Ask(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/chat", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "req-1", r.Header.Get("X-Request-Id"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Beginner courses", body["query"])
		assert.Equal(t, "do you do courses", body["previousQuery"])
		assert.EqualValues(t, 1, body["pageContext"].(map[string]any)["clarificationLevel"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"type":"events","confidence":0.77,"answer":"The next matching event is Beginners Course.",
			"structured":{"articles":[],"events":[{"kind":"event","id":"beginners-course-2026-04","title":"Beginners Course","startsAt":"2026-04-18T09:00:00Z"}],"services":[],"products":[]},
			"intent":"events","keywords":["beginner","courses"],
			"clarification":{"level":1,"stage":"resolved","originalQuery":"do you do courses"},
			"requestId":"req-1","latencyMs":12
		}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL})
	resp, err := c.Ask(context.Background(), AskRequest{
		Query:         "Beginner courses",
		PreviousQuery: "do you do courses",
		PageContext:   map[string]any{"clarificationLevel": 1},
		RequestID:     "req-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "events", resp.Type)
	assert.InDelta(t, 0.77, resp.Confidence, 1e-9)
	require.Len(t, resp.Structured.Events, 1)
	assert.Equal(t, "Beginners Course", resp.Structured.Events[0].Title)
	require.NotNil(t, resp.Structured.Events[0].StartsAt)
	assert.Equal(t, "resolved", resp.Clarification.Stage)
}

func TestClient_AskErrors(t *testing.T) {
	t.Run("bad request is not retried", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid topK","message":"invalid topK","detail":"topK must be between 0 and 50"}`))
		}))
		defer srv.Close()

		c := NewClient(ClientConfig{BaseURL: srv.URL, RetryCount: 3})
		_, err := c.Ask(context.Background(), AskRequest{Query: "tripods", TopK: 99})
		require.Error(t, err)

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
		assert.Equal(t, "invalid topK", apiErr.Message)
		assert.EqualValues(t, 1, calls.Load())
	})

	t.Run("unavailable is retried then surfaced", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"content store unavailable","message":"content store unavailable"}`))
		}))
		defer srv.Close()

		c := NewClient(ClientConfig{BaseURL: srv.URL, RetryCount: 2})
		_, err := c.Ask(context.Background(), AskRequest{Query: "tripods"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.EqualValues(t, 3, calls.Load())
	})

	t.Run("empty query", func(t *testing.T) {
		c := NewClient(ClientConfig{BaseURL: "http://127.0.0.1:1"})
		_, err := c.Ask(context.Background(), AskRequest{Query: " "})
		require.Error(t, err)
	})
}

func TestClient_HealthAndReady(t *testing.T) {
	ready := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/health":
			_, _ = w.Write([]byte(`{"status":"healthy","service":"catalog-assistant","version":"test"}`))
		case "/ready":
			if !ready {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"unavailable","detail":"connection refused"}`))
				return
			}
			_, _ = w.Write([]byte(`{"status":"ready"}`))
		}
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL})
	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, "test", h.Version)

	require.NoError(t, c.Ready(context.Background()))

	ready = false
	err = c.Ready(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "connection refused")
}
