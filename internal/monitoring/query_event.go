// Package monitoring records answered queries to analytics sinks without
// ever delaying or failing the response.
package monitoring

import (
	"time"

	"github.com/google/uuid"
)

// QueryEvent summarizes one answered turn.
type QueryEvent struct {
	ID              uuid.UUID         `json:"id"`
	RequestID       string            `json:"request_id"`
	SessionID       string            `json:"session_id,omitempty"`
	Query           string            `json:"query"`
	PreviousQuery   string            `json:"previous_query,omitempty"`
	Keywords        []string          `json:"keywords"`
	Intent          string            `json:"intent"`
	ResponseType    string            `json:"response_type"`
	Confidence      float64           `json:"confidence"`
	Level           int               `json:"level"`
	EvidenceCounts  map[string]int    `json:"evidence_counts"`
	RetrieverErrors map[string]string `json:"retriever_errors,omitempty"`
	LatencyMs       int64             `json:"latency_ms"`
	Cached          bool              `json:"cached,omitempty"`
	OccurredAt      time.Time         `json:"occurred_at"`
}
