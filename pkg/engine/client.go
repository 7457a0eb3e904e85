// Package engine provides the public Go SDK for the catalog assistant API.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrUnavailable is returned when the server reports its content store is down.
var ErrUnavailable = errors.New("catalog assistant unavailable")

// Client is the public SDK client for the catalog assistant.
type Client struct {
	http *resty.Client
}

// ClientConfig holds client configuration.
type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
	// HTTPClient overrides the underlying client (used by tests).
	HTTPClient *http.Client
}

// NewClient creates a new catalog assistant client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8085"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	}

	var rc *resty.Client
	if cfg.HTTPClient != nil {
		rc = resty.NewWithClient(cfg.HTTPClient)
	} else {
		rc = resty.New()
	}
	rc.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(retryCondition)

	return &Client{http: rc}
}

// retryCondition retries transport failures and overload responses. Asking
// is read-only on the server, so replays are safe.
func retryCondition(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}
	switch r.StatusCode() {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// AskRequest is one visitor turn.
type AskRequest struct {
	Query         string         `json:"query"`
	PreviousQuery string         `json:"previousQuery,omitempty"`
	SessionID     string         `json:"sessionId,omitempty"`
	PageContext   map[string]any `json:"pageContext,omitempty"`
	TopK          int            `json:"topK,omitempty"`
	// RequestID is sent as X-Request-Id when set.
	RequestID string `json:"-"`
}

// Item is one piece of evidence.
type Item struct {
	Kind          string     `json:"kind"`
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	URL           string     `json:"url,omitempty"`
	Description   string     `json:"description,omitempty"`
	Categories    []string   `json:"categories,omitempty"`
	PublishedAt   *time.Time `json:"publishedAt,omitempty"`
	StartsAt      *time.Time `json:"startsAt,omitempty"`
	EndsAt        *time.Time `json:"endsAt,omitempty"`
	Location      string     `json:"location,omitempty"`
	Price         string     `json:"price,omitempty"`
	Score         float64    `json:"score"`
	RecencyWeight float64    `json:"recencyWeight"`
}

// Evidence is the per-kind ranked evidence.
type Evidence struct {
	Articles []Item `json:"articles"`
	Events   []Item `json:"events"`
	Services []Item `json:"services"`
	Products []Item `json:"products"`
}

// Option is a clarification choice. Send Query and PageContext back as the
// next turn to select it.
type Option struct {
	Text        string         `json:"text"`
	Query       string         `json:"query"`
	Kind        string         `json:"kind,omitempty"`
	PageContext map[string]any `json:"pageContext"`
}

// Clarification describes the dialogue state.
type Clarification struct {
	Level         int    `json:"level"`
	Stage         string `json:"stage"`
	OriginalQuery string `json:"originalQuery"`
	Forced        bool   `json:"forced,omitempty"`
}

// Response is a composed answer or clarification question.
type Response struct {
	Type           string         `json:"type"`
	Confidence     float64        `json:"confidence"`
	Answer         string         `json:"answer"`
	AnswerMarkdown string         `json:"answer_markdown"`
	Structured     Evidence       `json:"structured"`
	Options        []Option       `json:"options,omitempty"`
	Intent         string         `json:"intent"`
	Keywords       []string       `json:"keywords"`
	Clarification  Clarification  `json:"clarification"`
	PageContext    map[string]any `json:"pageContext,omitempty"`
	RequestID      string         `json:"requestId,omitempty"`
	LatencyMs      int64          `json:"latencyMs"`
	Cached         bool           `json:"cached,omitempty"`
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("catalog assistant: %s (HTTP %d): %s", e.Message, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("catalog assistant: %s (HTTP %d)", e.Message, e.StatusCode)
}

// Unwrap maps 503 to ErrUnavailable.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusServiceUnavailable {
		return ErrUnavailable
	}
	return nil
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

// Ask answers one turn.
func (c *Client) Ask(ctx context.Context, req AskRequest) (*Response, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, errors.New("query is required")
	}

	var out Response
	var apiErr errorBody
	r := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&apiErr)
	if req.RequestID != "" {
		r.SetHeader("X-Request-Id", req.RequestID)
	}

	resp, err := r.Post("/api/v1/chat")
	if err != nil {
		return nil, fmt.Errorf("ask: %w", err)
	}
	if resp.IsError() {
		return nil, newAPIError(resp, apiErr)
	}
	return &out, nil
}

// HealthResponse is the liveness probe body.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// Health checks liveness.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/health")
	if err != nil {
		return nil, fmt.Errorf("health: %w", err)
	}
	if resp.IsError() {
		return nil, newAPIError(resp, errorBody{})
	}
	return &out, nil
}

// Ready checks readiness (content store reachable).
func (c *Client) Ready(ctx context.Context) error {
	var body errorBody
	resp, err := c.http.R().SetContext(ctx).SetError(&body).Get("/ready")
	if err != nil {
		return fmt.Errorf("ready: %w", err)
	}
	if resp.IsError() {
		return newAPIError(resp, body)
	}
	return nil
}

func newAPIError(resp *resty.Response, body errorBody) *APIError {
	msg := body.Message
	if msg == "" {
		msg = body.Error
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode())
	}
	return &APIError{StatusCode: resp.StatusCode(), Message: msg, Detail: body.Detail}
}
