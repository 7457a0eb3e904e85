// Package opensearch is the OpenSearch-backed content store. Items are kept
// in a single index and matched with BM25 over the same fields the SQL store
// searches.
package opensearch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	opensearch "github.com/opensearch-project/opensearch-go/v4"
	"github.com/opensearch-project/opensearch-go/v4/opensearchapi"
	"golang.org/x/time/rate"

	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/content"
)

// Config configures the client.
type Config struct {
	Addresses          []string
	Username           string
	Password           string
	Index              string
	InsecureSkipVerify bool
	RateLimit          float64
	RateBurst          int
	RequestTimeout     time.Duration
	// Transport overrides the HTTP transport (used by tests).
	Transport http.RoundTripper
}

// Client wraps the OpenSearch API client with request rate limiting.
type Client struct {
	api     *opensearchapi.Client
	limiter *rate.Limiter
	index   string
}

// NewClient creates a client. It does not contact the cluster.
func NewClient(cfg Config) (*Client, error) {
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("at least one address is required")
	}
	if cfg.Index == "" {
		cfg.Index = "catalog-content"
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 10 * time.Second
	}

	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-in for local clusters
			},
			MaxIdleConns:          20,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: cfg.RequestTimeout,
		}
	}

	api, err := opensearchapi.NewClient(opensearchapi.Config{
		Client: opensearch.Config{
			Addresses: cfg.Addresses,
			Username:  cfg.Username,
			Password:  cfg.Password,
			Transport: transport,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create opensearch client: %w", err)
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		api:     api,
		limiter: rate.NewLimiter(limit, burst),
		index:   cfg.Index,
	}, nil
}

// Index returns the content index name.
func (c *Client) Index() string {
	return c.index
}

// API exposes the underlying client.
func (c *Client) API() *opensearchapi.Client {
	return c.api
}

// WaitForRateLimit blocks until a request may be sent.
func (c *Client) WaitForRateLimit(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

// HealthCheck reports an error unless the cluster is green or yellow.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.WaitForRateLimit(ctx); err != nil {
		return err
	}
	resp, err := c.api.Cluster.Health(ctx, &opensearchapi.ClusterHealthReq{})
	if err != nil {
		return classifyError("cluster health", err)
	}
	if resp.Status == "red" {
		return fmt.Errorf("cluster health is red: %w", content.ErrUnavailable)
	}
	return nil
}

// classifyError wraps connectivity failures with content.ErrUnavailable so
// the engine can tell an outage from a bad request.
func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if isConnectionError(err) {
		return fmt.Errorf("%s: %w: %w", op, content.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isConnectionError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"connection refused", "no such host", "timeout", "eof", "503", "service unavailable"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
