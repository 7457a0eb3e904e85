package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/cache"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/observability"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/query"
)

// ResponseCache caches composed responses in any cache.Client.
type ResponseCache struct {
	client cache.Client
	logger *observability.Logger
	config ResponseCacheConfig
}

// ResponseCacheConfig configures the response cache.
type ResponseCacheConfig struct {
	// DefaultTTL applies to advice answers.
	DefaultTTL time.Duration
	// EventsTTL is shorter because upcoming-event lists change with the clock.
	EventsTTL time.Duration
	// ClarificationTTL applies to clarification questions.
	ClarificationTTL time.Duration
	// KeyPrefix is the cache key prefix
	KeyPrefix string
	// Enabled controls whether caching is active
	Enabled bool
}

// DefaultResponseCacheConfig returns default cache configuration.
func DefaultResponseCacheConfig() ResponseCacheConfig {
	return ResponseCacheConfig{
		DefaultTTL:       5 * time.Minute,
		EventsTTL:        time.Minute,
		ClarificationTTL: 5 * time.Minute,
		KeyPrefix:        "answer:",
		Enabled:          true,
	}
}

// NewResponseCache creates a new response cache.
func NewResponseCache(client cache.Client, logger *observability.Logger, config ResponseCacheConfig) *ResponseCache {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "answer:"
	}
	if config.DefaultTTL == 0 {
		config.DefaultTTL = 5 * time.Minute
	}
	if config.EventsTTL == 0 {
		config.EventsTTL = time.Minute
	}
	if config.ClarificationTTL == 0 {
		config.ClarificationTTL = config.DefaultTTL
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &ResponseCache{
		client: client,
		logger: logger,
		config: config,
	}
}

// CacheKey derives a deterministic key from everything that shapes the answer.
func (c *ResponseCache) CacheKey(q query.Query, limit int) string {
	parts := []string{
		q.Normalized,
		strings.Join(q.Keywords(), ","),
		strconv.Itoa(q.PageContext.ClarificationLevel),
		strings.ToLower(q.PageContext.OriginalQuery),
		strconv.FormatFloat(q.PageContext.PriorConfidence, 'f', 4, 64),
		strconv.Itoa(limit),
	}
	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return c.config.KeyPrefix + hex.EncodeToString(hash[:16])
}

// CachedResponse represents a cached composed response.
type CachedResponse struct {
	Response *ComposedResponse `json:"response"`
	CachedAt time.Time         `json:"cached_at"`
}

// Get retrieves a cached response if available.
func (c *ResponseCache) Get(ctx context.Context, q query.Query, limit int) (*ComposedResponse, bool) {
	if c == nil || !c.config.Enabled || c.client == nil {
		return nil, false
	}

	key := c.CacheKey(q, limit)
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Debug().Err(err).Str("key", key).Msg("Cache get error")
		}
		return nil, false
	}

	var cached CachedResponse
	if err := json.Unmarshal(data, &cached); err != nil || cached.Response == nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to unmarshal cached response")
		return nil, false
	}

	c.logger.Debug().Str("key", key).Msg("Cache hit")
	return cached.Response, true
}

// Set caches a composed response.
func (c *ResponseCache) Set(ctx context.Context, q query.Query, limit int, resp *ComposedResponse) error {
	if c == nil || !c.config.Enabled || c.client == nil {
		return nil
	}

	key := c.CacheKey(q, limit)
	ttl := c.ttlFor(resp)

	data, err := json.Marshal(CachedResponse{Response: resp, CachedAt: time.Now()})
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl); err != nil {
		return fmt.Errorf("cache response: %w", err)
	}

	c.logger.Debug().Str("key", key).Dur("ttl", ttl).Msg("Cached response")
	return nil
}

// Invalidate drops every cached answer, typically after new content is loaded.
func (c *ResponseCache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	c.logger.Info().Str("prefix", c.config.KeyPrefix).Msg("Invalidating response cache")
	return c.client.DeleteByPrefix(ctx, c.config.KeyPrefix)
}

func (c *ResponseCache) ttlFor(resp *ComposedResponse) time.Duration {
	switch resp.Type {
	case ResponseEvents:
		return c.config.EventsTTL
	case ResponseClarification:
		return c.config.ClarificationTTL
	default:
		return c.config.DefaultTTL
	}
}
