package monitoring

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/observability"
)

// LogSink writes events to the structured logger.
type LogSink struct {
	logger *observability.Logger
}

// NewLogSink creates a log sink.
func NewLogSink(logger *observability.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Write logs each event at info level.
func (s *LogSink) Write(_ context.Context, events []QueryEvent) error {
	for _, e := range events {
		s.logger.Info().
			Str("event_id", e.ID.String()).
			Str("request_id", e.RequestID).
			Str("session_id", e.SessionID).
			Str("query", e.Query).
			Strs("keywords", e.Keywords).
			Str("intent", e.Intent).
			Str("response_type", e.ResponseType).
			Float64("confidence", e.Confidence).
			Int("level", e.Level).
			Int64("latency_ms", e.LatencyMs).
			Bool("cached", e.Cached).
			Msg("Query event")
	}
	return nil
}

// RedisStreamSink appends events to a capped Redis stream.
type RedisStreamSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisStreamSink creates a stream sink. maxLen <= 0 leaves the stream uncapped.
func NewRedisStreamSink(client *redis.Client, stream string, maxLen int64) *RedisStreamSink {
	if stream == "" {
		stream = "catalog:query-events"
	}
	return &RedisStreamSink{client: client, stream: stream, maxLen: maxLen}
}

// Write pipelines one XADD per event.
func (s *RedisStreamSink) Write(ctx context.Context, events []QueryEvent) error {
	pipe := s.client.Pipeline()
	for _, e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal query event: %w", err)
		}
		args := &redis.XAddArgs{
			Stream: s.stream,
			Values: map[string]interface{}{
				"id":            e.ID.String(),
				"response_type": e.ResponseType,
				"event":         data,
			},
		}
		if s.maxLen > 0 {
			args.MaxLen = s.maxLen
			args.Approx = true
		}
		pipe.XAdd(ctx, args)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis xadd: %w", err)
	}
	return nil
}
