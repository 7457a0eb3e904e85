// Package bootstrap assembles the answer engine and its collaborators from
// configuration. The API server and the CLI share it.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/cache"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/config"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/content"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/monitoring"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/observability"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/opensearch"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/retrieval"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/storage"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/vocabulary"
)

// Options tunes what New wires.
type Options struct {
	// Migrate applies SQL schema migrations on startup.
	Migrate bool
	// DisableRecorder skips the query-event recorder (one-shot CLI commands).
	DisableRecorder bool
}

// App holds the wired components. Exactly one of SQL and Search is set.
type App struct {
	Config    *config.Config
	Logger    *observability.Logger
	Vocab     *vocabulary.Vocabulary
	Store     content.Store
	SQL       *storage.ContentRepository
	Search    *opensearch.Store
	Cache     cache.Client
	Responses *retrieval.ResponseCache
	Recorder  *monitoring.Recorder
	Metrics   *observability.Metrics
	Engine    *retrieval.Engine

	closers []func() error
}

// New builds an App. On error everything opened so far is closed.
func New(ctx context.Context, cfg *config.Config, logger *observability.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	app := &App{Config: cfg, Logger: logger}
	if err := app.build(ctx, opts); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context, opts Options) (err error) {
	cfg, logger := a.Config, a.Logger

	if a.Vocab, err = vocabulary.Load(cfg.Engine.VocabularyPath); err != nil {
		return err
	}

	if err = a.openStore(ctx, opts); err != nil {
		return err
	}

	var redisConn *redis.Client
	if cfg.Cache.Driver == "redis" || (cfg.Analytics.Enabled && cfg.Analytics.Sink == "redis") {
		rc, rerr := cache.NewRedisClient(ctx, cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			PoolSize: cfg.Cache.Redis.PoolSize,
		})
		if rerr != nil {
			return fmt.Errorf("connect redis: %w", rerr)
		}
		a.closers = append(a.closers, rc.Close)
		redisConn = rc.Redis()
		if cfg.Cache.Driver == "redis" {
			a.Cache = rc
		}
	}

	var engineOpts []retrieval.Option
	if cfg.Cache.Enabled {
		if a.Cache == nil {
			mem := cache.NewMemoryClient(cfg.Cache.MaxEntries, cfg.Cache.TTL)
			a.Cache = mem
			a.closers = append(a.closers, mem.Close)
		}
		rcfg := retrieval.DefaultResponseCacheConfig()
		rcfg.DefaultTTL = cfg.Cache.TTL
		rcfg.ClarificationTTL = cfg.Cache.TTL
		a.Responses = retrieval.NewResponseCache(a.Cache, logger, rcfg)
		engineOpts = append(engineOpts, retrieval.WithResponseCache(a.Responses))
	}

	if cfg.Observability.MetricsEnabled {
		a.Metrics = observability.NewMetrics()
		engineOpts = append(engineOpts, retrieval.WithMetrics(a.Metrics))
	}

	if cfg.Analytics.Enabled && !opts.DisableRecorder {
		var sink monitoring.Sink = monitoring.NewLogSink(logger)
		if cfg.Analytics.Sink == "redis" {
			sink = monitoring.NewRedisStreamSink(redisConn, cfg.Analytics.Stream, cfg.Analytics.MaxLen)
		}
		rcfg := monitoring.DefaultRecorderConfig()
		if cfg.Analytics.BufferSize > 0 {
			rcfg.BufferSize = cfg.Analytics.BufferSize
		}
		a.Recorder = monitoring.NewRecorder(logger, sink, rcfg)
		// Prepended so the recorder drains before the redis connection closes.
		a.closers = append([]func() error{func() error { a.Recorder.Stop(); return nil }}, a.closers...)
		engineOpts = append(engineOpts, retrieval.WithRecorder(a.Recorder))
	}

	a.Engine = retrieval.NewEngine(a.Vocab, a.Store, logger, EngineConfig(cfg), engineOpts...)
	return nil
}

func (a *App) openStore(ctx context.Context, opts Options) error {
	cfg := a.Config
	switch cfg.Store.Driver {
	case "opensearch":
		client, err := opensearch.NewClient(opensearch.Config{
			Addresses:          cfg.Store.OpenSearch.Addresses,
			Username:           cfg.Store.OpenSearch.Username,
			Password:           cfg.Store.OpenSearch.Password,
			Index:              cfg.Store.OpenSearch.Index,
			InsecureSkipVerify: cfg.Store.OpenSearch.InsecureSkipVerify,
			RateLimit:          cfg.Store.OpenSearch.RateLimit,
			RateBurst:          cfg.Store.OpenSearch.RateBurst,
		})
		if err != nil {
			return err
		}
		a.Search = opensearch.NewStore(client, a.Logger)
		a.Store = a.Search
		return nil
	default:
		dbOpts := storage.Options{Driver: cfg.Store.Driver, DSN: cfg.DatabaseDSN()}
		if cfg.Store.Driver == "postgres" {
			dbOpts.MaxOpenConns = cfg.Store.Postgres.MaxOpenConns
			dbOpts.MaxIdleConns = cfg.Store.Postgres.MaxIdleConns
			dbOpts.ConnMaxLifetime = cfg.Store.Postgres.ConnMaxLifetime
		} else {
			dbOpts.MaxOpenConns = cfg.Store.SQLite.MaxOpenConns
			dbOpts.JournalMode = cfg.Store.SQLite.JournalMode
		}
		db, dialect, err := storage.Open(ctx, dbOpts, a.Logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, db.Close)
		if opts.Migrate {
			version, err := storage.Migrate(ctx, db, dialect)
			if err != nil {
				return err
			}
			a.Logger.Debug().Int("schema_version", version).Msg("schema migrated")
		}
		a.SQL = storage.NewContentRepository(db, dialect)
		a.Store = a.SQL
		return nil
	}
}

// Ready reports whether the content store is reachable.
func (a *App) Ready(ctx context.Context) error {
	if p, ok := a.Store.(content.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// InvalidateCache drops every cached response, typically after a content load.
func (a *App) InvalidateCache(ctx context.Context) error {
	if a.Responses == nil {
		return nil
	}
	return a.Responses.Invalidate(ctx)
}

// Close stops the recorder and releases connections.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// EngineConfig maps configuration onto the pipeline settings.
func EngineConfig(cfg *config.Config) retrieval.EngineConfig {
	ec := retrieval.DefaultEngineConfig()
	ec.ConfidenceThreshold = cfg.Engine.ConfidenceThreshold
	ec.Retriever.Cap = cfg.Engine.ResultCap
	ec.Retriever.OverFetchFactor = cfg.Engine.OverFetchFactor
	ec.Retriever.Timeout = cfg.Engine.RetrieverTimeout
	if cfg.Engine.RecencyHalfLife > 0 {
		ec.Scorer.HalfLife = cfg.Engine.RecencyHalfLife
	}
	if cfg.Engine.EventHorizon > 0 {
		ec.Scorer.EventHorizon = cfg.Engine.EventHorizon
	}
	ec.Clarification.MaxLevel = cfg.Engine.MaxClarifications
	return ec
}
