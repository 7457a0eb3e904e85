// Package retrieval runs the answer pipeline: evidence retrieval, relevance
// ranking, confidence, clarification and composition.
package retrieval

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/content"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/intent"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/monitoring"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/observability"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/query"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/vocabulary"
)

var (
	// ErrEmptyQuery rejects a request before it enters the pipeline.
	ErrEmptyQuery = errors.New("query is required")
	// ErrStoreUnavailable is returned when every retriever failed to reach the store.
	ErrStoreUnavailable = errors.New("content store unavailable")
)

// MaxTopK bounds the caller supplied per-kind result cap.
const MaxTopK = 50

// Request is one visitor turn.
type Request struct {
	Query         string            `json:"query"`
	PreviousQuery string            `json:"previousQuery,omitempty"`
	SessionID     string            `json:"sessionId,omitempty"`
	PageContext   query.PageContext `json:"pageContext"`
	TopK          int               `json:"topK,omitempty"`
	// RequestID is taken from the context when empty.
	RequestID string `json:"-"`
}

// EventRecorder receives a summary of every answered turn. It must not block.
type EventRecorder interface {
	Record(evt monitoring.QueryEvent)
}

// EngineConfig holds pipeline settings.
type EngineConfig struct {
	ConfidenceThreshold float64
	Retriever           RetrieverConfig
	Scorer              ScorerConfig
	Clarification       ClarificationConfig
	Now                 func() time.Time
}

// DefaultEngineConfig returns production defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		ConfidenceThreshold: 0.6,
		Retriever: RetrieverConfig{
			Cap:             12,
			OverFetchFactor: 5,
			Timeout:         2 * time.Second,
		},
		Scorer: ScorerConfig{
			Weights:      DefaultScoringWeights(),
			RecencyCap:   0.2,
			HalfLife:     365 * 24 * time.Hour,
			EventHorizon: 90 * 24 * time.Hour,
		},
		Clarification: ClarificationConfig{
			MaxLevel:        2,
			MaxOptions:      5,
			TopItemsPerKind: 5,
		},
	}
}

// Engine is stateless between requests; conversational state travels in
// Request.PreviousQuery and Request.PageContext.
type Engine struct {
	vocab      *vocabulary.Vocabulary
	extractor  *query.Extractor
	classifier *intent.Classifier
	retrievers *RetrieverSet
	scorer     *Scorer
	equipment  *EquipmentFilter
	calculator *ConfidenceCalculator
	clarifier  *ClarificationManager
	composer   *Composer
	cache      *ResponseCache
	recorder   EventRecorder
	metrics    *observability.Metrics
	logger     *observability.Logger
	config     EngineConfig
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithResponseCache enables response caching.
func WithResponseCache(c *ResponseCache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithRecorder sets the fire-and-forget query event sink.
func WithRecorder(r EventRecorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine wires the pipeline over a content store.
func NewEngine(vocab *vocabulary.Vocabulary, store content.Store, logger *observability.Logger, cfg EngineConfig, opts ...Option) *Engine {
	if cfg.ConfidenceThreshold <= 0 || cfg.ConfidenceThreshold > 1 {
		cfg.ConfidenceThreshold = 0.6
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	cfg.Retriever.Now = cfg.Now
	cfg.Scorer.Now = cfg.Now
	cfg.Retriever.applyDefaults()

	e := &Engine{
		vocab:      vocab,
		extractor:  query.NewExtractor(vocab),
		classifier: intent.NewClassifier(vocab),
		scorer:     NewScorer(cfg.Scorer),
		equipment:  NewEquipmentFilter(vocab),
		calculator: NewConfidenceCalculator(vocab, cfg.ConfidenceThreshold),
		clarifier:  NewClarificationManager(vocab, cfg.ConfidenceThreshold, cfg.Clarification),
		composer:   NewComposer(vocab),
		logger:     logger,
		config:     cfg,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.retrievers = NewRetrieverSet(store, cfg.Retriever, logger, e.metrics)
	return e
}

// Extractor exposes the engine's keyword extractor.
func (e *Engine) Extractor() *query.Extractor {
	return e.extractor
}

// Answer runs one turn of the pipeline.
func (e *Engine) Answer(ctx context.Context, req Request) (*ComposedResponse, error) {
	start := time.Now()
	if strings.TrimSpace(req.Query) == "" {
		return nil, ErrEmptyQuery
	}
	if req.RequestID == "" {
		req.RequestID = observability.RequestIDFromContext(ctx)
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	logger := e.logger.WithContext(ctx).WithSession(req.SessionID).WithOperation("answer")

	pc := req.PageContext
	pc.ClarificationLevel = e.clampLevel(pc.ClarificationLevel)
	q := e.extractor.Extract(req.Query, req.PreviousQuery, pc)
	keywords := q.Keywords()
	logger.Debug().
		Str("normalized", q.Normalized).
		Strs("keywords", keywords).
		Int("level", pc.ClarificationLevel).
		Msg("Extracted keywords")

	limit := e.config.Retriever.Cap
	if req.TopK > 0 {
		limit = min(req.TopK, MaxTopK)
	}

	if cached, ok := e.cache.Get(ctx, q, limit); ok {
		cached.RequestID = req.RequestID
		cached.LatencyMs = time.Since(start).Milliseconds()
		cached.Cached = true
		e.record(req, q, cached, nil, true)
		return cached, nil
	}

	res := e.classifier.Classify(q.Normalized, keywords)
	logger.Debug().
		Str("intent", string(res.Intent)).
		Str("rule", res.Rule).
		Bool("uncertain", res.Uncertain).
		Msg("Classified intent")

	gathered, err := e.retrievers.Gather(ctx, keywords, limit)
	if err != nil {
		return nil, err
	}
	if gathered.AllUnavailable(e.retrievers.Len()) {
		logger.Error().Msg("All retrievers failed to reach the content store")
		return nil, ErrStoreUnavailable
	}

	ev := e.rank(gathered, keywords, limit)
	logger.Debug().
		Int("articles", len(ev.Articles)).
		Int("events", len(ev.Events)).
		Int("services", len(ev.Services)).
		Int("products", len(ev.Products)).
		Msg("Ranked evidence")

	var concept *vocabulary.Concept
	if res.Intent == intent.Advice {
		if c, ok := e.vocab.MatchConcept(q.Normalized, keywords); ok {
			concept = &c
		}
	}

	conf := e.calculator.Calculate(ConfidenceInput{
		Intent:          res,
		Evidence:        ev,
		Keywords:        keywords,
		MaxScore:        e.scorer.MaxTitleScore(keywords),
		Level:           pc.ClarificationLevel,
		PriorConfidence: pc.PriorConfidence,
		TemplateMatched: concept != nil,
	})

	state := e.clarifier.Transition(pc.ClarificationLevel, conf.Value)
	state.OriginalQuery = OriginalQuery(q)

	var resp *ComposedResponse
	if state.Stage == StageAwaitingSelection {
		next := e.clarifier.NextPageContext(q, state.Level, conf.Value)
		options := e.clarifier.Options(ev, next)
		resp = e.composer.ComposeClarification(res, ev, options, conf, state)
		e.metrics.ObserveClarification(state.Level)
	} else {
		resp = e.composer.Compose(res, ev, concept, conf, state)
	}
	resp.Keywords = keywords
	resp.RequestID = req.RequestID
	resp.LatencyMs = time.Since(start).Milliseconds()

	if len(gathered.Errors) == 0 {
		if err := e.cache.Set(ctx, q, limit, resp); err != nil {
			logger.Warn().Err(err).Msg("Failed to cache response")
		}
	}

	e.metrics.ObserveQuery(string(resp.Type), string(res.Intent), resp.Confidence)
	e.record(req, q, resp, gathered.Errors, false)

	logger.Info().
		Str("type", string(resp.Type)).
		Str("intent", string(resp.Intent)).
		Float64("confidence", resp.Confidence).
		Str("tier", string(conf.Tier)).
		Bool("forced", state.Forced).
		Int64("latency_ms", resp.LatencyMs).
		Msg("Answered query")

	return resp, nil
}

// rank applies the equipment filter to articles and ranks every bucket.
func (e *Engine) rank(g Gathered, keywords []string, limit int) Evidence {
	var ev Evidence
	detected := e.equipment.Detect(keywords)
	for _, kind := range content.Kinds {
		items := g.Items[kind]
		if kind == content.KindArticle {
			items = e.equipment.Apply(items, detected)
		}
		ev.SetBucket(kind, e.scorer.Rank(items, keywords, limit))
	}
	return ev
}

func (e *Engine) clampLevel(level int) int {
	if level < 0 {
		return 0
	}
	if maxLevel := e.clarifier.MaxLevel(); level > maxLevel {
		return maxLevel
	}
	return level
}

func (e *Engine) record(req Request, q query.Query, resp *ComposedResponse, errs map[content.Kind]error, cached bool) {
	if e.recorder == nil {
		return
	}
	evt := monitoring.QueryEvent{
		ID:             uuid.New(),
		RequestID:      req.RequestID,
		SessionID:      req.SessionID,
		Query:          q.Raw,
		PreviousQuery:  q.PreviousQuery,
		Keywords:       resp.Keywords,
		Intent:         string(resp.Intent),
		ResponseType:   string(resp.Type),
		Confidence:     resp.Confidence,
		Level:          q.PageContext.ClarificationLevel,
		EvidenceCounts: make(map[string]int, len(content.Kinds)),
		LatencyMs:      resp.LatencyMs,
		Cached:         cached,
		OccurredAt:     e.config.Now(),
	}
	for kind, n := range resp.Structured.Counts() {
		evt.EvidenceCounts[string(kind)] = n
	}
	if len(errs) > 0 {
		evt.RetrieverErrors = make(map[string]string, len(errs))
		for kind, err := range errs {
			evt.RetrieverErrors[string(kind)] = err.Error()
		}
	}
	e.recorder.Record(evt)
}
