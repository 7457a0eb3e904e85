package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/content"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/observability"
)

// RetrieverConfig holds retriever settings.
type RetrieverConfig struct {
	// Cap is the final per-kind result count after ranking.
	Cap int
	// OverFetchFactor multiplies Cap for the store query so filtering never
	// needs a second round trip.
	OverFetchFactor int
	Timeout         time.Duration
	Now             func() time.Time
}

func (c *RetrieverConfig) applyDefaults() {
	if c.Cap <= 0 {
		c.Cap = 12
	}
	if c.OverFetchFactor <= 0 {
		c.OverFetchFactor = 5
	}
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Retriever queries the content store for one kind of evidence.
type Retriever struct {
	kind    content.Kind
	store   content.Store
	config  RetrieverConfig
	metrics *observability.Metrics
}

// NewRetriever creates a retriever for kind.
func NewRetriever(kind content.Kind, store content.Store, cfg RetrieverConfig, metrics *observability.Metrics) *Retriever {
	cfg.applyDefaults()
	return &Retriever{kind: kind, store: store, config: cfg, metrics: metrics}
}

// NewArticleRetriever creates the article retriever.
func NewArticleRetriever(store content.Store, cfg RetrieverConfig, metrics *observability.Metrics) *Retriever {
	return NewRetriever(content.KindArticle, store, cfg, metrics)
}

// NewEventRetriever creates the event retriever. It only returns events
// starting at or after the configured clock's now.
func NewEventRetriever(store content.Store, cfg RetrieverConfig, metrics *observability.Metrics) *Retriever {
	return NewRetriever(content.KindEvent, store, cfg, metrics)
}

// NewServiceRetriever creates the service retriever.
func NewServiceRetriever(store content.Store, cfg RetrieverConfig, metrics *observability.Metrics) *Retriever {
	return NewRetriever(content.KindService, store, cfg, metrics)
}

// NewProductRetriever creates the product retriever.
func NewProductRetriever(store content.Store, cfg RetrieverConfig, metrics *observability.Metrics) *Retriever {
	return NewRetriever(content.KindProduct, store, cfg, metrics)
}

// Kind returns the kind this retriever serves.
func (r *Retriever) Kind() content.Kind {
	return r.kind
}

// Retrieve runs one bounded store query. cap overrides the configured cap when positive.
func (r *Retriever) Retrieve(ctx context.Context, keywords []string, cap int) ([]content.Item, error) {
	if cap <= 0 {
		cap = r.config.Cap
	}
	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	q := content.SearchQuery{
		Keywords: keywords,
		Kind:     r.kind,
		Limit:    cap * r.config.OverFetchFactor,
	}
	now := r.config.Now()
	if r.kind == content.KindEvent {
		q.UpcomingAfter = now
	}

	start := time.Now()
	items, err := r.store.Search(ctx, q)
	r.metrics.ObserveRetriever(string(r.kind), time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("%s retriever: %w", r.kind, err)
	}

	out := make([]content.Item, 0, len(items))
	for _, it := range items {
		if it.Kind != "" && it.Kind != r.kind {
			continue
		}
		if r.kind == content.KindEvent && (it.StartsAt == nil || it.StartsAt.Before(now)) {
			continue
		}
		it = it.Clone()
		it.Kind = r.kind
		out = append(out, it)
	}
	return out, nil
}

// RetrieverSet fans a query out to the four retrievers.
type RetrieverSet struct {
	retrievers []*Retriever
	logger     *observability.Logger
}

// NewRetrieverSet builds the article, event, service and product retrievers over one store.
func NewRetrieverSet(store content.Store, cfg RetrieverConfig, logger *observability.Logger, metrics *observability.Metrics) *RetrieverSet {
	return &RetrieverSet{
		retrievers: []*Retriever{
			NewArticleRetriever(store, cfg, metrics),
			NewEventRetriever(store, cfg, metrics),
			NewServiceRetriever(store, cfg, metrics),
			NewProductRetriever(store, cfg, metrics),
		},
		logger: logger,
	}
}

// Gathered is the raw, unranked output of one fan-out.
type Gathered struct {
	Items  map[content.Kind][]content.Item
	Errors map[content.Kind]error
}

// AllUnavailable reports whether every retriever failed on store connectivity.
func (g Gathered) AllUnavailable(total int) bool {
	if len(g.Errors) < total || total == 0 {
		return false
	}
	for _, err := range g.Errors {
		if !errors.Is(err, content.ErrUnavailable) {
			return false
		}
	}
	return true
}

// Gather launches all retrievers together and waits for each to finish or
// time out. A failing retriever leaves only its own kind empty. The returned
// error is non-nil only when ctx itself was cancelled.
func (s *RetrieverSet) Gather(ctx context.Context, keywords []string, cap int) (Gathered, error) {
	type result struct {
		items []content.Item
		err   error
	}
	results := make([]result, len(s.retrievers))

	group, groupCtx := errgroup.WithContext(ctx)
	for i, r := range s.retrievers {
		i, r := i, r
		group.Go(func() error {
			items, err := r.Retrieve(groupCtx, keywords, cap)
			results[i] = result{items: items, err: err}
			// never abort siblings
			return nil
		})
	}
	_ = group.Wait()

	if err := ctx.Err(); err != nil {
		return Gathered{}, err
	}

	out := Gathered{
		Items:  make(map[content.Kind][]content.Item, len(s.retrievers)),
		Errors: make(map[content.Kind]error),
	}
	for i, r := range s.retrievers {
		if results[i].err != nil {
			out.Errors[r.Kind()] = results[i].err
			s.logger.Warn().
				Err(results[i].err).
				Str("kind", string(r.Kind())).
				Msg("Retriever failed, continuing without its evidence")
			continue
		}
		out.Items[r.Kind()] = results[i].items
	}
	return out, nil
}

// Len returns the number of retrievers in the set.
func (s *RetrieverSet) Len() int {
	return len(s.retrievers)
}
