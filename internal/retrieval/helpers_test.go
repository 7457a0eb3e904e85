package retrieval

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/content"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/monitoring"
)

var testNow = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func at(year int, month time.Month, day int) *time.Time {
	t := time.Date(year, month, day, 9, 0, 0, 0, time.UTC)
	return &t
}

// fakeStore matches keywords disjunctively by substring, like the SQL store.
type fakeStore struct {
	mu      sync.Mutex
	items   []content.Item
	errs    map[content.Kind]error
	delays  map[content.Kind]time.Duration
	queries []content.SearchQuery
}

func newFakeStore(items ...content.Item) *fakeStore {
	return &fakeStore{
		items:  items,
		errs:   make(map[content.Kind]error),
		delays: make(map[content.Kind]time.Duration),
	}
}

func (s *fakeStore) Search(ctx context.Context, q content.SearchQuery) ([]content.Item, error) {
	s.mu.Lock()
	s.queries = append(s.queries, q)
	delay := s.delays[q.Kind]
	err := s.errs[q.Kind]
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	terms := content.SearchTerms(q.Keywords)
	var out []content.Item
	for _, it := range s.items {
		if it.Kind != q.Kind {
			continue
		}
		if !q.UpcomingAfter.IsZero() && (it.StartsAt == nil || it.StartsAt.Before(q.UpcomingAfter)) {
			continue
		}
		hay := strings.ToLower(strings.Join([]string{it.Title, it.Description, strings.Join(it.Categories, " "), it.URL}, " "))
		matched := len(terms) == 0
		for _, t := range terms {
			if strings.Contains(hay, t) {
				matched = true
				break
			}
		}
		if matched {
			out = append(out, it)
		}
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) queriesFor(kind content.Kind) []content.SearchQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []content.SearchQuery
	for _, q := range s.queries {
		if q.Kind == kind {
			out = append(out, q)
		}
	}
	return out
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []monitoring.QueryEvent
}

func (r *fakeRecorder) Record(evt monitoring.QueryEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *fakeRecorder) all() []monitoring.QueryEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]monitoring.QueryEvent(nil), r.events...)
}

// catalogFixture is a small photography catalog used across engine tests.
func catalogFixture() []content.Item {
	return []content.Item{
		{
			Kind:        content.KindArticle,
			ID:          "a-exposure-triangle",
			Title:       "The Exposure Triangle Explained",
			URL:         "https://example.com/blog/exposure-triangle",
			Description: "A short guide to aperture, shutter speed and ISO.",
			Categories:  []string{"technique"},
			PublishedAt: at(2025, time.October, 1),
		},
		{
			Kind:        content.KindArticle,
			ID:          "a-choosing-tripod",
			Title:       "Choosing a Tripod for Landscape Photography",
			URL:         "https://example.com/blog/choosing-a-tripod",
			Description: "How to pick a sturdy tripod that will survive windy hillsides.",
			Categories:  []string{"equipment", "landscape"},
			PublishedAt: at(2024, time.March, 12),
		},
		{
			Kind:        content.KindArticle,
			ID:          "a-bluebell-tips",
			Title:       "Bluebell Photography Tips",
			URL:         "https://example.com/blog/bluebell-photography-tips",
			Description: "How to photograph bluebells in soft woodland light.",
			Categories:  []string{"landscape"},
			PublishedAt: at(2025, time.April, 2),
		},
		{
			Kind:        content.KindEvent,
			ID:          "e-bluebell-0425",
			Title:       "Bluebell Woodland Workshop",
			URL:         "https://example.com/workshops/bluebell-woodland-2026-04-25",
			Description: "Photograph bluebells at dawn in an ancient woodland.",
			Categories:  []string{"landscape"},
			StartsAt:    at(2026, time.April, 25),
			Location:    "Hampshire",
			Price:       "£95",
		},
		{
			Kind:        content.KindEvent,
			ID:          "e-bluebell-0502",
			Title:       "Bluebell Woodland Workshop",
			URL:         "https://example.com/workshops/bluebell-woodland-2026-05-02",
			Description: "Photograph bluebells at dawn in an ancient woodland.",
			Categories:  []string{"landscape"},
			StartsAt:    at(2026, time.May, 2),
			Location:    "Hampshire",
			Price:       "£95",
		},
		{
			Kind:        content.KindEvent,
			ID:          "e-bluebell-2025",
			Title:       "Bluebell Woodland Workshop",
			URL:         "https://example.com/workshops/bluebell-woodland-2025-05-03",
			Description: "Photograph bluebells at dawn in an ancient woodland.",
			Categories:  []string{"landscape"},
			StartsAt:    at(2025, time.May, 3),
		},
		{
			Kind:        content.KindEvent,
			ID:          "e-beginners-course",
			Title:       "Beginners Photography Course",
			URL:         "https://example.com/courses/beginners-2026-04",
			Description: "A four week course for beginners covering camera settings.",
			Categories:  []string{"courses", "beginners"},
			StartsAt:    at(2026, time.April, 20),
			Location:    "Winchester",
			Price:       "£180",
		},
		{
			Kind:        content.KindEvent,
			ID:          "e-intermediate-course",
			Title:       "Intermediate Photography Course",
			URL:         "https://example.com/courses/intermediate-2026-05",
			Description: "Build on the basics with manual mode and composition.",
			Categories:  []string{"courses"},
			StartsAt:    at(2026, time.May, 10),
		},
		{
			Kind:        content.KindService,
			ID:          "s-one-to-one",
			Title:       "One to One Tuition",
			URL:         "https://example.com/services/one-to-one",
			Description: "Private photography tuition tailored to you.",
			Categories:  []string{"tuition"},
		},
		{
			Kind:        content.KindProduct,
			ID:          "p-gift-voucher",
			Title:       "Gift Voucher",
			URL:         "https://example.com/shop/gift-voucher",
			Description: "A photography workshop gift voucher.",
			Categories:  []string{"vouchers"},
		},
	}
}
