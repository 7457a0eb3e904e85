// Package content defines catalog evidence items and the store contract the
// retrievers query.
package content

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable marks store connectivity failures. The engine surfaces it to
// callers only when every retriever fails with it.
var ErrUnavailable = errors.New("content store unavailable")

// Kind discriminates evidence items.
type Kind string

const (
	KindArticle Kind = "article"
	KindEvent   Kind = "event"
	KindService Kind = "service"
	KindProduct Kind = "product"
)

// Kinds lists every kind in response order.
var Kinds = []Kind{KindArticle, KindEvent, KindService, KindProduct}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown content kind %q", s)
}

// Item is one piece of retrieved evidence.
type Item struct {
	Kind          Kind       `json:"kind" yaml:"kind"`
	ID            string     `json:"id" yaml:"id"`
	Title         string     `json:"title" yaml:"title"`
	URL           string     `json:"url,omitempty" yaml:"url"`
	Description   string     `json:"description,omitempty" yaml:"description"`
	Categories    []string   `json:"categories,omitempty" yaml:"categories"`
	PublishedAt   *time.Time `json:"publishedAt,omitempty" yaml:"published_at"`
	StartsAt      *time.Time `json:"startsAt,omitempty" yaml:"starts_at"`
	EndsAt        *time.Time `json:"endsAt,omitempty" yaml:"ends_at"`
	Location      string     `json:"location,omitempty" yaml:"location"`
	Price         string     `json:"price,omitempty" yaml:"price"`
	Score         float64    `json:"score" yaml:"-"`
	RecencyWeight float64    `json:"recencyWeight" yaml:"-"`
}

// Clone returns a deep copy so retrievers never share mutable state.
func (i Item) Clone() Item {
	out := i
	if i.Categories != nil {
		out.Categories = append([]string(nil), i.Categories...)
	}
	out.PublishedAt = cloneTime(i.PublishedAt)
	out.StartsAt = cloneTime(i.StartsAt)
	out.EndsAt = cloneTime(i.EndsAt)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// SearchQuery is the store primitive's input.
type SearchQuery struct {
	Keywords []string
	Kind     Kind
	Limit    int
	// UpcomingAfter, when set, restricts events to those starting at or after it.
	UpcomingAfter time.Time
}

// Store is the content-store query primitive. Implementations must be safe
// for concurrent use and must match keywords disjunctively across title,
// description, categories and url.
type Store interface {
	Search(ctx context.Context, q SearchQuery) ([]Item, error)
}

// Pinger is implemented by stores that can report readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}
