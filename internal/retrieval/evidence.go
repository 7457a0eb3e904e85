package retrieval

import (
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/content"
)

// Evidence holds one ranked list per content kind. Each list is owned by the
// retriever that produced it until composition.
type Evidence struct {
	Articles []content.Item `json:"articles"`
	Events   []content.Item `json:"events"`
	Services []content.Item `json:"services"`
	Products []content.Item `json:"products"`
}

// Bucket returns the list for kind.
func (e Evidence) Bucket(kind content.Kind) []content.Item {
	switch kind {
	case content.KindArticle:
		return e.Articles
	case content.KindEvent:
		return e.Events
	case content.KindService:
		return e.Services
	case content.KindProduct:
		return e.Products
	}
	return nil
}

// SetBucket replaces the list for kind.
func (e *Evidence) SetBucket(kind content.Kind, items []content.Item) {
	switch kind {
	case content.KindArticle:
		e.Articles = items
	case content.KindEvent:
		e.Events = items
	case content.KindService:
		e.Services = items
	case content.KindProduct:
		e.Products = items
	}
}

// Total counts items across all buckets.
func (e Evidence) Total() int {
	return len(e.Articles) + len(e.Events) + len(e.Services) + len(e.Products)
}

// Counts returns the per-kind item counts.
func (e Evidence) Counts() map[content.Kind]int {
	out := make(map[content.Kind]int, len(content.Kinds))
	for _, k := range content.Kinds {
		out[k] = len(e.Bucket(k))
	}
	return out
}

// withEmptyBuckets replaces nil lists with empty ones so they encode as [].
func (e Evidence) withEmptyBuckets() Evidence {
	for _, k := range content.Kinds {
		if e.Bucket(k) == nil {
			e.SetBucket(k, []content.Item{})
		}
	}
	return e
}
