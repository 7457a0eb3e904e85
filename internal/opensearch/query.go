package opensearch

import (
	"time"

	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/content"
)

// searchFields are the BM25 fields with the same relative weights the scorer
// gives title, description, category and url matches.
var searchFields = []string{"title^3", "description^1.5", "categories", "url^0.5"}

// document is the indexed form of a content item.
type document struct {
	Kind        string     `json:"kind"`
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	URL         string     `json:"url,omitempty"`
	Description string     `json:"description,omitempty"`
	Categories  []string   `json:"categories,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	StartsAt    *time.Time `json:"starts_at,omitempty"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
	Location    string     `json:"location,omitempty"`
	Price       string     `json:"price,omitempty"`
}

func newDocument(item content.Item) document {
	return document{
		Kind:        string(item.Kind),
		ID:          item.ID,
		Title:       item.Title,
		URL:         item.URL,
		Description: item.Description,
		Categories:  item.Categories,
		PublishedAt: item.PublishedAt,
		StartsAt:    item.StartsAt,
		EndsAt:      item.EndsAt,
		Location:    item.Location,
		Price:       item.Price,
	}
}

func (d document) item() content.Item {
	return content.Item{
		Kind:        content.Kind(d.Kind),
		ID:          d.ID,
		Title:       d.Title,
		URL:         d.URL,
		Description: d.Description,
		Categories:  d.Categories,
		PublishedAt: d.PublishedAt,
		StartsAt:    d.StartsAt,
		EndsAt:      d.EndsAt,
		Location:    d.Location,
		Price:       d.Price,
	}
}

// docID is the index document id; ids are only unique within a kind.
func docID(kind content.Kind, id string) string {
	return string(kind) + ":" + id
}

// buildSearchBody renders a SearchQuery as a bool query: every search term is
// a should clause and at least one must match.
func buildSearchBody(q content.SearchQuery) map[string]interface{} {
	terms := content.SearchTerms(q.Keywords)

	should := make([]map[string]interface{}, 0, len(terms))
	for _, term := range terms {
		mm := map[string]interface{}{
			"query":  term,
			"fields": searchFields,
		}
		if len(content.Tokens(term)) > 1 {
			mm["type"] = "phrase"
		}
		should = append(should, map[string]interface{}{"multi_match": mm})
	}

	filter := []map[string]interface{}{
		{"term": map[string]interface{}{"kind": string(q.Kind)}},
	}
	if q.Kind == content.KindEvent && !q.UpcomingAfter.IsZero() {
		filter = append(filter, map[string]interface{}{
			"range": map[string]interface{}{
				"starts_at": map[string]interface{}{"gte": q.UpcomingAfter.UTC().Format(time.RFC3339)},
			},
		})
	}

	boolQuery := map[string]interface{}{"filter": filter}
	if len(should) > 0 {
		boolQuery["should"] = should
		boolQuery["minimum_should_match"] = 1
	}

	sort := []map[string]interface{}{{"_score": map[string]interface{}{"order": "desc"}}}
	if q.Kind == content.KindEvent {
		sort = append(sort, map[string]interface{}{"starts_at": map[string]interface{}{"order": "asc"}})
	} else {
		sort = append(sort, map[string]interface{}{"id": map[string]interface{}{"order": "asc"}})
	}

	size := q.Limit
	if size <= 0 {
		size = defaultSize
	}

	return map[string]interface{}{
		"size":  size,
		"query": map[string]interface{}{"bool": boolQuery},
		"sort":  sort,
	}
}

const defaultSize = 100

// indexMapping is the index definition created by EnsureIndex.
func indexMapping() map[string]interface{} {
	text := func() map[string]interface{} {
		return map[string]interface{}{"type": "text", "analyzer": "english"}
	}
	return map[string]interface{}{
		"settings": map[string]interface{}{
			"number_of_shards":   1,
			"number_of_replicas": 0,
		},
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"kind":         map[string]interface{}{"type": "keyword"},
				"id":           map[string]interface{}{"type": "keyword"},
				"title":        text(),
				"description":  text(),
				"categories":   text(),
				"url":          map[string]interface{}{"type": "text", "analyzer": "simple"},
				"published_at": map[string]interface{}{"type": "date"},
				"starts_at":    map[string]interface{}{"type": "date"},
				"ends_at":      map[string]interface{}{"type": "date"},
				"location":     map[string]interface{}{"type": "keyword"},
				"price":        map[string]interface{}{"type": "keyword", "index": false},
			},
		},
	}
}
