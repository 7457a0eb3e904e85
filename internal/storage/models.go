// Package storage provides the SQL content store for the catalog assistant.
package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/content"
)

// ContentRecord is one row of the content_items table. Times are unix seconds
// so SQLite and Postgres share a schema.
type ContentRecord struct {
	Kind        string
	ID          string
	Title       string
	URL         string
	Description string
	Categories  string // JSON array
	PublishedAt *int64
	StartsAt    *int64
	EndsAt      *int64
	Location    string
	Price       string
	SearchText  string
	UpdatedAt   int64
}

// NewContentRecord converts an item into its row form.
func NewContentRecord(item content.Item) (ContentRecord, error) {
	cats := item.Categories
	if cats == nil {
		cats = []string{}
	}
	encoded, err := json.Marshal(cats)
	if err != nil {
		return ContentRecord{}, fmt.Errorf("encode categories: %w", err)
	}
	return ContentRecord{
		Kind:        string(item.Kind),
		ID:          item.ID,
		Title:       item.Title,
		URL:         item.URL,
		Description: item.Description,
		Categories:  string(encoded),
		PublishedAt: unixPtr(item.PublishedAt),
		StartsAt:    unixPtr(item.StartsAt),
		EndsAt:      unixPtr(item.EndsAt),
		Location:    item.Location,
		Price:       item.Price,
		SearchText:  SearchText(item),
		UpdatedAt:   time.Now().Unix(),
	}, nil
}

// Item converts the row back to an evidence item.
func (r ContentRecord) Item() (content.Item, error) {
	var cats []string
	if r.Categories != "" {
		if err := json.Unmarshal([]byte(r.Categories), &cats); err != nil {
			return content.Item{}, fmt.Errorf("decode categories of %s/%s: %w", r.Kind, r.ID, err)
		}
	}
	return content.Item{
		Kind:        content.Kind(r.Kind),
		ID:          r.ID,
		Title:       r.Title,
		URL:         r.URL,
		Description: r.Description,
		Categories:  cats,
		PublishedAt: timePtr(r.PublishedAt),
		StartsAt:    timePtr(r.StartsAt),
		EndsAt:      timePtr(r.EndsAt),
		Location:    r.Location,
		Price:       r.Price,
	}, nil
}

// SearchText is the lower-case haystack keyword matching runs against.
func SearchText(item content.Item) string {
	parts := []string{item.Title, item.Description, strings.Join(item.Categories, " "), item.URL}
	return strings.ToLower(strings.Join(strings.Fields(strings.Join(parts, " ")), " "))
}

func unixPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	v := t.Unix()
	return &v
}

func timePtr(v *int64) *time.Time {
	if v == nil {
		return nil
	}
	t := time.Unix(*v, 0).UTC()
	return &t
}
