package retrieval

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/content"
)

// ScoringWeights are the per-field keyword weights. Keep them multiples of
// 0.5 so the recency boost (capped below 0.25) can only break ties.
type ScoringWeights struct {
	Title       float64
	Description float64
	Category    float64
	URL         float64
}

// DefaultScoringWeights returns title > description > category > url weights.
func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{
		Title:       3.0,
		Description: 1.5,
		Category:    1.0,
		URL:         0.5,
	}
}

// ScorerConfig holds relevance scorer settings.
type ScorerConfig struct {
	Weights ScoringWeights
	// RecencyCap bounds the boost added for RecencyWeight == 1.
	RecencyCap float64
	// HalfLife is the age at which an article's recency weight halves.
	HalfLife time.Duration
	// EventHorizon is how far ahead an event still earns a recency weight.
	EventHorizon time.Duration
	Now          func() time.Time
}

// Scorer ranks evidence by keyword overlap with a bounded recency tie-break.
type Scorer struct {
	config ScorerConfig
}

// NewScorer creates a scorer, filling zero values with defaults.
func NewScorer(cfg ScorerConfig) *Scorer {
	if cfg.Weights == (ScoringWeights{}) {
		cfg.Weights = DefaultScoringWeights()
	}
	if cfg.RecencyCap <= 0 || cfg.RecencyCap >= 0.25 {
		cfg.RecencyCap = 0.2
	}
	if cfg.HalfLife <= 0 {
		cfg.HalfLife = 365 * 24 * time.Hour
	}
	if cfg.EventHorizon <= 0 {
		cfg.EventHorizon = 90 * 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scorer{config: cfg}
}

// BaseScore sums the field weights of every keyword the item matches. A
// phrase keyword counts once per word it contains.
func (s *Scorer) BaseScore(item content.Item, keywords []string) float64 {
	w := s.config.Weights
	title := content.Tokens(item.Title)
	desc := content.Tokens(item.Description)
	url := content.Tokens(item.URL)
	cats := make([][]string, len(item.Categories))
	for i, c := range item.Categories {
		cats[i] = content.Tokens(c)
	}

	score := 0.0
	for _, kw := range keywords {
		kwTokens := strings.Fields(kw)
		if len(kwTokens) == 0 {
			continue
		}
		mult := float64(len(kwTokens))
		if containsSequence(title, kwTokens) {
			score += mult * w.Title
		}
		if containsSequence(desc, kwTokens) {
			score += mult * w.Description
		}
		for _, c := range cats {
			if containsSequence(c, kwTokens) {
				score += mult * w.Category
				break
			}
		}
		if containsSequence(url, kwTokens) {
			score += mult * w.URL
		}
	}
	return score
}

// MaxTitleScore is the score of an item whose title matches every keyword.
// It normalizes top scores into a quality signal.
func (s *Scorer) MaxTitleScore(keywords []string) float64 {
	total := 0.0
	for _, kw := range keywords {
		total += float64(len(strings.Fields(kw))) * s.config.Weights.Title
	}
	return total
}

// RecencyWeight is in [0,1]. Articles, services and products decay
// exponentially with age. Events weigh more the sooner they start.
func (s *Scorer) RecencyWeight(item content.Item) float64 {
	now := s.config.Now()
	if item.Kind == content.KindEvent {
		if item.StartsAt == nil {
			return 0
		}
		until := item.StartsAt.Sub(now)
		if until < 0 {
			return 0
		}
		return clamp01(1 - float64(until)/float64(s.config.EventHorizon))
	}
	if item.PublishedAt == nil {
		return 0
	}
	age := now.Sub(*item.PublishedAt)
	if age <= 0 {
		return 1
	}
	return clamp01(math.Pow(0.5, float64(age)/float64(s.config.HalfLife)))
}

// Rank scores items, drops those matching no keyword (unless there are no
// keywords at all), sorts deterministically and truncates to cap.
func (s *Scorer) Rank(items []content.Item, keywords []string, cap int) []content.Item {
	ranked := make([]content.Item, 0, len(items))
	for _, it := range items {
		base := s.BaseScore(it, keywords)
		if base == 0 && len(keywords) > 0 {
			continue
		}
		it.RecencyWeight = s.RecencyWeight(it)
		it.Score = base + s.config.RecencyCap*it.RecencyWeight
		ranked = append(ranked, it)
	}
	SortItems(ranked)
	if cap > 0 && len(ranked) > cap {
		ranked = ranked[:cap]
	}
	return ranked
}

// SortItems orders by score descending, then title (case-insensitive), then ID.
func SortItems(items []content.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		ti, tj := strings.ToLower(items[i].Title), strings.ToLower(items[j].Title)
		if ti != tj {
			return ti < tj
		}
		return items[i].ID < items[j].ID
	})
}

// containsSequence reports whether needle occurs in hay as consecutive
// tokens, comparing singular variants.
func containsSequence(hay, needle []string) bool {
	if len(needle) == 0 || len(needle) > len(hay) {
		return false
	}
	for i := 0; i+len(needle) <= len(hay); i++ {
		match := true
		for j, n := range needle {
			if !tokensMatch(hay[i+j], n) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func tokensMatch(a, b string) bool {
	if a == b {
		return true
	}
	for _, va := range content.Variants(a) {
		for _, vb := range content.Variants(b) {
			if va == vb {
				return true
			}
		}
	}
	return false
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
