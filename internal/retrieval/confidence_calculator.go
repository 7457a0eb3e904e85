package retrieval

import (
	"math"

	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/content"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/intent"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/vocabulary"
)

// Tier is the discrete band of a confidence value, used only for branching.
type Tier string

const (
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

// Confidence pairs a scalar in [0,1] with its tier.
type Confidence struct {
	Value float64
	Tier  Tier
}

// ConfidenceInput is everything the calculator looks at.
type ConfidenceInput struct {
	Intent          intent.Result
	Evidence        Evidence
	Keywords        []string
	MaxScore        float64
	Level           int
	PriorConfidence float64
	TemplateMatched bool
}

// ConfidenceCalculator calculates weighted confidence scores.
type ConfidenceCalculator struct {
	vocab   *vocabulary.Vocabulary
	weights struct {
		certainty   float64
		quality     float64
		quantity    float64
		specificity float64
		level       float64
	}
	threshold     float64
	highThreshold float64
	uncertainCap  float64
	templateFloor float64
	emptyCap      float64
}

// NewConfidenceCalculator creates a calculator with default weights.
func NewConfidenceCalculator(vocab *vocabulary.Vocabulary, threshold float64) *ConfidenceCalculator {
	return NewConfidenceCalculatorWithWeights(vocab, threshold, 0.30, 0.35, 0.15, 0.20)
}

// NewConfidenceCalculatorWithWeights creates a calculator with custom weights.
// The four weights are normalized to sum to 1.0.
func NewConfidenceCalculatorWithWeights(vocab *vocabulary.Vocabulary, threshold, certainty, quality, quantity, specificity float64) *ConfidenceCalculator {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.6
	}
	total := certainty + quality + quantity + specificity
	if total > 0 {
		certainty /= total
		quality /= total
		quantity /= total
		specificity /= total
	}
	cc := &ConfidenceCalculator{
		vocab:         vocab,
		threshold:     threshold,
		highThreshold: math.Max(0.8, threshold),
		templateFloor: 0.85,
		emptyCap:      0.2,
	}
	// Uncertain classifications stay below the threshold at the first turn.
	cc.uncertainCap = math.Min(0.45, threshold-0.05)
	cc.weights.certainty = certainty
	cc.weights.quality = quality
	cc.weights.quantity = quantity
	cc.weights.specificity = specificity
	cc.weights.level = 0.05
	return cc
}

// Threshold returns the direct-answer threshold.
func (cc *ConfidenceCalculator) Threshold() float64 {
	return cc.threshold
}

// PrimaryKinds are the evidence kinds that support an intent directly.
func PrimaryKinds(i intent.Intent) []content.Kind {
	if i == intent.Events {
		return []content.Kind{content.KindEvent}
	}
	return []content.Kind{content.KindArticle, content.KindService, content.KindProduct}
}

// Calculate derives the confidence for one turn. From level 1 on the result
// never drops below the prior turn's confidence.
func (cc *ConfidenceCalculator) Calculate(in ConfidenceInput) Confidence {
	var top float64
	hits := 0
	for _, kind := range PrimaryKinds(in.Intent.Intent) {
		bucket := in.Evidence.Bucket(kind)
		hits += len(bucket)
		if len(bucket) > 0 && bucket[0].Score > top {
			top = bucket[0].Score
		}
	}

	quality := 0.0
	if in.MaxScore > 0 {
		quality = clamp01(top / in.MaxScore)
	} else if hits > 0 {
		// broad retrieval: no keywords to measure against
		quality = 0.5
	}
	quantity := math.Min(float64(hits), 3) / 3

	specific := 0
	for _, kw := range in.Keywords {
		if cc.vocab == nil || !cc.vocab.IsGeneric(kw) {
			specific++
		}
	}
	specificity := math.Min(float64(specific), 2) / 2

	value := cc.weights.certainty*in.Intent.Certainty +
		cc.weights.quality*quality +
		cc.weights.quantity*quantity +
		cc.weights.specificity*specificity +
		cc.weights.level*float64(in.Level)

	if in.Intent.Uncertain && in.Level == 0 {
		value = math.Min(value, cc.uncertainCap)
	}
	if in.Evidence.Total() == 0 && !in.TemplateMatched {
		value = math.Min(value, cc.emptyCap)
	}
	if in.TemplateMatched && in.Intent.Intent == intent.Advice {
		value = math.Max(value, cc.templateFloor)
	}
	value = clamp01(value)

	if in.Level > 0 {
		value = math.Max(value, clamp01(in.PriorConfidence))
	}

	return Confidence{Value: value, Tier: cc.Tier(value)}
}

// Tier maps a value to its band.
func (cc *ConfidenceCalculator) Tier(value float64) Tier {
	switch {
	case value >= cc.highThreshold:
		return TierHigh
	case value >= cc.threshold:
		return TierMedium
	default:
		return TierLow
	}
}
