package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/content"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/intent"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/vocabulary"
)

func scoredItems(kind content.Kind, scores ...float64) []content.Item {
	out := make([]content.Item, len(scores))
	for i, s := range scores {
		out[i] = content.Item{Kind: kind, ID: string(kind) + string(rune('a'+i)), Score: s}
	}
	return out
}

func TestConfidenceCalculator_Events(t *testing.T) {
	calc := NewConfidenceCalculator(vocabulary.Default(), 0.6)

	conf := calc.Calculate(ConfidenceInput{
		Intent:   intent.Result{Intent: intent.Events, Certainty: 0.9, Rule: intent.RuleCourseTerms},
		Evidence: Evidence{Events: scoredItems(content.KindEvent, 6.0, 5.0)},
		Keywords: []string{"bluebell", "workshops"},
		MaxScore: 6.0,
	})

	// 0.30*0.9 + 0.35*1 + 0.15*(2/3) + 0.20*0.5
	assert.InDelta(t, 0.82, conf.Value, 1e-9)
	assert.Equal(t, TierHigh, conf.Tier)
}

func TestConfidenceCalculator_PrimaryKindsOnly(t *testing.T) {
	calc := NewConfidenceCalculator(vocabulary.Default(), 0.6)
	ev := Evidence{Events: scoredItems(content.KindEvent, 6.0, 6.0, 6.0)}
	in := ConfidenceInput{
		Intent:   intent.Result{Intent: intent.Advice, Certainty: 0.85},
		Evidence: ev,
		Keywords: []string{"tripod"},
		MaxScore: 3.0,
	}

	// events do not support an advice answer: 0.30*0.85 + 0.20*0.5
	assert.InDelta(t, 0.355, calc.Calculate(in).Value, 1e-9)
	assert.Equal(t, []content.Kind{content.KindEvent}, PrimaryKinds(intent.Events))
	assert.Equal(t, []content.Kind{content.KindArticle, content.KindService, content.KindProduct}, PrimaryKinds(intent.Advice))
}

func TestConfidenceCalculator_UncertainCappedAtFirstTurn(t *testing.T) {
	calc := NewConfidenceCalculator(vocabulary.Default(), 0.6)
	in := ConfidenceInput{
		Intent:   intent.Result{Intent: intent.Advice, Certainty: 0.4, Uncertain: true, Rule: intent.RuleDefault},
		Evidence: Evidence{Articles: scoredItems(content.KindArticle, 9, 9, 9)},
		Keywords: []string{"landscape", "tripod"},
		MaxScore: 6,
	}

	first := calc.Calculate(in)
	assert.InDelta(t, 0.45, first.Value, 1e-9)
	assert.Equal(t, TierLow, first.Tier)

	in.Level = 1
	second := calc.Calculate(in)
	// 0.30*0.4 + 0.35 + 0.15 + 0.20 + 0.05
	assert.InDelta(t, 0.87, second.Value, 1e-9)
}

func TestConfidenceCalculator_EmptyEvidence(t *testing.T) {
	calc := NewConfidenceCalculator(vocabulary.Default(), 0.6)
	conf := calc.Calculate(ConfidenceInput{
		Intent:   intent.Result{Intent: intent.Events, Certainty: 0.9},
		Keywords: []string{"underwater", "drone"},
		MaxScore: 6,
	})
	assert.LessOrEqual(t, conf.Value, 0.2)
	assert.Equal(t, TierLow, conf.Tier)
}

func TestConfidenceCalculator_TemplateFloor(t *testing.T) {
	calc := NewConfidenceCalculator(vocabulary.Default(), 0.6)

	conf := calc.Calculate(ConfidenceInput{
		Intent:          intent.Result{Intent: intent.Advice, Certainty: 0.85},
		Keywords:        []string{"exposure triangle"},
		MaxScore:        6,
		TemplateMatched: true,
	})
	assert.InDelta(t, 0.85, conf.Value, 1e-9)
	assert.Equal(t, TierHigh, conf.Tier)

	// the floor is an advice concept
	events := calc.Calculate(ConfidenceInput{
		Intent:          intent.Result{Intent: intent.Events, Certainty: 0.9},
		Keywords:        []string{"exposure triangle"},
		MaxScore:        6,
		TemplateMatched: true,
	})
	assert.Less(t, events.Value, 0.85)
}

func TestConfidenceCalculator_MonotonicAcrossLevels(t *testing.T) {
	calc := NewConfidenceCalculator(vocabulary.Default(), 0.6)
	weak := ConfidenceInput{
		Intent:   intent.Result{Intent: intent.Advice, Certainty: 0.4, Uncertain: true},
		Keywords: []string{"photography"},
		MaxScore: 3,
	}

	prior := 0.0
	for level := 0; level <= 2; level++ {
		weak.Level = level
		weak.PriorConfidence = prior
		conf := calc.Calculate(weak)
		assert.GreaterOrEqual(t, conf.Value, prior, "level %d", level)
		prior = conf.Value
	}

	weak.Level = 1
	weak.PriorConfidence = 0.7
	assert.InDelta(t, 0.7, calc.Calculate(weak).Value, 1e-9)
}

func TestConfidenceCalculator_NoKeywordsWithEvidence(t *testing.T) {
	calc := NewConfidenceCalculator(vocabulary.Default(), 0.6)
	conf := calc.Calculate(ConfidenceInput{
		Intent:   intent.Result{Intent: intent.Events, Certainty: 0.9},
		Evidence: Evidence{Events: scoredItems(content.KindEvent, 0.2, 0.1, 0.1)},
	})
	// 0.30*0.9 + 0.35*0.5 + 0.15
	assert.InDelta(t, 0.595, conf.Value, 1e-9)
}

func TestConfidenceCalculator_Tiers(t *testing.T) {
	tests := []struct {
		threshold float64
		value     float64
		want      Tier
	}{
		{0.6, 0.59, TierLow},
		{0.6, 0.6, TierMedium},
		{0.6, 0.79, TierMedium},
		{0.6, 0.8, TierHigh},
		{0.85, 0.82, TierLow},
		{0.85, 0.86, TierHigh},
	}
	for _, tt := range tests {
		calc := NewConfidenceCalculator(vocabulary.Default(), tt.threshold)
		assert.Equal(t, tt.want, calc.Tier(tt.value), "threshold %.2f value %.2f", tt.threshold, tt.value)
	}
}

func TestConfidenceCalculator_WeightsNormalized(t *testing.T) {
	vocab := vocabulary.Default()
	in := ConfidenceInput{
		Intent:   intent.Result{Intent: intent.Events, Certainty: 0.9},
		Evidence: Evidence{Events: scoredItems(content.KindEvent, 3)},
		Keywords: []string{"bluebell"},
		MaxScore: 6,
	}
	base := NewConfidenceCalculator(vocab, 0.6).Calculate(in)
	scaled := NewConfidenceCalculatorWithWeights(vocab, 0.6, 3, 3.5, 1.5, 2).Calculate(in)
	assert.InDelta(t, base.Value, scaled.Value, 1e-9)

	assert.Equal(t, 0.6, NewConfidenceCalculator(vocab, 0).Threshold())
}
