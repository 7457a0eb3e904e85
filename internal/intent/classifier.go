// Package intent maps a normalized question to the coarse intent that drives
// which evidence dominates the answer.
package intent

import (
	"strings"

	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/vocabulary"
)

// Intent is the coarse category of a question.
type Intent string

const (
	Events Intent = "events"
	Advice Intent = "advice"
)

// Rule names, in evaluation order.
const (
	RuleFreeOnline     = "free_online"
	RuleCourseTerms    = "course_terms"
	RuleAdviceTerms    = "advice_terms"
	RuleWhenWhereEvent = "when_where_event"
	RuleFollowUpDetail = "follow_up_detail"
	RuleDefault        = "default"
)

// Signals is the lexical view of a query a rule predicate inspects.
type Signals struct {
	padded   string
	keywords map[string]struct{}
}

// NewSignals builds signals from normalized text and its keyword set.
func NewSignals(normalized string, keywords []string) Signals {
	s := Signals{
		padded:   " " + normalized + " ",
		keywords: make(map[string]struct{}, len(keywords)),
	}
	for _, k := range keywords {
		s.keywords[k] = struct{}{}
	}
	return s
}

// Has reports whether term occurs as whole words in the text or as a keyword.
func (s Signals) Has(term string) bool {
	if _, ok := s.keywords[term]; ok {
		return true
	}
	return strings.Contains(s.padded, " "+term+" ")
}

// HasAny reports whether any of the terms is present.
func (s Signals) HasAny(terms ...[]string) bool {
	for _, list := range terms {
		for _, t := range list {
			if s.Has(t) {
				return true
			}
		}
	}
	return false
}

// Rule maps a predicate to an intent. Rules are evaluated in order and the
// first match wins.
type Rule struct {
	Name      string
	Predicate func(Signals) bool
	Intent    Intent
	Certainty float64
	Uncertain bool
}

// Result is the outcome of classification.
type Result struct {
	Intent    Intent
	Certainty float64
	// Uncertain marks a default classification, which routes to clarification.
	Uncertain bool
	Rule      string
}

// Classifier evaluates an ordered rule list.
type Classifier struct {
	rules []Rule
}

// NewClassifier builds the rule list from the vocabulary's intent cues.
func NewClassifier(vocab *vocabulary.Vocabulary) *Classifier {
	cues := vocab.Intent
	return &Classifier{rules: []Rule{
		{
			Name: RuleFreeOnline,
			Predicate: func(s Signals) bool {
				if s.Has("free") && s.Has("online") {
					return true
				}
				return s.HasAny(cues.FreeQualifiers) && s.HasAny(cues.CourseTerms, cues.EventNouns)
			},
			Intent:    Advice,
			Certainty: 0.9,
		},
		{
			Name:      RuleCourseTerms,
			Predicate: func(s Signals) bool { return s.HasAny(cues.CourseTerms) },
			Intent:    Events,
			Certainty: 0.9,
		},
		{
			Name: RuleAdviceTerms,
			Predicate: func(s Signals) bool {
				return s.HasAny(cues.AdvicePhrases, cues.AdviceTerms, vocab.Equipment)
			},
			Intent:    Advice,
			Certainty: 0.85,
		},
		{
			Name: RuleWhenWhereEvent,
			Predicate: func(s Signals) bool {
				return s.HasAny(cues.Interrogatives) && s.HasAny(cues.EventNouns)
			},
			Intent:    Events,
			Certainty: 0.8,
		},
		{
			Name:      RuleFollowUpDetail,
			Predicate: func(s Signals) bool { return s.HasAny(cues.FollowUpTerms) },
			Intent:    Events,
			Certainty: 0.7,
		},
		{
			Name:      RuleDefault,
			Predicate: func(Signals) bool { return true },
			Intent:    Advice,
			Certainty: 0.4,
			Uncertain: true,
		},
	}}
}

// Rules returns the ordered rule list.
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// Classify returns the result of the first matching rule.
func (c *Classifier) Classify(normalized string, keywords []string) Result {
	signals := NewSignals(normalized, keywords)
	for _, r := range c.rules {
		if r.Predicate(signals) {
			return Result{
				Intent:    r.Intent,
				Certainty: r.Certainty,
				Uncertain: r.Uncertain,
				Rule:      r.Name,
			}
		}
	}
	// unreachable: the default rule always matches
	return Result{Intent: Advice, Uncertain: true, Rule: RuleDefault}
}
