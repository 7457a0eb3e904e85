// Package query turns raw visitor questions into normalized, keyword-bearing
// queries. A Query is built only by Extractor.Extract and is not mutated afterwards.
package query

import (
	"encoding/json"
)

// PageContext is the conversational state echoed by the caller on each turn.
// Keys that are not recognized are preserved in Extra.
type PageContext struct {
	Page               string
	ClarificationLevel int
	OriginalQuery      string
	PriorConfidence    float64
	Extra              map[string]any
}

const (
	keyPage               = "page"
	keyClarificationLevel = "clarificationLevel"
	keyOriginalQuery      = "originalQuery"
	keyPriorConfidence    = "priorConfidence"
)

// IsZero reports whether the context carries no information.
func (p PageContext) IsZero() bool {
	return p.Page == "" && p.ClarificationLevel == 0 && p.OriginalQuery == "" &&
		p.PriorConfidence == 0 && len(p.Extra) == 0
}

// MarshalJSON flattens Extra next to the known keys.
func (p PageContext) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Extra)+4)
	for k, v := range p.Extra {
		out[k] = v
	}
	if p.Page != "" {
		out[keyPage] = p.Page
	}
	out[keyClarificationLevel] = p.ClarificationLevel
	if p.OriginalQuery != "" {
		out[keyOriginalQuery] = p.OriginalQuery
	}
	if p.PriorConfidence > 0 {
		out[keyPriorConfidence] = p.PriorConfidence
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts any object. Wrongly typed known keys are ignored.
func (p *PageContext) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = PageContext{}
	for k, v := range raw {
		switch k {
		case keyPage:
			if s, ok := v.(string); ok {
				p.Page = s
			}
		case keyClarificationLevel:
			if f, ok := v.(float64); ok && f >= 0 {
				p.ClarificationLevel = int(f)
			}
		case keyOriginalQuery:
			if s, ok := v.(string); ok {
				p.OriginalQuery = s
			}
		case keyPriorConfidence:
			if f, ok := v.(float64); ok && f >= 0 && f <= 1 {
				p.PriorConfidence = f
			}
		default:
			if p.Extra == nil {
				p.Extra = make(map[string]any)
			}
			p.Extra[k] = v
		}
	}
	return nil
}

// Query is one extracted visitor question.
type Query struct {
	Raw           string
	Normalized    string
	PreviousQuery string
	PageContext   PageContext

	keywords []string
}

// Keywords returns a copy of the ordered, deduplicated keyword set.
func (q Query) Keywords() []string {
	out := make([]string, len(q.keywords))
	copy(out, q.keywords)
	return out
}

// HasKeywords reports whether extraction produced at least one keyword.
func (q Query) HasKeywords() bool {
	return len(q.keywords) > 0
}

// IsFollowUp reports whether the query continues an earlier turn.
func (q Query) IsFollowUp() bool {
	return q.PreviousQuery != "" || q.PageContext.ClarificationLevel > 0
}
