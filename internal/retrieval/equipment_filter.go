package retrieval

import (
	"strings"

	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/content"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/vocabulary"
)

// EquipmentFilter narrows article candidates to those about the equipment or
// technique a query names.
type EquipmentFilter struct {
	terms [][]string
}

// NewEquipmentFilter builds a filter over the vocabulary's equipment terms.
func NewEquipmentFilter(vocab *vocabulary.Vocabulary) *EquipmentFilter {
	f := &EquipmentFilter{}
	seen := make(map[string]struct{})
	for _, t := range vocab.Equipment {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		f.terms = append(f.terms, strings.Fields(t))
	}
	return f
}

// Detect returns the equipment terms present in the keyword set, in
// vocabulary order. A term counts when it equals a keyword or occurs whole
// inside a phrase keyword.
func (f *EquipmentFilter) Detect(keywords []string) []string {
	var out []string
	for _, term := range f.terms {
		for _, kw := range keywords {
			if containsSequence(strings.Fields(kw), term) {
				out = append(out, strings.Join(term, " "))
				break
			}
		}
	}
	return out
}

// Apply keeps items whose title or url slug contains a detected term. No
// detected terms, or no surviving item, returns the input unchanged.
func (f *EquipmentFilter) Apply(items []content.Item, detected []string) []content.Item {
	if len(detected) == 0 || len(items) == 0 {
		return items
	}
	kept := make([]content.Item, 0, len(items))
	for _, it := range items {
		if matchesEquipment(it, detected) {
			kept = append(kept, it)
		}
	}
	if len(kept) == 0 {
		return items
	}
	return kept
}

func matchesEquipment(it content.Item, detected []string) bool {
	title := content.Tokens(it.Title)
	slug := content.Tokens(it.URL)
	for _, term := range detected {
		words := strings.Fields(term)
		if containsSequence(title, words) || containsSequence(slug, words) {
			return true
		}
	}
	return false
}
