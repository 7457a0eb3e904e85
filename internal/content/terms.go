package content

import (
	"strings"
	"unicode"
)

// Tokens lower-cases s and splits it on anything that is not a letter or digit.
func Tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Variants returns word followed by its plausible singular forms.
func Variants(word string) []string {
	out := []string{word}
	add := func(v string) {
		if len(v) < 3 {
			return
		}
		for _, existing := range out {
			if existing == v {
				return
			}
		}
		out = append(out, v)
	}
	switch {
	case strings.HasSuffix(word, "ies"):
		add(strings.TrimSuffix(word, "ies") + "y")
	case strings.HasSuffix(word, "ss"), strings.HasSuffix(word, "us"), strings.HasSuffix(word, "is"):
	case strings.HasSuffix(word, "es"):
		add(strings.TrimSuffix(word, "s"))
		add(strings.TrimSuffix(word, "es"))
	case strings.HasSuffix(word, "s"):
		add(strings.TrimSuffix(word, "s"))
	}
	return out
}

// SearchTerms expands keywords into the lower-case terms a store should match.
// Phrases are kept whole and single words contribute their variants.
func SearchTerms(keywords []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		terms := []string{k}
		if !strings.ContainsRune(k, ' ') {
			terms = Variants(k)
		}
		for _, t := range terms {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

// Slug renders text as a url slug ("depth of field" -> "depth-of-field").
func Slug(s string) string {
	return strings.Join(Tokens(s), "-")
}
