package query

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/vocabulary"
)

// Extractor normalizes questions and pulls out salient keywords.
type Extractor struct {
	vocab          *vocabulary.Vocabulary
	phrases        [][]string
	tokenSynonyms  map[string]string
	phraseSynonyms [][2]string
}

// NewExtractor creates an extractor over the given vocabulary.
func NewExtractor(vocab *vocabulary.Vocabulary) *Extractor {
	e := &Extractor{
		vocab:         vocab,
		tokenSynonyms: make(map[string]string),
	}
	for _, p := range vocab.TopicPhrases() {
		e.phrases = append(e.phrases, strings.Fields(p))
	}
	for _, pair := range vocab.SynonymPairs() {
		from := pair[0]
		if strings.ContainsRune(from, ' ') {
			e.phraseSynonyms = append(e.phraseSynonyms, [2]string{stripPunct(from), pair[1]})
			continue
		}
		e.tokenSynonyms[from] = pair[1]
	}
	return e
}

// Extract builds a Query. Keywords of previous (or, failing that, the
// clarification's original query) are appended after the current ones.
func (e *Extractor) Extract(raw, previous string, pc PageContext) Query {
	q := Query{
		Raw:           raw,
		Normalized:    e.Normalize(raw),
		PreviousQuery: previous,
		PageContext:   pc,
	}
	q.keywords = e.Keywords(q.Normalized)

	history := previous
	if history == "" && pc.ClarificationLevel > 0 {
		history = pc.OriginalQuery
	}
	if history != "" {
		q.keywords = union(q.keywords, e.Keywords(e.Normalize(history)))
	}
	return q
}

// Normalize folds compatibility forms and diacritics, lower-cases, collapses
// synonyms and replaces punctuation with single spaces.
func (e *Extractor) Normalize(raw string) string {
	s := norm.NFKC.String(raw)
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(stripMarks, s); err == nil {
		s = folded
	}
	s = strings.ToLower(s)

	fields := strings.Fields(s)
	for i, f := range fields {
		f = strings.TrimFunc(f, isPunct)
		if to, ok := e.tokenSynonyms[f]; ok {
			f = to
		}
		fields[i] = f
	}

	s = " " + strings.Join(strings.Fields(stripPunct(strings.Join(fields, " "))), " ") + " "
	for _, syn := range e.phraseSynonyms {
		s = strings.ReplaceAll(s, " "+syn[0]+" ", " "+syn[1]+" ")
	}
	return strings.Join(strings.Fields(s), " ")
}

// Keywords extracts the ordered keyword set from already normalized text.
// Vocabulary phrases are matched before tokenization and emitted whole.
func (e *Extractor) Keywords(normalized string) []string {
	tokens := strings.Fields(normalized)
	out := make([]string, 0, len(tokens))
	seen := make(map[string]struct{}, len(tokens))
	add := func(k string) {
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}

	for i := 0; i < len(tokens); {
		if n := e.phraseAt(tokens, i); n > 0 {
			add(strings.Join(tokens[i:i+n], " "))
			i += n
			continue
		}
		if e.keepToken(tokens[i]) {
			add(tokens[i])
		}
		i++
	}
	return out
}

// phraseAt returns the word count of the longest vocabulary phrase starting at i.
func (e *Extractor) phraseAt(tokens []string, i int) int {
	for _, p := range e.phrases {
		if len(p) < 2 || i+len(p) > len(tokens) {
			continue
		}
		match := true
		for j, w := range p {
			if tokens[i+j] != w {
				match = false
				break
			}
		}
		if match {
			return len(p)
		}
	}
	return 0
}

func (e *Extractor) keepToken(tok string) bool {
	if e.vocab.IsStopWord(tok) {
		return false
	}
	if len(tok) >= 4 {
		return true
	}
	return e.vocab.IsShortTerm(tok)
}

func union(first, second []string) []string {
	out := make([]string, 0, len(first)+len(second))
	seen := make(map[string]struct{}, len(first)+len(second))
	for _, list := range [][]string{first, second} {
		for _, k := range list {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}

func isPunct(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r)
}

func stripPunct(s string) string {
	return strings.Map(func(r rune) rune {
		if isPunct(r) {
			return ' '
		}
		return r
	}, s)
}
