// Package vocabulary holds the word lists, concept templates and canned texts
// that drive query understanding. A Vocabulary is loaded once at startup and
// is read-only afterwards, so it is safe to share between goroutines.
package vocabulary

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// ErrInvalid is returned when a vocabulary document fails validation.
var ErrInvalid = errors.New("invalid vocabulary")

// IntentCues are the lexical cues consulted by the intent classifier.
type IntentCues struct {
	FreeQualifiers []string `yaml:"free_qualifiers"`
	CourseTerms    []string `yaml:"course_terms"`
	AdviceTerms    []string `yaml:"advice_terms"`
	AdvicePhrases  []string `yaml:"advice_phrases"`
	Interrogatives []string `yaml:"interrogatives"`
	EventNouns     []string `yaml:"event_nouns"`
	FollowUpTerms  []string `yaml:"follow_up_terms"`
}

// Concept is a well-known technical topic with a prepared answer.
type Concept struct {
	Name    string   `yaml:"name"`
	Phrases []string `yaml:"phrases"`
	Answer  string   `yaml:"answer"`
}

// Option is a canned clarification choice.
type Option struct {
	Text  string `yaml:"text" json:"text"`
	Query string `yaml:"query" json:"query"`
}

// Vocabulary is the immutable configuration data behind extraction,
// classification and composition.
type Vocabulary struct {
	Synonyms            map[string]string `yaml:"synonyms"`
	Phrases             []string          `yaml:"phrases"`
	StopWords           []string          `yaml:"stop_words"`
	ShortTerms          []string          `yaml:"short_terms"`
	GenericTerms        []string          `yaml:"generic_terms"`
	Equipment           []string          `yaml:"equipment"`
	Intent              IntentCues        `yaml:"intent"`
	KindNouns           map[string]string `yaml:"kind_nouns"`
	ClarificationPrompt string            `yaml:"clarification_prompt"`
	GenericOptions      []Option          `yaml:"generic_options"`
	FallbackAnswer      string            `yaml:"fallback_answer"`
	Concepts            []Concept         `yaml:"concepts"`

	stop     map[string]struct{}
	short    map[string]struct{}
	generic  map[string]struct{}
	phrases  []string
	synonyms []synonym
}

type synonym struct {
	from, to string
}

// Default returns the embedded vocabulary.
func Default() *Vocabulary {
	v, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded vocabulary: %v", err))
	}
	return v
}

// Load reads a vocabulary file. An empty path yields the embedded default.
func Load(path string) (*Vocabulary, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML vocabulary document.
func Parse(data []byte) (*Vocabulary, error) {
	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parse vocabulary: %w", err)
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	v.index()
	return &v, nil
}

// Validate checks the structural rules every vocabulary must satisfy.
func (v *Vocabulary) Validate() error {
	if len(v.Phrases) == 0 {
		return fmt.Errorf("%w: phrases must not be empty", ErrInvalid)
	}
	if strings.TrimSpace(v.FallbackAnswer) == "" {
		return fmt.Errorf("%w: fallback_answer is required", ErrInvalid)
	}
	lists := map[string][]string{
		"phrases":       v.Phrases,
		"stop_words":    v.StopWords,
		"short_terms":   v.ShortTerms,
		"generic_terms": v.GenericTerms,
		"equipment":     v.Equipment,
		"course_terms":  v.Intent.CourseTerms,
		"advice_terms":  v.Intent.AdviceTerms,
	}
	for name, list := range lists {
		for _, entry := range list {
			if entry != strings.ToLower(entry) || strings.TrimSpace(entry) != entry || entry == "" {
				return fmt.Errorf("%w: %s entry %q must be trimmed lower case", ErrInvalid, name, entry)
			}
		}
	}
	seen := make(map[string]struct{}, len(v.Concepts))
	for _, c := range v.Concepts {
		if c.Name == "" || c.Answer == "" || len(c.Phrases) == 0 {
			return fmt.Errorf("%w: concept %q needs a name, phrases and an answer", ErrInvalid, c.Name)
		}
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("%w: duplicate concept %q", ErrInvalid, c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	return nil
}

func (v *Vocabulary) index() {
	v.stop = toSet(v.StopWords)
	v.short = toSet(v.ShortTerms)
	v.generic = toSet(v.GenericTerms)

	// Multi-word equipment terms are matched whole like topic phrases.
	topics := append([]string(nil), v.Phrases...)
	for _, term := range v.Equipment {
		if WordCount(term) >= 2 {
			topics = append(topics, term)
		}
	}
	v.phrases = dedupe(topics)
	sort.SliceStable(v.phrases, func(i, j int) bool {
		wi, wj := WordCount(v.phrases[i]), WordCount(v.phrases[j])
		if wi != wj {
			return wi > wj
		}
		if len(v.phrases[i]) != len(v.phrases[j]) {
			return len(v.phrases[i]) > len(v.phrases[j])
		}
		return v.phrases[i] < v.phrases[j]
	})

	v.synonyms = v.synonyms[:0]
	for from, to := range v.Synonyms {
		v.synonyms = append(v.synonyms, synonym{from: strings.ToLower(from), to: strings.ToLower(to)})
	}
	sort.Slice(v.synonyms, func(i, j int) bool {
		if len(v.synonyms[i].from) != len(v.synonyms[j].from) {
			return len(v.synonyms[i].from) > len(v.synonyms[j].from)
		}
		return v.synonyms[i].from < v.synonyms[j].from
	})
}

// IsStopWord reports whether token is ignored by keyword extraction.
func (v *Vocabulary) IsStopWord(token string) bool {
	_, ok := v.stop[token]
	return ok
}

// IsShortTerm reports whether a short token is a recognized technical term.
func (v *Vocabulary) IsShortTerm(token string) bool {
	_, ok := v.short[token]
	return ok
}

// IsGeneric reports whether a keyword carries little topical specificity.
func (v *Vocabulary) IsGeneric(keyword string) bool {
	_, ok := v.generic[keyword]
	return ok
}

// TopicPhrases returns the multi-word phrases ordered longest first.
func (v *Vocabulary) TopicPhrases() []string {
	out := make([]string, len(v.phrases))
	copy(out, v.phrases)
	return out
}

// SynonymPairs returns the synonym rewrites ordered by descending source length.
func (v *Vocabulary) SynonymPairs() [][2]string {
	out := make([][2]string, len(v.synonyms))
	for i, s := range v.synonyms {
		out[i] = [2]string{s.from, s.to}
	}
	return out
}

// KindNoun returns the plural noun used for a content kind in option text.
func (v *Vocabulary) KindNoun(kind string) string {
	if n, ok := v.KindNouns[kind]; ok && n != "" {
		return n
	}
	return kind + "s"
}

// MatchConcept returns the first concept with a trigger phrase present in
// the normalized text or equal to one of the keywords.
func (v *Vocabulary) MatchConcept(normalized string, keywords []string) (Concept, bool) {
	padded := " " + normalized + " "
	for _, c := range v.Concepts {
		for _, p := range c.Phrases {
			if strings.Contains(padded, " "+p+" ") {
				return c, true
			}
			for _, k := range keywords {
				if k == p {
					return c, true
				}
			}
		}
	}
	return Concept{}, false
}

// WordCount returns the number of space separated words in s.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

func toSet(list []string) map[string]struct{} {
	set := make(map[string]struct{}, len(list))
	for _, s := range list {
		set[s] = struct{}{}
	}
	return set
}

func dedupe(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, s := range list {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
