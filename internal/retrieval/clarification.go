package retrieval

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/content"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/query"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/vocabulary"
)

// ClarificationStage is the dialogue state.
type ClarificationStage string

const (
	StageInitial           ClarificationStage = "initial"
	StageAwaitingSelection ClarificationStage = "awaiting_selection"
	StageResolved          ClarificationStage = "resolved"
)

// ClarificationOption is one selectable follow-up. PageContext is what the
// caller echoes back when the option is chosen.
type ClarificationOption struct {
	Text        string            `json:"text"`
	Query       string            `json:"query"`
	Kind        content.Kind      `json:"kind,omitempty"`
	PageContext query.PageContext `json:"pageContext"`
}

// ClarificationState describes where a thread is in the dialogue.
type ClarificationState struct {
	Level         int                   `json:"level"`
	Stage         ClarificationStage    `json:"stage"`
	Options       []ClarificationOption `json:"options,omitempty"`
	OriginalQuery string                `json:"originalQuery"`
	// Forced is set when resolution happened because the depth limit was hit.
	Forced bool `json:"forced,omitempty"`
}

// ClarificationConfig holds dialogue settings.
type ClarificationConfig struct {
	MaxLevel        int
	MaxOptions      int
	TopItemsPerKind int
}

// ClarificationManager is the dialogue state machine:
// initial(0) -> awaiting_selection(1) -> resolved | awaiting_selection(2) -> resolved.
type ClarificationManager struct {
	vocab     *vocabulary.Vocabulary
	threshold float64
	config    ClarificationConfig
}

// NewClarificationManager creates a manager.
func NewClarificationManager(vocab *vocabulary.Vocabulary, threshold float64, cfg ClarificationConfig) *ClarificationManager {
	if cfg.MaxLevel <= 0 {
		cfg.MaxLevel = 2
	}
	if cfg.MaxOptions <= 0 {
		cfg.MaxOptions = 5
	}
	if cfg.TopItemsPerKind <= 0 {
		cfg.TopItemsPerKind = 5
	}
	return &ClarificationManager{vocab: vocab, threshold: threshold, config: cfg}
}

// MaxLevel returns the depth at which resolution is forced.
func (m *ClarificationManager) MaxLevel() int {
	return m.config.MaxLevel
}

// StageFor returns the stage a request arrives in.
func StageFor(level int) ClarificationStage {
	if level <= 0 {
		return StageInitial
	}
	return StageAwaitingSelection
}

// Transition decides the next state for a turn at level with the given
// confidence. It never returns awaiting_selection at or past MaxLevel.
func (m *ClarificationManager) Transition(level int, confidence float64) ClarificationState {
	switch {
	case confidence >= m.threshold:
		return ClarificationState{Level: level, Stage: StageResolved}
	case level >= m.config.MaxLevel:
		return ClarificationState{Level: level, Stage: StageResolved, Forced: true}
	default:
		return ClarificationState{Level: level + 1, Stage: StageAwaitingSelection}
	}
}

// OriginalQuery returns the query that opened the thread.
func OriginalQuery(q query.Query) string {
	if q.PageContext.ClarificationLevel > 0 && q.PageContext.OriginalQuery != "" {
		return q.PageContext.OriginalQuery
	}
	return q.Raw
}

// NextPageContext is the context carried by options offered at this turn.
func (m *ClarificationManager) NextPageContext(q query.Query, nextLevel int, confidence float64) query.PageContext {
	return query.PageContext{
		Page:               q.PageContext.Page,
		ClarificationLevel: nextLevel,
		OriginalQuery:      OriginalQuery(q),
		PriorConfidence:    confidence,
		Extra:              q.PageContext.Extra,
	}
}

// Options builds choices from the evidence actually found. The vocabulary's
// generic options are used only when every bucket is empty.
func (m *ClarificationManager) Options(ev Evidence, next query.PageContext) []ClarificationOption {
	if ev.Total() == 0 {
		out := make([]ClarificationOption, 0, len(m.vocab.GenericOptions))
		for _, o := range m.vocab.GenericOptions {
			out = append(out, ClarificationOption{Text: o.Text, Query: o.Query, PageContext: next})
		}
		return m.limit(out)
	}

	type bucketKey struct {
		kind     content.Kind
		category string
	}
	type candidate struct {
		bucketKey
		count int
		order int
	}
	counts := make(map[bucketKey]*candidate)
	kindOrder := make(map[content.Kind]int, len(content.Kinds))
	for i, k := range content.Kinds {
		kindOrder[k] = i
	}
	for _, kind := range content.Kinds {
		bucket := ev.Bucket(kind)
		if len(bucket) > m.config.TopItemsPerKind {
			bucket = bucket[:m.config.TopItemsPerKind]
		}
		for _, it := range bucket {
			for _, cat := range it.Categories {
				cat = strings.ToLower(strings.TrimSpace(cat))
				if cat == "" {
					continue
				}
				key := bucketKey{kind: kind, category: cat}
				if c, ok := counts[key]; ok {
					c.count++
					continue
				}
				counts[key] = &candidate{bucketKey: key, count: 1, order: kindOrder[kind]}
			}
		}
	}

	cands := make([]*candidate, 0, len(counts))
	for _, c := range counts {
		cands = append(cands, c)
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].count != cands[j].count {
			return cands[i].count > cands[j].count
		}
		if cands[i].category != cands[j].category {
			return cands[i].category < cands[j].category
		}
		return cands[i].order < cands[j].order
	})

	var out []ClarificationOption
	seen := make(map[string]struct{})
	for _, c := range cands {
		noun := m.vocab.KindNoun(string(c.kind))
		q := c.category + " " + noun
		if strings.Contains(" "+c.category+" ", " "+noun+" ") || m.vocab.IsGeneric(c.category) {
			q = c.category
		}
		if _, dup := seen[q]; dup {
			continue
		}
		seen[q] = struct{}{}
		out = append(out, ClarificationOption{
			Text:        capitalize(q),
			Query:       q,
			Kind:        c.kind,
			PageContext: next,
		})
	}

	// Evidence without categories: offer the top titles instead.
	if len(out) == 0 {
		for _, kind := range content.Kinds {
			for _, it := range ev.Bucket(kind) {
				q := strings.ToLower(it.Title)
				if _, dup := seen[q]; dup || q == "" {
					continue
				}
				seen[q] = struct{}{}
				out = append(out, ClarificationOption{Text: it.Title, Query: q, Kind: kind, PageContext: next})
				break
			}
		}
	}
	return m.limit(out)
}

func (m *ClarificationManager) limit(opts []ClarificationOption) []ClarificationOption {
	if len(opts) > m.config.MaxOptions {
		return opts[:m.config.MaxOptions]
	}
	return opts
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
