package vocabulary

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	v := Default()

	assert.True(t, v.IsStopWord("the"))
	assert.False(t, v.IsStopWord("tripod"))
	assert.True(t, v.IsShortTerm("iso"))
	assert.True(t, v.IsGeneric("photography"))
	assert.NotEmpty(t, v.FallbackAnswer)
	assert.NotEmpty(t, v.GenericOptions)
	assert.Equal(t, "workshops", v.KindNoun("event"))
	assert.Equal(t, "tips", v.KindNoun("article"))
	assert.Equal(t, "widgets", v.KindNoun("widget"))
}

func TestTopicPhrases_LongestFirst(t *testing.T) {
	phrases := Default().TopicPhrases()
	require.NotEmpty(t, phrases)

	for i := 1; i < len(phrases); i++ {
		assert.GreaterOrEqual(t, WordCount(phrases[i-1]), WordCount(phrases[i]),
			"%q should not precede %q", phrases[i-1], phrases[i])
	}
	assert.Contains(t, phrases, "depth of field")
	assert.Contains(t, phrases, "remote release")
	assert.Contains(t, phrases, "camera bag")
}

func TestTopicPhrases_ReturnsCopy(t *testing.T) {
	v := Default()
	phrases := v.TopicPhrases()
	phrases[0] = "mutated"
	assert.NotEqual(t, "mutated", v.TopicPhrases()[0])
}

func TestMatchConcept(t *testing.T) {
	v := Default()

	c, ok := v.MatchConcept("what is the exposure triangle", nil)
	require.True(t, ok)
	assert.Equal(t, "exposure triangle", c.Name)

	c, ok = v.MatchConcept("explain it", []string{"depth of field"})
	require.True(t, ok)
	assert.Equal(t, "depth of field", c.Name)

	_, ok = v.MatchConcept("bluebell workshops", []string{"bluebell", "workshops"})
	assert.False(t, ok)
}

func TestParse_Validation(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"no phrases", "fallback_answer: sorry\n"},
		{"no fallback", "phrases: [golden hour]\n"},
		{"upper case entry", "fallback_answer: sorry\nphrases: [Golden Hour]\n"},
		{"duplicate concept", `fallback_answer: sorry
phrases: [golden hour]
concepts:
  - {name: iso, phrases: [iso], answer: a}
  - {name: iso, phrases: [iso], answer: b}
`},
		{"concept without answer", `fallback_answer: sorry
phrases: [golden hour]
concepts:
  - {name: iso, phrases: [iso]}
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoad(t *testing.T) {
	v, err := Load("")
	require.NoError(t, err)
	assert.NotEmpty(t, v.Phrases)

	path := filepath.Join(t.TempDir(), "vocab.yaml")
	doc := `fallback_answer: nothing found
phrases: [golden hour, blue hour]
synonyms:
  "b&b": bnb
  "bed and breakfast": bnb
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	v, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"golden hour", "blue hour"}, v.TopicPhrases())
	assert.Equal(t, [2]string{"bed and breakfast", "bnb"}, v.SynonymPairs()[0])

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
