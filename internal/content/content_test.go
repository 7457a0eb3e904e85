package content

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	for _, k := range Kinds {
		got, err := ParseKind(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseKind("podcast")
	assert.Error(t, err)
}

func TestItem_Clone(t *testing.T) {
	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	orig := Item{ID: "a", Categories: []string{"landscape"}, StartsAt: &now}

	cp := orig.Clone()
	cp.Categories[0] = "macro"
	*cp.StartsAt = now.Add(time.Hour)

	assert.Equal(t, "landscape", orig.Categories[0])
	assert.Equal(t, now, *orig.StartsAt)
}

func TestVariants(t *testing.T) {
	tests := []struct {
		word string
		want []string
	}{
		{"workshops", []string{"workshops", "workshop"}},
		{"courses", []string{"courses", "course", "cours"}},
		{"lenses", []string{"lenses", "lense", "lens"}},
		{"classes", []string{"classes", "classe", "class"}},
		{"galleries", []string{"galleries", "gallery"}},
		{"class", []string{"class"}},
		{"lens", []string{"lens", "len"}},
		{"tripod", []string{"tripod"}},
		{"iso", []string{"iso"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Variants(tt.word), tt.word)
	}
}

func TestSearchTerms(t *testing.T) {
	got := SearchTerms([]string{"depth of field", "Tripods", "tripod", " "})
	assert.Equal(t, []string{"depth of field", "tripods", "tripod"}, got)
	assert.Empty(t, SearchTerms(nil))
}

func TestTokensAndSlug(t *testing.T) {
	assert.Equal(t, []string{"long", "exposure", "101"}, Tokens("Long-Exposure: 101!"))
	assert.Equal(t, "depth-of-field", Slug("Depth of Field"))
}
