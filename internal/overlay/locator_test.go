package overlay

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindOccurrences(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		needle   string
		expected []Range
	}{
		{
			name:     "two matches left to right",
			content:  "The cat sat on the cat mat",
			needle:   "cat",
			expected: []Range{{4, 7}, {19, 22}},
		},
		{
			name:     "case insensitive",
			content:  "Cat, CAT and cat",
			needle:   "cAt",
			expected: []Range{{0, 3}, {5, 8}, {13, 16}},
		},
		{
			name:     "needle is trimmed",
			content:  "a loaded word",
			needle:   "  loaded \n",
			expected: []Range{{2, 8}},
		},
		{
			name:     "overlapping repeats counted once",
			content:  "aaaa",
			needle:   "aa",
			expected: []Range{{0, 2}, {2, 4}},
		},
		{
			name:     "odd overlapping repeat",
			content:  "aaa",
			needle:   "aa",
			expected: []Range{{0, 2}},
		},
		{
			name:     "rune offsets not byte offsets",
			content:  "L'été est là, l'été revient",
			needle:   "été",
			expected: []Range{{2, 5}, {16, 19}},
		},
		{
			name:     "not found",
			content:  "nothing here",
			needle:   "absent",
			expected: []Range{},
		},
		{
			name:     "empty needle",
			content:  "anything",
			needle:   "",
			expected: []Range{},
		},
		{
			name:     "whitespace needle",
			content:  "a b c",
			needle:   "   ",
			expected: []Range{},
		},
		{
			name:     "needle longer than content",
			content:  "ab",
			needle:   "abc",
			expected: []Range{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FindOccurrences(tt.content, tt.needle)
			require.NotNil(t, got)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestFindOccurrencesMatchesOriginalText(t *testing.T) {
	content := "Loaded language, LOADED words and a loaded question."
	needle := "loaded"

	got := FindOccurrences(content, needle)
	require.Len(t, got, 3)

	runes := []rune(content)
	prevEnd := 0
	for _, r := range got {
		assert.GreaterOrEqual(t, r.Start, prevEnd, "ranges must not overlap")
		assert.True(t, strings.EqualFold(string(runes[r.Start:r.End]), needle))
		prevEnd = r.End
	}
}

func TestFirstOccurrence(t *testing.T) {
	r, ok := FirstOccurrence("one two two", "two")
	require.True(t, ok)
	assert.Equal(t, Range{Start: 4, End: 7}, r)

	_, ok = FirstOccurrence("one", "two")
	assert.False(t, ok)
}
