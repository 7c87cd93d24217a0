package tokenizer

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(text string, occs []Occurrence) []string {
	out := make([]string, 0, len(occs))
	for _, o := range occs {
		out = append(out, text[o.Start:o.End])
	}
	return out
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"empty", "", []string{}},
		{"only separators", " ,.;!? \n\t", []string{}},
		{"single word", "word", []string{"word"}},
		{"leading and trailing separators", "  hello world  ", []string{"hello", "world"}},
		{"punctuation", "The quick brown fox. The fox ran.", []string{"The", "quick", "brown", "fox", "The", "fox", "ran"}},
		{"apostrophes are word chars", "don't 'quote' rock'n'roll", []string{"don't", "'quote'", "rock'n'roll"}},
		{"digits", "route 66, 1999-12-31", []string{"route", "66", "1999", "12", "31"}},
		{"hyphen and underscore split", "well-known snake_case", []string{"well", "known", "snake", "case"}},
		{"non-ascii splits", "café naïve", []string{"caf", "na", "ve"}},
		{"word at end of text", "ends with word", []string{"ends", "with", "word"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			occs := Tokenize(tt.text)
			require.NotNil(t, occs)
			assert.Equal(t, tt.want, words(tt.text, occs))
		})
	}
}

func TestTokenizeSingleWordSpansText(t *testing.T) {
	occs := Tokenize("Supercalifragilistic")
	require.Len(t, occs, 1)
	assert.Equal(t, Occurrence{Ordinal: 0, Start: 0, End: 20}, occs[0])
	assert.Equal(t, 20, occs[0].Len())
}

func TestTokenizeOffsets(t *testing.T) {
	occs := Tokenize("The quick brown fox. The fox ran.")
	want := []Occurrence{
		{0, 0, 3}, {1, 4, 9}, {2, 10, 15}, {3, 16, 19},
		{4, 21, 24}, {5, 25, 28}, {6, 29, 32},
	}
	assert.Equal(t, want, occs)
}

var propertyTexts = []string{
	"",
	"a",
	"...",
	"It's 4:30 -- time's up!",
	"Über straße — ünïcödé mixed with ASCII words",
	"line one\nline two\r\nline\tthree",
	strings.Repeat("lorem ipsum, dolor sit amet. ", 50),
	"''' a''b ' c",
}

func TestTokenizeRoundTrip(t *testing.T) {
	for i, text := range propertyTexts {
		t.Run(fmt.Sprintf("text_%d", i), func(t *testing.T) {
			occs := Tokenize(text)
			var sb strings.Builder
			prev := 0
			for _, o := range occs {
				require.LessOrEqual(t, prev, o.Start)
				require.Less(t, o.Start, o.End)
				gap := text[prev:o.Start]
				for j := 0; j < len(gap); j++ {
					require.False(t, IsWordChar(gap[j]), "separator %q holds a word char", gap)
				}
				word := text[o.Start:o.End]
				for j := 0; j < len(word); j++ {
					require.True(t, IsWordChar(word[j]), "word %q holds a separator", word)
				}
				sb.WriteString(gap)
				sb.WriteString(word)
				prev = o.End
			}
			sb.WriteString(text[prev:])
			assert.Equal(t, text, sb.String())
		})
	}
}

func TestTokenizeOrdinalsMonotonic(t *testing.T) {
	for _, text := range propertyTexts {
		occs := Tokenize(text)
		for i, o := range occs {
			assert.Equal(t, i, o.Ordinal)
			if i > 0 {
				assert.Greater(t, o.Start, occs[i-1].Start)
				assert.LessOrEqual(t, occs[i-1].End, o.Start)
			}
		}
	}
}

func TestIsWordChar(t *testing.T) {
	for _, b := range []byte("azAZ09'") {
		assert.True(t, IsWordChar(b), "%q", b)
	}
	for _, b := range []byte(" \t\n.,-_\"`@[{~") {
		assert.False(t, IsWordChar(b), "%q", b)
	}
	assert.False(t, IsWordChar(0xC3))
	assert.False(t, IsWordChar(0x80))
}

func TestCanonical(t *testing.T) {
	assert.Equal(t, "cat", Canonical("Cat"))
	assert.Equal(t, "cat", Canonical("CAT"))
	assert.Equal(t, "cat", Canonical("cat"))
	assert.Equal(t, "don't", Canonical("DON'T"))
	assert.Equal(t, "", Canonical(""))
	// Kelvin sign and other non-ASCII bytes are not folded.
	assert.Equal(t, "\u212a", Canonical("\u212a"))
	assert.Equal(t, "straße", Canonical("STRAße"))
}
