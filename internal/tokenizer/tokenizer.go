// Package tokenizer splits document text into word occurrences. A word is a
// maximal run of ASCII letters, ASCII digits and apostrophes; every other
// byte, including each byte of a multi-byte UTF-8 sequence, is a boundary.
// Offsets are byte offsets and always fall on rune boundaries.
package tokenizer

// Occurrence is one word in the source text, located by the half-open byte
// range [Start, End). Ordinal is its position among all occurrences.
type Occurrence struct {
	Ordinal int
	Start   int
	End     int
}

// Len returns the length of the occurrence in bytes.
func (o Occurrence) Len() int {
	return o.End - o.Start
}

type lexState int

const (
	outside lexState = iota
	inside
)

// IsWordChar reports whether b belongs to a word.
func IsWordChar(b byte) bool {
	return ('0' <= b && b <= '9') ||
		('A' <= b && b <= 'Z') ||
		('a' <= b && b <= 'z') ||
		b == '\''
}

// Tokenize scans text once, left to right, and returns every word occurrence
// in text order. Ordinals are assigned in emission order, so they are dense
// and strictly increasing with Start.
func Tokenize(text string) []Occurrence {
	occurrences := make([]Occurrence, 0, len(text)/6)
	state := outside
	start := 0
	for i := 0; i < len(text); i++ {
		isWord := IsWordChar(text[i])
		switch state {
		case outside:
			if isWord {
				state = inside
				start = i
			}
		case inside:
			if !isWord {
				state = outside
				occurrences = appendOccurrence(occurrences, start, i)
			}
		}
	}
	// End of text is an implicit boundary.
	if state == inside {
		occurrences = appendOccurrence(occurrences, start, len(text))
	}
	return occurrences
}

func appendOccurrence(occurrences []Occurrence, start, end int) []Occurrence {
	return append(occurrences, Occurrence{
		Ordinal: len(occurrences),
		Start:   start,
		End:     end,
	})
}

// Canonical returns the lookup key for a word: its ASCII lower-case form.
// Bytes outside 'A'..'Z' are left untouched, so the mapping does not depend
// on locale or Unicode case tables.
func Canonical(word string) string {
	firstUpper := -1
	for i := 0; i < len(word); i++ {
		if 'A' <= word[i] && word[i] <= 'Z' {
			firstUpper = i
			break
		}
	}
	if firstUpper < 0 {
		return word
	}
	b := make([]byte, len(word))
	copy(b, word[:firstUpper])
	for i := firstUpper; i < len(word); i++ {
		c := word[i]
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		b[i] = c
	}
	return string(b)
}
