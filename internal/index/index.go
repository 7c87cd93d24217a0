// Package index builds an immutable word-occurrence index over a single
// document and answers word-in-context queries from precomputed offsets.
//
// The index owns three structures built once by New: the source text, the
// global occurrence sequence (addressable by ordinal) and a bucket per
// canonical word holding the ordinals of its occurrences. Nothing is mutated
// after New returns, so an *Index is safe for concurrent readers.
package index

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/contextsearch/internal/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/errors"
	"github.com/RoaringBitmap/roaring/v2"
)

// Index is a read-only word-occurrence index over one document. Ordinals are
// stored as uint32, so a document may hold at most 2^32 words.
type Index struct {
	text        string
	occurrences []tokenizer.Occurrence
	buckets     map[string]*roaring.Bitmap
	fingerprint string
	owned       bool
}

// Option configures an Index at construction time.
type Option func(*Index)

// WithOwnedResults makes Search return copies of the context windows.
// Without it results share memory with the indexed text, and holding any of
// them keeps the whole document reachable.
func WithOwnedResults() Option {
	return func(ix *Index) {
		ix.owned = true
	}
}

// New tokenizes text and groups its occurrences by canonical word.
func New(text string, opts ...Option) *Index {
	occurrences := tokenizer.Tokenize(text)
	sum := sha256.Sum256([]byte(text))
	ix := &Index{
		text:        text,
		occurrences: occurrences,
		buckets:     Build(text, occurrences),
		fingerprint: hex.EncodeToString(sum[:]),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Build groups occurrences into per-word ordinal sets. Occurrences are
// visited in ordinal order and a bitmap iterates in ascending order, so every
// bucket yields its hits in text order.
func Build(text string, occurrences []tokenizer.Occurrence) map[string]*roaring.Bitmap {
	buckets := make(map[string]*roaring.Bitmap)
	for _, occ := range occurrences {
		key := tokenizer.Canonical(text[occ.Start:occ.End])
		bucket, ok := buckets[key]
		if !ok {
			bucket = roaring.New()
			buckets[key] = bucket
		}
		bucket.Add(uint32(occ.Ordinal))
	}
	for _, bucket := range buckets {
		bucket.RunOptimize()
	}
	return buckets
}

// Span is the byte range of one context window and the hit it surrounds.
type Span struct {
	Start int
	End   int
	Hit   tokenizer.Occurrence
}

// Search returns, for every occurrence of word in text order, the verbatim
// slice of the document covering the hit and up to contextWidth words on
// each side. Matching is ASCII case-insensitive; the returned text is not
// altered. An unknown word yields an empty slice. A negative contextWidth is
// rejected with an ErrInvalidInput AppError.
func (ix *Index) Search(word string, contextWidth int) ([]string, error) {
	spans, err := ix.Spans(word, contextWidth)
	if err != nil {
		return nil, err
	}
	results := make([]string, len(spans))
	for i, span := range spans {
		results[i] = ix.slice(span.Start, span.End)
	}
	return results, nil
}

// Spans is Search without materializing the strings.
func (ix *Index) Spans(word string, contextWidth int) ([]Span, error) {
	if contextWidth < 0 {
		return nil, apperrors.InvalidInput("context width must be non-negative, got %d", contextWidth)
	}
	bucket, ok := ix.buckets[tokenizer.Canonical(word)]
	if !ok {
		return []Span{}, nil
	}
	spans := make([]Span, 0, bucket.GetCardinality())
	it := bucket.Iterator()
	for it.HasNext() {
		hit := int(it.Next())
		start, end := ix.contextBounds(hit, contextWidth)
		spans = append(spans, Span{
			Start: start,
			End:   end,
			Hit:   ix.occurrences[hit],
		})
	}
	return spans, nil
}

// contextBounds maps a hit ordinal and width to a byte range, clamping to the
// document when the window runs past either end. The comparisons are written
// so that a very large width cannot overflow.
func (ix *Index) contextBounds(hit, width int) (start, end int) {
	maxOrdinal := len(ix.occurrences) - 1
	if width > hit {
		start = 0
	} else {
		start = ix.occurrences[hit-width].Start
	}
	if width > maxOrdinal-hit {
		end = len(ix.text)
	} else {
		end = ix.occurrences[hit+width].End
	}
	return start, end
}

func (ix *Index) slice(start, end int) string {
	if ix.owned {
		return strings.Clone(ix.text[start:end])
	}
	return ix.text[start:end]
}

// Count returns how many times word occurs, case-insensitively.
func (ix *Index) Count(word string) int {
	bucket, ok := ix.buckets[tokenizer.Canonical(word)]
	if !ok {
		return 0
	}
	return int(bucket.GetCardinality())
}

// Occurrences returns the total number of words in the document.
func (ix *Index) Occurrences() int {
	return len(ix.occurrences)
}

// Vocabulary returns the number of distinct canonical words.
func (ix *Index) Vocabulary() int {
	return len(ix.buckets)
}

// Len returns the document length in bytes.
func (ix *Index) Len() int {
	return len(ix.text)
}

// Fingerprint returns the hex SHA-256 of the indexed text.
func (ix *Index) Fingerprint() string {
	return ix.fingerprint
}

// SizeBytes estimates the memory held by the occurrence list and buckets,
// excluding the text itself.
func (ix *Index) SizeBytes() int64 {
	size := int64(len(ix.occurrences)) * 24
	for word, bucket := range ix.buckets {
		size += int64(len(word)) + int64(bucket.GetSizeInBytes()) + 16
	}
	return size
}
