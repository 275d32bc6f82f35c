package wordindex

import (
	"iter"
	"slices"
)

// HashIndex keeps one position bucket per normalized word.
type HashIndex struct {
	buckets   map[string][]int
	normalize Normalizer
	length    int
}

// NewHashIndex scans words once, appending each position to the bucket of
// the normalized word. Words are lowercased unless WithNormalizer says
// otherwise.
func NewHashIndex(words []string, opts ...Option) *HashIndex {
	o := buildOptions(Lowercase, opts)
	h := &HashIndex{
		buckets:   make(map[string][]int),
		normalize: o.normalizer,
		length:    len(words),
	}
	for pos, word := range words {
		key := h.normalize(word)
		h.buckets[key] = append(h.buckets[key], pos)
	}
	return h
}

// Lookup returns the bucket stored under word as given. The query is not
// normalized here; use Normalize first when the input may differ in case.
func (h *HashIndex) Lookup(word string) []int {
	positions, ok := h.buckets[word]
	if !ok {
		return []int{}
	}
	return clonePositions(positions)
}

// Normalize applies the index normalizer to word. Lookups call it on the
// query, so callers can use it to build keys that match stored words.
func (h *HashIndex) Normalize(word string) string {
	return h.normalize(word)
}

// Len returns the number of words in the source document, duplicates
// included.
func (h *HashIndex) Len() int {
	return h.length
}

// Vocabulary returns the number of distinct normalized words.
func (h *HashIndex) Vocabulary() int {
	return len(h.buckets)
}

// Kind returns KindHash.
func (h *HashIndex) Kind() Kind {
	return KindHash
}

// Entries yields one terminal entry per word in lexical order.
func (h *HashIndex) Entries() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		keys := make([]string, 0, len(h.buckets))
		for k := range h.buckets {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			if !yield(Entry{Prefix: k, Terminal: true, Positions: clonePositions(h.buckets[k])}) {
				return
			}
		}
	}
}
