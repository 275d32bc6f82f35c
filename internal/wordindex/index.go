// Package wordindex maps the words of a document to the positions at which
// they occur. Two interchangeable implementations are provided: a hash table
// of position buckets and a character trie that stores shared prefixes once.
// Both are built from a fixed word sequence and are read-only afterwards, so a
// built index may be queried from many goroutines at once.
package wordindex

import (
	"errors"
	"fmt"
	"iter"
	"strings"
)

// ErrUnknownKind is returned by ParseKind and New for a kind they do not
// recognize.
var ErrUnknownKind = errors.New("unknown index kind")

// Kind names an index implementation.
type Kind string

const (
	KindHash Kind = "hash"
	KindTrie Kind = "trie"
)

// ParseKind maps a configuration or query value to a Kind. Matching is
// case-insensitive and ignores surrounding space.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindHash:
		return KindHash, nil
	case KindTrie:
		return KindTrie, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Index is the lookup contract shared by HashIndex and TrieIndex.
type Index interface {
	// Lookup returns the ascending positions of word, matched exactly against
	// the normalized form stored at build time. Absent words yield an empty
	// slice.
	Lookup(word string) []int
	// Normalize applies the transform the index used on its input.
	Normalize(word string) string
	// Len is the number of words in the indexed document.
	Len() int
	// Vocabulary is the number of distinct normalized words.
	Vocabulary() int
	Kind() Kind
	// Entries walks the index read-only.
	Entries() iter.Seq[Entry]
}

// Entry is one step of a read-only walk over an index. For a trie it is a
// node; Prefix is the path from the root and Terminal reports whether some
// word ends there. Positions is empty unless Terminal is set.
type Entry struct {
	Prefix    string `json:"prefix"`
	Terminal  bool   `json:"terminal"`
	Positions []int  `json:"positions,omitempty"`
}

type options struct {
	normalizer Normalizer
}

// Option configures index construction.
type Option func(*options)

// WithNormalizer overrides the default normalizer of an index.
func WithNormalizer(n Normalizer) Option {
	return func(o *options) {
		if n != nil {
			o.normalizer = n
		}
	}
}

func buildOptions(def Normalizer, opts []Option) options {
	o := options{normalizer: def}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Build constructs an index of the given kind over words.
func Build(kind Kind, words []string, opts ...Option) (Index, error) {
	switch kind {
	case KindHash:
		return NewHashIndex(words, opts...), nil
	case KindTrie:
		return NewTrieIndex(words, opts...), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

func clonePositions(p []int) []int {
	out := make([]int, len(p))
	copy(out, p)
	return out
}
