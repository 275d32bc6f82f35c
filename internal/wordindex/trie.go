package wordindex

import (
	"iter"
	"slices"
	"unicode/utf8"
)

type trieNode struct {
	children  map[rune]*trieNode
	terminal  bool
	positions []int
}

func newTrieNode() *trieNode {
	return &trieNode{children: make(map[rune]*trieNode)}
}

// nextKey decodes the edge key at the start of s. Each byte of invalid UTF-8
// gets a negative key of its own, so distinct invalid words never share a
// node and U+FFFD written out in full never matches them.
func nextKey(s string) (rune, int) {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError && size == 1 {
		return rune(s[0]) - 0x100, 1
	}
	return r, size
}

// appendKey appends the bytes an edge key was decoded from.
func appendKey(b []byte, key rune) []byte {
	if key < 0 {
		return append(b, byte(key+0x100))
	}
	return utf8.AppendRune(b, key)
}

// child returns the child for r without creating it.
func (n *trieNode) child(r rune) (*trieNode, bool) {
	c, ok := n.children[r]
	return c, ok
}

// TrieIndex is a prefix tree over the runes of each word, with bytes that are
// not valid UTF-8 kept as edges of their own. A node reached by
// consuming a whole inserted word is terminal and holds that word's
// positions; intermediate nodes hold none.
type TrieIndex struct {
	root      *trieNode
	normalize Normalizer
	length    int
	words     int
	nodes     int
}

// NewTrieIndex inserts every word in scan order. No case folding is applied
// unless WithNormalizer is given.
func NewTrieIndex(words []string, opts ...Option) *TrieIndex {
	o := buildOptions(Identity, opts)
	t := &TrieIndex{
		root:      newTrieNode(),
		normalize: o.normalizer,
		length:    len(words),
	}
	for pos, word := range words {
		t.insert(t.normalize(word), pos)
	}
	return t
}

func (t *TrieIndex) insert(word string, pos int) {
	node := t.root
	for i := 0; i < len(word); {
		r, size := nextKey(word[i:])
		i += size
		next, ok := node.child(r)
		if !ok {
			next = newTrieNode()
			node.children[r] = next
			t.nodes++
		}
		node = next
	}
	if !node.terminal {
		node.terminal = true
		t.words++
	}
	node.positions = append(node.positions, pos)
}

// Lookup walks word one rune at a time and never mutates the trie. A word
// that is only a prefix of inserted words yields an empty slice.
func (t *TrieIndex) Lookup(word string) []int {
	node := t.root
	for i := 0; i < len(word); {
		r, size := nextKey(word[i:])
		i += size
		next, ok := node.child(r)
		if !ok {
			return []int{}
		}
		node = next
	}
	if !node.terminal {
		return []int{}
	}
	return clonePositions(node.positions)
}

// Normalize applies the index normalizer to word.
func (t *TrieIndex) Normalize(word string) string {
	return t.normalize(word)
}

// Len returns the number of words in the source document.
func (t *TrieIndex) Len() int {
	return t.length
}

// Vocabulary returns the number of distinct normalized words.
func (t *TrieIndex) Vocabulary() int {
	return t.words
}

// Kind returns KindTrie.
func (t *TrieIndex) Kind() Kind {
	return KindTrie
}

// Nodes is the number of nodes below the root. Words sharing a prefix share
// the nodes of that prefix.
func (t *TrieIndex) Nodes() int {
	return t.nodes
}

// Entries walks the trie depth-first, yielding every node except the root.
// Children come in key order: invalid bytes by byte value, then runes by code
// point. Prefixes carry the original bytes. An empty word inserted into the
// document is stored on the root and is yielded first with an empty prefix.
func (t *TrieIndex) Entries() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		if t.root.terminal {
			if !yield(Entry{Terminal: true, Positions: clonePositions(t.root.positions)}) {
				return
			}
		}
		walk(t.root, make([]byte, 0, 32), yield)
	}
}

func walk(n *trieNode, prefix []byte, yield func(Entry) bool) bool {
	keys := make([]rune, 0, len(n.children))
	for r := range n.children {
		keys = append(keys, r)
	}
	slices.Sort(keys)
	for _, r := range keys {
		c := n.children[r]
		path := appendKey(prefix, r)
		e := Entry{Prefix: string(path), Terminal: c.terminal}
		if c.terminal {
			e.Positions = clonePositions(c.positions)
		}
		if !yield(e) {
			return false
		}
		if !walk(c, path, yield) {
			return false
		}
	}
	return true
}
