package wordindex

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	for _, kind := range []Kind{KindHash, KindTrie} {
		t.Run(string(kind), func(t *testing.T) {
			idx, err := Build(kind, sampleDoc)
			require.NoError(t, err)
			assert.Equal(t, kind, idx.Kind())
			assert.Equal(t, []int{0, 4}, idx.Lookup("set"))
			assert.Equal(t, []int{1}, idx.Lookup("sun"))
			assert.Equal(t, []int{}, idx.Lookup("missing"))
		})
	}

	_, err := Build("btree", sampleDoc)
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Trie ")
	require.NoError(t, err)
	assert.Equal(t, KindTrie, k)

	k, err = ParseKind("hash")
	require.NoError(t, err)
	assert.Equal(t, KindHash, k)

	_, err = ParseKind("skiplist")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestParseNormalizer(t *testing.T) {
	n, err := ParseNormalizer("lower")
	require.NoError(t, err)
	assert.Equal(t, "abc", n("AbC"))

	n, err = ParseNormalizer("none")
	require.NoError(t, err)
	assert.Equal(t, "AbC", n("AbC"))

	_, err = ParseNormalizer("upper")
	assert.Error(t, err)

	for alias, want := range map[string]string{
		"lower": NormalizeLower, "Lowercase": NormalizeLower,
		"none": NormalizeNone, "identity": NormalizeNone, "": NormalizeNone,
	} {
		got, err := NormalizerName(alias)
		require.NoError(t, err)
		assert.Equal(t, want, got, alias)
	}
}

// randomDocument draws words from a small alphabet so that shared prefixes,
// prefix-only paths and repeats are all common.
func randomDocument(r *rand.Rand, n int) []string {
	return randomDocumentFrom(r, n, "abcAB")
}

func randomDocumentFrom(r *rand.Rand, n int, alphabet string) []string {
	doc := make([]string, n)
	for i := range doc {
		b := make([]byte, 1+r.IntN(4))
		for j := range b {
			b[j] = alphabet[r.IntN(len(alphabet))]
		}
		doc[i] = string(b)
	}
	return doc
}

func TestIndexProperties(t *testing.T) {
	r := rand.New(rand.NewPCG(42, 7))
	for round := 0; round < 50; round++ {
		doc := randomDocument(r, r.IntN(200))
		hash := NewHashIndex(doc)
		trie := NewTrieIndex(doc, WithNormalizer(Lowercase))

		for _, idx := range []Index{hash, trie} {
			// every occurrence is found
			for i, w := range doc {
				assert.Contains(t, idx.Lookup(idx.Normalize(w)), i)
			}
			// results are strictly ascending
			for e := range idx.Entries() {
				if !e.Terminal {
					continue
				}
				got := idx.Lookup(e.Prefix)
				require.NotEmpty(t, got)
				for j := 1; j < len(got); j++ {
					require.Less(t, got[j-1], got[j])
				}
			}
		}

		// both implementations agree on every query, including prefixes and
		// words outside the document
		queries := slices.Concat(doc, randomDocument(r, 50), []string{"", "zzz"})
		for _, q := range queries {
			q = Lowercase(q)
			assert.Equal(t, hash.Lookup(q), trie.Lookup(q), "query %q", q)
		}
		assert.Equal(t, hash.Vocabulary(), trie.Vocabulary())

		// building again gives the same answers
		again := NewTrieIndex(doc, WithNormalizer(Lowercase))
		for _, q := range queries {
			q = Lowercase(q)
			assert.Equal(t, trie.Lookup(q), again.Lookup(q))
		}
	}
}

// Raw bytes outside valid UTF-8, including the pieces of a split
// multi-byte sequence, must key exactly like the hash index does.
func TestIndexesAgreeOnInvalidUTF8(t *testing.T) {
	const alphabet = "a\xff\xfe\xc3\xbc\xef\xbf\xbd"
	r := rand.New(rand.NewPCG(3, 11))
	for round := 0; round < 50; round++ {
		doc := randomDocumentFrom(r, r.IntN(100), alphabet)
		hash := NewHashIndex(doc, WithNormalizer(Identity))
		trie := NewTrieIndex(doc)

		queries := slices.Concat(doc, randomDocumentFrom(r, 50, alphabet))
		for _, q := range queries {
			assert.Equal(t, hash.Lookup(q), trie.Lookup(q), "query %q", q)
		}
		assert.Equal(t, hash.Vocabulary(), trie.Vocabulary())

		var fromHash, fromTrie []Entry
		for e := range hash.Entries() {
			fromHash = append(fromHash, e)
		}
		for e := range trie.Entries() {
			if e.Terminal {
				fromTrie = append(fromTrie, e)
			}
		}
		assert.ElementsMatch(t, fromHash, fromTrie)
	}
}

func TestAbsentWordsAreEmpty(t *testing.T) {
	doc := []string{"alpha", "beta", "alphabet"}
	for _, idx := range []Index{NewHashIndex(doc), NewTrieIndex(doc)} {
		for _, q := range []string{"alp", "alphabets", "gamma", "b"} {
			got := idx.Lookup(q)
			require.NotNil(t, got)
			assert.Empty(t, got, "%s: %q", idx.Kind(), q)
		}
	}
}

func TestConcurrentLookups(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	doc := randomDocument(r, 1000)
	trie := NewTrieIndex(doc)
	hash := NewHashIndex(doc, WithNormalizer(Identity))

	done := make(chan struct{})
	for g := 0; g < 8; g++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for _, w := range doc {
				if !slices.Equal(trie.Lookup(w), hash.Lookup(w)) {
					t.Errorf("mismatch for %q", w)
					return
				}
			}
		}()
	}
	for g := 0; g < 8; g++ {
		<-done
	}
}
