package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/wordpositions/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/pkg/config"
)

type memBackend struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (b *memBackend) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.data[key]
	if !ok {
		return nil, redis.Nil
	}
	return v, nil
}

func (b *memBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = value
	return nil
}

func (b *memBackend) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := int64(len(b.data))
	clear(b.data)
	return n, nil
}

func newMux(t *testing.T, kind string, withCache bool) *http.ServeMux {
	t.Helper()
	engine, err := indexer.NewEngine(config.IndexerConfig{
		Kind: kind, Normalize: "lower", MaxWords: 100, MaxWordLength: 32, WarmWorkers: 1,
	}, nil)
	require.NoError(t, err)
	_, err = engine.IndexDocument("d1", []string{"set", "sun", "moon", "sat", "set"})
	require.NoError(t, err)

	var c *cache.LookupCache
	if withCache {
		c = cache.New(&memBackend{data: make(map[string][]byte)}, config.RedisConfig{CacheTTL: time.Minute}, nil)
	}
	mux := http.NewServeMux()
	New(engine, c).Register(mux)
	return mux
}

func do(mux *http.ServeMux, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestPositions(t *testing.T) {
	for _, kind := range []string{"hash", "trie"} {
		t.Run(kind, func(t *testing.T) {
			mux := newMux(t, kind, false)
			rec := do(mux, http.MethodGet, "/api/v1/documents/d1/positions?word=SET")
			require.Equal(t, http.StatusOK, rec.Code)

			var resp PositionsResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "SET", resp.Word)
			assert.Equal(t, "set", resp.Normalized)
			assert.Equal(t, []int{0, 4}, resp.Positions)
			assert.Equal(t, 2, resp.Count)
			assert.False(t, resp.CacheHit)
		})
	}
}

func TestPositionsAbsentWordIsEmptyList(t *testing.T) {
	mux := newMux(t, "trie", false)
	for _, word := range []string{"xyz", "su", ""} {
		rec := do(mux, http.MethodGet, "/api/v1/documents/d1/positions?word="+word)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"positions":[]`)
	}
}

func TestPositionsErrors(t *testing.T) {
	mux := newMux(t, "hash", false)
	assert.Equal(t, http.StatusBadRequest, do(mux, http.MethodGet, "/api/v1/documents/d1/positions").Code)
	assert.Equal(t, http.StatusNotFound, do(mux, http.MethodGet, "/api/v1/documents/nope/positions?word=set").Code)
}

func TestPositionsUsesCache(t *testing.T) {
	mux := newMux(t, "trie", true)

	first := do(mux, http.MethodGet, "/api/v1/documents/d1/positions?word=set")
	second := do(mux, http.MethodGet, "/api/v1/documents/d1/positions?word=Set")

	var a, b PositionsResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &a))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &b))
	assert.False(t, a.CacheHit)
	assert.True(t, b.CacheHit)
	assert.Equal(t, "Set", b.Word)
	assert.Equal(t, a.Positions, b.Positions)

	stats := do(mux, http.MethodGet, "/api/v1/cache/stats")
	assert.Contains(t, stats.Body.String(), `"hits":1`)

	inv := do(mux, http.MethodPost, "/api/v1/cache/invalidate")
	assert.Equal(t, http.StatusOK, inv.Code)
	assert.Contains(t, inv.Body.String(), `"keys_deleted":1`)
}

func TestCacheDisabled(t *testing.T) {
	mux := newMux(t, "hash", false)
	assert.Contains(t, do(mux, http.MethodGet, "/api/v1/cache/stats").Body.String(), "disabled")
	assert.Equal(t, http.StatusServiceUnavailable, do(mux, http.MethodPost, "/api/v1/cache/invalidate").Code)
}

func TestDocumentInfoAndList(t *testing.T) {
	mux := newMux(t, "trie", false)

	rec := do(mux, http.MethodGet, "/api/v1/documents/d1")
	require.Equal(t, http.StatusOK, rec.Code)
	var info indexer.DocumentInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, 5, info.Words)
	assert.Equal(t, 4, info.Vocabulary)
	assert.Equal(t, 11, info.TrieNodes)

	rec = do(mux, http.MethodGet, "/api/v1/documents")
	assert.Contains(t, rec.Body.String(), `"count":1`)
}

func TestEntries(t *testing.T) {
	mux := newMux(t, "trie", false)

	rec := do(mux, http.MethodGet, "/api/v1/documents/d1/entries?prefix=s")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp EntriesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	prefixes := make([]string, 0, len(resp.Entries))
	for _, e := range resp.Entries {
		prefixes = append(prefixes, e.Prefix)
	}
	assert.Equal(t, []string{"s", "sa", "sat", "se", "set", "su", "sun"}, prefixes)
	assert.False(t, resp.Truncated)

	rec = do(mux, http.MethodGet, "/api/v1/documents/d1/entries?limit=2")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Entries, 2)
	assert.True(t, resp.Truncated)

	assert.Equal(t, http.StatusBadRequest, do(mux, http.MethodGet, "/api/v1/documents/d1/entries?limit=0").Code)
}

func TestRemoveDocument(t *testing.T) {
	mux := newMux(t, "hash", false)
	assert.Equal(t, http.StatusNoContent, do(mux, http.MethodDelete, "/api/v1/documents/d1").Code)
	assert.Equal(t, http.StatusNotFound, do(mux, http.MethodDelete, "/api/v1/documents/d1").Code)
	assert.True(t, strings.Contains(do(mux, http.MethodGet, "/api/v1/documents").Body.String(), `"count":0`))
}
