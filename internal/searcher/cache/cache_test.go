package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/wordpositions/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/pkg/metrics"
)

type memBackend struct {
	mu      sync.Mutex
	data    map[string][]byte
	failGet error // fails Set too
}

func newMemBackend() *memBackend {
	return &memBackend{data: make(map[string][]byte)}
}

func (b *memBackend) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failGet != nil {
		return nil, b.failGet
	}
	v, ok := b.data[key]
	if !ok {
		return nil, redis.Nil
	}
	return v, nil
}

func (b *memBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failGet != nil {
		return b.failGet
	}
	b.data[key] = value
	return nil
}

func (b *memBackend) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var n int64
	for k := range b.data {
		if strings.HasPrefix(k, prefix) {
			delete(b.data, k)
			n++
		}
	}
	return n, nil
}

func result(positions ...int) indexer.LookupResult {
	return indexer.LookupResult{
		DocumentID:  "d1",
		Word:        "Set",
		Normalized:  "set",
		Positions:   positions,
		Count:       len(positions),
		Kind:        "trie",
		Normalizer:  "lower",
		Fingerprint: "fp1",
	}
}

var setKey = Key{Fingerprint: "fp1", Kind: "trie", Normalizer: "lower", Word: "set"}

func TestGetOrComputeCachesResult(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	c := New(newMemBackend(), config.RedisConfig{CacheTTL: time.Minute}, m)
	ctx := context.Background()

	var calls int
	compute := func() (indexer.LookupResult, error) {
		calls++
		return result(0, 4), nil
	}

	first, hit, err := c.GetOrCompute(ctx, setKey, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	second, hit, err := c.GetOrCompute(ctx, setKey, compute)
	require.NoError(t, err)
	assert.True(t, hit)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
	assert.Equal(t, Stats{Hits: 1, Misses: 1, Breaker: "closed"}, c.Stats())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal))
}

func TestKeysSeparateEveryField(t *testing.T) {
	base := BuildKey(setKey)
	for _, k := range []Key{
		{Fingerprint: "fp2", Kind: "trie", Normalizer: "lower", Word: "set"},
		{Fingerprint: "fp1", Kind: "hash", Normalizer: "lower", Word: "set"},
		{Fingerprint: "fp1", Kind: "trie", Normalizer: "none", Word: "set"},
		{Fingerprint: "fp1", Kind: "trie", Normalizer: "lower", Word: "sun"},
	} {
		assert.NotEqual(t, base, BuildKey(k), "%+v", k)
	}
	assert.NotEqual(t,
		BuildKey(Key{Fingerprint: "ab", Word: "c"}),
		BuildKey(Key{Fingerprint: "a", Word: "bc"}),
	)
	assert.True(t, strings.HasPrefix(base, keyPrefix))
	assert.Equal(t, base, BuildKey(keyOf(result(0, 4))))
}

func TestSharedRedisAcrossNormalizers(t *testing.T) {
	backend := newMemBackend()
	words := []string{"Set", "set"}
	ctx := context.Background()

	lookup := func(normalize, word string) (indexer.LookupResult, bool) {
		engine, err := indexer.NewEngine(config.IndexerConfig{
			Kind: "trie", Normalize: normalize, MaxWords: 10, MaxWordLength: 10, WarmWorkers: 1,
		}, nil)
		require.NoError(t, err)
		_, err = engine.IndexDocument("d1", words)
		require.NoError(t, err)
		doc, err := engine.Get("d1")
		require.NoError(t, err)

		c := New(backend, config.RedisConfig{CacheTTL: time.Minute}, nil)
		res, hit, err := c.GetOrCompute(ctx, KeyFor(doc.Info(), doc.Normalize(word)), func() (indexer.LookupResult, error) {
			return doc.Lookup(word), nil
		})
		require.NoError(t, err)
		return res, hit
	}

	exact, hit := lookup("none", "set")
	assert.False(t, hit)
	assert.Equal(t, []int{1}, exact.Positions)

	folded, hit := lookup("lower", "set")
	assert.False(t, hit)
	assert.Equal(t, []int{0, 1}, folded.Positions)

	again, hit := lookup("lowercase", "SET")
	assert.True(t, hit)
	assert.Equal(t, []int{0, 1}, again.Positions)
}

func TestComputeErrorIsNotCached(t *testing.T) {
	backend := newMemBackend()
	c := New(backend, config.RedisConfig{CacheTTL: time.Minute}, nil)

	_, _, err := c.GetOrCompute(context.Background(), setKey, func() (indexer.LookupResult, error) {
		return indexer.LookupResult{}, errors.New("gone")
	})
	assert.EqualError(t, err, "gone")
	assert.Empty(t, backend.data)
}

func TestBackendFailureFallsThrough(t *testing.T) {
	backend := newMemBackend()
	backend.failGet = errors.New("connection refused")
	c := New(backend, config.RedisConfig{CacheTTL: time.Minute}, nil)

	for range 10 {
		res, hit, err := c.GetOrCompute(context.Background(), setKey, func() (indexer.LookupResult, error) {
			return result(0, 4), nil
		})
		require.NoError(t, err)
		assert.False(t, hit)
		assert.Equal(t, []int{0, 4}, res.Positions)
	}
	assert.Equal(t, "open", c.Stats().Breaker)
}

func TestConcurrentMissesComputeOnce(t *testing.T) {
	c := New(newMemBackend(), config.RedisConfig{CacheTTL: time.Minute}, nil)
	var calls atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			res, _, err := c.GetOrCompute(context.Background(), setKey, func() (indexer.LookupResult, error) {
				calls.Add(1)
				<-release
				return result(0, 4), nil
			})
			assert.NoError(t, err)
			assert.Equal(t, []int{0, 4}, res.Positions)
		})
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, calls.Load(), int32(8))
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestInvalidate(t *testing.T) {
	backend := newMemBackend()
	backend.data["other:key"] = []byte("x")
	c := New(backend, config.RedisConfig{CacheTTL: time.Minute}, nil)
	c.Set(context.Background(), result(1))

	deleted, err := c.Invalidate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	assert.Contains(t, backend.data, "other:key")
	_, ok := c.Get(context.Background(), setKey)
	assert.False(t, ok)
}
