// Package cache stores lookup results in Redis. Keys combine the document
// fingerprint, the index kind and normalizer it was built with, and the
// normalized word.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/wordpositions/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/internal/wordindex"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/wordpositions/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/pkg/resilience"
)

const keyPrefix = "positions:"

// Backend is the subset of the Redis client the cache needs.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Key identifies one cached lookup.
type Key struct {
	Fingerprint string
	Kind        wordindex.Kind
	Normalizer  string
	Word        string
}

// KeyFor builds the key of a normalized word in the document described by
// info.
func KeyFor(info indexer.DocumentInfo, normalized string) Key {
	return Key{
		Fingerprint: info.Fingerprint,
		Kind:        info.Kind,
		Normalizer:  info.Normalizer,
		Word:        normalized,
	}
}

func keyOf(r indexer.LookupResult) Key {
	return Key{
		Fingerprint: r.Fingerprint,
		Kind:        r.Kind,
		Normalizer:  r.Normalizer,
		Word:        r.Normalized,
	}
}

// Stats reports cache effectiveness since start and the state of the breaker
// guarding Redis.
type Stats struct {
	Hits    int64  `json:"hits"`
	Misses  int64  `json:"misses"`
	Breaker string `json:"breaker"`
}

// LookupCache caches positions lookups in Redis. Redis failures count as
// misses, and repeated failures open a circuit breaker so lookups stop
// waiting on Redis until it recovers.
type LookupCache struct {
	backend Backend
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New wraps backend. m may be nil.
func New(backend Backend, cfg config.RedisConfig, m *metrics.Metrics) *LookupCache {
	return &LookupCache{
		backend: backend,
		ttl:     cfg.CacheTTL,
		breaker: resilience.NewCircuitBreaker("redis-cache", resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
		}),
		metrics: m,
		logger:  logger.WithComponent("lookup-cache"),
	}
}

// Get reports a cached result for k. Backend errors count as misses.
func (c *LookupCache) Get(ctx context.Context, k Key) (indexer.LookupResult, bool) {
	key := BuildKey(k)
	var data []byte
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.backend.Get(ctx, key)
		if pkgredis.IsNilError(err) {
			return nil
		}
		return err
	})
	if err != nil {
		if !errors.Is(err, resilience.ErrCircuitOpen) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return indexer.LookupResult{}, false
	}
	if data == nil {
		c.miss()
		return indexer.LookupResult{}, false
	}
	var result indexer.LookupResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return indexer.LookupResult{}, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	c.logger.Debug("cache hit", "key", key)
	return result, true
}

// Set stores result under the key derived from its own fields.
func (c *LookupCache) Set(ctx context.Context, result indexer.LookupResult) {
	key := BuildKey(keyOf(result))
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.backend.Set(ctx, key, data, c.ttl)
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result or runs compute once per key among
// concurrent callers and caches what it returns. The bool reports a cache hit.
func (c *LookupCache) GetOrCompute(
	ctx context.Context,
	k Key,
	compute func() (indexer.LookupResult, error),
) (indexer.LookupResult, bool, error) {
	if result, ok := c.Get(ctx, k); ok {
		return result, true, nil
	}
	key := BuildKey(k)
	val, err, _ := c.group.Do(key, func() (any, error) {
		result, err := compute()
		if err != nil {
			return indexer.LookupResult{}, err
		}
		c.Set(ctx, result)
		return result, nil
	})
	if err != nil {
		return indexer.LookupResult{}, false, err
	}
	return val.(indexer.LookupResult), false, nil
}

// Invalidate drops every cached lookup.
func (c *LookupCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.backend.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return deleted, nil
}

// Stats returns the hit and miss counts and the breaker state.
func (c *LookupCache) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Breaker: c.breaker.State().String(),
	}
}

func (c *LookupCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// BuildKey derives the Redis key for k. Fields are length-prefixed so no two
// distinct keys hash the same input.
func BuildKey(k Key) string {
	h := sha256.New()
	for _, part := range []string{k.Fingerprint, string(k.Kind), k.Normalizer, k.Word} {
		fmt.Fprintf(h, "%d:%s", len(part), part)
	}
	return fmt.Sprintf("%s%x", keyPrefix, h.Sum(nil)[:16])
}
