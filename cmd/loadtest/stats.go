package main

import (
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Stats collects per-request outcomes from concurrent workers.
type Stats struct {
	total     atomic.Int64
	success   atomic.Int64
	failures  atomic.Int64
	cacheHits atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
	codes     map[int]int64
}

func NewStats() *Stats {
	return &Stats{
		latencies: make([]time.Duration, 0, 100_000),
		codes:     make(map[int]int64),
	}
}

// Record counts one request. A transport error has no status code and no
// latency sample.
func (s *Stats) Record(d time.Duration, status int, cacheHit bool, err error) {
	s.total.Add(1)
	if err != nil {
		s.failures.Add(1)
		return
	}
	if status >= 200 && status < 300 {
		s.success.Add(1)
	} else {
		s.failures.Add(1)
	}
	if cacheHit {
		s.cacheHits.Add(1)
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.codes[status]++
	s.mu.Unlock()
}

type Summary struct {
	Total, Success, Failures, CacheHits int64
	RPS                                  float64
	Min, Avg, P50, P90, P95, P99, Max    time.Duration
	StdDev                               time.Duration
	StatusCodes                          map[int]int64
}

func (s *Stats) Summarize(elapsed time.Duration) Summary {
	s.mu.Lock()
	latencies := slices.Clone(s.latencies)
	codes := make(map[int]int64, len(s.codes))
	for k, v := range s.codes {
		codes[k] = v
	}
	s.mu.Unlock()

	sum := Summary{
		Total:       s.total.Load(),
		Success:     s.success.Load(),
		Failures:    s.failures.Load(),
		CacheHits:   s.cacheHits.Load(),
		StatusCodes: codes,
	}
	if elapsed > 0 {
		sum.RPS = float64(sum.Total) / elapsed.Seconds()
	}
	if len(latencies) == 0 {
		return sum
	}

	slices.Sort(latencies)
	var total time.Duration
	for _, l := range latencies {
		total += l
	}
	sum.Avg = total / time.Duration(len(latencies))
	sum.Min = latencies[0]
	sum.Max = latencies[len(latencies)-1]
	sum.P50 = percentile(latencies, 50)
	sum.P90 = percentile(latencies, 90)
	sum.P95 = percentile(latencies, 95)
	sum.P99 = percentile(latencies, 99)

	var sq float64
	for _, l := range latencies {
		diff := float64(l - sum.Avg)
		sq += diff * diff
	}
	sum.StdDev = time.Duration(math.Sqrt(sq / float64(len(latencies))))
	return sum
}

// percentile uses the nearest-rank method on an ascending slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
