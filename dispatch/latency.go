// Tracks dispatcher-wide performance counters and a bounded rolling history
// of observed generation latencies, from which mean and tail percentiles are
// derived for final reporting and live stats snapshots.

package dispatch

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// DefaultHistoryCapacity bounds the rolling latency history.
const DefaultHistoryCapacity = 1000

// minPercentileSamples is the history size below which percentiles keep
// their previous value instead of being recomputed.
const minPercentileSamples = 10

// Stats is a point-in-time copy of all dispatcher counters and derived
// statistics. Counters are process-lifetime and cleared only by Reset.
type Stats struct {
	TotalRequests int64       `json:"total_requests"`
	CacheHits     int64       `json:"cache_hits"`
	CacheMisses   int64       `json:"cache_misses"`
	TotalTokens   int64       `json:"total_tokens"`
	Errors        int64       `json:"errors"`
	Batches       int64       `json:"batches"`
	AvgLatencyMs  float64     `json:"avg_latency_ms"`
	P50LatencyMs  float64     `json:"p50_latency_ms"`
	P90LatencyMs  float64     `json:"p90_latency_ms"`
	P99LatencyMs  float64     `json:"p99_latency_ms"`
	CacheSize     int         `json:"cache_size"`
	ModelStatus   ModelStatus `json:"model_status"`
}

// CacheHitRate returns hits / (hits + misses), or 0 before any lookup.
func (s Stats) CacheHitRate() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}

// CalculateMean returns the arithmetic mean of values, or 0 for an empty slice.
func CalculateMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// CalculatePercentile returns the value at index floor(n*q) of the
// ascending-sorted input, clamped to the last element. q is a fraction in
// [0, 1). The input must already be sorted.
func CalculatePercentile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)) * q)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// LatencyTracker owns the bounded latency history and every dispatcher
// counter. A single mutex guards both so a snapshot is never computed from a
// partially updated history. Safe for concurrent use.
type LatencyTracker struct {
	mu sync.Mutex

	history  []float64 // rolling window of latencies in ms, oldest first
	capacity int
	samples  int64 // lifetime count of recorded latencies, drives the running mean

	totalRequests int64
	cacheHits     int64
	cacheMisses   int64
	totalTokens   int64
	errors        int64
	batches       int64

	avgMs float64
	p50Ms float64
	p90Ms float64
	p99Ms float64
}

// NewLatencyTracker creates a tracker with the given history capacity.
func NewLatencyTracker(capacity int) *LatencyTracker {
	if capacity <= 0 {
		panic(fmt.Sprintf("NewLatencyTracker: capacity must be > 0, got %d", capacity))
	}
	return &LatencyTracker{
		history:  make([]float64, 0, capacity),
		capacity: capacity,
	}
}

// Record appends one observed generation latency, evicting the oldest sample
// at capacity, increments the total-request counter, and recomputes the
// running mean plus (once >= 10 samples exist) exact P50/P90/P99 from a
// sorted copy of the window. Full resort per insert is O(n log n) but n is
// capped, which buys exact percentiles over a streaming approximation.
func (t *LatencyTracker) Record(latency time.Duration) {
	ms := float64(latency.Microseconds()) / 1e3

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.history) >= t.capacity {
		// Shift in place so the backing array never grows past capacity.
		copy(t.history, t.history[1:])
		t.history = t.history[:len(t.history)-1]
	}
	t.history = append(t.history, ms)
	t.totalRequests++
	t.samples++

	n := float64(t.samples)
	t.avgMs = (t.avgMs*(n-1) + ms) / n

	if len(t.history) >= minPercentileSamples {
		sorted := make([]float64, len(t.history))
		copy(sorted, t.history)
		sort.Float64s(sorted)
		t.p50Ms = CalculatePercentile(sorted, 0.50)
		t.p90Ms = CalculatePercentile(sorted, 0.90)
		t.p99Ms = CalculatePercentile(sorted, 0.99)
	}
}

// RecordHit counts a cache hit. Hits count toward total requests but record
// no latency sample and never touch the error counter.
func (t *LatencyTracker) RecordHit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cacheHits++
	t.totalRequests++
}

// RecordMiss counts a cache miss. The corresponding request's completion is
// counted separately by Record or RecordError.
func (t *LatencyTracker) RecordMiss() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cacheMisses++
}

// RecordError counts a failed generation call, exactly once per request.
func (t *LatencyTracker) RecordError() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errors++
	t.totalRequests++
}

// RecordTokens adds n to the total output token counter.
func (t *LatencyTracker) RecordTokens(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalTokens += int64(n)
}

// RecordBatch counts one batch dispatch (one chunk, not one prompt).
func (t *LatencyTracker) RecordBatch() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.batches++
}

// HistoryLen returns the current number of samples in the rolling window.
func (t *LatencyTracker) HistoryLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.history)
}

// Snapshot returns a consistent copy of all counters and derived statistics.
// Cache size and lifecycle status are supplied by the caller, which owns
// those structures.
func (t *LatencyTracker) Snapshot(cacheSize int, status ModelStatus) Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{
		TotalRequests: t.totalRequests,
		CacheHits:     t.cacheHits,
		CacheMisses:   t.cacheMisses,
		TotalTokens:   t.totalTokens,
		Errors:        t.errors,
		Batches:       t.batches,
		AvgLatencyMs:  t.avgMs,
		P50LatencyMs:  t.p50Ms,
		P90LatencyMs:  t.p90Ms,
		P99LatencyMs:  t.p99Ms,
		CacheSize:     cacheSize,
		ModelStatus:   status,
	}
}

// Reset clears the history and every counter.
func (t *LatencyTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.history = t.history[:0]
	t.samples = 0
	t.totalRequests = 0
	t.cacheHits = 0
	t.cacheMisses = 0
	t.totalTokens = 0
	t.errors = 0
	t.batches = 0
	t.avgMs = 0
	t.p50Ms = 0
	t.p90Ms = 0
	t.p99Ms = 0
}
