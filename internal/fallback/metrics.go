// internal/fallback/metrics.go
package fallback

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// latencyWindowSize bounds the ring buffer of recent fallback latencies.
const latencyWindowSize = 256

// strategyCounters holds the per-kind counters. All fields are updated with
// atomic operations; a reader never observes a partially updated counter.
type strategyCounters struct {
	attempts  atomic.Int64
	successes atomic.Int64
	failures  atomic.Int64
}

// Metrics tracks strategy usage and outcomes for one manager. Counters use
// atomics and the latency window has its own small mutex, so the hot path
// never contends with payload locks.
type Metrics struct {
	enabled bool

	counters map[StrategyKind]*strategyCounters

	rejectedWrites  atomic.Int64
	persistFailures atomic.Int64
	lastFallback    atomic.Int64 // unix nanos, 0 = never

	latencyMu    sync.Mutex
	latencies    [latencyWindowSize]time.Duration
	latencyNext  int
	latencyCount int
}

// metricKinds is fixed at construction so counter lookup is lock-free.
var metricKinds = []StrategyKind{
	KindPrimary, KindCache, KindHistorical, KindAlternative,
	KindScraping, KindMock, KindDegraded,
}

// NewMetrics creates a metrics tracker. A disabled tracker accepts records
// and drops them, so callers never need nil checks.
func NewMetrics(enabled bool) *Metrics {
	m := &Metrics{
		enabled:  enabled,
		counters: make(map[StrategyKind]*strategyCounters, len(metricKinds)),
	}
	for _, kind := range metricKinds {
		m.counters[kind] = &strategyCounters{}
	}
	return m
}

// RecordAttempt counts an invocation of a strategy (or the primary).
func (m *Metrics) RecordAttempt(kind StrategyKind) {
	if !m.enabled {
		return
	}
	if c, ok := m.counters[kind]; ok {
		c.attempts.Add(1)
	}
}

// RecordSuccess counts a successful outcome and its latency. Non-primary
// successes also stamp the last-fallback time.
func (m *Metrics) RecordSuccess(kind StrategyKind, latency time.Duration) {
	if !m.enabled {
		return
	}
	if c, ok := m.counters[kind]; ok {
		c.successes.Add(1)
	}
	if kind != KindPrimary {
		m.lastFallback.Store(time.Now().UnixNano())
	}
	m.recordLatency(latency)
}

// RecordFailure counts a failed outcome.
func (m *Metrics) RecordFailure(kind StrategyKind) {
	if !m.enabled {
		return
	}
	if c, ok := m.counters[kind]; ok {
		c.failures.Add(1)
	}
}

// RecordRejectedWrite counts a cache write refused for exceeding the payload
// size limit.
func (m *Metrics) RecordRejectedWrite() {
	if !m.enabled {
		return
	}
	m.rejectedWrites.Add(1)
}

// RecordPersistFailure counts a failed asynchronous cache/historical
// write-back. These never surface to callers.
func (m *Metrics) RecordPersistFailure() {
	if !m.enabled {
		return
	}
	m.persistFailures.Add(1)
}

func (m *Metrics) recordLatency(latency time.Duration) {
	m.latencyMu.Lock()
	m.latencies[m.latencyNext] = latency
	m.latencyNext = (m.latencyNext + 1) % latencyWindowSize
	if m.latencyCount < latencyWindowSize {
		m.latencyCount++
	}
	m.latencyMu.Unlock()
}

// StrategySnapshot is the point-in-time counter state for one strategy kind.
type StrategySnapshot struct {
	Attempts  int64 `json:"attempts"`
	Successes int64 `json:"successes"`
	Failures  int64 `json:"failures"`
}

// Snapshot is a serializable point-in-time view of the metrics, consumable by
// external monitoring.
type Snapshot struct {
	Strategies      map[string]StrategySnapshot `json:"strategies"`
	RejectedWrites  int64                       `json:"rejected_writes"`
	PersistFailures int64                       `json:"persist_failures"`
	AverageLatency  time.Duration               `json:"average_latency"`
	P95Latency      time.Duration               `json:"p95_latency"`
	LatencySamples  int                         `json:"latency_samples"`
	LastFallback    time.Time                   `json:"last_fallback"`
	GeneratedAt     time.Time                   `json:"generated_at"`
}

// Snapshot returns the current counter values. Each counter is read
// atomically; the snapshot as a whole is not a transaction across counters.
func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{
		Strategies:      make(map[string]StrategySnapshot, len(m.counters)),
		RejectedWrites:  m.rejectedWrites.Load(),
		PersistFailures: m.persistFailures.Load(),
		GeneratedAt:     time.Now(),
	}
	for kind, c := range m.counters {
		snap.Strategies[string(kind)] = StrategySnapshot{
			Attempts:  c.attempts.Load(),
			Successes: c.successes.Load(),
			Failures:  c.failures.Load(),
		}
	}
	if ns := m.lastFallback.Load(); ns > 0 {
		snap.LastFallback = time.Unix(0, ns)
	}

	m.latencyMu.Lock()
	count := m.latencyCount
	samples := make([]time.Duration, count)
	copy(samples, m.latencies[:count])
	m.latencyMu.Unlock()

	snap.LatencySamples = count
	if count > 0 {
		sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
		var total time.Duration
		for _, s := range samples {
			total += s
		}
		snap.AverageLatency = total / time.Duration(count)
		idx := (count * 95) / 100
		if idx >= count {
			idx = count - 1
		}
		snap.P95Latency = samples[idx]
	}
	return snap
}
