// internal/fallback/manager.go
package fallback

import (
	"context"
	"sync"
	"time"

	"github.com/valpere/ResilientFetch/internal/store"
	"github.com/valpere/ResilientFetch/internal/utils"
)

// Recorder receives strategy attempt/outcome events for external monitoring
// systems. The manager's own Metrics counters are always kept; a Recorder is
// an optional additional sink.
type Recorder interface {
	RecordAttempt(kind string)
	RecordOutcome(kind string, success bool, latency time.Duration)
}

// Manager composes the strategy chain and exposes ExecuteWithFallback. It is
// safe for concurrent use by many callers; each call is independently
// cancellable through its context.
type Manager struct {
	cfg *Config

	cache        *CacheStrategy
	historical   *HistoricalStrategy
	alternatives *AlternativeEndpointStrategy
	hooks        *ScrapingHookStrategy
	mock         *MockStrategy
	degraded     *DegradedStrategy
	retry        *RetryStrategy

	// chain is the ordered strategy list, resolved once at construction so
	// the call path never branches on kind names.
	chain []Strategy

	metrics  *Metrics
	recorder Recorder
	logger   utils.Logger

	// persistWG tracks in-flight asynchronous write-backs so Shutdown can
	// drain them.
	persistWG sync.WaitGroup

	probeCancel context.CancelFunc
}

// ManagerOption customizes manager construction.
type ManagerOption func(*managerOptions)

type managerOptions struct {
	logger   utils.Logger
	backing  store.KVStore
	recorder Recorder
	request  RequestFunc
	probe    ProbeFunc
}

// WithLogger sets the logger used by the manager and every strategy.
func WithLogger(logger utils.Logger) ManagerOption {
	return func(o *managerOptions) { o.logger = logger }
}

// WithStore backs the cache and historical strategies with a durable
// key-value store instead of the default in-memory maps.
func WithStore(kv store.KVStore) ManagerOption {
	return func(o *managerOptions) { o.backing = kv }
}

// WithRecorder attaches an external metrics sink.
func WithRecorder(r Recorder) ManagerOption {
	return func(o *managerOptions) { o.recorder = r }
}

// WithEndpointRequest sets the function used to fetch from alternative
// endpoints.
func WithEndpointRequest(fn RequestFunc) ManagerOption {
	return func(o *managerOptions) { o.request = fn }
}

// WithEndpointProbe sets the liveness probe for alternative endpoints.
func WithEndpointProbe(fn ProbeFunc) ManagerOption {
	return func(o *managerOptions) { o.probe = fn }
}

// NewManager builds the manager and its strategy chain. cfg may be nil for
// defaults; missing fields are filled in.
func NewManager(cfg *Config, opts ...ManagerOption) (*Manager, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o managerOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = utils.NewComponentLogger("fallback")
	}

	m := &Manager{
		cfg:      cfg,
		metrics:  NewMetrics(cfg.MetricsEnabled),
		recorder: o.recorder,
		logger:   o.logger,
	}

	m.cache = NewCacheStrategy(cfg, o.backing, m.metrics, o.logger)
	m.historical = NewHistoricalStrategy(cfg, o.backing, o.logger)
	m.alternatives = NewAlternativeEndpointStrategy(NewEndpointRegistry(), o.request, o.probe, o.logger)
	m.hooks = NewScrapingHookStrategy(o.logger)
	m.mock = NewMockStrategy(o.logger)
	m.degraded = NewDegradedStrategy(o.logger)
	m.retry = NewRetryStrategy(cfg, o.logger)

	byKind := map[StrategyKind]Strategy{
		KindCache:       m.cache,
		KindHistorical:  m.historical,
		KindAlternative: m.alternatives,
		KindScraping:    m.hooks,
		KindMock:        m.mock,
		KindDegraded:    m.degraded,
	}
	m.chain = make([]Strategy, 0, len(cfg.StrategyOrder))
	for _, kind := range cfg.StrategyOrder {
		m.chain = append(m.chain, byKind[kind])
	}

	return m, nil
}

// ExecuteWithFallback runs the primary operation once and, on failure, walks
// the configured strategy chain. The first strategy producing a non-empty
// result wins; its provenance tag tells the caller where the data came from.
// When nothing produces data the terminal error aggregates every per-strategy
// failure.
func (m *Manager) ExecuteWithFallback(ctx context.Context, op PrimaryOp, sourceID, query string, args ...string) (*Result, error) {
	key := BuildKey(sourceID, query, args...)

	start := time.Now()
	m.recordAttempt(KindPrimary)
	payload, primaryErr := op(ctx)
	if primaryErr == nil {
		m.recordOutcome(KindPrimary, true, time.Since(start))
		m.persistAsync(key, payload)
		return &Result{Payload: payload, Provenance: ProvenancePrimary}, nil
	}
	m.recordOutcome(KindPrimary, false, 0)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.logger.Warnf("primary operation for source %q failed, entering fallback chain: %v", sourceID, primaryErr)

	failures := make([]StrategyFailure, 0, len(m.chain))
	for _, strategy := range m.chain {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		kind := strategy.Kind()
		attemptStart := time.Now()
		m.recordAttempt(kind)

		result, err := strategy.GetFallbackData(ctx, sourceID, key, query)
		if err != nil || result == nil || len(result.Payload) == 0 {
			m.recordOutcome(kind, false, 0)
			reason := "produced empty result"
			code := ErrCodeNoData
			if err != nil {
				if err == ctx.Err() && ctx.Err() != nil {
					return nil, err
				}
				reason = err.Error()
				code = CodeOf(err)
			}
			failures = append(failures, StrategyFailure{Kind: kind, Code: code, Reason: reason})
			m.logger.Debugf("strategy %s yielded nothing for source %q: %s", kind, sourceID, reason)
			continue
		}

		m.recordOutcome(kind, true, time.Since(attemptStart))
		m.logger.Infof("source %q recovered via %s (provenance %q)", sourceID, kind, result.Provenance)
		return result, nil
	}

	return nil, &StrategyExhaustedError{
		SourceID: sourceID,
		Primary:  primaryErr.Error(),
		Failures: failures,
	}
}

// persistAsync writes a successful primary payload into the cache and
// historical stores without blocking the caller's return. Persistence
// failures are counted and logged, never propagated.
func (m *Manager) persistAsync(key string, payload []byte) {
	data := make([]byte, len(payload))
	copy(data, payload)

	m.persistWG.Add(1)
	go func() {
		defer m.persistWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.PersistTimeout)
		defer cancel()

		if err := m.cache.Put(ctx, key, data); err != nil {
			// Oversized payloads are already counted by the cache itself.
			if CodeOf(err) != ErrCodePayloadTooLarge {
				m.metrics.RecordPersistFailure()
			}
			m.logger.Debugf("cache write-back for key %q skipped: %v", key, err)
		}
		if err := m.historical.Put(ctx, key, data); err != nil {
			m.metrics.RecordPersistFailure()
			m.logger.Warnf("historical write-back for key %q failed: %v", key, err)
		}
	}()
}

func (m *Manager) recordAttempt(kind StrategyKind) {
	m.metrics.RecordAttempt(kind)
	if m.recorder != nil {
		m.recorder.RecordAttempt(string(kind))
	}
}

func (m *Manager) recordOutcome(kind StrategyKind, success bool, latency time.Duration) {
	if success {
		m.metrics.RecordSuccess(kind, latency)
	} else {
		m.metrics.RecordFailure(kind)
	}
	if m.recorder != nil {
		m.recorder.RecordOutcome(string(kind), success, latency)
	}
}

// StartProbing launches the background health prober for alternative
// endpoints. It is stopped by Shutdown.
func (m *Manager) StartProbing(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	m.probeCancel = cancel
	go m.alternatives.StartProbing(ctx, interval)
}

// Shutdown stops background probing and drains in-flight write-backs, bounded
// by ctx.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.probeCancel != nil {
		m.probeCancel()
	}

	done := make(chan struct{})
	go func() {
		m.persistWG.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Cache exposes the cache strategy for direct reads and warm-up writes.
func (m *Manager) Cache() *CacheStrategy { return m.cache }

// Historical exposes the historical strategy.
func (m *Manager) Historical() *HistoricalStrategy { return m.historical }

// Alternatives exposes the alternative-endpoint strategy for registration
// and probing.
func (m *Manager) Alternatives() *AlternativeEndpointStrategy { return m.alternatives }

// Hooks exposes the scraping hook registry.
func (m *Manager) Hooks() *ScrapingHookStrategy { return m.hooks }

// Mock exposes the mock template registry.
func (m *Manager) Mock() *MockStrategy { return m.mock }

// Degraded exposes the degradation level registry.
func (m *Manager) Degraded() *DegradedStrategy { return m.degraded }

// Retry exposes the retry wrapper so callers can wrap their primary
// operation explicitly.
func (m *Manager) Retry() *RetryStrategy { return m.retry }

// Metrics returns a point-in-time metrics snapshot.
func (m *Manager) Metrics() Snapshot { return m.metrics.Snapshot() }
