// internal/fallback/manager_test.go
package fallback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func newTestManager(t *testing.T, cfg *Config) *Manager {
	t.Helper()
	m, err := NewManager(cfg, WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("manager construction failed: %v", err)
	}
	return m
}

func failingOp(err error) PrimaryOp {
	return func(ctx context.Context) ([]byte, error) { return nil, err }
}

func succeedingOp(payload []byte) PrimaryOp {
	return func(ctx context.Context) ([]byte, error) { return payload, nil }
}

func TestManagerPrimarySuccess(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	payload := []byte(`{"value": 1}`)
	result, err := m.ExecuteWithFallback(ctx, succeedingOp(payload), "src", "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Provenance != ProvenancePrimary {
		t.Errorf("expected primary provenance, got %q", result.Provenance)
	}
	if !bytes.Equal(result.Payload, payload) {
		t.Error("payload mismatch")
	}

	// The write-back is asynchronous; drain it before checking the cache.
	if err := m.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	key := BuildKey("src", "q")
	cached, err := m.Cache().Get(ctx, key)
	if err != nil {
		t.Fatalf("primary result not persisted to cache: %v", err)
	}
	if !bytes.Equal(cached, payload) {
		t.Error("cached payload mismatch")
	}
	if _, _, err := m.Historical().Get(ctx, key); err != nil {
		t.Errorf("primary result not persisted to history: %v", err)
	}
}

func TestManagerHistoricalRecovery(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	key := BuildKey("src", "q")
	m.Historical().Put(ctx, key, []byte("yesterday"))

	result, err := m.ExecuteWithFallback(ctx, failingOp(errors.New("down")), "src", "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Provenance != ProvenanceHistorical {
		t.Errorf("expected historical provenance, got %q", result.Provenance)
	}
	if !bytes.Equal(result.Payload, []byte("yesterday")) {
		t.Error("payload mismatch")
	}

	snap := m.Metrics()
	if snap.Strategies[string(KindHistorical)].Successes != 1 {
		t.Error("expected one recorded historical success")
	}
	if snap.Strategies[string(KindCache)].Failures != 1 {
		t.Error("cache miss before the historical hit must be counted")
	}
	if snap.LastFallback.IsZero() {
		t.Error("fallback success must stamp the last-fallback time")
	}
}

func TestManagerCachePreferredOverHistorical(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	key := BuildKey("src", "q")
	m.Cache().Put(ctx, key, []byte("cached"))
	m.Historical().Put(ctx, key, []byte("historical"))

	result, err := m.ExecuteWithFallback(ctx, failingOp(errors.New("down")), "src", "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Provenance != ProvenanceCache {
		t.Errorf("cache must win over historical, got %q", result.Provenance)
	}
	if !bytes.Equal(result.Payload, []byte("cached")) {
		t.Error("payload mismatch")
	}
}

func TestManagerMockLastResort(t *testing.T) {
	m := newTestManager(t, nil)

	result, err := m.ExecuteWithFallback(context.Background(),
		failingOp(errors.New("down")), "src", "q")
	if err != nil {
		t.Fatalf("default chain must end in the mock, got error: %v", err)
	}
	if result.Provenance != ProvenanceMock {
		t.Errorf("expected mock provenance, got %q", result.Provenance)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(result.Payload, &doc); err != nil {
		t.Fatalf("mock payload must be JSON: %v", err)
	}
	if doc["synthetic"] != true {
		t.Error("mock payload must be tagged synthetic")
	}
}

func TestManagerStrategyExhausted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StrategyOrder = []StrategyKind{KindCache, KindHistorical}
	m := newTestManager(t, cfg)

	_, err := m.ExecuteWithFallback(context.Background(),
		failingOp(errors.New("primary down")), "src", "q")
	if err == nil {
		t.Fatal("expected terminal error")
	}

	var exhausted *StrategyExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected StrategyExhaustedError, got %T", err)
	}
	if exhausted.SourceID != "src" {
		t.Errorf("unexpected source id %q", exhausted.SourceID)
	}
	if exhausted.Primary != "primary down" {
		t.Errorf("primary failure not carried: %q", exhausted.Primary)
	}
	if len(exhausted.Failures) != 2 {
		t.Fatalf("expected 2 per-strategy failures, got %d", len(exhausted.Failures))
	}
	if exhausted.Failures[0].Kind != KindCache || exhausted.Failures[1].Kind != KindHistorical {
		t.Errorf("failures not in chain order: %+v", exhausted.Failures)
	}
	if !errors.Is(err, newError(ErrCodeStrategyExhausted, "")) {
		t.Error("terminal error must match the STRATEGY_EXHAUSTED code")
	}
}

func TestManagerCustomStrategyOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StrategyOrder = []StrategyKind{KindMock, KindCache}
	m := newTestManager(t, cfg)
	ctx := context.Background()

	m.Cache().Put(ctx, BuildKey("src", "q"), []byte("cached"))

	result, err := m.ExecuteWithFallback(ctx, failingOp(errors.New("down")), "src", "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Mock listed first wins even though the cache has data.
	if result.Provenance != ProvenanceMock {
		t.Errorf("configured order not honored, got %q", result.Provenance)
	}
}

func TestManagerScrapingHook(t *testing.T) {
	m := newTestManager(t, nil)
	m.Hooks().Register("src", func(ctx context.Context, query string) ([]byte, error) {
		return []byte("scraped:" + query), nil
	})

	result, err := m.ExecuteWithFallback(context.Background(),
		failingOp(errors.New("down")), "src", "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Provenance != ProvenanceScraping {
		t.Errorf("expected scraping provenance, got %q", result.Provenance)
	}
	if string(result.Payload) != "scraped:q" {
		t.Errorf("hook output lost: %q", result.Payload)
	}
}

func TestManagerCancellationPropagates(t *testing.T) {
	m := newTestManager(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	op := func(ctx context.Context) ([]byte, error) {
		cancel()
		return nil, ctx.Err()
	}

	_, err := m.ExecuteWithFallback(ctx, op, "src", "q")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("cancellation must surface directly, got %v", err)
	}
}

func TestManagerInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StrategyOrder = []StrategyKind{"nonsense"}
	if _, err := NewManager(cfg, WithLogger(testLogger())); err == nil {
		t.Fatal("expected invalid config to be rejected")
	}

	cfg = DefaultConfig()
	cfg.StrategyOrder = []StrategyKind{KindCache, KindCache}
	if _, err := NewManager(cfg, WithLogger(testLogger())); err == nil {
		t.Fatal("expected duplicate strategy to be rejected")
	}
}

func TestManagerParallelCallsDistinctKeys(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	const n = 32
	var wg sync.WaitGroup
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			query := fmt.Sprintf("query-%d", i)
			payload := []byte(fmt.Sprintf("payload-%d", i))
			for j := 0; j < 5; j++ {
				result, err := m.ExecuteWithFallback(ctx, succeedingOp(payload), "src", query)
				if err != nil {
					errs[i] = err
					return
				}
				if !bytes.Equal(result.Payload, payload) {
					errs[i] = fmt.Errorf("cross-key contamination for %s", query)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}

	if err := m.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	// Each key's history must be self-consistent: every entry carries that
	// key's payload, never a neighbor's.
	for i := 0; i < n; i++ {
		key := BuildKey("src", fmt.Sprintf("query-%d", i))
		payload, _, err := m.Historical().Get(ctx, key)
		if err != nil {
			t.Fatalf("history missing for key %d: %v", i, err)
		}
		if !bytes.Equal(payload, []byte(fmt.Sprintf("payload-%d", i))) {
			t.Errorf("interleaved history for key %d: %q", i, payload)
		}
	}
}

func TestManagerShutdownBounded(t *testing.T) {
	m := newTestManager(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := m.Shutdown(ctx); err != nil {
		t.Fatalf("idle shutdown must complete immediately: %v", err)
	}
}

type countingRecorder struct {
	mu       sync.Mutex
	attempts map[string]int
	outcomes map[string]int
}

func (r *countingRecorder) RecordAttempt(kind string) {
	r.mu.Lock()
	r.attempts[kind]++
	r.mu.Unlock()
}

func (r *countingRecorder) RecordOutcome(kind string, success bool, _ time.Duration) {
	r.mu.Lock()
	r.outcomes[kind]++
	r.mu.Unlock()
}

func TestManagerRecorderReceivesEvents(t *testing.T) {
	rec := &countingRecorder{attempts: make(map[string]int), outcomes: make(map[string]int)}
	m, err := NewManager(nil, WithLogger(testLogger()), WithRecorder(rec))
	if err != nil {
		t.Fatalf("manager construction failed: %v", err)
	}

	m.ExecuteWithFallback(context.Background(), failingOp(errors.New("down")), "src", "q")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.attempts[string(KindPrimary)] != 1 {
		t.Error("recorder missed the primary attempt")
	}
	if rec.attempts[string(KindMock)] != 1 {
		t.Error("recorder missed the mock attempt")
	}
	if rec.outcomes[string(KindCache)] != 1 {
		t.Error("recorder missed the cache outcome")
	}
}
