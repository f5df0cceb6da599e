// internal/fallback/endpoints_test.go
package fallback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeEndpoints is a scriptable RequestFunc/ProbeFunc pair: endpoints listed
// in failing error on request and probe until removed.
type fakeEndpoints struct {
	mu      sync.Mutex
	failing map[string]bool
	calls   []string
}

func newFakeEndpoints(failing ...string) *fakeEndpoints {
	f := &fakeEndpoints{failing: make(map[string]bool)}
	for _, id := range failing {
		f.failing[id] = true
	}
	return f
}

func (f *fakeEndpoints) request(ctx context.Context, endpointID, query string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, endpointID)
	if f.failing[endpointID] {
		return nil, fmt.Errorf("endpoint %s is down", endpointID)
	}
	return []byte("data from " + endpointID), nil
}

func (f *fakeEndpoints) probe(ctx context.Context, endpointID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing[endpointID] {
		return fmt.Errorf("probe of %s failed", endpointID)
	}
	return nil
}

func (f *fakeEndpoints) recover(endpointID string) {
	f.mu.Lock()
	f.failing[endpointID] = false
	f.mu.Unlock()
}

func (f *fakeEndpoints) requested(endpointID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, id := range f.calls {
		if id == endpointID {
			n++
		}
	}
	return n
}

func newTestAlternatives(fake *fakeEndpoints, alternates ...string) *AlternativeEndpointStrategy {
	registry := NewEndpointRegistry()
	registry.RegisterAlternatives("src", alternates)
	return NewAlternativeEndpointStrategy(registry, fake.request, fake.probe, testLogger())
}

func TestAlternativeDeclaredOrder(t *testing.T) {
	fake := newFakeEndpoints()
	s := newTestAlternatives(fake, "a", "b")

	result, err := s.GetFallbackData(context.Background(), "src", "k", "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Provenance != "alternative:a" {
		t.Errorf("expected first declared endpoint, got %q", result.Provenance)
	}
}

func TestAlternativeFailureMarksUnhealthy(t *testing.T) {
	fake := newFakeEndpoints("a")
	s := newTestAlternatives(fake, "a", "b")
	ctx := context.Background()

	result, err := s.GetFallbackData(ctx, "src", "k", "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Provenance != "alternative:b" {
		t.Errorf("expected fallback to b, got %q", result.Provenance)
	}
	if s.Registry().IsHealthy("a") {
		t.Error("failed endpoint must be marked unhealthy")
	}

	// Second call must skip a entirely.
	before := fake.requested("a")
	if _, err := s.GetFallbackData(ctx, "src", "k", "q"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.requested("a") != before {
		t.Error("unhealthy endpoint was selected again without a probe")
	}
}

func TestAlternativeTimeDoesNotRestore(t *testing.T) {
	fake := newFakeEndpoints("a")
	s := newTestAlternatives(fake, "a")
	ctx := context.Background()

	s.GetFallbackData(ctx, "src", "k", "q")
	if s.Registry().IsHealthy("a") {
		t.Fatal("expected a to be unhealthy")
	}

	time.Sleep(50 * time.Millisecond)
	if s.Registry().IsHealthy("a") {
		t.Error("elapsed time must not restore health")
	}

	_, err := s.GetFallbackData(ctx, "src", "k", "q")
	if err == nil {
		t.Fatal("expected all-unhealthy error")
	}
	if !errors.Is(err, newError(ErrCodeEndpointUnhealthy, "")) {
		t.Errorf("expected ENDPOINT_UNHEALTHY, got %v", err)
	}
}

func TestAlternativeProbeRestores(t *testing.T) {
	fake := newFakeEndpoints("a")
	s := newTestAlternatives(fake, "a")
	ctx := context.Background()

	s.GetFallbackData(ctx, "src", "k", "q")

	// Failed probe must not restore.
	if s.ProbeHealth(ctx, "a") {
		t.Error("probe against a failing endpoint must not succeed")
	}
	if s.Registry().IsHealthy("a") {
		t.Error("failed probe must leave endpoint unhealthy")
	}

	fake.recover("a")
	if !s.ProbeHealth(ctx, "a") {
		t.Fatal("probe against a recovered endpoint must succeed")
	}
	if !s.Registry().IsHealthy("a") {
		t.Error("successful probe must restore health")
	}

	result, err := s.GetFallbackData(ctx, "src", "k", "q")
	if err != nil {
		t.Fatalf("unexpected error after restore: %v", err)
	}
	if result.Provenance != "alternative:a" {
		t.Errorf("expected restored endpoint to serve, got %q", result.Provenance)
	}
}

func TestAlternativeNoneRegistered(t *testing.T) {
	fake := newFakeEndpoints()
	s := NewAlternativeEndpointStrategy(NewEndpointRegistry(), fake.request, fake.probe, testLogger())

	_, err := s.GetFallbackData(context.Background(), "src", "k", "q")
	if err == nil {
		t.Fatal("expected error for source without alternates")
	}
	if CodeOf(err) != ErrCodeNoData {
		t.Errorf("expected NO_DATA, got %s", CodeOf(err))
	}
}

func TestAlternativeContextCancellation(t *testing.T) {
	fake := newFakeEndpoints()
	s := newTestAlternatives(fake, "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.GetFallbackData(ctx, "src", "k", "q")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
