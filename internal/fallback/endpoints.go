// internal/fallback/endpoints.go
package fallback

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/valpere/ResilientFetch/internal/utils"
)

// EndpointState is the binary health of an alternative endpoint. There is no
// half-open state: an unhealthy endpoint stays unhealthy until an explicit
// probe succeeds, no matter how much time passes.
type EndpointState int32

const (
	EndpointHealthy EndpointState = iota
	EndpointUnhealthy
)

// String returns the state name.
func (s EndpointState) String() string {
	if s == EndpointHealthy {
		return "HEALTHY"
	}
	return "UNHEALTHY"
}

type endpointRecord struct {
	state       atomic.Int32
	lastFailure atomic.Int64 // unix nanos
	lastProbe   atomic.Int64
}

// EndpointRegistry tracks the substitute backends declared for each source
// and their health. The alternates lists are fixed per registration; health
// flips use atomics so the hot path never takes the registry write lock.
type EndpointRegistry struct {
	mu         sync.RWMutex
	alternates map[string][]string
	endpoints  map[string]*endpointRecord
}

// NewEndpointRegistry creates an empty registry.
func NewEndpointRegistry() *EndpointRegistry {
	return &EndpointRegistry{
		alternates: make(map[string][]string),
		endpoints:  make(map[string]*endpointRecord),
	}
}

// RegisterAlternatives declares the ordered substitute backends for a
// source. All endpoints start HEALTHY.
func (r *EndpointRegistry) RegisterAlternatives(primaryID string, alternateIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, len(alternateIDs))
	copy(ids, alternateIDs)
	r.alternates[primaryID] = ids
	for _, id := range ids {
		if _, ok := r.endpoints[id]; !ok {
			r.endpoints[id] = &endpointRecord{}
		}
	}
}

// AlternatesFor returns the declared alternates for a source in order.
func (r *EndpointRegistry) AlternatesFor(primaryID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.alternates[primaryID]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

func (r *EndpointRegistry) record(endpointID string) *endpointRecord {
	r.mu.RLock()
	rec := r.endpoints[endpointID]
	r.mu.RUnlock()
	return rec
}

// IsHealthy reports whether the endpoint is currently usable. Unknown
// endpoints are not.
func (r *EndpointRegistry) IsHealthy(endpointID string) bool {
	rec := r.record(endpointID)
	return rec != nil && EndpointState(rec.state.Load()) == EndpointHealthy
}

// MarkUnhealthy flips the endpoint to UNHEALTHY immediately. Called on any
// failed use.
func (r *EndpointRegistry) MarkUnhealthy(endpointID string) {
	if rec := r.record(endpointID); rec != nil {
		rec.state.Store(int32(EndpointUnhealthy))
		rec.lastFailure.Store(time.Now().UnixNano())
	}
}

// markHealthy restores the endpoint. Only reachable through a successful
// probe.
func (r *EndpointRegistry) markHealthy(endpointID string) {
	if rec := r.record(endpointID); rec != nil {
		rec.state.Store(int32(EndpointHealthy))
	}
}

// UnhealthyEndpoints lists all endpoints currently marked UNHEALTHY.
func (r *EndpointRegistry) UnhealthyEndpoints() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for id, rec := range r.endpoints {
		if EndpointState(rec.state.Load()) == EndpointUnhealthy {
			out = append(out, id)
		}
	}
	return out
}

// RequestFunc performs a fetch against one alternative endpoint.
type RequestFunc func(ctx context.Context, endpointID, query string) ([]byte, error)

// ProbeFunc performs a lightweight out-of-band liveness check.
type ProbeFunc func(ctx context.Context, endpointID string) error

// NewHTTPProbe returns a ProbeFunc that issues a GET against the endpoint ID
// (interpreted as a URL) and accepts any 2xx answer.
func NewHTTPProbe(client *http.Client) ProbeFunc {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return func(ctx context.Context, endpointID string) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpointID, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("probe returned status %d", resp.StatusCode)
		}
		return nil
	}
}

// AlternativeEndpointStrategy tries substitute backends in declared order,
// skipping unhealthy ones. A failed attempt marks that endpoint UNHEALTHY and
// moves on; restoration happens only through ProbeHealth, which is never run
// on the request path.
type AlternativeEndpointStrategy struct {
	registry *EndpointRegistry
	request  RequestFunc
	probe    ProbeFunc

	// probeLimiter paces background probing so a flapping backend is not
	// hammered with liveness checks.
	probeLimiter *rate.Limiter

	logger utils.Logger
}

// NewAlternativeEndpointStrategy wires the strategy. request is required for
// the strategy to produce data; probe defaults to an HTTP GET liveness check.
func NewAlternativeEndpointStrategy(registry *EndpointRegistry, request RequestFunc, probe ProbeFunc, logger utils.Logger) *AlternativeEndpointStrategy {
	if probe == nil {
		probe = NewHTTPProbe(nil)
	}
	return &AlternativeEndpointStrategy{
		registry:     registry,
		request:      request,
		probe:        probe,
		probeLimiter: rate.NewLimiter(rate.Every(time.Second), 1),
		logger:       logger.WithField("strategy", string(KindAlternative)),
	}
}

// Kind implements Strategy.
func (s *AlternativeEndpointStrategy) Kind() StrategyKind { return KindAlternative }

// Registry exposes the health registry for registration and inspection.
func (s *AlternativeEndpointStrategy) Registry() *EndpointRegistry { return s.registry }

// GetFallbackData implements Strategy.
func (s *AlternativeEndpointStrategy) GetFallbackData(ctx context.Context, sourceID, key, query string) (*Result, error) {
	if s.request == nil {
		return nil, newError(ErrCodeNoData, "no endpoint request function configured")
	}

	alternates := s.registry.AlternatesFor(sourceID)
	if len(alternates) == 0 {
		return nil, newError(ErrCodeNoData, "no alternative endpoints registered for source %q", sourceID)
	}

	var lastErr error
	skipped := 0
	for _, endpointID := range alternates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.registry.IsHealthy(endpointID) {
			skipped++
			s.logger.Debugf("skipping unhealthy endpoint %q", endpointID)
			continue
		}

		payload, err := s.request(ctx, endpointID, query)
		if err != nil {
			s.registry.MarkUnhealthy(endpointID)
			s.logger.Warnf("endpoint %q failed, marked unhealthy: %v", endpointID, err)
			lastErr = err
			continue
		}
		return &Result{Payload: payload, Provenance: "alternative:" + endpointID}, nil
	}

	if skipped == len(alternates) {
		return nil, newError(ErrCodeEndpointUnhealthy,
			"all %d alternative endpoints for source %q are unhealthy", skipped, sourceID)
	}
	return nil, wrapError(lastErr, ErrCodeNoData,
		"all alternative endpoints for source %q failed", sourceID)
}

// ProbeHealth runs the explicit liveness check for one endpoint. Only a
// successful probe transitions UNHEALTHY back to HEALTHY.
func (s *AlternativeEndpointStrategy) ProbeHealth(ctx context.Context, endpointID string) bool {
	rec := s.registry.record(endpointID)
	if rec == nil {
		return false
	}
	rec.lastProbe.Store(time.Now().UnixNano())

	if err := s.probe(ctx, endpointID); err != nil {
		s.logger.Debugf("probe of %q failed: %v", endpointID, err)
		return false
	}
	s.registry.markHealthy(endpointID)
	s.logger.Infof("endpoint %q restored to healthy by probe", endpointID)
	return true
}

// StartProbing launches the background prober: every interval it probes the
// currently unhealthy endpoints, rate-limited so probes stay lightweight.
// It returns when ctx is cancelled.
func (s *AlternativeEndpointStrategy) StartProbing(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, endpointID := range s.registry.UnhealthyEndpoints() {
				if err := s.probeLimiter.Wait(ctx); err != nil {
					return
				}
				s.ProbeHealth(ctx, endpointID)
			}
		}
	}
}
