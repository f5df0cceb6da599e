// internal/fallback/hooks.go
package fallback

import (
	"context"
	"sync"

	"github.com/valpere/ResilientFetch/internal/utils"
)

// ScrapingHook is a caller-supplied recovery function for one source. The
// orchestrator assumes nothing about how it obtains data; it only requires
// cancellation to be honored.
type ScrapingHook func(ctx context.Context, query string) ([]byte, error)

// ScrapingHookStrategy maps source identifiers to caller-provided recovery
// hooks. It is a thin registry: the value it adds is giving source-specific
// recovery a uniform slot in the chain.
type ScrapingHookStrategy struct {
	mu     sync.RWMutex
	hooks  map[string]ScrapingHook
	logger utils.Logger
}

// NewScrapingHookStrategy creates an empty hook registry.
func NewScrapingHookStrategy(logger utils.Logger) *ScrapingHookStrategy {
	return &ScrapingHookStrategy{
		hooks:  make(map[string]ScrapingHook),
		logger: logger.WithField("strategy", string(KindScraping)),
	}
}

// Kind implements Strategy.
func (s *ScrapingHookStrategy) Kind() StrategyKind { return KindScraping }

// Register associates a recovery hook with a source, replacing any previous
// registration.
func (s *ScrapingHookStrategy) Register(sourceID string, hook ScrapingHook) {
	s.mu.Lock()
	s.hooks[sourceID] = hook
	s.mu.Unlock()
}

// Unregister removes the hook for a source.
func (s *ScrapingHookStrategy) Unregister(sourceID string) {
	s.mu.Lock()
	delete(s.hooks, sourceID)
	s.mu.Unlock()
}

// GetFallbackData implements Strategy. Absent when no hook is registered or
// the hook errors.
func (s *ScrapingHookStrategy) GetFallbackData(ctx context.Context, sourceID, key, query string) (*Result, error) {
	s.mu.RLock()
	hook, ok := s.hooks[sourceID]
	s.mu.RUnlock()

	if !ok {
		return nil, newError(ErrCodeNoData, "no scraping hook registered for source %q", sourceID)
	}

	payload, err := hook(ctx, query)
	if err != nil {
		s.logger.Warnf("scraping hook for source %q failed: %v", sourceID, err)
		return nil, wrapError(err, ErrCodeNoData, "scraping hook for source %q failed", sourceID)
	}
	if len(payload) == 0 {
		return nil, newError(ErrCodeNoData, "scraping hook for source %q produced no data", sourceID)
	}
	return &Result{Payload: payload, Provenance: ProvenanceScraping}, nil
}
