// internal/fallback/types.go
package fallback

import (
	"context"
	"time"
)

// StrategyKind identifies one of the closed set of fallback strategies.
type StrategyKind string

const (
	KindCache       StrategyKind = "cache"
	KindHistorical  StrategyKind = "historical"
	KindAlternative StrategyKind = "alternative"
	KindScraping    StrategyKind = "scraping"
	KindMock        StrategyKind = "mock"
	KindDegraded    StrategyKind = "degraded"

	// KindPrimary is not a fallback strategy; it keys the metrics bucket
	// for the primary operation itself.
	KindPrimary StrategyKind = "primary"
)

// Provenance tags attached to returned results.
const (
	ProvenancePrimary    = "primary"
	ProvenanceCache      = "cache"
	ProvenanceHistorical = "historical"
	ProvenanceScraping   = "scraping"
	ProvenanceMock       = "mock"
)

// PrimaryOp is the caller-supplied primary fetch operation. It must honor
// context cancellation.
type PrimaryOp func(ctx context.Context) ([]byte, error)

// Result is a payload together with the provenance tag of the strategy that
// produced it. Stale is set when the payload was served past its declared TTL
// (last-resort historical data), so callers can apply their own staleness
// policy.
type Result struct {
	Payload    []byte `json:"payload"`
	Provenance string `json:"provenance"`
	Stale      bool   `json:"stale,omitempty"`
}

// Strategy is the common capability every fallback strategy implements. A nil
// result with a non-nil error means the strategy produced nothing for this
// source; the chain moves on.
type Strategy interface {
	Kind() StrategyKind
	GetFallbackData(ctx context.Context, sourceID, key, query string) (*Result, error)
}

// Config controls the manager and its strategy chain. It is immutable after
// NewManager returns.
type Config struct {
	// StrategyOrder is the chain walked after a primary failure
	// (primary/secondary/tertiary and so on).
	StrategyOrder []StrategyKind

	CacheTTL      time.Duration
	HistoricalTTL time.Duration

	MaxRetryAttempts int
	BaseRetryDelay   time.Duration
	MaxRetryDelay    time.Duration

	MaxCachedPayloadBytes int
	CompressionEnabled    bool
	CompressionThreshold  int

	MetricsEnabled bool

	// HistoryDepth bounds the per-key historical sequence.
	HistoryDepth int
	// MaxHistoricalEntries is the global soft cap across all keys.
	MaxHistoricalEntries int

	// PersistTimeout bounds the asynchronous cache/historical write-back
	// performed after a successful primary call.
	PersistTimeout time.Duration
}

// Default tuning values, applied by DefaultConfig and applyDefaults.
const (
	DefaultCacheTTL              = 5 * time.Minute
	DefaultHistoricalTTL         = 24 * time.Hour
	DefaultMaxRetryAttempts      = 3
	DefaultBaseRetryDelay        = 100 * time.Millisecond
	DefaultMaxRetryDelay         = 30 * time.Second
	DefaultMaxCachedPayloadBytes = 1 << 20 // 1MB
	DefaultCompressionThreshold  = 4 << 10 // 4KB
	DefaultHistoryDepth          = 10
	DefaultMaxHistoricalEntries  = 10000
	DefaultPersistTimeout        = 5 * time.Second
)

// DefaultConfig returns a configuration with production-safe defaults and the
// conventional cache -> historical -> alternative -> scraping -> mock ->
// degraded chain.
func DefaultConfig() *Config {
	return &Config{
		StrategyOrder: []StrategyKind{
			KindCache, KindHistorical, KindAlternative,
			KindScraping, KindMock, KindDegraded,
		},
		CacheTTL:              DefaultCacheTTL,
		HistoricalTTL:         DefaultHistoricalTTL,
		MaxRetryAttempts:      DefaultMaxRetryAttempts,
		BaseRetryDelay:        DefaultBaseRetryDelay,
		MaxRetryDelay:         DefaultMaxRetryDelay,
		MaxCachedPayloadBytes: DefaultMaxCachedPayloadBytes,
		CompressionEnabled:    true,
		CompressionThreshold:  DefaultCompressionThreshold,
		MetricsEnabled:        true,
		HistoryDepth:          DefaultHistoryDepth,
		MaxHistoricalEntries:  DefaultMaxHistoricalEntries,
		PersistTimeout:        DefaultPersistTimeout,
	}
}

// applyDefaults fills in missing configuration values.
func applyDefaults(cfg *Config) {
	if len(cfg.StrategyOrder) == 0 {
		cfg.StrategyOrder = DefaultConfig().StrategyOrder
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.HistoricalTTL == 0 {
		cfg.HistoricalTTL = DefaultHistoricalTTL
	}
	if cfg.MaxRetryAttempts == 0 {
		cfg.MaxRetryAttempts = DefaultMaxRetryAttempts
	}
	if cfg.BaseRetryDelay == 0 {
		cfg.BaseRetryDelay = DefaultBaseRetryDelay
	}
	if cfg.MaxRetryDelay == 0 {
		cfg.MaxRetryDelay = DefaultMaxRetryDelay
	}
	if cfg.MaxCachedPayloadBytes == 0 {
		cfg.MaxCachedPayloadBytes = DefaultMaxCachedPayloadBytes
	}
	if cfg.CompressionThreshold == 0 {
		cfg.CompressionThreshold = DefaultCompressionThreshold
	}
	if cfg.HistoryDepth == 0 {
		cfg.HistoryDepth = DefaultHistoryDepth
	}
	if cfg.MaxHistoricalEntries == 0 {
		cfg.MaxHistoricalEntries = DefaultMaxHistoricalEntries
	}
	if cfg.PersistTimeout == 0 {
		cfg.PersistTimeout = DefaultPersistTimeout
	}
}

// validKinds is the closed set accepted in StrategyOrder.
var validKinds = map[StrategyKind]bool{
	KindCache:       true,
	KindHistorical:  true,
	KindAlternative: true,
	KindScraping:    true,
	KindMock:        true,
	KindDegraded:    true,
}

// Validate checks the configuration for values the manager cannot work with.
func (cfg *Config) Validate() error {
	seen := make(map[StrategyKind]bool, len(cfg.StrategyOrder))
	for _, kind := range cfg.StrategyOrder {
		if !validKinds[kind] {
			return newError(ErrCodeInvalidConfig, "unknown strategy kind %q", kind)
		}
		if seen[kind] {
			return newError(ErrCodeInvalidConfig, "strategy kind %q listed twice", kind)
		}
		seen[kind] = true
	}
	if cfg.CacheTTL < 0 || cfg.HistoricalTTL < 0 {
		return newError(ErrCodeInvalidConfig, "TTLs cannot be negative")
	}
	if cfg.MaxRetryAttempts < 0 {
		return newError(ErrCodeInvalidConfig, "max retry attempts cannot be negative")
	}
	if cfg.MaxCachedPayloadBytes < 0 {
		return newError(ErrCodeInvalidConfig, "max cached payload size cannot be negative")
	}
	return nil
}
