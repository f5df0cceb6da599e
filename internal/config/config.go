// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/valpere/ResilientFetch/internal/fallback"
	"github.com/valpere/ResilientFetch/internal/store"
)

// Config is the full application configuration loaded from YAML. Durations
// are strings ("5m", "24h") parsed at validation time.
type Config struct {
	Fallback FallbackConfig `yaml:"fallback" json:"fallback"`
	Store    StoreConfig    `yaml:"store,omitempty" json:"store,omitempty"`
	Sources  []SourceConfig `yaml:"sources,omitempty" json:"sources,omitempty"`
	Metrics  MetricsConfig  `yaml:"metrics,omitempty" json:"metrics,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty" json:"logging,omitempty"`
}

// FallbackConfig mirrors fallback.Config with YAML-friendly types.
type FallbackConfig struct {
	StrategyOrder []string `yaml:"strategy_order,omitempty" json:"strategy_order,omitempty"`

	CacheTTL      string `yaml:"cache_ttl,omitempty" json:"cache_ttl,omitempty"`
	HistoricalTTL string `yaml:"historical_ttl,omitempty" json:"historical_ttl,omitempty"`

	MaxRetryAttempts int    `yaml:"max_retry_attempts,omitempty" json:"max_retry_attempts,omitempty"`
	BaseRetryDelay   string `yaml:"base_retry_delay,omitempty" json:"base_retry_delay,omitempty"`
	MaxRetryDelay    string `yaml:"max_retry_delay,omitempty" json:"max_retry_delay,omitempty"`

	MaxCachedPayloadBytes int  `yaml:"max_cached_payload_bytes,omitempty" json:"max_cached_payload_bytes,omitempty"`
	CompressionEnabled    bool `yaml:"compression_enabled" json:"compression_enabled"`
	CompressionThreshold  int  `yaml:"compression_threshold,omitempty" json:"compression_threshold,omitempty"`

	MetricsEnabled bool `yaml:"metrics_enabled" json:"metrics_enabled"`

	HistoryDepth         int `yaml:"history_depth,omitempty" json:"history_depth,omitempty"`
	MaxHistoricalEntries int `yaml:"max_historical_entries,omitempty" json:"max_historical_entries,omitempty"`

	PersistTimeout string `yaml:"persist_timeout,omitempty" json:"persist_timeout,omitempty"`
	ProbeInterval  string `yaml:"probe_interval,omitempty" json:"probe_interval,omitempty"`
}

// StoreConfig selects the optional durable backing store.
type StoreConfig struct {
	Backend    string `yaml:"backend,omitempty" json:"backend,omitempty"`
	DSN        string `yaml:"dsn,omitempty" json:"dsn,omitempty"`
	Table      string `yaml:"table,omitempty" json:"table,omitempty"`
	Database   string `yaml:"database,omitempty" json:"database,omitempty"`
	Collection string `yaml:"collection,omitempty" json:"collection,omitempty"`
}

// SourceConfig declares one data source: its alternates, its recovery
// scraping selector, and its synthetic/degraded templates.
type SourceConfig struct {
	ID         string   `yaml:"id" json:"id"`
	URL        string   `yaml:"url,omitempty" json:"url,omitempty"`
	Alternates []string `yaml:"alternates,omitempty" json:"alternates,omitempty"`

	// ScrapeSelector is a CSS selector used to build an HTML scraping hook
	// for this source. ScrapeRender switches the hook to a headless browser
	// so script-driven pages work too.
	ScrapeSelector string `yaml:"scrape_selector,omitempty" json:"scrape_selector,omitempty"`
	ScrapeRender   bool   `yaml:"scrape_render,omitempty" json:"scrape_render,omitempty"`

	MockTemplate   string                `yaml:"mock_template,omitempty" json:"mock_template,omitempty"`
	DegradedLevels []DegradedLevelConfig `yaml:"degraded_levels,omitempty" json:"degraded_levels,omitempty"`
}

// DegradedLevelConfig is one reduced-feature tier in YAML form.
type DegradedLevelConfig struct {
	Template         string   `yaml:"template" json:"template"`
	DisabledFeatures []string `yaml:"disabled_features,omitempty" json:"disabled_features,omitempty"`
}

// MetricsConfig controls the monitoring HTTP server.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Address string `yaml:"address,omitempty" json:"address,omitempty"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty" json:"level,omitempty"`
	// Format selects "simple" or "zap" output.
	Format string `yaml:"format,omitempty" json:"format,omitempty"`
}

// LoadFile reads and parses a YAML configuration file, applies defaults, and
// validates the result.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Load(data)
}

// Load parses YAML configuration bytes.
func Load(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Metrics.Address == "" {
		c.Metrics.Address = ":9090"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "simple"
	}
	if c.Fallback.ProbeInterval == "" {
		c.Fallback.ProbeInterval = "30s"
	}
}

// Validate checks durations, store backend names, and source declarations.
func (c *Config) Validate() error {
	durations := map[string]string{
		"fallback.cache_ttl":        c.Fallback.CacheTTL,
		"fallback.historical_ttl":   c.Fallback.HistoricalTTL,
		"fallback.base_retry_delay": c.Fallback.BaseRetryDelay,
		"fallback.max_retry_delay":  c.Fallback.MaxRetryDelay,
		"fallback.persist_timeout":  c.Fallback.PersistTimeout,
		"fallback.probe_interval":   c.Fallback.ProbeInterval,
	}
	for field, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %q", field, value)
		}
	}

	if c.Store.Backend != "" {
		switch c.Store.Backend {
		case store.BackendMemory, store.BackendSQLite, store.BackendPostgreSQL,
			store.BackendMySQL, store.BackendMongoDB, store.BackendRedis:
		default:
			return fmt.Errorf("unknown store backend %q", c.Store.Backend)
		}
	}

	seen := make(map[string]bool, len(c.Sources))
	for i, src := range c.Sources {
		if src.ID == "" {
			return fmt.Errorf("sources[%d]: id is required", i)
		}
		if seen[src.ID] {
			return fmt.Errorf("sources[%d]: duplicate source id %q", i, src.ID)
		}
		seen[src.ID] = true
	}
	return nil
}

// parseDuration returns the parsed value or fallback when empty. Validate has
// already rejected malformed strings.
func parseDuration(value string, fallbackValue time.Duration) time.Duration {
	if value == "" {
		return fallbackValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallbackValue
	}
	return d
}

// ToManagerConfig converts the YAML form into the manager's runtime
// configuration.
func (c *Config) ToManagerConfig() *fallback.Config {
	out := &fallback.Config{
		CacheTTL:              parseDuration(c.Fallback.CacheTTL, 0),
		HistoricalTTL:         parseDuration(c.Fallback.HistoricalTTL, 0),
		MaxRetryAttempts:      c.Fallback.MaxRetryAttempts,
		BaseRetryDelay:        parseDuration(c.Fallback.BaseRetryDelay, 0),
		MaxRetryDelay:         parseDuration(c.Fallback.MaxRetryDelay, 0),
		MaxCachedPayloadBytes: c.Fallback.MaxCachedPayloadBytes,
		CompressionEnabled:    c.Fallback.CompressionEnabled,
		CompressionThreshold:  c.Fallback.CompressionThreshold,
		MetricsEnabled:        c.Fallback.MetricsEnabled,
		HistoryDepth:          c.Fallback.HistoryDepth,
		MaxHistoricalEntries:  c.Fallback.MaxHistoricalEntries,
		PersistTimeout:        parseDuration(c.Fallback.PersistTimeout, 0),
	}
	for _, kind := range c.Fallback.StrategyOrder {
		out.StrategyOrder = append(out.StrategyOrder, fallback.StrategyKind(kind))
	}
	return out
}

// ProbeInterval returns the parsed background probe cadence.
func (c *Config) ProbeInterval() time.Duration {
	return parseDuration(c.Fallback.ProbeInterval, 30*time.Second)
}

// StoreOptions converts the store section for store.Open. Returns false when
// no durable store is configured.
func (c *Config) StoreOptions() (store.Options, bool) {
	if c.Store.Backend == "" {
		return store.Options{}, false
	}
	return store.Options{
		Backend:    c.Store.Backend,
		DSN:        c.Store.DSN,
		Table:      c.Store.Table,
		Database:   c.Store.Database,
		Collection: c.Store.Collection,
	}, true
}
