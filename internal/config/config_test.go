// internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/valpere/ResilientFetch/internal/fallback"
)

const validYAML = `
fallback:
  strategy_order: [cache, historical, mock]
  cache_ttl: 2m
  historical_ttl: 12h
  max_retry_attempts: 5
  base_retry_delay: 250ms
  compression_enabled: true
  metrics_enabled: true
store:
  backend: memory
sources:
  - id: quotes
    url: https://example.com/quotes
    alternates:
      - https://backup.example.com/quotes
    scrape_selector: ".quote .text"
    mock_template: '{"quotes": []}'
    degraded_levels:
      - template: '{"quotes": [], "partial": true}'
        disabled_features: [search]
metrics:
  enabled: true
  address: ":9191"
logging:
  level: debug
`

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load([]byte(validYAML))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if len(cfg.Sources) != 1 || cfg.Sources[0].ID != "quotes" {
		t.Errorf("sources not parsed: %+v", cfg.Sources)
	}
	if cfg.Metrics.Address != ":9191" {
		t.Errorf("metrics address not parsed: %q", cfg.Metrics.Address)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging level not parsed: %q", cfg.Logging.Level)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load([]byte("fallback:\n  metrics_enabled: true\n"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Metrics.Address != ":9090" {
		t.Errorf("default metrics address not applied: %q", cfg.Metrics.Address)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("default log level not applied: %q", cfg.Logging.Level)
	}
	if cfg.ProbeInterval() != 30*time.Second {
		t.Errorf("default probe interval not applied: %v", cfg.ProbeInterval())
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad duration", "fallback:\n  cache_ttl: forever\n"},
		{"unknown backend", "store:\n  backend: cassandra\n"},
		{"missing source id", "sources:\n  - url: https://example.com\n"},
		{"duplicate source id", "sources:\n  - id: a\n  - id: a\n"},
		{"malformed yaml", "fallback: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load([]byte(tt.yaml)); err == nil {
				t.Error("expected load to fail")
			}
		})
	}
}

func TestToManagerConfig(t *testing.T) {
	cfg, err := Load([]byte(validYAML))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	mc := cfg.ToManagerConfig()
	if mc.CacheTTL != 2*time.Minute {
		t.Errorf("cache TTL not converted: %v", mc.CacheTTL)
	}
	if mc.HistoricalTTL != 12*time.Hour {
		t.Errorf("historical TTL not converted: %v", mc.HistoricalTTL)
	}
	if mc.MaxRetryAttempts != 5 {
		t.Errorf("retry attempts not converted: %d", mc.MaxRetryAttempts)
	}
	if mc.BaseRetryDelay != 250*time.Millisecond {
		t.Errorf("base delay not converted: %v", mc.BaseRetryDelay)
	}

	want := []fallback.StrategyKind{fallback.KindCache, fallback.KindHistorical, fallback.KindMock}
	if len(mc.StrategyOrder) != len(want) {
		t.Fatalf("strategy order length mismatch: %v", mc.StrategyOrder)
	}
	for i, kind := range want {
		if mc.StrategyOrder[i] != kind {
			t.Errorf("strategy order[%d] = %q, want %q", i, mc.StrategyOrder[i], kind)
		}
	}

	// The converted config must pass the manager's own validation.
	if _, err := fallback.NewManager(mc); err != nil {
		t.Errorf("converted config rejected by manager: %v", err)
	}
}

func TestStoreOptions(t *testing.T) {
	cfg, err := Load([]byte("store:\n  backend: sqlite\n  dsn: /tmp/kv.db\n  table: fallback_kv\n"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	opts, ok := cfg.StoreOptions()
	if !ok {
		t.Fatal("expected store options to be present")
	}
	if opts.Backend != "sqlite" || opts.DSN != "/tmp/kv.db" || opts.Table != "fallback_kv" {
		t.Errorf("store options not mapped: %+v", opts)
	}

	empty, _ := Load([]byte("fallback:\n  metrics_enabled: true\n"))
	if _, ok := empty.StoreOptions(); ok {
		t.Error("no store section must yield no options")
	}
}
