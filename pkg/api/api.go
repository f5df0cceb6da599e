// pkg/api/api.go
package api

import (
	"context"

	"github.com/valpere/ResilientFetch/internal/config"
	"github.com/valpere/ResilientFetch/internal/fallback"
	"github.com/valpere/ResilientFetch/internal/store"
	"github.com/valpere/ResilientFetch/internal/utils"
	"github.com/valpere/ResilientFetch/pkg/hooks"
)

// Re-export types from internal packages for public API
type Config = config.Config
type SourceConfig = config.SourceConfig
type Result = fallback.Result
type Snapshot = fallback.Snapshot
type PrimaryOp = fallback.PrimaryOp
type ScrapingHook = fallback.ScrapingHook
type DegradationLevel = fallback.DegradationLevel
type StrategyExhaustedError = fallback.StrategyExhaustedError

// Client is the high-level entry point: a fallback manager configured from a
// loaded application config, with sources registered from their declarations.
type Client struct {
	manager *fallback.Manager
	backing store.KVStore
	logger  utils.Logger
}

// NewClient builds a client from application configuration. It opens the
// durable store when one is configured, constructs the manager, and registers
// every declared source's alternates, scraping hook, mock template, and
// degradation levels.
func NewClient(ctx context.Context, cfg *Config, opts ...fallback.ManagerOption) (*Client, error) {
	logger, err := buildLogger(cfg)
	if err != nil {
		return nil, err
	}

	var backing store.KVStore
	if storeOpts, ok := cfg.StoreOptions(); ok {
		kv, err := store.Open(ctx, storeOpts)
		if err != nil {
			return nil, err
		}
		backing = kv
	}

	managerOpts := []fallback.ManagerOption{fallback.WithLogger(logger)}
	if backing != nil {
		managerOpts = append(managerOpts, fallback.WithStore(backing))
	}
	managerOpts = append(managerOpts, opts...)

	manager, err := fallback.NewManager(cfg.ToManagerConfig(), managerOpts...)
	if err != nil {
		if backing != nil {
			backing.Close()
		}
		return nil, err
	}

	c := &Client{manager: manager, backing: backing, logger: logger}
	if err := c.registerSources(cfg.Sources); err != nil {
		c.Close(ctx)
		return nil, err
	}
	return c, nil
}

// buildLogger honors the logging section: "zap" for structured production
// output, anything else for the simple line logger.
func buildLogger(cfg *Config) (utils.Logger, error) {
	level := utils.ParseLevel(cfg.Logging.Level)
	if cfg.Logging.Format == "zap" {
		return utils.NewZapLogger(level)
	}
	return utils.NewLoggerWithLevel(level), nil
}

func (c *Client) registerSources(sources []SourceConfig) error {
	for _, src := range sources {
		if len(src.Alternates) > 0 {
			c.manager.Alternatives().Registry().RegisterAlternatives(src.ID, src.Alternates)
		}
		if src.ScrapeSelector != "" && src.URL != "" {
			var hook ScrapingHook
			if src.ScrapeRender {
				hook = hooks.NewBrowserHook(src.URL, src.ScrapeSelector, hooks.BrowserOptions{})
			} else {
				hook = hooks.NewHTMLHook(src.URL, src.ScrapeSelector, nil)
			}
			c.manager.Hooks().Register(src.ID, hook)
		}
		if src.MockTemplate != "" {
			if err := c.manager.Mock().RegisterTemplate(src.ID, []byte(src.MockTemplate)); err != nil {
				return err
			}
		}
		if len(src.DegradedLevels) > 0 {
			levels := make([]DegradationLevel, len(src.DegradedLevels))
			for i, lv := range src.DegradedLevels {
				levels[i] = DegradationLevel{
					Template:         []byte(lv.Template),
					DisabledFeatures: lv.DisabledFeatures,
				}
			}
			c.manager.Degraded().RegisterLevels(src.ID, levels)
		}
	}
	return nil
}

// Fetch runs op with the full fallback chain behind it.
func (c *Client) Fetch(ctx context.Context, op PrimaryOp, sourceID, query string, args ...string) (*Result, error) {
	return c.manager.ExecuteWithFallback(ctx, op, sourceID, query, args...)
}

// FetchWithRetry wraps op with the configured retry policy before running it
// through the chain.
func (c *Client) FetchWithRetry(ctx context.Context, op PrimaryOp, sourceID, query string, args ...string) (*Result, error) {
	return c.manager.ExecuteWithFallback(ctx, c.manager.Retry().Wrap(op), sourceID, query, args...)
}

// Manager exposes the underlying fallback manager for advanced registration.
func (c *Client) Manager() *fallback.Manager { return c.manager }

// Metrics returns a point-in-time metrics snapshot.
func (c *Client) Metrics() Snapshot { return c.manager.Metrics() }

// StartProbing launches background health probing of alternative endpoints.
func (c *Client) StartProbing(cfg *Config) {
	c.manager.StartProbing(cfg.ProbeInterval())
}

// Close shuts the manager down and releases the durable store.
func (c *Client) Close(ctx context.Context) error {
	err := c.manager.Shutdown(ctx)
	if c.backing != nil {
		if cerr := c.backing.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
