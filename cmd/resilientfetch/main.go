// cmd/resilientfetch/main.go
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/valpere/ResilientFetch/internal/config"
	"github.com/valpere/ResilientFetch/internal/fallback"
	"github.com/valpere/ResilientFetch/internal/monitoring"
	"github.com/valpere/ResilientFetch/internal/report"
	"github.com/valpere/ResilientFetch/internal/utils"
	"github.com/valpere/ResilientFetch/pkg/api"
)

// Version information (set by build flags)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "run":
		if len(os.Args) < 3 {
			fmt.Fprintf(os.Stderr, "Error: config file required\n")
			fmt.Fprintf(os.Stderr, "Usage: resilientfetch run <config.yaml>\n")
			os.Exit(1)
		}
		runService(os.Args[2])

	case "validate":
		if len(os.Args) < 3 {
			fmt.Fprintf(os.Stderr, "Error: config file required\n")
			fmt.Fprintf(os.Stderr, "Usage: resilientfetch validate <config.yaml>\n")
			os.Exit(1)
		}
		validateConfig(os.Args[2])

	case "template":
		template, err := generateTemplate()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(template)

	case "version", "--version", "-v":
		printVersion()

	case "help", "--help", "-h":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command '%s'\n", command)
		printUsage()
		os.Exit(1)
	}
}

// runService starts the fallback orchestrator with its monitoring endpoint
// and serves until interrupted. Each configured source with a URL is fetched
// through the chain once per probe interval, keeping caches warm.
func runService(configFile string) {
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := monitoring.NewMetricsManager()
	client, err := api.NewClient(ctx, cfg, fallback.WithRecorder(metrics),
		fallback.WithEndpointRequest(httpEndpointRequest))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	client.StartProbing(cfg)

	logger := utils.NewComponentLogger("main")

	var monitor *monitoring.Server
	if cfg.Metrics.Enabled {
		monitor = monitoring.NewServer(cfg.Metrics.Address, metrics, client.Metrics, logger)
		go func() {
			if err := monitor.Start(); err != nil {
				logger.Errorf("monitoring server failed: %v", err)
			}
		}()
	}

	interval := cfg.ProbeInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Infof("resilientfetch %s started with %d sources", version, len(cfg.Sources))
	for {
		select {
		case <-ctx.Done():
			shutdown(client, monitor, cfg, logger)
			return
		case <-ticker.C:
			for _, src := range cfg.Sources {
				fetchSource(ctx, client, src, logger)
			}
		}
	}
}

// fetchSource runs one source through the chain and logs the outcome.
func fetchSource(ctx context.Context, client *api.Client, src api.SourceConfig, logger utils.Logger) {
	if src.URL == "" {
		return
	}
	op := httpPrimaryOp(src.URL)
	result, err := client.FetchWithRetry(ctx, op, src.ID, src.URL)
	if err != nil {
		logger.Errorf("source %q exhausted all strategies: %v", src.ID, err)
		return
	}
	logger.Infof("source %q served %d bytes (provenance %s, stale=%t)",
		src.ID, len(result.Payload), result.Provenance, result.Stale)
}

// httpPrimaryOp builds the default primary operation: a plain GET.
func httpPrimaryOp(url string) fallback.PrimaryOp {
	client := &http.Client{Timeout: 30 * time.Second}
	return func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
		}
		return io.ReadAll(resp.Body)
	}
}

// httpEndpointRequest fetches from an alternative endpoint, treating the
// endpoint ID as a URL.
func httpEndpointRequest(ctx context.Context, endpointID, query string) ([]byte, error) {
	return httpPrimaryOp(endpointID)(ctx)
}

func shutdown(client *api.Client, monitor *monitoring.Server, cfg *config.Config, logger utils.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if monitor != nil {
		if err := monitor.Stop(shutdownCtx); err != nil {
			logger.Warnf("monitoring shutdown: %v", err)
		}
	}

	// Drop a final metrics report next to the config for post-mortems.
	if err := report.Write(client.Metrics(), report.FormatJSON, "resilientfetch-metrics.json"); err != nil {
		logger.Warnf("failed to write final metrics report: %v", err)
	}

	if err := client.Close(shutdownCtx); err != nil {
		logger.Warnf("shutdown: %v", err)
	}
	logger.Info("shutdown complete")
}

func validateConfig(configFile string) {
	if _, err := config.LoadFile(configFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Configuration file '%s' is valid\n", configFile)
}

// generateTemplate emits a starter configuration.
func generateTemplate() (string, error) {
	template := config.Config{
		Fallback: config.FallbackConfig{
			StrategyOrder:      []string{"cache", "historical", "alternative", "scraping", "mock", "degraded"},
			CacheTTL:           "5m",
			HistoricalTTL:      "24h",
			MaxRetryAttempts:   3,
			BaseRetryDelay:     "100ms",
			CompressionEnabled: true,
			MetricsEnabled:     true,
		},
		Store: config.StoreConfig{
			Backend: "memory",
		},
		Sources: []config.SourceConfig{
			{
				ID:             "example",
				URL:            "https://api.example.com/data",
				Alternates:     []string{"https://backup.example.com/data"},
				ScrapeSelector: ".data-table td",
				MockTemplate:   `{"items": []}`,
			},
		},
		Metrics: config.MetricsConfig{Enabled: true, Address: ":9090"},
		Logging: config.LoggingConfig{Level: "info", Format: "simple"},
	}

	yamlData, err := yaml.Marshal(template)
	if err != nil {
		return "", fmt.Errorf("failed to marshal template to YAML: %w", err)
	}
	return string(yamlData), nil
}

func printVersion() {
	fmt.Printf("resilientfetch %s\n", version)
	fmt.Printf("  build time: %s\n", buildTime)
	fmt.Printf("  git commit: %s\n", gitCommit)
}

func printUsage() {
	fmt.Println("ResilientFetch - Multi-Tier Fallback Orchestrator")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  resilientfetch run <config.yaml>       Run the orchestrator service")
	fmt.Println("  resilientfetch validate <config.yaml>  Validate configuration file")
	fmt.Println("  resilientfetch template                Generate configuration template")
	fmt.Println("  resilientfetch version                 Show version information")
	fmt.Println("  resilientfetch help                    Show this help message")
}
