// cmd/calorie-analyzer/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"mcp-calorie-analyzer/internal/analyzer"
	"mcp-calorie-analyzer/internal/config"
	"mcp-calorie-analyzer/internal/server"
	"mcp-calorie-analyzer/internal/vision"
)

var (
	configPath = flag.String("config", "", "Path to a YAML config file")
	transport  = flag.String("transport", "http", "Transport mode: http")
	port       = flag.Int("port", 8012, "Port for HTTP transport")
	host       = flag.String("host", "0.0.0.0", "Host address")
	address    = flag.String("address", "", "Address (alias for host)")
	dbPath     = flag.String("db-path", "", "Database path for analysis history (empty disables history)")
	provider   = flag.String("provider", vision.ProviderAnthropic, "Vision provider: anthropic, gemini or openai")
	model      = flag.String("model", "", "Vision model (defaults per provider)")
	maxTokens  = flag.Int("max-tokens", analyzer.DefaultMaxTokens, "Maximum output tokens per analysis")
	logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	version    = flag.Bool("version", false, "Show version")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Println("mcp-calorie-analyzer version 1.0.0")
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath, os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	visionProvider, err := vision.New(cfg.VisionProvider())
	if err != nil {
		logger.Error("failed to create vision provider", "error", err)
		os.Exit(1)
	}
	if cfg.Vision.APIKey == "" {
		logger.Warn("no API key configured, analyze_food_image calls will fail", "provider", visionProvider.Name())
	}

	a := analyzer.New(visionProvider,
		analyzer.WithMaxTokens(cfg.Vision.MaxTokens),
		analyzer.WithLogger(logger),
	)

	srv, err := server.NewAnalyzerServer(cfg, a, logger)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(ctx); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-sigCh:
		logger.Info("received shutdown signal")
	case err := <-errCh:
		logger.Error("server error", "error", err)
	}

	logger.Info("shutting down")
	cancel()
	if err := srv.Stop(); err != nil {
		logger.Error("error during shutdown", "error", err)
	}
}

// applyFlags overrides config values with the flags given on the command line.
func applyFlags(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "transport":
			cfg.Transport = *transport
		case "port":
			cfg.Port = *port
		case "host":
			if *address == "" {
				cfg.Host = *host
			}
		case "address":
			cfg.Host = *address
		case "db-path":
			cfg.DBPath = *dbPath
		case "provider":
			cfg.Vision.Provider = *provider
			cfg.ResolveAPIKey(os.Getenv)
		case "model":
			cfg.Vision.Model = *model
		case "max-tokens":
			cfg.Vision.MaxTokens = *maxTokens
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})
}
