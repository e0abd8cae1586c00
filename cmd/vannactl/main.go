package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/flowbit/vanna/internal/bootstrap"
	"github.com/flowbit/vanna/internal/cli/vannactl"
	"github.com/flowbit/vanna/internal/config"
	"github.com/flowbit/vanna/internal/observability"
)

func main() {
	timeout := parseDurationWithDefault(strings.TrimSpace(os.Getenv("VANNA_CLI_TIMEOUT")), 2*time.Minute)
	options := vannactl.Options{
		BaseURL:    envOr("VANNA_API_URL", "http://localhost:8000"),
		APIKey:     strings.TrimSpace(os.Getenv("VANNA_API_KEY")),
		Timeout:    timeout,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		OpenBackup: openBackup,
	}

	code := vannactl.Run(context.Background(), os.Args[1:], options)
	os.Exit(code)
}

// openBackup connects the local training store named by VANNA_STORE_DIR to the backup bucket.
func openBackup(ctx context.Context) (vannactl.BackupService, error) {
	cfg, err := config.LoadFromEnv("vannactl")
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	logger := observability.NewLogger(cfg, os.Stderr)
	store, err := bootstrap.OpenStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	return bootstrap.OpenBackup(ctx, cfg, store, logger)
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseDurationWithDefault(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid VANNA_CLI_TIMEOUT %q; using %s\n", raw, fallback)
		return fallback
	}
	return parsed
}
