package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"

	"github.com/flowbit/vanna/internal/bootstrap"
	"github.com/flowbit/vanna/internal/config"
	"github.com/flowbit/vanna/internal/observability"
	"github.com/flowbit/vanna/internal/training"
)

func main() {
	withBackup := flag.Bool("backup", false, "upload a training data snapshot to the backup bucket after training")
	flag.Parse()

	cfg, err := config.LoadFromEnv("vanna-train")
	if err != nil {
		fatal("config error: %v", err)
	}
	logger := observability.NewLogger(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pterm.Info.Printfln("Connecting to %s at %s:%d/%s", cfg.Database.Driver, cfg.Database.Host, cfg.Database.Port, cfg.Database.Name)
	components, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		fatal("setup failed: %v", err)
	}
	defer func() { _ = components.Close() }()
	pterm.Success.Printfln("Connected; training store at %s holds %d example(s)", cfg.Store.Dir, components.Store.Len())

	report := training.Run(ctx, components.Generator, training.DefaultPlan(), training.TerminalProgress{Out: os.Stdout}, logger)
	summary, err := training.Summary(report)
	if err != nil {
		logger.Warn("failed to render training summary", slog.Any("error", err))
	} else {
		fmt.Println(summary)
	}

	if *withBackup {
		svc, err := bootstrap.OpenBackup(ctx, cfg, components.Store, logger)
		if err != nil {
			pterm.Warning.Printfln("Backup skipped: %v", err)
			return
		}
		info, err := svc.Snapshot(ctx)
		if err != nil {
			pterm.Warning.Printfln("Backup failed: %v", err)
			return
		}
		pterm.Success.Printfln("Uploaded %d example(s) to %s", info.Examples, info.Key)
	}
}

func fatal(format string, args ...any) {
	pterm.Error.Printfln(format, args...)
	os.Exit(1)
}
