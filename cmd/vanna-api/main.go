package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flowbit/vanna/internal/api"
	"github.com/flowbit/vanna/internal/auth"
	"github.com/flowbit/vanna/internal/bootstrap"
	"github.com/flowbit/vanna/internal/config"
	"github.com/flowbit/vanna/internal/observability"
)

func main() {
	cfg, err := config.LoadFromEnv("vanna-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	lifecycle := api.NewLifecycle()
	deps := api.Dependencies{
		Logger:            logger,
		Lifecycle:         lifecycle,
		DependencyTimeout: time.Second,
	}
	validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.AdminKeys)
	if err != nil {
		logger.Error("failed to parse admin api keys", slog.Any("error", err))
		os.Exit(1)
	}
	if validator.Len() > 0 {
		deps.AdminAuth = auth.Middleware(logger, validator)
	}
	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	listener, err := net.Listen("tcp", cfg.HTTP.Address)
	if err != nil {
		logger.Error("failed to listen", slog.String("addr", cfg.HTTP.Address), slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", listener.Addr().String()))
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	initialized := make(chan *bootstrap.Components, 1)
	go func() {
		initialized <- initialize(ctx, cfg, lifecycle, logger)
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	shutdownErr := server.Shutdown(shutdownCtx)
	select {
	case components := <-initialized:
		if err := components.Close(); err != nil {
			logger.Warn("failed to close database", slog.Any("error", err))
		}
	case <-shutdownCtx.Done():
	}
	if shutdownErr != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", shutdownErr))
		_ = server.Close()
		os.Exit(1)
	}
}

// initialize builds the generator in the background. On failure the service stays up in
// the degraded state and ask requests are answered with 503.
func initialize(ctx context.Context, cfg config.Config, lifecycle *api.Lifecycle, logger *slog.Logger) *bootstrap.Components {
	if err := lifecycle.Begin(); err != nil {
		logger.Error("vanna initialisation skipped", slog.Any("error", err))
		return nil
	}
	logger.Info("initializing vanna",
		slog.String("driver", cfg.Database.Driver),
		slog.String("db_host", cfg.Database.Host),
		slog.String("db_name", cfg.Database.Name),
		slog.String("store_dir", cfg.Store.Dir),
	)
	components, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("vanna initialisation failed; ask requests will return 503", slog.Any("error", err))
		_ = lifecycle.Fail(err)
		return nil
	}
	if err := lifecycle.Ready(components.Generator); err != nil {
		logger.Error("vanna lifecycle rejected generator", slog.Any("error", err))
		_ = components.Close()
		return nil
	}
	logger.Info("vanna ready",
		slog.String("model", components.Generator.Model()),
		slog.Int("training_examples", components.Store.Len()),
	)
	return components
}
