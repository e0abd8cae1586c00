package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flowbit/vanna/internal/config"
	"github.com/flowbit/vanna/internal/nl2sql"
	"github.com/flowbit/vanna/internal/observability"
	"github.com/flowbit/vanna/internal/query"
	"github.com/flowbit/vanna/internal/trainingstore"
)

type ReadinessCheck func(ctx context.Context) error

// Generator is what the HTTP service needs from the SQL generator.
type Generator interface {
	Model() string
	GenerateSQL(ctx context.Context, question string, autoTrain bool) (string, error)
	RunSQL(ctx context.Context, sql string) (query.Result, error)
	Remember(ctx context.Context, question, sql string) error
	Train(ctx context.Context, in nl2sql.TrainingInput) (string, error)
	TrainingData(ctx context.Context) ([]trainingstore.Example, error)
	RemoveTrainingData(ctx context.Context, id string) error
}

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

type Dependencies struct {
	Logger            *slog.Logger
	Lifecycle         *Lifecycle
	Readiness         ReadinessCheck
	DependencyTimeout time.Duration
	// AdminAuth guards the routes that change training data. Nil leaves them open.
	AdminAuth func(http.Handler) http.Handler
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Lifecycle == nil {
		deps.Lifecycle = NewLifecycle()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		_, _, model := lifecycleStatus(deps.Lifecycle)
		writeJSON(w, http.StatusOK, map[string]any{"service": cfg.Service.Name, "status": "ok", "model": model})
	})

	mux.HandleFunc("GET /status", func(w http.ResponseWriter, _ *http.Request) {
		state, status, model := lifecycleStatus(deps.Lifecycle)
		writeJSON(w, http.StatusOK, map[string]any{"status": status, "model": model, "state": state})
	})

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /ready", func(w http.ResponseWriter, r *http.Request) {
		state, generator, err := deps.Lifecycle.Snapshot()
		if state != StateReady {
			detail := "vanna is " + string(state)
			if err != nil {
				detail += ": " + err.Error()
			}
			writeError(r.Context(), w, http.StatusServiceUnavailable, detail)
			return
		}
		checks := []ReadinessCheck{deps.Readiness}
		if checker, ok := generator.(healthChecker); ok {
			checks = append(checks, checker.HealthCheck)
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := CombineReadinessChecks(checks...)(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /vanna/ask", func(w http.ResponseWriter, r *http.Request) {
		handleAsk(deps, w, r)
	})
	mux.Handle("POST /vanna/train", admin(deps, func(w http.ResponseWriter, r *http.Request) {
		handleTrain(deps, w, r)
	}))
	mux.HandleFunc("GET /vanna/training-data", func(w http.ResponseWriter, r *http.Request) {
		handleListTrainingData(deps, w, r)
	})
	mux.Handle("DELETE /vanna/training-data/{id}", admin(deps, func(w http.ResponseWriter, r *http.Request) {
		handleRemoveTrainingData(deps, w, r)
	}))

	return chain(mux,
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
		observability.LoggingMiddleware(deps.Logger),
		observability.RecoverMiddleware(deps.Logger),
		CORSMiddleware(cfg.HTTP.CORSAllowedOrigins),
	)
}

func admin(deps Dependencies, handler http.HandlerFunc) http.Handler {
	if deps.AdminAuth == nil {
		return handler
	}
	return deps.AdminAuth(handler)
}

// lifecycleStatus maps the lifecycle onto the public status payload. Anything short of ready
// reports "initializing" and an unknown model.
func lifecycleStatus(lifecycle *Lifecycle) (State, string, string) {
	state, generator, _ := lifecycle.Snapshot()
	if state != StateReady {
		return state, "initializing", "unknown"
	}
	return state, "operational", generator.Model()
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]any{
		"detail":   detail,
		"trace_id": observability.TraceIDFromContext(ctx),
	})
}
