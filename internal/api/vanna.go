package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/flowbit/vanna/internal/auth"
	"github.com/flowbit/vanna/internal/nl2sql"
	"github.com/flowbit/vanna/internal/observability"
	"github.com/flowbit/vanna/internal/query"
	"github.com/flowbit/vanna/internal/trainingstore"
)

const (
	maxRequestBytes   = 1 << 20
	notReadyDetail    = "Vanna is not initialized. Check GROQ_API_KEY and the database connection."
	emptySQLMessage   = "Vanna could not generate a SQL query for that question."
	successMessage    = "Query successful"
	executionErrorFmt = "Vanna execution error: %s"
)

type askRequest struct {
	Query string `json:"query"`
}

type askResponse struct {
	SQL     string           `json:"sql"`
	Results []map[string]any `json:"results"`
	Message string           `json:"message"`
}

type trainResponse struct {
	ID string `json:"id"`
}

type trainingDataResponse struct {
	TrainingData []trainingstore.Example `json:"training_data"`
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	generator, ok := readyGenerator(deps, w, r)
	if !ok {
		observability.ObserveAsk(observability.AskOutcomeUnavailable)
		return
	}

	var req askRequest
	if err := decodeBody(w, r, &req); err != nil {
		observability.ObserveAsk(observability.AskOutcomeInvalid)
		writeError(r.Context(), w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	question := strings.TrimSpace(req.Query)
	if question == "" {
		observability.ObserveAsk(observability.AskOutcomeInvalid)
		writeError(r.Context(), w, http.StatusBadRequest, "query must not be empty")
		return
	}

	// the pair is remembered only after the SQL has run
	sql, err := generator.GenerateSQL(r.Context(), question, false)
	if err != nil {
		askFailed(deps, w, r, "sql_generation_failed", err)
		return
	}
	if sql == "" {
		observability.ObserveAsk(observability.AskOutcomeEmpty)
		writeJSON(w, http.StatusOK, askResponse{SQL: "", Results: []map[string]any{}, Message: emptySQLMessage})
		return
	}

	result, err := generator.RunSQL(r.Context(), sql)
	if err != nil {
		askFailed(deps, w, r, "sql_execution_failed", err, slog.String("sql", sql))
		return
	}
	if err := generator.Remember(r.Context(), question, sql); err != nil {
		deps.Logger.WarnContext(r.Context(), "auto_train_failed",
			slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
			slog.String("error", err.Error()),
		)
	}

	observability.ObserveAsk(observability.AskOutcomeSuccess)
	writeJSON(w, http.StatusOK, askResponse{SQL: sql, Results: query.Records(result), Message: successMessage})
}

func askFailed(deps Dependencies, w http.ResponseWriter, r *http.Request, event string, err error, attrs ...any) {
	observability.ObserveAsk(observability.AskOutcomeError)
	attrs = append(attrs,
		slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
		slog.String("error", err.Error()),
		slog.String("stack", string(debug.Stack())),
	)
	deps.Logger.ErrorContext(r.Context(), event, attrs...)
	writeError(r.Context(), w, http.StatusInternalServerError, fmt.Sprintf(executionErrorFmt, err.Error()))
}

func handleTrain(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	generator, ok := readyGenerator(deps, w, r)
	if !ok {
		return
	}

	var in nl2sql.TrainingInput
	if err := decodeBody(w, r, &in); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "invalid training request body: "+err.Error())
		return
	}
	id, err := generator.Train(r.Context(), in)
	switch {
	case errors.Is(err, nl2sql.ErrNothingToTrain), errors.Is(err, nl2sql.ErrQuestionNoSQL):
		writeError(r.Context(), w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		deps.Logger.ErrorContext(r.Context(), "training_failed", slog.String("error", err.Error()))
		writeError(r.Context(), w, http.StatusInternalServerError, "training failed: "+err.Error())
		return
	}
	attrs := []any{
		slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
		slog.String("id", id),
	}
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		attrs = append(attrs, slog.String("admin", identity.Name))
	}
	deps.Logger.InfoContext(r.Context(), "training_example_added", attrs...)
	writeJSON(w, http.StatusCreated, trainResponse{ID: id})
}

func handleListTrainingData(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	generator, ok := readyGenerator(deps, w, r)
	if !ok {
		return
	}
	examples, err := generator.TrainingData(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, err.Error())
		return
	}
	if examples == nil {
		examples = []trainingstore.Example{}
	}
	writeJSON(w, http.StatusOK, trainingDataResponse{TrainingData: examples})
}

func handleRemoveTrainingData(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	generator, ok := readyGenerator(deps, w, r)
	if !ok {
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	err := generator.RemoveTrainingData(r.Context(), id)
	switch {
	case errors.Is(err, trainingstore.ErrNotFound):
		writeError(r.Context(), w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		writeError(r.Context(), w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": id})
}

// readyGenerator writes a 503 and reports false unless the lifecycle is ready.
func readyGenerator(deps Dependencies, w http.ResponseWriter, r *http.Request) (Generator, bool) {
	state, generator, _ := deps.Lifecycle.Snapshot()
	if state != StateReady || generator == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, notReadyDetail)
		return nil, false
	}
	return generator, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(dst)
}
