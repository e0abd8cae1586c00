package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Ask outcomes reported by the /vanna/ask handler.
const (
	AskOutcomeSuccess     = "success"
	AskOutcomeEmpty       = "empty"
	AskOutcomeUnavailable = "unavailable"
	AskOutcomeInvalid     = "invalid"
	AskOutcomeError       = "error"
)

var (
	askRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vanna_ask_requests_total",
			Help: "Total number of ask requests by outcome.",
		},
		[]string{"outcome"},
	)
	sqlGenerationLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vanna_sql_generation_latency_ms",
			Help:    "Latency of SQL generation (retrieval, prompt and LLM call) in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000},
		},
	)
	sqlExecutionLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vanna_sql_execution_latency_ms",
			Help:    "Latency of generated SQL execution in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
	)
	sqlResultRows = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vanna_sql_result_rows",
			Help:    "Number of rows returned by executed SQL.",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000, 10000},
		},
	)
	llmPromptTokens = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vanna_llm_prompt_tokens",
			Help:    "Approximate prompt size in tokens (characters / 4) sent to the LLM.",
			Buckets: []float64{100, 250, 500, 1000, 2000, 4000, 8000, 14000, 32000},
		},
		[]string{"model"},
	)
	llmRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vanna_llm_requests_total",
			Help: "Total number of LLM chat completion requests by model and result.",
		},
		[]string{"model", "result"},
	)
	trainingExamplesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vanna_training_examples_added_total",
			Help: "Total number of training examples written to the store by kind.",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(
		askRequestsTotal,
		sqlGenerationLatencyMs,
		sqlExecutionLatencyMs,
		sqlResultRows,
		llmPromptTokens,
		llmRequestsTotal,
		trainingExamplesTotal,
	)
}

func ObserveAsk(outcome string) {
	askRequestsTotal.WithLabelValues(outcome).Inc()
}

func ObserveSQLGeneration(elapsed time.Duration) {
	sqlGenerationLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func ObserveSQLExecution(rows int, elapsed time.Duration) {
	sqlExecutionLatencyMs.Observe(float64(elapsed.Milliseconds()))
	if rows < 0 {
		rows = 0
	}
	sqlResultRows.Observe(float64(rows))
}

func ObserveLLMPrompt(model string, tokens int) {
	llmPromptTokens.WithLabelValues(model).Observe(float64(tokens))
}

func ObserveLLMResult(model string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	llmRequestsTotal.WithLabelValues(model, result).Inc()
}

func ObserveTrainingExample(kind string) {
	trainingExamplesTotal.WithLabelValues(kind).Inc()
}
