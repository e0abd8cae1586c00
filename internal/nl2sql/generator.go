package nl2sql

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/flowbit/vanna/internal/llm"
	"github.com/flowbit/vanna/internal/observability"
	"github.com/flowbit/vanna/internal/query"
	"github.com/flowbit/vanna/internal/trainingstore"
)

var (
	ErrEmptyQuestion  = errors.New("question is required")
	ErrNothingToTrain = errors.New("nothing to train: provide documentation, sql or ddl")
	ErrQuestionNoSQL  = errors.New("a question requires a sql query")
)

// ChatModel submits role-tagged prompts to a hosted LLM.
type ChatModel interface {
	SubmitPrompt(ctx context.Context, messages []llm.Message, model string) (string, error)
	Model() string
}

// Store is the retrieval and training surface backed by the vector store.
type Store interface {
	SimilarQuestionSQL(ctx context.Context, question string) ([]trainingstore.Example, error)
	RelatedDDL(ctx context.Context, question string) ([]trainingstore.Example, error)
	RelatedDocumentation(ctx context.Context, question string) ([]trainingstore.Example, error)
	AddQuestionSQL(ctx context.Context, question, sql string) (string, error)
	AddDDL(ctx context.Context, ddl string) (string, error)
	AddDocumentation(ctx context.Context, documentation string) (string, error)
	List(ctx context.Context) ([]trainingstore.Example, error)
	Remove(ctx context.Context, id string) error
}

type Options struct {
	// Dialect names the SQL flavour in the prompt, e.g. "PostgreSQL".
	Dialect         string
	RowLimit        int
	MaxPromptTokens int
	Logger          *slog.Logger
}

type TrainingInput struct {
	Question      string `json:"question"`
	SQL           string `json:"sql"`
	DDL           string `json:"ddl"`
	Documentation string `json:"documentation"`
}

// Generator turns questions into SQL using retrieved training examples and an LLM,
// and runs the SQL on the configured engine.
type Generator struct {
	store     Store
	chat      ChatModel
	engine    query.Engine
	dialect   string
	rowLimit  int
	maxTokens int
	logger    *slog.Logger
}

func NewGenerator(store Store, chat ChatModel, engine query.Engine, opts Options) (*Generator, error) {
	if store == nil {
		return nil, fmt.Errorf("training store is required")
	}
	if chat == nil {
		return nil, fmt.Errorf("chat model is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("sql engine is required")
	}
	dialect := strings.TrimSpace(opts.Dialect)
	if dialect == "" {
		dialect = "PostgreSQL"
	}
	maxTokens := opts.MaxPromptTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxPromptTokens
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Generator{
		store:     store,
		chat:      chat,
		engine:    engine,
		dialect:   dialect,
		rowLimit:  opts.RowLimit,
		maxTokens: maxTokens,
		logger:    logger,
	}, nil
}

func (g *Generator) Model() string {
	return g.chat.Model()
}

// HealthCheck pings the SQL engine when it supports health checks.
func (g *Generator) HealthCheck(ctx context.Context) error {
	checker, ok := g.engine.(interface {
		HealthCheck(ctx context.Context) error
	})
	if !ok {
		return nil
	}
	return checker.HealthCheck(ctx)
}

// GenerateSQL returns the SQL answering question, or "" when the LLM response holds no query.
// With autoTrain set, a generated read query is stored as a new question/SQL example
// before it has been executed; see Remember for the execute-first order.
func (g *Generator) GenerateSQL(ctx context.Context, question string, autoTrain bool) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}
	start := time.Now()
	defer func() { observability.ObserveSQLGeneration(time.Since(start)) }()

	pairs, err := g.store.SimilarQuestionSQL(ctx, question)
	if err != nil {
		return "", fmt.Errorf("retrieve similar questions: %w", err)
	}
	ddl, err := g.store.RelatedDDL(ctx, question)
	if err != nil {
		return "", fmt.Errorf("retrieve related ddl: %w", err)
	}
	docs, err := g.store.RelatedDocumentation(ctx, question)
	if err != nil {
		return "", fmt.Errorf("retrieve related documentation: %w", err)
	}

	messages := buildSQLPrompt(promptInput{
		Dialect:   g.dialect,
		Question:  question,
		Pairs:     pairs,
		DDL:       ddl,
		Docs:      docs,
		MaxTokens: g.maxTokens,
	})
	response, err := g.chat.SubmitPrompt(ctx, messages, "")
	if err != nil {
		return "", fmt.Errorf("submit prompt: %w", err)
	}

	sql := ExtractSQL(response)
	g.logger.DebugContext(ctx, "sql_generated",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.Int("similar_questions", len(pairs)),
		slog.Int("related_ddl", len(ddl)),
		slog.Int("related_docs", len(docs)),
		slog.Bool("extracted", sql != ""),
	)
	if sql == "" {
		return "", nil
	}

	if autoTrain {
		if err := g.Remember(ctx, question, sql); err != nil {
			g.logger.WarnContext(ctx, "auto_train_failed",
				slog.String("trace_id", observability.TraceIDFromContext(ctx)),
				slog.String("error", err.Error()),
			)
		}
	}
	return sql, nil
}

// Remember stores question and sql as a question/SQL example when sql is a read query.
// Callers that execute the SQL should remember it only after it ran successfully.
func (g *Generator) Remember(ctx context.Context, question, sql string) error {
	question = strings.TrimSpace(question)
	sql = strings.TrimSpace(sql)
	if question == "" || !isReadQuery(sql) {
		return nil
	}
	if _, err := g.store.AddQuestionSQL(ctx, question, sql); err != nil {
		return fmt.Errorf("remember question sql: %w", err)
	}
	return nil
}

func (g *Generator) RunSQL(ctx context.Context, sql string) (query.Result, error) {
	start := time.Now()
	result, err := g.engine.Execute(ctx, query.Request{SQL: sql, RowLimit: g.rowLimit})
	if err != nil {
		return query.Result{}, fmt.Errorf("run sql: %w", err)
	}
	observability.ObserveSQLExecution(len(result.Rows), time.Since(start))
	return result, nil
}

// Train stores one piece of training data. Documentation takes precedence, then a
// question/SQL pair, then DDL. SQL without a question gets an LLM-generated question.
func (g *Generator) Train(ctx context.Context, in TrainingInput) (string, error) {
	question := strings.TrimSpace(in.Question)
	sql := strings.TrimSpace(in.SQL)
	if question != "" && sql == "" {
		return "", ErrQuestionNoSQL
	}

	switch {
	case strings.TrimSpace(in.Documentation) != "":
		return g.store.AddDocumentation(ctx, in.Documentation)
	case sql != "":
		if question == "" {
			generated, err := g.GenerateQuestion(ctx, sql)
			if err != nil {
				return "", err
			}
			question = generated
		}
		return g.store.AddQuestionSQL(ctx, question, sql)
	case strings.TrimSpace(in.DDL) != "":
		return g.store.AddDDL(ctx, in.DDL)
	default:
		return "", ErrNothingToTrain
	}
}

// GenerateQuestion asks the LLM which business question sql answers.
func (g *Generator) GenerateQuestion(ctx context.Context, sql string) (string, error) {
	response, err := g.chat.SubmitPrompt(ctx, buildQuestionPrompt(sql), "")
	if err != nil {
		return "", fmt.Errorf("generate question: %w", err)
	}
	question := strings.TrimSpace(response)
	if question == "" {
		return "", fmt.Errorf("generate question: empty response")
	}
	return question, nil
}

func (g *Generator) TrainingData(ctx context.Context) ([]trainingstore.Example, error) {
	examples, err := g.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list training data: %w", err)
	}
	return examples, nil
}

func (g *Generator) RemoveTrainingData(ctx context.Context, id string) error {
	return g.store.Remove(ctx, id)
}
