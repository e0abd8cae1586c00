package nl2sql

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/flowbit/vanna/internal/llm"
	"github.com/flowbit/vanna/internal/query"
	"github.com/flowbit/vanna/internal/trainingstore"
)

const (
	spendQuestion  = "What is the total spend for the current year?"
	spendSQL       = "SELECT SUM(invoice_total) FROM invoices WHERE EXTRACT(YEAR FROM invoice_date) = EXTRACT(YEAR FROM CURRENT_DATE)"
	vendorQuestion = "List the top 3 vendors by total invoice spend."
	vendorSQL      = "SELECT v.name, SUM(i.invoice_total) AS total_spend FROM invoices i JOIN vendors v ON i.vendor_id = v.id GROUP BY v.name ORDER BY total_spend DESC LIMIT 3"
)

// echoChat answers a question with the SQL of an identical earlier question in the prompt.
type echoChat struct {
	lastPrompt []llm.Message
	reply      string
	err        error
}

func (c *echoChat) Model() string { return "llama-3.1-8b-instant" }

func (c *echoChat) SubmitPrompt(_ context.Context, messages []llm.Message, _ string) (string, error) {
	c.lastPrompt = messages
	if c.err != nil {
		return "", c.err
	}
	if c.reply != "" {
		return c.reply, nil
	}
	question := messages[len(messages)-1].Content
	for i := 1; i+1 < len(messages)-1; i += 2 {
		if messages[i].Content == question {
			return "```sql\n" + messages[i+1].Content + ";\n```", nil
		}
	}
	return "I don't have enough context to answer that.", nil
}

type stubEngine struct {
	request query.Request
	result  query.Result
	err     error
}

func (e *stubEngine) Execute(_ context.Context, request query.Request) (query.Result, error) {
	e.request = request
	return e.result, e.err
}

func newTestGenerator(t *testing.T, chat ChatModel, engine query.Engine) (*Generator, *trainingstore.Store) {
	t.Helper()
	store, err := trainingstore.Open(trainingstore.Config{Path: trainingstore.PathFor(t.TempDir())})
	if err != nil {
		t.Fatalf("trainingstore.Open() error = %v", err)
	}
	if engine == nil {
		engine = &stubEngine{}
	}
	gen, err := NewGenerator(store, chat, engine, Options{RowLimit: 100})
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}
	return gen, store
}

func TestGenerateSQLUsesTrainedPair(t *testing.T) {
	ctx := context.Background()
	chat := &echoChat{}
	gen, _ := newTestGenerator(t, chat, nil)

	if _, err := gen.Train(ctx, TrainingInput{Question: spendQuestion, SQL: spendSQL}); err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if _, err := gen.Train(ctx, TrainingInput{Question: vendorQuestion, SQL: vendorSQL}); err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	sql, err := gen.GenerateSQL(ctx, spendQuestion, false)
	if err != nil {
		t.Fatalf("GenerateSQL() error = %v", err)
	}
	if sql != spendSQL {
		t.Fatalf("GenerateSQL() = %q, want %q", sql, spendSQL)
	}
	if chat.lastPrompt[0].Role != llm.RoleSystem {
		t.Fatalf("first message role = %q", chat.lastPrompt[0].Role)
	}
	if chat.lastPrompt[1].Content != spendQuestion || chat.lastPrompt[2].Content != spendSQL {
		t.Fatalf("most similar pair not first: %#v", chat.lastPrompt[1:3])
	}
}

func TestGenerateSQLReturnsEmptyWhenNoSQL(t *testing.T) {
	gen, store := newTestGenerator(t, &echoChat{}, nil)

	sql, err := gen.GenerateSQL(context.Background(), "How is the weather?", true)
	if err != nil {
		t.Fatalf("GenerateSQL() error = %v", err)
	}
	if sql != "" {
		t.Fatalf("GenerateSQL() = %q, want empty", sql)
	}
	if store.Len() != 0 {
		t.Fatalf("store.Len() = %d, want 0", store.Len())
	}
}

func TestGenerateSQLAutoTrainsReadQueries(t *testing.T) {
	ctx := context.Background()
	gen, store := newTestGenerator(t, &echoChat{reply: "SELECT COUNT(*) FROM customers;"}, nil)

	if _, err := gen.GenerateSQL(ctx, "How many customers do we have?", true); err != nil {
		t.Fatalf("GenerateSQL() error = %v", err)
	}
	examples, err := store.SimilarQuestionSQL(ctx, "How many customers do we have?")
	if err != nil {
		t.Fatalf("SimilarQuestionSQL() error = %v", err)
	}
	if len(examples) != 1 || examples[0].SQL != "SELECT COUNT(*) FROM customers" {
		t.Fatalf("examples = %#v", examples)
	}
}

func TestGenerateSQLIgnoresProseMentioningSelect(t *testing.T) {
	reply := "The context does not describe churn and there is no customers table, so I cannot select the right columns."
	gen, store := newTestGenerator(t, &echoChat{reply: reply}, nil)

	sql, err := gen.GenerateSQL(context.Background(), "How many customers churned?", true)
	if err != nil {
		t.Fatalf("GenerateSQL() error = %v", err)
	}
	if sql != "" {
		t.Fatalf("GenerateSQL() = %q, want empty", sql)
	}
	if store.Len() != 0 {
		t.Fatalf("store.Len() = %d, want 0", store.Len())
	}
}

func TestGenerateSQLDropsTrailingExplanation(t *testing.T) {
	reply := "Here is the query:\nSELECT SUM(invoice_total) FROM invoices\n\nThis query sums the invoice totals."
	gen, store := newTestGenerator(t, &echoChat{reply: reply}, nil)

	sql, err := gen.GenerateSQL(context.Background(), "What is the total spend?", true)
	if err != nil {
		t.Fatalf("GenerateSQL() error = %v", err)
	}
	if sql != "SELECT SUM(invoice_total) FROM invoices" {
		t.Fatalf("GenerateSQL() = %q", sql)
	}
	examples, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(examples) != 1 || examples[0].SQL != sql {
		t.Fatalf("examples = %#v", examples)
	}
}

func TestRememberStoresOnlyReadQueries(t *testing.T) {
	ctx := context.Background()
	gen, store := newTestGenerator(t, &echoChat{}, nil)

	if err := gen.Remember(ctx, "Drop vendors", "DELETE FROM vendors"); err != nil {
		t.Fatalf("Remember() error = %v", err)
	}
	if err := gen.Remember(ctx, "", "SELECT 1"); err != nil {
		t.Fatalf("Remember() error = %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("store.Len() = %d, want 0", store.Len())
	}
	if err := gen.Remember(ctx, spendQuestion, spendSQL); err != nil {
		t.Fatalf("Remember() error = %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("store.Len() = %d, want 1", store.Len())
	}
}

func TestGenerateSQLSkipsAutoTrainWhenDisabled(t *testing.T) {
	gen, store := newTestGenerator(t, &echoChat{reply: "SELECT 1;"}, nil)
	sql, err := gen.GenerateSQL(context.Background(), "one?", false)
	if err != nil {
		t.Fatalf("GenerateSQL() error = %v", err)
	}
	if sql != "SELECT 1" {
		t.Fatalf("GenerateSQL() = %q", sql)
	}
	if store.Len() != 0 {
		t.Fatalf("store.Len() = %d, want 0", store.Len())
	}
}

func TestGenerateSQLPropagatesChatError(t *testing.T) {
	chatErr := errors.New("rate limited")
	gen, _ := newTestGenerator(t, &echoChat{err: chatErr}, nil)
	_, err := gen.GenerateSQL(context.Background(), "anything", false)
	if !errors.Is(err, chatErr) {
		t.Fatalf("GenerateSQL() error = %v, want %v", err, chatErr)
	}
}

func TestGenerateSQLRejectsEmptyQuestion(t *testing.T) {
	gen, _ := newTestGenerator(t, &echoChat{}, nil)
	if _, err := gen.GenerateSQL(context.Background(), "  ", false); !errors.Is(err, ErrEmptyQuestion) {
		t.Fatalf("GenerateSQL() error = %v", err)
	}
}

func TestPromptIncludesDDLAndDocumentation(t *testing.T) {
	ctx := context.Background()
	chat := &echoChat{reply: "SELECT 1"}
	gen, _ := newTestGenerator(t, chat, nil)

	if _, err := gen.Train(ctx, TrainingInput{DDL: "CREATE TABLE invoices (id INT, invoice_total NUMERIC)"}); err != nil {
		t.Fatalf("Train(ddl) error = %v", err)
	}
	if _, err := gen.Train(ctx, TrainingInput{Documentation: "invoice_total is in EUR"}); err != nil {
		t.Fatalf("Train(doc) error = %v", err)
	}
	if _, err := gen.GenerateSQL(ctx, "total invoices", false); err != nil {
		t.Fatalf("GenerateSQL() error = %v", err)
	}
	system := chat.lastPrompt[0].Content
	for _, want := range []string{"PostgreSQL expert", "===Tables", "CREATE TABLE invoices", "===Additional Context", "invoice_total is in EUR"} {
		if !strings.Contains(system, want) {
			t.Fatalf("system prompt missing %q:\n%s", want, system)
		}
	}
}

func TestTrainSQLWithoutQuestionGeneratesQuestion(t *testing.T) {
	ctx := context.Background()
	gen, store := newTestGenerator(t, &echoChat{reply: "How many vendors are there?"}, nil)

	id, err := gen.Train(ctx, TrainingInput{SQL: "SELECT COUNT(*) FROM vendors"})
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if !strings.HasSuffix(id, "-sql") {
		t.Fatalf("id = %q", id)
	}
	examples, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(examples) != 1 || examples[0].Question != "How many vendors are there?" {
		t.Fatalf("examples = %#v", examples)
	}
}

func TestTrainValidation(t *testing.T) {
	gen, _ := newTestGenerator(t, &echoChat{}, nil)
	ctx := context.Background()

	if _, err := gen.Train(ctx, TrainingInput{}); !errors.Is(err, ErrNothingToTrain) {
		t.Fatalf("Train(empty) error = %v", err)
	}
	if _, err := gen.Train(ctx, TrainingInput{Question: "orphan question"}); !errors.Is(err, ErrQuestionNoSQL) {
		t.Fatalf("Train(question only) error = %v", err)
	}
}

func TestTrainingDataAndRemove(t *testing.T) {
	ctx := context.Background()
	gen, _ := newTestGenerator(t, &echoChat{}, nil)

	id, err := gen.Train(ctx, TrainingInput{DDL: "CREATE TABLE customers (id INT)"})
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	examples, err := gen.TrainingData(ctx)
	if err != nil || len(examples) != 1 {
		t.Fatalf("TrainingData() = %#v, %v", examples, err)
	}
	if err := gen.RemoveTrainingData(ctx, id); err != nil {
		t.Fatalf("RemoveTrainingData() error = %v", err)
	}
	if err := gen.RemoveTrainingData(ctx, id); !errors.Is(err, trainingstore.ErrNotFound) {
		t.Fatalf("RemoveTrainingData() error = %v, want ErrNotFound", err)
	}
}

func TestRunSQLAppliesRowLimit(t *testing.T) {
	engine := &stubEngine{result: query.Result{Columns: []string{"c"}, Rows: [][]any{{int64(3)}}}}
	gen, _ := newTestGenerator(t, &echoChat{}, engine)

	result, err := gen.RunSQL(context.Background(), "SELECT COUNT(*) AS c FROM vendors")
	if err != nil {
		t.Fatalf("RunSQL() error = %v", err)
	}
	if engine.request.RowLimit != 100 {
		t.Fatalf("RowLimit = %d, want 100", engine.request.RowLimit)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("rows = %#v", result.Rows)
	}

	engine.err = errors.New("syntax error")
	if _, err := gen.RunSQL(context.Background(), "SELEC"); !errors.Is(err, engine.err) {
		t.Fatalf("RunSQL() error = %v", err)
	}
}

func TestModelComesFromChat(t *testing.T) {
	gen, _ := newTestGenerator(t, &echoChat{}, nil)
	if gen.Model() != "llama-3.1-8b-instant" {
		t.Fatalf("Model() = %q", gen.Model())
	}
}

type pingEngine struct {
	stubEngine
	err error
}

func (e *pingEngine) HealthCheck(context.Context) error {
	return e.err
}

func TestHealthCheckDelegatesToEngine(t *testing.T) {
	gen, _ := newTestGenerator(t, &echoChat{}, nil)
	if err := gen.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() without engine support error = %v", err)
	}

	down := errors.New("connection refused")
	gen, _ = newTestGenerator(t, &echoChat{}, &pingEngine{err: down})
	if err := gen.HealthCheck(context.Background()); !errors.Is(err, down) {
		t.Fatalf("HealthCheck() error = %v, want %v", err, down)
	}
}
