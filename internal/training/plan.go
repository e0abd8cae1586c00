package training

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/flowbit/vanna/internal/nl2sql"
	"github.com/flowbit/vanna/internal/query"
)

const keyConstraintsSQL = `
SELECT
    tc.table_schema,
    tc.table_name,
    tc.constraint_name,
    tc.constraint_type,
    kcu.column_name,
    ccu.table_schema AS foreign_table_schema,
    ccu.table_name AS foreign_table_name,
    ccu.column_name AS foreign_column_name
FROM information_schema.table_constraints AS tc
JOIN information_schema.key_column_usage AS kcu
  ON tc.constraint_name = kcu.constraint_name
  AND tc.table_schema = kcu.table_schema
LEFT JOIN information_schema.constraint_column_usage AS ccu
  ON ccu.constraint_name = tc.constraint_name
  AND ccu.table_schema = tc.table_schema
WHERE tc.constraint_type IN ('PRIMARY KEY', 'FOREIGN KEY')
  AND tc.table_schema = 'public'
ORDER BY tc.table_name, tc.constraint_type;
`

// Trainer is the part of the generator the training plan drives.
type Trainer interface {
	RunSQL(ctx context.Context, sql string) (query.Result, error)
	Train(ctx context.Context, in nl2sql.TrainingInput) (string, error)
}

type Step struct {
	Name string
	// Done is printed when the step succeeds.
	Done string
	Run  func(ctx context.Context, trainer Trainer) error
}

// DefaultPlan trains key constraints, sample rows of invoices and vendors, and two example questions.
func DefaultPlan() []Step {
	return []Step{
		{
			Name: "primary keys and foreign keys",
			Done: "Trained on primary keys and foreign keys",
			Run:  introspectionStep(keyConstraintsSQL, "Primary keys and foreign keys in the database:\n"),
		},
		{
			Name: "invoices sample",
			Done: "Trained on invoices table structure",
			Run:  introspectionStep("SELECT * FROM public.invoices LIMIT 1;", "Sample data from invoices table:\n"),
		},
		{
			Name: "vendors sample",
			Done: "Trained on vendors table structure",
			Run:  introspectionStep("SELECT * FROM public.vendors LIMIT 1;", "Sample data from vendors table:\n"),
		},
		{
			Name: "current year spend example",
			Done: "Trained on current year spend example",
			Run: pairStep(
				"What is the total spend for the current year?",
				"SELECT SUM(invoice_total) FROM invoices WHERE EXTRACT(YEAR FROM invoice_date) = EXTRACT(YEAR FROM CURRENT_DATE)",
			),
		},
		{
			Name: "top vendors example",
			Done: "Trained on top vendors example",
			Run: pairStep(
				"List the top 3 vendors by total invoice spend.",
				`SELECT v.name, SUM(i.invoice_total) AS total_spend
FROM invoices i JOIN vendors v ON i.vendor_id = v.id
GROUP BY v.name
ORDER BY total_spend DESC
LIMIT 3`,
			),
		},
	}
}

func introspectionStep(sql, prefix string) func(context.Context, Trainer) error {
	return func(ctx context.Context, trainer Trainer) error {
		result, err := trainer.RunSQL(ctx, sql)
		if err != nil {
			return err
		}
		if _, err := trainer.Train(ctx, nl2sql.TrainingInput{DDL: prefix + MarkdownTable(result)}); err != nil {
			return fmt.Errorf("train ddl: %w", err)
		}
		return nil
	}
}

func pairStep(question, sql string) func(context.Context, Trainer) error {
	return func(ctx context.Context, trainer Trainer) error {
		if _, err := trainer.Train(ctx, nl2sql.TrainingInput{Question: question, SQL: sql}); err != nil {
			return fmt.Errorf("train question: %w", err)
		}
		return nil
	}
}

type StepFailure struct {
	Step string
	Err  error
}

type Report struct {
	Succeeded []string
	Failed    []StepFailure
}

// Progress receives step outcomes as the plan runs.
type Progress interface {
	StepSucceeded(step Step)
	StepFailed(step Step, err error)
}

// Run executes every step in order. A failing step is logged and reported; later steps still run.
// Once ctx is done the remaining steps are reported as skipped.
func Run(ctx context.Context, trainer Trainer, steps []Step, progress Progress, logger *slog.Logger) Report {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	var report Report
	fail := func(step Step, event string, err error) {
		logger.WarnContext(ctx, event,
			slog.String("step", step.Name),
			slog.String("error", err.Error()),
		)
		report.Failed = append(report.Failed, StepFailure{Step: step.Name, Err: err})
		if progress != nil {
			progress.StepFailed(step, err)
		}
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			fail(step, "training_step_skipped", fmt.Errorf("skipped: %w", err))
			continue
		}
		if err := step.Run(ctx, trainer); err != nil {
			fail(step, "training_step_failed", err)
			continue
		}
		logger.InfoContext(ctx, "training_step_succeeded", slog.String("step", step.Name))
		report.Succeeded = append(report.Succeeded, step.Name)
		if progress != nil {
			progress.StepSucceeded(step)
		}
	}
	return report
}
