package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	goduckdb "github.com/marcboeker/go-duckdb/v2"

	"github.com/flowbit/vanna/internal/query"
)

type Config struct {
	// Path to the database file. Empty opens an in-memory database.
	Path     string
	ReadOnly bool
}

// Engine runs generated SQL against a local DuckDB database file.
type Engine struct {
	db *sql.DB
}

func Open(ctx context.Context, cfg Config) (*Engine, error) {
	dsn := strings.TrimSpace(cfg.Path)
	if dsn != "" && cfg.ReadOnly {
		dsn += "?access_mode=read_only"
	}
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping duckdb %q: %w", cfg.Path, err)
	}
	return &Engine{db: db}, nil
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	sqlText, err := query.PrepareSQL(request.SQL, request.RowLimit)
	if err != nil {
		return query.Result{}, err
	}

	start := time.Now()
	rows, err := e.db.QueryContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, resultRows, err := query.ScanRows(rows)
	if err != nil {
		return query.Result{}, err
	}
	for _, row := range resultRows {
		normalizeRow(row)
	}
	return query.Result{
		Columns:  columns,
		Rows:     resultRows,
		Duration: time.Since(start),
	}, nil
}

// Exec runs a statement that returns no rows. Used to seed local databases.
func (e *Engine) Exec(ctx context.Context, statement string) error {
	if _, err := e.db.ExecContext(ctx, statement); err != nil {
		return fmt.Errorf("exec statement: %w", err)
	}
	return nil
}

func (e *Engine) HealthCheck(ctx context.Context) error {
	if err := e.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping duckdb: %w", err)
	}
	return nil
}

func (e *Engine) Close() error {
	return e.db.Close()
}

// normalizeRow turns DECIMAL values into floats so results encode as plain JSON numbers.
func normalizeRow(row []any) {
	for i, value := range row {
		if decimal, ok := value.(goduckdb.Decimal); ok {
			row[i] = decimal.Float64()
		}
	}
}
