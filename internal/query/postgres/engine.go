package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/flowbit/vanna/internal/query"
)

type Config struct {
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	ReadOnly        bool
}

// DSN renders the connection settings as a postgres:// URL.
func (c Config) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Name,
	}
	if c.User != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.User, c.Password)
		} else {
			u.User = url.User(c.User)
		}
	}
	if c.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{c.SSLMode}}.Encode()
	}
	return u.String()
}

type Engine struct {
	db       *sql.DB
	readOnly bool
}

// Open connects to PostgreSQL and verifies the connection with a ping.
func Open(ctx context.Context, cfg Config) (*Engine, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("database host is required")
	}
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, fmt.Errorf("database name is required")
	}

	db, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres db %s:%d/%s: %w", cfg.Host, cfg.Port, cfg.Name, err)
	}

	return NewEngine(db, cfg.ReadOnly), nil
}

func NewEngine(db *sql.DB, readOnly bool) *Engine {
	return &Engine{db: db, readOnly: readOnly}
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	sqlText, err := query.PrepareSQL(request.SQL, request.RowLimit)
	if err != nil {
		return query.Result{}, err
	}

	start := time.Now()
	var (
		columns []string
		rows    [][]any
	)
	if e.readOnly {
		columns, rows, err = e.queryReadOnly(ctx, sqlText)
	} else {
		columns, rows, err = e.query(ctx, sqlText)
	}
	if err != nil {
		return query.Result{}, err
	}
	return query.Result{
		Columns:  columns,
		Rows:     rows,
		Duration: time.Since(start),
	}, nil
}

func (e *Engine) query(ctx context.Context, sqlText string) ([]string, [][]any, error) {
	rows, err := e.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, nil, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return query.ScanRows(rows)
}

func (e *Engine) queryReadOnly(ctx context.Context, sqlText string) ([]string, [][]any, error) {
	tx, err := e.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, nil, fmt.Errorf("begin read-only tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, nil, fmt.Errorf("execute query: %w", err)
	}
	columns, values, err := query.ScanRows(rows)
	_ = rows.Close()
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit read-only tx: %w", err)
	}
	return columns, values, nil
}

func (e *Engine) HealthCheck(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := e.db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("ping postgres db: %w", err)
	}
	return nil
}

func (e *Engine) Close() error {
	return e.db.Close()
}
