package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/flowbit/vanna/internal/backup"
	"github.com/flowbit/vanna/internal/config"
	"github.com/flowbit/vanna/internal/llm"
	"github.com/flowbit/vanna/internal/nl2sql"
	"github.com/flowbit/vanna/internal/query"
	"github.com/flowbit/vanna/internal/query/duckdb"
	"github.com/flowbit/vanna/internal/query/postgres"
	"github.com/flowbit/vanna/internal/storage/s3"
	"github.com/flowbit/vanna/internal/trainingstore"
)

var (
	ErrMissingAPIKey  = errors.New("GROQ_API_KEY is not set")
	ErrBackupDisabled = errors.New("backup object store is not configured (VANNA_BACKUP_ENDPOINT, VANNA_BACKUP_BUCKET)")
)

// Engine is a SQL connector that can report its health and release its connections.
type Engine interface {
	query.Engine
	HealthCheck(ctx context.Context) error
	Close() error
}

// Components is everything a process needs to answer and train questions.
type Components struct {
	Generator *nl2sql.Generator
	Store     *trainingstore.Store
	Engine    Engine
}

func (c *Components) Close() error {
	if c == nil || c.Engine == nil {
		return nil
	}
	return c.Engine.Close()
}

// Build checks the API key, connects to the database, opens the training store and
// assembles the generator. Any failure is returned before partial components leak.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Components, error) {
	chat, err := NewChat(cfg, logger)
	if err != nil {
		return nil, err
	}
	engine, dialect, err := OpenEngine(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store, err := OpenStore(cfg, logger)
	if err != nil {
		_ = engine.Close()
		return nil, err
	}
	gen, err := nl2sql.NewGenerator(store, chat, engine, nl2sql.Options{
		Dialect:  dialect,
		RowLimit: cfg.Database.RowLimit,
		Logger:   logger,
	})
	if err != nil {
		_ = engine.Close()
		return nil, err
	}
	return &Components{Generator: gen, Store: store, Engine: engine}, nil
}

func NewChat(cfg config.Config, logger *slog.Logger) (*llm.GroqClient, error) {
	if strings.TrimSpace(cfg.LLM.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	chat, err := llm.NewGroqClient(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create llm client: %w", err)
	}
	return chat, nil
}

// OpenEngine connects the configured database driver and returns the SQL dialect name for prompts.
func OpenEngine(ctx context.Context, cfg config.Config) (Engine, string, error) {
	db := cfg.Database
	switch db.Driver {
	case config.DriverDuckDB:
		engine, err := duckdb.Open(ctx, duckdb.Config{Path: db.DuckDBPath, ReadOnly: db.ReadOnly})
		if err != nil {
			return nil, "", err
		}
		return engine, "DuckDB", nil
	case config.DriverPostgres, "":
		engine, err := postgres.Open(ctx, postgres.Config{
			Host:            db.Host,
			Port:            db.Port,
			Name:            db.Name,
			User:            db.User,
			Password:        db.Password,
			SSLMode:         db.SSLMode,
			MaxOpenConns:    db.MaxOpenConns,
			MaxIdleConns:    db.MaxIdleConns,
			ConnMaxIdleTime: db.ConnMaxIdleTime,
			ConnMaxLifetime: db.ConnMaxLifetime,
			ReadOnly:        db.ReadOnly,
		})
		if err != nil {
			return nil, "", err
		}
		return engine, "PostgreSQL", nil
	default:
		return nil, "", fmt.Errorf("unsupported database driver %q", db.Driver)
	}
}

func OpenStore(cfg config.Config, logger *slog.Logger) (*trainingstore.Store, error) {
	embed, err := trainingstore.NewEmbeddingFunc(trainingstore.EmbeddingConfig{
		Provider:   cfg.Store.EmbeddingProvider,
		Model:      cfg.Store.EmbeddingModel,
		BaseURL:    cfg.Store.EmbeddingBaseURL,
		APIKey:     cfg.Store.EmbeddingAPIKey,
		Dimensions: cfg.Store.EmbeddingDimensions,
	})
	if err != nil {
		return nil, err
	}
	return trainingstore.Open(trainingstore.Config{
		Path:     trainingstore.PathFor(cfg.Store.Dir),
		Compress: cfg.Store.Compress,
		Embedder: embed,
		NResults: cfg.Store.Results,
		Logger:   logger,
	})
}

// OpenBackup connects the snapshot object store for source.
func OpenBackup(ctx context.Context, cfg config.Config, source backup.Source, logger *slog.Logger) (*backup.Service, error) {
	if !cfg.Backup.Enabled() {
		return nil, ErrBackupDisabled
	}
	objects, err := s3.New(ctx, s3.Config{
		Endpoint:         cfg.Backup.Endpoint,
		Region:           cfg.Backup.Region,
		Bucket:           cfg.Backup.Bucket,
		AccessKeyID:      cfg.Backup.AccessKeyID,
		SecretAccessKey:  cfg.Backup.SecretAccessKey,
		UseSSL:           cfg.Backup.UseSSL,
		Prefix:           cfg.Backup.Prefix,
		AutoCreateBucket: cfg.Backup.AutoCreateBucket,
	})
	if err != nil {
		return nil, fmt.Errorf("open backup store: %w", err)
	}
	return backup.NewService(objects, source, logger)
}
