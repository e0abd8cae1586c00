package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	DriverPostgres = "postgres"
	DriverDuckDB   = "duckdb"
)

const (
	EmbeddingHash   = "hash"
	EmbeddingOpenAI = "openai"
	EmbeddingOllama = "ollama"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Database      DatabaseConfig
	LLM           LLMConfig
	Store         StoreConfig
	Backup        BackupConfig
	Auth          AuthConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address            string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	CORSAllowedOrigins []string
}

type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	SSLMode         string
	DuckDBPath      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	ReadOnly        bool
	RowLimit        int
}

type LLMConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

type StoreConfig struct {
	Dir                 string
	Compress            bool
	Results             int
	EmbeddingProvider   string
	EmbeddingModel      string
	EmbeddingBaseURL    string
	EmbeddingAPIKey     string
	EmbeddingDimensions int
}

type BackupConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

// Enabled reports whether an object store has been configured for training-data backups.
func (b BackupConfig) Enabled() bool {
	return b.Endpoint != "" && b.Bucket != ""
}

type AuthConfig struct {
	// AdminKeys lists "name:key" pairs allowed to change training data. Empty leaves the
	// training routes open.
	AdminKeys string
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

// LoadFromEnv reads an optional dotenv file (VANNA_ENV_FILE, default ".env") into the process
// environment without overriding variables that are already set, then loads the config.
func LoadFromEnv(serviceName string) (Config, error) {
	envFile := ".env"
	if raw, ok := os.LookupEnv("VANNA_ENV_FILE"); ok {
		envFile = strings.TrimSpace(raw)
	}
	if err := loadDotEnv(envFile); err != nil {
		return Config{}, err
	}
	return Load(serviceName, os.LookupEnv)
}

func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %q: %w", path, err)
	}
	return nil
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("VANNA_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid VANNA_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	appliers := []func() error{
		func() error { return applyString(lookup, "VANNA_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "VANNA_HTTP_ADDR", &cfg.HTTP.Address) },
		func() error { return applyDuration(lookup, "VANNA_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout) },
		func() error { return applyDuration(lookup, "VANNA_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout) },
		func() error { return applyDuration(lookup, "VANNA_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout) },
		func() error { return applyList(lookup, "VANNA_CORS_ALLOWED_ORIGINS", &cfg.HTTP.CORSAllowedOrigins) },

		func() error { return applyString(lookup, "VANNA_DB_DRIVER", &cfg.Database.Driver) },
		func() error { return applyString(lookup, "DB_HOST", &cfg.Database.Host) },
		func() error { return applyInt(lookup, "DB_PORT", &cfg.Database.Port) },
		func() error { return applyString(lookup, "DB_NAME", &cfg.Database.Name) },
		func() error { return applyString(lookup, "DB_USER", &cfg.Database.User) },
		func() error { return applyString(lookup, "DB_PASSWORD", &cfg.Database.Password) },
		func() error { return applyString(lookup, "VANNA_DB_SSLMODE", &cfg.Database.SSLMode) },
		func() error { return applyString(lookup, "VANNA_DB_DUCKDB_PATH", &cfg.Database.DuckDBPath) },
		func() error { return applyInt(lookup, "VANNA_DB_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns) },
		func() error { return applyInt(lookup, "VANNA_DB_MAX_IDLE_CONNS", &cfg.Database.MaxIdleConns) },
		func() error {
			return applyDuration(lookup, "VANNA_DB_CONN_MAX_IDLE_TIME", &cfg.Database.ConnMaxIdleTime)
		},
		func() error {
			return applyDuration(lookup, "VANNA_DB_CONN_MAX_LIFETIME", &cfg.Database.ConnMaxLifetime)
		},
		func() error { return applyBool(lookup, "VANNA_DB_READ_ONLY", &cfg.Database.ReadOnly) },
		func() error { return applyInt(lookup, "VANNA_DB_ROW_LIMIT", &cfg.Database.RowLimit) },

		func() error { return applyString(lookup, "GROQ_API_KEY", &cfg.LLM.APIKey) },
		func() error { return applyString(lookup, "VANNA_LLM_BASE_URL", &cfg.LLM.BaseURL) },
		func() error { return applyString(lookup, "VANNA_LLM_MODEL", &cfg.LLM.Model) },
		func() error { return applyFloat(lookup, "VANNA_LLM_TEMPERATURE", &cfg.LLM.Temperature) },
		func() error { return applyDuration(lookup, "VANNA_LLM_TIMEOUT", &cfg.LLM.Timeout) },

		func() error { return applyString(lookup, "VANNA_STORE_DIR", &cfg.Store.Dir) },
		func() error { return applyBool(lookup, "VANNA_STORE_COMPRESS", &cfg.Store.Compress) },
		func() error { return applyInt(lookup, "VANNA_STORE_RESULTS", &cfg.Store.Results) },
		func() error { return applyString(lookup, "VANNA_EMBEDDING_PROVIDER", &cfg.Store.EmbeddingProvider) },
		func() error { return applyString(lookup, "VANNA_EMBEDDING_MODEL", &cfg.Store.EmbeddingModel) },
		func() error { return applyString(lookup, "VANNA_EMBEDDING_BASE_URL", &cfg.Store.EmbeddingBaseURL) },
		func() error { return applyString(lookup, "VANNA_EMBEDDING_API_KEY", &cfg.Store.EmbeddingAPIKey) },
		func() error { return applyInt(lookup, "VANNA_EMBEDDING_DIMENSIONS", &cfg.Store.EmbeddingDimensions) },

		func() error { return applyString(lookup, "VANNA_BACKUP_ENDPOINT", &cfg.Backup.Endpoint) },
		func() error { return applyString(lookup, "VANNA_BACKUP_REGION", &cfg.Backup.Region) },
		func() error { return applyString(lookup, "VANNA_BACKUP_BUCKET", &cfg.Backup.Bucket) },
		func() error { return applyString(lookup, "VANNA_BACKUP_ACCESS_KEY", &cfg.Backup.AccessKeyID) },
		func() error { return applyString(lookup, "VANNA_BACKUP_SECRET_KEY", &cfg.Backup.SecretAccessKey) },
		func() error { return applyBool(lookup, "VANNA_BACKUP_USE_SSL", &cfg.Backup.UseSSL) },
		func() error { return applyString(lookup, "VANNA_BACKUP_PREFIX", &cfg.Backup.Prefix) },
		func() error {
			return applyBool(lookup, "VANNA_BACKUP_AUTO_CREATE_BUCKET", &cfg.Backup.AutoCreateBucket)
		},

		func() error { return applyString(lookup, "VANNA_ADMIN_API_KEYS", &cfg.Auth.AdminKeys) },

		func() error { return applyBool(lookup, "VANNA_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "VANNA_LOG_LEVEL", &cfg.Observability.LogLevel) },
	}
	for _, apply := range appliers {
		if err := apply(); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if c.HTTP.Address == "" {
		return fmt.Errorf("http address is required")
	}
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			return fmt.Errorf("invalid DB_PORT: %d", c.Database.Port)
		}
	case DriverDuckDB:
		if c.Database.DuckDBPath == "" {
			return fmt.Errorf("VANNA_DB_DUCKDB_PATH is required for the duckdb driver")
		}
	default:
		return fmt.Errorf("invalid VANNA_DB_DRIVER: %q", c.Database.Driver)
	}
	if c.Database.RowLimit < 0 {
		return fmt.Errorf("VANNA_DB_ROW_LIMIT must be >= 0")
	}
	switch c.Store.EmbeddingProvider {
	case EmbeddingHash, EmbeddingOpenAI, EmbeddingOllama:
	default:
		return fmt.Errorf("invalid VANNA_EMBEDDING_PROVIDER: %q", c.Store.EmbeddingProvider)
	}
	if c.Store.Results <= 0 {
		return fmt.Errorf("VANNA_STORE_RESULTS must be > 0")
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "vanna-api"},
		HTTP: HTTPConfig{
			Address:            ":8000",
			ReadTimeout:        5 * time.Second,
			WriteTimeout:       2 * time.Minute,
			IdleTimeout:        60 * time.Second,
			CORSAllowedOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			Driver:          DriverPostgres,
			Host:            "localhost",
			Port:            5432,
			Name:            "flowbit_db",
			User:            "postgres_user",
			Password:        "my_strong_password",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    10,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
			ReadOnly:        true,
		},
		LLM: LLMConfig{
			BaseURL:     "https://api.groq.com/openai",
			Model:       "llama-3.1-8b-instant",
			Temperature: 0.7,
			Timeout:     60 * time.Second,
		},
		Store: StoreConfig{
			Dir:                 ".",
			Results:             10,
			EmbeddingProvider:   EmbeddingHash,
			EmbeddingDimensions: 512,
		},
		Backup: BackupConfig{
			Region:           "us-east-1",
			AutoCreateBucket: true,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18000"
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Database.SSLMode = "require"
		cfg.Backup.UseSSL = true
		cfg.Backup.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyList(lookup LookupFunc, key string, dst *[]string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	values := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	if len(values) == 0 {
		return fmt.Errorf("invalid %s: at least one value is required", key)
	}
	*dst = values
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
