package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	cfg, err := Load("vanna-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != ":8000" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if len(cfg.HTTP.CORSAllowedOrigins) != 1 || cfg.HTTP.CORSAllowedOrigins[0] != "*" {
		t.Fatalf("HTTP.CORSAllowedOrigins = %#v", cfg.HTTP.CORSAllowedOrigins)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Database.Driver != DriverPostgres {
		t.Fatalf("Database.Driver = %q", cfg.Database.Driver)
	}
	if cfg.Database.Host != "localhost" || cfg.Database.Port != 5432 {
		t.Fatalf("Database host/port = %s:%d", cfg.Database.Host, cfg.Database.Port)
	}
	if cfg.Database.Name != "flowbit_db" || cfg.Database.User != "postgres_user" {
		t.Fatalf("Database name/user = %q/%q", cfg.Database.Name, cfg.Database.User)
	}
	if cfg.Database.Password != "my_strong_password" {
		t.Fatalf("Database.Password = %q", cfg.Database.Password)
	}
	if !cfg.Database.ReadOnly {
		t.Fatal("Database.ReadOnly should default to true")
	}
	if cfg.LLM.Model != "llama-3.1-8b-instant" {
		t.Fatalf("LLM.Model = %q", cfg.LLM.Model)
	}
	if cfg.LLM.Temperature != 0.7 {
		t.Fatalf("LLM.Temperature = %f", cfg.LLM.Temperature)
	}
	if cfg.LLM.APIKey != "" {
		t.Fatalf("LLM.APIKey = %q, want empty", cfg.LLM.APIKey)
	}
	if cfg.Store.EmbeddingProvider != EmbeddingHash {
		t.Fatalf("Store.EmbeddingProvider = %q", cfg.Store.EmbeddingProvider)
	}
	if cfg.Store.Results != 10 {
		t.Fatalf("Store.Results = %d", cfg.Store.Results)
	}
	if cfg.Backup.Enabled() {
		t.Fatal("Backup should be disabled without endpoint and bucket")
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	cfg, err := Load("vanna-api", mapLookup(map[string]string{"VANNA_PROFILE": "prod"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileProd {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileProd)
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Database.SSLMode != "require" {
		t.Fatalf("Database.SSLMode = %q", cfg.Database.SSLMode)
	}
	if !cfg.Backup.UseSSL {
		t.Fatal("Backup.UseSSL should default to true in prod")
	}
	if cfg.Backup.AutoCreateBucket {
		t.Fatal("Backup.AutoCreateBucket should default to false in prod")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"VANNA_PROFILE":              "test",
		"VANNA_SERVICE_NAME":         "vanna-custom",
		"VANNA_HTTP_ADDR":            ":9999",
		"VANNA_HTTP_READ_TIMEOUT":    "2s",
		"VANNA_HTTP_WRITE_TIMEOUT":   "3s",
		"VANNA_CORS_ALLOWED_ORIGINS": "http://localhost:3000, https://app.flowbit.dev",
		"VANNA_LOG_LEVEL":            "error",
		"DB_HOST":                    "db.internal",
		"DB_PORT":                    "6543",
		"DB_NAME":                    "analytics",
		"DB_USER":                    "reader",
		"DB_PASSWORD":                "s3cret",
		"VANNA_DB_READ_ONLY":         "false",
		"VANNA_DB_ROW_LIMIT":         "250",
		"VANNA_DB_MAX_OPEN_CONNS":    "42",
		"GROQ_API_KEY":               "gsk-test",
		"VANNA_LLM_BASE_URL":         "https://llm.example.com",
		"VANNA_LLM_MODEL":            "llama-3.3-70b-versatile",
		"VANNA_LLM_TEMPERATURE":      "0.2",
		"VANNA_LLM_TIMEOUT":          "21s",
		"VANNA_STORE_DIR":            "/var/lib/vanna",
		"VANNA_STORE_COMPRESS":       "true",
		"VANNA_STORE_RESULTS":        "4",
		"VANNA_EMBEDDING_PROVIDER":   "ollama",
		"VANNA_EMBEDDING_MODEL":      "nomic-embed-text",
		"VANNA_BACKUP_ENDPOINT":      "s3.example.com",
		"VANNA_BACKUP_BUCKET":        "vanna-backups",
		"VANNA_BACKUP_PREFIX":        "tenant-root",
		"VANNA_ADMIN_API_KEYS":       "ops:k1",
	})
	cfg, err := Load("vanna-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Service.Name != "vanna-custom" {
		t.Fatalf("Service.Name = %q", cfg.Service.Name)
	}
	if cfg.HTTP.Address != ":9999" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.HTTP.ReadTimeout != 2*time.Second || cfg.HTTP.WriteTimeout != 3*time.Second {
		t.Fatalf("HTTP timeouts = %s/%s", cfg.HTTP.ReadTimeout, cfg.HTTP.WriteTimeout)
	}
	if len(cfg.HTTP.CORSAllowedOrigins) != 2 || cfg.HTTP.CORSAllowedOrigins[1] != "https://app.flowbit.dev" {
		t.Fatalf("HTTP.CORSAllowedOrigins = %#v", cfg.HTTP.CORSAllowedOrigins)
	}
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Database.Host != "db.internal" || cfg.Database.Port != 6543 {
		t.Fatalf("Database host/port = %s:%d", cfg.Database.Host, cfg.Database.Port)
	}
	if cfg.Database.Name != "analytics" || cfg.Database.User != "reader" || cfg.Database.Password != "s3cret" {
		t.Fatalf("Database credentials = %+v", cfg.Database)
	}
	if cfg.Database.ReadOnly {
		t.Fatal("Database.ReadOnly = true, want false")
	}
	if cfg.Database.RowLimit != 250 || cfg.Database.MaxOpenConns != 42 {
		t.Fatalf("Database limits = %d/%d", cfg.Database.RowLimit, cfg.Database.MaxOpenConns)
	}
	if cfg.LLM.APIKey != "gsk-test" || cfg.LLM.BaseURL != "https://llm.example.com" {
		t.Fatalf("LLM = %+v", cfg.LLM)
	}
	if cfg.LLM.Model != "llama-3.3-70b-versatile" || cfg.LLM.Temperature != 0.2 {
		t.Fatalf("LLM model/temperature = %q/%f", cfg.LLM.Model, cfg.LLM.Temperature)
	}
	if cfg.LLM.Timeout != 21*time.Second {
		t.Fatalf("LLM.Timeout = %s", cfg.LLM.Timeout)
	}
	if cfg.Store.Dir != "/var/lib/vanna" || !cfg.Store.Compress || cfg.Store.Results != 4 {
		t.Fatalf("Store = %+v", cfg.Store)
	}
	if cfg.Store.EmbeddingProvider != EmbeddingOllama || cfg.Store.EmbeddingModel != "nomic-embed-text" {
		t.Fatalf("Store embedding = %q/%q", cfg.Store.EmbeddingProvider, cfg.Store.EmbeddingModel)
	}
	if !cfg.Backup.Enabled() || cfg.Backup.Prefix != "tenant-root" {
		t.Fatalf("Backup = %+v", cfg.Backup)
	}
	if cfg.Auth.AdminKeys != "ops:k1" {
		t.Fatalf("Auth.AdminKeys = %q", cfg.Auth.AdminKeys)
	}
}

func TestLoadDuckDBDriverRequiresPath(t *testing.T) {
	_, err := Load("vanna-api", mapLookup(map[string]string{"VANNA_DB_DRIVER": "duckdb"}))
	if err == nil {
		t.Fatal("Load() expected error for duckdb driver without path")
	}
	cfg, err := Load("vanna-api", mapLookup(map[string]string{
		"VANNA_DB_DRIVER":      "duckdb",
		"VANNA_DB_DUCKDB_PATH": "/tmp/flowbit.duckdb",
	}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.DuckDBPath != "/tmp/flowbit.duckdb" {
		t.Fatalf("Database.DuckDBPath = %q", cfg.Database.DuckDBPath)
	}
}

func TestLoadErrorsOnInvalidValues(t *testing.T) {
	tests := []map[string]string{
		{"VANNA_PROFILE": "oops"},
		{"VANNA_HTTP_READ_TIMEOUT": "NaN"},
		{"VANNA_CORS_ALLOWED_ORIGINS": " , "},
		{"DB_PORT": "oops"},
		{"DB_PORT": "70000"},
		{"VANNA_DB_DRIVER": "mysql"},
		{"VANNA_DB_READ_ONLY": "not-bool"},
		{"VANNA_DB_ROW_LIMIT": "-1"},
		{"VANNA_LLM_TEMPERATURE": "bad"},
		{"VANNA_EMBEDDING_PROVIDER": "bedrock"},
		{"VANNA_STORE_RESULTS": "0"},
		{"VANNA_LOG_LEVEL": "verbose"},
	}
	for _, env := range tests {
		_, err := Load("vanna-api", mapLookup(env))
		if err == nil {
			t.Fatalf("Load() expected error for env %#v", env)
		}
	}
}

func TestLoadFromEnvReadsDotEnvWithoutOverriding(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "vanna.env")
	contents := "GROQ_API_KEY=from-file\nDB_NAME=file_db\n"
	if err := os.WriteFile(envFile, []byte(contents), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("VANNA_ENV_FILE", envFile)
	t.Setenv("DB_NAME", "process_db")
	t.Setenv("GROQ_API_KEY", "")
	os.Unsetenv("GROQ_API_KEY")

	cfg, err := LoadFromEnv("vanna-api")
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.LLM.APIKey != "from-file" {
		t.Fatalf("LLM.APIKey = %q, want from-file", cfg.LLM.APIKey)
	}
	if cfg.Database.Name != "process_db" {
		t.Fatalf("Database.Name = %q, want process_db", cfg.Database.Name)
	}
}

func TestLoadFromEnvIgnoresMissingDotEnv(t *testing.T) {
	t.Setenv("VANNA_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	if _, err := LoadFromEnv("vanna-api"); err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
