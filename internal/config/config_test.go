package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every bound variable for the duration of the test
func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range envBindings {
		if old, ok := os.LookupEnv(env); ok {
			require.NoError(t, os.Unsetenv(env))
			t.Cleanup(func() { os.Setenv(env, old) })
		}
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := NewLoader("", WithEnvFile("")).Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.App.Environment)
	assert.False(t, cfg.App.IsProduction())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, int64(10), cfg.Server.MaxUploadMB)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, 5*time.Second, cfg.Storage.RetryDelay)
	assert.Equal(t, ReceiptsLocal, cfg.Receipts.Backend)
	assert.Equal(t, "uploads", cfg.Receipts.Dir)
	assert.Equal(t, "minimal", cfg.Expenses.RequiredProfile)
	assert.Equal(t, "expenses", cfg.Mongo.Database)
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, "info", cfg.Logger.Level)
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
app:
  environment: production
server:
  port: 9000
storage:
  backend: SQLite
sqlite:
  path: /tmp/x.db
expenses:
  required_profile: full
`)
	t.Setenv("PORT", "9100")
	t.Setenv("LOG_LEVEL", "debug")

	loader := NewLoader(path, WithEnvFile(""))
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.True(t, cfg.App.IsProduction())
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
	assert.Equal(t, "/tmp/x.db", cfg.SQLite.Path)
	assert.Equal(t, "full", cfg.Expenses.RequiredProfile)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, path, loader.ConfigFileUsed())
}

func TestLoad_MissingFileIsOptional(t *testing.T) {
	clearEnv(t)

	loader := NewLoader(filepath.Join(t.TempDir(), "absent.yaml"), WithEnvFile(""))
	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Empty(t, loader.ConfigFileUsed())
	assert.False(t, loader.Watch(func(*Config, error) {}))
}

func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	envFile := writeFile(t, dir, ".env", "STORAGE_BACKEND=mongo\nMONGODB_URI=mongodb://localhost:27017\nLARK_CHAT_ID=oc_1\n")
	t.Cleanup(func() {
		os.Unsetenv("STORAGE_BACKEND")
		os.Unsetenv("MONGODB_URI")
		os.Unsetenv("LARK_CHAT_ID")
	})

	cfg, err := NewLoader("", WithEnvFile(envFile)).Load()
	require.NoError(t, err)
	assert.Equal(t, BackendMongo, cfg.Storage.Backend)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Mongo.URI)
	assert.Equal(t, "oc_1", cfg.Lark.ChatID)
}

func TestLoad_MissingConnectionStringIsFatal(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORAGE_BACKEND", "postgres")

	_, err := NewLoader("", WithEnvFile("")).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func validConfig() Config {
	return Config{
		Server:   ServerConfig{Port: 8080, MaxUploadMB: 10},
		Storage:  StorageConfig{Backend: BackendMemory, RetryDelay: time.Second},
		Receipts: ReceiptsConfig{Backend: ReceiptsLocal, Dir: "uploads"},
		Expenses: ExpensesConfig{RequiredProfile: "minimal"},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: "server.port"},
		{name: "unknown backend", mutate: func(c *Config) { c.Storage.Backend = "dynamo" }, wantErr: "storage.backend"},
		{name: "gorm without url", mutate: func(c *Config) { c.Storage.Backend = BackendGorm }, wantErr: "postgres.url"},
		{name: "mongo without uri", mutate: func(c *Config) { c.Storage.Backend = BackendMongo }, wantErr: "mongo.uri"},
		{name: "sqlite without path", mutate: func(c *Config) { c.Storage.Backend = BackendSQLite }, wantErr: "sqlite.path"},
		{name: "minio without endpoint", mutate: func(c *Config) { c.Receipts.Backend = ReceiptsMinio }, wantErr: "S3_ENDPOINT"},
		{name: "unknown receipts backend", mutate: func(c *Config) { c.Receipts.Backend = "ftp" }, wantErr: "receipts.backend"},
		{name: "bad profile", mutate: func(c *Config) { c.Expenses.RequiredProfile = "strict" }, wantErr: "required_profile"},
		{name: "redis without ttl", mutate: func(c *Config) { c.Redis.Addr = "localhost:6379" }, wantErr: "redis.ttl"},
		{name: "zero retry delay", mutate: func(c *Config) { c.Storage.RetryDelay = 0 }, wantErr: "retry_delay"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
