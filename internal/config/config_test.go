package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "invoices", cfg.Storage.Bucket)
	assert.Equal(t, "X-API-Key", cfg.Auth.APIKeyHeader)
	assert.Equal(t, "openai", cfg.LLM.DefaultProvider)
	assert.Equal(t, 24*time.Hour, cfg.Documents.RetentionWindow)
	assert.Equal(t, "@every 15m", cfg.Reaper.Schedule)
	assert.Equal(t, 10*time.Minute, cfg.Reaper.LockTTL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DOCUMENT_RETENTION_WINDOW", "72h")
	t.Setenv("REAPER_SCHEDULE", "@every 5m")
	t.Setenv("API_KEYS", "key-one, key-two,,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 72*time.Hour, cfg.Documents.RetentionWindow)
	assert.Equal(t, "@every 5m", cfg.Reaper.Schedule)
	assert.Equal(t, []string{"key-one", "key-two"}, cfg.Auth.APIKeys)
}

func TestLoadInvalidPort(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-number")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SERVER_PORT")
}

func TestLoadInvalidRetention(t *testing.T) {
	t.Setenv("DOCUMENT_RETENTION_WINDOW", "yesterday")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DOCUMENT_RETENTION_WINDOW")
}

func TestValidateReportsAllMissing(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "SUPABASE_URL")
	assert.Contains(t, err.Error(), "SUPABASE_SERVICE_KEY")
}

func TestValidatePasses(t *testing.T) {
	cfg := &Config{}
	cfg.Database.URL = "postgres://localhost/invoiceflow"
	cfg.Auth.JWTSecret = "secret"
	cfg.Storage.SupabaseURL = "https://example.supabase.co"
	cfg.Storage.SupabaseKey = "service-key"

	require.NoError(t, cfg.Validate())
}

func TestAddr(t *testing.T) {
	cfg := &Config{Server: ServerConfig{Host: "127.0.0.1", Port: 8081}}
	assert.Equal(t, "127.0.0.1:8081", cfg.Addr())
}
