package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.False(t, cfg.QueueEnabled())
	assert.Equal(t, 120*time.Second, cfg.LLMTimeout())
	assert.Equal(t, 30*time.Second, cfg.ExportTimeout())
}

func TestLoadYAML(t *testing.T) {
	for _, key := range []string{"PORT", "CORS_ORIGINS", "LLM_PROVIDER", "LLM_BASE_URL", "LLM_TIMEOUT_SECONDS", "STORAGE_TYPE", "S3_REGION", "REDIS_ADDR"} {
		t.Setenv(key, "")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "litmatrix.yaml")
	content := `
server:
  port: "9090"
  cors_origins: ["https://app.example.com"]
llm:
  provider: ollama
  base_url: http://ollama:11434
  model: gpt-oss:20b
storage:
  type: s3
  s3_bucket: reports
queue:
  redis_addr: redis:6379
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, "http://ollama:11434", cfg.LLM.BaseURL)
	assert.Equal(t, 120, cfg.LLM.TimeoutSeconds, "unset keys keep their defaults")
	assert.Equal(t, "s3", cfg.Storage.Type)
	assert.Equal(t, "us-east-1", cfg.Storage.S3Region)
	assert.True(t, cfg.QueueEnabled())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unterminated"), 0o600))
	_, err = Load(path)
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"PORT":                "7000",
		"CORS_ORIGINS":        "https://a.example, https://b.example ,",
		"DB_DSN":              "postgres://u:p@db/litmatrix",
		"LLM_PROVIDER":        "gemini",
		"LLM_TIMEOUT_SECONDS": "45",
		"EXPORT_WIDTH":        "not-a-number",
		"REDIS_ADDR":          "localhost:6379",
		"LOG_LEVEL":           "debug",
	}
	cfg := Default()
	cfg.ApplyEnv(func(k string) string { return env[k] })

	want := Default()
	want.Server.Port = "7000"
	want.Server.CORSOrigins = []string{"https://a.example", "https://b.example"}
	want.Database.DSN = "postgres://u:p@db/litmatrix"
	want.LLM.Provider = "gemini"
	want.LLM.TimeoutSeconds = 45
	want.Queue.RedisAddr = "localhost:6379"
	want.Log.Level = "debug"

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("ApplyEnv mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"missing port", func(c *Config) { c.Server.Port = "" }, "port"},
		{"missing dsn", func(c *Config) { c.Database.DSN = "" }, "dsn"},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "openai" }, "provider"},
		{"zero timeout", func(c *Config) { c.LLM.TimeoutSeconds = 0 }, "timeout"},
		{"s3 without bucket", func(c *Config) { c.Storage.Type = "s3" }, "s3_bucket"},
		{"unknown storage", func(c *Config) { c.Storage.Type = "gcs" }, "storage type"},
		{"queue without workers", func(c *Config) {
			c.Queue.RedisAddr = "redis:6379"
			c.Queue.Concurrency = 0
		}, "concurrency"},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }, "log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
