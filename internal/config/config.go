package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the service configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	LLM      LLMConfig      `yaml:"llm"`
	Export   ExportConfig   `yaml:"export"`
	Storage  StorageConfig  `yaml:"storage"`
	Queue    QueueConfig    `yaml:"queue"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig represents the HTTP listener
type ServerConfig struct {
	Port        string   `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// DatabaseConfig holds the KV store DSN: a sqlite file path or a postgres URL
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// LLMConfig represents the inference provider
type LLMConfig struct {
	Provider       string `yaml:"provider"`
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	EmbeddedKey    string `yaml:"embedded_key"` // base64, overrides the build-time value
}

// ExportConfig represents headless Chrome settings for png/pdf export
type ExportConfig struct {
	ChromeBin        string `yaml:"chrome_bin"`
	ChromeControlURL string `yaml:"chrome_control_url"`
	Width            int    `yaml:"width"`
	TimeoutSeconds   int    `yaml:"timeout_seconds"`
}

// StorageConfig represents where async export artifacts go
type StorageConfig struct {
	Type         string `yaml:"type"`
	LocalPath    string `yaml:"local_path"`
	S3Bucket     string `yaml:"s3_bucket"`
	S3Region     string `yaml:"s3_region"`
	S3Endpoint   string `yaml:"s3_endpoint"`
	AWSAccessKey string `yaml:"aws_access_key"`
	AWSSecretKey string `yaml:"aws_secret_key"`
}

// QueueConfig enables async exports when RedisAddr is set
type QueueConfig struct {
	RedisAddr   string `yaml:"redis_addr"`
	Concurrency int    `yaml:"concurrency"`
}

// LogConfig represents logger settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Port: "8080", CORSOrigins: []string{"*"}},
		Database: DatabaseConfig{DSN: "litmatrix.db"},
		LLM: LLMConfig{
			Provider:       "deepseek",
			TimeoutSeconds: 120,
		},
		Export: ExportConfig{
			Width:          900,
			TimeoutSeconds: 30,
		},
		Storage: StorageConfig{
			Type:      "local",
			LocalPath: "./data/exports",
			S3Region:  "us-east-1",
		},
		Queue: QueueConfig{Concurrency: 2},
		Log:   LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads an optional YAML file over the defaults, then applies environment overrides.
// A .env file in the working directory is loaded first if present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.ApplyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables looked up with getenv
func (c *Config) ApplyEnv(getenv func(string) string) {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	str("PORT", &c.Server.Port)
	if v := getenv("CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = splitList(v)
	}

	str("DB_DSN", &c.Database.DSN)

	str("LLM_PROVIDER", &c.LLM.Provider)
	str("LLM_BASE_URL", &c.LLM.BaseURL)
	str("LLM_MODEL", &c.LLM.Model)
	num("LLM_TIMEOUT_SECONDS", &c.LLM.TimeoutSeconds)
	str("LITMATRIX_EMBEDDED_KEY", &c.LLM.EmbeddedKey)

	str("CHROME_BIN", &c.Export.ChromeBin)
	str("CHROME_CONTROL_URL", &c.Export.ChromeControlURL)
	num("EXPORT_WIDTH", &c.Export.Width)
	num("EXPORT_TIMEOUT_SECONDS", &c.Export.TimeoutSeconds)

	str("STORAGE_TYPE", &c.Storage.Type)
	str("STORAGE_PATH", &c.Storage.LocalPath)
	str("S3_BUCKET", &c.Storage.S3Bucket)
	str("S3_REGION", &c.Storage.S3Region)
	str("S3_ENDPOINT", &c.Storage.S3Endpoint)
	str("AWS_ACCESS_KEY_ID", &c.Storage.AWSAccessKey)
	str("AWS_SECRET_ACCESS_KEY", &c.Storage.AWSSecretKey)

	str("REDIS_ADDR", &c.Queue.RedisAddr)
	num("WORKER_CONCURRENCY", &c.Queue.Concurrency)

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
}

// Validate checks the configuration for values the service cannot start with
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}

	switch c.LLM.Provider {
	case "deepseek", "ollama", "gemini":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	if c.LLM.TimeoutSeconds <= 0 {
		return fmt.Errorf("llm timeout must be positive")
	}

	switch c.Storage.Type {
	case "local":
		if c.Storage.LocalPath == "" {
			return fmt.Errorf("storage local_path is required for local storage")
		}
	case "s3":
		if c.Storage.S3Bucket == "" {
			return fmt.Errorf("storage s3_bucket is required for s3 storage")
		}
	default:
		return fmt.Errorf("unknown storage type %q", c.Storage.Type)
	}

	if c.Queue.RedisAddr != "" && c.Queue.Concurrency <= 0 {
		return fmt.Errorf("queue concurrency must be positive")
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// LLMTimeout returns the upstream call timeout
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// ExportTimeout returns the rasterization timeout
func (c *Config) ExportTimeout() time.Duration {
	return time.Duration(c.Export.TimeoutSeconds) * time.Second
}

// QueueEnabled reports whether exports run through the async queue
func (c *Config) QueueEnabled() bool {
	return c.Queue.RedisAddr != ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
