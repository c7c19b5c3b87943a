package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/odit-bit/rcaccelerator/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := LoadAndValidate(ServerFlags())
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8000", cfg.Server.Address)
	assert.Equal(t, "ollama", cfg.Models.Generative.Driver)
	assert.Equal(t, 2*time.Minute, cfg.Models.Generative.Timeout)
	assert.Equal(t, uint(3), cfg.Models.Generative.MaxRetry)
	assert.Equal(t, 5*time.Minute, cfg.Models.ListCacheTTL)
	assert.Equal(t, 30*time.Second, cfg.Models.ListTimeout)
	assert.Equal(t, 24*time.Hour, cfg.History.TTL)

	assert.Equal(t, float32(0.7), cfg.Defaults.Temperature)
	assert.Equal(t, 1024, cfg.Defaults.MaxTokens)
	assert.Equal(t, 0.8, cfg.Defaults.SimilarityThreshold)
	assert.Equal(t, 5, cfg.Defaults.RerankTopN)
	assert.True(t, cfg.Defaults.EnableRerank)
	assert.True(t, cfg.Defaults.KeepHistory)
	assert.Equal(t, profile.CILogs, cfg.Defaults.Profile)
}

func TestLoad_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rca.yaml")
	content := `
server:
  address: "127.0.0.1:9000"
models:
  generative:
    driver: openai
    endpoint: http://vllm:8000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("RCA_MODELS_GENERATIVE_API_KEY", "from-env")
	t.Setenv("RCA_DEFAULTS_RERANK_TOP_N", "7")

	flags := ServerFlags()
	require.NoError(t, flags.Parse([]string{
		"--config", path,
		"--addr", "127.0.0.1:9999",
		"--embed_driver", "genai",
	}))

	cfg, err := Load(flags)
	require.NoError(t, err)

	// flag beats file
	assert.Equal(t, "127.0.0.1:9999", cfg.Server.Address)
	// file beats defaults, untouched keys keep defaults
	assert.Equal(t, "openai", cfg.Models.Generative.Driver)
	assert.Equal(t, "http://vllm:8000", cfg.Models.Generative.Endpoint)
	assert.Equal(t, 2*time.Minute, cfg.Models.Generative.Timeout)
	// env
	assert.Equal(t, "from-env", cfg.Models.Generative.ApiKey)
	assert.Equal(t, 7, cfg.Defaults.RerankTopN)
	assert.Equal(t, "genai", cfg.Models.Embeddings.Driver)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"empty address", func(c *Config) { c.Server.Address = "" }, true},
		{"malformed address", func(c *Config) { c.Server.Address = "localhost" }, true},
		{"unknown generative driver", func(c *Config) { c.Models.Generative.Driver = "bedrock" }, true},
		{"genai cannot rerank", func(c *Config) { c.Models.Rerank.Driver = "genai" }, true},
		{"unknown database", func(c *Config) { c.Database.Driver = "mysql" }, true},
		{"pgvector without dsn", func(c *Config) { c.VectorDB.Backend = "pgvector" }, true},
		{"redis without url", func(c *Config) { c.History.Backend = "redis" }, true},
		{"temperature out of range", func(c *Config) { c.Defaults.Temperature = 2 }, true},
		{"max tokens out of range", func(c *Config) { c.Defaults.MaxTokens = 4096 }, true},
		{"zero concurrency", func(c *Config) { c.Tempest.Concurrency = 0 }, true},
		{"bad log format", func(c *Config) { c.Server.LogFormat = "xml" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(nil)
			require.NoError(t, err)
			tt.modify(cfg)
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}
