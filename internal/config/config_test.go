package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.InDelta(t, 0.3, cfg.Search.LexicalWeight, 0.001)
	assert.InDelta(t, 0.5, cfg.Search.VectorWeight, 0.001)
	assert.InDelta(t, 0.2, cfg.Search.GraphWeight, 0.001)
	assert.Equal(t, 10, cfg.Search.MaxResults)
	assert.Equal(t, 2, cfg.Search.GraphDepth)
	assert.Equal(t, 1536, cfg.Embeddings.Dimensions)
	assert.Equal(t, 24*time.Hour, cfg.Sessions.TTL)

	require.NoError(t, cfg.Validate())
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "biblestudyai.yaml")
	content := `
search:
  lexical_weight: 0.4
  vector_weight: 0.4
  graph_weight: 0.2
  max_results: 20
embeddings:
  model: mxbai-embed-large
  dimensions: 1024
sessions:
  ttl: 1h
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.InDelta(t, 0.4, cfg.Search.LexicalWeight, 0.001)
	assert.Equal(t, 20, cfg.Search.MaxResults)
	assert.Equal(t, "mxbai-embed-large", cfg.Embeddings.Model)
	assert.Equal(t, 1024, cfg.Embeddings.Dimensions)
	assert.Equal(t, time.Hour, cfg.Sessions.TTL)

	// Unspecified values keep defaults.
	assert.Equal(t, 2, cfg.Search.GraphDepth)
	assert.Equal(t, "ollama", cfg.Embeddings.Provider)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BIBLESTUDYAI_LEXICAL_WEIGHT", "0.5")
	t.Setenv("BIBLESTUDYAI_VECTOR_WEIGHT", "0.3")
	t.Setenv("BIBLESTUDYAI_GRAPH_WEIGHT", "0.2")
	t.Setenv("BIBLESTUDYAI_OLLAMA_HOST", "http://gpu-box:11434")
	t.Setenv("BIBLESTUDYAI_PORT", "9090")

	cfg := NewConfig()
	cfg.applyEnvOverrides()

	assert.InDelta(t, 0.5, cfg.Search.LexicalWeight, 0.001)
	assert.InDelta(t, 0.3, cfg.Search.VectorWeight, 0.001)
	assert.Equal(t, "http://gpu-box:11434", cfg.Embeddings.OllamaHost)
	assert.Equal(t, "http://gpu-box:11434", cfg.LLM.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	require.NoError(t, cfg.Validate())
}

func TestEnvOverridesIgnoreInvalid(t *testing.T) {
	t.Setenv("BIBLESTUDYAI_LEXICAL_WEIGHT", "2.0")
	t.Setenv("BIBLESTUDYAI_PORT", "not-a-port")

	cfg := NewConfig()
	cfg.applyEnvOverrides()

	assert.InDelta(t, 0.3, cfg.Search.LexicalWeight, 0.001)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "weights must sum to one",
			mutate:  func(c *Config) { c.Search.LexicalWeight = 0.9 },
			wantErr: "sum to 1.0",
		},
		{
			name:    "negative weight",
			mutate:  func(c *Config) { c.Search.VectorWeight = -0.1 },
			wantErr: "between 0 and 1",
		},
		{
			name:    "max results too large",
			mutate:  func(c *Config) { c.Search.MaxResults = 500 },
			wantErr: "max_results",
		},
		{
			name:    "graph depth out of range",
			mutate:  func(c *Config) { c.Search.GraphDepth = 4 },
			wantErr: "graph_depth",
		},
		{
			name:    "zero dimensions",
			mutate:  func(c *Config) { c.Embeddings.Dimensions = 0 },
			wantErr: "dimensions",
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Embeddings.Provider = "openai" },
			wantErr: "provider",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Server.LogLevel = "verbose" },
			wantErr: "log_level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestResolvePath(t *testing.T) {
	cfg := NewConfig()
	cfg.Paths.DataDir = "/data/bsai"

	assert.Equal(t, "/data/bsai/corpus.db", cfg.CorpusDBPath())
	assert.Equal(t, "/data/bsai/lexical.bleve", cfg.LexicalIndexPath())
	assert.Equal(t, "/abs/vectors.hnsw", cfg.ResolvePath("/abs/vectors.hnsw"))
}

func TestWriteAndReloadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "biblestudyai.yaml")

	cfg := NewConfig()
	cfg.Search.MaxResults = 25
	cfg.Embeddings.Model = "custom-embed"
	require.NoError(t, cfg.WriteYAML(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 25, loaded.Search.MaxResults)
	assert.Equal(t, "custom-embed", loaded.Embeddings.Model)
}
