// Package config loads and validates BibleStudyAI configuration.
//
// Precedence, lowest to highest:
//  1. Built-in defaults (NewConfig)
//  2. Config file (biblestudyai.yaml in the data directory or an explicit path)
//  3. Environment variables (BIBLESTUDYAI_*)
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete BibleStudyAI configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	LLM        LLMConfig        `yaml:"llm" json:"llm"`
	Sessions   SessionsConfig   `yaml:"sessions" json:"sessions"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// PathsConfig configures on-disk locations for corpus and index data.
type PathsConfig struct {
	// DataDir is the root directory for all persistent state.
	// Defaults to ~/.biblestudyai
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// CorpusDB is the SQLite database holding documents, chunks,
	// graph nodes/edges, sessions, and messages. Relative paths are
	// resolved against DataDir.
	CorpusDB string `yaml:"corpus_db" json:"corpus_db"`

	// LexicalIndex is the bleve index directory.
	LexicalIndex string `yaml:"lexical_index" json:"lexical_index"`

	// VectorIndex is the HNSW snapshot file.
	VectorIndex string `yaml:"vector_index" json:"vector_index"`
}

// SearchConfig configures hybrid retrieval parameters.
// Fusion weights are configurable via the config file or env vars
// (BIBLESTUDYAI_LEXICAL_WEIGHT, BIBLESTUDYAI_VECTOR_WEIGHT,
// BIBLESTUDYAI_GRAPH_WEIGHT) and must sum to 1.0.
type SearchConfig struct {
	// LexicalWeight is the fusion weight for BM25 keyword matching.
	LexicalWeight float64 `yaml:"lexical_weight" json:"lexical_weight"`

	// VectorWeight is the fusion weight for dense similarity.
	VectorWeight float64 `yaml:"vector_weight" json:"vector_weight"`

	// GraphWeight is the fusion weight for knowledge-graph traversal.
	GraphWeight float64 `yaml:"graph_weight" json:"graph_weight"`

	// MaxResults is the fused result count K. Requests may ask for
	// less but never more than ResultCap.
	MaxResults int `yaml:"max_results" json:"max_results"`

	// GraphDepth bounds graph traversal (1-3 hops).
	GraphDepth int `yaml:"graph_depth" json:"graph_depth"`

	// AdapterTimeout bounds each retrieval origin independently, so a
	// slow origin degrades the answer instead of stalling it.
	AdapterTimeout time.Duration `yaml:"adapter_timeout" json:"adapter_timeout"`

	// QueryTimeout bounds the whole retrieval phase.
	QueryTimeout time.Duration `yaml:"query_timeout" json:"query_timeout"`
}

// ResultCap is the hard upper bound on requested result counts.
const ResultCap = 100

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	Provider   string `yaml:"provider" json:"provider"`
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`

	// OllamaHost is the Ollama API endpoint (default: http://localhost:11434).
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`

	// CacheSize is the LRU embedding cache capacity in entries.
	CacheSize int `yaml:"cache_size" json:"cache_size"`

	// RequestsPerSecond rate-limits calls to the provider. 0 disables.
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`

	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// LLMConfig configures the synthesis model.
type LLMConfig struct {
	Host  string `yaml:"host" json:"host"`
	Model string `yaml:"model" json:"model"`

	// SynthesisTimeout bounds a single answer-synthesis call. Evidence
	// gathered before the deadline is still reported on timeout.
	SynthesisTimeout time.Duration `yaml:"synthesis_timeout" json:"synthesis_timeout"`

	// RequestsPerSecond rate-limits completion calls. 0 disables.
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`

	// MaxContextTokens caps the token budget for evidence plus history.
	MaxContextTokens int `yaml:"max_context_tokens" json:"max_context_tokens"`
}

// SessionsConfig configures conversational session management.
type SessionsConfig struct {
	// TTL is the idle lifetime of a session. Sessions untouched for
	// longer are expired and no longer accept messages.
	TTL time.Duration `yaml:"ttl" json:"ttl"`

	// GCInterval is how often expired sessions are purged.
	GCInterval time.Duration `yaml:"gc_interval" json:"gc_interval"`

	// ContextWindow is the number of most recent messages included in
	// synthesis context.
	ContextWindow int `yaml:"context_window" json:"context_window"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Host            string        `yaml:"host" json:"host"`
	Port            int           `yaml:"port" json:"port"`
	LogLevel        string        `yaml:"log_level" json:"log_level"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			DataDir:      defaultDataDir(),
			CorpusDB:     "corpus.db",
			LexicalIndex: "lexical.bleve",
			VectorIndex:  "vectors.hnsw",
		},
		Search: SearchConfig{
			LexicalWeight:  0.3,
			VectorWeight:   0.5,
			GraphWeight:    0.2,
			MaxResults:     10,
			GraphDepth:     2,
			AdapterTimeout: 5 * time.Second,
			QueryTimeout:   15 * time.Second,
		},
		Embeddings: EmbeddingsConfig{
			Provider:          "ollama",
			Model:             "nomic-embed-text",
			Dimensions:        1536,
			OllamaHost:        "http://localhost:11434",
			CacheSize:         10000,
			RequestsPerSecond: 0,
			Timeout:           30 * time.Second,
		},
		LLM: LLMConfig{
			Host:             "http://localhost:11434",
			Model:            "llama3.1",
			SynthesisTimeout: 60 * time.Second,
			MaxContextTokens: 8192,
		},
		Sessions: SessionsConfig{
			TTL:           24 * time.Hour,
			GCInterval:    10 * time.Minute,
			ContextWindow: 10,
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			LogLevel:        "info",
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// defaultDataDir returns ~/.biblestudyai, falling back to the
// temp directory when the home directory cannot be resolved.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "biblestudyai")
	}
	return filepath.Join(home, ".biblestudyai")
}

// ConfigFileName is the default config file name inside the data dir.
const ConfigFileName = "biblestudyai.yaml"

// Load builds the effective configuration.
//
// path may be an explicit config file; when empty, the default file in
// the data directory is used if it exists. Missing files are fine and
// fall back to defaults.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		path = filepath.Join(cfg.Paths.DataDir, ConfigFileName)
		if _, err := os.Stat(path); err != nil {
			path = ""
		}
	}

	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Paths.DataDir != "" {
		c.Paths.DataDir = other.Paths.DataDir
	}
	if other.Paths.CorpusDB != "" {
		c.Paths.CorpusDB = other.Paths.CorpusDB
	}
	if other.Paths.LexicalIndex != "" {
		c.Paths.LexicalIndex = other.Paths.LexicalIndex
	}
	if other.Paths.VectorIndex != "" {
		c.Paths.VectorIndex = other.Paths.VectorIndex
	}

	// Fusion weights move as a set; a file that specifies any weight
	// must specify all three or the sum check will reject it.
	if other.Search.LexicalWeight != 0 || other.Search.VectorWeight != 0 || other.Search.GraphWeight != 0 {
		c.Search.LexicalWeight = other.Search.LexicalWeight
		c.Search.VectorWeight = other.Search.VectorWeight
		c.Search.GraphWeight = other.Search.GraphWeight
	}
	if other.Search.MaxResults != 0 {
		c.Search.MaxResults = other.Search.MaxResults
	}
	if other.Search.GraphDepth != 0 {
		c.Search.GraphDepth = other.Search.GraphDepth
	}
	if other.Search.AdapterTimeout != 0 {
		c.Search.AdapterTimeout = other.Search.AdapterTimeout
	}
	if other.Search.QueryTimeout != 0 {
		c.Search.QueryTimeout = other.Search.QueryTimeout
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}
	if other.Embeddings.RequestsPerSecond != 0 {
		c.Embeddings.RequestsPerSecond = other.Embeddings.RequestsPerSecond
	}
	if other.Embeddings.Timeout != 0 {
		c.Embeddings.Timeout = other.Embeddings.Timeout
	}

	if other.LLM.Host != "" {
		c.LLM.Host = other.LLM.Host
	}
	if other.LLM.Model != "" {
		c.LLM.Model = other.LLM.Model
	}
	if other.LLM.SynthesisTimeout != 0 {
		c.LLM.SynthesisTimeout = other.LLM.SynthesisTimeout
	}
	if other.LLM.RequestsPerSecond != 0 {
		c.LLM.RequestsPerSecond = other.LLM.RequestsPerSecond
	}
	if other.LLM.MaxContextTokens != 0 {
		c.LLM.MaxContextTokens = other.LLM.MaxContextTokens
	}

	if other.Sessions.TTL != 0 {
		c.Sessions.TTL = other.Sessions.TTL
	}
	if other.Sessions.GCInterval != 0 {
		c.Sessions.GCInterval = other.Sessions.GCInterval
	}
	if other.Sessions.ContextWindow != 0 {
		c.Sessions.ContextWindow = other.Sessions.ContextWindow
	}

	if other.Server.Host != "" {
		c.Server.Host = other.Server.Host
	}
	if other.Server.Port != 0 {
		c.Server.Port = other.Server.Port
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
	if other.Server.ShutdownTimeout != 0 {
		c.Server.ShutdownTimeout = other.Server.ShutdownTimeout
	}
}

// applyEnvOverrides applies BIBLESTUDYAI_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("BIBLESTUDYAI_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}

	if v := os.Getenv("BIBLESTUDYAI_LEXICAL_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.LexicalWeight = w
		}
	}
	if v := os.Getenv("BIBLESTUDYAI_VECTOR_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.VectorWeight = w
		}
	}
	if v := os.Getenv("BIBLESTUDYAI_GRAPH_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.GraphWeight = w
		}
	}
	if v := os.Getenv("BIBLESTUDYAI_GRAPH_DEPTH"); v != "" {
		if d, err := strconv.Atoi(v); err == nil && d > 0 {
			c.Search.GraphDepth = d
		}
	}

	if v := os.Getenv("BIBLESTUDYAI_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("BIBLESTUDYAI_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("BIBLESTUDYAI_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
		c.LLM.Host = v
	}
	if v := os.Getenv("BIBLESTUDYAI_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}

	if v := os.Getenv("BIBLESTUDYAI_SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Sessions.TTL = d
		}
	}

	if v := os.Getenv("BIBLESTUDYAI_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 && p < 65536 {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("BIBLESTUDYAI_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
}

// parseFloat64 parses a string to float64, used for config parsing.
func parseFloat64(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f)
	return f, err
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	for name, w := range map[string]float64{
		"lexical_weight": c.Search.LexicalWeight,
		"vector_weight":  c.Search.VectorWeight,
		"graph_weight":   c.Search.GraphWeight,
	} {
		if w < 0 || w > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %f", name, w)
		}
	}

	sum := c.Search.LexicalWeight + c.Search.VectorWeight + c.Search.GraphWeight
	if math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("fusion weights must sum to 1.0, got %.2f", sum)
	}

	if c.Search.MaxResults < 1 || c.Search.MaxResults > ResultCap {
		return fmt.Errorf("max_results must be between 1 and %d, got %d", ResultCap, c.Search.MaxResults)
	}
	if c.Search.GraphDepth < 1 || c.Search.GraphDepth > 3 {
		return fmt.Errorf("graph_depth must be between 1 and 3, got %d", c.Search.GraphDepth)
	}

	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}
	validProviders := map[string]bool{"ollama": true, "static": true}
	if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
		return fmt.Errorf("embeddings.provider must be 'ollama' or 'static', got %s", c.Embeddings.Provider)
	}

	if c.Sessions.TTL <= 0 {
		return fmt.Errorf("sessions.ttl must be positive, got %s", c.Sessions.TTL)
	}
	if c.Sessions.ContextWindow < 1 {
		return fmt.Errorf("sessions.context_window must be at least 1, got %d", c.Sessions.ContextWindow)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// ResolvePath resolves a possibly-relative path against the data directory.
func (c *Config) ResolvePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Paths.DataDir, p)
}

// CorpusDBPath returns the absolute path to the SQLite database.
func (c *Config) CorpusDBPath() string { return c.ResolvePath(c.Paths.CorpusDB) }

// LexicalIndexPath returns the absolute path to the bleve index.
func (c *Config) LexicalIndexPath() string { return c.ResolvePath(c.Paths.LexicalIndex) }

// VectorIndexPath returns the absolute path to the HNSW snapshot.
func (c *Config) VectorIndexPath() string { return c.ResolvePath(c.Paths.VectorIndex) }

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
