package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/AssetOverflow/BibleStudyAI/internal/errors"
)

// Ollama API constants
const (
	// DefaultOllamaHost is the default Ollama API endpoint
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOllamaModel is the default embedding model
	DefaultOllamaModel = "nomic-embed-text"

	// ollamaPoolSize for the HTTP connection pool
	ollamaPoolSize = 4
)

// OllamaConfig configures the Ollama embedder
type OllamaConfig struct {
	// Host is the Ollama API endpoint (default: http://localhost:11434)
	Host string

	// Model is the embedding model to use
	Model string

	// Dimensions can be set to override auto-detection (0 = auto-detect)
	Dimensions int

	// BatchSize for batch embedding requests (default: 32)
	BatchSize int

	// Timeout for API requests (default: 30s)
	Timeout time.Duration

	// MaxRetries for transient failures (default: 3)
	MaxRetries int

	// RequestsPerSecond rate-limits API calls. 0 disables limiting.
	RequestsPerSecond float64

	// SkipHealthCheck skips the initial Ollama availability check (for testing)
	SkipHealthCheck bool
}

// ollamaEmbedRequest is the /api/embed request body.
type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"` // string or []string
}

// ollamaEmbedResponse is the /api/embed response body.
type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// ollamaModelListResponse is the /api/tags response body.
type ollamaModelListResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// OllamaEmbedder generates embeddings using Ollama's HTTP API.
type OllamaEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    OllamaConfig
	limiter   *rate.Limiter
	dims      int

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder creates a new Ollama embedder.
func NewOllamaEmbedder(ctx context.Context, cfg OllamaConfig) (*OllamaEmbedder, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	transport := &http.Transport{
		MaxIdleConns:        ollamaPoolSize,
		MaxIdleConnsPerHost: ollamaPoolSize,
		MaxConnsPerHost:     ollamaPoolSize * 2,
		IdleConnTimeout:     30 * time.Second,
	}

	// Timeouts are applied per-request via context so callers keep
	// control; no static client timeout.
	e := &OllamaEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		dims:      cfg.Dimensions,
	}
	if cfg.RequestsPerSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()

		if err := e.checkModel(checkCtx); err != nil {
			transport.CloseIdleConnections()
			return nil, apperrors.New(apperrors.ErrCodeModelUnavailable,
				fmt.Sprintf("embedding model %s not reachable at %s", cfg.Model, cfg.Host), err).
				WithSuggestion(fmt.Sprintf("run 'ollama pull %s' and ensure Ollama is running", cfg.Model))
		}

		if e.dims == 0 {
			dims, err := e.detectDimensions(checkCtx)
			if err != nil {
				transport.CloseIdleConnections()
				return nil, apperrors.New(apperrors.ErrCodeEmbeddingFailed,
					"failed to detect embedding dimensions", err)
			}
			e.dims = dims
		}
	}

	return e, nil
}

// checkModel verifies the configured model is present in Ollama.
func (e *OllamaEmbedder) checkModel(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Host+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to Ollama: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result ollamaModelListResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	want := strings.ToLower(e.config.Model)
	wantBase := strings.Split(want, ":")[0]
	for _, m := range result.Models {
		name := strings.ToLower(m.Name)
		if name == want || strings.Split(name, ":")[0] == wantBase {
			return nil
		}
	}
	return fmt.Errorf("model %s not found", e.config.Model)
}

// detectDimensions auto-detects embedding dimensions from a test embedding.
func (e *OllamaEmbedder) detectDimensions(ctx context.Context) (int, error) {
	embeddings, err := e.doEmbed(ctx, []string{"dimension detection"})
	if err != nil {
		return 0, err
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return 0, fmt.Errorf("empty embedding returned")
	}
	return len(embeddings[0]), nil
}

// Embed generates an embedding for a single text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.checkClosed(); err != nil {
		return nil, err
	}

	if strings.TrimSpace(text) == "" {
		return make([]float32, e.dims), nil
	}

	embeddings, err := e.doEmbedWithRetry(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, apperrors.New(apperrors.ErrCodeEmbeddingFailed, "no embedding returned", nil)
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts using Ollama's
// batch API. Empty texts map to zero vectors without an API call.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.checkClosed(); err != nil {
		return nil, err
	}

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	type indexedText struct {
		idx  int
		text string
	}
	var nonEmpty []indexedText
	results := make([][]float32, len(texts))

	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			results[i] = make([]float32, e.dims)
		} else {
			nonEmpty = append(nonEmpty, indexedText{i, text})
		}
	}

	for start := 0; start < len(nonEmpty); start += e.config.BatchSize {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		end := start + e.config.BatchSize
		if end > len(nonEmpty) {
			end = len(nonEmpty)
		}

		batch := nonEmpty[start:end]
		batchTexts := make([]string, len(batch))
		for i, it := range batch {
			batchTexts[i] = it.text
		}

		embeddings, err := e.doEmbedWithRetry(ctx, batchTexts)
		if err != nil {
			return nil, err
		}
		if len(embeddings) != len(batch) {
			return nil, apperrors.New(apperrors.ErrCodeEmbeddingFailed,
				fmt.Sprintf("expected %d embeddings, got %d", len(batch), len(embeddings)), nil)
		}

		for i, emb := range embeddings {
			results[batch[i].idx] = emb
		}
	}

	return results, nil
}

// doEmbedWithRetry calls the embed API with exponential backoff.
func (e *OllamaEmbedder) doEmbedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	retryCfg := apperrors.DefaultRetryConfig()
	retryCfg.MaxRetries = e.config.MaxRetries

	embeddings, err := apperrors.RetryWithResult(ctx, retryCfg, func() ([][]float32, error) {
		reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
		return e.doEmbed(reqCtx, texts)
	})
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeEmbeddingFailed, "embedding request failed", err)
	}
	return embeddings, nil
}

// doEmbed performs a single embed API call.
func (e *OllamaEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var input any
	if len(texts) == 1 {
		input = texts[0]
	} else {
		input = texts
	}

	body, err := json.Marshal(ollamaEmbedRequest{Model: e.config.Model, Input: input})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return result.Embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *OllamaEmbedder) Dimensions() int {
	return e.dims
}

// ModelName returns the model identifier.
func (e *OllamaEmbedder) ModelName() string {
	return e.config.Model
}

// Available checks whether Ollama is reachable and the model present.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	if e.checkClosed() != nil {
		return false
	}
	checkCtx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()
	return e.checkModel(checkCtx) == nil
}

// Close releases HTTP resources.
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}

func (e *OllamaEmbedder) checkClosed() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return fmt.Errorf("embedder is closed")
	}
	return nil
}
