package llm

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

// Ollama defaults
const (
	DefaultHost  = "http://localhost:11434"
	DefaultModel = "llama3.1"

	connectTimeout = 5 * time.Second
)

// Config configures the Ollama completion client.
type Config struct {
	// Host is the Ollama API endpoint (default: http://localhost:11434)
	Host string

	// Model is the completion model to use (default: llama3.1)
	Model string

	// RequestsPerSecond rate-limits chat calls. 0 disables limiting.
	RequestsPerSecond float64

	// MaxFailures before the circuit opens (default: 5)
	MaxFailures int

	// ResetTimeout before an open circuit admits a probe (default: 30s)
	ResetTimeout time.Duration
}

// ollamaChatRequest is the /api/chat request body.
type ollamaChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

// ollamaChatResponse is the /api/chat response body.
type ollamaChatResponse struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
}

// OllamaClient implements Client against Ollama's chat API. A circuit
// breaker sheds load when the model is down so queries degrade fast
// instead of queueing behind timeouts.
type OllamaClient struct {
	config  Config
	client  *http.Client
	limiter *rate.Limiter
	breaker *apperrors.CircuitBreaker

	mu     sync.RWMutex
	closed bool
}

var _ Client = (*OllamaClient)(nil)

// NewOllamaClient creates a new Ollama completion client.
func NewOllamaClient(cfg Config) *OllamaClient {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}

	c := &OllamaClient{
		config: cfg,
		// No static client timeout; synthesis deadlines arrive via context.
		client: &http.Client{},
		breaker: apperrors.NewCircuitBreaker("llm",
			apperrors.WithMaxFailures(cfg.MaxFailures),
			apperrors.WithResetTimeout(cfg.ResetTimeout)),
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c
}

// Chat sends the messages and returns the model's reply.
func (c *OllamaClient) Chat(ctx context.Context, messages []Message) (string, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return "", fmt.Errorf("client is closed")
	}
	c.mu.RUnlock()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	var reply string
	err := c.breaker.Execute(func() error {
		var callErr error
		reply, callErr = c.doChat(ctx, messages)
		return callErr
	})
	if err == apperrors.ErrCircuitOpen {
		return "", apperrors.New(apperrors.ErrCodeModelUnavailable,
			fmt.Sprintf("model %s circuit open after repeated failures", c.config.Model), err).
			WithSuggestion("check that Ollama is running and the model is loaded")
	}
	if err != nil {
		return "", err
	}
	return reply, nil
}

func (c *OllamaClient) doChat(ctx context.Context, messages []Message) (string, error) {
	body, err := json.Marshal(ollamaChatRequest{
		Model:    c.config.Model,
		Messages: messages,
		Stream:   false,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling Ollama: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("Ollama returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	return strings.TrimSpace(chatResp.Message.Content), nil
}

// ModelName returns the model identifier.
func (c *OllamaClient) ModelName() string {
	return c.config.Model
}

// Available checks whether Ollama lists the configured model.
func (c *OllamaClient) Available(ctx context.Context) bool {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return false
	}
	c.mu.RUnlock()

	checkCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, c.config.Host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return false
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false
	}

	want := strings.ToLower(c.config.Model)
	wantBase := strings.Split(want, ":")[0]
	for _, m := range result.Models {
		name := strings.ToLower(m.Name)
		if name == want || strings.Split(name, ":")[0] == wantBase {
			return true
		}
	}
	return false
}

// Close releases resources.
func (c *OllamaClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.client.CloseIdleConnections()
	return nil
}
