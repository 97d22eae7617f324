package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"
)

// StaticEmbedder generates embeddings using a hash-based approach.
// Works without external dependencies (no network, no model download).
// Deterministic and fast, with reduced semantic quality; intended for
// tests and offline setups.
type StaticEmbedder struct {
	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*StaticEmbedder)(nil)

// englishStopWords filters high-frequency words that carry no topical
// signal, including the archaic forms common in older translations.
var englishStopWords = map[string]bool{
	"the": true, "and": true, "of": true, "to": true, "that": true,
	"in": true, "he": true, "shall": true, "unto": true, "for": true,
	"his": true, "a": true, "they": true, "be": true, "is": true,
	"him": true, "not": true, "them": true, "it": true, "with": true,
	"all": true, "thou": true, "thy": true, "was": true, "which": true,
	"ye": true, "thee": true, "their": true, "have": true, "will": true,
}

// Weights for vector generation
const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

// tokenRegex matches alphanumeric sequences
var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

// NewStaticEmbedder creates a new static embedder.
func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{}
}

// Embed generates an embedding for a single text.
func (e *StaticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, StaticDimensions), nil
	}

	return normalizeVector(e.generateVector(trimmed)), nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		results[i] = vec
	}
	return results, nil
}

// generateVector creates a hash-based vector from text. Tokens carry
// most of the weight; character trigrams add partial-match signal so
// related word forms land near each other.
func (e *StaticEmbedder) generateVector(text string) []float32 {
	vector := make([]float32, StaticDimensions)

	for _, token := range tokenize(text) {
		if englishStopWords[token] {
			continue
		}
		vector[hashToIndex(token, StaticDimensions)] += tokenWeight
	}

	lowered := strings.ToLower(text)
	for _, ngram := range extractNgrams(lowered, ngramSize) {
		vector[hashToIndex(ngram, StaticDimensions)] += ngramWeight
	}

	return vector
}

// tokenize splits text into lowercase alphanumeric tokens.
func tokenize(text string) []string {
	words := tokenRegex.FindAllString(strings.ToLower(text), -1)
	return words
}

// extractNgrams extracts character n-grams from text.
func extractNgrams(text string, n int) []string {
	runes := []rune(text)
	if len(runes) < n {
		return nil
	}
	ngrams := make([]string, 0, len(runes)-n+1)
	for i := 0; i <= len(runes)-n; i++ {
		ngrams = append(ngrams, string(runes[i:i+n]))
	}
	return ngrams
}

// hashToIndex maps a string to a vector index via FNV-1a.
func hashToIndex(s string, dims int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() % uint32(dims))
}

// Dimensions returns the embedding dimension.
func (e *StaticEmbedder) Dimensions() int {
	return StaticDimensions
}

// ModelName returns the model identifier.
func (e *StaticEmbedder) ModelName() string {
	return "static-fnv"
}

// Available always reports true; the static embedder has no dependencies.
func (e *StaticEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close releases resources.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
