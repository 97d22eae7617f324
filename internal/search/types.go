// Package search provides hybrid retrieval combining lexical, vector, and
// graph search. Results from the three origins are normalized and fused into
// a single deterministic ranking.
package search

import (
	"context"
)

// Origin tags which retrieval mechanism produced a hit.
type Origin string

const (
	OriginLexical Origin = "lexical"
	OriginVector  Origin = "vector"
	OriginGraph   Origin = "graph"
)

// RetrievalHit is a single adapter result. Raw score semantics depend on
// the origin: BM25 rank (non-negative, unbounded), cosine similarity
// (-1..1), or damped graph relevance.
type RetrievalHit struct {
	ChunkID string
	Score   float64
	Origin  Origin

	// Lexical-only: terms that matched, for highlighting.
	MatchedTerms []string

	// Graph-only: node names on the traversal path, for explanations.
	Path []string
}

// FusedResult is one entry of the merged ranking. Component scores are the
// normalized per-origin contributions, kept for explainability.
type FusedResult struct {
	ChunkID  string
	Combined float64 // weighted sum, 0-1
	Lexical  float64 // normalized lexical component, 0 if absent
	Vector   float64 // normalized vector component, 0 if absent
	Graph    float64 // normalized graph component, 0 if absent
	Rank     int     // 1-indexed position in the fused ordering

	MatchedTerms []string
	Path         []string

	// Display snapshot, hydrated from the corpus after fusion so
	// downstream stages need not re-fetch.
	Content       string
	Reference     string
	DocumentTitle string
}

// Weights control the fused score contribution per origin. They should sum
// to 1.0; Fuse does not renormalize them.
type Weights struct {
	Lexical float64
	Vector  float64
	Graph   float64
}

// DefaultWeights favors the vector origin, which carries most of the
// semantic signal for natural-language questions.
func DefaultWeights() Weights {
	return Weights{Lexical: 0.3, Vector: 0.5, Graph: 0.2}
}

// Request is one retrieval query.
type Request struct {
	Query string

	// TopK bounds the fused output. Zero means the configured default.
	TopK int

	// LabelFilter restricts vector search to chunks carrying the label.
	// Empty means no restriction.
	LabelFilter string

	// Weights override the configured fusion weights when non-nil.
	Weights *Weights
}

// Adapter is one retrieval origin. Implementations must distinguish "no
// matches" (empty slice, nil error) from "backing store failed" (error).
type Adapter interface {
	Origin() Origin
	Search(ctx context.Context, req *Request, limit int) ([]*RetrievalHit, error)
}
