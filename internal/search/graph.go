package search

import (
	"context"
	"strings"

	apperrors "github.com/AssetOverflow/BibleStudyAI/internal/errors"
	"github.com/AssetOverflow/BibleStudyAI/internal/store"
)

// GraphAdapter resolves query terms against the entity lexicon and walks
// the knowledge graph outward from any matching nodes. A query that names
// no known entity yields zero hits, which is not a fault.
type GraphAdapter struct {
	graph store.GraphStore
	depth int
}

// NewGraphAdapter creates a graph retrieval adapter. Depth bounds the
// traversal and must be between 1 and 3 hops.
func NewGraphAdapter(graph store.GraphStore, depth int) (*GraphAdapter, error) {
	if depth < 1 || depth > 3 {
		return nil, apperrors.New(apperrors.ErrCodeInvalidDepth,
			"graph depth must be between 1 and 3", nil)
	}
	return &GraphAdapter{graph: graph, depth: depth}, nil
}

func (a *GraphAdapter) Origin() Origin {
	return OriginGraph
}

// Search matches query terms against node names and traverses from the
// matches. Scores are edge weight damped by hop distance, accumulated per
// chunk, sorted descending.
func (a *GraphAdapter) Search(ctx context.Context, req *Request, limit int) ([]*RetrievalHit, error) {
	terms := queryTerms(req.Query)
	if len(terms) == 0 {
		return nil, apperrors.New(apperrors.ErrCodeQueryEmpty, "query is empty", nil)
	}

	nodes, err := a.graph.FindNodesByName(ctx, terms)
	if err != nil {
		return nil, apperrors.AdapterUnavailable(string(OriginGraph), err)
	}
	if len(nodes) == 0 {
		return []*RetrievalHit{}, nil
	}

	startIDs := make([]string, len(nodes))
	for i, n := range nodes {
		startIDs[i] = n.ID
	}

	graphHits, err := a.graph.Traverse(ctx, startIDs, a.depth, limit)
	if err != nil {
		return nil, apperrors.AdapterUnavailable(string(OriginGraph), err)
	}

	hits := make([]*RetrievalHit, 0, len(graphHits))
	for _, h := range graphHits {
		hits = append(hits, &RetrievalHit{
			ChunkID: h.ChunkID,
			Score:   h.Score,
			Origin:  OriginGraph,
			Path:    h.Path,
		})
	}
	return hits, nil
}

// queryTerms splits the query into candidate entity terms. Punctuation is
// stripped so "Daniel?" still matches the node "Daniel".
func queryTerms(query string) []string {
	fields := strings.FieldsFunc(query, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			return false
		case r >= '0' && r <= '9':
			return false
		}
		return true
	})

	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			terms = append(terms, f)
		}
	}
	return terms
}
