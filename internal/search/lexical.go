package search

import (
	"context"
	"strings"

	apperrors "github.com/AssetOverflow/BibleStudyAI/internal/errors"
	"github.com/AssetOverflow/BibleStudyAI/internal/store"
)

// LexicalAdapter wraps the BM25 index. Scores are the ranker's raw output,
// non-negative and unbounded; normalization is the fusion ranker's job.
type LexicalAdapter struct {
	index store.LexicalIndex
}

// NewLexicalAdapter creates a lexical retrieval adapter.
func NewLexicalAdapter(index store.LexicalIndex) *LexicalAdapter {
	return &LexicalAdapter{index: index}
}

func (a *LexicalAdapter) Origin() Origin {
	return OriginLexical
}

// Search runs keyword retrieval over the query text. Hits come back sorted
// by descending BM25 score.
func (a *LexicalAdapter) Search(ctx context.Context, req *Request, limit int) ([]*RetrievalHit, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, apperrors.New(apperrors.ErrCodeQueryEmpty, "query is empty", nil)
	}

	results, err := a.index.Search(ctx, query, limit)
	if err != nil {
		return nil, apperrors.AdapterUnavailable(string(OriginLexical), err)
	}

	hits := make([]*RetrievalHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, &RetrievalHit{
			ChunkID:      r.ChunkID,
			Score:        r.Score,
			Origin:       OriginLexical,
			MatchedTerms: r.MatchedTerms,
		})
	}
	return hits, nil
}
