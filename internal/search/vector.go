package search

import (
	"context"
	"errors"
	"strings"

	"github.com/AssetOverflow/BibleStudyAI/internal/embed"
	apperrors "github.com/AssetOverflow/BibleStudyAI/internal/errors"
	"github.com/AssetOverflow/BibleStudyAI/internal/store"
)

// labelOversample widens the index query when a label filter is active so
// that post-filtering still fills the requested limit.
const labelOversample = 4

// VectorAdapter embeds the query text and runs nearest-neighbor search.
// Raw scores are cosine similarity in [-1,1]; chunks without an embedding
// are never in the index and so never returned.
type VectorAdapter struct {
	embedder embed.Embedder
	index    store.VectorIndex
	corpus   store.CorpusStore
}

// NewVectorAdapter creates a vector retrieval adapter. The corpus store is
// used only to resolve label filters.
func NewVectorAdapter(embedder embed.Embedder, index store.VectorIndex, corpus store.CorpusStore) *VectorAdapter {
	return &VectorAdapter{embedder: embedder, index: index, corpus: corpus}
}

func (a *VectorAdapter) Origin() Origin {
	return OriginVector
}

// Search embeds the query and retrieves the nearest chunks. An embedding
// dimension mismatch is a configuration defect and is surfaced as a fatal
// error, never as a degraded-mode fault.
func (a *VectorAdapter) Search(ctx context.Context, req *Request, limit int) ([]*RetrievalHit, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, apperrors.New(apperrors.ErrCodeQueryEmpty, "query is empty", nil)
	}

	vec, err := a.embedder.Embed(ctx, query)
	if err != nil {
		return nil, apperrors.AdapterUnavailable(string(OriginVector), err)
	}

	var allowed map[string]struct{}
	k := limit
	if req.LabelFilter != "" {
		allowed, err = a.corpus.ChunkIDsByLabel(ctx, req.LabelFilter)
		if err != nil {
			return nil, apperrors.AdapterUnavailable(string(OriginVector), err)
		}
		if len(allowed) == 0 {
			return []*RetrievalHit{}, nil
		}
		k = limit * labelOversample
	}

	results, err := a.index.Search(ctx, vec, k)
	if err != nil {
		var dim store.ErrDimensionMismatch
		if errors.As(err, &dim) {
			return nil, apperrors.DimensionMismatch(dim.Expected, dim.Got)
		}
		return nil, apperrors.AdapterUnavailable(string(OriginVector), err)
	}

	hits := make([]*RetrievalHit, 0, limit)
	for _, r := range results {
		if allowed != nil {
			if _, ok := allowed[r.ChunkID]; !ok {
				continue
			}
		}
		hits = append(hits, &RetrievalHit{
			ChunkID: r.ChunkID,
			Score:   float64(r.Score),
			Origin:  OriginVector,
		})
		if len(hits) == limit {
			break
		}
	}
	return hits, nil
}
