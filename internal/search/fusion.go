package search

import (
	"sort"
)

// Fusion merges per-origin hit lists into one deduplicated ranking.
//
// Each origin's raw scores are normalized to [0,1] independently: vector
// similarity is rescaled from its native [-1,1], lexical and graph scores
// are min-max normalized over the batch. The combined score is the weighted
// sum of the three normalized components, with a missing origin
// contributing zero.
type Fusion struct {
	weights Weights
}

// NewFusion creates a fusion ranker with the given weights.
func NewFusion(weights Weights) *Fusion {
	return &Fusion{weights: weights}
}

// Fuse merges the three origin lists, deduplicates by chunk id, and returns
// at most k results ordered by combined score.
//
// Ordering is total and reproducible: combined score (desc), then vector
// component (desc), then lexical component (desc), then ChunkID (asc).
func (f *Fusion) Fuse(lexical, vector, graph []*RetrievalHit, k int) []*FusedResult {
	if len(lexical) == 0 && len(vector) == 0 && len(graph) == 0 {
		return []*FusedResult{}
	}

	w := f.weights

	capacity := len(lexical) + len(vector) + len(graph)
	scores := make(map[string]*FusedResult, capacity)

	for i, norm := range minMaxNormalize(lexical) {
		hit := lexical[i]
		r := f.getOrCreate(scores, hit.ChunkID)
		r.Lexical = norm
		r.MatchedTerms = hit.MatchedTerms
	}

	for _, hit := range vector {
		r := f.getOrCreate(scores, hit.ChunkID)
		r.Vector = rescaleSimilarity(hit.Score)
	}

	for i, norm := range minMaxNormalize(graph) {
		hit := graph[i]
		r := f.getOrCreate(scores, hit.ChunkID)
		r.Graph = norm
		r.Path = hit.Path
	}

	for _, r := range scores {
		r.Combined = w.Lexical*r.Lexical + w.Vector*r.Vector + w.Graph*r.Graph
	}

	results := f.toSortedSlice(scores)

	if k > 0 && len(results) > k {
		results = results[:k]
	}
	for i, r := range results {
		r.Rank = i + 1
	}

	return results
}

// getOrCreate returns the existing entry for id or inserts a new one.
func (f *Fusion) getOrCreate(m map[string]*FusedResult, id string) *FusedResult {
	if r, ok := m[id]; ok {
		return r
	}
	r := &FusedResult{ChunkID: id}
	m[id] = r
	return r
}

// toSortedSlice converts the dedup map to a slice in fused order.
func (f *Fusion) toSortedSlice(m map[string]*FusedResult) []*FusedResult {
	results := make([]*FusedResult, 0, len(m))
	for _, r := range m {
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		return f.compare(results[i], results[j])
	})

	return results
}

// compare reports whether a ranks before b.
//
// Priority:
//  1. Higher combined score
//  2. Higher vector component
//  3. Higher lexical component
//  4. Lexicographically smaller ChunkID
func (f *Fusion) compare(a, b *FusedResult) bool {
	if a.Combined != b.Combined {
		return a.Combined > b.Combined
	}
	if a.Vector != b.Vector {
		return a.Vector > b.Vector
	}
	if a.Lexical != b.Lexical {
		return a.Lexical > b.Lexical
	}
	return a.ChunkID < b.ChunkID
}

// minMaxNormalize maps the batch's raw scores onto [0,1]. The degenerate
// cases, a single hit or an all-equal batch, normalize to 1.0 so that a
// lone strong match is not zeroed out.
func minMaxNormalize(hits []*RetrievalHit) []float64 {
	norms := make([]float64, len(hits))
	if len(hits) == 0 {
		return norms
	}

	lo, hi := hits[0].Score, hits[0].Score
	for _, h := range hits[1:] {
		if h.Score < lo {
			lo = h.Score
		}
		if h.Score > hi {
			hi = h.Score
		}
	}

	if hi == lo {
		for i := range norms {
			norms[i] = 1.0
		}
		return norms
	}

	span := hi - lo
	for i, h := range hits {
		norms[i] = (h.Score - lo) / span
	}
	return norms
}

// rescaleSimilarity maps cosine similarity from [-1,1] onto [0,1],
// clamping values that drift outside the range from float rounding.
func rescaleSimilarity(s float64) float64 {
	v := (s + 1.0) / 2.0
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
