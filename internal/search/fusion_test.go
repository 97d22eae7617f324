package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lexHit(id string, score float64) *RetrievalHit {
	return &RetrievalHit{ChunkID: id, Score: score, Origin: OriginLexical}
}

func vecHit(id string, score float64) *RetrievalHit {
	return &RetrievalHit{ChunkID: id, Score: score, Origin: OriginVector}
}

func graphHit(id string, score float64) *RetrievalHit {
	return &RetrievalHit{ChunkID: id, Score: score, Origin: OriginGraph}
}

func TestFuseEmptyInputs(t *testing.T) {
	f := NewFusion(DefaultWeights())

	results := f.Fuse(nil, nil, nil, 10)

	require.NotNil(t, results)
	assert.Empty(t, results)
}

func TestFuseNormalizationBounds(t *testing.T) {
	f := NewFusion(DefaultWeights())

	lexical := []*RetrievalHit{lexHit("a", 12.5), lexHit("b", 3.1), lexHit("c", 0.4)}
	vector := []*RetrievalHit{vecHit("a", 0.91), vecHit("d", -0.2)}
	graph := []*RetrievalHit{graphHit("b", 1.6), graphHit("e", 0.25)}

	results := f.Fuse(lexical, vector, graph, 10)

	for _, r := range results {
		assert.GreaterOrEqual(t, r.Lexical, 0.0)
		assert.LessOrEqual(t, r.Lexical, 1.0)
		assert.GreaterOrEqual(t, r.Vector, 0.0)
		assert.LessOrEqual(t, r.Vector, 1.0)
		assert.GreaterOrEqual(t, r.Graph, 0.0)
		assert.LessOrEqual(t, r.Graph, 1.0)
		assert.GreaterOrEqual(t, r.Combined, 0.0)
		assert.LessOrEqual(t, r.Combined, 1.0)
	}
}

func TestFuseSingleHitNormalizesToOne(t *testing.T) {
	f := NewFusion(DefaultWeights())

	results := f.Fuse([]*RetrievalHit{lexHit("only", 0.001)}, nil, nil, 10)

	require.Len(t, results, 1)
	assert.Equal(t, 1.0, results[0].Lexical)
}

func TestFuseAllEqualBatchNormalizesToOne(t *testing.T) {
	f := NewFusion(DefaultWeights())

	lexical := []*RetrievalHit{lexHit("a", 2.0), lexHit("b", 2.0), lexHit("c", 2.0)}
	results := f.Fuse(lexical, nil, nil, 10)

	require.Len(t, results, 3)
	for _, r := range results {
		assert.Equal(t, 1.0, r.Lexical)
	}
}

func TestFuseDedupAcrossOrigins(t *testing.T) {
	f := NewFusion(DefaultWeights())

	lexical := []*RetrievalHit{lexHit("shared", 5.0), lexHit("lex-only", 3.0)}
	vector := []*RetrievalHit{vecHit("shared", 0.8), vecHit("vec-only", 0.5)}
	graph := []*RetrievalHit{graphHit("shared", 1.0)}

	results := f.Fuse(lexical, vector, graph, 10)

	seen := make(map[string]int)
	for _, r := range results {
		seen[r.ChunkID]++
	}
	for id, count := range seen {
		assert.Equal(t, 1, count, "chunk %s appears %d times", id, count)
	}
	assert.Len(t, results, 4)
}

func TestFuseMultiOriginChunkRanksFirst(t *testing.T) {
	// "who is Daniel": C1 in both vector and lexical must outrank the
	// lexical-only C2.
	f := NewFusion(DefaultWeights())

	vector := []*RetrievalHit{vecHit("C1", 0.9)}
	lexical := []*RetrievalHit{lexHit("C1", 5.0), lexHit("C2", 3.0)}

	results := f.Fuse(lexical, vector, nil, 10)

	require.Len(t, results, 2)
	assert.Equal(t, "C1", results[0].ChunkID)
	assert.Equal(t, "C2", results[1].ChunkID)
	assert.Greater(t, results[0].Combined, results[1].Combined)
}

func TestFuseDeterministicOrdering(t *testing.T) {
	f := NewFusion(DefaultWeights())

	lexical := []*RetrievalHit{lexHit("a", 4.0), lexHit("b", 4.0), lexHit("c", 2.0)}
	vector := []*RetrievalHit{vecHit("c", 0.7), vecHit("d", 0.7)}
	graph := []*RetrievalHit{graphHit("b", 1.0), graphHit("d", 1.0)}

	first := f.Fuse(lexical, vector, graph, 10)
	for i := 0; i < 20; i++ {
		again := f.Fuse(lexical, vector, graph, 10)
		require.Len(t, again, len(first))
		for j := range first {
			assert.Equal(t, first[j].ChunkID, again[j].ChunkID)
			assert.Equal(t, first[j].Combined, again[j].Combined)
		}
	}
}

func TestFuseTieBreakVectorThenLexicalThenID(t *testing.T) {
	// Weights chosen so two chunks land on the same combined score with
	// different component mixes.
	f := NewFusion(Weights{Lexical: 0.5, Vector: 0.5, Graph: 0.0})

	// Both normalize to combined 0.5: "vec" from its vector component,
	// "lex" from its lexical component. Higher vector wins.
	lexical := []*RetrievalHit{lexHit("lex", 8.0), lexHit("floor", 1.0)}
	vector := []*RetrievalHit{vecHit("vec", 1.0), vecHit("sink", -1.0)}

	results := f.Fuse(lexical, vector, nil, 10)

	require.Len(t, results, 4)
	assert.Equal(t, "vec", results[0].ChunkID)
	assert.Equal(t, "lex", results[1].ChunkID)
}

func TestFuseTieBreakChunkIDAscending(t *testing.T) {
	f := NewFusion(DefaultWeights())

	// Identical component scores; only the id differs.
	lexical := []*RetrievalHit{lexHit("zzz", 3.0), lexHit("aaa", 3.0)}

	results := f.Fuse(lexical, nil, nil, 10)

	require.Len(t, results, 2)
	assert.Equal(t, "aaa", results[0].ChunkID)
	assert.Equal(t, "zzz", results[1].ChunkID)
}

func TestFuseTruncatesToK(t *testing.T) {
	f := NewFusion(DefaultWeights())

	lexical := []*RetrievalHit{
		lexHit("a", 5.0), lexHit("b", 4.0), lexHit("c", 3.0),
		lexHit("d", 2.0), lexHit("e", 1.0),
	}

	results := f.Fuse(lexical, nil, nil, 2)

	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ChunkID)
	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, 2, results[1].Rank)
}

func TestFuseMissingOriginContributesZero(t *testing.T) {
	f := NewFusion(Weights{Lexical: 0.3, Vector: 0.5, Graph: 0.2})

	results := f.Fuse([]*RetrievalHit{lexHit("solo", 7.0)}, nil, nil, 10)

	require.Len(t, results, 1)
	r := results[0]
	assert.Equal(t, 1.0, r.Lexical)
	assert.Equal(t, 0.0, r.Vector)
	assert.Equal(t, 0.0, r.Graph)
	assert.InDelta(t, 0.3, r.Combined, 1e-9)
}

func TestFusePreservesOriginExtras(t *testing.T) {
	f := NewFusion(DefaultWeights())

	lexical := []*RetrievalHit{{
		ChunkID: "a", Score: 2.0, Origin: OriginLexical,
		MatchedTerms: []string{"daniel", "babylon"},
	}}
	graph := []*RetrievalHit{{
		ChunkID: "a", Score: 1.0, Origin: OriginGraph,
		Path: []string{"Daniel", "Babylon"},
	}}

	results := f.Fuse(lexical, nil, graph, 10)

	require.Len(t, results, 1)
	assert.Equal(t, []string{"daniel", "babylon"}, results[0].MatchedTerms)
	assert.Equal(t, []string{"Daniel", "Babylon"}, results[0].Path)
}

func TestRescaleSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, rescaleSimilarity(1.0))
	assert.Equal(t, 0.5, rescaleSimilarity(0.0))
	assert.Equal(t, 0.0, rescaleSimilarity(-1.0))
	// Float rounding can push cosine slightly outside [-1,1].
	assert.Equal(t, 1.0, rescaleSimilarity(1.0000002))
	assert.Equal(t, 0.0, rescaleSimilarity(-1.0000002))
}
