package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHNSW(t *testing.T, dims int) *HNSWIndex {
	t.Helper()
	idx, err := NewHNSWIndex(DefaultVectorIndexConfig(dims))
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestHNSWAddAndSearch(t *testing.T) {
	idx := newTestHNSW(t, 3)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx,
		[]string{"a", "b", "c"},
		[][]float32{
			{1, 0, 0},
			{0, 1, 0},
			{0.9, 0.1, 0},
		}))

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "a", results[0].ChunkID)
	assert.InDelta(t, 1.0, float64(results[0].Score), 0.001)
	assert.Equal(t, "c", results[1].ChunkID)

	// Scores are cosine similarity, bounded by [-1, 1].
	for _, r := range results {
		assert.LessOrEqual(t, float64(r.Score), 1.001)
		assert.GreaterOrEqual(t, float64(r.Score), -1.001)
	}
}

func TestHNSWDimensionMismatch(t *testing.T) {
	idx := newTestHNSW(t, 3)
	ctx := context.Background()

	err := idx.Add(ctx, []string{"a"}, [][]float32{{1, 0}})
	var dimErr ErrDimensionMismatch
	require.True(t, errors.As(err, &dimErr))
	assert.Equal(t, 3, dimErr.Expected)
	assert.Equal(t, 2, dimErr.Got)

	_, err = idx.Search(ctx, []float32{1, 0}, 5)
	require.True(t, errors.As(err, &dimErr))
}

func TestHNSWEmptyIndex(t *testing.T) {
	idx := newTestHNSW(t, 3)

	results, err := idx.Search(context.Background(), []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 0, idx.Count())
}

func TestHNSWLazyDelete(t *testing.T) {
	idx := newTestHNSW(t, 3)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx,
		[]string{"a", "b"},
		[][]float32{{1, 0, 0}, {0, 1, 0}}))
	require.NoError(t, idx.Delete(ctx, []string{"a"}))

	assert.False(t, idx.Contains("a"))
	assert.True(t, idx.Contains("b"))
	assert.Equal(t, 1, idx.Count())

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "a", r.ChunkID)
	}
}

func TestHNSWReplaceExisting(t *testing.T) {
	idx := newTestHNSW(t, 3)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, []string{"a"}, [][]float32{{1, 0, 0}}))
	require.NoError(t, idx.Add(ctx, []string{"a"}, [][]float32{{0, 0, 1}}))
	assert.Equal(t, 1, idx.Count())

	results, err := idx.Search(ctx, []float32{0, 0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ChunkID)
	assert.InDelta(t, 1.0, float64(results[0].Score), 0.001)
}

func TestHNSWSaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.hnsw")
	ctx := context.Background()

	idx := newTestHNSW(t, 3)
	require.NoError(t, idx.Add(ctx,
		[]string{"a", "b"},
		[][]float32{{1, 0, 0}, {0, 1, 0}}))
	require.NoError(t, idx.Save(path))

	dims, err := ReadIndexDimensions(path)
	require.NoError(t, err)
	assert.Equal(t, 3, dims)

	loaded, err := NewHNSWIndex(DefaultVectorIndexConfig(3))
	require.NoError(t, err)
	t.Cleanup(func() { _ = loaded.Close() })
	require.NoError(t, loaded.Load(path))

	assert.Equal(t, 2, loaded.Count())
	results, err := loaded.Search(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ChunkID)
}

func TestReadIndexDimensionsFreshStart(t *testing.T) {
	dims, err := ReadIndexDimensions(filepath.Join(t.TempDir(), "nope.hnsw"))
	require.NoError(t, err)
	assert.Equal(t, 0, dims)
}

func TestRebuildVectorIndexFromCorpus(t *testing.T) {
	s := newTestCorpus(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDocuments(ctx, []*Document{testDocument()}))
	require.NoError(t, s.SaveChunks(ctx, []*Chunk{
		testChunk("c1", []float32{1, 0, 0}),
		testChunk("c2", nil),
		testChunk("c3", []float32{0, 1, 0}),
	}))

	idx := newTestHNSW(t, 3)
	n, err := RebuildVectorIndex(ctx, idx, s)
	require.NoError(t, err)

	// Unembedded chunks never enter the index.
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, idx.Count())
	assert.True(t, idx.Contains("c1"))
	assert.False(t, idx.Contains("c2"))

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].ChunkID)
}

func TestRebuildVectorIndexEmptyCorpus(t *testing.T) {
	s := newTestCorpus(t)
	idx := newTestHNSW(t, 3)

	n, err := RebuildVectorIndex(context.Background(), idx, s)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, idx.Count())
}
