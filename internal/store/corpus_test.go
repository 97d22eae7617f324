package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCorpus(t *testing.T) *SQLiteCorpus {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "corpus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLiteCorpus(db)
}

func testDocument() *Document {
	return &Document{
		ID:          "kjv-daniel",
		Translation: "KJV",
		Testament:   "old",
		Book:        "Daniel",
		BookOrder:   27,
		Text:        "In the third year of the reign of Jehoiakim...",
		Metadata:    map[string]string{"source": "test"},
	}
}

func testChunk(id string, embedding []float32) *Chunk {
	return &Chunk{
		ID:          id,
		DocumentID:  "kjv-daniel",
		Translation: "KJV",
		Book:        "Daniel",
		Chapter:     1,
		VerseStart:  1,
		VerseEnd:    2,
		Content:     "In the third year of the reign of Jehoiakim king of Judah",
		Embedding:   embedding,
		Ordinal:     1,
		TokenCount:  12,
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	s := newTestCorpus(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDocuments(ctx, []*Document{testDocument()}))

	got, err := s.GetDocument(ctx, "kjv-daniel")
	require.NoError(t, err)
	assert.Equal(t, "Daniel", got.Book)
	assert.Equal(t, 27, got.BookOrder)
	assert.Equal(t, map[string]string{"source": "test"}, got.Metadata)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestChunkRoundTrip(t *testing.T) {
	s := newTestCorpus(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDocuments(ctx, []*Document{testDocument()}))

	embedding := []float32{0.1, -0.5, 0.25}
	require.NoError(t, s.SaveChunks(ctx, []*Chunk{
		testChunk("c1", embedding),
		testChunk("c2", nil),
	}))

	got, err := s.GetChunk(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, embedding, got.Embedding)
	assert.Equal(t, "KJV Daniel 1:1-2", got.Reference())

	noEmb, err := s.GetChunk(ctx, "c2")
	require.NoError(t, err)
	assert.Nil(t, noEmb.Embedding)

	n, err := s.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestGetChunksPreservesRequestOrder(t *testing.T) {
	s := newTestCorpus(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDocuments(ctx, []*Document{testDocument()}))
	require.NoError(t, s.SaveChunks(ctx, []*Chunk{
		testChunk("a", nil), testChunk("b", nil), testChunk("c", nil),
	}))

	got, err := s.GetChunks(ctx, []string{"c", "missing", "a"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "a", got[1].ID)
}

func TestEmbeddedChunksSkipsUnembedded(t *testing.T) {
	s := newTestCorpus(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDocuments(ctx, []*Document{testDocument()}))
	require.NoError(t, s.SaveChunks(ctx, []*Chunk{
		testChunk("c1", []float32{1, 2}),
		testChunk("c2", nil),
		testChunk("c3", []float32{3, 4}),
	}))

	var seen []string
	require.NoError(t, s.EmbeddedChunks(ctx, func(c *Chunk) error {
		seen = append(seen, c.ID)
		return nil
	}))
	assert.ElementsMatch(t, []string{"c1", "c3"}, seen)
}

func TestChunkLabels(t *testing.T) {
	s := newTestCorpus(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDocuments(ctx, []*Document{testDocument()}))
	require.NoError(t, s.SaveChunks(ctx, []*Chunk{testChunk("c1", nil), testChunk("c2", nil)}))

	require.NoError(t, s.SetChunkLabels(ctx, "c1", []string{"prophecy", "exile"}))
	require.NoError(t, s.SetChunkLabels(ctx, "c2", []string{"prophecy"}))

	ids, err := s.ChunkIDsByLabel(ctx, "prophecy")
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	// Replacing labels drops the old set.
	require.NoError(t, s.SetChunkLabels(ctx, "c1", []string{"covenant"}))
	ids, err = s.ChunkIDsByLabel(ctx, "prophecy")
	require.NoError(t, err)
	assert.Len(t, ids, 1)
	_, ok := ids["c2"]
	assert.True(t, ok)
}

func TestStateRoundTrip(t *testing.T) {
	s := newTestCorpus(t)
	ctx := context.Background()

	v, err := s.GetState(ctx, StateKeyIndexDimension)
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetState(ctx, StateKeyIndexDimension, "1536"))
	require.NoError(t, s.SetState(ctx, StateKeyIndexDimension, "1024")) // upsert

	v, err = s.GetState(ctx, StateKeyIndexDimension)
	require.NoError(t, err)
	assert.Equal(t, "1024", v)
}

func TestEmbeddingBlobCodec(t *testing.T) {
	vec := []float32{0, 1.5, -2.25, 3.14159}
	decoded, err := DecodeEmbedding(EncodeEmbedding(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, decoded)

	_, err = DecodeEmbedding([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestChunkReferenceSingleVerse(t *testing.T) {
	c := testChunk("c1", nil)
	c.VerseEnd = c.VerseStart
	assert.Equal(t, "KJV Daniel 1:1", c.Reference())
}
