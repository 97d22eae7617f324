package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticEmbedderDeterministic(t *testing.T) {
	e := NewStaticEmbedder()
	ctx := context.Background()

	v1, err := e.Embed(ctx, "seventy weeks are determined")
	require.NoError(t, err)
	v2, err := e.Embed(ctx, "seventy weeks are determined")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Len(t, v1, StaticDimensions)
}

func TestStaticEmbedderUnitLength(t *testing.T) {
	e := NewStaticEmbedder()

	v, err := e.Embed(context.Background(), "let there be light")
	require.NoError(t, err)

	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, sumSquares, 0.001)
}

func TestStaticEmbedderEmptyText(t *testing.T) {
	e := NewStaticEmbedder()

	v, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, StaticDimensions), v)
}

func TestStaticEmbedderSimilarTextsCloser(t *testing.T) {
	e := NewStaticEmbedder()
	ctx := context.Background()

	a, err := e.Embed(ctx, "Daniel prayed three times a day")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "Daniel prayed every day")
	require.NoError(t, err)
	c, err := e.Embed(ctx, "the waters prevailed upon the earth")
	require.NoError(t, err)

	assert.Greater(t, dot(a, b), dot(a, c))
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func TestStaticEmbedderBatch(t *testing.T) {
	e := NewStaticEmbedder()

	vecs, err := e.EmbedBatch(context.Background(), []string{"alpha", "omega", ""})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.NotEqual(t, vecs[0], vecs[1])
	assert.Equal(t, make([]float32, StaticDimensions), vecs[2])
}

func TestStaticEmbedderClosed(t *testing.T) {
	e := NewStaticEmbedder()
	require.NoError(t, e.Close())

	assert.False(t, e.Available(context.Background()))
	_, err := e.Embed(context.Background(), "text")
	assert.Error(t, err)
}
