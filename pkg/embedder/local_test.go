package embedder

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalEmbedderDeterministic(t *testing.T) {
	e := NewLocalEmbedder(384)

	a, err := e.Embed(context.Background(), []string{"starbucks coffee receipt"})
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), []string{"starbucks coffee receipt"})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a[0], 384)
}

func TestLocalEmbedderNormalised(t *testing.T) {
	e := NewLocalEmbedder(64)

	vecs, err := e.Embed(context.Background(), []string{"invoice total 42.50 dollars"})
	require.NoError(t, err)

	var norm float64
	for _, x := range vecs[0] {
		norm += x * x
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)
}

func TestLocalEmbedderEmptyText(t *testing.T) {
	e := NewLocalEmbedder(16)

	vecs, err := e.Embed(context.Background(), []string{""})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	for _, x := range vecs[0] {
		assert.Zero(t, x)
	}
}

func TestLocalEmbedderDistinguishesTexts(t *testing.T) {
	e := NewLocalEmbedder(384)

	vecs, err := e.Embed(context.Background(), []string{
		"coffee receipt from starbucks",
		"annual contract renewal terms",
	})
	require.NoError(t, err)
	assert.NotEqual(t, vecs[0], vecs[1])
}

func TestLocalEmbedderBatch(t *testing.T) {
	e := NewLocalEmbedder(32)

	texts := []string{"one", "two", "three"}
	vecs, err := e.Embed(context.Background(), texts)
	require.NoError(t, err)
	assert.Len(t, vecs, len(texts))
}

func TestLocalEmbedderDefaultDimension(t *testing.T) {
	e := NewLocalEmbedder(0)
	assert.Equal(t, DefaultDimension, e.Dimension())
}
