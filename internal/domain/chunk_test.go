package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentChunk_Source(t *testing.T) {
	assert.Equal(t, "handbook.pdf", DocumentChunk{Metadata: map[string]string{"source": "handbook.pdf"}}.Source())
	assert.Equal(t, "Unknown", DocumentChunk{Metadata: map[string]string{"author": "x"}}.Source())
	assert.Equal(t, "Unknown", DocumentChunk{}.Source())
}

func TestChunksFromParallel(t *testing.T) {
	chunks, err := ChunksFromParallel(
		[]string{"a", "b"},
		[]string{"text a", "text b"},
		[][]float32{{1, 0}, {0, 1}},
		[]map[string]string{{"source": "A"}, {"source": "B"}},
	)

	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "b", chunks[1].ID)
	assert.Equal(t, "text b", chunks[1].Text)
	assert.Equal(t, "B", chunks[1].Source())
}

func TestChunksFromParallel_LengthMismatch(t *testing.T) {
	_, err := ChunksFromParallel(
		[]string{"a", "b"},
		[]string{"text a"},
		[][]float32{{1, 0}, {0, 1}},
		[]map[string]string{{}, {}},
	)

	assert.True(t, errors.Is(err, ErrLengthMismatch))
}

func TestValidateDimensions(t *testing.T) {
	chunks := []DocumentChunk{
		{ID: "a", Embedding: []float32{1, 2, 3}},
		{ID: "b", Embedding: []float32{4, 5, 6}},
	}

	dims, err := ValidateDimensions(chunks, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, dims)

	_, err = ValidateDimensions(chunks, 4)
	assert.True(t, errors.Is(err, ErrDimensionMismatch))

	_, err = ValidateDimensions([]DocumentChunk{{ID: "c"}}, 3)
	assert.Error(t, err)
}
