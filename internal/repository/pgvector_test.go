//go:build integration

package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/ragent/internal/domain"
	"github.com/cloo-solutions/ragent/internal/testutil"
)

func TestPgVectorIndex_UpsertQueryCount(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc)
	defer pool.Close()

	idx := NewPgVectorIndex(pool, "kb")

	require.NoError(t, idx.Upsert(ctx, []domain.DocumentChunk{
		chunk("doc_0_chunk_0", "about cats", "A", 1, 0, 0),
		chunk("doc_0_chunk_1", "about dogs", "B", 0, 1, 0),
		chunk("doc_1_chunk_0", "about birds", "C", 0, 0, 1),
	}))

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	hits, err := idx.Query(ctx, []float32{0.9, 0.1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "doc_0_chunk_0", hits[0].Chunk.ID)
	assert.Equal(t, "A", hits[0].Chunk.Source())
	assert.Equal(t, "doc_0_chunk_1", hits[1].Chunk.ID)
	assert.Greater(t, hits[0].Score, hits[1].Score)

	// replace by id
	require.NoError(t, idx.Upsert(ctx, []domain.DocumentChunk{chunk("doc_0_chunk_0", "about lions", "A2", 1, 0, 0)}))
	count, _ = idx.Count(ctx)
	assert.Equal(t, 3, count)

	hits, err = idx.Query(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, "about lions", hits[0].Chunk.Text)
	assert.Equal(t, "A2", hits[0].Chunk.Source())

	// collections are isolated
	other := NewPgVectorIndex(pool, "other")
	count, _ = other.Count(ctx)
	assert.Equal(t, 0, count)
}

func TestPgVectorIndex_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc)
	defer pool.Close()

	idx := NewPgVectorIndex(pool, "kb")
	require.NoError(t, idx.Upsert(ctx, []domain.DocumentChunk{chunk("a", "x", "A", 1, 0)}))

	// a fresh handle learns the dimension from stored rows
	fresh := NewPgVectorIndex(pool, "kb")
	err := fresh.Upsert(ctx, []domain.DocumentChunk{chunk("b", "y", "B", 1, 0, 0)})
	assert.True(t, errors.Is(err, domain.ErrDimensionMismatch))

	_, err = fresh.Query(ctx, []float32{1, 0, 0}, 1)
	assert.True(t, errors.Is(err, domain.ErrDimensionMismatch))
}

func TestPgVectorIndex_EmptyCollection(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc)
	defer pool.Close()

	hits, err := NewPgVectorIndex(pool, "empty").Query(ctx, []float32{1, 0}, 3)

	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestPgVectorIndex_HasAndDelete(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc)
	defer pool.Close()

	idx := NewPgVectorIndex(pool, "kb")
	require.NoError(t, idx.Upsert(ctx, []domain.DocumentChunk{
		chunk("file_a_chunk_0", "x", "A", 1, 0),
		chunk("file_a_chunk_1", "y", "A", 0, 1),
	}))

	has, err := idx.Has(ctx, "file_a_chunk_1")
	require.NoError(t, err)
	assert.True(t, has)

	// ids are scoped to the collection
	has, err = NewPgVectorIndex(pool, "other").Has(ctx, "file_a_chunk_1")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, idx.Delete(ctx, "file_a_chunk_1", "missing"))

	has, _ = idx.Has(ctx, "file_a_chunk_1")
	assert.False(t, has)
	count, _ := idx.Count(ctx)
	assert.Equal(t, 1, count)
}
