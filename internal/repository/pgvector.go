package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/cloo-solutions/ragent/internal/domain"
)

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PgVectorIndex is a VectorIndex stored in PostgreSQL with pgvector. Several
// processes may share one collection.
type PgVectorIndex struct {
	db         dbtx
	collection string

	mu         sync.Mutex
	dimensions int
}

func NewPgVectorIndex(pool *pgxpool.Pool, collection string) *PgVectorIndex {
	return newPgVectorIndex(pool, collection)
}

func newPgVectorIndex(db dbtx, collection string) *PgVectorIndex {
	if collection == "" {
		collection = DefaultCollection
	}
	return &PgVectorIndex{db: db, collection: collection}
}

// Upsert inserts or replaces chunks by ID. Each batch of 100 rows is sent in
// one round trip; the whole call runs in a single transaction.
func (r *PgVectorIndex) Upsert(ctx context.Context, chunks []domain.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	expected, err := r.storedDimensions(ctx)
	if err != nil {
		return err
	}
	dims, err := domain.ValidateDimensions(chunks, expected)
	if err != nil {
		return err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	for start := 0; start < len(chunks); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		batch := &pgx.Batch{}
		for _, c := range chunks[start:end] {
			metadata := c.Metadata
			if metadata == nil {
				metadata = map[string]string{}
			}
			batch.Queue(
				`INSERT INTO document_chunks (collection, id, content, metadata, embedding, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6)
				 ON CONFLICT (collection, id) DO UPDATE
				 SET content = EXCLUDED.content,
				     metadata = EXCLUDED.metadata,
				     embedding = EXCLUDED.embedding`,
				r.collection,
				c.ID,
				c.Text,
				metadata,
				pgvector.NewVector(c.Embedding),
				now,
			)
		}

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to upsert chunks: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	r.dimensions = dims
	return nil
}

// Query returns up to topK chunks ordered by ascending cosine distance.
// Order among equal distances is whatever the planner produces.
func (r *PgVectorIndex) Query(ctx context.Context, embedding []float32, topK int) ([]domain.ScoredChunk, error) {
	if topK <= 0 {
		return nil, nil
	}

	dims, err := r.knownDimensions(ctx)
	if err != nil {
		return nil, err
	}
	if dims > 0 && len(embedding) != dims {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", domain.ErrDimensionMismatch, len(embedding), dims)
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, content, metadata, 1 - (embedding <=> $1) AS similarity
		 FROM document_chunks
		 WHERE collection = $2
		 ORDER BY embedding <=> $1
		 LIMIT $3`,
		pgvector.NewVector(embedding),
		r.collection,
		topK,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []domain.ScoredChunk
	for rows.Next() {
		var hit domain.ScoredChunk
		var similarity float64
		if err := rows.Scan(&hit.Chunk.ID, &hit.Chunk.Text, &hit.Chunk.Metadata, &similarity); err != nil {
			return nil, err
		}
		hit.Score = float32(similarity)
		hits = append(hits, hit)
	}

	return hits, rows.Err()
}

// Count returns the number of chunks in the collection.
func (r *PgVectorIndex) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM document_chunks WHERE collection = $1`,
		r.collection,
	).Scan(&count)
	return count, err
}

// Has reports whether a chunk with the given ID is stored in the collection.
func (r *PgVectorIndex) Has(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM document_chunks WHERE collection = $1 AND id = $2)`,
		r.collection,
		id,
	).Scan(&exists)
	return exists, err
}

// Delete removes chunks by ID. Unknown IDs are ignored.
func (r *PgVectorIndex) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx,
		`DELETE FROM document_chunks WHERE collection = $1 AND id = ANY($2)`,
		r.collection,
		ids,
	)
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// knownDimensions reads the cached dimension under r.mu and falls back to
// the database without holding the lock.
func (r *PgVectorIndex) knownDimensions(ctx context.Context) (int, error) {
	r.mu.Lock()
	dims := r.dimensions
	r.mu.Unlock()
	if dims > 0 {
		return dims, nil
	}

	dims, err := r.queryDimensions(ctx)
	if err != nil || dims == 0 {
		return dims, err
	}

	r.mu.Lock()
	if r.dimensions == 0 {
		r.dimensions = dims
	}
	dims = r.dimensions
	r.mu.Unlock()
	return dims, nil
}

// storedDimensions returns the dimension already used by the collection, or
// 0 when it is empty. Callers hold r.mu.
func (r *PgVectorIndex) storedDimensions(ctx context.Context) (int, error) {
	if r.dimensions > 0 {
		return r.dimensions, nil
	}

	dims, err := r.queryDimensions(ctx)
	if err != nil {
		return 0, err
	}
	r.dimensions = dims
	return dims, nil
}

func (r *PgVectorIndex) queryDimensions(ctx context.Context) (int, error) {
	var dims int
	err := r.db.QueryRow(ctx,
		`SELECT vector_dims(embedding) FROM document_chunks WHERE collection = $1 LIMIT 1`,
		r.collection,
	).Scan(&dims)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return dims, nil
}
