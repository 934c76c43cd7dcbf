package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/cloo-solutions/ragent/internal/domain"
)

const (
	// DefaultCollection is the collection name used when none is configured.
	DefaultCollection = "knowledge_base"

	upsertBatchSize = 100

	dimensionsMarkerID  = "dimensions"
	dimensionsMetaKey   = "dimensions"
	markerCollectionFmt = "%s__meta"
)

var errPrecomputedOnly = errors.New("collection only accepts precomputed embeddings")

// ChromemIndex is a VectorIndex backed by an embedded chromem-go database.
// With a path the collection is persisted to disk; without one it lives in memory.
type ChromemIndex struct {
	collection *chromem.Collection
	// meta holds one marker document recording the embedding dimension,
	// so a reopened collection enforces it before any new upsert.
	meta *chromem.Collection

	mu         sync.Mutex
	dimensions int
}

// NewChromemIndex opens (or creates) the named cosine collection.
func NewChromemIndex(path, collection string, compress bool) (*ChromemIndex, error) {
	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(path, compress)
		if err != nil {
			return nil, fmt.Errorf("failed to open chromem db at %s: %w", path, err)
		}
	}

	if collection == "" {
		collection = DefaultCollection
	}

	c, err := db.GetOrCreateCollection(collection, map[string]string{"hnsw:space": "cosine"}, rejectEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %s: %w", collection, err)
	}

	meta, err := db.GetOrCreateCollection(fmt.Sprintf(markerCollectionFmt, collection), nil, rejectEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %s: %w", collection, err)
	}

	idx := &ChromemIndex{collection: c, meta: meta}
	idx.dimensions, err = idx.loadDimensions(context.Background())
	if err != nil {
		return nil, err
	}
	return idx, nil
}

func (i *ChromemIndex) loadDimensions(ctx context.Context) (int, error) {
	if i.meta.Count() == 0 {
		return 0, nil
	}
	doc, err := i.meta.GetByID(ctx, dimensionsMarkerID)
	if err != nil {
		return 0, nil
	}
	dims, err := strconv.Atoi(doc.Metadata[dimensionsMetaKey])
	if err != nil {
		return 0, fmt.Errorf("invalid dimension marker %q: %w", doc.Metadata[dimensionsMetaKey], err)
	}
	return dims, nil
}

func (i *ChromemIndex) storeDimensions(ctx context.Context, dims int) error {
	return i.meta.AddDocument(ctx, chromem.Document{
		ID:        dimensionsMarkerID,
		Content:   dimensionsMarkerID,
		Metadata:  map[string]string{dimensionsMetaKey: strconv.Itoa(dims)},
		Embedding: []float32{1},
	})
}

func rejectEmbedding(context.Context, string) ([]float32, error) {
	return nil, errPrecomputedOnly
}

// Upsert inserts or replaces chunks by ID in batches.
func (i *ChromemIndex) Upsert(ctx context.Context, chunks []domain.DocumentChunk) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	dims, err := domain.ValidateDimensions(chunks, i.dimensions)
	if err != nil {
		return err
	}

	for start := 0; start < len(chunks); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		docs := make([]chromem.Document, 0, end-start)
		for _, c := range chunks[start:end] {
			// chromem normalizes in place
			embedding := make([]float32, len(c.Embedding))
			copy(embedding, c.Embedding)
			docs = append(docs, chromem.Document{
				ID:        c.ID,
				Content:   c.Text,
				Metadata:  c.Metadata,
				Embedding: embedding,
			})
		}

		if err := i.collection.AddDocuments(ctx, docs, 1); err != nil {
			return fmt.Errorf("failed to upsert chunks: %w", err)
		}
	}

	if i.dimensions != dims {
		if err := i.storeDimensions(ctx, dims); err != nil {
			return fmt.Errorf("failed to record embedding dimension: %w", err)
		}
		i.dimensions = dims
	}
	return nil
}

// Query returns up to topK chunks ordered by descending cosine similarity.
// Order among equal scores is not defined.
func (i *ChromemIndex) Query(ctx context.Context, embedding []float32, topK int) ([]domain.ScoredChunk, error) {
	i.mu.Lock()
	dims := i.dimensions
	i.mu.Unlock()

	if dims > 0 && len(embedding) != dims {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", domain.ErrDimensionMismatch, len(embedding), dims)
	}

	n := i.collection.Count()
	if topK > n {
		topK = n
	}
	if topK <= 0 {
		return nil, nil
	}

	query := make([]float32, len(embedding))
	copy(query, embedding)

	results, err := i.collection.QueryEmbedding(ctx, query, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}

	hits := make([]domain.ScoredChunk, len(results))
	for k, r := range results {
		hits[k] = domain.ScoredChunk{
			Chunk: domain.DocumentChunk{
				ID:       r.ID,
				Text:     r.Content,
				Metadata: r.Metadata,
			},
			Score: r.Similarity,
		}
	}
	return hits, nil
}

// Count returns the number of stored chunks.
func (i *ChromemIndex) Count(ctx context.Context) (int, error) {
	return i.collection.Count(), nil
}

// Has reports whether a chunk with the given ID is stored.
func (i *ChromemIndex) Has(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	// chromem reports a missing ID only as an untyped error
	_, err := i.collection.GetByID(ctx, id)
	return err == nil, nil
}

// Delete removes chunks by ID. Unknown IDs are ignored.
func (i *ChromemIndex) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := i.collection.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}
