package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/cloo-solutions/ragent/internal/domain"
)

// Fixed evidence strings handed to synthesis in place of search results.
const (
	NoResultsMessage        = "No relevant info found in knowledge base."
	EmbeddingFailedMessage  = "Error generating embeddings."
	IndexQueryFailedMessage = "Error searching knowledge base."
)

const (
	DefaultTopK = 3

	// ChunkIDSchemeSequence numbers documents from the current index count.
	ChunkIDSchemeSequence = "sequence"
	// ChunkIDSchemeUUID gives every document a random key; safe across processes.
	ChunkIDSchemeUUID = "uuid"
)

// VectorIndex stores embedded chunks and answers nearest-neighbour queries
// by cosine similarity. Upsert replaces chunks with an existing ID.
type VectorIndex interface {
	Upsert(ctx context.Context, chunks []domain.DocumentChunk) error
	Query(ctx context.Context, embedding []float32, topK int) ([]domain.ScoredChunk, error)
	Count(ctx context.Context) (int, error)
	Has(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, ids ...string) error
}

// Upserter is the write half of VectorIndex.
type Upserter interface {
	Upsert(ctx context.Context, chunks []domain.DocumentChunk) error
}

// UpsertParallel accepts the four parallel sequences most vector stores take
// and forwards them as chunks. All four must have the same length.
func UpsertParallel(ctx context.Context, idx Upserter, ids, texts []string, embeddings [][]float32, metadatas []map[string]string) error {
	chunks, err := domain.ChunksFromParallel(ids, texts, embeddings, metadatas)
	if err != nil {
		return err
	}
	return idx.Upsert(ctx, chunks)
}

// DocumentArchive keeps a copy of every ingested source document.
type DocumentArchive interface {
	PutDocument(ctx context.Context, key, text string, metadata map[string]string) error
}

// Embedder is the embedding capability the tools depend on.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// RetrievalConfig tunes ingest and search.
type RetrievalConfig struct {
	Chunk         ChunkConfig
	TopK          int
	ChunkIDScheme string
}

// IngestResult summarizes one ingest call.
type IngestResult struct {
	Documents     int
	ChunksIndexed int
	ChunksSkipped int
	ChunkIDs      []string
}

// RetrievalTool chunks, embeds and indexes documents, and formats search hits
// as evidence text.
type RetrievalTool struct {
	embedder Embedder
	index    VectorIndex
	archive  DocumentArchive
	cfg      RetrievalConfig

	// key allocation and upsert must not interleave across ingests in this process
	mu sync.Mutex
}

// NewRetrievalTool creates a RetrievalTool. archive may be nil.
func NewRetrievalTool(embedder Embedder, index VectorIndex, archive DocumentArchive, cfg RetrievalConfig) *RetrievalTool {
	if cfg.Chunk.Size <= 0 {
		cfg.Chunk = DefaultChunkConfig()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.ChunkIDScheme == "" {
		cfg.ChunkIDScheme = ChunkIDSchemeSequence
	}
	return &RetrievalTool{
		embedder: embedder,
		index:    index,
		archive:  archive,
		cfg:      cfg,
	}
}

// Ingest chunks every document, embeds the chunks one at a time and upserts
// those that embedded successfully. Chunks whose embedding failed are
// skipped. Only documents that kept at least one chunk are given a key and
// archived. If nothing could be embedded the index is left untouched and
// domain.ErrNothingIndexed is returned.
func (t *RetrievalTool) Ingest(ctx context.Context, documents []string, metadatas []map[string]string) (IngestResult, error) {
	if len(documents) == 0 {
		return IngestResult{}, domain.ErrNoDocuments
	}
	if len(metadatas) != len(documents) {
		return IngestResult{}, fmt.Errorf("%w: %d documents, %d metadata entries", domain.ErrLengthMismatch, len(documents), len(metadatas))
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	seq, err := t.index.Count(ctx)
	if err != nil {
		return IngestResult{}, fmt.Errorf("%w: %w", domain.ErrIndexUnavailable, err)
	}

	result := IngestResult{Documents: len(documents)}
	var batch embeddedBatch
	for i, doc := range documents {
		texts, embeddings, skipped, err := t.embedDocument(ctx, i, doc)
		if err != nil {
			return IngestResult{}, err
		}
		result.ChunksSkipped += skipped
		if len(texts) == 0 {
			continue
		}

		var docKey string
		docKey, seq, err = t.documentKey(ctx, seq)
		if err != nil {
			return IngestResult{}, err
		}
		t.archiveDocument(ctx, docKey, doc, metadatas[i])
		batch.add(docKey, texts, embeddings, metadatas[i])
	}

	if len(batch.ids) == 0 {
		return result, domain.ErrNothingIndexed
	}
	if err := t.upsert(ctx, batch); err != nil {
		return IngestResult{}, err
	}

	result.ChunksIndexed = len(batch.ids)
	result.ChunkIDs = batch.ids
	log.Printf("indexed %d chunks from %d documents (%d skipped)", result.ChunksIndexed, result.Documents, result.ChunksSkipped)
	return result, nil
}

// Replace indexes document under a caller-chosen key, overwriting the chunks
// stored for that key and deleting any left over from a longer earlier
// version. Replacing a key Ingest handed out restores that document in place.
// When nothing embeds, the existing chunks stay.
func (t *RetrievalTool) Replace(ctx context.Context, key, document string, metadata map[string]string) (IngestResult, error) {
	if strings.TrimSpace(key) == "" {
		return IngestResult{}, fmt.Errorf("%w: %q", domain.ErrInvalidDocumentKey, key)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	result := IngestResult{Documents: 1}
	texts, embeddings, skipped, err := t.embedDocument(ctx, 0, document)
	if err != nil {
		return IngestResult{}, err
	}
	result.ChunksSkipped = skipped
	if len(texts) == 0 {
		return result, domain.ErrNothingIndexed
	}

	t.archiveDocument(ctx, key, document, metadata)

	var batch embeddedBatch
	batch.add(key, texts, embeddings, metadata)
	if err := t.upsert(ctx, batch); err != nil {
		return IngestResult{}, err
	}

	var stale []string
	for n := len(texts); ; n++ {
		id := chunkID(key, n)
		exists, err := t.index.Has(ctx, id)
		if err != nil {
			return IngestResult{}, fmt.Errorf("%w: %w", domain.ErrIndexUnavailable, err)
		}
		if !exists {
			break
		}
		stale = append(stale, id)
	}
	if len(stale) > 0 {
		if err := t.index.Delete(ctx, stale...); err != nil {
			return IngestResult{}, fmt.Errorf("%w: %w", domain.ErrIndexUnavailable, err)
		}
	}

	result.ChunksIndexed = len(batch.ids)
	result.ChunkIDs = batch.ids
	log.Printf("replaced %s with %d chunks (%d stale removed, %d skipped)", key, result.ChunksIndexed, len(stale), result.ChunksSkipped)
	return result, nil
}

// embedDocument chunks one document and embeds each chunk. Failed chunks are
// counted and dropped; dimension mismatches and cancellation abort.
func (t *RetrievalTool) embedDocument(ctx context.Context, docIndex int, doc string) ([]string, [][]float32, int, error) {
	var (
		texts      []string
		embeddings [][]float32
		skipped    int
	)
	for n, text := range ChunkText(doc, t.cfg.Chunk.Size, t.cfg.Chunk.Overlap) {
		embedding, err := t.embedder.Embed(ctx, text)
		if err != nil {
			if errors.Is(err, domain.ErrDimensionMismatch) {
				return nil, nil, 0, err
			}
			if ctx.Err() != nil {
				return nil, nil, 0, ctx.Err()
			}
			log.Printf("skipping chunk %d of document %d: %v", n, docIndex, err)
			skipped++
			continue
		}
		texts = append(texts, text)
		embeddings = append(embeddings, embedding)
	}
	return texts, embeddings, skipped, nil
}

func (t *RetrievalTool) upsert(ctx context.Context, b embeddedBatch) error {
	if err := UpsertParallel(ctx, t.index, b.ids, b.texts, b.embeddings, b.metadatas); err != nil {
		if errors.Is(err, domain.ErrDimensionMismatch) {
			return err
		}
		return fmt.Errorf("%w: %w", domain.ErrIndexUnavailable, err)
	}
	return nil
}

// embeddedBatch holds chunks as the parallel slices UpsertParallel takes.
type embeddedBatch struct {
	ids        []string
	texts      []string
	embeddings [][]float32
	metadatas  []map[string]string
}

// add numbers the document's stored chunks contiguously from zero.
func (b *embeddedBatch) add(docKey string, texts []string, embeddings [][]float32, metadata map[string]string) {
	for n := range texts {
		b.ids = append(b.ids, chunkID(docKey, n))
		b.texts = append(b.texts, texts[n])
		b.embeddings = append(b.embeddings, embeddings[n])
		b.metadatas = append(b.metadatas, copyMetadata(metadata))
	}
}

// Search embeds the query and formats the topK nearest chunks as numbered
// evidence blocks. An empty result is not an error: it yields NoResultsMessage.
// topK <= 0 uses the configured default.
func (t *RetrievalTool) Search(ctx context.Context, query string, topK int) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", domain.ErrEmptyQuery
	}
	if topK <= 0 {
		topK = t.cfg.TopK
	}

	embedding, err := t.embedder.Embed(ctx, query)
	if err != nil {
		return "", err
	}

	hits, err := t.index.Query(ctx, embedding, topK)
	if err != nil {
		if errors.Is(err, domain.ErrDimensionMismatch) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", domain.ErrIndexUnavailable, err)
	}

	return FormatSearchResults(hits), nil
}

// FormatSearchResults renders hits in rank order as
// "[Result i] (Source: s):\n<text>" blocks separated by a blank line.
func FormatSearchResults(hits []domain.ScoredChunk) string {
	if len(hits) == 0 {
		return NoResultsMessage
	}

	blocks := make([]string, len(hits))
	for i, hit := range hits {
		blocks[i] = fmt.Sprintf("[Result %d] (Source: %s):\n%s", i+1, hit.Chunk.Source(), hit.Chunk.Text)
	}
	return strings.Join(blocks, "\n\n")
}

const sequenceKeyPrefix = "doc_"

func chunkID(docKey string, n int) string {
	return fmt.Sprintf("%s_chunk_%d", docKey, n)
}

// documentKey returns the key for the next document and the sequence number
// to continue from. Sequence keys whose first chunk is already stored are
// passed over, so a count lowered by deletes never hands out a used key.
func (t *RetrievalTool) documentKey(ctx context.Context, seq int) (string, int, error) {
	if t.cfg.ChunkIDScheme == ChunkIDSchemeUUID {
		return sequenceKeyPrefix + uuid.NewString(), seq, nil
	}
	for {
		key := fmt.Sprintf("%s%d", sequenceKeyPrefix, seq)
		seq++
		used, err := t.index.Has(ctx, chunkID(key, 0))
		if err != nil {
			return "", seq, fmt.Errorf("%w: %w", domain.ErrIndexUnavailable, err)
		}
		if !used {
			return key, seq, nil
		}
	}
}

func (t *RetrievalTool) archiveDocument(ctx context.Context, key, text string, metadata map[string]string) {
	if t.archive == nil {
		return
	}
	if err := t.archive.PutDocument(ctx, key, text, metadata); err != nil {
		log.Printf("failed to archive document %s: %v", key, err)
	}
}

func copyMetadata(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
