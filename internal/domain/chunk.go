package domain

import "fmt"

// MetadataSourceKey is the metadata key used for source attribution.
const MetadataSourceKey = "source"

// DocumentChunk is the unit of embedding and retrieval.
type DocumentChunk struct {
	ID        string
	Text      string
	Metadata  map[string]string
	Embedding []float32
}

// Source returns the chunk's source attribution, or "Unknown".
func (c DocumentChunk) Source() string {
	if c.Metadata != nil {
		if src := c.Metadata[MetadataSourceKey]; src != "" {
			return src
		}
	}
	return "Unknown"
}

// ScoredChunk is a query hit; Score is cosine similarity (higher is closer).
type ScoredChunk struct {
	Chunk DocumentChunk
	Score float32
}

// ChunksFromParallel zips the parallel id/text/embedding/metadata slices
// accepted by vector stores into chunks. All four must have equal length.
func ChunksFromParallel(ids, texts []string, embeddings [][]float32, metadatas []map[string]string) ([]DocumentChunk, error) {
	n := len(ids)
	if len(texts) != n || len(embeddings) != n || len(metadatas) != n {
		return nil, fmt.Errorf("%w: ids=%d texts=%d embeddings=%d metadatas=%d",
			ErrLengthMismatch, n, len(texts), len(embeddings), len(metadatas))
	}

	chunks := make([]DocumentChunk, n)
	for i := range ids {
		chunks[i] = DocumentChunk{
			ID:        ids[i],
			Text:      texts[i],
			Metadata:  metadatas[i],
			Embedding: embeddings[i],
		}
	}
	return chunks, nil
}

// ValidateDimensions checks that every chunk embedding has the expected
// length. expected <= 0 means "take it from the first chunk".
func ValidateDimensions(chunks []DocumentChunk, expected int) (int, error) {
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			return expected, fmt.Errorf("chunk %s has no embedding", c.ID)
		}
		if expected <= 0 {
			expected = len(c.Embedding)
			continue
		}
		if len(c.Embedding) != expected {
			return expected, fmt.Errorf("%w: chunk %s has %d dimensions, expected %d",
				ErrDimensionMismatch, c.ID, len(c.Embedding), expected)
		}
	}
	return expected, nil
}
