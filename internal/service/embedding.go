package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cloo-solutions/ragent/internal/domain"
)

// EmbeddingClient defines the interface for generating embeddings
type EmbeddingClient interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingService wraps an EmbeddingClient with a per-call timeout and
// enforces a single embedding dimension for the lifetime of the process.
type EmbeddingService struct {
	client  EmbeddingClient
	timeout time.Duration

	mu         sync.Mutex
	dimensions int
}

// NewEmbeddingService creates a new EmbeddingService instance. dimensions <= 0
// means the first vector returned fixes the expected dimension.
func NewEmbeddingService(client EmbeddingClient, timeout time.Duration, dimensions int) *EmbeddingService {
	return &EmbeddingService{
		client:     client,
		timeout:    timeout,
		dimensions: dimensions,
	}
}

// Embed returns the embedding for text. A remote failure is reported as
// domain.ErrEmbeddingUnavailable, which callers treat as "skip this item".
// A vector of the wrong length is domain.ErrDimensionMismatch.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, domain.ErrEmptyText
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	embedding, err := s.client.CreateEmbedding(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("%w: empty vector", domain.ErrEmbeddingUnavailable)
	}

	if err := s.checkDimensions(len(embedding)); err != nil {
		return nil, err
	}
	return embedding, nil
}

func (s *EmbeddingService) checkDimensions(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dimensions <= 0 {
		s.dimensions = n
		return nil
	}
	if n != s.dimensions {
		return fmt.Errorf("%w: got %d, expected %d", domain.ErrDimensionMismatch, n, s.dimensions)
	}
	return nil
}
