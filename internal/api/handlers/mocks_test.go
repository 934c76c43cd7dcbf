package handlers

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"github.com/cloo-solutions/ragent/internal/domain"
	"github.com/cloo-solutions/ragent/internal/llm"
	"github.com/cloo-solutions/ragent/internal/service"
)

type MockChatService struct {
	mock.Mock
}

func (m *MockChatService) Run(ctx context.Context, turn service.Turn) (*service.TokenStream, error) {
	args := m.Called(ctx, turn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.TokenStream), args.Error(1)
}

type MockIngestService struct {
	mock.Mock
}

func (m *MockIngestService) Ingest(ctx context.Context, documents []string, metadatas []map[string]string) (service.IngestResult, error) {
	args := m.Called(ctx, documents, metadatas)
	return args.Get(0).(service.IngestResult), args.Error(1)
}

type MockIngestQueue struct {
	mock.Mock
}

func (m *MockIngestQueue) Enqueue(ctx context.Context, documents []string, metadatas []map[string]string) (string, error) {
	args := m.Called(ctx, documents, metadatas)
	return args.String(0), args.Error(1)
}

func (m *MockIngestQueue) Get(ctx context.Context, jobID string) (*domain.IngestJob, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IngestJob), args.Error(1)
}

type countingNotifier struct {
	calls int
}

func (n *countingNotifier) Notify() { n.calls++ }

// sliceReader replays chunks, then io.EOF.
type sliceReader struct {
	chunks []llm.StreamChunk
	errs   []error
	pos    int
	closed bool
}

func (r *sliceReader) Recv() (llm.StreamChunk, error) {
	if r.pos >= len(r.chunks) {
		return llm.StreamChunk{}, io.EOF
	}
	i := r.pos
	r.pos++
	if i < len(r.errs) && r.errs[i] != nil {
		return llm.StreamChunk{}, r.errs[i]
	}
	return r.chunks[i], nil
}

func (r *sliceReader) Close() error {
	r.closed = true
	return nil
}

func tokens(parts ...string) *sliceReader {
	reader := &sliceReader{}
	for _, p := range parts {
		reader.chunks = append(reader.chunks, llm.StreamChunk{Content: p})
	}
	reader.chunks = append(reader.chunks, llm.StreamChunk{Done: true})
	return reader
}
