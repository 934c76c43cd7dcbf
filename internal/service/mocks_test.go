package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/cloo-solutions/ragent/internal/domain"
	"github.com/cloo-solutions/ragent/internal/llm"
)

// MockChatClient mocks the model provider's chat calls
type MockChatClient struct {
	mock.Mock
}

func (m *MockChatClient) Chat(ctx context.Context, req llm.ChatRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockChatClient) ChatStream(ctx context.Context, req llm.ChatRequest) (llm.ChunkReader, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(llm.ChunkReader), args.Error(1)
}

// scriptedReader replays a fixed sequence of Recv results, then io.EOF.
type scriptedReader struct {
	mu     sync.Mutex
	steps  []recvStep
	pos    int
	closed int
}

type recvStep struct {
	chunk llm.StreamChunk
	err   error
}

func token(s string) recvStep { return recvStep{chunk: llm.StreamChunk{Content: s}} }
func doneStep(s string) recvStep {
	return recvStep{chunk: llm.StreamChunk{Content: s, Done: true}}
}
func malformed() recvStep         { return recvStep{err: domain.ErrMalformedChunk} }
func failStep(err error) recvStep { return recvStep{err: err} }

func newScriptedReader(steps ...recvStep) *scriptedReader {
	return &scriptedReader{steps: steps}
}

func (r *scriptedReader) Recv() (llm.StreamChunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed > 0 {
		return llm.StreamChunk{}, errors.New("read on closed stream")
	}
	if r.pos >= len(r.steps) {
		return llm.StreamChunk{}, io.EOF
	}
	step := r.steps[r.pos]
	r.pos++
	return step.chunk, step.err
}

func (r *scriptedReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
	return nil
}

func (r *scriptedReader) Closed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// fakeEmbedder returns fixed vectors per text; unknown texts fail softly.
type fakeEmbedder struct {
	vectors map[string][]float32
	calls   int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return nil, domain.ErrEmbeddingUnavailable
}

// hashEmbedder is a deterministic bag-of-words embedder.
type hashEmbedder struct{}

func (hashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, 32)
	word := uint32(2166136261)
	for _, r := range text + " " {
		if r == ' ' || r == '\n' || r == '.' || r == ',' {
			if word != 2166136261 {
				vec[word%32]++
			}
			word = 2166136261
			continue
		}
		word = (word ^ uint32(r)) * 16777619
	}
	return vec, nil
}

// collect drains a stream into one string and closes it.
func collect(s *TokenStream) (string, error) {
	defer s.Close()

	var out strings.Builder
	for s.Next() {
		out.WriteString(s.Token())
	}
	return out.String(), s.Err()
}
