package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/cloo-solutions/ragent/internal/domain"
	"github.com/cloo-solutions/ragent/internal/llm"
)

const synthesisHistoryTurns = 5

// StreamInput is everything synthesis needs for one turn.
type StreamInput struct {
	Query      string
	ToolOutput string
	Intent     domain.Intent
	History    []domain.ChatTurn
	// Model overrides the configured model when set.
	Model string
}

// SynthesisStage streams the final answer.
type SynthesisStage struct {
	client  llm.StreamingChatClient
	model   string
	timeout time.Duration
}

func NewSynthesisStage(client llm.StreamingChatClient, model string, timeout time.Duration) *SynthesisStage {
	return &SynthesisStage{client: client, model: model, timeout: timeout}
}

// Stream opens a generation and returns its tokens. The connection is opened
// before Stream returns, so failing to reach the model is an error here, not
// an empty stream. Every call starts a new generation.
func (s *SynthesisStage) Stream(ctx context.Context, in StreamInput) (*TokenStream, error) {
	var cancel context.CancelFunc
	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	model := in.Model
	if model == "" {
		model = s.model
	}

	prompt := BuildPrompt(in.Intent, in.ToolOutput, in.Query)
	msgs := []llm.Message{{Role: domain.RoleSystem, Content: prompt.System}}
	msgs = append(msgs, llm.HistoryMessages(domain.LastTurns(in.History, synthesisHistoryTurns))...)
	msgs = append(msgs, llm.Message{Role: domain.RoleUser, Content: prompt.User})

	reader, err := s.client.ChatStream(ctx, llm.ChatRequest{Model: model, Messages: msgs})
	if err != nil {
		cancel()
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeUnavailable, "failed to start answer generation", err)
	}
	return NewTokenStream(reader, cancel), nil
}

// TokenStream iterates over the text increments of one generation:
//
//	defer stream.Close()
//	for stream.Next() {
//		fmt.Print(stream.Token())
//	}
//	if err := stream.Err(); err != nil { ... }
//
// Lines that cannot be decoded are skipped. The stream ends on the model's
// completion signal or when the connection closes. Close releases the
// connection and may be called at any point, any number of times.
type TokenStream struct {
	reader llm.ChunkReader
	cancel context.CancelFunc

	token   string
	err     error
	done    bool
	skipped int

	closeOnce sync.Once
}

// NewTokenStream wraps reader. cancel, if not nil, is called on Close.
func NewTokenStream(reader llm.ChunkReader, cancel context.CancelFunc) *TokenStream {
	return &TokenStream{reader: reader, cancel: cancel}
}

// Next advances to the next non-empty token.
func (s *TokenStream) Next() bool {
	if s.done {
		s.Close()
		return false
	}

	for {
		chunk, err := s.reader.Recv()
		if err != nil {
			if errors.Is(err, domain.ErrMalformedChunk) {
				s.skipped++
				continue
			}
			if !errors.Is(err, io.EOF) {
				s.err = err
			}
			s.done = true
			s.Close()
			return false
		}

		if chunk.Done {
			s.done = true
		}
		if chunk.Content != "" {
			s.token = chunk.Content
			return true
		}
		if s.done {
			s.Close()
			return false
		}
	}
}

// Token returns the token produced by the last successful Next.
func (s *TokenStream) Token() string {
	return s.token
}

// Err returns the error that ended the stream early, if any.
func (s *TokenStream) Err() error {
	return s.err
}

// Skipped returns how many undecodable lines were dropped.
func (s *TokenStream) Skipped() int {
	return s.skipped
}

// Close releases the underlying connection.
func (s *TokenStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.done = true
		err = s.reader.Close()
		if s.cancel != nil {
			s.cancel()
		}
	})
	return err
}
