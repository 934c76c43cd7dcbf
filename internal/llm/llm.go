// Package llm holds the provider-neutral request types and client
// contracts shared by the model adapters and the service layer.
package llm

import (
	"context"

	"github.com/cloo-solutions/ragent/internal/domain"
)

// FormatJSON asks the provider to constrain its output to a JSON object.
const FormatJSON = "json"

// Message is one chat message sent to a model. Images are base64 payloads
// without a data-URI prefix.
type Message struct {
	Role    domain.Role
	Content string
	Images  []string
}

// ChatRequest is a single chat completion request.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature *float64
	Seed        *int
	Format      string
}

// StreamChunk is one decoded line of a streaming response.
type StreamChunk struct {
	Content string
	Done    bool
}

// ChunkReader yields streamed chunks until io.EOF. A chunk that could not be
// decoded is reported as domain.ErrMalformedChunk and reading may continue.
type ChunkReader interface {
	Recv() (StreamChunk, error)
	Close() error
}

// ChatClient performs non-streaming chat calls.
type ChatClient interface {
	Chat(ctx context.Context, req ChatRequest) (string, error)
}

// StreamingChatClient opens streaming chat calls.
type StreamingChatClient interface {
	ChatStream(ctx context.Context, req ChatRequest) (ChunkReader, error)
}

// Embedder turns a text into a dense vector.
type Embedder interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Provider is the full set of calls a model backend offers.
type Provider interface {
	ChatClient
	StreamingChatClient
	Embedder
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// HistoryMessages converts chat turns into model messages, dropping turns
// with an unknown role.
func HistoryMessages(history []domain.ChatTurn) []Message {
	msgs := make([]Message, 0, len(history))
	for _, turn := range history {
		if !turn.Role.IsValid() {
			continue
		}
		msgs = append(msgs, Message{Role: turn.Role, Content: turn.Content})
	}
	return msgs
}
