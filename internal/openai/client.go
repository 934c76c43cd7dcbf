package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/cloo-solutions/ragent/internal/domain"
	"github.com/cloo-solutions/ragent/internal/llm"
)

const (
	// DefaultEmbeddingModel is the OpenAI model used for generating embeddings
	DefaultEmbeddingModel = openai.AdaEmbeddingV2
	// DefaultChatModel is used when neither the config nor the request names a model
	DefaultChatModel = openai.GPT4oMini
)

var (
	// ErrEmptyText is returned when text is empty
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrNoAPIKey is returned when neither an API key nor a custom base URL is configured
	ErrNoAPIKey = errors.New("openai API key not set")
	// ErrNoChoices is returned when a completion carries no choices
	ErrNoChoices = errors.New("no completion choices returned")
)

// API defines the subset of the OpenAI API the client relies on
type API interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (llm.ChunkReader, error)
	CreateEmbeddings(ctx context.Context, text string) ([]float32, error)
}

// Client adapts an OpenAI-compatible API to the llm contracts
type Client struct {
	api       API
	chatModel string
}

type OpenAIAdapter struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

func NewOpenAIAdapter(cfg openai.ClientConfig, model openai.EmbeddingModel) *OpenAIAdapter {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &OpenAIAdapter{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// CreateChatCompletion calls the chat completions endpoint
func (a *OpenAIAdapter) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return a.client.CreateChatCompletion(ctx, req)
}

// CreateChatCompletionStream opens a streamed chat completion
func (a *OpenAIAdapter) CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (llm.ChunkReader, error) {
	stream, err := a.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, err
	}
	return &streamReader{stream: stream}, nil
}

// CreateEmbeddings calls the OpenAI API to create embeddings
func (a *OpenAIAdapter) CreateEmbeddings(ctx context.Context, text string) ([]float32, error) {
	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: a.model,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding data returned")
	}

	return resp.Data[0].Embedding, nil
}

type Config struct {
	APIKey         string
	BaseURL        string
	ChatModel      string
	EmbeddingModel string
}

// NewClient creates a client for OpenAI or any API speaking its protocol.
// A key is required unless BaseURL points at a self-hosted endpoint.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, ErrNoAPIKey
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	chatModel := cfg.ChatModel
	if chatModel == "" {
		chatModel = DefaultChatModel
	}

	return &Client{
		api:       NewOpenAIAdapter(clientCfg, openai.EmbeddingModel(cfg.EmbeddingModel)),
		chatModel: chatModel,
	}, nil
}

// Chat performs a non-streaming completion and returns the first choice
func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, c.completionRequest(req))
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return resp.Choices[0].Message.Content, nil
}

// ChatStream opens a streamed completion. The caller must Close the reader.
func (c *Client) ChatStream(ctx context.Context, req llm.ChatRequest) (llm.ChunkReader, error) {
	reader, err := c.api.CreateChatCompletionStream(ctx, c.completionRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to open chat stream: %w", err)
	}
	return reader, nil
}

// CreateEmbedding generates an embedding for the given text
func (c *Client) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	embedding, err := c.api.CreateEmbeddings(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}

	return embedding, nil
}

func (c *Client) completionRequest(req llm.ChatRequest) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = c.chatModel
	}

	out := openai.ChatCompletionRequest{
		Model:    model,
		Messages: make([]openai.ChatCompletionMessage, len(req.Messages)),
		Seed:     req.Seed,
	}
	if req.Temperature != nil {
		out.Temperature = float32(*req.Temperature)
	}
	if req.Format == llm.FormatJSON {
		out.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	for i, m := range req.Messages {
		out.Messages[i] = toMessage(m)
	}
	return out
}

// Images travel as data URIs in multi-part content.
func toMessage(m llm.Message) openai.ChatCompletionMessage {
	if len(m.Images) == 0 {
		return openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content}
	}

	parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: m.Content}}
	for _, img := range m.Images {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    "data:" + detectImageType(img) + ";base64," + img,
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}
	return openai.ChatCompletionMessage{Role: string(m.Role), MultiContent: parts}
}

func detectImageType(b64 string) string {
	head := b64
	if len(head) > 64 {
		head = head[:64]
	}
	raw, err := base64.StdEncoding.DecodeString(head[:len(head)/4*4])
	if err != nil || len(raw) == 0 {
		return "image/png"
	}
	return http.DetectContentType(raw)
}

type streamReader struct {
	stream *openai.ChatCompletionStream
}

func (r *streamReader) Recv() (llm.StreamChunk, error) {
	resp, err := r.stream.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return llm.StreamChunk{}, io.EOF
		}
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			return llm.StreamChunk{}, fmt.Errorf("%w: %v", domain.ErrMalformedChunk, err)
		}
		return llm.StreamChunk{}, err
	}

	var chunk llm.StreamChunk
	for _, choice := range resp.Choices {
		chunk.Content += choice.Delta.Content
		if choice.FinishReason != "" {
			chunk.Done = true
		}
	}
	return chunk, nil
}

func (r *streamReader) Close() error {
	r.stream.Close()
	return nil
}
