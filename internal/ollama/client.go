// Package ollama is a client for the Ollama native HTTP API.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cloo-solutions/ragent/internal/domain"
	"github.com/cloo-solutions/ragent/internal/llm"
)

const (
	DefaultBaseURL        = "http://localhost:11434"
	DefaultChatModel      = "llama3.2"
	DefaultEmbeddingModel = "nomic-embed-text"

	maxLineBytes = 1 << 20
)

// Config configures the Ollama client.
type Config struct {
	BaseURL        string
	ChatModel      string
	EmbeddingModel string
	HTTPClient     *http.Client
}

// Client talks to /api/chat and /api/embeddings. Timeouts come from the
// caller's context.
type Client struct {
	baseURL        string
	chatModel      string
	embeddingModel string
	http           *http.Client
}

// NewClient creates an Ollama client, filling unset fields with defaults.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = DefaultChatModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		chatModel:      cfg.ChatModel,
		embeddingModel: cfg.EmbeddingModel,
		http:           cfg.HTTPClient,
	}
}

type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type chatOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	Seed        *int     `json:"seed,omitempty"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Format   string        `json:"format,omitempty"`
	Options  *chatOptions  `json:"options,omitempty"`
}

type chatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Chat performs a non-streaming chat call and returns the message content.
func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (string, error) {
	resp, err := c.post(ctx, "/api/chat", c.chatBody(req, false))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding chat response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("ollama: %s", out.Error)
	}
	return out.Message.Content, nil
}

// ChatStream opens a streaming chat call. The caller must Close the reader.
func (c *Client) ChatStream(ctx context.Context, req llm.ChatRequest) (llm.ChunkReader, error) {
	resp, err := c.post(ctx, "/api/chat", c.chatBody(req, true))
	if err != nil {
		return nil, err
	}

	return &streamReader{body: resp.Body, reader: bufio.NewReaderSize(resp.Body, 64*1024)}, nil
}

// CreateEmbedding embeds text with the configured embedding model.
func (c *Client) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.post(ctx, "/api/embeddings", embeddingRequest{Model: c.embeddingModel, Prompt: text})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding embedding response: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, errors.New("no embedding data returned")
	}
	return out.Embedding, nil
}

func (c *Client) chatBody(req llm.ChatRequest, stream bool) chatRequest {
	model := req.Model
	if model == "" {
		model = c.chatModel
	}

	msgs := make([]chatMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = chatMessage{Role: string(m.Role), Content: m.Content, Images: m.Images}
	}

	body := chatRequest{
		Model:    model,
		Messages: msgs,
		Stream:   stream,
		Format:   req.Format,
	}
	if req.Temperature != nil || req.Seed != nil {
		body.Options = &chatOptions{Temperature: req.Temperature, Seed: req.Seed}
	}
	return body
}

func (c *Client) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling ollama: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp, nil
}

var errLineTooLong = errors.New("stream line too long")

type streamReader struct {
	body   io.ReadCloser
	reader *bufio.Reader
}

// Recv returns the next chunk. Undecodable or oversized lines yield
// domain.ErrMalformedChunk and the stream stays readable.
func (r *streamReader) Recv() (llm.StreamChunk, error) {
	for {
		line, err := r.readLine()
		if errors.Is(err, errLineTooLong) {
			return llm.StreamChunk{}, fmt.Errorf("%w: line exceeds %d bytes", domain.ErrMalformedChunk, maxLineBytes)
		}
		if err != nil && err != io.EOF {
			return llm.StreamChunk{}, fmt.Errorf("reading stream: %w", err)
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			if err == io.EOF {
				return llm.StreamChunk{}, io.EOF
			}
			continue
		}

		var chunk chatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return llm.StreamChunk{}, fmt.Errorf("%w: %v", domain.ErrMalformedChunk, err)
		}
		if chunk.Error != "" {
			return llm.StreamChunk{}, fmt.Errorf("ollama: %s", chunk.Error)
		}
		return llm.StreamChunk{Content: chunk.Message.Content, Done: chunk.Done}, nil
	}
}

// readLine returns the next line including its newline. A line longer than
// maxLineBytes is consumed up to its newline and reported as errLineTooLong.
func (r *streamReader) readLine() ([]byte, error) {
	var line []byte
	for {
		frag, err := r.reader.ReadSlice('\n')
		if len(line)+len(frag) > maxLineBytes {
			for errors.Is(err, bufio.ErrBufferFull) {
				_, err = r.reader.ReadSlice('\n')
			}
			if err != nil && err != io.EOF {
				return nil, err
			}
			return nil, errLineTooLong
		}
		line = append(line, frag...)
		if !errors.Is(err, bufio.ErrBufferFull) {
			return line, err
		}
	}
}

func (r *streamReader) Close() error {
	return r.body.Close()
}
