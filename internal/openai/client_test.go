package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/ragent/internal/domain"
	"github.com/cloo-solutions/ragent/internal/llm"
)

// MockOpenAIAPI is a mock for the OpenAI API
type MockOpenAIAPI struct {
	mock.Mock
}

func (m *MockOpenAIAPI) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(openai.ChatCompletionResponse), args.Error(1)
}

func (m *MockOpenAIAPI) CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (llm.ChunkReader, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(llm.ChunkReader), args.Error(1)
}

func (m *MockOpenAIAPI) CreateEmbeddings(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func completion(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: content}}},
	}
}

func TestClient_Chat_JSONMode(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := &Client{api: mockAPI, chatModel: "gpt-test"}
	ctx := context.Background()

	mockAPI.On("CreateChatCompletion", ctx, mock.MatchedBy(func(req openai.ChatCompletionRequest) bool {
		return req.Model == "gpt-test" &&
			req.Temperature == float32(0.1) &&
			req.Seed != nil && *req.Seed == 42 &&
			req.ResponseFormat != nil &&
			req.ResponseFormat.Type == openai.ChatCompletionResponseFormatTypeJSONObject &&
			len(req.Messages) == 2 && req.Messages[0].Role == "system"
	})).Return(completion(`{"intent":"search"}`), nil)

	out, err := client.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: domain.RoleSystem, Content: "classify"},
			{Role: domain.RoleUser, Content: "Analyze this query: hi"},
		},
		Temperature: llm.Float64(0.1),
		Seed:        llm.Int(42),
		Format:      llm.FormatJSON,
	})

	require.NoError(t, err)
	assert.Equal(t, `{"intent":"search"}`, out)
	mockAPI.AssertExpectations(t)
}

func TestClient_Chat_ImageParts(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := &Client{api: mockAPI, chatModel: "gpt-test"}
	ctx := context.Background()
	png := "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

	mockAPI.On("CreateChatCompletion", ctx, mock.MatchedBy(func(req openai.ChatCompletionRequest) bool {
		msg := req.Messages[0]
		return req.Model == "llava" && msg.Content == "" && len(msg.MultiContent) == 2 &&
			msg.MultiContent[0].Text == "describe" &&
			msg.MultiContent[1].ImageURL.URL == "data:image/png;base64,"+png
	})).Return(completion("a pixel"), nil)

	out, err := client.Chat(ctx, llm.ChatRequest{
		Model:    "llava",
		Messages: []llm.Message{{Role: domain.RoleUser, Content: "describe", Images: []string{png}}},
	})

	require.NoError(t, err)
	assert.Equal(t, "a pixel", out)
	mockAPI.AssertExpectations(t)
}

func TestClient_Chat_NoChoices(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := &Client{api: mockAPI}
	ctx := context.Background()

	mockAPI.On("CreateChatCompletion", ctx, mock.Anything).Return(openai.ChatCompletionResponse{}, nil)

	_, err := client.Chat(ctx, llm.ChatRequest{})

	assert.Equal(t, ErrNoChoices, err)
}

func TestClient_Chat_APIError(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := &Client{api: mockAPI}
	ctx := context.Background()

	mockAPI.On("CreateChatCompletion", ctx, mock.Anything).Return(openai.ChatCompletionResponse{}, errors.New("rate limited"))

	_, err := client.Chat(ctx, llm.ChatRequest{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create chat completion")
}

func TestClient_CreateEmbedding_Success(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := &Client{api: mockAPI}

	ctx := context.Background()
	text := "This is a test document about Go programming."
	expectedEmbedding := make([]float32, 1536)
	for i := range expectedEmbedding {
		expectedEmbedding[i] = float32(i) * 0.001
	}

	mockAPI.On("CreateEmbeddings", ctx, text).Return(expectedEmbedding, nil)

	embedding, err := client.CreateEmbedding(ctx, text)

	assert.NoError(t, err)
	assert.Equal(t, expectedEmbedding, embedding)
	mockAPI.AssertExpectations(t)
}

func TestClient_CreateEmbedding_EmptyText(t *testing.T) {
	client := &Client{api: new(MockOpenAIAPI)}

	embedding, err := client.CreateEmbedding(context.Background(), "")

	assert.Nil(t, embedding)
	assert.Equal(t, ErrEmptyText, err)
}

func TestClient_CreateEmbedding_APIError(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := &Client{api: mockAPI}

	ctx := context.Background()
	mockAPI.On("CreateEmbeddings", ctx, "Test text").Return(nil, errors.New("API rate limit exceeded"))

	embedding, err := client.CreateEmbedding(ctx, "Test text")

	assert.Error(t, err)
	assert.Nil(t, embedding)
	assert.Contains(t, err.Error(), "failed to create embedding")
}

func TestNewClient(t *testing.T) {
	client, err := NewClient(Config{APIKey: "test-api-key"})
	require.NoError(t, err)
	assert.NotNil(t, client.api)
	assert.Equal(t, DefaultChatModel, client.chatModel)

	client, err = NewClient(Config{BaseURL: "http://localhost:8000/v1"})
	require.NoError(t, err)
	assert.NotNil(t, client)

	_, err = NewClient(Config{})
	assert.Equal(t, ErrNoAPIKey, err)
}

func TestClient_ChatStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, data := range []string{
			`{"choices":[{"index":0,"delta":{"content":"Hello"}}]}`,
			`{"choices":[{"index":0,"delta":{"content":" world"}}]}`,
			`{"choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		} {
			fmt.Fprintf(w, "data: %s\n\n", data)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client, err := NewClient(Config{APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)

	reader, err := client.ChatStream(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{{Role: domain.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	defer reader.Close()

	var text string
	done := false
	for {
		chunk, err := reader.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		text += chunk.Content
		done = done || chunk.Done
	}

	assert.Equal(t, "Hello world", text)
	assert.True(t, done)
}

func TestDetectImageType(t *testing.T) {
	png := "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="
	assert.Equal(t, "image/png", detectImageType(png))
	assert.Equal(t, "image/png", detectImageType("!!"))
}
