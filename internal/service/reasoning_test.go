package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/ragent/internal/domain"
	"github.com/cloo-solutions/ragent/internal/llm"
)

func history(n int) []domain.ChatTurn {
	turns := make([]domain.ChatTurn, n)
	for i := range turns {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		turns[i] = domain.ChatTurn{Role: role, Content: string(rune('a' + i))}
	}
	return turns
}

func TestReasoningStage_Analyze(t *testing.T) {
	client := new(MockChatClient)
	stage := NewReasoningStage(client, "llama3.1", 30*time.Second)

	client.On("Chat", mock.Anything, mock.MatchedBy(func(req llm.ChatRequest) bool {
		last := req.Messages[len(req.Messages)-1]
		return req.Model == "llama3.1" &&
			req.Format == llm.FormatJSON &&
			*req.Temperature == 0.1 && *req.Seed == 42 &&
			req.Messages[0].Role == domain.RoleSystem &&
			strings.Contains(req.Messages[0].Content, "search, summarize, calculate, chitchat") &&
			len(req.Messages) == 1+3+1 &&
			req.Messages[1].Content == "c" &&
			last.Content == "Analyze this query: Who is the CEO of Nvidia?"
	})).Return(`{"intent":"search","key_entities":["Nvidia"],"missing_info":null,"is_safe":true}`, nil)

	analysis, err := stage.Analyze(context.Background(), "Who is the CEO of Nvidia?", history(5), false)

	require.NoError(t, err)
	assert.Equal(t, domain.IntentSearch, analysis.Intent)
	assert.Equal(t, []string{"Nvidia"}, analysis.KeyEntities)
	client.AssertExpectations(t)
}

func TestReasoningStage_Analyze_FallbackOnMalformedResponse(t *testing.T) {
	for _, content := range []string{
		"Sure! The intent is search.",
		`{"intent":"weather"}`,
		`{"intent":"vision_qa"}`,
		`{"intent":"search","key_entities":"Nvidia"}`,
		"",
	} {
		t.Run(content, func(t *testing.T) {
			client := new(MockChatClient)
			stage := NewReasoningStage(client, "m", time.Second)
			client.On("Chat", mock.Anything, mock.Anything).Return(content, nil)

			analysis, err := stage.Analyze(context.Background(), "hello", nil, false)

			assert.Equal(t, domain.IntentChitchat, analysis.Intent)
			assert.Empty(t, analysis.KeyEntities)
			var classErr *domain.ClassificationError
			require.True(t, errors.As(err, &classErr))
			assert.Equal(t, domain.ClassificationSchema, classErr.Reason)
		})
	}
}

func TestReasoningStage_Analyze_FallbackOnTransportFailure(t *testing.T) {
	client := new(MockChatClient)
	stage := NewReasoningStage(client, "m", time.Second)
	client.On("Chat", mock.Anything, mock.Anything).Return("", errors.New("connection refused"))

	analysis, err := stage.Analyze(context.Background(), "hello", nil, false)

	assert.Equal(t, domain.FallbackAnalysis(), analysis)
	var classErr *domain.ClassificationError
	require.True(t, errors.As(err, &classErr))
	assert.Equal(t, domain.ClassificationTransport, classErr.Reason)
}

func TestReasoningStage_Analyze_ImageSkipsModel(t *testing.T) {
	client := new(MockChatClient)
	stage := NewReasoningStage(client, "m", time.Second)

	analysis, err := stage.Analyze(context.Background(), "what is this?", history(2), true)

	require.NoError(t, err)
	assert.Equal(t, domain.IntentVisionQA, analysis.Intent)
	client.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything)
}

func TestReasoningStage_RewriteQuery(t *testing.T) {
	client := new(MockChatClient)
	stage := NewReasoningStage(client, "m", time.Second)
	turns := []domain.ChatTurn{
		{Role: domain.RoleUser, Content: "Who is the CEO of Nvidia?"},
		{Role: domain.RoleAssistant, Content: "Jensen Huang."},
	}

	client.On("Chat", mock.Anything, mock.MatchedBy(func(req llm.ChatRequest) bool {
		p := req.Messages[0].Content
		return *req.Temperature == 0.3 && req.Format == "" &&
			strings.Contains(p, "assistant: Jensen Huang.") &&
			strings.Contains(p, "Follow-up: How old is he?")
	})).Return("  How old is Jensen Huang?\n", nil)

	out := stage.RewriteQuery(context.Background(), "How old is he?", turns)

	assert.Equal(t, "How old is Jensen Huang?", out)
}

func TestReasoningStage_RewriteQuery_FallsBackToRawQuery(t *testing.T) {
	client := new(MockChatClient)
	stage := NewReasoningStage(client, "m", time.Second)
	client.On("Chat", mock.Anything, mock.Anything).Return("", errors.New("boom"))

	assert.Equal(t, "How old is he?", stage.RewriteQuery(context.Background(), "How old is he?", history(2)))
	assert.Equal(t, "q", stage.RewriteQuery(context.Background(), "q", nil))
	client.AssertNumberOfCalls(t, "Chat", 1)
}
