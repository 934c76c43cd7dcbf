package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloo-solutions/ragent/internal/domain"
	"github.com/cloo-solutions/ragent/internal/llm"
)

const (
	reasoningHistoryTurns = 3
	reasoningTemperature  = 0.1
	reasoningSeed         = 42
	rewriteTemperature    = 0.3
)

// ReasoningStage classifies a turn into a QueryAnalysis.
type ReasoningStage struct {
	client  llm.ChatClient
	model   string
	timeout time.Duration
}

func NewReasoningStage(client llm.ChatClient, model string, timeout time.Duration) *ReasoningStage {
	return &ReasoningStage{client: client, model: model, timeout: timeout}
}

// Analyze classifies query. A turn with an image is vision_qa without a
// model call. On any failure the fallback analysis is returned together with
// a *domain.ClassificationError, so callers can log and carry on.
func (r *ReasoningStage) Analyze(ctx context.Context, query string, history []domain.ChatTurn, hasImage bool) (domain.QueryAnalysis, error) {
	if hasImage {
		return domain.VisionAnalysis(), nil
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	msgs := []llm.Message{{Role: domain.RoleSystem, Content: classificationPrompt()}}
	msgs = append(msgs, llm.HistoryMessages(domain.LastTurns(history, reasoningHistoryTurns))...)
	msgs = append(msgs, llm.Message{Role: domain.RoleUser, Content: "Analyze this query: " + query})

	content, err := r.client.Chat(ctx, llm.ChatRequest{
		Model:       r.model,
		Messages:    msgs,
		Temperature: llm.Float64(reasoningTemperature),
		Seed:        llm.Int(reasoningSeed),
		Format:      llm.FormatJSON,
	})
	if err != nil {
		return domain.FallbackAnalysis(), &domain.ClassificationError{Reason: domain.ClassificationTransport, Err: err}
	}

	analysis, err := domain.ParseQueryAnalysis([]byte(content))
	if err != nil {
		return domain.FallbackAnalysis(), &domain.ClassificationError{Reason: domain.ClassificationSchema, Err: err}
	}
	return analysis, nil
}

// RewriteQuery turns a follow-up question into a standalone one using the
// conversation so far. It returns query unchanged when there is no history
// or the model call fails.
func (r *ReasoningStage) RewriteQuery(ctx context.Context, query string, history []domain.ChatTurn) string {
	if len(history) == 0 {
		return query
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	prompt := fmt.Sprintf(
		"Given the following chat history and a follow-up question, "+
			"rephrase the follow-up question to be a standalone question. "+
			"Reply with the question only.\n"+
			"Chat History:\n%s\n"+
			"Follow-up: %s\n"+
			"Standalone Question:",
		formatHistory(history), query)

	out, err := r.client.Chat(ctx, llm.ChatRequest{
		Model:       r.model,
		Messages:    []llm.Message{{Role: domain.RoleUser, Content: prompt}},
		Temperature: llm.Float64(rewriteTemperature),
	})
	if err != nil {
		return query
	}

	out = strings.TrimSpace(out)
	if out == "" {
		return query
	}
	return out
}

func (r *ReasoningStage) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout > 0 {
		return context.WithTimeout(ctx, r.timeout)
	}
	return context.WithCancel(ctx)
}

func classificationPrompt() string {
	intents := domain.ClassifiableIntents()
	names := make([]string, len(intents))
	for i, intent := range intents {
		names[i] = string(intent)
	}

	return "You are the reasoning engine of an assistant that can search a knowledge base. " +
		"Analyze the user's input and route it to the correct tool. " +
		"You MUST output raw JSON only, with the fields " +
		`"intent" (string), "key_entities" (list of strings), "missing_info" (string or null) and "is_safe" (boolean). ` +
		"Do not include markdown blocks or explanations. " +
		"Valid intents: " + strings.Join(names, ", ") + "."
}

func formatHistory(history []domain.ChatTurn) string {
	var b strings.Builder
	for _, turn := range history {
		fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}
