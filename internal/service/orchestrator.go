package service

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/cloo-solutions/ragent/internal/domain"
	"github.com/cloo-solutions/ragent/internal/telemetry"
)

// CalculatorPlaceholder is the tool output for calculate turns.
const CalculatorPlaceholder = "Calculator tool not yet implemented."

// Reasoner classifies turns.
type Reasoner interface {
	Analyze(ctx context.Context, query string, history []domain.ChatTurn, hasImage bool) (domain.QueryAnalysis, error)
	RewriteQuery(ctx context.Context, query string, history []domain.ChatTurn) string
}

// Retriever searches and feeds the knowledge base.
type Retriever interface {
	Search(ctx context.Context, query string, topK int) (string, error)
	Ingest(ctx context.Context, documents []string, metadatas []map[string]string) (IngestResult, error)
	Replace(ctx context.Context, key, document string, metadata map[string]string) (IngestResult, error)
}

// ImageAnalyzer describes images.
type ImageAnalyzer interface {
	Analyze(ctx context.Context, image, prompt string) (string, error)
}

// Synthesizer streams answers.
type Synthesizer interface {
	Stream(ctx context.Context, in StreamInput) (*TokenStream, error)
}

// OrchestratorConfig tunes the per-turn pipeline.
type OrchestratorConfig struct {
	TopK           int
	RewriteQueries bool
	// Collection names the vector collection on retrieval spans.
	Collection string
}

// Turn is one user message with its context.
type Turn struct {
	Query   string
	History []domain.ChatTurn
	// Image is base64 or a data URI; empty for text-only turns.
	Image string
	// Model overrides the synthesis model for this turn.
	Model string
}

// Orchestrator runs a turn through classification, at most one tool and
// answer synthesis, in that order.
type Orchestrator struct {
	reasoner    Reasoner
	retriever   Retriever
	vision      ImageAnalyzer
	synthesizer Synthesizer
	cfg         OrchestratorConfig
}

func NewOrchestrator(reasoner Reasoner, retriever Retriever, vision ImageAnalyzer, synthesizer Synthesizer, cfg OrchestratorConfig) *Orchestrator {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	return &Orchestrator{
		reasoner:    reasoner,
		retriever:   retriever,
		vision:      vision,
		synthesizer: synthesizer,
		cfg:         cfg,
	}
}

// Run executes one turn and returns the answer stream unmodified. Tool
// failures become fixed evidence strings; only a failure to start synthesis
// is returned as an error.
func (o *Orchestrator) Run(ctx context.Context, turn Turn) (*TokenStream, error) {
	hasImage := strings.TrimSpace(turn.Image) != ""
	if strings.TrimSpace(turn.Query) == "" && !hasImage {
		return nil, domain.ErrEmptyQuery
	}

	analysis := o.analyze(ctx, turn, hasImage)
	toolOutput := o.runTool(ctx, turn, analysis.Intent)

	// the stream outlives this span; it covers opening the generation only
	_, span := telemetry.StartSpan(ctx, "synthesis.open", telemetry.SpanAttributes{
		Intent:    string(analysis.Intent),
		Model:     turn.Model,
		Operation: "synthesize",
	})
	defer span.End()

	stream, err := o.synthesizer.Stream(ctx, StreamInput{
		Query:      turn.Query,
		ToolOutput: toolOutput,
		Intent:     analysis.Intent,
		History:    turn.History,
		Model:      turn.Model,
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	return stream, nil
}

// Ingest forwards documents to the retrieval tool.
func (o *Orchestrator) Ingest(ctx context.Context, documents []string, metadatas []map[string]string) (IngestResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "retrieval.ingest", o.retrievalAttrs("", "ingest"))
	defer span.End()

	result, err := o.retriever.Ingest(ctx, documents, metadatas)
	if err != nil {
		span.SetError(err)
	}
	return result, err
}

// Replace indexes one document under key, superseding its previous chunks.
func (o *Orchestrator) Replace(ctx context.Context, key, document string, metadata map[string]string) (IngestResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "retrieval.replace", o.retrievalAttrs("", "replace"))
	defer span.End()

	result, err := o.retriever.Replace(ctx, key, document, metadata)
	if err != nil {
		span.SetError(err)
	}
	return result, err
}

func (o *Orchestrator) retrievalAttrs(intent domain.Intent, operation string) telemetry.SpanAttributes {
	return telemetry.SpanAttributes{
		Intent:     string(intent),
		Collection: o.cfg.Collection,
		Operation:  operation,
	}
}

func (o *Orchestrator) analyze(ctx context.Context, turn Turn, hasImage bool) domain.QueryAnalysis {
	ctx, span := telemetry.StartSpan(ctx, "reasoning.analyze", telemetry.SpanAttributes{Operation: "classify"})
	defer span.End()

	analysis, err := o.reasoner.Analyze(ctx, turn.Query, turn.History, hasImage)
	if err != nil {
		log.Printf("intent classification failed, falling back to %s: %v", analysis.Intent, err)
		span.SetError(err)
	}
	log.Printf("intent detected: %s", analysis.Intent)
	return analysis
}

func (o *Orchestrator) runTool(ctx context.Context, turn Turn, intent domain.Intent) string {
	switch intent {
	case domain.IntentSearch:
		ctx, span := telemetry.StartSpan(ctx, "retrieval.search", o.retrievalAttrs(intent, "search"))
		defer span.End()

		query := turn.Query
		if o.cfg.RewriteQueries && len(turn.History) > 0 {
			query = o.reasoner.RewriteQuery(ctx, turn.Query, turn.History)
		}

		out, err := o.retriever.Search(ctx, query, o.cfg.TopK)
		if err != nil {
			span.SetError(err)
			if errors.Is(err, domain.ErrEmbeddingUnavailable) {
				log.Printf("search: embedding failed: %v", err)
				return EmbeddingFailedMessage
			}
			log.Printf("search: index query failed: %v", err)
			return IndexQueryFailedMessage
		}
		return out

	case domain.IntentVisionQA:
		if strings.TrimSpace(turn.Image) == "" {
			return ""
		}
		ctx, span := telemetry.StartSpan(ctx, "vision.analyze", telemetry.SpanAttributes{Intent: string(intent), Operation: "vision"})
		defer span.End()

		out, err := o.vision.Analyze(ctx, turn.Image, turn.Query)
		if err != nil {
			span.SetError(err)
			log.Printf("vision: analysis failed: %v", err)
			return VisionFailedMessage
		}
		return out

	case domain.IntentCalculate:
		return CalculatorPlaceholder
	}

	return ""
}
