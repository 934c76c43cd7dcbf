package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/cloo-solutions/ragent/internal/api"
	"github.com/cloo-solutions/ragent/internal/domain"
	"github.com/cloo-solutions/ragent/internal/service"
)

// ChatService runs one conversational turn.
type ChatService interface {
	Run(ctx context.Context, turn service.Turn) (*service.TokenStream, error)
}

type ChatHandler struct {
	svc ChatService
}

func NewChatHandler(svc ChatService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

type ChatRequest struct {
	Query     string            `json:"query"`
	History   []domain.ChatTurn `json:"history"`
	ImageData string            `json:"image_data,omitempty"`
	Model     string            `json:"model,omitempty"`
}

// Stream answers a turn as text/event-stream, writing each token as it
// arrives. Errors after the first byte can only be logged.
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Query) == "" && strings.TrimSpace(req.ImageData) == "" {
		api.Error(w, http.StatusBadRequest, "query is required")
		return
	}
	for i, turn := range req.History {
		if !turn.Role.IsValid() {
			api.HandleError(w, fmt.Errorf("history[%d]: %w: %q", i, domain.ErrInvalidRole, turn.Role))
			return
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		api.Error(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	stream, err := h.svc.Run(r.Context(), service.Turn{
		Query:   req.Query,
		History: req.History,
		Image:   req.ImageData,
		Model:   req.Model,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for stream.Next() {
		if _, err := w.Write([]byte(stream.Token())); err != nil {
			log.Printf("chat stream: client gone: %v", err)
			return
		}
		flusher.Flush()
	}

	if err := stream.Err(); err != nil {
		log.Printf("chat stream ended early: %v", err)
	}
	if skipped := stream.Skipped(); skipped > 0 {
		log.Printf("chat stream skipped %d malformed chunks", skipped)
	}
}
