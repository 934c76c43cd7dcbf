package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cloo-solutions/ragent/internal/api"
	"github.com/cloo-solutions/ragent/internal/domain"
	"github.com/cloo-solutions/ragent/internal/loader"
	"github.com/cloo-solutions/ragent/internal/service"
)

// IngestService indexes documents synchronously.
type IngestService interface {
	Ingest(ctx context.Context, documents []string, metadatas []map[string]string) (service.IngestResult, error)
}

// IngestQueue accepts documents for background indexing.
type IngestQueue interface {
	Enqueue(ctx context.Context, documents []string, metadatas []map[string]string) (string, error)
	Get(ctx context.Context, jobID string) (*domain.IngestJob, error)
}

// Notifier wakes the background worker.
type Notifier interface {
	Notify()
}

type IngestHandler struct {
	svc    IngestService
	queue  IngestQueue
	notify Notifier
}

// NewIngestHandler creates the handler. queue and notify may be nil, which
// disables async ingest.
func NewIngestHandler(svc IngestService, queue IngestQueue, notify Notifier) *IngestHandler {
	return &IngestHandler{svc: svc, queue: queue, notify: notify}
}

// IngestRequest accepts either a single text_content with an object
// metadata, or documents with a parallel metadata array.
type IngestRequest struct {
	TextContent string          `json:"text_content"`
	Documents   []string        `json:"documents"`
	Metadata    json.RawMessage `json:"metadata"`
	Format      string          `json:"format"`
	Async       bool            `json:"async"`
}

type IngestResponse struct {
	Status        string   `json:"status"`
	Documents     int      `json:"documents"`
	ChunksIndexed int      `json:"chunks_indexed"`
	ChunksSkipped int      `json:"chunks_skipped"`
	ChunkIDs      []string `json:"chunk_ids,omitempty"`
}

type IngestJobResponse struct {
	JobID         string  `json:"job_id"`
	Status        string  `json:"status"`
	Retries       int32   `json:"retries"`
	Error         string  `json:"error,omitempty"`
	ChunksIndexed int     `json:"chunks_indexed"`
	CreatedAt     string  `json:"created_at"`
	ProcessedAt   *string `json:"processed_at,omitempty"`
}

func jobToResponse(j *domain.IngestJob) *IngestJobResponse {
	resp := &IngestJobResponse{
		JobID:         j.ID,
		Status:        string(j.Status),
		Retries:       j.Retries,
		Error:         j.Error,
		ChunksIndexed: j.ChunksIndexed,
		CreatedAt:     j.CreatedAt.Format(time.RFC3339),
	}
	if j.ProcessedAt != nil {
		processed := j.ProcessedAt.Format(time.RFC3339)
		resp.ProcessedAt = &processed
	}
	return resp
}

func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	documents, metadatas, err := req.normalize()
	if err != nil {
		api.HandleError(w, err)
		return
	}

	if req.Async {
		if h.queue == nil {
			api.Error(w, http.StatusBadRequest, "async ingest is not enabled")
			return
		}
		jobID, err := h.queue.Enqueue(r.Context(), documents, metadatas)
		if err != nil {
			api.HandleError(w, err)
			return
		}
		if h.notify != nil {
			h.notify.Notify()
		}
		api.Success(w, http.StatusAccepted, map[string]string{
			"job_id": jobID,
			"status": string(domain.IngestJobStatusPending),
		})
		return
	}

	result, err := h.svc.Ingest(r.Context(), documents, metadatas)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, &IngestResponse{
		Status:        "success",
		Documents:     result.Documents,
		ChunksIndexed: result.ChunksIndexed,
		ChunksSkipped: result.ChunksSkipped,
		ChunkIDs:      result.ChunkIDs,
	})
}

func (h *IngestHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		api.HandleError(w, domain.ErrIngestJobNotFound)
		return
	}

	job, err := h.queue.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, jobToResponse(job))
}

// normalize resolves both body shapes into parallel slices of plain text
// and string metadata.
func (req *IngestRequest) normalize() ([]string, []map[string]string, error) {
	var (
		documents []string
		metadatas []map[string]string
	)

	switch {
	case len(req.Documents) > 0:
		documents = req.Documents
		var raw []map[string]interface{}
		if len(req.Metadata) > 0 && string(req.Metadata) != "null" {
			if err := json.Unmarshal(req.Metadata, &raw); err != nil {
				return nil, nil, domain.NewDomainError(domain.ErrCodeValidation, "metadata must be an array of objects")
			}
		}
		if raw == nil {
			raw = make([]map[string]interface{}, len(documents))
		}
		if len(raw) != len(documents) {
			return nil, nil, fmt.Errorf("%w: %d documents, %d metadata entries", domain.ErrLengthMismatch, len(documents), len(raw))
		}
		for _, m := range raw {
			metadatas = append(metadatas, stringifyMetadata(m))
		}

	case strings.TrimSpace(req.TextContent) != "":
		var raw map[string]interface{}
		if len(req.Metadata) > 0 && string(req.Metadata) != "null" {
			if err := json.Unmarshal(req.Metadata, &raw); err != nil {
				return nil, nil, domain.NewDomainError(domain.ErrCodeValidation, "metadata must be an object")
			}
		}
		documents = []string{req.TextContent}
		metadatas = []map[string]string{stringifyMetadata(raw)}

	default:
		return nil, nil, domain.ErrNoDocuments
	}

	texts := make([]string, len(documents))
	for i, doc := range documents {
		text, err := loader.Normalize(req.Format, doc)
		if err != nil {
			return nil, nil, err
		}
		texts[i] = text
	}
	return texts, metadatas, nil
}

// stringifyMetadata keeps string values and JSON-encodes the rest.
func stringifyMetadata(raw map[string]interface{}) map[string]string {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			out[k] = val
		case nil:
		default:
			encoded, err := json.Marshal(val)
			if err != nil {
				continue
			}
			out[k] = string(encoded)
		}
	}
	return out
}
