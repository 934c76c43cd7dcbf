package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/ragent/internal/domain"
	"github.com/cloo-solutions/ragent/internal/service"
)

func postIngest(t *testing.T, h *IngestHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/ingest", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	h.Ingest(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data, ok := resp["data"].(map[string]interface{})
	require.True(t, ok)
	return data
}

func TestIngestHandler_TextContentShape(t *testing.T) {
	mockSvc := new(MockIngestService)
	mockSvc.On("Ingest", mock.Anything,
		[]string{"Ragent answers questions."},
		[]map[string]string{{"source": "guide.txt", "page": "3"}},
	).Return(service.IngestResult{Documents: 1, ChunksIndexed: 1, ChunkIDs: []string{"doc_0_chunk_0"}}, nil)

	h := NewIngestHandler(mockSvc, nil, nil)
	w := postIngest(t, h, `{"text_content":"Ragent answers questions.","metadata":{"source":"guide.txt","page":3}}`)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "success", data["status"])
	assert.Equal(t, float64(1), data["chunks_indexed"])
	mockSvc.AssertExpectations(t)
}

func TestIngestHandler_DocumentsShapeWithMarkdown(t *testing.T) {
	mockSvc := new(MockIngestService)
	mockSvc.On("Ingest", mock.Anything,
		[]string{"Title\n\nbody text", "plain"},
		[]map[string]string{{"source": "a.md"}, {}},
	).Return(service.IngestResult{Documents: 2, ChunksIndexed: 2}, nil)

	h := NewIngestHandler(mockSvc, nil, nil)
	w := postIngest(t, h, `{"documents":["# Title\n\nbody **text**","plain"],"metadata":[{"source":"a.md"},{}],"format":"markdown"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestIngestHandler_DocumentsWithoutMetadata(t *testing.T) {
	mockSvc := new(MockIngestService)
	mockSvc.On("Ingest", mock.Anything, []string{"a", "b"}, []map[string]string{{}, {}}).
		Return(service.IngestResult{Documents: 2, ChunksIndexed: 2}, nil)

	w := postIngest(t, NewIngestHandler(mockSvc, nil, nil), `{"documents":["a","b"]}`)

	assert.Equal(t, http.StatusOK, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestIngestHandler_Validation(t *testing.T) {
	mockSvc := new(MockIngestService)
	h := NewIngestHandler(mockSvc, nil, nil)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"nothing to ingest", `{"metadata":{}}`},
		{"metadata length mismatch", `{"documents":["a","b"],"metadata":[{}]}`},
		{"metadata not an object", `{"text_content":"a","metadata":[1]}`},
		{"unsupported format", `{"text_content":"a","format":"html"}`},
		{"async disabled", `{"text_content":"a","async":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postIngest(t, h, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
	mockSvc.AssertNotCalled(t, "Ingest", mock.Anything, mock.Anything, mock.Anything)
}

func TestIngestHandler_ServiceErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"nothing indexed", domain.ErrNothingIndexed, http.StatusUnprocessableEntity},
		{"dimension mismatch", domain.ErrDimensionMismatch, http.StatusInternalServerError},
		{"index down", domain.ErrIndexUnavailable, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSvc := new(MockIngestService)
			mockSvc.On("Ingest", mock.Anything, mock.Anything, mock.Anything).Return(service.IngestResult{}, tt.err)

			w := postIngest(t, NewIngestHandler(mockSvc, nil, nil), `{"text_content":"a"}`)
			assert.Equal(t, tt.expected, w.Code)
		})
	}
}

func TestIngestHandler_Async(t *testing.T) {
	mockSvc := new(MockIngestService)
	mockQueue := new(MockIngestQueue)
	notifier := &countingNotifier{}

	mockQueue.On("Enqueue", mock.Anything, []string{"a"}, []map[string]string{{}}).Return("job-1", nil)

	w := postIngest(t, NewIngestHandler(mockSvc, mockQueue, notifier), `{"text_content":"a","async":true}`)

	assert.Equal(t, http.StatusAccepted, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "job-1", data["job_id"])
	assert.Equal(t, "pending", data["status"])
	assert.Equal(t, 1, notifier.calls)
	mockSvc.AssertNotCalled(t, "Ingest", mock.Anything, mock.Anything, mock.Anything)
}

func getJob(h *IngestHandler, id string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ingest/jobs/"+id, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	w := httptest.NewRecorder()
	h.GetJob(w, req)
	return w
}

func TestIngestHandler_GetJob(t *testing.T) {
	mockQueue := new(MockIngestQueue)
	processed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	mockQueue.On("Get", mock.Anything, "job-1").Return(&domain.IngestJob{
		ID:            "job-1",
		Status:        domain.IngestJobStatusCompleted,
		ChunksIndexed: 7,
		CreatedAt:     processed.Add(-time.Minute),
		ProcessedAt:   &processed,
	}, nil)
	mockQueue.On("Get", mock.Anything, "missing").Return(nil, domain.ErrIngestJobNotFound)

	h := NewIngestHandler(new(MockIngestService), mockQueue, nil)

	w := getJob(h, "job-1")
	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "completed", data["status"])
	assert.Equal(t, float64(7), data["chunks_indexed"])
	assert.Equal(t, "2026-01-02T03:04:05Z", data["processed_at"])

	w = getJob(h, "missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIngestHandler_GetJob_AsyncDisabled(t *testing.T) {
	w := getJob(NewIngestHandler(new(MockIngestService), nil, nil), "job-1")

	assert.Equal(t, http.StatusNotFound, w.Code)
}
