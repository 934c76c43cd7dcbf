package domain

import (
	"fmt"
	"time"
)

// IngestJobStatus represents the status of an asynchronous ingest
type IngestJobStatus string

const (
	IngestJobStatusPending    IngestJobStatus = "pending"
	IngestJobStatusProcessing IngestJobStatus = "processing"
	IngestJobStatusCompleted  IngestJobStatus = "completed"
	IngestJobStatusFailed     IngestJobStatus = "failed"
)

// IngestJob is a queued batch of documents waiting to be chunked, embedded and indexed.
type IngestJob struct {
	ID            string
	Documents     []string
	Metadatas     []map[string]string
	Status        IngestJobStatus
	Retries       int32
	Error         string
	ChunksIndexed int
	CreatedAt     time.Time
	ProcessedAt   *time.Time
}

// NewIngestJob creates a pending IngestJob
func NewIngestJob(id string, documents []string, metadatas []map[string]string, createdAt time.Time) *IngestJob {
	return &IngestJob{
		ID:        id,
		Documents: documents,
		Metadatas: metadatas,
		Status:    IngestJobStatusPending,
		CreatedAt: createdAt,
	}
}

// IsTerminal reports whether the job will not change state again.
func (j *IngestJob) IsTerminal() bool {
	return j.Status == IngestJobStatusCompleted || j.Status == IngestJobStatusFailed
}

// ValidateIngestJob validates an IngestJob instance
func ValidateIngestJob(j *IngestJob) error {
	if j == nil {
		return fmt.Errorf("ingest job cannot be nil")
	}

	if j.ID == "" {
		return fmt.Errorf("ingest job ID is required")
	}

	if len(j.Documents) == 0 {
		return ErrNoDocuments
	}

	if len(j.Metadatas) != len(j.Documents) {
		return fmt.Errorf("%w: %d documents, %d metadata entries", ErrLengthMismatch, len(j.Documents), len(j.Metadatas))
	}

	if !IsValidIngestJobStatus(j.Status) {
		return fmt.Errorf("%w: %s", ErrInvalidIngestState, j.Status)
	}

	if j.Retries < 0 {
		return fmt.Errorf("ingest job Retries cannot be negative")
	}

	return nil
}

// IsValidIngestJobStatus checks if an IngestJobStatus is valid
func IsValidIngestJobStatus(s IngestJobStatus) bool {
	switch s {
	case IngestJobStatusPending, IngestJobStatusProcessing,
		IngestJobStatusCompleted, IngestJobStatusFailed:
		return true
	}
	return false
}
