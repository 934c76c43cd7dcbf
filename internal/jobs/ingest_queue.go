package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cloo-solutions/ragent/internal/domain"
)

// DefaultRetainedJobs bounds how many finished jobs the queue remembers.
const DefaultRetainedJobs = 1000

// IngestQueue is an in-process IngestJobRepository. Jobs do not survive a
// restart.
type IngestQueue struct {
	mu       sync.Mutex
	jobs     map[string]*domain.IngestJob
	order    []string
	retained int
	now      func() time.Time
}

func NewIngestQueue(retained int) *IngestQueue {
	if retained <= 0 {
		retained = DefaultRetainedJobs
	}
	return &IngestQueue{
		jobs:     make(map[string]*domain.IngestJob),
		retained: retained,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue validates and stores a pending job, returning its ID.
func (q *IngestQueue) Enqueue(ctx context.Context, documents []string, metadatas []map[string]string) (string, error) {
	job := domain.NewIngestJob(uuid.NewString(), documents, metadatas, q.now())
	if err := domain.ValidateIngestJob(job); err != nil {
		return "", err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.jobs[job.ID] = job
	q.order = append(q.order, job.ID)
	q.evict()
	return job.ID, nil
}

// Get returns a snapshot of the job.
func (q *IngestQueue) Get(ctx context.Context, jobID string) (*domain.IngestJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return nil, domain.ErrIngestJobNotFound
	}
	snapshot := *job
	return &snapshot, nil
}

// GetPendingJobs claims every pending job, oldest first.
func (q *IngestQueue) GetPendingJobs(ctx context.Context) ([]*domain.IngestJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var claimed []*domain.IngestJob
	for _, id := range q.order {
		job := q.jobs[id]
		if job.Status != domain.IngestJobStatusPending {
			continue
		}
		job.Status = domain.IngestJobStatusProcessing
		snapshot := *job
		claimed = append(claimed, &snapshot)
	}
	return claimed, nil
}

func (q *IngestQueue) UpdateJobStatus(ctx context.Context, jobID string, status domain.IngestJobStatus, errMsg string, chunksIndexed int) error {
	if !domain.IsValidIngestJobStatus(status) {
		return domain.ErrInvalidIngestState
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return domain.ErrIngestJobNotFound
	}
	job.Status = status
	job.Error = errMsg
	job.ChunksIndexed = chunksIndexed
	if job.IsTerminal() {
		processedAt := q.now()
		job.ProcessedAt = &processedAt
	}
	return nil
}

func (q *IngestQueue) IncrementRetries(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return domain.ErrIngestJobNotFound
	}
	job.Retries++
	return nil
}

// evict drops the oldest finished jobs once more than retained are stored.
// Callers hold q.mu.
func (q *IngestQueue) evict() {
	excess := len(q.order) - q.retained
	if excess <= 0 {
		return
	}

	kept := q.order[:0]
	for _, id := range q.order {
		if excess > 0 && q.jobs[id].IsTerminal() {
			delete(q.jobs, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	q.order = kept
}
