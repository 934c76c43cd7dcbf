package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/ragent/internal/domain"
)

const claimBatchSize = 100

const ingestJobColumns = `id, documents, metadatas, status, retries, error, chunks_indexed, created_at, processed_at`

// IngestJobRepository keeps async ingest jobs in PostgreSQL so they survive
// restarts and can be drained by any server sharing the database.
type IngestJobRepository struct {
	db dbtx
}

func NewIngestJobRepository(pool *pgxpool.Pool) *IngestJobRepository {
	return &IngestJobRepository{db: pool}
}

// Enqueue validates and stores a pending job, returning its ID.
func (r *IngestJobRepository) Enqueue(ctx context.Context, documents []string, metadatas []map[string]string) (string, error) {
	job := domain.NewIngestJob(uuid.NewString(), documents, metadatas, time.Now().UTC())
	if err := domain.ValidateIngestJob(job); err != nil {
		return "", err
	}

	docs, err := json.Marshal(job.Documents)
	if err != nil {
		return "", fmt.Errorf("failed to encode documents: %w", err)
	}
	metas, err := json.Marshal(job.Metadatas)
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO ingest_jobs (id, documents, metadatas, status, retries, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		job.ID, docs, metas, job.Status, job.Retries, job.CreatedAt,
	)
	if err != nil {
		return "", err
	}
	return job.ID, nil
}

func (r *IngestJobRepository) Get(ctx context.Context, id string) (*domain.IngestJob, error) {
	job, err := scanIngestJob(r.db.QueryRow(ctx,
		`SELECT `+ingestJobColumns+` FROM ingest_jobs WHERE id = $1`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrIngestJobNotFound
	}
	return job, err
}

// GetPendingJobs claims up to a batch of pending jobs, oldest first. Rows
// locked by another claimer are skipped.
func (r *IngestJobRepository) GetPendingJobs(ctx context.Context) ([]*domain.IngestJob, error) {
	rows, err := r.db.Query(ctx,
		`WITH cte AS (
			 SELECT id
			 FROM ingest_jobs
			 WHERE status = $1
			 ORDER BY created_at ASC
			 FOR UPDATE SKIP LOCKED
			 LIMIT $2
		 )
		 UPDATE ingest_jobs
		 SET status = $3,
		     error = NULL,
		     processed_at = NULL
		 FROM cte
		 WHERE ingest_jobs.id = cte.id
		 RETURNING ingest_jobs.id, ingest_jobs.documents, ingest_jobs.metadatas, ingest_jobs.status,
		           ingest_jobs.retries, ingest_jobs.error, ingest_jobs.chunks_indexed,
		           ingest_jobs.created_at, ingest_jobs.processed_at`,
		domain.IngestJobStatusPending, claimBatchSize, domain.IngestJobStatusProcessing,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*domain.IngestJob
	for rows.Next() {
		job, err := scanIngestJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *IngestJobRepository) UpdateJobStatus(ctx context.Context, jobID string, status domain.IngestJobStatus, errMsg string, chunksIndexed int) error {
	if !domain.IsValidIngestJobStatus(status) {
		return domain.ErrInvalidIngestState
	}

	var processedAt *time.Time
	if status == domain.IngestJobStatusCompleted || status == domain.IngestJobStatusFailed {
		now := time.Now().UTC()
		processedAt = &now
	}

	var errPtr *string
	if errMsg != "" {
		errPtr = &errMsg
	}

	cmdTag, err := r.db.Exec(ctx,
		`UPDATE ingest_jobs SET status = $1, error = $2, chunks_indexed = $3, processed_at = $4 WHERE id = $5`,
		status, errPtr, chunksIndexed, processedAt, jobID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrIngestJobNotFound
	}
	return nil
}

func (r *IngestJobRepository) IncrementRetries(ctx context.Context, jobID string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE ingest_jobs SET retries = retries + 1 WHERE id = $1`,
		jobID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrIngestJobNotFound
	}
	return nil
}

func scanIngestJob(row pgx.Row) (*domain.IngestJob, error) {
	var (
		job        domain.IngestJob
		docs       []byte
		metas      []byte
		errMsg     pgtype.Text
		processed  pgtype.Timestamptz
		chunkCount int32
	)
	if err := row.Scan(&job.ID, &docs, &metas, &job.Status, &job.Retries, &errMsg, &chunkCount, &job.CreatedAt, &processed); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(docs, &job.Documents); err != nil {
		return nil, fmt.Errorf("failed to decode documents of job %s: %w", job.ID, err)
	}
	if err := json.Unmarshal(metas, &job.Metadatas); err != nil {
		return nil, fmt.Errorf("failed to decode metadata of job %s: %w", job.ID, err)
	}
	if errMsg.Valid {
		job.Error = errMsg.String
	}
	if processed.Valid {
		t := processed.Time
		job.ProcessedAt = &t
	}
	job.ChunksIndexed = int(chunkCount)
	return &job, nil
}
