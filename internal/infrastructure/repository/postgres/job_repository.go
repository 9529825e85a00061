package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/invoice-ingest/internal/core/domain"
)

type JobRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

const jobColumns = `id, owner_id, status, progress, message, document_count, documents_processed, total_records, run_claimed_at, created_at, updated_at`

func (r *JobRepository) Create(ctx context.Context, job *domain.Job) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO jobs (id, owner_id, status, progress, message, document_count, documents_processed, total_records, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`, job.ID, job.OwnerID, string(job.Status), job.Progress, job.Message, job.DocumentCount,
		job.DocumentsProcessed, job.TotalRecords, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *JobRepository) GetByID(ctx context.Context, ownerID, jobID string) (*domain.Job, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+jobColumns+`
FROM jobs
WHERE owner_id = $1 AND id = $2
`, ownerID, jobID)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get job", fmt.Errorf("job %s", jobID))
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	return &job, nil
}

func (r *JobRepository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]domain.Job, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+jobColumns+`
FROM jobs
WHERE owner_id = $1
ORDER BY created_at DESC
LIMIT $2
`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return out, nil
}

func (r *JobRepository) MarkRunning(ctx context.Context, ownerID, jobID string, documentCount int, message string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE jobs
SET status = $3, document_count = $4, message = $5, updated_at = $6
WHERE owner_id = $1 AND id = $2 AND status = $7
`, ownerID, jobID, string(domain.JobRunning), documentCount, message, r.now(), string(domain.JobQueued))
	if err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}
	return expectOneRow(result, domain.ErrConflict, "mark job running", jobID)
}

func (r *JobRepository) ClaimRun(ctx context.Context, ownerID, jobID string) error {
	now := r.now()
	result, err := r.db.ExecContext(ctx, `
UPDATE jobs
SET run_claimed_at = $3, updated_at = $3
WHERE owner_id = $1 AND id = $2 AND status = $4 AND run_claimed_at IS NULL
`, ownerID, jobID, now, string(domain.JobRunning))
	if err != nil {
		return fmt.Errorf("claim job run: %w", err)
	}
	return expectOneRow(result, domain.ErrRunAlreadyClaimed, "claim job run", jobID)
}

func (r *JobRepository) UpdateProgress(ctx context.Context, ownerID, jobID string, progress int, message string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE jobs
SET progress = GREATEST(progress, $3), message = $4, updated_at = $5
WHERE owner_id = $1 AND id = $2 AND status = $6
`, ownerID, jobID, progress, message, r.now(), string(domain.JobRunning))
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	return nil
}

func (r *JobRepository) Complete(ctx context.Context, ownerID, jobID string, documentsProcessed, totalRecords int, message string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE jobs
SET status = $3, progress = 100, documents_processed = $4, total_records = $5, message = $6, updated_at = $7
WHERE owner_id = $1 AND id = $2 AND status = $8
`, ownerID, jobID, string(domain.JobDone), documentsProcessed, totalRecords, message, r.now(), string(domain.JobRunning))
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return expectOneRow(result, domain.ErrConflict, "complete job", jobID)
}

// Fail moves a queued or running job to error. Jobs already in a terminal state are left as they are.
func (r *JobRepository) Fail(ctx context.Context, ownerID, jobID string, message string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE jobs
SET status = $3, message = $4, updated_at = $5
WHERE owner_id = $1 AND id = $2 AND status IN ($6, $7)
`, ownerID, jobID, string(domain.JobError), message, r.now(), string(domain.JobQueued), string(domain.JobRunning))
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

func scanJob(row rowScanner) (domain.Job, error) {
	var job domain.Job
	var status string
	var claimedAt sql.NullTime
	err := row.Scan(
		&job.ID,
		&job.OwnerID,
		&status,
		&job.Progress,
		&job.Message,
		&job.DocumentCount,
		&job.DocumentsProcessed,
		&job.TotalRecords,
		&claimedAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return domain.Job{}, err
	}
	job.Status = domain.JobStatus(status)
	if claimedAt.Valid {
		t := claimedAt.Time
		job.RunClaimedAt = &t
	}
	return job, nil
}

func expectOneRow(result sql.Result, kind error, operation, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if rows == 0 {
		return domain.WrapError(kind, operation, fmt.Errorf("no matching row for id=%s", id))
	}
	return nil
}
