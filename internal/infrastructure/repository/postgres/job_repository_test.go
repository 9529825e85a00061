package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/invoice-ingest/internal/core/domain"
)

func newJobRepoWithMock(t *testing.T) (*JobRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return NewJobRepository(db), mock, func() { _ = db.Close() }
}

func TestJobGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newJobRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, owner_id, status, progress").
		WithArgs("owner-1", "missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "owner-1", "missing")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestJobGetByIDScansClaim(t *testing.T) {
	repo, mock, done := newJobRepoWithMock(t)
	defer done()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "owner_id", "status", "progress", "message", "document_count",
		"documents_processed", "total_records", "run_claimed_at", "created_at", "updated_at",
	}).AddRow("job-1", "owner-1", "running", 40, "extracting data from a.png (1/2)", 2, 0, 0, now, now, now)
	mock.ExpectQuery("SELECT id, owner_id, status, progress").
		WithArgs("owner-1", "job-1").
		WillReturnRows(rows)

	job, err := repo.GetByID(context.Background(), "owner-1", "job-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if job.Status != domain.JobRunning || job.Progress != 40 || job.DocumentCount != 2 {
		t.Fatalf("unexpected job: %+v", job)
	}
	if job.RunClaimedAt == nil || !job.RunClaimedAt.Equal(now) {
		t.Fatalf("expected run claim time, got %v", job.RunClaimedAt)
	}
}

func TestJobMarkRunningConflictWhenNotQueued(t *testing.T) {
	repo, mock, done := newJobRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE jobs").
		WithArgs("owner-1", "job-1", "running", 2, "processing 2 documents", sqlmock.AnyArg(), "queued").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkRunning(context.Background(), "owner-1", "job-1", 2, "processing 2 documents")
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestJobClaimRun(t *testing.T) {
	repo, mock, done := newJobRepoWithMock(t)
	defer done()

	mock.ExpectExec("SET run_claimed_at").
		WithArgs("owner-1", "job-1", sqlmock.AnyArg(), "running").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("SET run_claimed_at").
		WithArgs("owner-1", "job-1", sqlmock.AnyArg(), "running").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.ClaimRun(context.Background(), "owner-1", "job-1"); err != nil {
		t.Fatalf("first ClaimRun() error = %v", err)
	}
	err := repo.ClaimRun(context.Background(), "owner-1", "job-1")
	if !domain.IsKind(err, domain.ErrRunAlreadyClaimed) {
		t.Fatalf("expected ErrRunAlreadyClaimed, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestJobUpdateProgressIsGuarded(t *testing.T) {
	repo, mock, done := newJobRepoWithMock(t)
	defer done()

	mock.ExpectExec(`SET progress = GREATEST\(progress, \$3\)`).
		WithArgs("owner-1", "job-1", 75, "mapping extracted terms", sqlmock.AnyArg(), "running").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.UpdateProgress(context.Background(), "owner-1", "job-1", 75, "mapping extracted terms"); err != nil {
		t.Fatalf("UpdateProgress() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestJobCompleteAndFail(t *testing.T) {
	repo, mock, done := newJobRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE jobs").
		WithArgs("owner-1", "job-1", "done", 3, 12, "extracted 12 financial terms from 3 documents", sqlmock.AnyArg(), "running").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE jobs").
		WithArgs("owner-1", "job-2", "error", "processing failed: boom", sqlmock.AnyArg(), "queued", "running").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Complete(context.Background(), "owner-1", "job-1", 3, 12, "extracted 12 financial terms from 3 documents"); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if err := repo.Fail(context.Background(), "owner-1", "job-2", "processing failed: boom"); err != nil {
		t.Fatalf("Fail() on terminal job should be a no-op, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestEnsureSchemaTakesAdvisoryLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs(schemaLockKey).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS jobs").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := EnsureSchema(context.Background(), db); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
