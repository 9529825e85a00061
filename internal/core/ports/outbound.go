package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/invoice-ingest/internal/core/domain"
)

// JobRepository persists job lifecycle state. Every call is scoped by owner.
type JobRepository interface {
	Create(ctx context.Context, job *domain.Job) error
	GetByID(ctx context.Context, ownerID, jobID string) (*domain.Job, error)
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]domain.Job, error)
	// MarkRunning moves a queued job to running. It fails with ErrConflict when the job is not queued.
	MarkRunning(ctx context.Context, ownerID, jobID string, documentCount int, message string) error
	// ClaimRun marks a running job as taken by a runner. It fails with ErrRunAlreadyClaimed
	// when another runner already holds it.
	ClaimRun(ctx context.Context, ownerID, jobID string) error
	// UpdateProgress never lowers progress and never touches a job that is not running.
	UpdateProgress(ctx context.Context, ownerID, jobID string, progress int, message string) error
	Complete(ctx context.Context, ownerID, jobID string, documentsProcessed, totalRecords int, message string) error
	Fail(ctx context.Context, ownerID, jobID string, message string) error
}

// DocumentRepository persists uploaded document metadata.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, ownerID, documentID string) (*domain.Document, error)
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]domain.Document, error)
	UpdateStatus(ctx context.Context, ownerID, documentID string, status domain.DocumentStatus) error
}

// ResultRepository stores extracted rows. InsertBatch is all-or-nothing.
type ResultRepository interface {
	InsertBatch(ctx context.Context, results []domain.ExtractionResult) error
	ListByJob(ctx context.Context, ownerID, jobID string) ([]domain.ExtractionResult, error)
}

// SynonymRepository persists per-owner term mappings.
type SynonymRepository interface {
	ListByOwner(ctx context.Context, ownerID string) ([]domain.SynonymMapping, error)
	Create(ctx context.Context, mapping *domain.SynonymMapping) error
	Update(ctx context.Context, mapping *domain.SynonymMapping) error
	Delete(ctx context.Context, ownerID, id string) error
}

// ChatHistoryRepository keeps answered chat questions. An empty jobID lists across jobs.
type ChatHistoryRepository interface {
	Append(ctx context.Context, exchange *domain.ChatExchange) error
	List(ctx context.Context, ownerID, jobID string, limit int) ([]domain.ChatExchange, error)
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Store(ctx context.Context, ownerID, jobID, filename string, data io.Reader) (string, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// ProgressFunc receives batch extraction progress. current grows from 1 to total.
type ProgressFunc func(ctx context.Context, current, total int, name string) error

// BatchExtractor runs recognition over a batch of documents. The result keeps input order.
// Per-document failures are reported on DocumentExtraction.Err, not as a returned error.
type BatchExtractor interface {
	Extract(ctx context.Context, files []domain.SourceFile, onProgress ProgressFunc) ([]domain.DocumentExtraction, error)
}

// JobDispatcher hands a submitted job to a runner.
type JobDispatcher interface {
	Dispatch(ctx context.Context, ticket domain.JobTicket) error
}

// AnswerGenerator produces free text from a prompt.
type AnswerGenerator interface {
	GenerateFromPrompt(ctx context.Context, prompt string) (string, error)
}

// JobMetrics observes job execution.
type JobMetrics interface {
	StartJob()
	FinishJob(duration time.Duration, err error)
	ObserveQueueLag(lag time.Duration)
	AddDocuments(status domain.DocumentStatus, n int)
	AddResults(n int)
}

// ResultEncoder renders extraction rows into a downloadable file format.
type ResultEncoder interface {
	Format() string
	ContentType() string
	Encode(results []domain.ExtractionResult) ([]byte, error)
}
