package ports

import (
	"context"

	"github.com/kirillkom/invoice-ingest/internal/core/domain"
)

// JobSubmitter is the inbound contract for batch upload orchestration.
type JobSubmitter interface {
	Submit(ctx context.Context, ownerID string, files []domain.Upload) (*domain.Job, error)
}

// JobRunner is the inbound contract for asynchronous job processing.
type JobRunner interface {
	Run(ctx context.Context, ticket domain.JobTicket) error
}

// JobReader is the inbound read model for job state and extracted rows.
type JobReader interface {
	GetJob(ctx context.Context, ownerID, jobID string) (*domain.Job, error)
	ListJobs(ctx context.Context, ownerID string, limit int) ([]domain.Job, error)
	ListResults(ctx context.Context, ownerID, jobID string) ([]domain.ExtractionResult, error)
	ListDocuments(ctx context.Context, ownerID string, limit int) ([]domain.Document, error)
}

// SynonymManager is the inbound contract for the synonym management surface.
type SynonymManager interface {
	List(ctx context.Context, ownerID string) ([]domain.SynonymMapping, error)
	Create(ctx context.Context, ownerID, term, canonical string) (*domain.SynonymMapping, error)
	Update(ctx context.Context, ownerID, id, term, canonical string) (*domain.SynonymMapping, error)
	Delete(ctx context.Context, ownerID, id string) error
}

// ResultExporter renders a finished job's rows into a downloadable file.
type ResultExporter interface {
	Export(ctx context.Context, ownerID, jobID, format string) (*domain.ExportFile, error)
}

// JobChat answers free-text questions over a job's extracted rows and keeps the answered ones.
type JobChat interface {
	Ask(ctx context.Context, ownerID, jobID, question string, history []domain.ChatTurn) (*domain.ChatAnswer, error)
	History(ctx context.Context, ownerID, jobID string, limit int) ([]domain.ChatExchange, error)
}
