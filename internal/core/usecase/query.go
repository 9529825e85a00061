package usecase

import (
	"context"
	"fmt"

	"github.com/kirillkom/invoice-ingest/internal/core/domain"
	"github.com/kirillkom/invoice-ingest/internal/core/ports"
)

const (
	defaultJobListLimit      = 20
	maxJobListLimit          = 100
	defaultDocumentListLimit = 50
)

type QueryUseCase struct {
	jobs      ports.JobRepository
	documents ports.DocumentRepository
	results   ports.ResultRepository
}

func NewQueryUseCase(
	jobs ports.JobRepository,
	documents ports.DocumentRepository,
	results ports.ResultRepository,
) *QueryUseCase {
	return &QueryUseCase{
		jobs:      jobs,
		documents: documents,
		results:   results,
	}
}

func (uc *QueryUseCase) GetJob(ctx context.Context, ownerID, jobID string) (*domain.Job, error) {
	if err := requireOwner(ownerID, "get job"); err != nil {
		return nil, err
	}
	job, err := uc.jobs.GetByID(ctx, ownerID, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func (uc *QueryUseCase) ListJobs(ctx context.Context, ownerID string, limit int) ([]domain.Job, error) {
	if err := requireOwner(ownerID, "list jobs"); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultJobListLimit
	}
	if limit > maxJobListLimit {
		limit = maxJobListLimit
	}
	jobs, err := uc.jobs.ListByOwner(ctx, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// ListResults returns the job's rows in creation order. A job owned by someone else is reported as not found.
func (uc *QueryUseCase) ListResults(ctx context.Context, ownerID, jobID string) ([]domain.ExtractionResult, error) {
	if _, err := uc.GetJob(ctx, ownerID, jobID); err != nil {
		return nil, err
	}
	results, err := uc.results.ListByJob(ctx, ownerID, jobID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	return results, nil
}

func (uc *QueryUseCase) ListDocuments(ctx context.Context, ownerID string, limit int) ([]domain.Document, error) {
	if err := requireOwner(ownerID, "list documents"); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > defaultDocumentListLimit {
		limit = defaultDocumentListLimit
	}
	docs, err := uc.documents.ListByOwner(ctx, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}
