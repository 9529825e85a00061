package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/invoice-ingest/internal/core/domain"
	"github.com/kirillkom/invoice-ingest/internal/core/ports"
)

type ExportUseCase struct {
	jobs     ports.JobRepository
	results  ports.ResultRepository
	encoders map[string]ports.ResultEncoder
}

func NewExportUseCase(jobs ports.JobRepository, results ports.ResultRepository, encoders ...ports.ResultEncoder) *ExportUseCase {
	byFormat := make(map[string]ports.ResultEncoder, len(encoders))
	for _, enc := range encoders {
		byFormat[enc.Format()] = enc
	}
	return &ExportUseCase{
		jobs:     jobs,
		results:  results,
		encoders: byFormat,
	}
}

// Export renders the rows of a finished job. Unfinished jobs are a conflict, jobs without rows are not found.
func (uc *ExportUseCase) Export(ctx context.Context, ownerID, jobID, format string) (*domain.ExportFile, error) {
	if err := requireOwner(ownerID, "export results"); err != nil {
		return nil, err
	}
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = domain.ExportCSV
	}
	encoder, ok := uc.encoders[format]
	if !ok {
		return nil, domain.WrapError(domain.ErrInvalidInput, "export results", fmt.Errorf("unsupported format %q", format))
	}

	job, err := uc.jobs.GetByID(ctx, ownerID, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if job.Status != domain.JobDone {
		return nil, domain.WrapError(
			domain.ErrConflict,
			"export results",
			fmt.Errorf("job is %s, export is available once it is done", job.Status),
		)
	}

	results, err := uc.results.ListByJob(ctx, ownerID, jobID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	if len(results) == 0 {
		return nil, domain.WrapError(domain.ErrNotFound, "export results", errors.New("job has no extracted rows"))
	}

	data, err := encoder.Encode(results)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}
	return &domain.ExportFile{
		Filename:    fmt.Sprintf("extraction_%s.%s", shortID(jobID), format),
		ContentType: encoder.ContentType(),
		Data:        data,
	}, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
