package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/invoice-ingest/internal/core/domain"
	"github.com/kirillkom/invoice-ingest/internal/core/ports"
)

type SubmitJobUseCase struct {
	jobs       ports.JobRepository
	documents  ports.DocumentRepository
	storage    ports.ObjectStorage
	dispatcher ports.JobDispatcher
	logger     *slog.Logger
	now        func() time.Time
}

func NewSubmitJobUseCase(
	jobs ports.JobRepository,
	documents ports.DocumentRepository,
	storage ports.ObjectStorage,
	dispatcher ports.JobDispatcher,
	logger *slog.Logger,
) *SubmitJobUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubmitJobUseCase{
		jobs:       jobs,
		documents:  documents,
		storage:    storage,
		dispatcher: dispatcher,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Submit creates a job for the uploaded files, admits every file it can store and hands the
// job to a runner. It returns as soon as the hand-off is done.
func (uc *SubmitJobUseCase) Submit(ctx context.Context, ownerID string, files []domain.Upload) (*domain.Job, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, domain.WrapError(domain.ErrUnauthorized, "submit job", errors.New("owner id is required"))
	}
	if err := validateUploads(files); err != nil {
		return nil, domain.WrapError(domain.ErrSubmissionFailed, "submit job", err)
	}

	now := uc.now()
	job := &domain.Job{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Status:    domain.JobQueued,
		Progress:  0,
		Message:   "queued",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uc.jobs.Create(ctx, job); err != nil {
		return nil, domain.WrapError(domain.ErrSubmissionFailed, "create job", err)
	}

	admitted := uc.admitDocuments(ctx, job, files)
	if len(admitted) == 0 {
		uc.failJob(ctx, job, "no documents could be stored")
		return nil, domain.WrapError(
			domain.ErrSubmissionFailed,
			"admit documents",
			fmt.Errorf("0 of %d documents admitted", len(files)),
		)
	}

	message := fmt.Sprintf("processing %d documents", len(admitted))
	if err := uc.jobs.MarkRunning(ctx, ownerID, job.ID, len(admitted), message); err != nil {
		uc.failJob(ctx, job, "could not start processing")
		return nil, domain.WrapError(domain.ErrSubmissionFailed, "set status=running", err)
	}

	ticket := domain.JobTicket{
		JobID:          job.ID,
		OwnerID:        ownerID,
		DocumentIDs:    documentIDs(admitted),
		SubmittedFiles: len(files),
		SubmittedAt:    now,
	}
	if err := uc.dispatcher.Dispatch(ctx, ticket); err != nil {
		uc.failJob(ctx, job, "could not schedule processing: "+err.Error())
		return nil, domain.WrapError(domain.ErrSubmissionFailed, "dispatch job", err)
	}

	job.Status = domain.JobRunning
	job.Message = message
	job.DocumentCount = len(admitted)
	uc.logger.Info("job.submitted",
		"job_id", job.ID,
		"owner_id", ownerID,
		"submitted", len(files),
		"admitted", len(admitted),
	)
	return job, nil
}

func (uc *SubmitJobUseCase) admitDocuments(ctx context.Context, job *domain.Job, files []domain.Upload) []domain.Document {
	admitted := make([]domain.Document, 0, len(files))
	for _, file := range files {
		doc, err := uc.admitDocument(ctx, job, file)
		if err != nil {
			uc.logger.Warn("job.document.rejected",
				"job_id", job.ID,
				"name", file.Name,
				"error", domain.WrapError(domain.ErrDocumentAdmissionFailed, "admit document", err),
			)
			continue
		}
		admitted = append(admitted, *doc)
	}
	return admitted
}

func (uc *SubmitJobUseCase) admitDocument(ctx context.Context, job *domain.Job, file domain.Upload) (*domain.Document, error) {
	path, err := uc.storage.Store(ctx, job.OwnerID, job.ID, file.Name, file.Body)
	if err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	now := uc.now()
	doc := &domain.Document{
		ID:          uuid.NewString(),
		OwnerID:     job.OwnerID,
		JobID:       job.ID,
		Name:        file.Name,
		ContentType: file.ContentType,
		StoragePath: path,
		Size:        file.Size,
		Status:      domain.DocumentUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := uc.documents.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document metadata: %w", err)
	}
	return doc, nil
}

func (uc *SubmitJobUseCase) failJob(ctx context.Context, job *domain.Job, message string) {
	if err := uc.jobs.Fail(ctx, job.OwnerID, job.ID, message); err != nil {
		uc.logger.Error("job.fail.write_failed", "job_id", job.ID, "error", err)
	}
}

func validateUploads(files []domain.Upload) error {
	if len(files) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "validate uploads", errors.New("no files provided"))
	}
	for i, file := range files {
		if strings.TrimSpace(file.Name) == "" {
			return domain.WrapError(domain.ErrInvalidInput, "validate uploads", fmt.Errorf("file %d has no name", i+1))
		}
		if file.Body == nil || file.Size < 0 {
			return domain.WrapError(domain.ErrInvalidInput, "validate uploads", fmt.Errorf("file %q has no content", file.Name))
		}
	}
	return nil
}

func documentIDs(docs []domain.Document) []string {
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.ID)
	}
	return ids
}
