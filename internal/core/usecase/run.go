package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/invoice-ingest/internal/core/domain"
	"github.com/kirillkom/invoice-ingest/internal/core/ports"
)

const (
	defaultFinalizePause = 500 * time.Millisecond
	defaultFailTimeout   = 5 * time.Second

	extractionProgressStart = 10
	extractionProgressSpan  = 60
)

type RunJobUseCase struct {
	jobs          ports.JobRepository
	documents     ports.DocumentRepository
	results       ports.ResultRepository
	synonyms      ports.SynonymRepository
	storage       ports.ObjectStorage
	extractor     ports.BatchExtractor
	metrics       ports.JobMetrics
	logger        *slog.Logger
	finalizePause time.Duration
	failTimeout   time.Duration
	now           func() time.Time
}

type RunOption func(*RunJobUseCase)

func WithRunLogger(logger *slog.Logger) RunOption {
	return func(uc *RunJobUseCase) {
		if logger != nil {
			uc.logger = logger
		}
	}
}

func WithRunMetrics(metrics ports.JobMetrics) RunOption {
	return func(uc *RunJobUseCase) {
		if metrics != nil {
			uc.metrics = metrics
		}
	}
}

// WithFinalizePause sets the pause between the finalizing checkpoint and completion. Zero disables it.
func WithFinalizePause(d time.Duration) RunOption {
	return func(uc *RunJobUseCase) {
		if d >= 0 {
			uc.finalizePause = d
		}
	}
}

func WithRunClock(now func() time.Time) RunOption {
	return func(uc *RunJobUseCase) {
		if now != nil {
			uc.now = now
		}
	}
}

func NewRunJobUseCase(
	jobs ports.JobRepository,
	documents ports.DocumentRepository,
	results ports.ResultRepository,
	synonyms ports.SynonymRepository,
	storage ports.ObjectStorage,
	extractor ports.BatchExtractor,
	opts ...RunOption,
) *RunJobUseCase {
	uc := &RunJobUseCase{
		jobs:          jobs,
		documents:     documents,
		results:       results,
		synonyms:      synonyms,
		storage:       storage,
		extractor:     extractor,
		metrics:       noopJobMetrics{},
		logger:        slog.Default(),
		finalizePause: defaultFinalizePause,
		failTimeout:   defaultFailTimeout,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Run drives one claimed job from extraction to a terminal state. A ticket whose job was already
// claimed by another runner is rejected without touching the job.
func (uc *RunJobUseCase) Run(ctx context.Context, ticket domain.JobTicket) error {
	if err := uc.jobs.ClaimRun(ctx, ticket.OwnerID, ticket.JobID); err != nil {
		return fmt.Errorf("claim run: %w", err)
	}

	started := uc.now()
	if !ticket.SubmittedAt.IsZero() {
		uc.metrics.ObserveQueueLag(started.Sub(ticket.SubmittedAt))
	}
	uc.metrics.StartJob()
	uc.logger.Info("job.run.start", "job_id", ticket.JobID, "owner_id", ticket.OwnerID, "documents", len(ticket.DocumentIDs))

	err := uc.execute(ctx, ticket)
	uc.metrics.FinishJob(uc.now().Sub(started), err)
	if err != nil {
		uc.logger.Error("job.run.failed", "job_id", ticket.JobID, "error", err)
		uc.fail(ctx, ticket, err)
		return err
	}

	uc.logger.Info("job.run.done", "job_id", ticket.JobID, "duration_ms", uc.now().Sub(started).Milliseconds())
	return nil
}

func (uc *RunJobUseCase) execute(ctx context.Context, ticket domain.JobTicket) error {
	if err := uc.checkpoint(ctx, ticket, 5, "initializing extraction"); err != nil {
		return domain.WrapError(domain.ErrRunFailed, "initialize", err)
	}

	resolver, err := LoadSynonymResolver(ctx, uc.synonyms, ticket.OwnerID)
	if err != nil {
		return domain.WrapError(domain.ErrRunFailed, "load synonyms", err)
	}
	uc.logger.Info("job.synonyms.loaded", "job_id", ticket.JobID, "mappings", resolver.Len())

	docs, sources, err := uc.loadSources(ctx, ticket)
	if err != nil {
		return domain.WrapError(domain.ErrRunFailed, "load documents", err)
	}

	extractions, err := uc.extractor.Extract(ctx, sources, uc.progressFunc(ticket))
	if err != nil {
		return domain.WrapError(domain.ErrRunFailed, "extract", err)
	}

	if err := uc.checkpoint(ctx, ticket, 75, "mapping extracted terms"); err != nil {
		return domain.WrapError(domain.ErrRunFailed, "map terms", err)
	}
	rows, processed := uc.mapResults(ctx, ticket, docs, extractions, resolver)

	if err := uc.checkpoint(ctx, ticket, 85, "saving extracted data"); err != nil {
		return domain.WrapError(domain.ErrRunFailed, "save results", err)
	}
	if len(rows) > 0 {
		if err := uc.results.InsertBatch(ctx, rows); err != nil {
			return domain.WrapError(domain.ErrPersistenceFailed, "save results", err)
		}
		uc.metrics.AddResults(len(rows))
	}
	for _, id := range processed {
		uc.markDocument(ctx, ticket, id, domain.DocumentProcessed)
	}

	if err := uc.checkpoint(ctx, ticket, 95, "finalizing"); err != nil {
		return domain.WrapError(domain.ErrRunFailed, "finalize", err)
	}
	if err := sleepContext(ctx, uc.finalizePause); err != nil {
		return domain.WrapError(domain.ErrRunFailed, "finalize", err)
	}

	submitted := ticket.SubmittedFiles
	if submitted <= 0 {
		submitted = len(ticket.DocumentIDs)
	}
	message := fmt.Sprintf("extracted %d financial terms from %d documents", len(rows), submitted)
	if err := uc.jobs.Complete(ctx, ticket.OwnerID, ticket.JobID, submitted, len(rows), message); err != nil {
		return domain.WrapError(domain.ErrRunFailed, "set status=done", err)
	}
	return nil
}

func (uc *RunJobUseCase) loadSources(ctx context.Context, ticket domain.JobTicket) (map[string]*domain.Document, []domain.SourceFile, error) {
	docs := make(map[string]*domain.Document, len(ticket.DocumentIDs))
	sources := make([]domain.SourceFile, 0, len(ticket.DocumentIDs))
	for _, id := range ticket.DocumentIDs {
		doc, err := uc.documents.GetByID(ctx, ticket.OwnerID, id)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, nil, ctxErr
			}
			uc.logger.Warn("job.document.missing", "job_id", ticket.JobID, "document_id", id, "error", err)
			continue
		}

		data, err := uc.readObject(ctx, doc.StoragePath)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, nil, ctxErr
			}
			uc.logger.Warn("job.document.unreadable", "job_id", ticket.JobID, "document_id", id, "error", err)
			uc.markDocument(ctx, ticket, id, domain.DocumentFailed)
			continue
		}

		docs[doc.ID] = doc
		sources = append(sources, domain.SourceFile{
			DocumentID:  doc.ID,
			Name:        doc.Name,
			ContentType: doc.ContentType,
			Data:        data,
		})
	}
	return docs, sources, nil
}

func (uc *RunJobUseCase) readObject(ctx context.Context, path string) ([]byte, error) {
	rc, err := uc.storage.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open object: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}

func (uc *RunJobUseCase) progressFunc(ticket domain.JobTicket) ports.ProgressFunc {
	return func(ctx context.Context, current, total int, name string) error {
		if total <= 0 {
			return nil
		}
		progress := extractionProgressStart + current*extractionProgressSpan/total
		message := fmt.Sprintf("extracting data from %s (%d/%d)", name, current, total)
		return uc.checkpoint(ctx, ticket, progress, message)
	}
}

func (uc *RunJobUseCase) mapResults(
	ctx context.Context,
	ticket domain.JobTicket,
	docs map[string]*domain.Document,
	extractions []domain.DocumentExtraction,
	resolver *SynonymResolver,
) ([]domain.ExtractionResult, []string) {
	now := uc.now()
	rows := make([]domain.ExtractionResult, 0)
	processed := make([]string, 0, len(extractions))

	for _, extraction := range extractions {
		doc, ok := docs[extraction.DocumentID]
		if !ok {
			uc.logger.Warn("job.document.skipped", "job_id", ticket.JobID, "document_id", extraction.DocumentID)
			continue
		}
		if extraction.Err != nil {
			uc.logger.Warn("job.document.recognition_failed", "job_id", ticket.JobID, "document_id", doc.ID, "error", extraction.Err)
			uc.metrics.AddDocuments(domain.DocumentFailed, 1)
			uc.markDocument(ctx, ticket, doc.ID, domain.DocumentFailed)
			continue
		}

		uc.metrics.AddDocuments(domain.DocumentProcessed, 1)
		processed = append(processed, doc.ID)
		if len(extraction.Items) == 0 {
			uc.logger.Info("job.document.empty",
				"job_id", ticket.JobID,
				"document_id", doc.ID,
				"reason", domain.ErrExtractionEmpty.Error(),
			)
			continue
		}

		for _, item := range extraction.Items {
			rows = append(rows, domain.ExtractionResult{
				ID:           uuid.NewString(),
				JobID:        ticket.JobID,
				OwnerID:      ticket.OwnerID,
				DocumentID:   doc.ID,
				DocumentName: doc.Name,
				Page:         item.Page,
				OriginalTerm: item.Term,
				Canonical:    resolver.Resolve(item.Term),
				Value:        item.Value,
				Confidence:   domain.ClampConfidence(item.Confidence),
				Evidence:     item.Evidence,
				CreatedAt:    now,
			})
		}
	}
	return rows, processed
}

// checkpoint writes progress and message. Store failures are logged; only a finished context stops the run.
func (uc *RunJobUseCase) checkpoint(ctx context.Context, ticket domain.JobTicket, progress int, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := uc.jobs.UpdateProgress(ctx, ticket.OwnerID, ticket.JobID, progress, message); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		uc.logger.Warn("job.checkpoint.write_failed", "job_id", ticket.JobID, "progress", progress, "error", err)
	}
	return nil
}

func (uc *RunJobUseCase) markDocument(ctx context.Context, ticket domain.JobTicket, documentID string, status domain.DocumentStatus) {
	if err := uc.documents.UpdateStatus(ctx, ticket.OwnerID, documentID, status); err != nil {
		uc.logger.Warn("job.document.status_write_failed",
			"job_id", ticket.JobID,
			"document_id", documentID,
			"status", status,
			"error", err,
		)
	}
}

func (uc *RunJobUseCase) fail(ctx context.Context, ticket domain.JobTicket, runErr error) {
	failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.failTimeout)
	defer cancel()

	if err := uc.jobs.Fail(failCtx, ticket.OwnerID, ticket.JobID, failureMessage(runErr)); err != nil {
		uc.logger.Error("job.fail.write_failed", "job_id", ticket.JobID, "error", err)
	}
}

func failureMessage(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrPersistenceFailed):
		return "saving extracted data failed: " + rootCause(err).Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "processing failed: timed out"
	case errors.Is(err, context.Canceled):
		return "processing failed: canceled"
	default:
		return "processing failed: " + rootCause(err).Error()
	}
}

// rootCause strips the kind and operation prefixes added by domain.WrapError.
func rootCause(err error) error {
	for {
		multi, ok := err.(interface{ Unwrap() []error })
		if !ok {
			return err
		}
		errs := multi.Unwrap()
		if len(errs) == 0 {
			return err
		}
		err = errs[len(errs)-1]
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type noopJobMetrics struct{}

func (noopJobMetrics) StartJob()                               {}
func (noopJobMetrics) FinishJob(time.Duration, error)          {}
func (noopJobMetrics) ObserveQueueLag(time.Duration)           {}
func (noopJobMetrics) AddDocuments(domain.DocumentStatus, int) {}
func (noopJobMetrics) AddResults(int)                          {}
