package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/kirillkom/invoice-ingest/internal/core/domain"
	"github.com/kirillkom/invoice-ingest/internal/core/ports"
)

type jobSnapshot struct {
	status   domain.JobStatus
	progress int
	message  string
}

// jobStoreFake mirrors the guarded writes of the SQL repository.
type jobStoreFake struct {
	mu          sync.Mutex
	jobs        map[string]*domain.Job
	history     []jobSnapshot
	createErr   error
	progressErr error
	completeErr error
	failCalls   int
}

func newJobStoreFake() *jobStoreFake {
	return &jobStoreFake{jobs: map[string]*domain.Job{}}
}

func (f *jobStoreFake) record(job *domain.Job) {
	f.history = append(f.history, jobSnapshot{status: job.Status, progress: job.Progress, message: job.Message})
}

func (f *jobStoreFake) lookup(ownerID, jobID string) (*domain.Job, error) {
	job, ok := f.jobs[jobID]
	if !ok || job.OwnerID != ownerID {
		return nil, domain.WrapError(domain.ErrNotFound, "get job", fmt.Errorf("job %s", jobID))
	}
	return job, nil
}

func (f *jobStoreFake) Create(_ context.Context, job *domain.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	copyJob := *job
	f.jobs[job.ID] = &copyJob
	f.record(&copyJob)
	return nil
}

func (f *jobStoreFake) GetByID(_ context.Context, ownerID, jobID string) (*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, err := f.lookup(ownerID, jobID)
	if err != nil {
		return nil, err
	}
	copyJob := *job
	return &copyJob, nil
}

func (f *jobStoreFake) ListByOwner(_ context.Context, ownerID string, limit int) ([]domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Job, 0)
	for _, job := range f.jobs {
		if job.OwnerID == ownerID {
			out = append(out, *job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *jobStoreFake) MarkRunning(_ context.Context, ownerID, jobID string, documentCount int, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, err := f.lookup(ownerID, jobID)
	if err != nil {
		return err
	}
	if job.Status != domain.JobQueued {
		return domain.WrapError(domain.ErrConflict, "mark running", errors.New("job is not queued"))
	}
	job.Status = domain.JobRunning
	job.DocumentCount = documentCount
	job.Message = message
	f.record(job)
	return nil
}

func (f *jobStoreFake) ClaimRun(_ context.Context, ownerID, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, err := f.lookup(ownerID, jobID)
	if err != nil {
		return err
	}
	if job.Status != domain.JobRunning || job.RunClaimedAt != nil {
		return domain.WrapError(domain.ErrRunAlreadyClaimed, "claim run", fmt.Errorf("job %s", jobID))
	}
	now := job.CreatedAt
	job.RunClaimedAt = &now
	return nil
}

func (f *jobStoreFake) UpdateProgress(_ context.Context, ownerID, jobID string, progress int, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.progressErr != nil {
		return f.progressErr
	}
	job, err := f.lookup(ownerID, jobID)
	if err != nil {
		return err
	}
	if job.Status != domain.JobRunning {
		return nil
	}
	job.Progress = max(job.Progress, progress)
	job.Message = message
	f.record(job)
	return nil
}

func (f *jobStoreFake) Complete(_ context.Context, ownerID, jobID string, documentsProcessed, totalRecords int, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completeErr != nil {
		return f.completeErr
	}
	job, err := f.lookup(ownerID, jobID)
	if err != nil {
		return err
	}
	if job.Status != domain.JobRunning {
		return domain.WrapError(domain.ErrConflict, "complete job", errors.New("job is not running"))
	}
	job.Status = domain.JobDone
	job.Progress = 100
	job.Message = message
	job.DocumentsProcessed = documentsProcessed
	job.TotalRecords = totalRecords
	f.record(job)
	return nil
}

func (f *jobStoreFake) Fail(ctx context.Context, ownerID, jobID string, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failCalls++
	if err := ctx.Err(); err != nil {
		return err
	}
	job, err := f.lookup(ownerID, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return nil
	}
	job.Status = domain.JobError
	job.Message = message
	f.record(job)
	return nil
}

func (f *jobStoreFake) only() *domain.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, job := range f.jobs {
		copyJob := *job
		return &copyJob
	}
	return nil
}

type documentStoreFake struct {
	mu        sync.Mutex
	docs      map[string]*domain.Document
	order     []string
	createErr map[string]error
	statuses  map[string][]domain.DocumentStatus
}

func newDocumentStoreFake() *documentStoreFake {
	return &documentStoreFake{
		docs:      map[string]*domain.Document{},
		createErr: map[string]error{},
		statuses:  map[string][]domain.DocumentStatus{},
	}
}

func (f *documentStoreFake) Create(_ context.Context, doc *domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.createErr[doc.Name]; err != nil {
		return err
	}
	copyDoc := *doc
	f.docs[doc.ID] = &copyDoc
	f.order = append(f.order, doc.ID)
	return nil
}

func (f *documentStoreFake) GetByID(_ context.Context, ownerID, documentID string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[documentID]
	if !ok || doc.OwnerID != ownerID {
		return nil, domain.WrapError(domain.ErrNotFound, "get document", fmt.Errorf("document %s", documentID))
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (f *documentStoreFake) ListByOwner(_ context.Context, ownerID string, limit int) ([]domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Document, 0)
	for _, id := range f.order {
		if doc := f.docs[id]; doc.OwnerID == ownerID && len(out) < limit {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (f *documentStoreFake) UpdateStatus(_ context.Context, ownerID, documentID string, status domain.DocumentStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[documentID]
	if !ok || doc.OwnerID != ownerID {
		return domain.WrapError(domain.ErrNotFound, "update document", fmt.Errorf("document %s", documentID))
	}
	doc.Status = status
	f.statuses[documentID] = append(f.statuses[documentID], status)
	return nil
}

func (f *documentStoreFake) byName(name string) *domain.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, doc := range f.docs {
		if doc.Name == name {
			copyDoc := *doc
			return &copyDoc
		}
	}
	return nil
}

type storageFake struct {
	mu       sync.Mutex
	objects  map[string][]byte
	storeErr map[string]error
	openErr  error
}

func newStorageFake() *storageFake {
	return &storageFake{objects: map[string][]byte{}, storeErr: map[string]error{}}
}

func (f *storageFake) Store(_ context.Context, ownerID, jobID, filename string, data io.Reader) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.storeErr[filename]; err != nil {
		return "", err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	path := ownerID + "/" + jobID + "/" + filename
	f.objects[path] = raw
	return path, nil
}

func (f *storageFake) Open(_ context.Context, path string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	raw, ok := f.objects[path]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "open object", errors.New(path))
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

type dispatcherFake struct {
	tickets []domain.JobTicket
	err     error
}

func (f *dispatcherFake) Dispatch(_ context.Context, ticket domain.JobTicket) error {
	if f.err != nil {
		return f.err
	}
	f.tickets = append(f.tickets, ticket)
	return nil
}

// extractorFake reports items per file name and calls onProgress once per file.
type extractorFake struct {
	items map[string][]domain.ExtractedItem
	errs  map[string]error
	block bool
	seen  []domain.SourceFile
}

func (f *extractorFake) Extract(ctx context.Context, files []domain.SourceFile, onProgress ports.ProgressFunc) ([]domain.DocumentExtraction, error) {
	f.seen = append(f.seen, files...)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	out := make([]domain.DocumentExtraction, 0, len(files))
	for i, file := range files {
		out = append(out, domain.DocumentExtraction{
			DocumentID: file.DocumentID,
			Name:       file.Name,
			Items:      f.items[file.Name],
			Err:        f.errs[file.Name],
		})
		if err := onProgress(ctx, i+1, len(files), file.Name); err != nil {
			return nil, err
		}
	}
	return out, nil
}

type resultStoreFake struct {
	mu   sync.Mutex
	rows []domain.ExtractionResult
	err  error
}

func (f *resultStoreFake) InsertBatch(_ context.Context, results []domain.ExtractionResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, results...)
	return nil
}

func (f *resultStoreFake) ListByJob(_ context.Context, ownerID, jobID string) ([]domain.ExtractionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.ExtractionResult, 0)
	for _, row := range f.rows {
		if row.OwnerID == ownerID && row.JobID == jobID {
			out = append(out, row)
		}
	}
	return out, nil
}

type synonymStoreFake struct {
	mu       sync.Mutex
	mappings []domain.SynonymMapping
	listErr  error
}

func (f *synonymStoreFake) ListByOwner(_ context.Context, ownerID string) ([]domain.SynonymMapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.SynonymMapping, 0)
	for _, m := range f.mappings {
		if m.OwnerID == ownerID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *synonymStoreFake) Create(_ context.Context, mapping *domain.SynonymMapping) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.mappings {
		if m.OwnerID == mapping.OwnerID && strings.EqualFold(m.Term, mapping.Term) {
			return domain.WrapError(domain.ErrConflict, "create synonym", errors.New("term already mapped"))
		}
	}
	f.mappings = append(f.mappings, *mapping)
	return nil
}

func (f *synonymStoreFake) Update(_ context.Context, mapping *domain.SynonymMapping) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, m := range f.mappings {
		if m.ID == mapping.ID && m.OwnerID == mapping.OwnerID {
			mapping.CreatedAt = m.CreatedAt
			f.mappings[i] = *mapping
			return nil
		}
	}
	return domain.WrapError(domain.ErrNotFound, "update synonym", errors.New(mapping.ID))
}

func (f *synonymStoreFake) Delete(_ context.Context, ownerID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, m := range f.mappings {
		if m.ID == id && m.OwnerID == ownerID {
			f.mappings = append(f.mappings[:i], f.mappings[i+1:]...)
			return nil
		}
	}
	return domain.WrapError(domain.ErrNotFound, "delete synonym", errors.New(id))
}

func upload(name, body string) domain.Upload {
	return domain.Upload{
		Name:        name,
		ContentType: "image/png",
		Size:        int64(len(body)),
		Body:        strings.NewReader(body),
	}
}

func strPtr(s string) *string { return &s }
