package httpadapter

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/kirillkom/invoice-ingest/internal/config"
	"github.com/kirillkom/invoice-ingest/internal/core/domain"
)

type submitFake struct {
	err      error
	owner    string
	received []receivedUpload
}

type receivedUpload struct {
	name        string
	contentType string
	body        string
}

func (f *submitFake) Submit(_ context.Context, ownerID string, files []domain.Upload) (*domain.Job, error) {
	f.owner = ownerID
	for _, file := range files {
		raw, err := io.ReadAll(file.Body)
		if err != nil {
			return nil, err
		}
		f.received = append(f.received, receivedUpload{name: file.Name, contentType: file.ContentType, body: string(raw)})
	}
	if f.err != nil {
		return nil, f.err
	}
	if len(files) == 0 {
		return nil, domain.WrapError(domain.ErrSubmissionFailed, "submit job",
			domain.WrapError(domain.ErrInvalidInput, "validate uploads", errors.New("no files provided")))
	}
	return &domain.Job{ID: "job-1", OwnerID: ownerID, Status: domain.JobRunning}, nil
}

type queryFake struct {
	jobs      map[string]*domain.Job
	results   []domain.ExtractionResult
	lastLimit int
}

func (f *queryFake) GetJob(_ context.Context, ownerID, jobID string) (*domain.Job, error) {
	job, ok := f.jobs[jobID]
	if !ok || job.OwnerID != ownerID {
		return nil, domain.WrapError(domain.ErrNotFound, "get job", errors.New("id="+jobID))
	}
	return job, nil
}

func (f *queryFake) ListJobs(_ context.Context, ownerID string, limit int) ([]domain.Job, error) {
	f.lastLimit = limit
	var out []domain.Job
	for _, job := range f.jobs {
		if job.OwnerID == ownerID {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (f *queryFake) ListResults(ctx context.Context, ownerID, jobID string) ([]domain.ExtractionResult, error) {
	if _, err := f.GetJob(ctx, ownerID, jobID); err != nil {
		return nil, err
	}
	return f.results, nil
}

func (f *queryFake) ListDocuments(context.Context, string, int) ([]domain.Document, error) {
	return []domain.Document{{ID: "doc-1", Name: "a.pdf", Status: domain.DocumentProcessed}}, nil
}

type synonymsFake struct {
	err     error
	deleted string
}

func (f *synonymsFake) List(_ context.Context, ownerID string) ([]domain.SynonymMapping, error) {
	return []domain.SynonymMapping{{ID: "s1", OwnerID: ownerID, Term: "Amount Due", Canonical: "total_amount"}}, nil
}

func (f *synonymsFake) Create(_ context.Context, ownerID, term, canonical string) (*domain.SynonymMapping, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.SynonymMapping{ID: "s2", OwnerID: ownerID, Term: term, Canonical: canonical}, nil
}

func (f *synonymsFake) Update(_ context.Context, ownerID, id, term, canonical string) (*domain.SynonymMapping, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.SynonymMapping{ID: id, OwnerID: ownerID, Term: term, Canonical: canonical}, nil
}

func (f *synonymsFake) Delete(_ context.Context, _ string, id string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = id
	return nil
}

type exportFake struct {
	err    error
	format string
}

func (f *exportFake) Export(_ context.Context, _ string, jobID, format string) (*domain.ExportFile, error) {
	f.format = format
	if f.err != nil {
		return nil, f.err
	}
	return &domain.ExportFile{
		Filename:    "extraction_" + jobID + ".csv",
		ContentType: "text/csv; charset=utf-8",
		Data:        []byte("Document Name\n"),
	}, nil
}

type chatFake struct {
	question     string
	history      []domain.ChatTurn
	historyJob   string
	historyLimit int
}

func (f *chatFake) Ask(_ context.Context, _ string, _ string, question string, history []domain.ChatTurn) (*domain.ChatAnswer, error) {
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ask", errors.New("question is required"))
	}
	f.question = question
	f.history = history
	return &domain.ChatAnswer{Answer: "The total is 10.", Records: 3}, nil
}

func (f *chatFake) History(_ context.Context, ownerID, jobID string, limit int) ([]domain.ChatExchange, error) {
	if jobID != "" && jobID != "job-1" {
		return nil, domain.WrapError(domain.ErrNotFound, "chat history", errors.New("job not found"))
	}
	f.historyJob = jobID
	f.historyLimit = limit
	return []domain.ChatExchange{
		{ID: "c1", OwnerID: ownerID, JobID: "job-1", Question: "What is the total?", Answer: "The total is 10."},
	}, nil
}

type testServices struct {
	submit   *submitFake
	query    *queryFake
	synonyms *synonymsFake
	export   *exportFake
	chat     *chatFake
}

func newTestServices() *testServices {
	return &testServices{
		submit: &submitFake{},
		query: &queryFake{jobs: map[string]*domain.Job{
			"job-1": {ID: "job-1", OwnerID: "owner-1", Status: domain.JobDone, Progress: 100, CreatedAt: time.Now()},
		}},
		synonyms: &synonymsFake{},
		export:   &exportFake{},
		chat:     &chatFake{},
	}
}

func (s *testServices) handler(cfg config.Config) http.Handler {
	return NewRouter(cfg, Services{
		Submit:   s.submit,
		Query:    s.query,
		Synonyms: s.synonyms,
		Export:   s.export,
		Chat:     s.chat,
	}).Handler()
}

func newTestHandler(cfg config.Config) http.Handler {
	return newTestServices().handler(cfg)
}
