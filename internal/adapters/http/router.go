package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/invoice-ingest/internal/config"
	"github.com/kirillkom/invoice-ingest/internal/core/domain"
	"github.com/kirillkom/invoice-ingest/internal/core/ports"
	"github.com/kirillkom/invoice-ingest/internal/observability/metrics"
)

const (
	serviceName       = "api"
	multipartMemory   = 32 << 20
	maxJSONBodyBytes  = 1 << 20
	defaultUploadSize = 50 << 20
)

type Services struct {
	Submit   ports.JobSubmitter
	Query    ports.JobReader
	Synonyms ports.SynonymManager
	Export   ports.ResultExporter
	Chat     ports.JobChat
}

type Router struct {
	services Services
	cfg      config.Config
	metrics  *metrics.HTTPServerMetrics
	logger   *slog.Logger
}

type RouterOption func(*Router)

func WithMetrics(m *metrics.HTTPServerMetrics) RouterOption {
	return func(rt *Router) { rt.metrics = m }
}

func WithLogger(logger *slog.Logger) RouterOption {
	return func(rt *Router) {
		if logger != nil {
			rt.logger = logger
		}
	}
}

func NewRouter(cfg config.Config, services Services, opts ...RouterOption) *Router {
	rt := &Router{
		services: services,
		cfg:      cfg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	upload := backpressureMiddleware(rt.owned(rt.submitJob), rt.cfg.APIMaxInFlightUploads, rt.cfg.APIUploadWaitTimeout)
	mux.Handle("POST /v1/jobs", upload)
	mux.Handle("GET /v1/jobs", rt.owned(rt.listJobs))
	mux.Handle("GET /v1/jobs/{id}", rt.owned(rt.getJob))
	mux.Handle("GET /v1/jobs/{id}/results", rt.owned(rt.listResults))
	mux.Handle("GET /v1/jobs/{id}/export", rt.owned(rt.exportResults))
	mux.Handle("POST /v1/jobs/{id}/chat", rt.owned(rt.chat))
	mux.Handle("GET /v1/chat/history", rt.owned(rt.chatHistory))
	mux.Handle("GET /v1/documents", rt.owned(rt.listDocuments))
	mux.Handle("GET /v1/synonyms", rt.owned(rt.listSynonyms))
	mux.Handle("POST /v1/synonyms", rt.owned(rt.createSynonym))
	mux.Handle("PUT /v1/synonyms/{id}", rt.owned(rt.updateSynonym))
	mux.Handle("DELETE /v1/synonyms/{id}", rt.owned(rt.deleteSynonym))

	var handler http.Handler = mux
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

type ownedHandler func(w http.ResponseWriter, r *http.Request, ownerID string)

// owned rejects requests without an owner id header.
func (rt *Router) owned(next ownedHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ownerID := strings.TrimSpace(r.Header.Get(ownerIDHeader))
		if ownerID == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing " + ownerIDHeader + " header"})
			return
		}
		next(w, r, ownerID)
	})
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) submitJob(w http.ResponseWriter, r *http.Request, ownerID string) {
	maxBytes := rt.cfg.APIMaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = defaultUploadSize
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": fmt.Sprintf("upload exceeds %d bytes", maxBytes)})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart form with field 'files' is required"})
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File["files"]
	if rt.cfg.APIMaxFilesPerJob > 0 && len(headers) > rt.cfg.APIMaxFilesPerJob {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("at most %d files per job", rt.cfg.APIMaxFilesPerJob)})
		return
	}

	uploads, closeAll, err := openUploads(headers)
	defer closeAll()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	job, err := rt.services.Submit.Submit(r.Context(), ownerID, uploads)
	if rt.metrics != nil {
		rt.metrics.RecordSubmission(serviceName, len(uploads), err)
	}
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID,
		"status": string(job.Status),
	})
}

func openUploads(headers []*multipart.FileHeader) ([]domain.Upload, func(), error) {
	files := make([]multipart.File, 0, len(headers))
	closeAll := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}

	uploads := make([]domain.Upload, 0, len(headers))
	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			return nil, closeAll, fmt.Errorf("open upload %s: %w", header.Filename, err)
		}
		files = append(files, f)
		uploads = append(uploads, domain.Upload{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Body:        f,
		})
	}
	return uploads, closeAll, nil
}

func (rt *Router) listJobs(w http.ResponseWriter, r *http.Request, ownerID string) {
	limit, err := queryLimit(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	jobs, err := rt.services.Query.ListJobs(r.Context(), ownerID, limit)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (rt *Router) getJob(w http.ResponseWriter, r *http.Request, ownerID string) {
	job, err := rt.services.Query.GetJob(r.Context(), ownerID, r.PathValue("id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (rt *Router) listResults(w http.ResponseWriter, r *http.Request, ownerID string) {
	results, err := rt.services.Query.ListResults(r.Context(), ownerID, r.PathValue("id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request, ownerID string) {
	documents, err := rt.services.Query.ListDocuments(r.Context(), ownerID, 0)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": documents})
}

func (rt *Router) exportResults(w http.ResponseWriter, r *http.Request, ownerID string) {
	format := r.URL.Query().Get("format")
	file, err := rt.services.Export.Export(r.Context(), ownerID, r.PathValue("id"), format)
	if rt.metrics != nil {
		rt.metrics.RecordExport(serviceName, strings.ToLower(format), err)
	}
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(file.Data)
}

func (rt *Router) chat(w http.ResponseWriter, r *http.Request, ownerID string) {
	var req struct {
		Question string            `json:"question"`
		History  []domain.ChatTurn `json:"history"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	start := time.Now()
	answer, err := rt.services.Chat.Ask(r.Context(), ownerID, r.PathValue("id"), req.Question, req.History)
	if rt.metrics != nil {
		rt.metrics.RecordChat(serviceName, time.Since(start), err)
	}
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) chatHistory(w http.ResponseWriter, r *http.Request, ownerID string) {
	limit, err := queryLimit(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	exchanges, err := rt.services.Chat.History(r.Context(), ownerID, r.URL.Query().Get("job_id"), limit)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exchanges)
}

type synonymRequest struct {
	Term      string `json:"term"`
	Canonical string `json:"canonical"`
}

func (rt *Router) listSynonyms(w http.ResponseWriter, r *http.Request, ownerID string) {
	mappings, err := rt.services.Synonyms.List(r.Context(), ownerID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"synonyms": mappings})
}

func (rt *Router) createSynonym(w http.ResponseWriter, r *http.Request, ownerID string) {
	var req synonymRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	mapping, err := rt.services.Synonyms.Create(r.Context(), ownerID, req.Term, req.Canonical)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapping)
}

func (rt *Router) updateSynonym(w http.ResponseWriter, r *http.Request, ownerID string) {
	var req synonymRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	mapping, err := rt.services.Synonyms.Update(r.Context(), ownerID, r.PathValue("id"), req.Term, req.Canonical)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapping)
}

func (rt *Router) deleteSynonym(w http.ResponseWriter, r *http.Request, ownerID string) {
	if err := rt.services.Synonyms.Delete(r.Context(), ownerID, r.PathValue("id")); err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		rt.logger.Error("http_handler_error",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func queryLimit(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("limit must be a non-negative integer")
	}
	return limit, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
