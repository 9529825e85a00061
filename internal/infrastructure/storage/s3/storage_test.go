package s3

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/kirillkom/invoice-ingest/internal/core/domain"
)

// fakeS3 serves path-style PUT/GET object requests from memory.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		raw, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = raw
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		raw, ok := f.objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			return
		}
		_, _ = w.Write(raw)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestStorage(t *testing.T) (*Storage, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	s, err := New(context.Background(), Options{
		Bucket:    "invoices",
		Region:    "us-east-1",
		Endpoint:  srv.URL,
		AccessKey: "test",
		SecretKey: "test",
		PathStyle: true,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s, fake
}

func TestStoreAndOpenRoundTrip(t *testing.T) {
	s, fake := newTestStorage(t)

	key, err := s.Store(context.Background(), "owner-1", "job-1", "invoice.pdf", strings.NewReader("%PDF-1.4"))
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if !strings.HasPrefix(key, "owner-1/job-1/") {
		t.Fatalf("unexpected key %q", key)
	}
	if _, ok := fake.objects["/invoices/"+key]; !ok {
		t.Fatalf("expected object under bucket path, have %v", fake.objects)
	}

	rc, err := s.Open(context.Background(), key)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	raw, _ := io.ReadAll(rc)
	if string(raw) != "%PDF-1.4" {
		t.Fatalf("unexpected body %q", raw)
	}
}

func TestOpenMissingKeyIsNotFound(t *testing.T) {
	s, _ := newTestStorage(t)

	_, err := s.Open(context.Background(), "owner-1/job-1/missing.png")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Options{}); err == nil {
		t.Fatalf("expected error without bucket")
	}
}
