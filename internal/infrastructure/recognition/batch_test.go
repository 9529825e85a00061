package recognition

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/invoice-ingest/internal/core/domain"
)

type recognizerFake struct {
	mu     sync.Mutex
	items  map[string][]domain.ExtractedItem
	errs   map[string]error
	delays map[string]time.Duration
	block  bool

	active    int
	maxActive int
}

func (f *recognizerFake) Recognize(ctx context.Context, file domain.SourceFile) ([]domain.ExtractedItem, error) {
	f.mu.Lock()
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if d := f.delays[file.Name]; d > 0 {
		time.Sleep(d)
	}
	if err := f.errs[file.Name]; err != nil {
		return nil, err
	}
	return f.items[file.Name], nil
}

func files(names ...string) []domain.SourceFile {
	out := make([]domain.SourceFile, 0, len(names))
	for _, name := range names {
		out = append(out, domain.SourceFile{DocumentID: "doc-" + name, Name: name})
	}
	return out
}

func TestBatchKeepsInputOrderAndDegradesPerDocument(t *testing.T) {
	recognizer := &recognizerFake{
		items: map[string][]domain.ExtractedItem{
			"a.pdf": {{Page: 1, Term: "Total", Value: "10"}},
			"c.pdf": {{Page: 1, Term: "VAT", Value: "2"}},
		},
		errs:   map[string]error{"b.pdf": errors.New("model exploded")},
		delays: map[string]time.Duration{"a.pdf": 20 * time.Millisecond},
	}
	batch := NewBatch(recognizer, 3, nil)

	out, err := batch.Extract(context.Background(), files("a.pdf", "b.pdf", "c.pdf"), nil)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 results, got %d", len(out))
	}
	for i, name := range []string{"a.pdf", "b.pdf", "c.pdf"} {
		if out[i].Name != name || out[i].DocumentID != "doc-"+name {
			t.Fatalf("result %d out of order: %#v", i, out[i])
		}
	}
	if out[1].Err == nil || len(out[1].Items) != 0 {
		t.Fatalf("expected per-document error for b.pdf, got %#v", out[1])
	}
	if out[0].Err != nil || len(out[0].Items) != 1 || out[2].Items[0].Term != "VAT" {
		t.Fatalf("unexpected successful results: %#v", out)
	}
}

func TestBatchProgressIsMonotonic(t *testing.T) {
	recognizer := &recognizerFake{}
	batch := NewBatch(recognizer, 4, nil)

	var (
		mu       sync.Mutex
		currents []int
	)
	onProgress := func(_ context.Context, current, total int, _ string) error {
		mu.Lock()
		defer mu.Unlock()
		if total != 6 {
			t.Errorf("unexpected total %d", total)
		}
		currents = append(currents, current)
		return nil
	}

	if _, err := batch.Extract(context.Background(), files("1", "2", "3", "4", "5", "6"), onProgress); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(currents) != 6 {
		t.Fatalf("expected 6 progress calls, got %v", currents)
	}
	for i, current := range currents {
		if current != i+1 {
			t.Fatalf("expected progress %d at call %d, got %v", i+1, i, currents)
		}
	}
}

func TestBatchRespectsConcurrencyLimit(t *testing.T) {
	recognizer := &recognizerFake{delays: map[string]time.Duration{
		"1": 10 * time.Millisecond, "2": 10 * time.Millisecond, "3": 10 * time.Millisecond,
		"4": 10 * time.Millisecond, "5": 10 * time.Millisecond,
	}}
	batch := NewBatch(recognizer, 2, nil)

	if _, err := batch.Extract(context.Background(), files("1", "2", "3", "4", "5"), nil); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if recognizer.maxActive > 2 {
		t.Fatalf("expected at most 2 concurrent recognitions, got %d", recognizer.maxActive)
	}
}

func TestBatchAbortsOnContextEnd(t *testing.T) {
	recognizer := &recognizerFake{block: true}
	batch := NewBatch(recognizer, 2, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	out, err := batch.Extract(ctx, files("a", "b", "c"), nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if out != nil {
		t.Fatalf("expected no results on abort")
	}
}

func TestBatchStopsWhenProgressFails(t *testing.T) {
	batch := NewBatch(&recognizerFake{}, 1, nil)
	stop := errors.New("stop")

	_, err := batch.Extract(context.Background(), files("a", "b"), func(context.Context, int, int, string) error {
		return stop
	})
	if !errors.Is(err, stop) {
		t.Fatalf("expected progress error, got %v", err)
	}
}

func TestBatchEmptyInput(t *testing.T) {
	out, err := NewBatch(&recognizerFake{}, 0, nil).Extract(context.Background(), nil, nil)
	if err != nil || len(out) != 0 {
		t.Fatalf("expected empty result, got %v %v", out, err)
	}
}
