package recognition

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/invoice-ingest/internal/core/domain"
	"github.com/kirillkom/invoice-ingest/internal/core/ports"
)

// ErrDocumentRejected marks a document the recognition service refused outright, such as an
// image the model cannot decode. The document fails on its own; the service is healthy.
var ErrDocumentRejected = errors.New("document rejected by recognition service")

// Recognizer extracts items from a single document.
type Recognizer interface {
	Recognize(ctx context.Context, file domain.SourceFile) ([]domain.ExtractedItem, error)
}

// Batch fans a set of documents out over a Recognizer.
type Batch struct {
	recognizer  Recognizer
	concurrency int
	logger      *slog.Logger
}

func NewBatch(recognizer Recognizer, concurrency int, logger *slog.Logger) *Batch {
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Batch{recognizer: recognizer, concurrency: concurrency, logger: logger}
}

var _ ports.BatchExtractor = (*Batch)(nil)

// Extract recognizes every file. A failed document gets Err set and no items;
// the batch itself only fails when ctx ends or onProgress returns an error.
func (b *Batch) Extract(ctx context.Context, files []domain.SourceFile, onProgress ports.ProgressFunc) ([]domain.DocumentExtraction, error) {
	out := make([]domain.DocumentExtraction, len(files))
	if len(files) == 0 {
		return out, nil
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(b.concurrency)

	var (
		mu        sync.Mutex
		completed int
	)
	report := func(name string) error {
		mu.Lock()
		defer mu.Unlock()
		completed++
		if onProgress == nil {
			return nil
		}
		return onProgress(groupCtx, completed, len(files), name)
	}

	for i, file := range files {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			started := time.Now()
			items, err := b.recognizer.Recognize(groupCtx, file)
			if err != nil && groupCtx.Err() != nil {
				return groupCtx.Err()
			}

			result := domain.DocumentExtraction{DocumentID: file.DocumentID, Name: file.Name}
			if err != nil {
				result.Err = err
				b.logger.Warn("recognition.document.failed",
					"document_id", file.DocumentID,
					"name", file.Name,
					"duration_ms", time.Since(started).Milliseconds(),
					"rejected", errors.Is(err, ErrDocumentRejected),
					"error", err,
				)
			} else {
				result.Items = items
				b.logger.Info("recognition.document.done",
					"document_id", file.DocumentID,
					"items", len(items),
					"duration_ms", time.Since(started).Milliseconds(),
				)
			}
			out[i] = result
			return report(file.Name)
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
