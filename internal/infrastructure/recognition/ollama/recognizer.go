package ollama

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kirillkom/invoice-ingest/internal/core/domain"
	"github.com/kirillkom/invoice-ingest/internal/infrastructure/extractor/pdftext"
	"github.com/kirillkom/invoice-ingest/internal/infrastructure/extractor/plaintext"
	llm "github.com/kirillkom/invoice-ingest/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/invoice-ingest/internal/infrastructure/recognition"
)

// ErrNoTextLayer is returned for PDFs whose pages carry no extractable text.
var ErrNoTextLayer = errors.New("pdf has no text layer")

type chatClient interface {
	ChatJSON(ctx context.Context, messages []llm.ChatMessage) (string, error)
}

// Recognizer reads invoices through an Ollama vision model.
type Recognizer struct {
	client chatClient
	logger *slog.Logger
}

func NewRecognizer(client *llm.Client, logger *slog.Logger) *Recognizer {
	return newRecognizer(client, logger)
}

func newRecognizer(client chatClient, logger *slog.Logger) *Recognizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recognizer{client: client, logger: logger}
}

func (r *Recognizer) Recognize(ctx context.Context, file domain.SourceFile) ([]domain.ExtractedItem, error) {
	kind, _ := recognition.Detect(file.ContentType, file.Name, file.Data)
	switch kind {
	case recognition.KindImage:
		return r.ask(ctx, llm.ChatMessage{
			Role:    "user",
			Content: recognition.PagePrompt(file.Name, 1, 1),
			Images:  [][]byte{file.Data},
		}, 1)
	case recognition.KindText:
		text, err := plaintext.Decode(file.Name, file.Data)
		if err != nil {
			return nil, err
		}
		return r.ask(ctx, llm.ChatMessage{Role: "user", Content: recognition.TextPrompt(file.Name, 1, 1, text)}, 1)
	case recognition.KindPDF:
		return r.recognizePDF(ctx, file)
	default:
		return nil, fmt.Errorf("unsupported content type %q for %s", file.ContentType, file.Name)
	}
}

// recognizePDF sends every page with text separately. A failed page is skipped
// as long as at least one page was read.
func (r *Recognizer) recognizePDF(ctx context.Context, file domain.SourceFile) ([]domain.ExtractedItem, error) {
	pages, err := pdftext.Pages(file.Data)
	if err != nil {
		return nil, err
	}

	var (
		items   []domain.ExtractedItem
		lastErr error
		read    int
	)
	for i, text := range pages {
		if text == "" {
			continue
		}
		page := i + 1
		pageItems, err := r.ask(ctx, llm.ChatMessage{
			Role:    "user",
			Content: recognition.TextPrompt(file.Name, page, len(pages), text),
		}, page)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			lastErr = err
			r.logger.Warn("recognition.page.failed", "name", file.Name, "page", page, "error", err)
			continue
		}
		read++
		items = append(items, pageItems...)
	}

	switch {
	case read > 0:
		return items, nil
	case lastErr != nil:
		return nil, lastErr
	default:
		return nil, ErrNoTextLayer
	}
}

func (r *Recognizer) ask(ctx context.Context, user llm.ChatMessage, page int) ([]domain.ExtractedItem, error) {
	reply, err := r.client.ChatJSON(ctx, []llm.ChatMessage{
		{Role: "system", Content: recognition.Instructions()},
		user,
	})
	if errors.Is(err, llm.ErrInputRejected) {
		return nil, fmt.Errorf("%w: %w", recognition.ErrDocumentRejected, err)
	}
	if err != nil {
		return nil, err
	}
	return recognition.ParsePageItems(reply, page)
}
