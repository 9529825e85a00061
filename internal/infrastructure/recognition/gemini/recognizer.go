package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/kirillkom/invoice-ingest/internal/core/domain"
	"github.com/kirillkom/invoice-ingest/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/invoice-ingest/internal/infrastructure/recognition"
	"github.com/kirillkom/invoice-ingest/internal/infrastructure/resilience"
)

const defaultModel = "gemini-2.5-flash"

type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Recognizer reads invoices through Google Gemini. Images and PDFs are sent inline.
type Recognizer struct {
	client   *genai.Client
	model    contentGenerator
	executor *resilience.Executor
}

type Options struct {
	APIKey             string
	Model              string
	ResilienceExecutor *resilience.Executor
}

func New(ctx context.Context, opts Options) (*Recognizer, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	modelName := strings.TrimSpace(opts.Model)
	if modelName == "" {
		modelName = defaultModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(opts.APIKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(recognition.Instructions())}}
	model.ResponseMIMEType = "application/json"

	return &Recognizer{client: client, model: model, executor: opts.ResilienceExecutor}, nil
}

func (r *Recognizer) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

func (r *Recognizer) Recognize(ctx context.Context, file domain.SourceFile) ([]domain.ExtractedItem, error) {
	parts, err := buildParts(file)
	if err != nil {
		return nil, err
	}

	var text string
	call := func(callCtx context.Context) error {
		resp, err := r.model.GenerateContent(callCtx, parts...)
		if err != nil {
			return fmt.Errorf("generating content: %w", err)
		}
		text, err = responseText(resp)
		return err
	}
	if r.executor != nil {
		err = r.executor.Execute(ctx, "gemini.generate", call, classifyGeminiError)
	} else {
		err = call(ctx)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusBadRequest {
		return nil, fmt.Errorf("%w: %w", recognition.ErrDocumentRejected, err)
	}
	if err != nil {
		return nil, wrapTemporaryIfNeeded(err)
	}
	return recognition.ParseItems(text, 1)
}

func buildParts(file domain.SourceFile) ([]genai.Part, error) {
	kind, mime := recognition.Detect(file.ContentType, file.Name, file.Data)
	switch kind {
	case recognition.KindImage, recognition.KindPDF:
		return []genai.Part{
			genai.Blob{MIMEType: mime, Data: file.Data},
			genai.Text(fmt.Sprintf("Document %q.", file.Name)),
		}, nil
	case recognition.KindText:
		text, err := plaintext.Decode(file.Name, file.Data)
		if err != nil {
			return nil, err
		}
		return []genai.Part{genai.Text(recognition.TextPrompt(file.Name, 1, 1, text))}, nil
	default:
		return nil, fmt.Errorf("unsupported content type %q for %s", file.ContentType, file.Name)
	}
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from gemini")
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return strings.TrimSpace(b.String()), nil
}

func classifyGeminiError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		default:
			return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}

func wrapTemporaryIfNeeded(err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifyGeminiError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, "gemini generate", err)
	}
	return err
}
