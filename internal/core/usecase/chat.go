package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/invoice-ingest/internal/core/domain"
	"github.com/kirillkom/invoice-ingest/internal/core/ports"
)

const (
	noDataAnswer   = "I don't have any financial data to query yet. Please wait for the document processing to complete."
	fallbackAnswer = "I could not generate an answer."
	maxChatHistory = 20
	maxChatRecords = 400

	defaultChatHistoryLimit = 50
	maxChatHistoryLimit     = 200
)

type ChatUseCase struct {
	jobs      ports.JobRepository
	results   ports.ResultRepository
	history   ports.ChatHistoryRepository
	generator ports.AnswerGenerator
	logger    *slog.Logger
}

func NewChatUseCase(
	jobs ports.JobRepository,
	results ports.ResultRepository,
	history ports.ChatHistoryRepository,
	generator ports.AnswerGenerator,
	logger *slog.Logger,
) *ChatUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatUseCase{
		jobs:      jobs,
		results:   results,
		history:   history,
		generator: generator,
		logger:    logger,
	}
}

func (uc *ChatUseCase) Ask(
	ctx context.Context,
	ownerID string,
	jobID string,
	question string,
	history []domain.ChatTurn,
) (*domain.ChatAnswer, error) {
	if err := requireOwner(ownerID, "ask"); err != nil {
		return nil, err
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ask", errors.New("question is required"))
	}

	if _, err := uc.jobs.GetByID(ctx, ownerID, jobID); err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	results, err := uc.results.ListByJob(ctx, ownerID, jobID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	if len(results) == 0 {
		return &domain.ChatAnswer{Answer: noDataAnswer}, nil
	}

	prompt, err := buildChatPrompt(question, selectChatRecords(question, results, maxChatRecords), history)
	if err != nil {
		return nil, err
	}
	answer, err := uc.generator.GenerateFromPrompt(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		answer = fallbackAnswer
	}

	exchange := &domain.ChatExchange{OwnerID: ownerID, JobID: jobID, Question: question, Answer: answer}
	if err := uc.history.Append(ctx, exchange); err != nil {
		uc.logger.Warn("chat_history_append_failed", "owner_id", ownerID, "job_id", jobID, "error", err)
	}
	return &domain.ChatAnswer{Answer: answer, Records: len(results)}, nil
}

// History lists answered questions newest first. A non-empty jobID must name one of the owner's jobs.
func (uc *ChatUseCase) History(ctx context.Context, ownerID, jobID string, limit int) ([]domain.ChatExchange, error) {
	if err := requireOwner(ownerID, "chat history"); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultChatHistoryLimit
	}
	if limit > maxChatHistoryLimit {
		limit = maxChatHistoryLimit
	}
	jobID = strings.TrimSpace(jobID)
	if jobID != "" {
		if _, err := uc.jobs.GetByID(ctx, ownerID, jobID); err != nil {
			return nil, fmt.Errorf("get job: %w", err)
		}
	}
	exchanges, err := uc.history.List(ctx, ownerID, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("list chat history: %w", err)
	}
	return exchanges, nil
}

type chatRecord struct {
	Document  string  `json:"document"`
	Page      int     `json:"page"`
	Term      string  `json:"term"`
	Canonical string  `json:"canonical"`
	Value     string  `json:"value"`
	Evidence  *string `json:"evidence"`
}

func buildChatPrompt(question string, results []domain.ExtractionResult, history []domain.ChatTurn) (string, error) {
	records := make([]chatRecord, 0, len(results))
	for _, r := range results {
		records = append(records, chatRecord{
			Document:  r.DocumentName,
			Page:      r.Page,
			Term:      r.OriginalTerm,
			Canonical: r.Canonical,
			Value:     r.Value,
			Evidence:  r.Evidence,
		})
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal chat context: %w", err)
	}

	if len(history) > maxChatHistory {
		history = history[len(history)-maxChatHistory:]
	}
	conversation := make([]string, 0, len(history))
	for _, turn := range history {
		speaker := "Assistant"
		if turn.Role == "user" {
			speaker = "User"
		}
		conversation = append(conversation, speaker+": "+strings.TrimSpace(turn.Content))
	}

	var b strings.Builder
	b.WriteString("You are a financial data assistant. You have access to financial data extracted from invoices.\n\n")
	b.WriteString("Available financial data:\n")
	b.Write(data)
	b.WriteString("\n\nPrevious conversation:\n")
	b.WriteString(strings.Join(conversation, "\n"))
	b.WriteString("\n\nUser question: ")
	b.WriteString(question)
	b.WriteString("\n\nInstructions:\n")
	b.WriteString("- Answer using ONLY the available data.\n")
	b.WriteString("- Quote exact values. Sum values when asked for totals.\n")
	b.WriteString("- Say clearly when the data does not contain the answer.\n")
	b.WriteString("- Reference the source document and page when relevant.\n")
	b.WriteString("- Be concise.\n\n")
	b.WriteString("Answer:")
	return b.String(), nil
}
