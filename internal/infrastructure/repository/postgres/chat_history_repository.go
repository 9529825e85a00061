package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/invoice-ingest/internal/core/domain"
)

type ChatHistoryRepository struct {
	db *sql.DB
}

func NewChatHistoryRepository(db *sql.DB) *ChatHistoryRepository {
	return &ChatHistoryRepository{db: db}
}

func (r *ChatHistoryRepository) Append(ctx context.Context, exchange *domain.ChatExchange) error {
	if exchange.ID == "" {
		exchange.ID = uuid.NewString()
	}
	if exchange.CreatedAt.IsZero() {
		exchange.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO chat_history (id, owner_id, job_id, question, answer, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, exchange.ID, exchange.OwnerID, exchange.JobID, exchange.Question, exchange.Answer, exchange.CreatedAt)
	if err != nil {
		return fmt.Errorf("append chat exchange: %w", err)
	}
	return nil
}

// List returns the owner's exchanges newest first, optionally narrowed to one job.
func (r *ChatHistoryRepository) List(ctx context.Context, ownerID, jobID string, limit int) ([]domain.ChatExchange, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, owner_id, job_id, question, answer, created_at
FROM chat_history
WHERE owner_id = $1 AND ($2 = '' OR job_id = $2)
ORDER BY created_at DESC
LIMIT $3
`, ownerID, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("list chat history: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ChatExchange, 0, limit)
	for rows.Next() {
		var ex domain.ChatExchange
		if err := rows.Scan(
			&ex.ID,
			&ex.OwnerID,
			&ex.JobID,
			&ex.Question,
			&ex.Answer,
			&ex.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan chat exchange: %w", err)
		}
		out = append(out, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat history: %w", err)
	}
	return out, nil
}
