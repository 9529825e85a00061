package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillkom/invoice-ingest/internal/core/domain"
)

type ResultRepository struct {
	db *sql.DB
}

func NewResultRepository(db *sql.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// InsertBatch writes all rows in one transaction. Either every row is stored or none is.
func (r *ResultRepository) InsertBatch(ctx context.Context, results []domain.ExtractionResult) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin results tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO results (
	id, job_id, owner_id, document_id, document_name, page, original_term, canonical, value, confidence, evidence, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`)
	if err != nil {
		return fmt.Errorf("prepare results insert: %w", err)
	}
	defer stmt.Close()

	for i, res := range results {
		_, err := stmt.ExecContext(ctx,
			res.ID, res.JobID, res.OwnerID, res.DocumentID, res.DocumentName, res.Page,
			res.OriginalTerm, res.Canonical, res.Value, res.Confidence, res.Evidence, res.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert result %d/%d: %w", i+1, len(results), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit results tx: %w", err)
	}
	return nil
}

func (r *ResultRepository) ListByJob(ctx context.Context, ownerID, jobID string) ([]domain.ExtractionResult, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, job_id, owner_id, document_id, document_name, page, original_term, canonical, value, confidence, evidence, created_at
FROM results
WHERE owner_id = $1 AND job_id = $2
ORDER BY created_at ASC, seq ASC
`, ownerID, jobID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ExtractionResult, 0)
	for rows.Next() {
		var res domain.ExtractionResult
		if err := rows.Scan(
			&res.ID,
			&res.JobID,
			&res.OwnerID,
			&res.DocumentID,
			&res.DocumentName,
			&res.Page,
			&res.OriginalTerm,
			&res.Canonical,
			&res.Value,
			&res.Confidence,
			&res.Evidence,
			&res.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return out, nil
}
