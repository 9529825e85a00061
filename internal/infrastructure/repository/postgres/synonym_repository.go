package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kirillkom/invoice-ingest/internal/core/domain"
)

type SynonymRepository struct {
	db *sql.DB
}

func NewSynonymRepository(db *sql.DB) *SynonymRepository {
	return &SynonymRepository{db: db}
}

func (r *SynonymRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.SynonymMapping, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, owner_id, term, canonical, created_at, updated_at
FROM synonyms
WHERE owner_id = $1
ORDER BY lower(term)
`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list synonyms: %w", err)
	}
	defer rows.Close()

	out := make([]domain.SynonymMapping, 0)
	for rows.Next() {
		var m domain.SynonymMapping
		if err := rows.Scan(&m.ID, &m.OwnerID, &m.Term, &m.Canonical, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan synonym: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate synonyms: %w", err)
	}
	return out, nil
}

func (r *SynonymRepository) Create(ctx context.Context, mapping *domain.SynonymMapping) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO synonyms (id, owner_id, term, canonical, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, mapping.ID, mapping.OwnerID, mapping.Term, mapping.Canonical, mapping.CreatedAt, mapping.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WrapError(domain.ErrConflict, "insert synonym", fmt.Errorf("term %q already mapped", mapping.Term))
		}
		return fmt.Errorf("insert synonym: %w", err)
	}
	return nil
}

func (r *SynonymRepository) Update(ctx context.Context, mapping *domain.SynonymMapping) error {
	row := r.db.QueryRowContext(ctx, `
UPDATE synonyms
SET term = $3, canonical = $4, updated_at = $5
WHERE owner_id = $1 AND id = $2
RETURNING created_at
`, mapping.OwnerID, mapping.ID, mapping.Term, mapping.Canonical, mapping.UpdatedAt)

	if err := row.Scan(&mapping.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WrapError(domain.ErrNotFound, "update synonym", fmt.Errorf("synonym %s", mapping.ID))
		}
		if isUniqueViolation(err) {
			return domain.WrapError(domain.ErrConflict, "update synonym", fmt.Errorf("term %q already mapped", mapping.Term))
		}
		return fmt.Errorf("update synonym: %w", err)
	}
	return nil
}

func (r *SynonymRepository) Delete(ctx context.Context, ownerID, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM synonyms WHERE owner_id = $1 AND id = $2`, ownerID, id)
	if err != nil {
		return fmt.Errorf("delete synonym: %w", err)
	}
	return expectOneRow(result, domain.ErrNotFound, "delete synonym", id)
}

// Upsert inserts the mapping or replaces the canonical name of an existing term, matching case-insensitively.
func (r *SynonymRepository) Upsert(ctx context.Context, mapping *domain.SynonymMapping) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO synonyms (id, owner_id, term, canonical, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (owner_id, lower(term)) DO UPDATE
SET canonical = EXCLUDED.canonical, updated_at = EXCLUDED.updated_at
`, mapping.ID, mapping.OwnerID, mapping.Term, mapping.Canonical, mapping.CreatedAt, mapping.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert synonym: %w", err)
	}
	return nil
}
