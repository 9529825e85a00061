package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/invoice-ingest/internal/core/domain"
	"github.com/kirillkom/invoice-ingest/internal/core/ports"
)

// SynonymResolver maps raw extracted terms to canonical field names for one owner.
// It is an immutable snapshot; later mapping edits do not affect it.
type SynonymResolver struct {
	canonical map[string]string
}

func NewSynonymResolver(mappings []domain.SynonymMapping) *SynonymResolver {
	canonical := make(map[string]string, len(mappings))
	for _, m := range mappings {
		key := domain.NormalizeTerm(m.Term)
		if key == "" {
			continue
		}
		canonical[key] = m.Canonical
	}
	return &SynonymResolver{canonical: canonical}
}

// LoadSynonymResolver reads the owner's mappings once and returns a snapshot.
func LoadSynonymResolver(ctx context.Context, repo ports.SynonymRepository, ownerID string) (*SynonymResolver, error) {
	mappings, err := repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list synonyms: %w", err)
	}
	return NewSynonymResolver(mappings), nil
}

// Resolve returns the canonical name for term, or term unchanged when no mapping matches.
func (r *SynonymResolver) Resolve(term string) string {
	if r == nil {
		return term
	}
	if canonical, ok := r.canonical[domain.NormalizeTerm(term)]; ok {
		return canonical
	}
	return term
}

func (r *SynonymResolver) Len() int {
	if r == nil {
		return 0
	}
	return len(r.canonical)
}

type SynonymUseCase struct {
	repo ports.SynonymRepository
	now  func() time.Time
}

func NewSynonymUseCase(repo ports.SynonymRepository) *SynonymUseCase {
	return &SynonymUseCase{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (uc *SynonymUseCase) List(ctx context.Context, ownerID string) ([]domain.SynonymMapping, error) {
	if err := requireOwner(ownerID, "list synonyms"); err != nil {
		return nil, err
	}
	return uc.repo.ListByOwner(ctx, ownerID)
}

func (uc *SynonymUseCase) Create(ctx context.Context, ownerID, term, canonical string) (*domain.SynonymMapping, error) {
	if err := requireOwner(ownerID, "create synonym"); err != nil {
		return nil, err
	}
	term, canonical, err := validateSynonym(term, canonical)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "create synonym", err)
	}

	now := uc.now()
	mapping := &domain.SynonymMapping{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Term:      term,
		Canonical: canonical,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uc.repo.Create(ctx, mapping); err != nil {
		return nil, fmt.Errorf("create synonym: %w", err)
	}
	return mapping, nil
}

func (uc *SynonymUseCase) Update(ctx context.Context, ownerID, id, term, canonical string) (*domain.SynonymMapping, error) {
	if err := requireOwner(ownerID, "update synonym"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "update synonym", errors.New("id is required"))
	}
	term, canonical, err := validateSynonym(term, canonical)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "update synonym", err)
	}

	mapping := &domain.SynonymMapping{
		ID:        id,
		OwnerID:   ownerID,
		Term:      term,
		Canonical: canonical,
		UpdatedAt: uc.now(),
	}
	if err := uc.repo.Update(ctx, mapping); err != nil {
		return nil, fmt.Errorf("update synonym: %w", err)
	}
	return mapping, nil
}

func (uc *SynonymUseCase) Delete(ctx context.Context, ownerID, id string) error {
	if err := requireOwner(ownerID, "delete synonym"); err != nil {
		return err
	}
	if strings.TrimSpace(id) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "delete synonym", errors.New("id is required"))
	}
	if err := uc.repo.Delete(ctx, ownerID, id); err != nil {
		return fmt.Errorf("delete synonym: %w", err)
	}
	return nil
}

func validateSynonym(term, canonical string) (string, string, error) {
	term = strings.TrimSpace(term)
	canonical = strings.TrimSpace(canonical)
	if term == "" {
		return "", "", errors.New("term is required")
	}
	if canonical == "" {
		return "", "", errors.New("canonical is required")
	}
	return term, canonical, nil
}

func requireOwner(ownerID, operation string) error {
	if strings.TrimSpace(ownerID) == "" {
		return domain.WrapError(domain.ErrUnauthorized, operation, errors.New("owner id is required"))
	}
	return nil
}
