package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kirillkom/invoice-ingest/internal/core/domain"
	"github.com/kirillkom/invoice-ingest/internal/core/ports"
)

const defaultSynonymTTL = 10 * time.Minute

type synonymUpserter interface {
	Upsert(ctx context.Context, mapping *domain.SynonymMapping) error
}

// SynonymCache fronts a SynonymRepository with a read-through snapshot per owner.
// Snapshots are keyed by a per-owner generation that every write bumps, so a snapshot
// read before a write can never be served after it. Cache failures fall back to the repository.
type SynonymCache struct {
	next   ports.SynonymRepository
	store  store
	ttl    time.Duration
	logger *slog.Logger
}

func NewSynonymCache(next ports.SynonymRepository, client *Client, ttl time.Duration, logger *slog.Logger) *SynonymCache {
	return newSynonymCache(next, client, ttl, logger)
}

func newSynonymCache(next ports.SynonymRepository, s store, ttl time.Duration, logger *slog.Logger) *SynonymCache {
	if ttl <= 0 {
		ttl = defaultSynonymTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SynonymCache{next: next, store: s, ttl: ttl, logger: logger}
}

var _ ports.SynonymRepository = (*SynonymCache)(nil)

func generationKey(ownerID string) string {
	return "synonyms:" + ownerID + ":gen"
}

func snapshotKey(ownerID, generation string) string {
	return "synonyms:" + ownerID + ":" + generation
}

// generation returns the owner's current snapshot generation; an owner never written has "0".
func (c *SynonymCache) generation(ctx context.Context, ownerID string) (string, error) {
	gen, err := c.store.Get(ctx, generationKey(ownerID))
	if errors.Is(err, goredis.Nil) {
		return "0", nil
	}
	if err != nil {
		return "", err
	}
	if _, convErr := strconv.ParseInt(gen, 10, 64); convErr != nil {
		return "", fmt.Errorf("invalid synonym generation %q", gen)
	}
	return gen, nil
}

func (c *SynonymCache) ListByOwner(ctx context.Context, ownerID string) ([]domain.SynonymMapping, error) {
	gen, err := c.generation(ctx, ownerID)
	if err != nil {
		c.logger.Warn("synonym_cache_get_failed", "owner_id", ownerID, "error", err)
		return c.next.ListByOwner(ctx, ownerID)
	}

	key := snapshotKey(ownerID, gen)
	raw, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		var cached []domain.SynonymMapping
		if jsonErr := json.Unmarshal([]byte(raw), &cached); jsonErr == nil {
			return cached, nil
		}
		c.logger.Warn("synonym_cache_corrupt", "owner_id", ownerID)
	case errors.Is(err, goredis.Nil):
	default:
		c.logger.Warn("synonym_cache_get_failed", "owner_id", ownerID, "error", err)
	}

	mappings, err := c.next.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	// The snapshot is stored under the generation observed before the read. A write that
	// landed meanwhile has already moved readers to a newer generation.
	payload, err := json.Marshal(mappings)
	if err == nil {
		err = c.store.Set(ctx, key, payload, c.ttl)
	}
	if err != nil {
		c.logger.Warn("synonym_cache_set_failed", "owner_id", ownerID, "error", err)
	}
	return mappings, nil
}

func (c *SynonymCache) Create(ctx context.Context, mapping *domain.SynonymMapping) error {
	if err := c.next.Create(ctx, mapping); err != nil {
		return err
	}
	c.invalidate(ctx, mapping.OwnerID)
	return nil
}

func (c *SynonymCache) Update(ctx context.Context, mapping *domain.SynonymMapping) error {
	if err := c.next.Update(ctx, mapping); err != nil {
		return err
	}
	c.invalidate(ctx, mapping.OwnerID)
	return nil
}

func (c *SynonymCache) Delete(ctx context.Context, ownerID, id string) error {
	if err := c.next.Delete(ctx, ownerID, id); err != nil {
		return err
	}
	c.invalidate(ctx, ownerID)
	return nil
}

// Upsert is available when the wrapped repository supports it.
func (c *SynonymCache) Upsert(ctx context.Context, mapping *domain.SynonymMapping) error {
	upserter, ok := c.next.(synonymUpserter)
	if !ok {
		return errors.New("synonym repository does not support upsert")
	}
	if err := upserter.Upsert(ctx, mapping); err != nil {
		return err
	}
	c.invalidate(ctx, mapping.OwnerID)
	return nil
}

func (c *SynonymCache) invalidate(ctx context.Context, ownerID string) {
	if _, err := c.store.Incr(ctx, generationKey(ownerID)); err != nil {
		c.logger.Warn("synonym_cache_invalidate_failed", "owner_id", ownerID, "error", err)
	}
}

