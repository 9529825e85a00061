package domain

import (
	"strings"
	"time"
)

type SynonymMapping struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Term      string    `json:"term"`
	Canonical string    `json:"canonical"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NormalizeTerm produces the lookup key used for synonym matching.
func NormalizeTerm(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}
