package domain

import "time"

// ExtractedItem is one tuple returned by the recognition capability.
type ExtractedItem struct {
	Page       int     `json:"page"`
	Term       string  `json:"term"`
	Value      string  `json:"value"`
	Confidence int     `json:"confidence"`
	Evidence   *string `json:"evidence,omitempty"`
}

// DocumentExtraction is the recognition outcome for a single document.
// Err is set when recognition failed for the document; Items is then empty.
type DocumentExtraction struct {
	DocumentID string
	Name       string
	Items      []ExtractedItem
	Err        error
}

type ExtractionResult struct {
	ID           string    `json:"id"`
	JobID        string    `json:"job_id"`
	OwnerID      string    `json:"owner_id"`
	DocumentID   string    `json:"doc_id"`
	DocumentName string    `json:"doc_name"`
	Page         int       `json:"page"`
	OriginalTerm string    `json:"original_term"`
	Canonical    string    `json:"canonical"`
	Value        string    `json:"value"`
	Confidence   int       `json:"confidence"`
	Evidence     *string   `json:"evidence"`
	CreatedAt    time.Time `json:"created_at"`
}

// ClampConfidence bounds a recognition confidence to the 0..100 range.
func ClampConfidence(c int) int {
	switch {
	case c < 0:
		return 0
	case c > 100:
		return 100
	default:
		return c
	}
}
