package domain

import "time"

type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobError   JobStatus = "error"
)

// Terminal reports whether no further transition is allowed out of s.
func (s JobStatus) Terminal() bool {
	return s == JobDone || s == JobError
}

type Job struct {
	ID                 string     `json:"id"`
	OwnerID            string     `json:"owner_id"`
	Status             JobStatus  `json:"status"`
	Progress           int        `json:"progress"`
	Message            string     `json:"message"`
	DocumentCount      int        `json:"document_count"`
	DocumentsProcessed int        `json:"documents_processed"`
	TotalRecords       int        `json:"total_records"`
	RunClaimedAt       *time.Time `json:"run_claimed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// JobTicket hands a submitted job over to whichever runner executes it.
type JobTicket struct {
	JobID          string    `json:"job_id"`
	OwnerID        string    `json:"owner_id"`
	DocumentIDs    []string  `json:"document_ids"`
	SubmittedFiles int       `json:"submitted_files"`
	SubmittedAt    time.Time `json:"submitted_at"`
}
