package domain

import "time"

type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatAnswer struct {
	Answer  string `json:"answer"`
	Records int    `json:"records"`
}

// ChatExchange is one answered question, kept per owner and job.
type ChatExchange struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	JobID     string    `json:"job_id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}
