package domain

import (
	"io"
	"time"
)

type DocumentStatus string

const (
	DocumentUploaded  DocumentStatus = "uploaded"
	DocumentProcessed DocumentStatus = "processed"
	DocumentFailed    DocumentStatus = "failed"
)

type Document struct {
	ID          string         `json:"id"`
	OwnerID     string         `json:"owner_id"`
	JobID       string         `json:"job_id"`
	Name        string         `json:"name"`
	ContentType string         `json:"content_type"`
	StoragePath string         `json:"storage_path"`
	Size        int64          `json:"size"`
	Status      DocumentStatus `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Upload is one file received at submission time.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// SourceFile is a stored document handed to the batch extractor.
type SourceFile struct {
	DocumentID  string
	Name        string
	ContentType string
	Data        []byte
}
