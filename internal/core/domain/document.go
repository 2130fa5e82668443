package domain

import "time"

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusIndexed    DocumentStatus = "indexed"
	StatusFailed     DocumentStatus = "failed"
)

// ReferenceDocument is a tenant-owned source document (regulation extract,
// internal procedure) whose chunks feed the retrieval backend.
type ReferenceDocument struct {
	ID           string         `json:"id"`
	TenantID     TenantID       `json:"tenant_id"`
	Filename     string         `json:"filename"`
	MimeType     string         `json:"mime_type"`
	StoragePath  string         `json:"storage_path"`
	DocumentCode string         `json:"document_code,omitempty"`
	Title        string         `json:"title,omitempty"`
	Category     string         `json:"category,omitempty"`
	DocumentType string         `json:"document_type,omitempty"`
	Status       DocumentStatus `json:"status"`
	Error        string         `json:"error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}
