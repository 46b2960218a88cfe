package types

import "time"

// DocumentStatus tracks the processing state of a document
type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

// Document is an uploaded or watched file whose text has been chunked
type Document struct {
	ID           string         `json:"id"`
	Filename     string         `json:"filename"`
	SourcePath   string         `json:"source_path,omitempty"` // Empty for uploads
	Title        string         `json:"title,omitempty"`
	NumPages     int            `json:"num_pages"`
	ContentHash  [32]byte       `json:"-"`
	SizeBytes    int64          `json:"size_bytes"`
	Status       DocumentStatus `json:"status"`
	NumChunks    int            `json:"num_chunks"`
	ErrorMessage string         `json:"error_message,omitempty"`
	UploadedAt   time.Time      `json:"uploaded_at"`
	ProcessedAt  *time.Time     `json:"processed_at,omitempty"`
}

// Valid reports whether s is a known status
func (s DocumentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// BlockedSource is a watched file whose document was deleted by a user. The
// file is not ingested again while its content still hashes to ContentHash.
type BlockedSource struct {
	SourcePath  string    `json:"source_path"`
	Filename    string    `json:"filename"`
	DocumentID  string    `json:"document_id,omitempty"`
	ContentHash [32]byte  `json:"-"`
	SizeBytes   int64     `json:"size_bytes"`
	BlockedAt   time.Time `json:"blocked_at"`
}
