package types

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ChunkMetadata holds the display attributes attached to a chunk
type ChunkMetadata struct {
	Source     string    `json:"source"`                // Original filename
	PageNumber *int      `json:"page_number,omitempty"` // Nullable - plain text inputs have no pages
	ChunkIndex int       `json:"chunk_index"`           // Zero-based position within the document
	WordCount  int       `json:"word_count"`
	CharCount  int       `json:"char_count"`
	UploadedAt time.Time `json:"uploaded_at"` // Owning document date, used by date filters
}

// Chunk is a contiguous unit of document text used as the retrieval granularity.
// Chunks are immutable once created.
type Chunk struct {
	ID         string        `json:"chunk_id"`
	DocumentID string        `json:"document_id"`
	Content    string        `json:"content"`
	Metadata   ChunkMetadata `json:"metadata"`
}

// ChunkID builds the stable identifier for a chunk. The same source, position
// and content always produce the same ID, so re-indexing unchanged content
// yields identical chunk IDs.
func ChunkID(source string, index int, content string) string {
	sourceHash := sha256.Sum256([]byte(source))
	contentHash := sha256.Sum256([]byte(content))
	return fmt.Sprintf("chunk_%s_%04d_%s",
		hex.EncodeToString(sourceHash[:])[:8],
		index,
		hex.EncodeToString(contentHash[:])[:12])
}

// Validate checks if the chunk is well formed
func (c *Chunk) Validate() error {
	if c.ID == "" {
		return ErrInvalidChunkID
	}
	if c.DocumentID == "" {
		return errors.New("document ID is required")
	}
	if strings.TrimSpace(c.Content) == "" {
		return ErrEmptyContent
	}
	if c.Metadata.ChunkIndex < 0 {
		return errors.New("chunk index must be >= 0")
	}
	if c.Metadata.PageNumber != nil && *c.Metadata.PageNumber < 1 {
		return errors.New("page number must be positive")
	}
	return nil
}

// Clone returns a copy that shares no mutable state with c
func (c *Chunk) Clone() *Chunk {
	if c == nil {
		return nil
	}
	dst := *c
	if c.Metadata.PageNumber != nil {
		page := *c.Metadata.PageNumber
		dst.Metadata.PageNumber = &page
	}
	return &dst
}

// IntPtr returns a pointer to v
func IntPtr(v int) *int {
	return &v
}
