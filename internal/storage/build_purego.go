//go:build purego || !sqlite_vec

package storage

// Default build: pure Go SQLite, no cgo. Similarity search scans the
// embeddings table and ranks in Go.
//
//	CGO_ENABLED=0 go build ./cmd/pdfkb

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the database/sql driver registered by modernc.org/sqlite
	DriverName = "sqlite"

	// VectorExtensionAvailable is false: cosine similarity runs in Go
	VectorExtensionAvailable = false

	// BuildMode is reported by `pdfkb version` and the status operation
	BuildMode = "purego"
)
