//go:build sqlite_vec && !purego

package storage

// cgo build with the sqlite-vec extension: vec_distance_cosine ranks
// vectors inside SQLite. The extension must be loadable by the driver.
//
//	CGO_ENABLED=1 go build -tags sqlite_vec ./cmd/pdfkb

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the database/sql driver registered by mattn/go-sqlite3
	DriverName = "sqlite3"

	// VectorExtensionAvailable is true: similarity search runs in SQL
	VectorExtensionAvailable = true

	// BuildMode is reported by `pdfkb version` and the status operation
	BuildMode = "cgo"
)
