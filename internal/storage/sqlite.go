package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pdfkb/pdfkb-search/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = fmt.Errorf("storage: %w", types.ErrNotFound)
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
	// ErrNestedTx is returned when BeginTx is called on a transaction
	ErrNestedTx = errors.New("nested transactions not supported")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction. The pool holds a single connection, so
// while a transaction is open every call must go through it.
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// Document operations

const documentColumns = `
	id, filename, source_path, title, num_pages, content_hash, size_bytes,
	status, num_chunks, error_message, uploaded_at, processed_at`

// upsertDocumentWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) upsertDocumentWithQuerier(ctx context.Context, q querier, doc *types.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.Status == "" {
		doc.Status = types.StatusPending
	}
	if !doc.Status.Valid() {
		return fmt.Errorf("invalid document status %q", doc.Status)
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now()
	}
	doc.UploadedAt = doc.UploadedAt.UTC()

	query := `
		INSERT INTO documents (` + documentColumns + `, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			filename = excluded.filename,
			source_path = excluded.source_path,
			title = excluded.title,
			num_pages = excluded.num_pages,
			content_hash = excluded.content_hash,
			size_bytes = excluded.size_bytes,
			status = excluded.status,
			num_chunks = excluded.num_chunks,
			error_message = excluded.error_message,
			processed_at = excluded.processed_at,
			updated_at = excluded.updated_at
		RETURNING id
	`
	now := time.Now()
	err := q.QueryRowContext(ctx, query,
		doc.ID, doc.Filename, nullString(doc.SourcePath), nullString(doc.Title),
		doc.NumPages, doc.ContentHash[:], doc.SizeBytes,
		string(doc.Status), doc.NumChunks, nullString(doc.ErrorMessage),
		doc.UploadedAt, nullTime(doc.ProcessedAt), now, now,
	).Scan(&doc.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) UpsertDocument(ctx context.Context, doc *types.Document) error {
	return s.upsertDocumentWithQuerier(ctx, s.querier(), doc)
}

func scanDocument(row rowScanner) (*types.Document, error) {
	var doc types.Document
	var hash []byte
	var sourcePath, title, errorMessage sql.NullString
	var status string
	var processedAt sql.NullTime

	err := row.Scan(
		&doc.ID, &doc.Filename, &sourcePath, &title, &doc.NumPages, &hash,
		&doc.SizeBytes, &status, &doc.NumChunks, &errorMessage,
		&doc.UploadedAt, &processedAt,
	)
	if err != nil {
		return nil, err
	}

	copy(doc.ContentHash[:], hash)
	doc.SourcePath = sourcePath.String
	doc.Title = title.String
	doc.ErrorMessage = errorMessage.String
	doc.Status = types.DocumentStatus(status)
	doc.UploadedAt = doc.UploadedAt.UTC()
	if processedAt.Valid {
		t := processedAt.Time.UTC()
		doc.ProcessedAt = &t
	}
	return &doc, nil
}

// getDocumentWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getDocumentWithQuerier(ctx context.Context, q querier, column, value string) (*types.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE ` + column + ` = ?`
	doc, err := scanDocument(q.QueryRowContext(ctx, query, value))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	return s.getDocumentWithQuerier(ctx, s.querier(), "id", id)
}

func (s *SQLiteStorage) GetDocumentBySource(ctx context.Context, sourcePath string) (*types.Document, error) {
	return s.getDocumentWithQuerier(ctx, s.querier(), "source_path", sourcePath)
}

// listDocumentsWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) listDocumentsWithQuerier(ctx context.Context, q querier) ([]*types.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents ORDER BY uploaded_at DESC, id`
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	docs := make([]*types.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *SQLiteStorage) ListDocuments(ctx context.Context) ([]*types.Document, error) {
	return s.listDocumentsWithQuerier(ctx, s.querier())
}

// deleteDocumentWithQuerier is the internal implementation that uses a querier.
// Chunks and embeddings go with the document through ON DELETE CASCADE.
func (s *SQLiteStorage) deleteDocumentWithQuerier(ctx context.Context, q querier, id string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT id FROM chunks WHERE document_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	chunkIDs := make([]string, 0)
	for rows.Next() {
		var chunkID string
		if err := rows.Scan(&chunkID); err != nil {
			_ = rows.Close()
			return nil, err
		}
		chunkIDs = append(chunkIDs, chunkID)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	result, err := q.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to delete document: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return chunkIDs, nil
}

func (s *SQLiteStorage) DeleteDocument(ctx context.Context, id string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	chunkIDs, err := s.deleteDocumentWithQuerier(ctx, tx, id)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit delete: %w", err)
	}
	return chunkIDs, nil
}

// Chunk operations

const chunkSelect = `
	SELECT c.id, c.document_id, c.content, c.page_number, c.chunk_index,
	       c.word_count, c.char_count, d.filename, d.uploaded_at
	FROM chunks c
	INNER JOIN documents d ON c.document_id = d.id`

// upsertChunkWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) upsertChunkWithQuerier(ctx context.Context, q querier, chunk *types.Chunk) error {
	if err := chunk.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO chunks (id, document_id, content, content_hash, page_number,
		                    chunk_index, word_count, char_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			content = excluded.content,
			content_hash = excluded.content_hash,
			page_number = excluded.page_number,
			chunk_index = excluded.chunk_index,
			word_count = excluded.word_count,
			char_count = excluded.char_count
	`
	hash := sha256.Sum256([]byte(chunk.Content))
	var page sql.NullInt64
	if chunk.Metadata.PageNumber != nil {
		page = sql.NullInt64{Int64: int64(*chunk.Metadata.PageNumber), Valid: true}
	}

	_, err := q.ExecContext(ctx, query,
		chunk.ID, chunk.DocumentID, chunk.Content, hash[:], page,
		chunk.Metadata.ChunkIndex, chunk.Metadata.WordCount, chunk.Metadata.CharCount,
		time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert chunk: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) UpsertChunk(ctx context.Context, chunk *types.Chunk) error {
	return s.upsertChunkWithQuerier(ctx, s.querier(), chunk)
}

func scanChunk(row rowScanner) (*types.Chunk, error) {
	var c types.Chunk
	var page sql.NullInt64
	err := row.Scan(
		&c.ID, &c.DocumentID, &c.Content, &page, &c.Metadata.ChunkIndex,
		&c.Metadata.WordCount, &c.Metadata.CharCount,
		&c.Metadata.Source, &c.Metadata.UploadedAt,
	)
	if err != nil {
		return nil, err
	}
	if page.Valid {
		c.Metadata.PageNumber = types.IntPtr(int(page.Int64))
	}
	c.Metadata.UploadedAt = c.Metadata.UploadedAt.UTC()
	return &c, nil
}

// getChunkWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getChunkWithQuerier(ctx context.Context, q querier, id string) (*types.Chunk, error) {
	c, err := scanChunk(q.QueryRowContext(ctx, chunkSelect+` WHERE c.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *SQLiteStorage) GetChunk(ctx context.Context, id string) (*types.Chunk, error) {
	return s.getChunkWithQuerier(ctx, s.querier(), id)
}

// listChunksWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) listChunksWithQuerier(ctx context.Context, q querier, where string, args ...interface{}) ([]*types.Chunk, error) {
	rows, err := q.QueryContext(ctx, chunkSelect+where, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	chunks := make([]*types.Chunk, 0)
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (s *SQLiteStorage) ListChunks(ctx context.Context) ([]*types.Chunk, error) {
	return s.listChunksWithQuerier(ctx, s.querier(), ` ORDER BY c.id`)
}

func (s *SQLiteStorage) ListChunksByDocument(ctx context.Context, documentID string) ([]*types.Chunk, error) {
	return s.listChunksWithQuerier(ctx, s.querier(), ` WHERE c.document_id = ? ORDER BY c.chunk_index`, documentID)
}

// Embedding operations

// upsertEmbeddingWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) upsertEmbeddingWithQuerier(ctx context.Context, q querier, embedding *Embedding) error {
	if len(embedding.Vector) == 0 {
		return fmt.Errorf("embedding for chunk %s has no vector", embedding.ChunkID)
	}
	if embedding.Dimension == 0 {
		embedding.Dimension = len(embedding.Vector)
	}
	if embedding.Dimension != len(embedding.Vector) {
		return fmt.Errorf("embedding dimension %d does not match vector length %d",
			embedding.Dimension, len(embedding.Vector))
	}

	query := `
		INSERT INTO embeddings (chunk_id, vector, dimension, provider, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			provider = excluded.provider,
			model = excluded.model,
			created_at = excluded.created_at
	`
	now := time.Now()
	_, err := q.ExecContext(ctx, query,
		embedding.ChunkID, encodeVector(embedding.Vector), embedding.Dimension,
		embedding.Provider, embedding.Model, now)
	if err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}
	embedding.CreatedAt = now
	return nil
}

func (s *SQLiteStorage) UpsertEmbedding(ctx context.Context, embedding *Embedding) error {
	return s.upsertEmbeddingWithQuerier(ctx, s.querier(), embedding)
}

// getEmbeddingWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getEmbeddingWithQuerier(ctx context.Context, q querier, chunkID string) (*Embedding, error) {
	query := `
		SELECT chunk_id, vector, dimension, provider, model, created_at
		FROM embeddings
		WHERE chunk_id = ?
	`
	var e Embedding
	var blob []byte
	var model sql.NullString
	err := q.QueryRowContext(ctx, query, chunkID).Scan(
		&e.ChunkID, &blob, &e.Dimension, &e.Provider, &model, &e.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if e.Vector, err = decodeVector(blob); err != nil {
		return nil, fmt.Errorf("embedding %s: %w", chunkID, err)
	}
	e.Model = model.String
	return &e, nil
}

func (s *SQLiteStorage) GetEmbedding(ctx context.Context, chunkID string) (*Embedding, error) {
	return s.getEmbeddingWithQuerier(ctx, s.querier(), chunkID)
}

// SimilaritySearch returns up to topN chunks ranked by cosine similarity to
// vector. A nil eligibleIDs searches every chunk; an empty non-nil slice
// matches nothing.
func (s *SQLiteStorage) SimilaritySearch(ctx context.Context, vector []float32, eligibleIDs []string, topN int) ([]VectorResult, error) {
	return searchVector(ctx, s.querier(), vector, eligibleIDs, topN)
}

// Status operations

// getStatusWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getStatusWithQuerier(ctx context.Context, q querier) (*Status, error) {
	status := &Status{
		DocumentsByStatus: make(map[types.DocumentStatus]int),
		SchemaVersion:     CurrentSchemaVersion,
		BuildMode:         BuildMode,
	}

	rows, err := q.QueryContext(ctx, `SELECT status, COUNT(*) FROM documents GROUP BY status`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			_ = rows.Close()
			return nil, err
		}
		status.DocumentsByStatus[types.DocumentStatus(st)] = n
		status.DocumentsCount += n
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&status.ChunksCount); err != nil {
		return nil, err
	}
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM embeddings").Scan(&status.EmbeddingsCount); err != nil {
		return nil, err
	}
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM blocked_sources").Scan(&status.BlockedSources); err != nil {
		return nil, err
	}

	var last time.Time
	err = q.QueryRowContext(ctx, `
		SELECT processed_at FROM documents
		WHERE processed_at IS NOT NULL
		ORDER BY processed_at DESC LIMIT 1
	`).Scan(&last)
	if err == nil {
		last = last.UTC()
		status.LastProcessedAt = &last
	} else if err != sql.ErrNoRows {
		return nil, err
	}

	// Calculate database size
	var pageCount, pageSize int
	err = q.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	if err == nil {
		_ = q.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.IndexSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	status.Health = HealthStatus{
		DatabaseAccessible:  true,
		EmbeddingsAvailable: status.EmbeddingsCount > 0,
		VectorExtension:     VectorExtensionAvailable,
	}

	return status, nil
}

func (s *SQLiteStorage) GetStatus(ctx context.Context) (*Status, error) {
	return s.getStatusWithQuerier(ctx, s.querier())
}

// Transaction implementations delegate to the storage helpers with the
// transaction as querier

func (t *sqliteTx) UpsertDocument(ctx context.Context, doc *types.Document) error {
	return t.storage.upsertDocumentWithQuerier(ctx, t.querier(), doc)
}

func (t *sqliteTx) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	return t.storage.getDocumentWithQuerier(ctx, t.querier(), "id", id)
}

func (t *sqliteTx) GetDocumentBySource(ctx context.Context, sourcePath string) (*types.Document, error) {
	return t.storage.getDocumentWithQuerier(ctx, t.querier(), "source_path", sourcePath)
}

func (t *sqliteTx) ListDocuments(ctx context.Context) ([]*types.Document, error) {
	return t.storage.listDocumentsWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) DeleteDocument(ctx context.Context, id string) ([]string, error) {
	return t.storage.deleteDocumentWithQuerier(ctx, t.querier(), id)
}

func (t *sqliteTx) UpsertChunk(ctx context.Context, chunk *types.Chunk) error {
	return t.storage.upsertChunkWithQuerier(ctx, t.querier(), chunk)
}

func (t *sqliteTx) GetChunk(ctx context.Context, id string) (*types.Chunk, error) {
	return t.storage.getChunkWithQuerier(ctx, t.querier(), id)
}

func (t *sqliteTx) ListChunks(ctx context.Context) ([]*types.Chunk, error) {
	return t.storage.listChunksWithQuerier(ctx, t.querier(), ` ORDER BY c.id`)
}

func (t *sqliteTx) ListChunksByDocument(ctx context.Context, documentID string) ([]*types.Chunk, error) {
	return t.storage.listChunksWithQuerier(ctx, t.querier(), ` WHERE c.document_id = ? ORDER BY c.chunk_index`, documentID)
}

func (t *sqliteTx) UpsertEmbedding(ctx context.Context, embedding *Embedding) error {
	return t.storage.upsertEmbeddingWithQuerier(ctx, t.querier(), embedding)
}

func (t *sqliteTx) GetEmbedding(ctx context.Context, chunkID string) (*Embedding, error) {
	return t.storage.getEmbeddingWithQuerier(ctx, t.querier(), chunkID)
}

func (t *sqliteTx) SimilaritySearch(ctx context.Context, vector []float32, eligibleIDs []string, topN int) ([]VectorResult, error) {
	return searchVector(ctx, t.querier(), vector, eligibleIDs, topN)
}

func (t *sqliteTx) GetStatus(ctx context.Context) (*Status, error) {
	return t.storage.getStatusWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) Close() error {
	// Transactions don't close, use Commit or Rollback
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	return nil, ErrNestedTx
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
