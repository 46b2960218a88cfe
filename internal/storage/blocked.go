package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pdfkb/pdfkb-search/pkg/types"
)

const blockedColumns = `source_path, filename, document_id, content_hash, size_bytes, blocked_at`

// blockSourceWithQuerier records or refreshes a blocked source
func (s *SQLiteStorage) blockSourceWithQuerier(ctx context.Context, q querier, b *types.BlockedSource) error {
	if b.SourcePath == "" {
		return fmt.Errorf("blocked source has no path")
	}
	blockedAt := b.BlockedAt
	if blockedAt.IsZero() {
		blockedAt = time.Now()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO blocked_sources (`+blockedColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_path) DO UPDATE SET
			filename = excluded.filename,
			document_id = excluded.document_id,
			content_hash = excluded.content_hash,
			size_bytes = excluded.size_bytes,
			blocked_at = excluded.blocked_at
	`, b.SourcePath, b.Filename, nullString(b.DocumentID), b.ContentHash[:], b.SizeBytes, blockedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to block source: %w", err)
	}
	b.BlockedAt = blockedAt.UTC()
	return nil
}

func scanBlocked(row rowScanner) (*types.BlockedSource, error) {
	var b types.BlockedSource
	var docID sql.NullString
	var hash []byte
	if err := row.Scan(&b.SourcePath, &b.Filename, &docID, &hash, &b.SizeBytes, &b.BlockedAt); err != nil {
		return nil, err
	}
	b.DocumentID = docID.String
	copy(b.ContentHash[:], hash)
	b.BlockedAt = b.BlockedAt.UTC()
	return &b, nil
}

func (s *SQLiteStorage) getBlockedSourceWithQuerier(ctx context.Context, q querier, sourcePath string) (*types.BlockedSource, error) {
	b, err := scanBlocked(q.QueryRowContext(ctx,
		`SELECT `+blockedColumns+` FROM blocked_sources WHERE source_path = ?`, sourcePath))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return b, err
}

func (s *SQLiteStorage) listBlockedSourcesWithQuerier(ctx context.Context, q querier) ([]*types.BlockedSource, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+blockedColumns+` FROM blocked_sources ORDER BY source_path`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]*types.BlockedSource, 0)
	for rows.Next() {
		b, err := scanBlocked(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) unblockSourceWithQuerier(ctx context.Context, q querier, sourcePath string) error {
	result, err := q.ExecContext(ctx, `DELETE FROM blocked_sources WHERE source_path = ?`, sourcePath)
	if err != nil {
		return fmt.Errorf("failed to unblock source: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStorage) BlockSource(ctx context.Context, b *types.BlockedSource) error {
	return s.blockSourceWithQuerier(ctx, s.querier(), b)
}

func (s *SQLiteStorage) GetBlockedSource(ctx context.Context, sourcePath string) (*types.BlockedSource, error) {
	return s.getBlockedSourceWithQuerier(ctx, s.querier(), sourcePath)
}

func (s *SQLiteStorage) ListBlockedSources(ctx context.Context) ([]*types.BlockedSource, error) {
	return s.listBlockedSourcesWithQuerier(ctx, s.querier())
}

func (s *SQLiteStorage) UnblockSource(ctx context.Context, sourcePath string) error {
	return s.unblockSourceWithQuerier(ctx, s.querier(), sourcePath)
}

func (t *sqliteTx) BlockSource(ctx context.Context, b *types.BlockedSource) error {
	return t.storage.blockSourceWithQuerier(ctx, t.querier(), b)
}

func (t *sqliteTx) GetBlockedSource(ctx context.Context, sourcePath string) (*types.BlockedSource, error) {
	return t.storage.getBlockedSourceWithQuerier(ctx, t.querier(), sourcePath)
}

func (t *sqliteTx) ListBlockedSources(ctx context.Context) ([]*types.BlockedSource, error) {
	return t.storage.listBlockedSourcesWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) UnblockSource(ctx context.Context, sourcePath string) error {
	return t.storage.unblockSourceWithQuerier(ctx, t.querier(), sourcePath)
}
