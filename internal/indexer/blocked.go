package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/pdfkb/pdfkb-search/internal/activity"
	"github.com/pdfkb/pdfkb-search/internal/storage"
	"github.com/pdfkb/pdfkb-search/pkg/types"
)

// Outcomes of re-ingesting a blocked source
const (
	ReprocessIndexed = "indexed"
	ReprocessMissing = "missing" // Unblocked, but the file no longer exists
	ReprocessFailed  = "failed"  // Unblocked, but ingestion failed
)

// ReprocessResult describes one unblocked source
type ReprocessResult struct {
	SourcePath string `json:"source_path"`
	Status     string `json:"status"`
	DocumentID string `json:"document_id,omitempty"`
	Chunks     int    `json:"chunks"`
	Error      string `json:"error,omitempty"`
}

// checkBlocked returns ErrSourceBlocked when path is blocked with the same
// content. A block on older content is left for store to lift.
func (idx *Indexer) checkBlocked(ctx context.Context, path string, hash [32]byte, size int64) error {
	b, err := idx.storage.GetBlockedSource(ctx, path)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up blocked source: %w", err)
	}
	if b.ContentHash != hash {
		return nil
	}

	idx.logger.Debug("skipping blocked source", zap.String("path", path))
	idx.activity.Record(activity.Event{
		Filename:   b.Filename,
		SourcePath: path,
		SizeBytes:  size,
		Status:     activity.StatusBlocked,
		DocumentID: b.DocumentID,
	})
	return fmt.Errorf("%w: %s", ErrSourceBlocked, path)
}

// BlockedSources lists the files kept out of the knowledge base
func (idx *Indexer) BlockedSources(ctx context.Context) ([]*types.BlockedSource, error) {
	return idx.storage.ListBlockedSources(ctx)
}

// UnblockSource lets path be ingested again by the next directory run or
// file event. It does not ingest the file itself.
func (idx *Indexer) UnblockSource(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := idx.storage.UnblockSource(ctx, abs); err != nil {
		return fmt.Errorf("failed to unblock %s: %w", abs, err)
	}
	idx.logger.Info("source unblocked", zap.String("path", abs))
	return nil
}

// ReprocessDeleted unblocks the given sources, or every blocked source when
// paths is empty, and ingests those still on disk. An unknown path fails
// the whole call before anything is unblocked.
func (idx *Indexer) ReprocessDeleted(ctx context.Context, paths []string) ([]ReprocessResult, error) {
	var targets []string
	if len(paths) == 0 {
		blocked, err := idx.storage.ListBlockedSources(ctx)
		if err != nil {
			return nil, err
		}
		for _, b := range blocked {
			targets = append(targets, b.SourcePath)
		}
	} else {
		for _, p := range paths {
			abs, err := filepath.Abs(p)
			if err != nil {
				return nil, err
			}
			if _, err := idx.storage.GetBlockedSource(ctx, abs); err != nil {
				return nil, fmt.Errorf("%s is not blocked: %w", abs, err)
			}
			targets = append(targets, abs)
		}
	}

	results := make([]ReprocessResult, 0, len(targets))
	for _, path := range targets {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if err := idx.UnblockSource(ctx, path); err != nil {
			return results, err
		}

		r := ReprocessResult{SourcePath: path}
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			r.Status = ReprocessMissing
			results = append(results, r)
			continue
		}
		res, err := idx.IngestFile(ctx, path)
		switch {
		case err != nil:
			r.Status = ReprocessFailed
			r.Error = err.Error()
		default:
			r.Status = ReprocessIndexed
			r.DocumentID = res.Document.ID
			r.Chunks = res.ChunksCreated
		}
		results = append(results, r)
	}
	return results, nil
}
