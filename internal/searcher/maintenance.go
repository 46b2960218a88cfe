package searcher

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pdfkb/pdfkb-search/internal/corpus"
	"github.com/pdfkb/pdfkb-search/pkg/types"
)

// NotifyChunkAdded indexes a newly stored chunk
func (s *Searcher) NotifyChunkAdded(ctx context.Context, chunk *types.Chunk) error {
	err := s.index.Add(chunk)
	if errors.Is(err, types.ErrIndexInconsistency) {
		return s.repair(ctx, err, zap.String("chunk_id", chunk.ID))
	}
	return err
}

// NotifyChunkRemoved drops a deleted chunk from the index. Unknown IDs are
// ignored. An inconsistency found on the way is logged and repaired with a
// full rebuild; only a failed rebuild is returned.
func (s *Searcher) NotifyChunkRemoved(ctx context.Context, chunkID string) error {
	err := s.index.Remove(chunkID)
	if errors.Is(err, types.ErrIndexInconsistency) {
		return s.repair(ctx, err, zap.String("chunk_id", chunkID))
	}
	return err
}

func (s *Searcher) repair(ctx context.Context, cause error, fields ...zap.Field) error {
	s.logger.Error("corpus index inconsistency, rebuilding",
		append(fields, zap.Error(cause))...)

	if _, err := s.RebuildIndex(ctx); err != nil {
		return fmt.Errorf("rebuild after inconsistency: %w", err)
	}
	return nil
}

// RebuildIndex reloads every chunk from the chunk repository and swaps in a
// fresh index. Concurrent callers share one rebuild. Without a repository
// the index is rebuilt from its own chunks, which still repairs drifted
// statistics.
func (s *Searcher) RebuildIndex(ctx context.Context) (corpus.IndexStats, error) {
	v, err, shared := s.rebuilds.Do("rebuild", func() (interface{}, error) {
		var chunks []*types.Chunk
		if s.chunks != nil {
			var err error
			chunks, err = s.chunks.ListChunks(ctx)
			if err != nil {
				return corpus.IndexStats{}, fmt.Errorf("failed to load chunks: %w", err)
			}
		} else {
			chunks = s.index.Chunks()
		}

		if err := s.index.Rebuild(chunks); err != nil {
			return corpus.IndexStats{}, err
		}
		return s.index.Stats(), nil
	})
	if err != nil {
		s.logger.Error("index rebuild failed", zap.Error(err))
		return corpus.IndexStats{}, err
	}

	stats := v.(corpus.IndexStats)
	s.logger.Info("corpus index rebuilt",
		zap.Int("chunks", stats.ChunkCount),
		zap.Int("terms", stats.TermCount),
		zap.Bool("shared", shared))
	return stats, nil
}

// IndexStats returns the current corpus statistics
func (s *Searcher) IndexStats() corpus.IndexStats {
	return s.index.Stats()
}

// Chunk returns an indexed chunk, falling back to the chunk repository for
// chunks the index hasn't seen yet
func (s *Searcher) Chunk(ctx context.Context, chunkID string) (*types.Chunk, error) {
	var found *types.Chunk
	_ = s.index.Read(func(v *corpus.View) error {
		if c, ok := v.Chunk(chunkID); ok {
			found = c.Clone()
		}
		return nil
	})
	if found != nil {
		return found, nil
	}
	if s.chunks == nil {
		return nil, fmt.Errorf("chunk %s: %w", chunkID, types.ErrNotFound)
	}
	return s.chunks.GetChunk(ctx, chunkID)
}
