package storage

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdfkb/pdfkb-search/pkg/types"
)

func TestVectorCodec(t *testing.T) {
	vectors := [][]float32{
		{},
		{1.5},
		{0.1, -0.2, 3.4e-8, float32(math.Inf(1))},
	}
	for _, v := range vectors {
		blob := encodeVector(v)
		assert.Len(t, blob, len(v)*4)
		got, err := decodeVector(blob)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}

	_, err := decodeVector([]byte{1, 2, 3})
	assert.ErrorIs(t, err, errCorruptVector)
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"scaled", []float32{1, 2, 3}, []float32{2, 4, 6}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"length mismatch", []float32{1}, []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, cosineSimilarity(tt.a, tt.b), 1e-6)
		})
	}
}

func TestTopN(t *testing.T) {
	var best topN
	for i, sim := range []float64{0.1, 0.9, 0.5, 0.9, -0.3, 0.7} {
		best.offer(VectorResult{ChunkID: fmt.Sprintf("c%d", i), Similarity: sim}, 3)
	}
	got := best.sorted()
	require.Len(t, got, 3)
	assert.Equal(t, []string{"c1", "c3", "c5"}, []string{got[0].ChunkID, got[1].ChunkID, got[2].ChunkID})
	assert.Zero(t, best.Len())
}

// seedVectors stores one chunk per vector and returns chunk IDs by name
func seedVectors(t *testing.T, storage *SQLiteStorage, vectors map[string][]float32) map[string]string {
	t.Helper()
	ctx := context.Background()

	doc := testDocument("vectors.pdf")
	require.NoError(t, storage.UpsertDocument(ctx, doc))

	ids := make(map[string]string, len(vectors))
	i := 0
	for name, vec := range vectors {
		c := testChunk(doc.ID, doc.Filename, i, "content for "+name)
		require.NoError(t, storage.UpsertChunk(ctx, c))
		require.NoError(t, storage.UpsertEmbedding(ctx, &Embedding{ChunkID: c.ID, Vector: vec, Provider: "test"}))
		ids[name] = c.ID
		i++
	}
	return ids
}

func TestSimilaritySearch(t *testing.T) {
	if VectorExtensionAvailable {
		t.Skip("Skipping test: ranks through the Go fallback")
	}

	storage := setupTestDB(t)
	ids := seedVectors(t, storage, map[string][]float32{
		"same":     {1, 0},
		"diagonal": {0.7071, 0.7071},
		"orth":     {0, 1},
		"opposite": {-1, 0},
		"wrongdim": {1, 0, 0},
	})
	ctx := context.Background()
	query := []float32{1, 0}

	t.Run("ranked by raw cosine", func(t *testing.T) {
		results, err := storage.SimilaritySearch(ctx, query, nil, 10)
		require.NoError(t, err)
		require.Len(t, results, 4, "dimension mismatches are skipped")

		assert.Equal(t, ids["same"], results[0].ChunkID)
		assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)
		assert.Equal(t, ids["diagonal"], results[1].ChunkID)
		assert.Equal(t, ids["orth"], results[2].ChunkID)
		assert.Equal(t, ids["opposite"], results[3].ChunkID)
		assert.InDelta(t, -1.0, results[3].Similarity, 1e-6)
	})

	t.Run("top n", func(t *testing.T) {
		results, err := storage.SimilaritySearch(ctx, query, nil, 2)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, ids["same"], results[0].ChunkID)
	})

	t.Run("restricted to eligible ids", func(t *testing.T) {
		results, err := storage.SimilaritySearch(ctx, query, []string{ids["orth"], ids["opposite"], "unknown"}, 10)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, ids["orth"], results[0].ChunkID)
		assert.Equal(t, ids["opposite"], results[1].ChunkID)
	})

	t.Run("empty eligible set matches nothing", func(t *testing.T) {
		results, err := storage.SimilaritySearch(ctx, query, []string{}, 10)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("non-positive limit", func(t *testing.T) {
		results, err := storage.SimilaritySearch(ctx, query, nil, 0)
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestSimilaritySearch_TiesBreakOnChunkID(t *testing.T) {
	if VectorExtensionAvailable {
		t.Skip("Skipping test: ranks through the Go fallback")
	}

	storage := setupTestDB(t)
	vectors := make(map[string][]float32)
	for i := 0; i < 5; i++ {
		vectors[fmt.Sprintf("v%d", i)] = []float32{0.5, 0.5}
	}
	seedVectors(t, storage, vectors)

	results, err := storage.SimilaritySearch(context.Background(), []float32{1, 1}, nil, 5)
	require.NoError(t, err)
	require.Len(t, results, 5)
	for i := 1; i < len(results); i++ {
		assert.Less(t, results[i-1].ChunkID, results[i].ChunkID)
	}
}

func BenchmarkSimilaritySearchFallback(b *testing.B) {
	storage, err := NewSQLiteStorage(":memory:")
	if err != nil {
		b.Fatal(err)
	}
	defer func() { _ = storage.Close() }()
	ctx := context.Background()

	doc := &types.Document{Filename: "bench.pdf", Status: types.StatusCompleted}
	if err := storage.UpsertDocument(ctx, doc); err != nil {
		b.Fatal(err)
	}
	for i := 0; i < 1000; i++ {
		content := fmt.Sprintf("benchmark chunk %d", i)
		c := &types.Chunk{ID: types.ChunkID("bench.pdf", i, content), DocumentID: doc.ID, Content: content}
		c.Metadata.ChunkIndex = i
		if err := storage.UpsertChunk(ctx, c); err != nil {
			b.Fatal(err)
		}
		vec := make([]float32, 384)
		for j := range vec {
			vec[j] = float32((i*j)%17) * 0.01
		}
		if err := storage.UpsertEmbedding(ctx, &Embedding{ChunkID: c.ID, Vector: vec, Provider: "bench"}); err != nil {
			b.Fatal(err)
		}
	}

	query := make([]float32, 384)
	for i := range query {
		query[i] = float32(i) * 0.01
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := storage.SimilaritySearch(ctx, query, nil, 15); err != nil {
			b.Fatal(err)
		}
	}
}
