package storage

import (
	"container/heap"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// errCorruptVector reports a stored blob whose length is not a whole number
// of float32 values
var errCorruptVector = errors.New("corrupt vector blob")

// searchVector ranks stored embeddings by raw cosine similarity to vec,
// restricted to eligibleIDs when non-nil, best first with ties on chunk ID
func searchVector(ctx context.Context, q querier, vec []float32, eligibleIDs []string, limit int) ([]VectorResult, error) {
	if limit <= 0 || len(vec) == 0 || (eligibleIDs != nil && len(eligibleIDs) == 0) {
		return []VectorResult{}, nil
	}
	if VectorExtensionAvailable {
		return searchVectorSQL(ctx, q, vec, eligibleIDs, limit)
	}
	return searchVectorScan(ctx, q, vec, eligibleIDs, limit)
}

// eligibleClause restricts a query on embeddings e to the given chunk IDs.
// The IDs travel as one JSON array parameter so large sets don't hit the
// bound-variable limit.
func eligibleClause(query string, args []interface{}, eligibleIDs []string) (string, []interface{}, error) {
	if eligibleIDs == nil {
		return query, args, nil
	}
	ids, err := json.Marshal(eligibleIDs)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode eligible ids: %w", err)
	}
	query += " AND e.chunk_id IN (SELECT value FROM json_each(?))"
	return query, append(args, string(ids)), nil
}

// searchVectorSQL lets sqlite-vec compute and order the distances
func searchVectorSQL(ctx context.Context, q querier, vec []float32, eligibleIDs []string, limit int) ([]VectorResult, error) {
	query, args, err := eligibleClause(`
		SELECT e.chunk_id, 1.0 - vec_distance_cosine(e.vector, ?) AS similarity
		FROM embeddings e
		WHERE e.dimension = ?`,
		[]interface{}{encodeVector(vec), len(vec)}, eligibleIDs)
	if err != nil {
		return nil, err
	}
	query += " ORDER BY similarity DESC, e.chunk_id ASC LIMIT ?"
	args = append(args, limit)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]VectorResult, 0, limit)
	for rows.Next() {
		var r VectorResult
		if err := rows.Scan(&r.ChunkID, &r.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		// sqlite-vec distances carry float error past [0,2]
		r.Similarity = clampUnit(r.Similarity)
		results = append(results, r)
	}
	return results, rows.Err()
}

// searchVectorScan streams every candidate vector through Go and keeps the
// best limit of them in a bounded min-heap
func searchVectorScan(ctx context.Context, q querier, vec []float32, eligibleIDs []string, limit int) ([]VectorResult, error) {
	query, args, err := eligibleClause(`
		SELECT e.chunk_id, e.vector
		FROM embeddings e
		WHERE e.dimension = ?`,
		[]interface{}{len(vec)}, eligibleIDs)
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	best := make(topN, 0, limit+1)
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var (
			chunkID string
			blob    []byte
		)
		if err := rows.Scan(&chunkID, &blob); err != nil {
			return nil, err
		}
		stored, err := decodeVector(blob)
		if err != nil || len(stored) != len(vec) {
			continue
		}
		best.offer(VectorResult{ChunkID: chunkID, Similarity: cosineSimilarity(vec, stored)}, limit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return best.sorted(), nil
}

// topN is a min-heap whose root is the worst kept result
type topN []VectorResult

// worse orders results by similarity, then by chunk ID descending, so the
// root is the first result to drop
func worse(a, b VectorResult) bool {
	if a.Similarity != b.Similarity {
		return a.Similarity < b.Similarity
	}
	return a.ChunkID > b.ChunkID
}

func (h topN) Len() int            { return len(h) }
func (h topN) Less(i, j int) bool  { return worse(h[i], h[j]) }
func (h topN) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *topN) Push(x interface{}) { *h = append(*h, x.(VectorResult)) }
func (h *topN) Pop() interface{} {
	old := *h
	r := old[len(old)-1]
	*h = old[:len(old)-1]
	return r
}

func (h *topN) offer(r VectorResult, limit int) {
	if h.Len() < limit {
		heap.Push(h, r)
		return
	}
	if worse((*h)[0], r) {
		(*h)[0] = r
		heap.Fix(h, 0)
	}
}

// sorted drains the heap best first
func (h *topN) sorted() []VectorResult {
	out := make([]VectorResult, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(VectorResult)
	}
	return out
}

// encodeVector packs a vector as little-endian float32s
func encodeVector(vec []float32) []byte {
	blob := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(blob[4*i:], math.Float32bits(v))
	}
	return blob
}

func decodeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", errCorruptVector, len(blob))
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[4*i:]))
	}
	return vec, nil
}

// cosineSimilarity returns the raw cosine in [-1, 1]. Zero vectors and
// mismatched lengths score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return clampUnit(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func clampUnit(s float64) float64 {
	return math.Max(-1, math.Min(1, s))
}
