package corpus

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/pdfkb/pdfkb-search/pkg/types"
)

// IndexStats summarizes the corpus statistics BM25 depends on
type IndexStats struct {
	ChunkCount  int     `json:"chunk_count"`
	TermCount   int     `json:"term_count"` // Distinct terms
	TotalLength int     `json:"total_length"`
	AvgLength   float64 `json:"avg_length"`
	Generation  uint64  `json:"generation"`
}

// entry is the per-chunk view kept by the index
type entry struct {
	chunk  *types.Chunk
	terms  map[string]int
	length int
}

// state holds every structure that must change together. Readers see one
// state under the read lock; Rebuild swaps in a fresh state.
type state struct {
	entries     map[string]*entry
	docFreq     map[string]int
	postings    map[string]map[string]int // term -> chunk ID -> term frequency
	totalLength int
}

func newState() *state {
	return &state{
		entries:  make(map[string]*entry),
		docFreq:  make(map[string]int),
		postings: make(map[string]map[string]int),
	}
}

// Index maintains term statistics over the active chunk corpus.
// It is safe for concurrent use: queries take the read lock and mutations
// take the write lock, so no reader observes a partially applied mutation.
type Index struct {
	mu         sync.RWMutex
	params     BM25Params
	st         *state
	generation uint64
}

// NewIndex creates an empty index
func NewIndex(params BM25Params) *Index {
	return &Index{
		params: params.withDefaults(),
		st:     newState(),
	}
}

// Params returns the BM25 parameters used for scoring
func (ix *Index) Params() BM25Params {
	return ix.params
}

// Add indexes a chunk. Adding an ID that is already present replaces the
// previous entry.
func (ix *Index) Add(chunk *types.Chunk) error {
	if chunk == nil || chunk.ID == "" {
		return types.ErrInvalidChunkID
	}

	// Tokenize outside the lock
	e := newEntry(chunk.Clone())

	ix.mu.Lock()
	defer ix.mu.Unlock()

	var err error
	if old, ok := ix.st.entries[chunk.ID]; ok {
		err = ix.st.remove(old)
	}
	ix.st.add(e)
	ix.generation++
	return err
}

// Remove drops a chunk from the index. Unknown IDs are a no-op so that
// document deletion never fails because of the index. The returned error
// wraps types.ErrIndexInconsistency when the statistics were found corrupt;
// the removal is still completed.
func (ix *Index) Remove(chunkID string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	e, ok := ix.st.entries[chunkID]
	if !ok {
		return nil
	}
	err := ix.st.remove(e)
	ix.generation++
	return err
}

// Rebuild replaces the whole index with the given chunks. The new state is
// built before the write lock is taken.
func (ix *Index) Rebuild(chunks []*types.Chunk) error {
	st := newState()
	for _, c := range chunks {
		if c == nil {
			continue
		}
		if c.ID == "" {
			return fmt.Errorf("rebuild: %w", types.ErrInvalidChunkID)
		}
		if old, ok := st.entries[c.ID]; ok {
			_ = st.remove(old)
		}
		st.add(newEntry(c.Clone()))
	}

	ix.mu.Lock()
	ix.st = st
	ix.generation++
	ix.mu.Unlock()
	return nil
}

// Stats returns the current statistics
func (ix *Index) Stats() IndexStats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.st.stats(ix.generation)
}

// Generation returns a counter bumped by every mutation
func (ix *Index) Generation() uint64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.generation
}

// Contains reports whether the chunk is indexed
func (ix *Index) Contains(chunkID string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.st.entries[chunkID]
	return ok
}

// Chunks returns the indexed chunks ordered by ID
func (ix *Index) Chunks() []*types.Chunk {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make([]*types.Chunk, 0, len(ix.st.entries))
	for _, e := range ix.st.entries {
		out = append(out, e.chunk)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Read runs fn with a consistent view of the index. The view must not be
// retained after fn returns.
func (ix *Index) Read(fn func(v *View) error) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return fn(&View{st: ix.st, params: ix.params, generation: ix.generation})
}

// Score tokenizes query and scores it against the current index
func (ix *Index) Score(query string, eligible func(chunkID string) bool) (map[string]float64, error) {
	var scores map[string]float64
	err := ix.Read(func(v *View) error {
		var err error
		scores, err = v.ScoreBM25(Tokenize(query), eligible)
		return err
	})
	return scores, err
}

func newEntry(chunk *types.Chunk) *entry {
	terms := Tokenize(chunk.Content)
	return &entry{
		chunk:  chunk,
		terms:  termCounts(terms),
		length: len(terms),
	}
}

func (s *state) add(e *entry) {
	id := e.chunk.ID
	for term, tf := range e.terms {
		s.docFreq[term]++
		p, ok := s.postings[term]
		if !ok {
			p = make(map[string]int)
			s.postings[term] = p
		}
		p[id] = tf
	}
	s.totalLength += e.length
	s.entries[id] = e
}

// remove undoes add. Violated invariants are clamped and reported.
func (s *state) remove(e *entry) error {
	id := e.chunk.ID
	var problems []error

	for term := range e.terms {
		df := s.docFreq[term] - 1
		switch {
		case df < 0:
			problems = append(problems, fmt.Errorf("negative document frequency for term %q", term))
			delete(s.docFreq, term)
		case df == 0:
			delete(s.docFreq, term)
		default:
			s.docFreq[term] = df
		}

		p, ok := s.postings[term]
		if !ok {
			problems = append(problems, fmt.Errorf("missing postings for term %q", term))
			continue
		}
		if _, ok := p[id]; !ok {
			problems = append(problems, fmt.Errorf("missing posting %q for term %q", id, term))
		}
		delete(p, id)
		if len(p) == 0 {
			delete(s.postings, term)
		}
	}

	s.totalLength -= e.length
	if s.totalLength < 0 {
		problems = append(problems, fmt.Errorf("negative total length %d", s.totalLength))
		s.totalLength = 0
	}
	delete(s.entries, id)

	if len(problems) > 0 {
		return fmt.Errorf("%w: removing %s: %w", types.ErrIndexInconsistency, id, errors.Join(problems...))
	}
	return nil
}

func (s *state) stats(generation uint64) IndexStats {
	st := IndexStats{
		ChunkCount:  len(s.entries),
		TermCount:   len(s.docFreq),
		TotalLength: s.totalLength,
		Generation:  generation,
	}
	if st.ChunkCount > 0 {
		st.AvgLength = float64(s.totalLength) / float64(st.ChunkCount)
	}
	return st
}

// View is a read-only window on the index, valid inside Index.Read
type View struct {
	st         *state
	params     BM25Params
	generation uint64
}

// Stats returns the statistics of the viewed state
func (v *View) Stats() IndexStats {
	return v.st.stats(v.generation)
}

// Chunk looks up an indexed chunk
func (v *View) Chunk(chunkID string) (*types.Chunk, bool) {
	e, ok := v.st.entries[chunkID]
	if !ok {
		return nil, false
	}
	return e.chunk, true
}

// Eligible returns the chunks accepted by match, keyed by ID. A nil match
// accepts every chunk. The returned map is never nil.
func (v *View) Eligible(match func(*types.Chunk) bool) map[string]*types.Chunk {
	out := make(map[string]*types.Chunk, len(v.st.entries))
	for id, e := range v.st.entries {
		if match == nil || match(e.chunk) {
			out[id] = e.chunk
		}
	}
	return out
}
