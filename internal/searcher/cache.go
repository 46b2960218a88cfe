package searcher

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pdfkb/pdfkb-search/pkg/types"
)

// checkCache looks up a cached response. Hits are returned as deep copies.
func (s *Searcher) checkCache(key [32]byte) (*types.SearchResponse, bool) {
	if s.cache == nil {
		return nil, false
	}
	now := time.Now()

	s.cacheMu.RLock()
	entry, found := s.cache.Get(key)
	if !found {
		s.cacheMu.RUnlock()
		return nil, false
	}

	if now.After(entry.expiresAt) {
		s.cacheMu.RUnlock()

		s.cacheMu.Lock()
		s.cache.Remove(key)
		s.cacheMu.Unlock()
		return nil, false
	}

	response := entry.response.Clone()
	s.cacheMu.RUnlock()

	return response, true
}

// storeInCache saves a deep copy of response
func (s *Searcher) storeInCache(key [32]byte, response *types.SearchResponse) {
	if s.cache == nil {
		return
	}

	entry := &cacheEntry{
		response:  response.Clone(),
		expiresAt: time.Now().Add(s.cfg.CacheTTL),
	}

	s.cacheMu.Lock()
	s.cache.Add(key, entry)
	s.cacheMu.Unlock()
}

// InvalidateCache drops every cached response
func (s *Searcher) InvalidateCache() {
	if s.cache == nil {
		return
	}
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

// CacheLen returns the number of cached responses
func (s *Searcher) CacheLen() int {
	if s.cache == nil {
		return 0
	}
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.cache.Len()
}

// computeQueryHash hashes the resolved query together with the index
// generation, so any index mutation makes older entries unreachable.
// List filters are order-insensitive and hashed sorted.
func computeQueryHash(p *plan, generation uint64) [32]byte {
	q := p.query

	var data strings.Builder
	data.WriteString(strconv.FormatUint(generation, 10))
	data.WriteString("|")
	data.WriteString(strings.TrimSpace(q.QueryText))
	data.WriteString("|")
	data.WriteString(string(q.Mode))
	data.WriteString("|")
	data.WriteString(strconv.Itoa(q.TopK))
	data.WriteString("|")
	data.WriteString(string(p.fusion))
	data.WriteString("|")
	data.WriteString(strconv.FormatFloat(p.weight, 'g', -1, 64))

	f := q.Filters
	data.WriteString("|docs:")
	data.WriteString(joinSorted(f.DocumentIDs))
	data.WriteString("|from:")
	data.WriteString(formatTime(f.DateFrom))
	data.WriteString("|to:")
	data.WriteString(formatTime(f.DateTo))
	data.WriteString("|include:")
	data.WriteString(joinSorted(lowerAll(f.MustInclude)))
	data.WriteString("|exclude:")
	data.WriteString(joinSorted(lowerAll(f.MustExclude)))
	data.WriteString("|any:")
	data.WriteString(joinSorted(lowerAll(f.AnyOf)))

	return sha256.Sum256([]byte(data.String()))
}

func joinSorted(in []string) string {
	if len(in) == 0 {
		return ""
	}
	out := append([]string(nil), in...)
	sort.Strings(out)
	// %q keeps separators inside terms from colliding
	return fmt.Sprintf("%q", out)
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
