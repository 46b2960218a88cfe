package filter

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/pdfkb/pdfkb-search/pkg/types"
)

// Filter is a compiled set of filter criteria. All active categories are
// combined with AND. Term categories match case-insensitive substrings of
// the chunk content, so "net" matches "network". Content and terms are
// NFKC-folded the same way the keyword tokenizer folds them.
type Filter struct {
	documentIDs map[string]struct{}
	from        *time.Time
	to          *time.Time
	mustInclude []string
	mustExclude []string
	anyOf       []string
}

// New compiles criteria. Blank terms are ignored; an inverted date range is
// rejected with types.ErrInvalidQuery.
func New(criteria types.Filters) (*Filter, error) {
	c := criteria.Normalized()
	if err := c.Validate(); err != nil {
		return nil, err
	}

	f := &Filter{
		from:        c.DateFrom,
		to:          c.DateTo,
		mustInclude: foldAll(c.MustInclude),
		mustExclude: foldAll(c.MustExclude),
		anyOf:       foldAll(c.AnyOf),
	}
	if len(c.DocumentIDs) > 0 {
		f.documentIDs = make(map[string]struct{}, len(c.DocumentIDs))
		for _, id := range c.DocumentIDs {
			f.documentIDs[id] = struct{}{}
		}
	}
	return f, nil
}

// Active reports whether any category restricts the chunk set
func (f *Filter) Active() bool {
	return f.documentIDs != nil || f.from != nil || f.to != nil ||
		len(f.mustInclude) > 0 || len(f.mustExclude) > 0 || len(f.anyOf) > 0
}

// Match reports whether the chunk satisfies every active category
func (f *Filter) Match(c *types.Chunk) bool {
	if c == nil {
		return false
	}
	if f.documentIDs != nil {
		if _, ok := f.documentIDs[c.DocumentID]; !ok {
			return false
		}
	}
	if !f.matchDate(c.Metadata.UploadedAt) {
		return false
	}
	if len(f.mustInclude) == 0 && len(f.mustExclude) == 0 && len(f.anyOf) == 0 {
		return true
	}

	content := fold(c.Content)
	for _, term := range f.mustInclude {
		if !strings.Contains(content, term) {
			return false
		}
	}
	for _, term := range f.mustExclude {
		if strings.Contains(content, term) {
			return false
		}
	}
	if len(f.anyOf) > 0 {
		for _, term := range f.anyOf {
			if strings.Contains(content, term) {
				return true
			}
		}
		return false
	}
	return true
}

// matchDate applies the inclusive [from, to] bound to the document date
func (f *Filter) matchDate(d time.Time) bool {
	if f.from != nil && d.Before(*f.from) {
		return false
	}
	if f.to != nil && d.After(*f.to) {
		return false
	}
	return true
}

// Apply returns the chunks that match, preserving order. An empty result is
// a valid outcome, not an error.
func (f *Filter) Apply(chunks []*types.Chunk) []*types.Chunk {
	out := make([]*types.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if f.Match(c) {
			out = append(out, c)
		}
	}
	return out
}

// Applied describes the active categories for the response envelope
func Applied(criteria types.Filters) map[string]any {
	c := criteria.Normalized()
	if c.IsEmpty() {
		return nil
	}

	applied := make(map[string]any)
	if len(c.DocumentIDs) > 0 {
		applied["document_ids"] = c.DocumentIDs
	}
	if c.DateFrom != nil {
		applied["date_from"] = c.DateFrom.Format(time.RFC3339)
	}
	if c.DateTo != nil {
		applied["date_to"] = c.DateTo.Format(time.RFC3339)
	}
	if len(c.MustInclude) > 0 {
		applied["must_include"] = c.MustInclude
	}
	if len(c.MustExclude) > 0 {
		applied["must_exclude"] = c.MustExclude
	}
	if len(c.AnyOf) > 0 {
		applied["any_of"] = c.AnyOf
	}
	return applied
}

// Accepted date layouts, most specific first
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDate parses a filter bound. Empty input yields nil. A date without a
// time of day is the start of that day in UTC, or its last instant when
// endOfDay is set, so a date-only upper bound includes the whole day.
func ParseDate(s string, endOfDay bool) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if layout == "2006-01-02" && endOfDay {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		return &t, nil
	}
	return nil, fmt.Errorf("%w: unrecognized date %q (want RFC 3339 or YYYY-MM-DD)", types.ErrInvalidQuery, s)
}

func fold(s string) string {
	return strings.ToLower(norm.NFKC.String(s))
}

func foldAll(terms []string) []string {
	if len(terms) == 0 {
		return nil
	}
	out := make([]string, len(terms))
	for i, t := range terms {
		out[i] = fold(t)
	}
	return out
}
