package corpus

import (
	"math"

	"github.com/pdfkb/pdfkb-search/pkg/types"
)

// Default BM25 constants. Changing them changes every stored score, so they
// are part of the reproducibility contract.
const (
	DefaultK1 = 1.5
	DefaultB  = 0.75
)

// BM25Params configures the keyword scorer
type BM25Params struct {
	K1 float64 // Term frequency saturation
	B  float64 // Length normalization, within [0,1]
}

// DefaultBM25Params returns k1=1.5, b=0.75
func DefaultBM25Params() BM25Params {
	return BM25Params{K1: DefaultK1, B: DefaultB}
}

func (p BM25Params) withDefaults() BM25Params {
	if p.K1 <= 0 || math.IsNaN(p.K1) {
		p.K1 = DefaultK1
	}
	if p.B < 0 || p.B > 1 || math.IsNaN(p.B) {
		p.B = DefaultB
	}
	return p
}

// IDF computes ln(1 + (N - df + 0.5) / (df + 0.5))
func IDF(n, df int) float64 {
	return math.Log(1 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))
}

// ScoreBM25 scores every chunk that shares at least one term with the query.
// Chunks without a shared term get no entry. Corpus-wide statistics are used
// for N, df and avgdl even when eligible narrows the scored set. Repeated
// query terms contribute once per occurrence.
func (v *View) ScoreBM25(terms []string, eligible func(chunkID string) bool) (map[string]float64, error) {
	if len(terms) == 0 {
		return nil, types.ErrEmptyQuery
	}

	scores := make(map[string]float64)
	n := len(v.st.entries)
	if n == 0 {
		return scores, nil
	}

	avgdl := float64(v.st.totalLength) / float64(n)
	if avgdl == 0 {
		avgdl = 1
	}
	k1, b := v.params.K1, v.params.B

	for _, term := range terms {
		df := v.st.docFreq[term]
		if df == 0 {
			continue
		}
		idf := IDF(n, df)

		for id, tf := range v.st.postings[term] {
			if eligible != nil && !eligible(id) {
				continue
			}
			e, ok := v.st.entries[id]
			if !ok {
				continue
			}
			f := float64(tf)
			dl := float64(e.length)
			scores[id] += idf * (f * (k1 + 1)) / (f + k1*(1-b+b*dl/avgdl))
		}
	}

	return scores, nil
}
