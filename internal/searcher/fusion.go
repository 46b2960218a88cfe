package searcher

import "sort"

// candidate is one chunk competing for a place in the result list
type candidate struct {
	id       string
	score    float64
	semantic *float64 // Normalized semantic score, nil when not a semantic candidate
	keyword  *float64 // Raw BM25, nil when not a keyword candidate
}

// semanticOnly ranks by normalized semantic score
func semanticOnly(semantic map[string]float64) []candidate {
	out := make([]candidate, 0, len(semantic))
	for id, v := range semantic {
		out = append(out, candidate{id: id, score: v, semantic: ptr(v)})
	}
	return out
}

// keywordOnly ranks by raw BM25 score
func keywordOnly(keyword map[string]float64) []candidate {
	out := make([]candidate, 0, len(keyword))
	for id, v := range keyword {
		out = append(out, candidate{id: id, score: v, keyword: ptr(v)})
	}
	return out
}

// fuseWeighted computes w*semantic + (1-w)*keyword/max(keyword) for every
// chunk in either set. A chunk missing from one set contributes 0 for that
// component.
func fuseWeighted(semantic, keyword map[string]float64, w float64) []candidate {
	maxKeyword := 0.0
	for _, v := range keyword {
		if v > maxKeyword {
			maxKeyword = v
		}
	}

	merged := merge(semantic, keyword)
	for i := range merged {
		c := &merged[i]
		var sem, kw float64
		if c.semantic != nil {
			sem = *c.semantic
		}
		if c.keyword != nil && maxKeyword > 0 {
			kw = *c.keyword / maxKeyword
		}
		c.score = w*sem + (1-w)*kw
	}
	return merged
}

// fuseRRF applies weighted Reciprocal Rank Fusion:
// (w/(k+rank_sem) + (1-w)/(k+rank_kw)) * (k+1) with 1-based ranks. The
// (k+1) factor keeps the fused score within [0,1]; a chunk absent from one
// list contributes 0 for it.
func fuseRRF(semantic, keyword map[string]float64, w, k float64) []candidate {
	if k <= 0 {
		k = DefaultRRFK
	}
	semRanks := ranks(semantic)
	kwRanks := ranks(keyword)

	merged := merge(semantic, keyword)
	for i := range merged {
		c := &merged[i]
		var score float64
		if r, ok := semRanks[c.id]; ok {
			score += w / (k + float64(r))
		}
		if r, ok := kwRanks[c.id]; ok {
			score += (1 - w) / (k + float64(r))
		}
		c.score = score * (k + 1)
	}
	return merged
}

// merge builds one candidate per chunk present in either set
func merge(semantic, keyword map[string]float64) []candidate {
	byID := make(map[string]*candidate, len(semantic)+len(keyword))
	for id, v := range semantic {
		byID[id] = &candidate{id: id, semantic: ptr(v)}
	}
	for id, v := range keyword {
		c, ok := byID[id]
		if !ok {
			c = &candidate{id: id}
			byID[id] = c
		}
		c.keyword = ptr(v)
	}

	out := make([]candidate, 0, len(byID))
	for _, c := range byID {
		out = append(out, *c)
	}
	return out
}

// ranks assigns 1-based positions in score-descending, ID-ascending order
func ranks(scores map[string]float64) map[string]int {
	ordered := make([]candidate, 0, len(scores))
	for id, v := range scores {
		ordered = append(ordered, candidate{id: id, score: v})
	}
	sortCandidates(ordered)

	out := make(map[string]int, len(ordered))
	for i, c := range ordered {
		out[c.id] = i + 1
	}
	return out
}

// rankCandidates sorts the full candidate list and only then truncates to topK
func rankCandidates(candidates []candidate, topK int) []candidate {
	sortCandidates(candidates)
	if topK >= 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates
}

// sortCandidates orders by score descending, ties by chunk ID ascending
func sortCandidates(c []candidate) {
	sort.Slice(c, func(i, j int) bool {
		if c[i].score != c[j].score {
			return c[i].score > c[j].score
		}
		return c[i].id < c[j].id
	})
}

func ptr(v float64) *float64 {
	return &v
}
