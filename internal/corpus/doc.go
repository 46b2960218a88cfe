// Package corpus maintains the keyword statistics BM25 needs over the chunk
// corpus: per-chunk term frequencies, per-term document frequencies, chunk
// lengths and their running total.
//
// The Index is an owned object injected into the searcher. Queries read it
// through Read, which holds the read lock for the duration of the callback:
//
//	err := ix.Read(func(v *corpus.View) error {
//	    eligible := v.Eligible(filter.Match)
//	    scores, err := v.ScoreBM25(corpus.Tokenize(query), func(id string) bool {
//	        _, ok := eligible[id]
//	        return ok
//	    })
//	    ...
//	})
//
// Add, Remove and Rebuild take the write lock, so a reader never sees a
// document frequency updated without the matching chunk count.
package corpus
