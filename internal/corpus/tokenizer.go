package corpus

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Tokenize splits text into lowercase terms. Text is NFKC-normalized first so
// compatibility forms extracted from PDFs (ligatures, full-width digits) map
// to the same terms as their plain spellings. Any rune that is not a letter
// or digit separates tokens; empty tokens are dropped.
//
// The mapping is deterministic: the same input always yields the same terms,
// which keeps index statistics consistent across add and remove.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	normalized := strings.ToLower(norm.NFKC.String(text))
	return strings.FieldsFunc(normalized, isSeparator)
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// termCounts returns the frequency of each term
func termCounts(terms []string) map[string]int {
	counts := make(map[string]int, len(terms))
	for _, t := range terms {
		counts[t]++
	}
	return counts
}
