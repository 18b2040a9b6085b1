// Package similarity scores how alike two title strings are on a 0-100 scale.
// Filenames rarely carry punctuation or separator consistency, so both inputs
// are folded before the edit distance is taken.
package similarity

import (
	"strings"
	"unicode"
)

// Ratio returns the symmetric Levenshtein ratio between a and b as a
// percentage: 100 means identical after folding, 0 means nothing in common.
func Ratio(a, b string) int {
	a = Fold(a)
	b = Fold(b)

	if a == b {
		return 100
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	distance := levenshtein(a, b)
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 100
	}

	return int(100 * (1.0 - float64(distance)/float64(maxLen)))
}

// Fold lowercases s, maps "&" to "and", turns separator runes into spaces and
// drops everything that is neither letter nor digit, collapsing runs of
// whitespace. Comparing folded strings forgives the usual filename noise
// ("Me & You", "me.and.you", "Me_and_You").
func Fold(s string) string {
	s = strings.ReplaceAll(s, "&", " and ")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '.' || r == '-' || r == '_':
			b.WriteRune(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

func levenshtein(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)

	// Single-row DP; the full matrix is never needed.
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = minInt(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(rb)]
}

func minInt(values ...int) int {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
