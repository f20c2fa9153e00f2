package search

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/agext/levenshtein"
)

// DefaultThreshold is the largest error ratio (edits / pattern length) a
// field may have and still match.
const DefaultThreshold = 0.3

// perfectScore stands in for a zero-error match so weighted products stay ordered.
const perfectScore = 2.220446049250313e-16

// field is one weighted key of an Entry.
type field struct {
	weight float64
	get    func(Entry) string
}

// name 2, description 1, companyName 1.5
var fields = []field{
	{2, func(e Entry) string { return e.Name }},
	{1, func(e Entry) string { return e.Description }},
	{1.5, func(e Entry) string { return e.CompanyName }},
}

// normalizedWeights divides each weight by their sum.
func normalizedWeights() []float64 {
	total := 0.0
	for _, f := range fields {
		total += f.weight
	}
	out := make([]float64, len(fields))
	for i, f := range fields {
		out[i] = f.weight / total
	}
	return out
}

// matchRatio returns the fewest edits turning pattern into any substring of
// text, divided by the pattern length. Position within text is ignored.
func matchRatio(pattern, text string) float64 {
	m := utf8.RuneCountInString(pattern)
	if m == 0 {
		return 1
	}
	if strings.Contains(text, pattern) {
		return 0
	}
	return float64(substringDistance([]rune(pattern), text)) / float64(m)
}

// substringDistance is Sellers' approximate substring match: an edit
// distance table whose first row is all zeros, so a match may start
// anywhere in text. The answer is the smallest value of the last row.
// O(len(pattern) * len(text)) time, O(len(pattern)) space.
func substringDistance(p []rune, text string) int {
	m := len(p)
	col := make([]int, m+1)
	for i := range col {
		col[i] = i
	}
	best := m
	for _, c := range text {
		diag := col[0]
		col[0] = 0
		for i := 1; i <= m; i++ {
			cost := 1
			if p[i-1] == c {
				cost = 0
			}
			next := min(col[i]+1, col[i-1]+1, diag+cost)
			diag = col[i]
			col[i] = next
		}
		if col[m] < best {
			best = col[m]
			if best == 0 {
				break
			}
		}
	}
	return best
}

// nameDistance is the whole-field edit distance between the query and an
// entry name, capped just past the query length. It orders results whose
// fuzzy scores tie.
func nameDistance(query, name string) int {
	limit := utf8.RuneCountInString(query) + 1
	return levenshtein.Distance(query, strings.ToLower(name), levenshtein.NewParams().MaxCost(limit))
}

// scoreEntry combines per-field matches the way Fuse does: the product of
// score^normalizedWeight over matching fields. Lower is better; ok is false
// when no field is within threshold.
func scoreEntry(pattern string, e Entry, threshold float64, weights []float64) (score float64, ok bool) {
	score = 1
	for i, f := range fields {
		text := strings.ToLower(f.get(e))
		if text == "" {
			continue
		}
		r := matchRatio(pattern, text)
		if r > threshold {
			continue
		}
		ok = true
		if r == 0 {
			r = perfectScore
		}
		score *= math.Pow(r, weights[i])
	}
	return score, ok
}
