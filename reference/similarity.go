package reference

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

// Cosine returns the cosine similarity of a and b. It is 0 when either
// vector has zero magnitude or the lengths differ.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}

	s := dot / (math.Sqrt(na) * math.Sqrt(nb))
	// Clamp float drift so identical vectors score exactly within [-1, 1].
	return math.Max(-1, math.Min(1, s))
}

var (
	jaroWinkler = metrics.NewJaroWinkler()
	levenshtein = metrics.NewLevenshtein()
)

func init() {
	jaroWinkler.CaseSensitive = false
	levenshtein.CaseSensitive = false
}

func tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func sortedTokens(s string) string {
	t := tokens(s)
	sort.Strings(t)
	return strings.Join(t, " ")
}

// tokenContainment is the share of query tokens present in name.
func tokenContainment(query, name string) float64 {
	q := tokens(query)
	if len(q) == 0 {
		return 0
	}
	have := make(map[string]bool)
	for _, t := range tokens(name) {
		have[t] = true
	}
	hit := 0
	for _, t := range q {
		if have[t] {
			hit++
		}
	}
	return float64(hit) / float64(len(q))
}

// LexicalScore is a fuzzy similarity in [0, 1] that tolerates word order,
// typos and extra qualifiers in reference names.
func LexicalScore(query, name string) float64 {
	q, n := strings.TrimSpace(query), strings.TrimSpace(name)
	if q == "" || n == "" {
		return 0
	}

	score := strutil.Similarity(q, n, jaroWinkler)
	if s := strutil.Similarity(sortedTokens(q), sortedTokens(n), levenshtein); s > score {
		score = s
	}
	if s := tokenContainment(q, n); s > score {
		score = s
	}
	return score
}
