// Package similarity provides case-name normalization and string similarity
// used by cluster name agreement and verifier candidate disambiguation.
package similarity

import (
	"strings"
	"unicode"
)

// noiseWords are tokens that carry no identity when comparing case names.
var noiseWords = map[string]bool{
	"llc": true, "inc": true, "corp": true, "co": true, "ltd": true,
	"the": true, "of": true, "et": true, "al": true,
}

// Normalize lowercases a case name, collapses punctuation to spaces and
// squeezes whitespace, so that "Convoyant, LLC v. DeepThink, LLC" and
// "convoyant llc v deepthink llc" compare equal.
func Normalize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Score returns a similarity in [0,1] between two case names. It blends
// token overlap with edit distance: token overlap is robust to reordered
// or dropped parties, edit distance catches near-identical strings with
// small spelling drift. Empty input scores zero.
func Score(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}

	jac := tokenJaccard(na, nb)
	lev := levenshteinRatio(na, nb)
	return 0.6*jac + 0.4*lev
}

// tokenJaccard computes |A∩B| / |A∪B| over significant tokens.
func tokenJaccard(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	inter := 0
	for tok := range setA {
		if setB[tok] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(s) {
		if noiseWords[tok] || tok == "v" || tok == "vs" {
			continue
		}
		set[tok] = true
	}
	return set
}

// levenshteinRatio converts edit distance to a [0,1] similarity.
func levenshteinRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 0
	}
	dist := levenshtein(ra, rb)
	return 1 - float64(dist)/float64(longest)
}

// levenshtein computes edit distance with the two-row dynamic program.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
