package verify

import (
	"context"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/casetrace/casetrace/internal/similarity"
)

// fetchTopN bounds how many candidate pages the scorer fetches when the
// snippet alone is inconclusive.
const fetchTopN = 3

// ScoredResult is a search hit with its reliability/match score and the
// case name recovered from the result title.
type ScoredResult struct {
	SearchResult
	Score    float64
	CaseName string
}

// ResultScorer ranks fallback search hits. Scoring is static and
// transparent: a per-domain reliability weight times the strength of the
// literal citation/name match.
type ResultScorer struct {
	weights map[string]float64
	generic float64
	fetcher *PageFetcher
}

// NewResultScorer builds a scorer over the configured reliability table.
func NewResultScorer(weights map[string]float64, generic float64, fetcher *PageFetcher) *ResultScorer {
	if generic <= 0 {
		generic = 0.3
	}
	return &ResultScorer{weights: weights, generic: generic, fetcher: fetcher}
}

// DomainWeight returns the reliability weight for a result URL's host,
// matching registered domains by suffix so subdomains inherit the weight.
func (s *ResultScorer) DomainWeight(rawURL string) float64 {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return s.generic
	}
	host := strings.ToLower(parsed.Hostname())

	best := 0.0
	for domain, weight := range s.weights {
		if (host == domain || strings.HasSuffix(host, "."+domain)) && weight > best {
			best = weight
		}
	}
	if best == 0 {
		return s.generic
	}
	return best
}

// Rank scores all results against the citation and name hint, fetching
// the accessible text of the strongest few when the snippet alone does not
// show the citation, and returns them best first.
func (s *ResultScorer) Rank(ctx context.Context, results []SearchResult, citation, nameHint string) []ScoredResult {
	scored := make([]ScoredResult, 0, len(results))
	for _, r := range results {
		scored = append(scored, s.score(r, citation, nameHint, ""))
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	// Second pass: fetch pages for the top candidates whose snippet did
	// not literally contain the citation, then re-rank.
	if s.fetcher != nil {
		refetched := false
		for i := 0; i < len(scored) && i < fetchTopN; i++ {
			if containsFold(scored[i].Title+" "+scored[i].Snippet, citation) {
				continue
			}
			pageText, err := s.fetcher.VisibleText(ctx, scored[i].URL)
			if err != nil || pageText == "" {
				continue
			}
			scored[i] = s.score(scored[i].SearchResult, citation, nameHint, pageText)
			refetched = true
		}
		if refetched {
			sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
		}
	}
	return scored
}

// score combines the literal-presence evidence and name similarity, scaled
// by domain reliability. The result is comparable against the same
// similarity floor used for authority disambiguation.
func (s *ResultScorer) score(r SearchResult, citation, nameHint, pageText string) ScoredResult {
	out := ScoredResult{SearchResult: r, CaseName: caseNameFromTitle(r.Title)}

	evidence := 0.0
	visible := r.Title + " " + r.Snippet + " " + pageText
	if containsFold(visible, citation) {
		evidence = 0.8
	}
	if nameHint != "" {
		if sim := similarity.Score(nameHint, out.CaseName); sim > evidence {
			evidence = sim
		}
		if containsFold(visible, nameHint) && evidence < 0.85 {
			evidence = 0.85
		}
	}

	weight := s.DomainWeight(r.URL)
	out.Score = evidence * (0.4 + 0.6*weight)
	return out
}

var titleCitationRe = regexp.MustCompile(`[,:]?\s*\d{1,4}\s+[A-Z][\w.' ]{0,20}\d{1,5}.*$`)

// caseNameFromTitle strips site suffixes and trailing citation fragments
// from a result title, leaving the probable case name.
func caseNameFromTitle(title string) string {
	for _, sep := range []string{" | ", " - ", " — ", " :: "} {
		if idx := strings.Index(title, sep); idx > 0 {
			title = title[:idx]
		}
	}
	title = titleCitationRe.ReplaceAllString(title, "")
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(title), ","))
}

// containsFold is a case-insensitive substring test with collapsed
// whitespace on both sides.
func containsFold(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	h := strings.ToLower(strings.Join(strings.Fields(haystack), " "))
	n := strings.ToLower(strings.Join(strings.Fields(needle), " "))
	return strings.Contains(h, n)
}
