package verify

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// SearchResult is one unstructured hit from a fallback engine. It is only
// ever consumed for scoring and matching, never trusted as structured data.
type SearchResult struct {
	URL     string
	Title   string
	Snippet string
}

// SearchProvider is the capability interface every fallback engine sits
// behind. Provider-specific query construction and response scraping stay
// inside the provider; scoring and selection are shared.
type SearchProvider interface {
	Name() string
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

// BuildQueries constructs the query variants for one citation, most
// specific first: the exact quoted citation, the citation plus the
// extracted name hint, and the citation restricted to known legal
// reference domains.
func BuildQueries(citation, nameHint string, weights map[string]float64) []string {
	queries := []string{fmt.Sprintf("%q", citation)}
	if nameHint != "" {
		queries = append(queries, fmt.Sprintf("%q %s", citation, nameHint))
	}
	if sites := siteFilter(weights); sites != "" {
		queries = append(queries, fmt.Sprintf("%q %s", citation, sites))
	}
	return queries
}

// siteFilter renders the most reliable domains as a search restriction,
// best-weighted first for engines that truncate long queries.
func siteFilter(weights map[string]float64) string {
	type dw struct {
		domain string
		weight float64
	}
	ranked := make([]dw, 0, len(weights))
	for d, w := range weights {
		ranked = append(ranked, dw{d, w})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].weight != ranked[j].weight {
			return ranked[i].weight > ranked[j].weight
		}
		return ranked[i].domain < ranked[j].domain
	})
	if len(ranked) > 4 {
		ranked = ranked[:4]
	}

	parts := make([]string, 0, len(ranked))
	for _, r := range ranked {
		parts = append(parts, "site:"+r.domain)
	}
	return strings.Join(parts, " OR ")
}
