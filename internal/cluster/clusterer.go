// Package cluster groups citations that a document's author intended as
// parallel cites to one case.
package cluster

import (
	"fmt"

	"github.com/casetrace/casetrace/internal/extract"
	"github.com/casetrace/casetrace/internal/model"
	"github.com/casetrace/casetrace/internal/similarity"
)

// Clusterer partitions an ordered citation list into clusters. Two signals
// combine: positional proximity (a comma-joined parallel list) and name
// agreement (the same extracted name repeated later in the same prose
// window). Proximity always gates: identical citations in unrelated parts
// of a long document stay separate.
type Clusterer struct {
	adjacencyGap   int
	nameJoinWindow int
}

// New creates a clusterer with the given windows. Both are byte distances
// between span edges; zero values fall back to defaults.
func New(cfg model.ClusterConfig) *Clusterer {
	c := &Clusterer{
		adjacencyGap:   cfg.AdjacencyGap,
		nameJoinWindow: cfg.NameJoinWindow,
	}
	if c.adjacencyGap <= 0 {
		c.adjacencyGap = 64
	}
	if c.nameJoinWindow <= 0 {
		c.nameJoinWindow = 1000
	}
	return c
}

// Cluster groups the citations in place: it sets ClusterID on each citation
// and returns the clusters in document order of their first member.
// Citations must be the complete, order-preserved list for the document.
func (c *Clusterer) Cluster(text string, citations []model.Citation) []*model.Cluster {
	if len(citations) == 0 {
		return nil
	}

	// Union-find over citation indexes.
	parent := make([]int, len(citations))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			if rb < ra {
				ra, rb = rb, ra
			}
			parent[rb] = ra // keep the earliest index as root
		}
	}

	// Signal 1: positional proximity. Adjacent citations separated only by
	// punctuation and pincites form one parallel run, unless both carry
	// conflicting extracted names, which a single case cannot have.
	for i := 1; i < len(citations); i++ {
		gap := text[citations[i-1].Span.End:citations[i].Span.Start]
		if len(gap) > c.adjacencyGap || !extract.IsParallelGap(gap) {
			continue
		}
		if namesConflict(citations[i-1].ExtractedCaseName, citations[i].ExtractedCaseName) {
			continue
		}
		union(i-1, i)
	}

	// Signal 2: name agreement, gated by the bounded prose window. An
	// author repeating a short-form cite in the same section means the
	// same case; the same reporter cite thousands of characters away in
	// unrelated prose does not.
	for i := 0; i < len(citations); i++ {
		ni := similarity.Normalize(citations[i].ExtractedCaseName)
		if ni == "" {
			continue
		}
		for j := i + 1; j < len(citations); j++ {
			dist := citations[j].Span.Start - citations[i].Span.End
			if dist > c.nameJoinWindow {
				break
			}
			if similarity.Normalize(citations[j].ExtractedCaseName) == ni {
				union(i, j)
			}
		}
	}

	return c.build(citations, find)
}

// build materializes clusters from the union-find structure, in document
// order, and writes back-references onto the citations.
func (c *Clusterer) build(citations []model.Citation, find func(int) int) []*model.Cluster {
	byRoot := make(map[int]*model.Cluster)
	var clusters []*model.Cluster

	for i := range citations {
		root := find(i)
		cl, ok := byRoot[root]
		if !ok {
			cl = &model.Cluster{ID: fmt.Sprintf("cluster-%d", len(clusters)+1)}
			byRoot[root] = cl
			clusters = append(clusters, cl)
		}
		cl.Members = append(cl.Members, &citations[i])
		citations[i].ClusterID = cl.ID

		// Representative name and year: first non-empty in document order.
		// First-seen wins; later members never rewrite an established
		// cluster identity.
		if cl.CaseName == "" && citations[i].ExtractedCaseName != "" {
			cl.CaseName = citations[i].ExtractedCaseName
		}
		if cl.Year == "" && citations[i].ExtractedYear != "" {
			cl.Year = citations[i].ExtractedYear
		}
	}

	return clusters
}

// namesConflict reports whether two extracted names disagree. A cluster
// must never mix two case names unless at least one member is unnamed.
func namesConflict(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return similarity.Normalize(a) != similarity.Normalize(b)
}
