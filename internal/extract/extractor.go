// Package extract finds citation-shaped substrings in document text and
// infers case names and years from the surrounding context.
package extract

import (
	"sort"
	"strings"

	"github.com/casetrace/casetrace/internal/model"
)

// spanTolerance buckets near-duplicate spans: two matches with identical
// normalized text whose starts differ by no more than this are one citation.
const spanTolerance = 8

// Extractor scans raw text for citations across all reporter families.
type Extractor struct {
	patterns []Pattern
}

// NewExtractor creates an extractor with the default pattern table.
func NewExtractor() *Extractor {
	return &Extractor{patterns: DefaultPatterns()}
}

// candidate is a raw pattern match before merge and deduplication.
type candidate struct {
	span    model.Span
	text    string
	family  model.ReporterFamily
	pattern string
	order   int // pattern table index, tie-break for identical spans
}

// Extract returns an ordered, deduplicated citation list with spans into
// the original text. Extraction never fails: a match that a family's
// normalizer rejects is skipped, not fatal.
func (e *Extractor) Extract(text string) []model.Citation {
	var candidates []candidate

	for i, p := range e.patterns {
		for _, m := range p.re.FindAllStringIndex(text, -1) {
			norm, ok := normalizeCitationText(text[m[0]:m[1]])
			if !ok {
				continue
			}
			candidates = append(candidates, candidate{
				span:    model.Span{Start: m[0], End: m[1]},
				text:    norm,
				family:  p.Family,
				pattern: p.Name,
				order:   i,
			})
		}
	}

	merged := resolveOverlaps(candidates)

	citations := make([]model.Citation, 0, len(merged))
	var prev *candidate
	for i := range merged {
		c := &merged[i]
		// Near-duplicate bucketing: same text within a small offset is a
		// double count from two patterns, keep the first occurrence.
		if prev != nil && c.text == prev.text && c.span.Start-prev.span.Start <= spanTolerance {
			continue
		}
		citations = append(citations, model.Citation{
			Text:           c.text,
			Span:           c.span,
			ReporterFamily: c.family,
			Pattern:        c.pattern,
		})
		prev = c
	}

	return citations
}

// resolveOverlaps sorts candidates by position and drops overlapping spans,
// preferring the longer match at any contested position.
func resolveOverlaps(candidates []candidate) []candidate {
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.span.Start != b.span.Start {
			return a.span.Start < b.span.Start
		}
		if a.span.End != b.span.End {
			return a.span.End > b.span.End // longer first
		}
		return a.order < b.order
	})

	var kept []candidate
	for _, c := range candidates {
		if len(kept) > 0 && c.span.Start < kept[len(kept)-1].span.End {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

// normalizeCitationText collapses whitespace and undoes line-break
// hyphenation, and validates the match is still citation-shaped. Returns
// ok=false to skip a match the upstream conversion mangled beyond repair.
func normalizeCitationText(raw string) (string, bool) {
	// Rejoin tokens split as "vol-\nume" by PDF conversion.
	for _, artifact := range []string{"-\n", "-\r\n", "­\n", "­"} {
		raw = strings.ReplaceAll(raw, artifact, "")
	}

	norm := strings.Join(strings.Fields(raw), " ")
	if len(norm) < 6 || len(norm) > 80 {
		return "", false
	}
	return norm, true
}
