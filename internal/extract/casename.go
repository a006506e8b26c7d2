package extract

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/casetrace/casetrace/internal/model"
)

const (
	backWindow    = 300 // how far before a citation the name search reaches
	forwardWindow = 150 // how far past a citation the year search reaches
)

// parallelGapRe matches the text allowed between two citations of one
// parallel run: whitespace, commas and pincite page numbers only. A
// semicolon or any prose breaks the run.
var parallelGapRe = regexp.MustCompile(`^[\s,]*(?:(?:at\s+)?\d{1,5}[\s,]*)*$`)

// IsParallelGap reports whether the text between two adjacent citations
// is consistent with them being parallel cites to one case.
func IsParallelGap(s string) bool {
	return len(s) <= 64 && parallelGapRe.MatchString(s)
}

var (
	// Procedural-style names: "In re Marriage of Smith", "Ex parte Young".
	proceduralRe = regexp.MustCompile(
		`(?:In\s+re|Ex\s+parte|In\s+the\s+Matter\s+of|Matter\s+of|Estate\s+of)\s+[A-Z][^,;()]{0,60}?[,\s]*$`)

	// Adversarial signal token: "v.", "v", "vs.".
	signalRe = regexp.MustCompile(`\s[vV][sS]?\.?\s`)

	// Short-form reference: a single surname directly before the citation,
	// as in "Ervin, 169 Wn.2d at 820".
	shortFormRe = regexp.MustCompile(`([A-Z][A-Za-z'-]{2,}),\s*$`)

	yearParenRe = regexp.MustCompile(`\(([^()]{0,40}?)((?:1[6-9]|20)\d{2})\)`)
	bareYearRe  = regexp.MustCompile(`\b((?:19|20)\d{2})\b`)

	tokenRe = regexp.MustCompile(`\S+`)
)

// connectorWords are lowercase tokens allowed inside a case name ("City of
// Seattle", "Dep't of Ecology"). Any other lowercase token ends the
// backward walk.
var connectorWords = map[string]bool{
	"of": true, "the": true, "ex": true, "rel.": true, "rel": true,
	"and": true, "for": true, "d/b/a": true, "&": true,
}

// leadingJunk is connector prose that must be stripped from the front of a
// raw name match ("see", "quoting Convoyant ...").
var leadingJunk = map[string]bool{
	"see": true, "accord": true, "quoting": true, "citing": true,
	"compare": true, "also": true, "in": true, "but": true, "cf.": true,
	"e.g.,": true, "e.g.": true, "contra": true,
}

// NameResolver infers case names and decision years from the text around
// each citation. It writes extracted fields only; canonical fields belong
// to the verifier.
type NameResolver struct {
	// shortForms maps a party surname to the full case name it was first
	// resolved with, so later short-form references reuse it.
	shortForms map[string]string
}

// NewNameResolver creates a resolver with an empty short-form memory. Use
// one resolver per document.
func NewNameResolver() *NameResolver {
	return &NameResolver{shortForms: make(map[string]string)}
}

// Resolve fills ExtractedCaseName and ExtractedYear on every citation, in
// document order. Absence of a name or year is normal and leaves the field
// empty; Resolve never fails.
func (r *NameResolver) Resolve(text string, citations []model.Citation) {
	for i := range citations {
		first, last := parallelRunBounds(text, citations, i)

		name := r.resolveName(text, citations, i, first)
		if name != "" {
			citations[i].ExtractedCaseName = name
			r.memorize(name)
		}

		citations[i].ExtractedYear = resolveYear(text, citations[last].Span.End)
	}
}

// resolveName scans backward from the first citation of the parallel run
// containing citation i.
func (r *NameResolver) resolveName(text string, citations []model.Citation, i, first int) string {
	regionEnd := citations[first].Span.Start
	regionStart := clampRuneStart(text, regionEnd-backWindow)

	// Contamination stops: never scan across an earlier citation that is
	// not part of this run, and never across a paragraph break. A
	// neighboring case's name must not leak onto this citation.
	for j := first - 1; j >= 0; j-- {
		if citations[j].Span.End <= regionStart {
			break
		}
		if citations[j].Span.End <= regionEnd {
			regionStart = citations[j].Span.End
			break
		}
	}
	region := text[regionStart:regionEnd]
	if idx := strings.LastIndex(region, "\n\n"); idx >= 0 {
		region = region[idx+2:]
	}
	if idx := strings.LastIndex(region, ";"); idx >= 0 {
		region = region[idx+1:]
	}

	// A short-form reference reuses the name resolved for the full cite.
	if m := shortFormRe.FindStringSubmatch(region); m != nil {
		if full, ok := r.shortForms[strings.ToLower(m[1])]; ok {
			return full
		}
	}

	if m := proceduralRe.FindString(region); m != "" {
		return strings.TrimRight(strings.TrimSpace(m), ", ")
	}

	return adversarialName(region)
}

// adversarialName extracts "Party v. Party" from the tail of the region.
func adversarialName(region string) string {
	sigs := signalRe.FindAllStringIndex(region, -1)
	if sigs == nil {
		return ""
	}
	sig := sigs[len(sigs)-1]

	right := cleanRightParty(region[sig[1]:])
	if right == "" {
		return ""
	}

	leftStart := leftPartyStart(region[:sig[0]])
	if leftStart < 0 {
		return ""
	}

	name := region[leftStart:sig[1]] + right
	return strings.TrimRight(strings.TrimSpace(name), ", ")
}

// cleanRightParty trims trailing pincite fragments and commas from the
// second party, which sits directly against the citation.
func cleanRightParty(s string) string {
	tokens := tokenRe.FindAllStringIndex(s, -1)
	if len(tokens) == 0 || len(tokens) > 10 {
		return ""
	}
	end := 0
	for _, tok := range tokens {
		word := strings.Trim(s[tok[0]:tok[1]], ",")
		if word == "at" || isNumeric(word) {
			break
		}
		end = tok[1]
	}
	if end == 0 {
		return ""
	}
	out := strings.TrimRight(s[:end], ", ")
	r, _ := utf8.DecodeRuneInString(out)
	if !unicode.IsUpper(r) && !unicode.IsDigit(r) {
		return ""
	}
	return out
}

// leftPartyStart walks backward over the tokens before the signal,
// collecting the first party and stripping leading connector prose.
// Returns -1 when no plausible party remains.
func leftPartyStart(s string) int {
	tokens := tokenRe.FindAllStringIndex(s, -1)
	if len(tokens) == 0 {
		return -1
	}

	// Collect name-like tokens from the end.
	start := len(tokens)
	for i := len(tokens) - 1; i >= 0 && len(tokens)-i <= 10; i-- {
		word := s[tokens[i][0]:tokens[i][1]]
		if strings.HasPrefix(word, "(") || strings.ContainsAny(word, ";") {
			break
		}
		bare := strings.Trim(word, ",.()")
		r, _ := utf8.DecodeRuneInString(bare)
		if !unicode.IsUpper(r) && !unicode.IsDigit(r) && !connectorWords[strings.ToLower(bare)] {
			break
		}
		start = i
	}

	// Strip leading connector prose and dangling connectors.
	for start < len(tokens) {
		word := strings.ToLower(strings.Trim(s[tokens[start][0]:tokens[start][1]], ","))
		if leadingJunk[word] || connectorWords[word] {
			start++
			continue
		}
		break
	}
	if start >= len(tokens) {
		return -1
	}

	r, _ := utf8.DecodeRuneInString(s[tokens[start][0]:])
	if !unicode.IsUpper(r) && !unicode.IsDigit(r) {
		return -1
	}
	return tokens[start][0]
}

// resolveYear looks for a trailing parenthetical year after the parallel
// run, then falls back to the first bare year within the forward window.
func resolveYear(text string, runEnd int) string {
	end := runEnd + forwardWindow
	if end > len(text) {
		end = len(text)
	}
	window := text[clampRuneStart(text, runEnd):end]

	if m := yearParenRe.FindStringSubmatch(window); m != nil {
		return m[2]
	}
	// Fallback: a bare year close to the citation.
	near := window
	if len(near) > 40 {
		near = near[:40]
	}
	if m := bareYearRe.FindStringSubmatch(near); m != nil {
		return m[1]
	}
	return ""
}

// parallelRunBounds returns the index range [first, last] of the parallel
// run containing citation i: maximal neighbors separated only by
// punctuation and pincites.
func parallelRunBounds(text string, citations []model.Citation, i int) (int, int) {
	first := i
	for first > 0 && IsParallelGap(text[citations[first-1].Span.End:citations[first].Span.Start]) {
		first--
	}
	last := i
	for last < len(citations)-1 && IsParallelGap(text[citations[last].Span.End:citations[last+1].Span.Start]) {
		last++
	}
	return first, last
}

// surnameNoise lists tokens that never serve as a short-form surname.
var surnameNoise = map[string]bool{
	"llc": true, "inc": true, "corp": true, "co": true, "ltd": true,
	"assn": true, "ass'n": true,
}

// memorize indexes a resolved name under each party's distinctive surname
// for later short-form references. First full resolution wins.
func (r *NameResolver) memorize(name string) {
	for _, part := range signalRe.Split(name, -1) {
		fields := strings.Fields(part)
		for i := len(fields) - 1; i >= 0; i-- {
			surname := strings.Trim(fields[i], ",.")
			key := strings.ToLower(surname)
			if len(surname) <= 2 || connectorWords[key] || surnameNoise[strings.Trim(key, ".")] {
				continue
			}
			if _, seen := r.shortForms[key]; !seen {
				r.shortForms[key] = name
			}
			break
		}
	}
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// clampRuneStart clamps an offset into [0, len(text)] and walks it back to
// a UTF-8 rune boundary.
func clampRuneStart(text string, off int) int {
	if off < 0 {
		return 0
	}
	if off > len(text) {
		off = len(text)
	}
	for off > 0 && off < len(text) && !utf8.RuneStart(text[off]) {
		off--
	}
	return off
}
