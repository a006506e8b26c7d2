package extract

import (
	"regexp"

	"github.com/casetrace/casetrace/internal/model"
)

// Pattern is one entry in the reporter pattern table. All entries are
// evaluated uniformly by the extractor; adding a reporter family means
// adding a row here, not a new code path.
type Pattern struct {
	Family model.ReporterFamily
	Name   string
	re     *regexp.Regexp
}

// volume/reporter/page grammar: the whitespace classes deliberately admit
// embedded newlines, since PDF-converted text often breaks a citation
// across lines. The optional "at" admits short-form pincites such as
// "169 Wn.2d at 820".
func vrp(reporters string) string {
	return `\b(\d{1,4})\s+(?:` + reporters + `)\s+(?:at\s+)?(\d{1,5})\b`
}

var defaultPatterns = []Pattern{
	// Federal reporters. Longer alternatives listed first: the regexp
	// engine prefers the leftmost alternative, so "F. Supp. 3d" must win
	// over bare "F."
	{model.FamilyFederal, "federal", regexp.MustCompile(vrp(
		`U\.\s?S\.` +
			`|S\.\s?Ct\.` +
			`|L\.\s?Ed\.\s?2d|L\.\s?Ed\.` +
			`|F\.\s?Supp\.\s?3d|F\.\s?Supp\.\s?2d|F\.\s?Supp\.` +
			`|F\.\s?App'x` +
			`|F\.\s?4th|F\.\s?3d|F\.\s?2d|F\.`))},

	// Regional reporters.
	{model.FamilyRegional, "regional", regexp.MustCompile(vrp(
		`P\.\s?3d|P\.\s?2d|P\.` +
			`|N\.\s?E\.\s?3d|N\.\s?E\.\s?2d|N\.\s?E\.` +
			`|N\.\s?W\.\s?2d|N\.\s?W\.` +
			`|A\.\s?3d|A\.\s?2d` +
			`|S\.\s?E\.\s?2d|S\.\s?E\.` +
			`|S\.\s?W\.\s?3d|S\.\s?W\.\s?2d` +
			`|So\.\s?3d|So\.\s?2d`))},

	// State-specific reporters.
	{model.FamilyState, "state", regexp.MustCompile(vrp(
		`Wn\.\s?2d|Wn\.\s?App\.\s?2d|Wn\.\s?App\.|Wash\.\s?2d|Wash\.\s?App\.|Wash\.` +
			`|Cal\.\s?App\.\s?5th|Cal\.\s?App\.\s?4th|Cal\.\s?App\.\s?3d|Cal\.\s?5th|Cal\.\s?4th|Cal\.\s?3d` +
			`|N\.\s?Y\.\s?3d|N\.\s?Y\.\s?2d` +
			`|Ill\.\s?2d|Ill\.\s?App\.\s?3d` +
			`|Ohio\s?St\.\s?3d|Ohio\s?St\.\s?2d` +
			`|Mass\.\s?App\.\s?Ct\.|Mass\.` +
			`|Wis\.\s?2d` +
			`|Tex\.\s?Crim\.\s?App\.|Tex\.`))},

	// Vendor-neutral public-domain citations: year, court code, sequence.
	{model.FamilyNeutral, "neutral", regexp.MustCompile(
		`\b((?:19|20)\d{2})\s+(UT|VT|WI|ND|SD|NM|MT|WY|CO|OK|AR|ME|NH|MS|IL)\s+(?:App\s+)?(\d{1,6})\b`)},
	{model.FamilyNeutral, "neutral-ohio", regexp.MustCompile(
		`\b((?:19|20)\d{2})-Ohio-(\d{1,6})\b`)},

	// Docket-style citations.
	{model.FamilyDocket, "westlaw", regexp.MustCompile(
		`\b((?:19|20)\d{2})\s+WL\s+(\d{1,8})\b`)},
	{model.FamilyDocket, "lexis", regexp.MustCompile(
		`\b((?:19|20)\d{2})\s+U\.\s?S\.\s?(?:Dist\.|App\.)\s?LEXIS\s+(\d{1,8})\b`)},

	// General-purpose pass: any volume / abbreviated-reporter / page shape
	// not covered above. Classified as a state reporter, the broadest bin;
	// deduplication drops it whenever a specific pattern matched the same
	// token.
	{model.FamilyState, "generic", regexp.MustCompile(
		`\b(\d{1,4})\s+((?:[A-Z][A-Za-z]{1,10}\.\s?){1,3}(?:2d|3d|4th|5th)?)\s?(\d{1,5})\b`)},
}

// DefaultPatterns returns the built-in reporter pattern table.
func DefaultPatterns() []Pattern {
	return defaultPatterns
}
