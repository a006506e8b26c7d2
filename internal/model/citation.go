package model

// Span is a half-open [Start, End) character offset range into the source text
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of bytes covered by the span
func (s Span) Len() int {
	return s.End - s.Start
}

// Overlaps reports whether two spans share at least one offset
func (s Span) Overlaps(other Span) bool {
	return s.Start < other.End && other.Start < s.End
}

// ReporterFamily classifies the reporter a citation points into
type ReporterFamily string

const (
	FamilyFederal  ReporterFamily = "federal"  // U.S., S. Ct., F.2d, F. Supp.
	FamilyRegional ReporterFamily = "regional" // P.3d, N.E.2d, A.3d, So. 2d
	FamilyState    ReporterFamily = "state"    // Wn.2d, Cal. App. 4th, N.Y.2d
	FamilyNeutral  ReporterFamily = "neutral"  // 2022 UT 14 style vendor-neutral
	FamilyDocket   ReporterFamily = "docket"   // 2021 WL 1234567 style
)

// Citation is a single textual citation occurrence in one document.
//
// Extracted* fields are inferred from local text by the resolver and are
// never treated as ground truth. Canonical* fields are populated only by
// the verifier. The two groups are independently settable and one never
// overwrites the other.
type Citation struct {
	Text           string         `json:"citation"` // normalized citation string, e.g. "200 Wn.2d 72"
	Span           Span           `json:"span"`     // offsets into the source document
	ReporterFamily ReporterFamily `json:"reporter_family"`
	Pattern        string         `json:"pattern,omitempty"` // which extraction pattern matched

	ExtractedCaseName string `json:"extracted_case_name,omitempty"`
	ExtractedYear     string `json:"extracted_year,omitempty"`

	CanonicalName      string `json:"canonical_name,omitempty"`
	CanonicalDate      string `json:"canonical_date,omitempty"`
	CanonicalURL       string `json:"canonical_url,omitempty"`
	VerificationSource string `json:"verification_source,omitempty"`

	// Verified is true only when a verification source positively matched
	// this citation itself. TrueByParallel marks members that carry
	// canonical fields propagated from a verified cluster sibling.
	Verified       bool   `json:"verified"`
	TrueByParallel bool   `json:"true_by_parallel"`
	PropagatedFrom string `json:"propagated_from,omitempty"` // citation text of the member that produced the match

	ClusterID string `json:"cluster_id,omitempty"` // back-reference set by the clusterer
}

// Cluster is a set of citations believed to denote one case. A cluster
// holds weak references into the pipeline's citation slice; citations do
// not own their cluster.
type Cluster struct {
	ID      string      `json:"cluster_id"`
	Members []*Citation `json:"-"`

	// CaseName is the representative extracted name: the first non-empty
	// extracted name among members in document order. First-seen wins and
	// later resolution never rewrites it; only verification data may add
	// canonical fields.
	CaseName string `json:"case_name,omitempty"`
	Year     string `json:"year,omitempty"`

	CanonicalName      string `json:"canonical_name,omitempty"`
	CanonicalDate      string `json:"canonical_date,omitempty"`
	CanonicalURL       string `json:"canonical_url,omitempty"`
	VerificationSource string `json:"verification_source,omitempty"`
	Verified           bool   `json:"verified"`
}

// MemberTexts returns the citation strings of all members in document order
func (c *Cluster) MemberTexts() []string {
	texts := make([]string, 0, len(c.Members))
	for _, m := range c.Members {
		texts = append(texts, m.Text)
	}
	return texts
}

// ErrorKind classifies a failed verification attempt
type ErrorKind string

const (
	ErrorKindRateLimited ErrorKind = "rate_limited"
	ErrorKindTimeout     ErrorKind = "timeout"
	ErrorKindUnreachable ErrorKind = "unreachable"
	ErrorKindBadResponse ErrorKind = "bad_response"
	ErrorKindAmbiguous   ErrorKind = "ambiguous" // candidates exist but none clears the similarity floor
)

// VerificationResult is the ephemeral outcome of one source attempt
type VerificationResult struct {
	SourceName string    `json:"source_name"`
	Matched    bool      `json:"matched"`
	CaseName   string    `json:"case_name,omitempty"`
	Date       string    `json:"date,omitempty"`
	URL        string    `json:"url,omitempty"`
	Confidence float64   `json:"confidence"`
	ErrorKind  ErrorKind `json:"error_kind,omitempty"`
}
