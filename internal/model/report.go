package model

import "time"

// Report is the complete result of analyzing one document
type Report struct {
	Source     string    `json:"source"`      // document label (file name or "stdin")
	AnalyzedAt time.Time `json:"analyzed_at"` // when the run started
	TextBytes  int       `json:"text_bytes"`

	Citations []Citation      `json:"citations"`
	Clusters  []ClusterRecord `json:"clusters"`

	// VerificationComplete is false when the document deadline expired
	// before all clusters were verified. Extraction and clustering results
	// are still complete in that case.
	VerificationComplete bool `json:"verification_complete"`

	Stats Stats `json:"stats"`

	LLM *LLMSummary `json:"llm,omitempty"` // optional summary, never affects verification
}

// ClusterRecord is the per-cluster output record
type ClusterRecord struct {
	ClusterID       string   `json:"cluster_id"`
	MemberCitations []string `json:"member_citations"`
	CaseName        string   `json:"case_name,omitempty"`
	Year            string   `json:"year,omitempty"`
	CanonicalName   string   `json:"canonical_name,omitempty"`
	CanonicalDate   string   `json:"canonical_date,omitempty"`
	CanonicalURL    string   `json:"canonical_url,omitempty"`
	Verified        bool     `json:"verified"`
}

// Stats summarizes a run for quick display
type Stats struct {
	CitationCount   int `json:"citation_count"`
	ClusterCount    int `json:"cluster_count"`
	VerifiedCount   int `json:"verified_count"` // citations with their own positive match
	ParallelCount   int `json:"parallel_count"` // citations verified only by cluster propagation
	UnverifiedCount int `json:"unverified_count"`
}

// RunStatus is the lifecycle state of a deferred run
type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// Stage names one pipeline stage, for progress reporting
type Stage string

const (
	StageExtract Stage = "extract"
	StageResolve Stage = "resolve"
	StageCluster Stage = "cluster"
	StageVerify  Stage = "verify"
	StageDone    Stage = "done"
)

// Progress is a point-in-time readout for a deferred run
type Progress struct {
	RunID           string    `json:"run_id"`
	Status          RunStatus `json:"status"`
	Stage           Stage     `json:"stage"`
	PercentComplete int       `json:"percent_complete"`
	Message         string    `json:"message,omitempty"`
}

// LLMSummary contains the optional model-generated summary of a report.
// It is produced after verification and never feeds back into results.
type LLMSummary struct {
	Enabled        bool     `json:"enabled"`
	Provider       string   `json:"provider,omitempty"`
	Model          string   `json:"model,omitempty"`
	StrictEvidence bool     `json:"strict_evidence"`
	SummaryMD      string   `json:"summary_md,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
}
