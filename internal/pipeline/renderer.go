package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/casetrace/casetrace/internal/model"
)

// Renderer writes reports as JSON or Markdown.
type Renderer struct {
	cfg model.OutputConfig
}

// NewRenderer builds a renderer from output config.
func NewRenderer(cfg model.OutputConfig) *Renderer {
	return &Renderer{cfg: cfg}
}

// RenderJSON writes the report as indented JSON.
func (r *Renderer) RenderJSON(w io.Writer, report *model.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// RenderMarkdown writes a human-readable report.
func (r *Renderer) RenderMarkdown(w io.Writer, report *model.Report) error {
	var b strings.Builder

	fmt.Fprintf(&b, "# Citation report: %s\n\n", report.Source)
	fmt.Fprintf(&b, "Analyzed %s, %d bytes.\n\n", report.AnalyzedAt.Format("2006-01-02 15:04 MST"), report.TextBytes)

	if !report.VerificationComplete {
		b.WriteString("> Verification did not finish within the document deadline. " +
			"Unverified entries below may simply not have been checked.\n\n")
	}

	fmt.Fprintf(&b, "## Summary\n\n")
	fmt.Fprintf(&b, "| Citations | Clusters | Verified | Parallel | Unverified |\n")
	fmt.Fprintf(&b, "|---|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d | %d |\n\n",
		report.Stats.CitationCount, report.Stats.ClusterCount,
		report.Stats.VerifiedCount, report.Stats.ParallelCount, report.Stats.UnverifiedCount)

	b.WriteString("## Clusters\n\n")
	for _, cl := range report.Clusters {
		name := cl.CanonicalName
		if name == "" {
			name = cl.CaseName
		}
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Fprintf(&b, "### %s\n\n", name)
		if cl.Year != "" {
			fmt.Fprintf(&b, "- year: %s\n", cl.Year)
		}
		if cl.CanonicalDate != "" {
			fmt.Fprintf(&b, "- decided: %s\n", cl.CanonicalDate)
		}
		if cl.CanonicalURL != "" {
			fmt.Fprintf(&b, "- source: %s\n", cl.CanonicalURL)
		}
		fmt.Fprintf(&b, "- verified: %v\n", cl.Verified)
		fmt.Fprintf(&b, "- citations: %s\n\n", strings.Join(cl.MemberCitations, "; "))
	}

	if r.cfg.Verbose {
		b.WriteString("## Citations\n\n")
		fmt.Fprintf(&b, "| Citation | Case name | Status | Source |\n")
		fmt.Fprintf(&b, "|---|---|---|---|\n")
		for i := range report.Citations {
			c := &report.Citations[i]
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
				c.Text, displayName(c), statusLabel(c), c.VerificationSource)
		}
		b.WriteString("\n")
	}

	if report.LLM != nil && report.LLM.SummaryMD != "" {
		b.WriteString("## Generated summary\n\n")
		b.WriteString("_Machine-generated from the verified results above; not itself verified._\n\n")
		b.WriteString(report.LLM.SummaryMD)
		if !strings.HasSuffix(report.LLM.SummaryMD, "\n") {
			b.WriteString("\n")
		}
		for _, warn := range report.LLM.Warnings {
			fmt.Fprintf(&b, "\n> Warning: %s\n", warn)
		}
		b.WriteString("\n")
	}

	if r.cfg.IncludeFooter {
		b.WriteString("---\n\nGenerated by casetrace.\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// RenderSummary writes the one-screen run summary used by the CLI.
func (r *Renderer) RenderSummary(w io.Writer, report *model.Report) {
	fmt.Fprintf(w, "%s: %d citations in %d clusters (%d verified, %d by parallel, %d unverified)\n",
		report.Source, report.Stats.CitationCount, report.Stats.ClusterCount,
		report.Stats.VerifiedCount, report.Stats.ParallelCount, report.Stats.UnverifiedCount)
	if !report.VerificationComplete {
		fmt.Fprintf(w, "%s: verification incomplete, results are partial\n", report.Source)
	}
}

func displayName(c *model.Citation) string {
	if c.CanonicalName != "" {
		return c.CanonicalName
	}
	return c.ExtractedCaseName
}

func statusLabel(c *model.Citation) string {
	switch {
	case c.Verified:
		return "verified"
	case c.TrueByParallel:
		return "parallel"
	default:
		return "unverified"
	}
}
