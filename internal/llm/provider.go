package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/casetrace/casetrace/internal/model"
)

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Summarize generates a summary of the verification report
	Summarize(ctx context.Context, req SummarizeRequest) (*SummarizeResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// SummarizeRequest contains the input for LLM summarization
type SummarizeRequest struct {
	// Report is the verification report to summarize
	Report *model.Report

	// EvidenceURLs is the STRICT allowlist of URLs the LLM can cite.
	// These are the canonical URLs verification actually produced;
	// anything else in the output is a hallucination.
	EvidenceURLs []string

	// Prompt overrides the default prompt when set
	Prompt string

	// Model is the specific model to use (provider-specific)
	Model string

	// MaxTokens limits the response length
	MaxTokens int
}

// SummarizeResponse contains the LLM's summary output
type SummarizeResponse struct {
	// Summary is the generated summary text
	Summary string

	// CitedURLs are the URLs the LLM actually cited
	CitedURLs []string

	// Model is the model that generated the response
	Model string

	// TokensUsed tracks token consumption
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama", "" (disabled)
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for the hosted providers (openai, anthropic)
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests, in seconds
	Timeout int

	// StrictEvidence enforces the URL allowlist (should always be true)
	StrictEvidence bool

	// MaxTokens for response generation
	MaxTokens int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:       "", // Disabled by default
		Timeout:        30,
		StrictEvidence: true,
		MaxTokens:      1000,
	}
}

// BuildPrompt constructs the default summarization prompt. The allowlist
// keeps the model from inventing sources for citations it never saw.
func BuildPrompt(report *model.Report, evidenceURLs []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, `You are summarizing a legal citation verification report. The report records which citations in a document could be matched to a known case and which could not - it never judges whether the cited cases are good law.

CRITICAL RULES:
1. You MUST ONLY cite URLs from this allowed list:
%s

2. DO NOT infer, speculate, or cite external sources beyond this list.
3. An unverified citation means no match was found, not that the case does not exist. Say so when relevant.
4. Never assert that a citation is fabricated. Describe verification outcomes only.

Report:
- Document: %s
- Citations found: %d, in %d clusters
- Verified: %d directly, %d through a verified parallel citation
- Unverified: %d
- Verification finished: %v

Clusters:
`, joinURLs(evidenceURLs), report.Source,
		report.Stats.CitationCount, report.Stats.ClusterCount,
		report.Stats.VerifiedCount, report.Stats.ParallelCount,
		report.Stats.UnverifiedCount, report.VerificationComplete)

	for i, cl := range report.Clusters {
		if i >= 15 {
			fmt.Fprintf(&b, "... and %d more clusters\n", len(report.Clusters)-15)
			break
		}
		name := cl.CanonicalName
		if name == "" {
			name = cl.CaseName
		}
		if name == "" {
			name = "(unnamed)"
		}
		status := "unverified"
		if cl.Verified {
			status = "verified"
		}
		fmt.Fprintf(&b, "- %s (%s): %s\n", name, status, strings.Join(cl.MemberCitations, "; "))
	}

	b.WriteString("\nProvide a 3-5 sentence summary of the verification outcome, flagging any unverified citations by name.")
	return b.String()
}

var urlPattern = regexp.MustCompile(`https?://[^\s\)]+`)

// ExtractURLs pulls every URL out of generated text, deduplicated and
// with trailing punctuation stripped.
func ExtractURLs(text string) []string {
	matches := urlPattern.FindAllString(text, -1)

	seen := make(map[string]bool)
	var unique []string
	for _, u := range matches {
		u = strings.TrimRight(u, ".,;:!?")
		if !seen[u] {
			seen[u] = true
			unique = append(unique, u)
		}
	}
	return unique
}

func joinURLs(urls []string) string {
	if len(urls) == 0 {
		return "(No evidence URLs available)"
	}
	var b strings.Builder
	for i, u := range urls {
		if i >= 20 { // avoid token bloat
			fmt.Fprintf(&b, "\n... and %d more URLs", len(urls)-20)
			break
		}
		fmt.Fprintf(&b, "\n- %s", u)
	}
	return b.String()
}
