package llm

import (
	"context"
	"fmt"

	"github.com/casetrace/casetrace/internal/model"
)

// Summarizer wraps a provider and turns verification reports into the
// optional LLMSummary block. A nil provider means summarization is off.
type Summarizer struct {
	provider Provider
	config   Config
}

// NewSummarizer builds a summarizer from config. With an empty provider
// name the returned summarizer is valid but disabled.
func NewSummarizer(config Config) (*Summarizer, error) {
	provider, err := NewProvider(config)
	if err != nil {
		return nil, err
	}
	return &Summarizer{provider: provider, config: config}, nil
}

// IsEnabled reports whether a provider is configured
func (s *Summarizer) IsEnabled() bool {
	return s != nil && s.provider != nil
}

// ProviderName returns the active provider name, or "" when disabled
func (s *Summarizer) ProviderName() string {
	if !s.IsEnabled() {
		return ""
	}
	return s.provider.Name()
}

// Summarize generates the summary block for a report. It never fails the
// run: provider problems and citation leaks come back as warnings inside
// the summary instead of errors.
func (s *Summarizer) Summarize(ctx context.Context, report *model.Report) (*model.LLMSummary, error) {
	if !s.IsEnabled() {
		return nil, nil
	}

	if !s.provider.IsAvailable(ctx) {
		return &model.LLMSummary{
			Enabled:        false,
			Provider:       s.provider.Name(),
			StrictEvidence: s.config.StrictEvidence,
			Warnings:       []string{fmt.Sprintf("provider %s is not available, summary skipped", s.provider.Name())},
		}, nil
	}

	allowed := EvidenceURLs(report)
	resp, err := s.provider.Summarize(ctx, SummarizeRequest{
		Report:       report,
		EvidenceURLs: allowed,
	})
	if err != nil {
		return nil, fmt.Errorf("generate summary: %w", err)
	}

	summary := &model.LLMSummary{
		Enabled:        true,
		Provider:       s.provider.Name(),
		Model:          resp.Model,
		StrictEvidence: s.config.StrictEvidence,
		SummaryMD:      resp.Summary,
	}

	allowedSet := make(map[string]bool, len(allowed))
	for _, u := range allowed {
		allowedSet[u] = true
	}
	for _, cited := range resp.CitedURLs {
		if allowedSet[cited] {
			continue
		}
		summary.Warnings = append(summary.Warnings,
			fmt.Sprintf("citation leak: model cited disallowed URL %s", cited))
	}
	if s.config.StrictEvidence && len(summary.Warnings) > 0 {
		// the text cannot be trusted once it references unknown sources
		summary.SummaryMD = ""
	}

	return summary, nil
}

// EvidenceURLs collects the canonical URLs verification produced, in
// cluster order and deduplicated. This is the allowlist the model may cite.
func EvidenceURLs(report *model.Report) []string {
	seen := make(map[string]bool)
	var urls []string
	add := func(u string) {
		if u != "" && !seen[u] {
			seen[u] = true
			urls = append(urls, u)
		}
	}
	for _, cl := range report.Clusters {
		add(cl.CanonicalURL)
	}
	for i := range report.Citations {
		add(report.Citations[i].CanonicalURL)
	}
	return urls
}
