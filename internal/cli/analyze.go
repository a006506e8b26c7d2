package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/casetrace/casetrace/internal/llm"
	"github.com/casetrace/casetrace/internal/model"
	"github.com/casetrace/casetrace/internal/pipeline"
	"github.com/casetrace/casetrace/internal/verify"
)

var (
	outJSON        string
	outMD          string
	docTimeout     time.Duration
	userAgent      string
	authorityToken string
	forceSync      bool
	noCache        bool
	noFooter       bool
	llmEnabled     bool
	llmProvider    string
	llmModel       string
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Extract, cluster and verify citations in one document",
	Long: `Analyze reads a plain-text document and:
- Extracts legal citations (federal, regional, state, neutral, docket)
- Infers the case name each citation refers to from surrounding text
- Groups parallel citations of the same case into clusters
- Verifies each cluster against the citation authority, falling back to
  web search when the authority has no match

Use "-" to read from stdin.

Example:
  casetrace analyze brief.txt
  casetrace analyze brief.txt --json report.json --md report.md
  casetrace analyze opinion.txt --llm openai --llm-model gpt-4o-mini`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	// Output flags
	analyzeCmd.Flags().StringVar(&outJSON, "json", "", "output JSON path")
	analyzeCmd.Flags().StringVar(&outMD, "md", "", "output Markdown path")
	analyzeCmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")

	// Pipeline flags
	analyzeCmd.Flags().DurationVar(&docTimeout, "timeout", 0, "document deadline (default from config)")
	analyzeCmd.Flags().BoolVar(&forceSync, "sync", false, "force the synchronous path regardless of document size")
	analyzeCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the verification cache")

	// HTTP flags
	analyzeCmd.Flags().StringVar(&userAgent, "ua", "", "HTTP User-Agent override")
	analyzeCmd.Flags().StringVar(&authorityToken, "token", "", "citation authority API token (or CASETRACE_VERIFY_AUTHORITY_TOKEN)")

	// LLM flags
	analyzeCmd.Flags().BoolVar(&llmEnabled, "llm", false, "enable LLM report summary")
	analyzeCmd.Flags().StringVar(&llmProvider, "llm-provider", "openai", "LLM provider (openai, anthropic, ollama)")
	analyzeCmd.Flags().StringVar(&llmModel, "llm-model", "", "LLM model name")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyAnalyzeFlags(cfg)

	source, text, err := readDocument(args[0])
	if err != nil {
		return err
	}

	p, err := buildPipeline(cfg)
	if err != nil {
		return err
	}

	var report *model.Report
	if forceSync || !p.ShouldDefer(text) {
		report, err = p.Analyze(context.Background(), source, text)
	} else {
		report, err = runDeferred(p, source, text)
	}
	if err != nil {
		if errors.Is(err, pipeline.ErrFatalInput) {
			return fmt.Errorf("%s is not analyzable text: %w", source, err)
		}
		return fmt.Errorf("analyze failed: %w", err)
	}

	return writeReports(cfg, report)
}

func applyAnalyzeFlags(cfg *model.Config) {
	if docTimeout > 0 {
		cfg.Pipeline.DocumentDeadline = docTimeout
	}
	if userAgent != "" {
		cfg.HTTP.UserAgent = userAgent
	}
	if authorityToken != "" {
		cfg.Verify.AuthorityToken = authorityToken
	}
	if noCache {
		cfg.Cache.Enabled = false
	}
	if noFooter {
		cfg.Output.IncludeFooter = false
	}
	cfg.Output.Verbose = verbose

	if llmEnabled {
		cfg.LLM.Provider = llmProvider
		if llmModel != "" {
			cfg.LLM.Model = llmModel
		}
		cfg.LLM.StrictEvidence = true
		switch llmProvider {
		case "openai":
			if cfg.LLM.APIKey == "" {
				cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
			}
		case "anthropic":
			if cfg.LLM.APIKey == "" {
				cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
			}
		case "ollama":
			if base := os.Getenv("OLLAMA_BASE_URL"); base != "" {
				cfg.LLM.BaseURL = base
			}
		}
	} else {
		cfg.LLM.Provider = ""
	}
}

// buildPipeline wires the verifier and optional summarizer into a pipeline
func buildPipeline(cfg *model.Config) (*pipeline.Pipeline, error) {
	if cfg.LLM.APIKey == "" {
		switch cfg.LLM.Provider {
		case "openai":
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		case "anthropic":
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
		}
	}

	opts := []pipeline.Option{
		pipeline.WithVerifier(verify.New(cfg)),
		pipeline.WithLogger(slog.Default()),
	}

	summarizer, err := llm.NewSummarizer(llm.ConfigFromModel(cfg))
	if err != nil {
		return nil, err
	}
	if summarizer.IsEnabled() {
		opts = append(opts, pipeline.WithSummarizer(summarizer))
	}

	return pipeline.New(cfg, opts...), nil
}

func readDocument(arg string) (source, text string, err error) {
	if arg == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", "", fmt.Errorf("read stdin: %w", err)
		}
		return "stdin", string(data), nil
	}

	data, err := os.ReadFile(arg)
	if err != nil {
		return "", "", fmt.Errorf("read document: %w", err)
	}
	return arg, string(data), nil
}

// runDeferred submits a large document and polls until it finishes,
// echoing stage progress to stderr.
func runDeferred(p *pipeline.Pipeline, source, text string) (*model.Report, error) {
	id, err := p.Submit(source, text)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(os.Stderr, "Document exceeds the synchronous threshold, running as job %s\n", id)

	lastStage := model.Stage("")
	for {
		progress, ok := p.Progress(id)
		if !ok {
			return nil, fmt.Errorf("job %s disappeared", id)
		}
		if progress.Stage != lastStage && progress.Stage != model.StageDone {
			fmt.Fprintf(os.Stderr, "  %s (%d%%)\n", progress.Stage, progress.PercentComplete)
			lastStage = progress.Stage
		}
		switch progress.Status {
		case model.StatusCompleted:
			report, _, runErr := p.Result(id)
			return report, runErr
		case model.StatusFailed:
			_, _, runErr := p.Result(id)
			if runErr == nil {
				runErr = fmt.Errorf("job failed: %s", progress.Message)
			}
			return nil, runErr
		}
		time.Sleep(200 * time.Millisecond)
	}
}

func writeReports(cfg *model.Config, report *model.Report) error {
	renderer := pipeline.NewRenderer(cfg.Output)

	if outJSON != "" {
		f, err := os.Create(outJSON)
		if err != nil {
			return fmt.Errorf("create JSON report: %w", err)
		}
		err = renderer.RenderJSON(f, report)
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return fmt.Errorf("write JSON report: %w", err)
		}
	}

	if outMD != "" {
		f, err := os.Create(outMD)
		if err != nil {
			return fmt.Errorf("create Markdown report: %w", err)
		}
		err = renderer.RenderMarkdown(f, report)
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return fmt.Errorf("write Markdown report: %w", err)
		}
	}

	if outJSON == "" && outMD == "" {
		return renderer.RenderMarkdown(os.Stdout, report)
	}

	renderer.RenderSummary(os.Stderr, report)
	return nil
}
