package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/casetrace/casetrace/internal/model"
	"github.com/casetrace/casetrace/internal/pipeline"
)

var (
	batchConcurrency int
	outputDir        string
	batchTimeout     time.Duration
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <list-file>",
	Short: "Analyze multiple documents in parallel",
	Long: `Batch analyzes several documents concurrently:
- Read document paths from the list file (one per line, # comments allowed)
- Analyze documents in parallel with a configurable worker count
- Write a JSON and Markdown report per document into the output directory

All documents share one verification cache and one rate limiter, so a
case cited in several briefs is only looked up once.

Example:
  casetrace batch briefs.txt
  casetrace batch briefs.txt --concurrency 8 --output-dir ./reports`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "number of documents analyzed in parallel (default from config)")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./casetrace-reports", "output directory for reports")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 30*time.Minute, "total timeout for the batch")
	batchCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the verification cache")
	batchCmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")
	batchCmd.Flags().StringVar(&authorityToken, "token", "", "citation authority API token")
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyAnalyzeFlags(cfg)
	if batchConcurrency > 0 {
		cfg.Concurrency.BatchDocuments = batchConcurrency
	}

	paths, err := readListFile(args[0])
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no document paths in %s", args[0])
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	p, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	renderer := pipeline.NewRenderer(cfg.Output)

	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	fmt.Fprintf(os.Stderr, "Analyzing %d documents with %d workers\n", len(paths), cfg.Concurrency.BatchDocuments)

	var mu sync.Mutex
	var failures int

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Concurrency.BatchDocuments)
	for _, path := range paths {
		g.Go(func() error {
			report, err := analyzeOne(ctx, p, path)
			if err != nil {
				mu.Lock()
				failures++
				mu.Unlock()
				fmt.Fprintf(os.Stderr, "FAIL %s: %v\n", path, err)
				return nil // one bad document must not sink the batch
			}
			if err := writeBatchReports(renderer, report, path); err != nil {
				mu.Lock()
				failures++
				mu.Unlock()
				fmt.Fprintf(os.Stderr, "FAIL %s: %v\n", path, err)
				return nil
			}
			mu.Lock()
			fmt.Fprintf(os.Stderr, "OK   %s: %d citations, %d verified\n",
				path, report.Stats.CitationCount, report.Stats.VerifiedCount+report.Stats.ParallelCount)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Done: %d documents, %d failed, reports in %s\n", len(paths), failures, outputDir)
	if failures > 0 {
		return fmt.Errorf("%d of %d documents failed", failures, len(paths))
	}
	return nil
}

func analyzeOne(ctx context.Context, p *pipeline.Pipeline, path string) (*model.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return p.Analyze(ctx, path, string(data))
}

func writeBatchReports(renderer *pipeline.Renderer, report *model.Report, path string) error {
	slug := sanitizeFilename(path)

	jsonFile, err := os.Create(filepath.Join(outputDir, slug+".json"))
	if err != nil {
		return err
	}
	err = renderer.RenderJSON(jsonFile, report)
	if closeErr := jsonFile.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("write JSON report: %w", err)
	}

	mdFile, err := os.Create(filepath.Join(outputDir, slug+".md"))
	if err != nil {
		return err
	}
	err = renderer.RenderMarkdown(mdFile, report)
	if closeErr := mdFile.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("write Markdown report: %w", err)
	}
	return nil
}

// readListFile loads document paths, skipping blanks and # comments
func readListFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open list file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var paths []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		paths = append(paths, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read list file: %w", err)
	}
	return paths, nil
}

// sanitizeFilename turns a document path into a safe report file name
func sanitizeFilename(path string) string {
	name := filepath.Base(path)
	if ext := filepath.Ext(name); ext != "" {
		name = strings.TrimSuffix(name, ext)
	}

	replacer := strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
		"\"", "_", "<", "_", ">", "_", "|", "_", " ", "-",
	)
	name = replacer.Replace(name)

	if len(name) > 100 {
		name = name[:100]
	}
	if name == "" {
		name = "report"
	}
	return name
}
