package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/casetrace/casetrace/internal/cluster"
	"github.com/casetrace/casetrace/internal/extract"
	"github.com/casetrace/casetrace/internal/model"
)

// ErrFatalInput marks input the pipeline cannot analyze at all. It is the
// only aborting condition; every downstream failure degrades instead.
var ErrFatalInput = errors.New("input is not decodable text")

// ClusterVerifier verifies clusters in place and reports whether every
// cluster was attempted before the context expired.
type ClusterVerifier interface {
	VerifyClusters(ctx context.Context, clusters []*model.Cluster, onProgress func(done, total int)) bool
}

// Summarizer produces the optional post-verification report summary.
type Summarizer interface {
	Summarize(ctx context.Context, report *model.Report) (*model.LLMSummary, error)
}

// Pipeline runs extract, resolve, cluster and verify over one document.
type Pipeline struct {
	cfg        *model.Config
	extractor  *extract.Extractor
	clusterer  *cluster.Clusterer
	verifier   ClusterVerifier
	summarizer Summarizer
	tracker    *Tracker
	log        *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithVerifier replaces the verification stage.
func WithVerifier(v ClusterVerifier) Option {
	return func(p *Pipeline) { p.verifier = v }
}

// WithSummarizer attaches the optional report summarizer.
func WithSummarizer(s Summarizer) Option {
	return func(p *Pipeline) { p.summarizer = s }
}

// WithLogger sets the pipeline logger.
func WithLogger(log *slog.Logger) Option {
	return func(p *Pipeline) { p.log = log }
}

// New builds a pipeline from config. A verifier must be supplied via
// WithVerifier; without one the verify stage is skipped and reports come
// back with VerificationComplete false.
func New(cfg *model.Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:       cfg,
		extractor: extract.NewExtractor(),
		clusterer: cluster.New(cfg.Cluster),
		tracker:   NewTracker(),
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ShouldDefer reports whether a document is too large for the synchronous
// path. The byte threshold is checked first; only documents under it pay
// for the extraction pass that counts citations.
func (p *Pipeline) ShouldDefer(text string) bool {
	if int64(len(text)) > p.cfg.Pipeline.SyncMaxBytes {
		return true
	}
	return len(p.extractor.Extract(text)) > p.cfg.Pipeline.SyncMaxCitations
}

// Analyze runs the full pipeline synchronously. The document deadline
// bounds the whole run; if it expires during verification the report is
// still returned, with VerificationComplete false.
func (p *Pipeline) Analyze(ctx context.Context, source, text string) (*model.Report, error) {
	if p.cfg.Pipeline.DocumentDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Pipeline.DocumentDeadline)
		defer cancel()
	}
	return p.run(ctx, source, text, func(model.Stage, int, string) {})
}

// Submit starts a deferred run and returns its identifier. Progress and
// Result serve polls for it.
func (p *Pipeline) Submit(source, text string) (string, error) {
	if !utf8.ValidString(text) {
		return "", fmt.Errorf("%s: %w", source, ErrFatalInput)
	}
	id := p.tracker.Register()
	go func() {
		ctx := context.Background()
		var cancel context.CancelFunc
		if p.cfg.Pipeline.DocumentDeadline > 0 {
			ctx, cancel = context.WithTimeout(ctx, p.cfg.Pipeline.DocumentDeadline)
			defer cancel()
		}
		report, err := p.run(ctx, source, text, func(stage model.Stage, percent int, msg string) {
			p.tracker.Update(id, stage, percent, msg)
		})
		if err != nil {
			p.tracker.Fail(id, err)
			return
		}
		p.tracker.Complete(id, report)
	}()
	return id, nil
}

// Progress returns the current state of a deferred run.
func (p *Pipeline) Progress(id string) (model.Progress, bool) {
	return p.tracker.Progress(id)
}

// Result returns the report of a completed deferred run.
func (p *Pipeline) Result(id string) (*model.Report, bool, error) {
	return p.tracker.Result(id)
}

func (p *Pipeline) run(ctx context.Context, source, text string, update func(model.Stage, int, string)) (*model.Report, error) {
	if !utf8.ValidString(text) {
		return nil, fmt.Errorf("%s: %w", source, ErrFatalInput)
	}

	report := &model.Report{
		Source:     source,
		AnalyzedAt: time.Now().UTC(),
		TextBytes:  len(text),
	}

	update(model.StageExtract, 5, "extracting citations")
	citations := p.extractor.Extract(text)
	p.log.Debug("extraction complete", "source", source, "citations", len(citations))

	update(model.StageResolve, 30, "resolving case names")
	extract.NewNameResolver().Resolve(text, citations)

	update(model.StageCluster, 45, "clustering parallel citations")
	clusters := p.clusterer.Cluster(text, citations)
	p.log.Debug("clustering complete", "source", source, "clusters", len(clusters))

	update(model.StageVerify, 55, "verifying against sources")
	complete := false
	if p.verifier != nil && len(clusters) > 0 {
		complete = p.verifier.VerifyClusters(ctx, clusters, func(done, total int) {
			pct := 55
			if total > 0 {
				pct += 40 * done / total
			}
			update(model.StageVerify, pct, fmt.Sprintf("verified %d/%d clusters", done, total))
		})
	} else if len(clusters) == 0 {
		complete = true
	}
	if !complete {
		p.log.Warn("verification incomplete", "source", source, "reason", ctx.Err())
	}

	report.Citations = citations
	report.Clusters = clusterRecords(clusters)
	report.VerificationComplete = complete
	report.Stats = computeStats(citations, clusters)

	if p.summarizer != nil && complete {
		summary, err := p.summarizer.Summarize(ctx, report)
		if err != nil {
			p.log.Warn("summary generation failed", "source", source, "error", err)
		} else {
			report.LLM = summary
		}
	}

	update(model.StageDone, 100, "")
	return report, nil
}

func clusterRecords(clusters []*model.Cluster) []model.ClusterRecord {
	records := make([]model.ClusterRecord, 0, len(clusters))
	for _, cl := range clusters {
		records = append(records, model.ClusterRecord{
			ClusterID:       cl.ID,
			MemberCitations: cl.MemberTexts(),
			CaseName:        cl.CaseName,
			Year:            cl.Year,
			CanonicalName:   cl.CanonicalName,
			CanonicalDate:   cl.CanonicalDate,
			CanonicalURL:    cl.CanonicalURL,
			Verified:        cl.Verified,
		})
	}
	return records
}

func computeStats(citations []model.Citation, clusters []*model.Cluster) model.Stats {
	stats := model.Stats{
		CitationCount: len(citations),
		ClusterCount:  len(clusters),
	}
	for i := range citations {
		switch {
		case citations[i].Verified:
			stats.VerifiedCount++
		case citations[i].TrueByParallel:
			stats.ParallelCount++
		default:
			stats.UnverifiedCount++
		}
	}
	return stats
}
