package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/casetrace/casetrace/internal/model"
)

const opinionText = `Dismissal is reviewed de novo. Convoyant, LLC v. DeepThink, LLC,
601 F. Supp. 3d 101, 105 (D. Del. 2022). The standard is well settled.
See also State v. Gamble, 154 Wn.2d 457, 114 P.3d 646 (2005).`

type fakeVerifier struct {
	complete bool
	calls    int
}

func (f *fakeVerifier) VerifyClusters(ctx context.Context, clusters []*model.Cluster, onProgress func(done, total int)) bool {
	f.calls++
	for i, cl := range clusters {
		cl.Verified = true
		cl.CanonicalName = "Canonical " + cl.CaseName
		for _, m := range cl.Members {
			m.Verified = true
			m.CanonicalName = cl.CanonicalName
			m.VerificationSource = "courtlistener"
		}
		if onProgress != nil {
			onProgress(i+1, len(clusters))
		}
	}
	return f.complete
}

func TestAnalyze(t *testing.T) {
	fv := &fakeVerifier{complete: true}
	p := New(model.DefaultConfig(), WithVerifier(fv))

	report, err := p.Analyze(context.Background(), "opinion.txt", opinionText)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if fv.calls != 1 {
		t.Fatalf("verifier called %d times, want 1", fv.calls)
	}
	if !report.VerificationComplete {
		t.Error("expected VerificationComplete")
	}
	if report.Stats.CitationCount < 3 {
		t.Errorf("got %d citations, want at least 3", report.Stats.CitationCount)
	}
	if report.Stats.VerifiedCount != report.Stats.CitationCount {
		t.Errorf("verified %d of %d citations", report.Stats.VerifiedCount, report.Stats.CitationCount)
	}
	if len(report.Clusters) == 0 {
		t.Fatal("no clusters in report")
	}
	for _, cl := range report.Clusters {
		if !cl.Verified {
			t.Errorf("cluster %s not verified", cl.ClusterID)
		}
	}
}

func TestAnalyzePartialOnIncompleteVerification(t *testing.T) {
	p := New(model.DefaultConfig(), WithVerifier(&fakeVerifier{complete: false}))

	report, err := p.Analyze(context.Background(), "opinion.txt", opinionText)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if report.VerificationComplete {
		t.Error("expected incomplete verification")
	}
	if report.Stats.CitationCount == 0 {
		t.Error("partial report should still carry extraction results")
	}
}

func TestAnalyzeRejectsInvalidUTF8(t *testing.T) {
	p := New(model.DefaultConfig(), WithVerifier(&fakeVerifier{complete: true}))

	_, err := p.Analyze(context.Background(), "junk.bin", "see \xff\xfe Smith")
	if !errors.Is(err, ErrFatalInput) {
		t.Fatalf("got %v, want ErrFatalInput", err)
	}
}

func TestAnalyzeNoCitations(t *testing.T) {
	fv := &fakeVerifier{complete: true}
	p := New(model.DefaultConfig(), WithVerifier(fv))

	report, err := p.Analyze(context.Background(), "memo.txt", "No authority is cited here.")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if fv.calls != 0 {
		t.Error("verifier should not run with zero clusters")
	}
	if !report.VerificationComplete {
		t.Error("empty run should count as complete")
	}
}

func TestShouldDefer(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.Pipeline.SyncMaxBytes = 1024
	cfg.Pipeline.SyncMaxCitations = 2
	p := New(cfg, WithVerifier(&fakeVerifier{complete: true}))

	if p.ShouldDefer("short memo, no citations") {
		t.Error("small document should run synchronously")
	}
	if !p.ShouldDefer(strings.Repeat("x", 2048)) {
		t.Error("oversize document should defer")
	}
	if !p.ShouldDefer(opinionText) {
		t.Error("document over the citation threshold should defer")
	}
}

func TestDeferredRun(t *testing.T) {
	p := New(model.DefaultConfig(), WithVerifier(&fakeVerifier{complete: true}))

	id, err := p.Submit("opinion.txt", opinionText)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		progress, ok := p.Progress(id)
		if !ok {
			t.Fatal("run not tracked")
		}
		if progress.Status == model.StatusCompleted {
			break
		}
		if progress.Status == model.StatusFailed {
			t.Fatalf("run failed: %s", progress.Message)
		}
		if time.Now().After(deadline) {
			t.Fatalf("run stuck in %s/%s", progress.Status, progress.Stage)
		}
		time.Sleep(5 * time.Millisecond)
	}

	progress, _ := p.Progress(id)
	if progress.PercentComplete != 100 || progress.Stage != model.StageDone {
		t.Errorf("final progress %d%%/%s", progress.PercentComplete, progress.Stage)
	}

	report, ok, runErr := p.Result(id)
	if !ok || runErr != nil {
		t.Fatalf("Result: ok=%v err=%v", ok, runErr)
	}
	if report == nil || report.Stats.CitationCount == 0 {
		t.Fatal("deferred run produced no report")
	}

	// Retrieval of a terminal run evicts it from the registry.
	if _, ok := p.Progress(id); ok {
		t.Error("completed run still tracked after result retrieval")
	}
	if _, ok, _ := p.Result(id); ok {
		t.Error("second retrieval should report an unknown run")
	}
}

func TestSubmitRejectsInvalidUTF8(t *testing.T) {
	p := New(model.DefaultConfig(), WithVerifier(&fakeVerifier{complete: true}))
	if _, err := p.Submit("junk.bin", "\xff"); !errors.Is(err, ErrFatalInput) {
		t.Fatalf("got %v, want ErrFatalInput", err)
	}
}

func TestProgressUnknownRun(t *testing.T) {
	p := New(model.DefaultConfig())
	if _, ok := p.Progress("nope"); ok {
		t.Error("unknown run id should not resolve")
	}
}
