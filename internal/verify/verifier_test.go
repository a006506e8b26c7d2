package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/casetrace/casetrace/internal/cache"
	"github.com/casetrace/casetrace/internal/model"
)

type fakeAuthority struct {
	mu         sync.Mutex
	candidates map[string][]AuthorityCandidate
	err        error
	batches    [][]string
}

func (f *fakeAuthority) Lookup(ctx context.Context, citations []string) (map[string][]AuthorityCandidate, error) {
	f.mu.Lock()
	f.batches = append(f.batches, append([]string(nil), citations...))
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string][]AuthorityCandidate)
	for _, c := range citations {
		if cands, ok := f.candidates[c]; ok {
			out[c] = cands
		}
	}
	return out, nil
}

func (f *fakeAuthority) lookupCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

type fakeProvider struct {
	name    string
	results []SearchResult
	err     error

	mu      sync.Mutex
	queries []string
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Search(ctx context.Context, query string) ([]SearchResult, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type fakeStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string][]byte)}
}

func (s *fakeStore) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	val, ok := s.data[key]
	return val, ok
}

func (s *fakeStore) Set(key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *fakeStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *fakeStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string][]byte)
	return nil
}

func (s *fakeStore) record(t *testing.T, citation string) (cacheRecord, bool) {
	t.Helper()
	data, ok := s.Get(cache.Key(citation))
	if !ok {
		return cacheRecord{}, false
	}
	var rec cacheRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("corrupt cache record for %s: %v", citation, err)
	}
	return rec, true
}

func gambleCluster() *model.Cluster {
	citations := []model.Citation{
		{Text: "154 Wn.2d 457", ExtractedCaseName: "State v. Gamble", ExtractedYear: "2005"},
		{Text: "114 P.3d 646", ExtractedCaseName: "State v. Gamble", ExtractedYear: "2005"},
	}
	return &model.Cluster{
		ID:       "cluster-1",
		Members:  []*model.Citation{&citations[0], &citations[1]},
		CaseName: "State v. Gamble",
		Year:     "2005",
	}
}

func newTestVerifier(t *testing.T, opts ...Option) *Verifier {
	t.Helper()
	cfg := model.DefaultConfig()
	cfg.Verify.CitationBudget = 5 * time.Second
	return New(cfg, opts...)
}

func TestVerifyAuthorityMatchPropagates(t *testing.T) {
	authority := &fakeAuthority{candidates: map[string][]AuthorityCandidate{
		"154 Wn.2d 457": {{
			CaseName:    "State v. Gamble",
			DateFiled:   "2005-06-30",
			AbsoluteURL: "https://www.courtlistener.com/opinion/1234/state-v-gamble/",
		}},
	}}
	v := newTestVerifier(t,
		WithAuthority(authority), WithProviders(), WithCache(nil))

	cl := gambleCluster()
	if !v.VerifyClusters(context.Background(), []*model.Cluster{cl}, nil) {
		t.Fatal("VerifyClusters reported incomplete")
	}

	if !cl.Verified || cl.CanonicalName != "State v. Gamble" {
		t.Fatalf("cluster = %+v", cl)
	}
	if cl.VerificationSource != "authority" || cl.CanonicalDate != "2005-06-30" {
		t.Errorf("cluster source/date = %q / %q", cl.VerificationSource, cl.CanonicalDate)
	}

	lead, sibling := cl.Members[0], cl.Members[1]
	if !lead.Verified || lead.TrueByParallel {
		t.Errorf("lead = %+v", lead)
	}
	if sibling.Verified {
		t.Error("sibling must not claim its own match")
	}
	if !sibling.TrueByParallel || sibling.PropagatedFrom != "154 Wn.2d 457" {
		t.Errorf("sibling = %+v", sibling)
	}
	if sibling.CanonicalURL != lead.CanonicalURL {
		t.Error("canonical fields not propagated")
	}
	// Extracted fields stay untouched by verification.
	if sibling.ExtractedCaseName != "State v. Gamble" || sibling.ExtractedYear != "2005" {
		t.Errorf("extracted fields mutated: %+v", sibling)
	}
}

func TestVerifySimilarityFloorRejectsWrongCase(t *testing.T) {
	authority := &fakeAuthority{candidates: map[string][]AuthorityCandidate{
		"154 Wn.2d 457": {{CaseName: "Maritime Holdings, LLC v. Pemberton"}},
	}}
	v := newTestVerifier(t,
		WithAuthority(authority), WithProviders(), WithCache(nil))

	cl := gambleCluster()
	complete := v.VerifyClusters(context.Background(), []*model.Cluster{cl}, nil)
	if !complete {
		t.Fatal("exhausted sources is a normal completion, not a failure")
	}
	if cl.Verified {
		t.Error("cluster verified despite name mismatch below the floor")
	}
	for _, m := range cl.Members {
		if m.Verified || m.TrueByParallel || m.CanonicalName != "" {
			t.Errorf("member %s = %+v", m.Text, m)
		}
	}
}

func TestVerifyAmbiguousWithoutHint(t *testing.T) {
	authority := &fakeAuthority{candidates: map[string][]AuthorityCandidate{
		"33 A.3d 1": {
			{CaseName: "Smith v. Jones"},
			{CaseName: "Roberts v. Chase"},
		},
	}}
	v := newTestVerifier(t,
		WithAuthority(authority), WithProviders(), WithCache(nil))

	member := &model.Citation{Text: "33 A.3d 1"}
	cl := &model.Cluster{ID: "cluster-1", Members: []*model.Citation{member}}

	v.VerifyClusters(context.Background(), []*model.Cluster{cl}, nil)
	if member.Verified {
		t.Error("several candidates without a hint must be a miss, not a guess")
	}
}

func TestVerifySingleCandidateWithoutHint(t *testing.T) {
	authority := &fakeAuthority{candidates: map[string][]AuthorityCandidate{
		"33 A.3d 1": {{CaseName: "Smith v. Jones"}},
	}}
	v := newTestVerifier(t,
		WithAuthority(authority), WithProviders(), WithCache(nil))

	member := &model.Citation{Text: "33 A.3d 1"}
	cl := &model.Cluster{ID: "cluster-1", Members: []*model.Citation{member}}

	v.VerifyClusters(context.Background(), []*model.Cluster{cl}, nil)
	if !member.Verified || member.CanonicalName != "Smith v. Jones" {
		t.Errorf("member = %+v", member)
	}
}

func TestVerifyWebFallback(t *testing.T) {
	provider := &fakeProvider{
		name: "fake",
		results: []SearchResult{
			{
				URL:     "https://www.courtlistener.com/opinion/1234/state-v-gamble/",
				Title:   "State v. Gamble, 154 Wn.2d 457 - CourtListener.com",
				Snippet: "State v. Gamble, 154 Wn.2d 457, 114 P.3d 646 (2005)",
			},
			{
				URL:     "https://random.blog/post",
				Title:   "My favorite cases",
				Snippet: "a post about nothing",
			},
		},
	}
	cfg := model.DefaultConfig()
	scorer := NewResultScorer(cfg.Verify.DomainWeights, cfg.Verify.GenericWeight, nil)
	v := newTestVerifier(t,
		WithAuthority(&fakeAuthority{}), WithProviders(provider), WithScorer(scorer), WithCache(nil))

	cl := gambleCluster()
	v.VerifyClusters(context.Background(), []*model.Cluster{cl}, nil)

	if !cl.Verified {
		t.Fatal("cluster not verified via web fallback")
	}
	if cl.VerificationSource != "web:fake" {
		t.Errorf("source = %q", cl.VerificationSource)
	}
	if cl.CanonicalName != "State v. Gamble" {
		t.Errorf("canonical name = %q", cl.CanonicalName)
	}
	if cl.CanonicalURL != "https://www.courtlistener.com/opinion/1234/state-v-gamble/" {
		t.Errorf("canonical url = %q", cl.CanonicalURL)
	}
}

func TestVerifyAuthorityErrorDegradesToFallback(t *testing.T) {
	authority := &fakeAuthority{err: errors.New("authority down")}
	provider := &fakeProvider{
		name: "fake",
		results: []SearchResult{{
			URL:     "https://casetext.com/case/state-v-gamble",
			Title:   "State v. Gamble, 154 Wn.2d 457 | Casetext",
			Snippet: "154 Wn.2d 457",
		}},
	}
	cfg := model.DefaultConfig()
	scorer := NewResultScorer(cfg.Verify.DomainWeights, cfg.Verify.GenericWeight, nil)
	v := newTestVerifier(t,
		WithAuthority(authority), WithProviders(provider), WithScorer(scorer), WithCache(nil))

	cl := gambleCluster()
	if !v.VerifyClusters(context.Background(), []*model.Cluster{cl}, nil) {
		t.Fatal("authority outage must degrade, not abort")
	}
	if !cl.Verified || cl.VerificationSource != "web:fake" {
		t.Errorf("cluster = %+v", cl)
	}
}

func TestVerifyCacheHitSkipsNetwork(t *testing.T) {
	store := newFakeStore()
	rec, _ := json.Marshal(cacheRecord{
		Matched:  true,
		CaseName: "State v. Gamble",
		URL:      "https://www.courtlistener.com/opinion/1234/state-v-gamble/",
		Source:   "authority",
	})
	for _, text := range []string{"154 Wn.2d 457", "114 P.3d 646"} {
		_ = store.Set(cache.Key(text), rec, 0)
	}

	authority := &fakeAuthority{}
	v := newTestVerifier(t,
		WithAuthority(authority), WithProviders(), WithCache(store))

	cl := gambleCluster()
	v.VerifyClusters(context.Background(), []*model.Cluster{cl}, nil)

	if authority.lookupCount() != 0 {
		t.Errorf("authority called %d times for fully cached cluster", authority.lookupCount())
	}
	if !cl.Verified || cl.CanonicalName != "State v. Gamble" {
		t.Errorf("cluster = %+v", cl)
	}
}

func TestVerifyNegativeOutcomeCached(t *testing.T) {
	store := newFakeStore()
	v := newTestVerifier(t,
		WithAuthority(&fakeAuthority{}), WithProviders(), WithCache(store))

	cl := gambleCluster()
	v.VerifyClusters(context.Background(), []*model.Cluster{cl}, nil)

	for _, m := range cl.Members {
		rec, ok := store.record(t, m.Text)
		if !ok {
			t.Fatalf("no cached outcome for %s", m.Text)
		}
		if rec.Matched {
			t.Errorf("miss cached as a match for %s", m.Text)
		}
	}
}

func TestVerifyPositiveOutcomeCachedWithPropagation(t *testing.T) {
	store := newFakeStore()
	authority := &fakeAuthority{candidates: map[string][]AuthorityCandidate{
		"154 Wn.2d 457": {{CaseName: "State v. Gamble", AbsoluteURL: "https://www.courtlistener.com/x/"}},
	}}
	v := newTestVerifier(t,
		WithAuthority(authority), WithProviders(), WithCache(store))

	cl := gambleCluster()
	v.VerifyClusters(context.Background(), []*model.Cluster{cl}, nil)

	lead, _ := store.record(t, "154 Wn.2d 457")
	if !lead.Matched || lead.TrueByParallel {
		t.Errorf("lead record = %+v", lead)
	}
	sibling, _ := store.record(t, "114 P.3d 646")
	if !sibling.Matched || !sibling.TrueByParallel || sibling.PropagatedFrom != "154 Wn.2d 457" {
		t.Errorf("sibling record = %+v", sibling)
	}
}

func TestVerifyBatchesAuthorityLookups(t *testing.T) {
	authority := &fakeAuthority{}
	cfg := model.DefaultConfig()
	cfg.Verify.BatchSize = 25
	v := New(cfg, WithAuthority(authority), WithProviders(), WithCache(nil))

	var clusters []*model.Cluster
	for i := 0; i < 30; i++ {
		member := &model.Citation{Text: fmt.Sprintf("%d U.S. %d", 500+i, 100+i)}
		clusters = append(clusters, &model.Cluster{
			ID:      fmt.Sprintf("cluster-%d", i+1),
			Members: []*model.Citation{member},
		})
	}

	v.VerifyClusters(context.Background(), clusters, nil)

	if authority.lookupCount() != 2 {
		t.Fatalf("got %d batches, want 2", authority.lookupCount())
	}
	if len(authority.batches[0]) != 25 || len(authority.batches[1]) != 5 {
		t.Errorf("batch sizes = %d, %d", len(authority.batches[0]), len(authority.batches[1]))
	}
}

func TestVerifyProgressCallback(t *testing.T) {
	v := newTestVerifier(t,
		WithAuthority(&fakeAuthority{}), WithProviders(), WithCache(nil))

	clusters := []*model.Cluster{gambleCluster(), gambleCluster(), gambleCluster()}
	var mu sync.Mutex
	var seen []int
	v.VerifyClusters(context.Background(), clusters, func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		if total != 3 {
			t.Errorf("total = %d", total)
		}
		seen = append(seen, done)
	})
	if len(seen) != 3 {
		t.Errorf("progress reported %d times, want 3", len(seen))
	}
}

func TestVerifyEmptyClusterList(t *testing.T) {
	v := newTestVerifier(t, WithAuthority(&fakeAuthority{}), WithProviders(), WithCache(nil))
	if !v.VerifyClusters(context.Background(), nil, nil) {
		t.Error("empty input must count as complete")
	}
}

func TestDisambiguatePicksBestCandidate(t *testing.T) {
	cands := []AuthorityCandidate{
		{CaseName: "Gamble v. United States"},
		{CaseName: "State v. Gamble"},
	}
	res := disambiguate("State v. Gamble", cands, 0.62)
	if !res.Matched || res.CaseName != "State v. Gamble" {
		t.Errorf("res = %+v", res)
	}
}
