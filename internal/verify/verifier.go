// Package verify resolves citation clusters against the structured
// authority and a chain of web-search fallbacks. Exhausting every source
// without a match is a normal terminal state, never a pipeline failure.
package verify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/casetrace/casetrace/internal/cache"
	"github.com/casetrace/casetrace/internal/model"
	"github.com/casetrace/casetrace/internal/similarity"
	"github.com/casetrace/casetrace/internal/util"
	"github.com/casetrace/casetrace/internal/worker"
)

// state names for the per-cluster verification machine.
type state string

const (
	statePending         state = "PENDING"
	stateAuthorityLookup state = "AUTHORITY_LOOKUP"
	stateAuthorityMiss   state = "AUTHORITY_MISS"
	stateWebFallback     state = "WEB_FALLBACK"
	stateVerified        state = "VERIFIED"
	stateUnverified      state = "UNVERIFIED"
)

// cacheRecord is the persisted verification outcome for one citation.
type cacheRecord struct {
	Matched        bool    `json:"matched"`
	TrueByParallel bool    `json:"true_by_parallel,omitempty"`
	CaseName       string  `json:"case_name,omitempty"`
	Date           string  `json:"date,omitempty"`
	URL            string  `json:"url,omitempty"`
	Source         string  `json:"source,omitempty"`
	PropagatedFrom string  `json:"propagated_from,omitempty"`
	Confidence     float64 `json:"confidence,omitempty"`
}

// Verifier runs the multi-source verification stage. The cache and rate
// limiter are injected, never ambient globals, so tests can substitute
// deterministic fakes.
type Verifier struct {
	cfg       model.VerifyConfig
	authority AuthorityAPI
	providers []SearchProvider
	scorer    *ResultScorer
	store     cache.Cache
	storeSet  bool
	limiter   *worker.Limiter
	workers   int
	log       *slog.Logger
}

// Option customizes a Verifier.
type Option func(*Verifier)

// WithAuthority substitutes the structured lookup source.
func WithAuthority(a AuthorityAPI) Option {
	return func(v *Verifier) { v.authority = a }
}

// WithProviders substitutes the fallback chain.
func WithProviders(providers ...SearchProvider) Option {
	return func(v *Verifier) { v.providers = providers }
}

// WithCache substitutes the verification cache. Pass nil to disable.
func WithCache(c cache.Cache) Option {
	return func(v *Verifier) { v.store = c; v.storeSet = true }
}

// WithScorer substitutes the result scorer.
func WithScorer(s *ResultScorer) Option {
	return func(v *Verifier) { v.scorer = s }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *Verifier) { v.log = l }
}

// New builds a Verifier from configuration. Defaults: a shared per-host
// limiter with the authority host tuned to the configured ceiling, the
// HTTP authority client, the configured provider chain and a layered
// cache when caching is enabled.
func New(cfg *model.Config, opts ...Option) *Verifier {
	limiter := worker.NewLimiter(cfg.Verify.RatePerSecond, cfg.Verify.Burst)
	if parsed, err := url.Parse(cfg.Verify.AuthorityBaseURL); err == nil && parsed.Host != "" {
		limiter.SetHostRate(parsed.Host, cfg.Verify.RatePerSecond, cfg.Verify.Burst)
	}

	v := &Verifier{
		cfg:     cfg.Verify,
		limiter: limiter,
		workers: cfg.Concurrency.VerifyWorkers,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}

	if v.authority == nil {
		v.authority = NewAuthorityClient(cfg.Verify, cfg.HTTP, limiter)
	}
	if v.providers == nil {
		v.providers = NewProviders(cfg.Verify.SearchEngines, cfg.HTTP, limiter)
	}
	if v.scorer == nil {
		robots := util.NewRobotsChecker(cfg.HTTP.UserAgent, cfg.HTTP.Timeout)
		fetcher := NewPageFetcher(cfg.HTTP, limiter, robots)
		v.scorer = NewResultScorer(cfg.Verify.DomainWeights, cfg.Verify.GenericWeight, fetcher)
	}
	if !v.storeSet && v.store == nil && cfg.Cache.Enabled {
		v.store = cache.NewLayered(cfg.Cache.MemoryTTL, cfg.Cache.Dir, cfg.Cache.DiskTTL)
	}
	return v
}

// VerifyClusters verifies every cluster, writing canonical fields onto
// members and clusters. Clusters are verified concurrently; propagation
// within a cluster stays race-free because each cluster is owned by
// exactly one job for its whole lifetime. Returns false when ctx expired
// before all clusters were processed.
func (v *Verifier) VerifyClusters(ctx context.Context, clusters []*model.Cluster, onProgress func(done, total int)) bool {
	if len(clusters) == 0 {
		return true
	}

	records := v.cachedRecords(clusters)
	candidates := v.authorityLookup(ctx, clusters, records)

	pool := worker.NewPool(ctx, v.workers)
	pool.Start()

	var done atomic.Int64
	total := len(clusters)
	for _, cl := range clusters {
		pool.Submit(&clusterJob{
			verifier:   v,
			cluster:    cl,
			candidates: candidates,
			records:    records,
			report: func() {
				if onProgress != nil {
					onProgress(int(done.Add(1)), total)
				}
			},
		})
	}
	pool.Wait()

	return ctx.Err() == nil
}

// cachedRecords loads prior outcomes for every member citation.
func (v *Verifier) cachedRecords(clusters []*model.Cluster) map[string]cacheRecord {
	records := make(map[string]cacheRecord)
	if v.store == nil {
		return records
	}
	for _, cl := range clusters {
		for _, m := range cl.Members {
			if _, ok := records[m.Text]; ok {
				continue
			}
			data, found := v.store.Get(cache.Key(m.Text))
			if !found {
				continue
			}
			var rec cacheRecord
			if err := json.Unmarshal(data, &rec); err != nil {
				continue
			}
			records[m.Text] = rec
		}
	}
	return records
}

// authorityLookup batches every uncached citation through the authority,
// chunked to the configured batch size. A failed chunk degrades that
// chunk's citations to web fallback; it never aborts the run.
func (v *Verifier) authorityLookup(ctx context.Context, clusters []*model.Cluster, records map[string]cacheRecord) map[string][]AuthorityCandidate {
	var uncached []string
	seen := make(map[string]bool)
	for _, cl := range clusters {
		for _, m := range cl.Members {
			if _, ok := records[m.Text]; ok {
				continue
			}
			if !seen[m.Text] {
				seen[m.Text] = true
				uncached = append(uncached, m.Text)
			}
		}
	}

	batchSize := v.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 25
	}

	candidates := make(map[string][]AuthorityCandidate)
	for start := 0; start < len(uncached); start += batchSize {
		end := start + batchSize
		if end > len(uncached) {
			end = len(uncached)
		}
		batch, err := v.authority.Lookup(ctx, uncached[start:end])
		if err != nil {
			v.log.Warn("authority lookup failed, degrading to web fallback",
				"citations", end-start, "error", err)
			continue
		}
		for citation, cands := range batch {
			candidates[citation] = cands
		}
	}
	return candidates
}

// clusterJob verifies one cluster on the worker pool.
type clusterJob struct {
	verifier   *Verifier
	cluster    *model.Cluster
	candidates map[string][]AuthorityCandidate
	records    map[string]cacheRecord
	report     func()
}

type clusterResult struct {
	clusterID string
	err       error
}

func (r *clusterResult) GetError() error { return r.err }

func (j *clusterJob) Execute(ctx context.Context) worker.Result {
	budget := j.verifier.cfg.CitationBudget
	if budget <= 0 {
		budget = 45 * time.Second
	}
	// Per-cluster budget: one unreachable source must never consume the
	// document's whole time allowance.
	bctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	j.verifier.verifyCluster(bctx, j.cluster, j.candidates, j.records)
	j.report()
	return &clusterResult{clusterID: j.cluster.ID, err: ctx.Err()}
}

// verifyCluster drives the state machine for one cluster:
// PENDING → AUTHORITY_LOOKUP → (VERIFIED | AUTHORITY_MISS) →
// [WEB_FALLBACK →] (VERIFIED | UNVERIFIED).
func (v *Verifier) verifyCluster(ctx context.Context, cl *model.Cluster, candidates map[string][]AuthorityCandidate, records map[string]cacheRecord) {
	st := statePending
	v.log.Debug("cluster verification started", "cluster", cl.ID, "state", string(st))
	hint := cl.CaseName

	// Cache hits first: they skip all network stages.
	var matched *model.Citation
	for _, m := range cl.Members {
		rec, ok := records[m.Text]
		if !ok {
			continue
		}
		applyRecord(m, rec)
		if m.Verified && matched == nil {
			matched = m
		}
	}

	// Authority disambiguation per member.
	st = stateAuthorityLookup
	v.log.Debug("authority disambiguation", "cluster", cl.ID, "state", string(st))
	for _, m := range cl.Members {
		if m.Verified || m.TrueByParallel {
			continue
		}
		if _, cached := records[m.Text]; cached {
			continue // known miss, do not retry within the TTL
		}
		memberHint := hint
		if memberHint == "" {
			memberHint = m.ExtractedCaseName
		}
		res := disambiguate(memberHint, candidates[m.Text], v.cfg.MinSimilarity)
		if res.ErrorKind != "" {
			v.log.Debug("authority candidates rejected",
				"citation", m.Text, "error_kind", res.ErrorKind)
		}
		if res.Matched {
			applyResult(m, res)
			if matched == nil {
				matched = m
			}
		}
	}

	// Web fallback only when no member has its own confirmed record.
	if matched == nil {
		st = stateAuthorityMiss
		v.log.Debug("authority miss", "cluster", cl.ID, "state", string(st))
		st = stateWebFallback
		if res, ok := v.webFallback(ctx, cl, hint); ok {
			lead := cl.Members[0]
			applyResult(lead, res)
			matched = lead
		}
	}

	if matched == nil {
		st = stateUnverified
		v.log.Debug("cluster unverified", "cluster", cl.ID, "state", string(st))
		v.persistOutcomes(cl, records)
		return
	}

	// Propagation: cluster fields first, then every member without its
	// own confirmed record, each tagged with the member that produced the
	// original match. This section is exclusive per cluster.
	st = stateVerified
	cl.Verified = true
	cl.CanonicalName = matched.CanonicalName
	cl.CanonicalDate = matched.CanonicalDate
	cl.CanonicalURL = matched.CanonicalURL
	cl.VerificationSource = matched.VerificationSource
	for _, m := range cl.Members {
		if m == matched || m.Verified {
			continue
		}
		m.CanonicalName = matched.CanonicalName
		m.CanonicalDate = matched.CanonicalDate
		m.CanonicalURL = matched.CanonicalURL
		m.VerificationSource = matched.VerificationSource
		m.TrueByParallel = true
		m.PropagatedFrom = matched.Text
	}
	v.log.Debug("cluster verified", "cluster", cl.ID,
		"source", matched.VerificationSource, "state", string(st))

	v.persistOutcomes(cl, records)
}

// webFallback runs the provider chain in priority order over the query
// variants, stopping at the first engine whose best hit clears the floor.
func (v *Verifier) webFallback(ctx context.Context, cl *model.Cluster, hint string) (model.VerificationResult, bool) {
	citation := cl.Members[0].Text
	queries := BuildQueries(citation, hint, v.cfg.DomainWeights)

	for _, p := range v.providers {
		for _, q := range queries {
			if ctx.Err() != nil {
				return model.VerificationResult{}, false
			}
			results, err := p.Search(ctx, q)
			if err != nil {
				v.log.Warn("search provider failed",
					"provider", p.Name(), "error", err)
				continue
			}
			if len(results) == 0 {
				continue
			}

			ranked := v.scorer.Rank(ctx, results, citation, hint)
			if len(ranked) == 0 || ranked[0].Score < v.cfg.MinSimilarity {
				continue
			}
			top := ranked[0]
			return model.VerificationResult{
				SourceName: "web:" + p.Name(),
				Matched:    true,
				CaseName:   top.CaseName,
				URL:        top.URL,
				Confidence: top.Score,
			}, true
		}
	}
	return model.VerificationResult{}, false
}

// disambiguate selects among authority candidates by name similarity.
// Below the floor every candidate is a miss, never a wrong match.
func disambiguate(hint string, cands []AuthorityCandidate, floor float64) model.VerificationResult {
	if len(cands) == 0 {
		return model.VerificationResult{SourceName: "authority"}
	}

	if hint == "" {
		// Without a hint a single candidate is acceptable; several are
		// indistinguishable and must be treated as a miss.
		if len(cands) == 1 {
			return candidateResult(cands[0], 0.7)
		}
		return model.VerificationResult{SourceName: "authority", ErrorKind: model.ErrorKindAmbiguous}
	}

	best := -1
	bestScore := 0.0
	for i, c := range cands {
		if s := similarity.Score(hint, c.CaseName); s > bestScore {
			best, bestScore = i, s
		}
	}
	if best < 0 || bestScore < floor {
		return model.VerificationResult{SourceName: "authority", ErrorKind: model.ErrorKindAmbiguous}
	}
	return candidateResult(cands[best], bestScore)
}

func candidateResult(c AuthorityCandidate, confidence float64) model.VerificationResult {
	return model.VerificationResult{
		SourceName: "authority",
		Matched:    true,
		CaseName:   c.CaseName,
		Date:       c.DateFiled,
		URL:        c.AbsoluteURL,
		Confidence: confidence,
	}
}

// applyResult writes a positive source result onto a citation's canonical
// fields. Extracted fields are never touched here.
func applyResult(m *model.Citation, res model.VerificationResult) {
	m.Verified = true
	m.CanonicalName = res.CaseName
	m.CanonicalDate = res.Date
	m.CanonicalURL = res.URL
	m.VerificationSource = res.SourceName
}

// applyRecord restores a cached outcome onto a citation.
func applyRecord(m *model.Citation, rec cacheRecord) {
	if !rec.Matched {
		return
	}
	m.CanonicalName = rec.CaseName
	m.CanonicalDate = rec.Date
	m.CanonicalURL = rec.URL
	m.VerificationSource = rec.Source
	if rec.TrueByParallel {
		m.TrueByParallel = true
		m.PropagatedFrom = rec.PropagatedFrom
	} else {
		m.Verified = true
	}
}

// persistOutcomes caches each member's terminal outcome, including
// negative ones: a known miss should not hit the network again within the
// TTL.
func (v *Verifier) persistOutcomes(cl *model.Cluster, records map[string]cacheRecord) {
	if v.store == nil {
		return
	}
	for _, m := range cl.Members {
		if _, cached := records[m.Text]; cached {
			continue
		}
		rec := cacheRecord{
			Matched:        m.Verified || m.TrueByParallel,
			TrueByParallel: m.TrueByParallel,
			CaseName:       m.CanonicalName,
			Date:           m.CanonicalDate,
			URL:            m.CanonicalURL,
			Source:         m.VerificationSource,
			PropagatedFrom: m.PropagatedFrom,
		}
		data, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		if err := v.store.Set(cache.Key(m.Text), data, v.cfg.CacheTTL); err != nil {
			v.log.Warn("cache write failed", "citation", m.Text, "error", err)
		}
	}
}
