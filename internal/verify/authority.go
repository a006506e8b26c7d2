package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/casetrace/casetrace/internal/model"
	"github.com/casetrace/casetrace/internal/util"
	"github.com/casetrace/casetrace/internal/worker"
)

// AuthorityCandidate is one case record the authority returned for a
// citation. A paginated citation reused across reporters can yield several.
type AuthorityCandidate struct {
	CaseName    string   `json:"case_name"`
	DateFiled   string   `json:"date_filed"`
	Court       string   `json:"court"`
	AbsoluteURL string   `json:"absolute_url"`
	Citations   []string `json:"citations"`
}

// AuthorityAPI is the structured lookup source. The verifier depends on
// this interface so tests can substitute a deterministic fake.
type AuthorityAPI interface {
	// Lookup resolves a batch of citation strings in one request and maps
	// each citation to zero or more candidate case records.
	Lookup(ctx context.Context, citations []string) (map[string][]AuthorityCandidate, error)
}

// SourceError wraps a lookup failure with its taxonomy kind. Source
// failures degrade verification, they never abort the pipeline.
type SourceError struct {
	Kind model.ErrorKind
	Err  error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// sleepFunc is injectable for retry tests.
type sleepFunc func(time.Duration)

// AuthorityClient talks to the citation-lookup endpoint. Requests carry
// several citations at once, which cuts round-trips materially, and pass
// through the shared token-bucket limiter tuned below the provider's
// published ceiling.
type AuthorityClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *worker.Limiter
	maxRetries int
	sleep      sleepFunc
}

// NewAuthorityClient builds the client from configuration.
func NewAuthorityClient(cfg model.VerifyConfig, httpCfg model.HTTPConfig, limiter *worker.Limiter) *AuthorityClient {
	return &AuthorityClient{
		baseURL: strings.TrimSuffix(cfg.AuthorityBaseURL, "/"),
		token:   cfg.AuthorityToken,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &http.Transport{
				Proxy: util.NewProxyFunc(httpCfg.HTTPProxy, httpCfg.HTTPSProxy, httpCfg.NoProxy),
			},
		},
		limiter:    limiter,
		maxRetries: cfg.MaxRetries,
		sleep:      time.Sleep,
	}
}

// lookupRequest and lookupMatch follow the citation-lookup wire schema:
// one text blob in, one entry per recognized citation out.
type lookupRequest struct {
	Text string `json:"text"`
}

type lookupMatch struct {
	Citation            string               `json:"citation"`
	NormalizedCitations []string             `json:"normalized_citations"`
	Status              int                  `json:"status"`
	Clusters            []AuthorityCandidate `json:"clusters"`
}

// Lookup resolves up to a batch of citations in one round-trip. On 429 and
// 5xx it retries with exponential backoff up to the retry budget, then
// returns a SourceError so the caller degrades to web fallback.
func (c *AuthorityClient) Lookup(ctx context.Context, citations []string) (map[string][]AuthorityCandidate, error) {
	if len(citations) == 0 {
		return map[string][]AuthorityCandidate{}, nil
	}

	endpoint := c.baseURL + "/citation-lookup/"
	body, err := json.Marshal(lookupRequest{Text: strings.Join(citations, "; ")})
	if err != nil {
		return nil, fmt.Errorf("marshal lookup request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			c.sleep(time.Duration(1<<uint(attempt-1)) * time.Second)
		}
		if err := c.limiter.Wait(ctx, endpoint); err != nil {
			return nil, &SourceError{Kind: model.ErrorKindTimeout, Err: err}
		}

		matches, retryable, err := c.doLookup(ctx, endpoint, body)
		if err == nil {
			c.absolutize(matches)
			return indexMatches(matches), nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}

	var srcErr *SourceError
	if errors.As(lastErr, &srcErr) {
		return nil, lastErr
	}
	return nil, &SourceError{Kind: classifyNetErr(lastErr), Err: lastErr}
}

func (c *AuthorityClient) doLookup(ctx context.Context, endpoint string, body []byte) ([]lookupMatch, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, &SourceError{Kind: model.ErrorKindRateLimited, Err: fmt.Errorf("authority returned 429")}
	case resp.StatusCode >= 500:
		return nil, true, &SourceError{Kind: model.ErrorKindUnreachable, Err: fmt.Errorf("authority returned %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return nil, false, &SourceError{Kind: model.ErrorKindBadResponse, Err: fmt.Errorf("authority returned %d", resp.StatusCode)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, true, fmt.Errorf("read response: %w", err)
	}

	var matches []lookupMatch
	if err := json.Unmarshal(data, &matches); err != nil {
		return nil, false, &SourceError{Kind: model.ErrorKindBadResponse, Err: fmt.Errorf("decode response: %w", err)}
	}
	return matches, false, nil
}

// absolutize rewrites path-only candidate URLs against the API origin;
// the authority returns absolute_url as a site-relative path.
func (c *AuthorityClient) absolutize(matches []lookupMatch) {
	base, err := url.Parse(c.baseURL)
	if err != nil || base.Host == "" {
		return
	}
	origin := base.Scheme + "://" + base.Host
	for _, m := range matches {
		for i := range m.Clusters {
			if strings.HasPrefix(m.Clusters[i].AbsoluteURL, "/") {
				m.Clusters[i].AbsoluteURL = origin + m.Clusters[i].AbsoluteURL
			}
		}
	}
}

// indexMatches maps both the echoed citation text and every normalized
// form to the candidate list, so callers can look up by either.
func indexMatches(matches []lookupMatch) map[string][]AuthorityCandidate {
	out := make(map[string][]AuthorityCandidate, len(matches))
	for _, m := range matches {
		if len(m.Clusters) == 0 {
			continue
		}
		out[m.Citation] = m.Clusters
		for _, norm := range m.NormalizedCitations {
			if _, exists := out[norm]; !exists {
				out[norm] = m.Clusters
			}
		}
	}
	return out
}

// classifyNetErr maps a transport error onto the taxonomy.
func classifyNetErr(err error) model.ErrorKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.ErrorKindTimeout
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline") {
		return model.ErrorKindTimeout
	}
	return model.ErrorKindUnreachable
}
