package verify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/casetrace/casetrace/internal/model"
	"github.com/casetrace/casetrace/internal/worker"
)

func newTestClient(t *testing.T, srv *httptest.Server, maxRetries int, slept *[]time.Duration) *AuthorityClient {
	t.Helper()
	return &AuthorityClient{
		baseURL:    srv.URL,
		token:      "test-token",
		httpClient: srv.Client(),
		limiter:    worker.NewLimiter(10_000, 10_000),
		maxRetries: maxRetries,
		sleep: func(d time.Duration) {
			if slept != nil {
				*slept = append(*slept, d)
			}
		},
	}
}

func TestAuthorityLookupBatch(t *testing.T) {
	var gotAuth string
	var gotBody lookupRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/citation-lookup/" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode([]lookupMatch{
			{
				Citation:            "154 Wn.2d 457",
				NormalizedCitations: []string{"154 Wash. 2d 457"},
				Status:              200,
				Clusters: []AuthorityCandidate{{
					CaseName:    "State v. Gamble",
					DateFiled:   "2005-06-30",
					AbsoluteURL: "/opinion/1234/state-v-gamble/",
				}},
			},
			{Citation: "1 Fake 1", Status: 404},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 3, nil)
	got, err := c.Lookup(context.Background(), []string{"154 Wn.2d 457", "1 Fake 1"})
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}

	if gotAuth != "Token test-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotBody.Text != "154 Wn.2d 457; 1 Fake 1" {
		t.Errorf("request text = %q", gotBody.Text)
	}

	cands := got["154 Wn.2d 457"]
	if len(cands) != 1 || cands[0].CaseName != "State v. Gamble" {
		t.Fatalf("candidates = %+v", cands)
	}
	if want := srv.URL + "/opinion/1234/state-v-gamble/"; cands[0].AbsoluteURL != want {
		t.Errorf("url = %q, want %q", cands[0].AbsoluteURL, want)
	}
	// Normalized forms index the same candidate list.
	if len(got["154 Wash. 2d 457"]) != 1 {
		t.Error("normalized citation not indexed")
	}
	// A 404 status entry carries no clusters and stays out of the map.
	if _, ok := got["1 Fake 1"]; ok {
		t.Error("miss entry should not be indexed")
	}
}

func TestAuthorityLookupRetriesOn429(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode([]lookupMatch{{
			Citation: "384 U.S. 436",
			Clusters: []AuthorityCandidate{{CaseName: "Miranda v. Arizona"}},
		}})
	}))
	defer srv.Close()

	var slept []time.Duration
	c := newTestClient(t, srv, 3, &slept)

	got, err := c.Lookup(context.Background(), []string{"384 U.S. 436"})
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(got["384 U.S. 436"]) != 1 {
		t.Fatalf("candidates = %+v", got)
	}
	if calls.Load() != 3 {
		t.Errorf("made %d requests, want 3", calls.Load())
	}
	// Exponential backoff before each retry.
	if len(slept) != 2 || slept[0] != time.Second || slept[1] != 2*time.Second {
		t.Errorf("backoff = %v", slept)
	}
}

func TestAuthorityLookupExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	var slept []time.Duration
	c := newTestClient(t, srv, 3, &slept)

	_, err := c.Lookup(context.Background(), []string{"1 A.3d 1"})
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	var srcErr *SourceError
	if !errors.As(err, &srcErr) || srcErr.Kind != model.ErrorKindUnreachable {
		t.Errorf("err = %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("made %d requests, want 3", calls.Load())
	}
}

func TestAuthorityLookupClientErrorNoRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 3, nil)
	_, err := c.Lookup(context.Background(), []string{"1 A.3d 1"})

	var srcErr *SourceError
	if !errors.As(err, &srcErr) || srcErr.Kind != model.ErrorKindBadResponse {
		t.Fatalf("err = %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("made %d requests, want 1; 4xx is final", calls.Load())
	}
}

func TestAuthorityLookupEmptyBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an empty batch")
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 3, nil)
	got, err := c.Lookup(context.Background(), nil)
	if err != nil || len(got) != 0 {
		t.Errorf("got %v, %v", got, err)
	}
}

func TestClassifyNetErr(t *testing.T) {
	if kind := classifyNetErr(errors.New("dial tcp: i/o timeout")); kind != model.ErrorKindTimeout {
		t.Errorf("timeout classified as %s", kind)
	}
	if kind := classifyNetErr(errors.New("connection refused")); kind != model.ErrorKindUnreachable {
		t.Errorf("refused classified as %s", kind)
	}
}
