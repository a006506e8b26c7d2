package verify

import (
	"context"
	"net/http"

	"golang.org/x/net/html"

	"github.com/casetrace/casetrace/internal/model"
	"github.com/casetrace/casetrace/internal/util"
	"github.com/casetrace/casetrace/internal/worker"
)

// PageFetcher retrieves a fallback result page and reduces it to visible
// text for literal citation/name matching.
type PageFetcher struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	limiter    *worker.Limiter
	robots     *util.RobotsChecker
}

// NewPageFetcher builds a fetcher sharing the verifier's limiter and
// robots checker.
func NewPageFetcher(httpCfg model.HTTPConfig, limiter *worker.Limiter, robots *util.RobotsChecker) *PageFetcher {
	return &PageFetcher{
		httpClient: &http.Client{
			Timeout: httpCfg.Timeout,
			Transport: &http.Transport{
				Proxy: util.NewProxyFunc(httpCfg.HTTPProxy, httpCfg.HTTPSProxy, httpCfg.NoProxy),
			},
		},
		userAgent: httpCfg.UserAgent,
		maxBytes:  httpCfg.MaxBodyBytes,
		limiter:   limiter,
		robots:    robots,
	}
}

// VisibleText fetches rawURL and returns its rendered text content.
// Returns "" without error when robots.txt disallows the fetch; the result
// is then scored on title and snippet alone.
func (f *PageFetcher) VisibleText(ctx context.Context, rawURL string) (string, error) {
	if f.robots != nil && !f.robots.Allowed(ctx, rawURL) {
		return "", nil
	}

	doc, err := fetchHTML(ctx, f.httpClient, f.limiter, rawURL, f.userAgent, f.maxBytes)
	if err != nil {
		return "", err
	}
	return visibleText(doc), nil
}

// visibleText extracts the text nodes of a document, skipping script-ish
// subtrees.
func visibleText(doc *html.Node) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe":
				return
			}
		}
		if n.Type == html.TextNode {
			parts = append(parts, n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	var b []byte
	for _, p := range parts {
		b = append(b, p...)
		b = append(b, ' ')
	}
	return string(b)
}
