package verify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/casetrace/casetrace/internal/model"
	"github.com/casetrace/casetrace/internal/util"
	"github.com/casetrace/casetrace/internal/worker"
)

// maxResultsPerQuery bounds how many hits one engine contributes.
const maxResultsPerQuery = 8

// NewProviders builds the fallback chain in the configured priority order.
// Unknown names are skipped rather than fatal so a config typo degrades to
// fewer engines.
func NewProviders(names []string, httpCfg model.HTTPConfig, limiter *worker.Limiter) []SearchProvider {
	client := &http.Client{
		Timeout: httpCfg.Timeout,
		Transport: &http.Transport{
			Proxy: util.NewProxyFunc(httpCfg.HTTPProxy, httpCfg.HTTPSProxy, httpCfg.NoProxy),
		},
	}

	var providers []SearchProvider
	for _, name := range names {
		switch strings.ToLower(name) {
		case "duckduckgo", "ddg":
			providers = append(providers, &DuckDuckGoProvider{
				httpClient: client,
				userAgent:  httpCfg.UserAgent,
				maxBytes:   httpCfg.MaxBodyBytes,
				limiter:    limiter,
			})
		case "bing":
			providers = append(providers, &BingProvider{
				httpClient: client,
				userAgent:  httpCfg.UserAgent,
				maxBytes:   httpCfg.MaxBodyBytes,
				limiter:    limiter,
			})
		}
	}
	return providers
}

// DuckDuckGoProvider scrapes the HTML endpoint, which needs no API key.
type DuckDuckGoProvider struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	limiter    *worker.Limiter
	baseURL    string // test override
}

func (p *DuckDuckGoProvider) Name() string { return "duckduckgo" }

func (p *DuckDuckGoProvider) Search(ctx context.Context, query string) ([]SearchResult, error) {
	base := p.baseURL
	if base == "" {
		base = "https://html.duckduckgo.com/html/"
	}
	searchURL := base + "?q=" + url.QueryEscape(query)

	doc, err := fetchHTML(ctx, p.httpClient, p.limiter, searchURL, p.userAgent, p.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: %w", err)
	}

	var results []SearchResult
	walkHTML(doc, func(n *html.Node) {
		if len(results) >= maxResultsPerQuery || !isElement(n, "a") || !hasClass(n, "result__a") {
			return
		}
		href := attrValue(n, "href")
		if href == "" {
			return
		}
		results = append(results, SearchResult{
			URL:     decodeDDGRedirect(href),
			Title:   nodeText(n),
			Snippet: siblingSnippet(n, "result__snippet"),
		})
	})
	return results, nil
}

// decodeDDGRedirect unwraps the /l/?uddg=... redirect DDG wraps result
// links in.
func decodeDDGRedirect(href string) string {
	parsed, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := parsed.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

// BingProvider scrapes the standard results page.
type BingProvider struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	limiter    *worker.Limiter
	baseURL    string // test override
}

func (p *BingProvider) Name() string { return "bing" }

func (p *BingProvider) Search(ctx context.Context, query string) ([]SearchResult, error) {
	base := p.baseURL
	if base == "" {
		base = "https://www.bing.com/search"
	}
	searchURL := base + "?q=" + url.QueryEscape(query)

	doc, err := fetchHTML(ctx, p.httpClient, p.limiter, searchURL, p.userAgent, p.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("bing: %w", err)
	}

	var results []SearchResult
	walkHTML(doc, func(n *html.Node) {
		if len(results) >= maxResultsPerQuery || !isElement(n, "li") || !hasClass(n, "b_algo") {
			return
		}
		var link *html.Node
		walkHTML(n, func(c *html.Node) {
			if link == nil && isElement(c, "a") && attrValue(c, "href") != "" {
				link = c
			}
		})
		if link == nil {
			return
		}
		results = append(results, SearchResult{
			URL:     attrValue(link, "href"),
			Title:   nodeText(link),
			Snippet: classText(n, "b_caption"),
		})
	})
	return results, nil
}

// fetchHTML performs a rate-limited GET and parses the body.
func fetchHTML(ctx context.Context, client *http.Client, limiter *worker.Limiter, rawURL, userAgent string, maxBytes int64) (*html.Node, error) {
	if limiter != nil {
		if err := limiter.Wait(ctx, rawURL); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return html.Parse(strings.NewReader(string(body)))
}

// HTML helpers shared by the providers and the page fetcher.

func walkHTML(n *html.Node, visit func(*html.Node)) {
	visit(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkHTML(c, visit)
	}
}

func isElement(n *html.Node, tag string) bool {
	return n.Type == html.ElementNode && n.Data == tag
}

func hasClass(n *html.Node, class string) bool {
	for _, f := range strings.Fields(attrValue(n, "class")) {
		if f == class {
			return true
		}
	}
	return false
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// nodeText concatenates the text nodes under n.
func nodeText(n *html.Node) string {
	var b strings.Builder
	walkHTML(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	})
	return strings.Join(strings.Fields(b.String()), " ")
}

// siblingSnippet climbs a few ancestors looking for a snippet subtree
// with the given class; result markup nests the link and snippet under a
// shared container.
func siblingSnippet(n *html.Node, class string) string {
	ancestor := n.Parent
	for depth := 0; ancestor != nil && depth < 3; depth++ {
		if text := classText(ancestor, class); text != "" {
			return text
		}
		ancestor = ancestor.Parent
	}
	return ""
}

// classText returns the text of the first descendant with the given class.
func classText(n *html.Node, class string) string {
	var out string
	walkHTML(n, func(c *html.Node) {
		if out == "" && c.Type == html.ElementNode && hasClass(c, class) {
			out = nodeText(c)
		}
	})
	return out
}
