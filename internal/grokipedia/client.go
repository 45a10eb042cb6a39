// Package grokipedia is a read-only HTTP client for the Grokipedia knowledge
// base. It covers the three endpoints the server needs: full-text search,
// page detail, and page content. Response shapes are owned by the upstream
// service; this package adapts them into the local types and translates
// transport failures into the package's error taxonomy.
package grokipedia

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	// DefaultSearchBaseURL is the host serving search and page-detail.
	DefaultSearchBaseURL = "https://grokipedia.com"
	// DefaultContentBaseURL is the host serving full article content.
	DefaultContentBaseURL = "https://grokipedia-api.com"
	// DefaultTimeout bounds every outbound call.
	DefaultTimeout = 30 * time.Second

	// maxCitations caps the citation list returned in page detail.
	maxCitations = 10
)

// Config holds the upstream endpoints and the per-call timeout.
type Config struct {
	SearchBaseURL  string
	ContentBaseURL string
	Timeout        time.Duration
}

// Client talks to the Grokipedia HTTP API. All methods are safe for
// concurrent use and perform no retries; a call either succeeds or fails
// with one of the package sentinel errors wrapped in context.
//
// The configuration is resolved through a function on every call so that a
// config hot-reload takes effect without rebuilding the client.
type Client struct {
	httpc *http.Client
	cfgFn func() Config
}

// NewClient creates a Client with a fixed configuration. httpc may be nil,
// in which case http.DefaultClient is used; tests inject an httptest client
// here.
func NewClient(cfg Config, httpc *http.Client) *Client {
	return NewDynamicClient(func() Config { return cfg }, httpc)
}

// NewDynamicClient creates a Client whose configuration is re-read from
// cfgFn on every call. Zero fields in the returned Config fall back to the
// package defaults.
func NewDynamicClient(cfgFn func() Config, httpc *http.Client) *Client {
	if httpc == nil {
		httpc = http.DefaultClient
	}
	return &Client{httpc: httpc, cfgFn: cfgFn}
}

// config returns the current configuration with defaults applied.
func (c *Client) config() Config {
	cfg := c.cfgFn()
	if cfg.SearchBaseURL == "" {
		cfg.SearchBaseURL = DefaultSearchBaseURL
	}
	if cfg.ContentBaseURL == "" {
		cfg.ContentBaseURL = DefaultContentBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return cfg
}

// searchEnvelope mirrors the full-text-search response.
type searchEnvelope struct {
	Results []struct {
		Slug           string  `json:"slug"`
		Title          string  `json:"title"`
		Snippet        string  `json:"snippet"`
		RelevanceScore float64 `json:"relevanceScore"`
	} `json:"results"`
	TotalCount int `json:"totalCount"`
}

// Search runs a full-text search and returns matches in upstream relevance
// order, plus the total match count reported by the API. Snippets come back
// with <em> highlight markup; it is stripped here.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]SearchResult, int, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", "0")
	u := c.config().SearchBaseURL + "/api/full-text-search?" + q.Encode()

	var env searchEnvelope
	if err := c.getJSON(ctx, u, &env); err != nil {
		return nil, 0, fmt.Errorf("search %q: %w", query, err)
	}

	results := make([]SearchResult, 0, len(env.Results))
	for _, r := range env.Results {
		results = append(results, SearchResult{
			Slug:           r.Slug,
			Title:          r.Title,
			Snippet:        StripHTML(r.Snippet),
			RelevanceScore: r.RelevanceScore,
		})
	}
	return results, env.TotalCount, nil
}

// pageEnvelope mirrors the page-detail response. Metadata is decoded loosely
// because the upstream adds fields without notice.
type pageEnvelope struct {
	Found bool `json:"found"`
	Page  struct {
		Title     string         `json:"title"`
		Metadata  map[string]any `json:"metadata"`
		Stats     map[string]any `json:"stats"`
		Citations []Citation     `json:"citations"`
	} `json:"page"`
}

// Page fetches structured metadata and citations for a slug. Content is
// excluded at the API level (includeContent=false); use Content for the
// article text.
func (c *Client) Page(ctx context.Context, slug string) (*PageDetail, error) {
	q := url.Values{}
	q.Set("slug", slug)
	q.Set("includeContent", "false")
	q.Set("validateLinks", "true")
	u := c.config().SearchBaseURL + "/api/page?" + q.Encode()

	var env pageEnvelope
	if err := c.getJSON(ctx, u, &env); err != nil {
		return nil, fmt.Errorf("page %q: %w", slug, err)
	}
	if !env.Found {
		return nil, fmt.Errorf("page %q: %w", slug, ErrNotFound)
	}

	detail := &PageDetail{
		Slug:     slug,
		Title:    env.Page.Title,
		Metadata: map[string]string{"title": env.Page.Title},
		Stats:    env.Page.Stats,
	}
	for k, v := range env.Page.Metadata {
		switch val := v.(type) {
		case string:
			detail.Metadata[k] = val
		case []any:
			if k == "categories" {
				for _, item := range val {
					if s, ok := item.(string); ok {
						detail.Categories = append(detail.Categories, s)
					}
				}
			}
		}
	}
	citations := env.Page.Citations
	if len(citations) > maxCitations {
		citations = citations[:maxCitations]
	}
	detail.Citations = citations
	return detail, nil
}

// contentEnvelope mirrors the content endpoint response.
type contentEnvelope struct {
	Title       string `json:"title"`
	Slug        string `json:"slug"`
	URL         string `json:"url"`
	ContentText string `json:"content_text"`
	WordCount   int    `json:"word_count"`
	CharCount   int    `json:"char_count"`
}

// Content fetches the full article text for a slug with HTML markup stripped.
func (c *Client) Content(ctx context.Context, slug string) (*ContentBody, error) {
	u := c.config().ContentBaseURL + "/page/" + url.PathEscape(slug)

	var env contentEnvelope
	if err := c.getJSON(ctx, u, &env); err != nil {
		return nil, fmt.Errorf("content %q: %w", slug, err)
	}

	body := &ContentBody{
		Slug:      env.Slug,
		Title:     env.Title,
		URL:       env.URL,
		Text:      StripHTML(env.ContentText),
		WordCount: env.WordCount,
		CharCount: env.CharCount,
	}
	if body.Slug == "" {
		body.Slug = slug
	}
	return body, nil
}

// getJSON performs a GET with the configured timeout and decodes the JSON
// body into out, translating failures into the package error taxonomy.
func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.config().Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrSchema, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		// Covers connection failures, DNS errors, and context deadline.
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: HTTP %d", ErrUnavailable, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return nil
}

// IsTemporary reports whether err is a failure the caller could retry
// (unavailable or rate-limited), as opposed to a definitive answer.
func IsTemporary(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrRateLimited)
}
