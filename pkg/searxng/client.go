// Package searxng provides a client for the SearXNG JSON search API.
package searxng

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the SearXNG search operations.
type Client interface {
	// Search runs a query against {baseURL}/search and returns the raw hits.
	Search(ctx context.Context, req Request) (*Response, error)
}

// Request holds the query parameters sent to /search.
type Request struct {
	Query      string
	Language   string
	Categories string
	Engines    string
	TimeRange  string
	SafeSearch int
}

// Response is the subset of the SearXNG JSON response we consume.
type Response struct {
	Query   string   `json:"query"`
	Results []Result `json:"results"`
}

// Result is a single SearXNG hit. Metadata is free text that sometimes
// carries a date such as "2024/5/10".
type Result struct {
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Content       string  `json:"content"`
	Engine        string  `json:"engine"`
	PublishedDate *string `json:"publishedDate"`
	Metadata      string  `json:"metadata"`
	Score         float64 `json:"score"`
}

// Option configures the SearXNG client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a SearXNG client rooted at baseURL. The URL must be
// absolute (scheme and host); malformed URLs are rejected here so they
// surface at startup rather than mid-run.
func NewClient(baseURL string, opts ...Option) (Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, eris.Wrap(err, "searxng: parse base url")
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, eris.Errorf("searxng: base url must be absolute: %q", baseURL)
	}

	c := &httpClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *httpClient) Search(ctx context.Context, r Request) (*Response, error) {
	categories := r.Categories
	if categories == "" {
		categories = "general"
	}

	q := url.Values{}
	q.Set("q", r.Query)
	q.Set("format", "json")
	q.Set("safesearch", strconv.Itoa(r.SafeSearch))
	q.Set("categories", categories)
	if r.Language != "" {
		q.Set("language", r.Language)
	}
	if r.Engines != "" {
		q.Set("engines", r.Engines)
	}
	if r.TimeRange != "" {
		q.Set("time_range", r.TimeRange)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "searxng: create request")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "zh-TW,zh;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "searxng: request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "searxng: read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, eris.Errorf("searxng: unexpected status %d: %s", resp.StatusCode, truncate(string(body), 256))
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "searxng: unmarshal response")
	}
	return &out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
