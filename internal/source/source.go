// Package source turns raw search backend hits into normalized candidates.
package source

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/search-parser/internal/model"
	"github.com/sells-group/search-parser/pkg/searxng"
)

// DefaultDisallowedDomain is excluded from every candidate list.
const DefaultDisallowedDomain = "wikinews.org"

// Fetcher yields ranked candidates for a query. Implementations never fail:
// backend problems produce an empty list.
type Fetcher interface {
	Fetch(ctx context.Context, query string, params model.SearchParams, maxResults int) []model.Candidate
}

// Source adapts a SearXNG client to the Fetcher contract.
type Source struct {
	client     searxng.Client
	disallowed string
	log        *zap.Logger
}

// Option configures a Source.
type Option func(*Source)

// WithDisallowedDomain overrides the domain whose results are dropped.
// An empty string disables filtering.
func WithDisallowedDomain(domain string) Option {
	return func(s *Source) {
		s.disallowed = domain
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Source) {
		if l != nil {
			s.log = l
		}
	}
}

// New creates a Source backed by client.
func New(client searxng.Client, opts ...Option) *Source {
	s := &Source{
		client:     client,
		disallowed: DefaultDisallowedDomain,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch issues one backend request and returns at most maxResults
// candidates in backend rank order.
func (s *Source) Fetch(ctx context.Context, query string, params model.SearchParams, maxResults int) []model.Candidate {
	s.log.Info("source: querying search backend",
		zap.String("query", query),
		zap.Int("max_results", maxResults),
	)

	resp, err := s.client.Search(ctx, searxng.Request{
		Query:      query,
		Language:   params.Language,
		Categories: params.Categories,
		Engines:    params.Engines,
		TimeRange:  params.TimeRange,
		SafeSearch: params.SafeSearch,
	})
	if err != nil {
		s.log.Error("source: search failed", zap.String("query", query), zap.Error(err))
		return []model.Candidate{}
	}

	out := make([]model.Candidate, 0, min(len(resp.Results), max(maxResults, 0)))
	skipped := 0
	for _, r := range resp.Results {
		if len(out) >= maxResults {
			break
		}
		if s.disallowed != "" && strings.Contains(r.URL, s.disallowed) {
			skipped++
			continue
		}

		raw := ""
		if r.PublishedDate != nil {
			raw = *r.PublishedDate
		}
		if raw == "" {
			raw = DateFromMetadata(r.Metadata)
		}

		out = append(out, model.Candidate{
			URL:       r.URL,
			Title:     r.Title,
			Snippet:   r.Content,
			Engine:    r.Engine,
			Published: ParsePublished(raw),
			Score:     r.Score,
			Query:     query,
		})
	}

	s.log.Info("source: candidates ready",
		zap.String("query", query),
		zap.Int("total", len(resp.Results)),
		zap.Int("kept", len(out)),
		zap.Int("skipped_disallowed", skipped),
	)
	return out
}
