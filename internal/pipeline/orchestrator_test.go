package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/search-parser/internal/model"
	"github.com/sells-group/search-parser/internal/store"
)

var articleText = strings.Repeat("越南經濟", 15)

func candidates(query string, n int) []model.Candidate {
	out := make([]model.Candidate, n)
	for i := range out {
		out[i] = model.Candidate{
			URL:    fmt.Sprintf("https://news.example.com/%d", i),
			Title:  fmt.Sprintf("title %d", i),
			Engine: "google",
			Score:  float64(n - i),
			Query:  query,
		}
	}
	return out
}

func urlsOf(cands []model.Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.URL
	}
	return out
}

func recordURLs(recs []model.ParsedRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.URL
	}
	return out
}

func TestRun_CachedCandidatesSatisfyTarget(t *testing.T) {
	cands := candidates("vietnam economy", 6)
	pub := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	cachedA := model.ParsedRecord{
		URL: cands[2].URL, Query: "vietnam economy", Title: "stored A", Engine: "bing",
		Published: &pub, Score: 1.25, Text: articleText, InsertedAt: time.Date(2024, 5, 11, 9, 0, 0, 0, time.UTC),
	}
	cachedB := model.ParsedRecord{
		URL: cands[4].URL, Query: "older query", Title: "stored B", Text: articleText,
		InsertedAt: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
	}

	mf := &mockFetcher{}
	mf.On("Fetch", mock.Anything, "vietnam economy", model.SearchParams{}, DefaultMaxAttempts).Return(cands)

	ms := &mockStore{}
	ms.On("LookupParsed", mock.Anything, urlsOf(cands[:5])).
		Return(map[string]model.ParsedRecord{cachedA.URL: cachedA, cachedB.URL: cachedB}, nil)
	ms.On("InsertParsed", mock.Anything, mock.Anything).Return(int64(0), nil)
	ms.On("InsertFailed", mock.Anything, mock.Anything).Return(int64(0), nil)

	res := newStubResolver()
	o := New(mf, res, WithStore(ms))

	got := o.Run(context.Background(), Request{Query: "vietnam economy", MinParsed: 2})

	assert.Equal(t, "vietnam economy", got.Query)
	assert.Equal(t, []model.ParsedRecord{cachedA, cachedB}, got.Success)
	assert.Empty(t, got.Failed)
	assert.Equal(t, 2, got.Attempts)
	assert.Empty(t, res.called())
	mf.AssertExpectations(t)
	ms.AssertExpectations(t)
}

func TestRun_StopsAtMinParsed(t *testing.T) {
	cands := candidates("q", 10)
	res := newStubResolver()
	for _, c := range cands {
		res.outcomes[c.URL] = model.Outcome{Title: "t", Text: articleText}
	}

	mf := &mockFetcher{}
	mf.On("Fetch", mock.Anything, "q", model.SearchParams{}, DefaultMaxAttempts).Return(cands)

	got := New(mf, res).Run(context.Background(), Request{Query: "q", MinParsed: 3})

	assert.Len(t, got.Success, 3)
	assert.Equal(t, 3, got.Attempts)
	assert.Len(t, res.called(), 3)
	assert.ElementsMatch(t, urlsOf(cands[:3]), res.called())
}

func TestRun_SuccessNeverExceedsMinParsed(t *testing.T) {
	for _, minParsed := range []int{1, 2, 4, 5, 6, 9} {
		t.Run(fmt.Sprintf("min_%d", minParsed), func(t *testing.T) {
			cands := candidates("q", 12)
			res := newStubResolver()
			for i, c := range cands {
				if i%3 == 1 {
					res.outcomes[c.URL] = model.Failed("timeout")
					continue
				}
				res.outcomes[c.URL] = model.Outcome{Text: articleText}
				res.delays[c.URL] = time.Duration(12-i) * time.Millisecond
			}

			mf := &mockFetcher{}
			mf.On("Fetch", mock.Anything, "q", model.SearchParams{}, 20).Return(cands)

			got := New(mf, res).Run(context.Background(), Request{Query: "q", MinParsed: minParsed, MaxAttempts: 20})

			assert.LessOrEqual(t, len(got.Success), minParsed)
			assert.Equal(t, len(res.called()), got.Attempts)
			assert.Equal(t, got.Attempts, len(got.Success)+len(got.Failed))
		})
	}
}

func TestRun_RecordsInCompletionOrder(t *testing.T) {
	cands := candidates("q", 3)
	res := newStubResolver()
	delays := []time.Duration{150 * time.Millisecond, 10 * time.Millisecond, 80 * time.Millisecond}
	for i, c := range cands {
		res.outcomes[c.URL] = model.Outcome{Text: articleText}
		res.delays[c.URL] = delays[i]
	}

	mf := &mockFetcher{}
	mf.On("Fetch", mock.Anything, "q", model.SearchParams{}, DefaultMaxAttempts).Return(cands)

	got := New(mf, res).Run(context.Background(), Request{Query: "q", MinParsed: 3})

	assert.Equal(t, []string{cands[1].URL, cands[2].URL, cands[0].URL}, recordURLs(got.Success))
}

func TestRun_BatchesRunConcurrently(t *testing.T) {
	cands := candidates("q", 5)
	res := newStubResolver()
	for _, c := range cands {
		res.outcomes[c.URL] = model.Outcome{Text: articleText}
		res.delays[c.URL] = 100 * time.Millisecond
	}

	mf := &mockFetcher{}
	mf.On("Fetch", mock.Anything, "q", model.SearchParams{}, DefaultMaxAttempts).Return(cands)

	start := time.Now()
	got := New(mf, res).Run(context.Background(), Request{Query: "q", MinParsed: 5})
	elapsed := time.Since(start)

	assert.Len(t, got.Success, 5)
	assert.Less(t, elapsed, 400*time.Millisecond)
}

func TestRun_MaxAttemptsBound(t *testing.T) {
	// The fetcher ignores the cap; the orchestrator must still stop.
	cands := candidates("q", 20)
	res := newStubResolver()
	for _, c := range cands {
		res.outcomes[c.URL] = model.Failed("404")
	}

	mf := &mockFetcher{}
	mf.On("Fetch", mock.Anything, "q", model.SearchParams{}, 7).Return(cands)

	got := New(mf, res).Run(context.Background(), Request{Query: "q", MinParsed: 5, MaxAttempts: 7})

	assert.Equal(t, 7, got.Attempts)
	assert.Len(t, got.Failed, 7)
	assert.Empty(t, got.Success)
	assert.Len(t, res.called(), 7)
}

func TestRun_MaxResultsBoundedByMaxAttempts(t *testing.T) {
	mf := &mockFetcher{}
	mf.On("Fetch", mock.Anything, "q", model.SearchParams{}, 10).Return([]model.Candidate{}).Once()
	mf.On("Fetch", mock.Anything, "q", model.SearchParams{}, 4).Return([]model.Candidate{}).Once()

	o := New(mf, newStubResolver())
	o.Run(context.Background(), Request{Query: "q", MaxAttempts: 10, MaxResults: 50})
	o.Run(context.Background(), Request{Query: "q", MaxAttempts: 10, MaxResults: 4})

	mf.AssertExpectations(t)
}

func TestRun_ClassificationBoundary(t *testing.T) {
	cands := candidates("q", 3)
	res := newStubResolver()
	res.outcomes[cands[0].URL] = model.Outcome{Text: strings.Repeat("a", 49)}
	res.outcomes[cands[1].URL] = model.Outcome{Text: strings.Repeat("a", 50)}
	res.outcomes[cands[2].URL] = model.Outcome{Text: strings.Repeat("a", 80), Error: "partial read"}

	mf := &mockFetcher{}
	mf.On("Fetch", mock.Anything, "q", model.SearchParams{}, DefaultMaxAttempts).Return(cands)

	got := New(mf, res).Run(context.Background(), Request{Query: "q", MinParsed: 5})

	assert.Equal(t, []string{cands[1].URL}, recordURLs(got.Success))
	assert.ElementsMatch(t, []string{cands[0].URL, cands[2].URL}, recordURLs(got.Failed))
	assert.Equal(t, 3, got.Attempts)
}

func TestRun_ResolverPanicBecomesFailure(t *testing.T) {
	cands := candidates("q", 2)
	res := newStubResolver()
	res.panics[cands[0].URL] = true
	res.outcomes[cands[1].URL] = model.Outcome{Text: articleText}

	mf := &mockFetcher{}
	mf.On("Fetch", mock.Anything, "q", model.SearchParams{}, DefaultMaxAttempts).Return(cands)

	got := New(mf, res).Run(context.Background(), Request{Query: "q", MinParsed: 5})

	require.Len(t, got.Failed, 1)
	assert.Equal(t, cands[0].URL, got.Failed[0].URL)
	assert.Contains(t, got.Failed[0].Error, "panic")
	assert.Len(t, got.Success, 1)
}

func TestRun_NoCandidates(t *testing.T) {
	mf := &mockFetcher{}
	mf.On("Fetch", mock.Anything, "q", model.SearchParams{}, DefaultMaxAttempts).Return([]model.Candidate{})
	ms := &mockStore{}

	got := New(mf, newStubResolver(), WithStore(ms)).Run(context.Background(), Request{Query: "q"})

	assert.Equal(t, "q", got.Query)
	assert.NotNil(t, got.Success)
	assert.NotNil(t, got.Failed)
	assert.Zero(t, got.Attempts)
	ms.AssertNotCalled(t, "LookupParsed", mock.Anything, mock.Anything)
	ms.AssertNotCalled(t, "InsertParsed", mock.Anything, mock.Anything)
}

func TestRun_LookupErrorTreatedAsMiss(t *testing.T) {
	cands := candidates("q", 2)
	res := newStubResolver()
	for _, c := range cands {
		res.outcomes[c.URL] = model.Outcome{Text: articleText}
	}

	mf := &mockFetcher{}
	mf.On("Fetch", mock.Anything, "q", model.SearchParams{}, DefaultMaxAttempts).Return(cands)
	ms := &mockStore{}
	ms.On("LookupParsed", mock.Anything, urlsOf(cands)).Return(nil, errors.New("connection refused"))
	ms.On("InsertParsed", mock.Anything, mock.Anything).Return(int64(2), nil)
	ms.On("InsertFailed", mock.Anything, mock.Anything).Return(int64(0), nil)

	got := New(mf, res, WithStore(ms)).Run(context.Background(), Request{Query: "q", MinParsed: 2})

	assert.Len(t, got.Success, 2)
	assert.Len(t, res.called(), 2)
	ms.AssertExpectations(t)
}

func TestRun_PersistsStampedResults(t *testing.T) {
	cands := candidates("vietnam economy", 3)
	res := newStubResolver()
	res.outcomes[cands[0].URL] = model.Outcome{Title: "extracted", Text: articleText}
	res.outcomes[cands[1].URL] = model.Failed("timeout")
	res.outcomes[cands[2].URL] = model.Outcome{Text: articleText}

	mf := &mockFetcher{}
	mf.On("Fetch", mock.Anything, "vietnam economy", model.SearchParams{}, DefaultMaxAttempts).Return(cands)

	var parsed, failed []model.ParsedRecord
	ms := &mockStore{}
	ms.On("LookupParsed", mock.Anything, mock.Anything).Return(map[string]model.ParsedRecord{}, nil)
	ms.On("InsertParsed", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		parsed = args.Get(1).([]model.ParsedRecord)
	}).Return(int64(2), nil)
	ms.On("InsertFailed", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		failed = args.Get(1).([]model.ParsedRecord)
	}).Return(int64(1), nil)

	got := New(mf, res, WithStore(ms), WithBatchSize(2)).Run(context.Background(), Request{Query: "vietnam economy", MinParsed: 5})

	require.Len(t, parsed, 2)
	require.Len(t, failed, 1)
	at := parsed[0].InsertedAt
	assert.False(t, at.IsZero())
	for _, r := range append(parsed, failed...) {
		assert.Equal(t, at, r.InsertedAt)
		assert.Equal(t, "vietnam economy", r.Query)
	}
	assert.Equal(t, "timeout", failed[0].Error)
	assert.Equal(t, got.Success, parsed)
	assert.Equal(t, 3, got.Attempts)
}

func TestRun_WithSQLiteStore_SecondRunServedFromCache(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	cands := candidates("q", 4)
	res := newStubResolver()
	for i, c := range cands {
		if i == 3 {
			res.outcomes[c.URL] = model.Failed("blocked (captcha)")
			continue
		}
		res.outcomes[c.URL] = model.Outcome{Title: fmt.Sprintf("article %d", i), Text: articleText}
	}

	mf := &mockFetcher{}
	mf.On("Fetch", mock.Anything, "q", model.SearchParams{}, DefaultMaxAttempts).Return(cands)

	o := New(mf, res, WithStore(st))
	first := o.Run(context.Background(), Request{Query: "q", MinParsed: 5})
	require.Len(t, first.Success, 3)
	require.Len(t, first.Failed, 1)
	require.Len(t, res.called(), 4)

	second := o.Run(context.Background(), Request{Query: "q", MinParsed: 3})
	assert.Len(t, res.called(), 4)
	require.Len(t, second.Success, 3)
	assert.Equal(t, 3, second.Attempts)
	assert.Equal(t, urlsOf(cands[:3]), recordURLs(second.Success))
	assert.Equal(t, "article 0", second.Success[0].Title)
	assert.False(t, second.Success[0].InsertedAt.IsZero())

	failedRows, err := st.ListArticles(context.Background(), store.ArticleFilter{Table: store.TableFailed})
	require.NoError(t, err)
	require.Len(t, failedRows, 1)
	assert.Equal(t, cands[3].URL, failedRows[0].URL)
}

func TestRun_CancelledContext(t *testing.T) {
	cands := candidates("q", 10)
	res := newStubResolver()
	for _, c := range cands {
		res.outcomes[c.URL] = model.Outcome{Text: articleText}
	}

	mf := &mockFetcher{}
	mf.On("Fetch", mock.Anything, "q", model.SearchParams{}, DefaultMaxAttempts).Return(cands)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := New(mf, res).Run(ctx, Request{Query: "q"})
	assert.Zero(t, got.Attempts)
	assert.Empty(t, res.called())
}
