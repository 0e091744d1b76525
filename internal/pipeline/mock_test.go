package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/search-parser/internal/model"
	"github.com/sells-group/search-parser/internal/store"
)

// --- Fetcher Mock ---

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Fetch(ctx context.Context, query string, params model.SearchParams, maxResults int) []model.Candidate {
	args := m.Called(ctx, query, params, maxResults)
	return args.Get(0).([]model.Candidate)
}

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) LookupParsed(ctx context.Context, urls []string) (map[string]model.ParsedRecord, error) {
	args := m.Called(ctx, urls)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]model.ParsedRecord), args.Error(1)
}

func (m *mockStore) InsertParsed(ctx context.Context, recs []model.ParsedRecord) (int64, error) {
	args := m.Called(ctx, recs)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) InsertFailed(ctx context.Context, recs []model.ParsedRecord) (int64, error) {
	args := m.Called(ctx, recs)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) ListArticles(ctx context.Context, filter store.ArticleFilter) ([]model.ParsedRecord, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ParsedRecord), args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) Close() error {
	return m.Called().Error(0)
}

// --- Resolver stub ---

// stubResolver returns a fixed outcome per URL after an optional delay and
// records every URL it was asked to resolve.
type stubResolver struct {
	mu       sync.Mutex
	outcomes map[string]model.Outcome
	delays   map[string]time.Duration
	panics   map[string]bool
	calls    []string
}

func newStubResolver() *stubResolver {
	return &stubResolver{
		outcomes: make(map[string]model.Outcome),
		delays:   make(map[string]time.Duration),
		panics:   make(map[string]bool),
	}
}

func (s *stubResolver) Resolve(ctx context.Context, url string) model.Outcome {
	s.mu.Lock()
	s.calls = append(s.calls, url)
	out, ok := s.outcomes[url]
	delay := s.delays[url]
	shouldPanic := s.panics[url]
	s.mu.Unlock()

	if shouldPanic {
		panic("boom")
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return model.Failed(ctx.Err().Error())
		}
	}
	if !ok {
		return model.Failed("no outcome configured")
	}
	return out
}

func (s *stubResolver) called() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}
