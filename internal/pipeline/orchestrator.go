// Package pipeline runs the search-then-parse loop: pull candidates, serve
// what the cache already has, extract the rest in bounded batches and stop
// as soon as enough articles parse.
package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/search-parser/internal/model"
	"github.com/sells-group/search-parser/internal/source"
	"github.com/sells-group/search-parser/internal/store"
)

// Defaults applied to zero-valued Request fields and orchestrator options.
const (
	DefaultMinParsed   = 5
	DefaultMaxAttempts = 30
	DefaultBatchSize   = 5
)

// Resolver turns a URL into an extraction outcome. *extract.Registry
// satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, url string) model.Outcome
}

// Request describes one search-and-parse invocation.
type Request struct {
	Query       string             `json:"query"`
	MinParsed   int                `json:"min_parsed"`
	MaxAttempts int                `json:"max_attempts"`
	MaxResults  int                `json:"max_results"`
	Params      model.SearchParams `json:"params"`
}

// Orchestrator coordinates the source, cache, extractors and sink.
type Orchestrator struct {
	source    source.Fetcher
	resolver  Resolver
	store     store.Store
	sink      *Sink
	batchSize int
	log       *zap.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStore enables the dedup cache and persistence of results.
func WithStore(st store.Store) Option {
	return func(o *Orchestrator) {
		o.store = st
	}
}

// WithBatchSize sets the batch size, which is also the worker pool width.
func WithBatchSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// New creates an Orchestrator. Without WithStore every candidate is
// extracted and nothing is persisted.
func New(src source.Fetcher, res Resolver, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		source:    src,
		resolver:  res,
		batchSize: DefaultBatchSize,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.store != nil {
		o.sink = NewSink(o.store, o.log)
	}
	return o
}

// Run executes one search-and-parse invocation. It never fails: backend,
// extraction and persistence problems surface as empty or failed entries.
// len(Success) never exceeds MinParsed and Attempts never exceeds
// MaxAttempts.
func (o *Orchestrator) Run(ctx context.Context, req Request) *model.RunResult {
	req = withDefaults(req)
	log := o.log.With(zap.String("query", req.Query))
	result := model.NewRunResult(req.Query)

	maxResults := req.MaxAttempts
	if req.MaxResults > 0 && req.MaxResults < maxResults {
		maxResults = req.MaxResults
	}

	candidates := o.source.Fetch(ctx, req.Query, req.Params, maxResults)
	log.Info("pipeline: starting",
		zap.Int("candidates", len(candidates)),
		zap.Int("min_parsed", req.MinParsed),
		zap.Int("max_attempts", req.MaxAttempts),
	)

	for start := 0; start < len(candidates); start += o.batchSize {
		if len(result.Success) >= req.MinParsed || result.Attempts >= req.MaxAttempts {
			break
		}
		if ctx.Err() != nil {
			log.Warn("pipeline: context done, stopping", zap.Error(ctx.Err()))
			break
		}

		batch := candidates[start:min(start+o.batchSize, len(candidates))]
		misses := o.splitCached(ctx, log, batch, req.MinParsed, result)
		if len(result.Success) >= req.MinParsed {
			break
		}

		need := min(req.MinParsed-len(result.Success), req.MaxAttempts-result.Attempts)
		if len(misses) > need {
			misses = misses[:need]
		}
		o.extractBatch(ctx, misses, req.MinParsed, result)

		log.Debug("pipeline: batch done",
			zap.Int("batch_start", start),
			zap.Int("success", len(result.Success)),
			zap.Int("failed", len(result.Failed)),
			zap.Int("attempts", result.Attempts),
		)
	}

	if o.sink != nil {
		o.sink.Persist(ctx, req.Query, result.Success, result.Failed)
	}

	log.Info("pipeline: complete",
		zap.Int("success", len(result.Success)),
		zap.Int("failed", len(result.Failed)),
		zap.Int("attempts", result.Attempts),
	)
	return result
}

// splitCached appends cached records for the batch to result in candidate
// order and returns the candidates with no cached record. Each hit counts
// as an attempt. It stops early, returning nil, once minParsed is reached.
// Lookup errors are logged and treated as no hits.
func (o *Orchestrator) splitCached(ctx context.Context, log *zap.Logger, batch []model.Candidate, minParsed int, result *model.RunResult) []model.Candidate {
	if o.store == nil {
		return batch
	}

	urls := make([]string, len(batch))
	for i, c := range batch {
		urls[i] = c.URL
	}

	hits, err := o.store.LookupParsed(ctx, urls)
	if err != nil {
		log.Warn("pipeline: cache lookup failed", zap.Error(err))
		return batch
	}

	misses := make([]model.Candidate, 0, len(batch))
	for _, c := range batch {
		rec, ok := hits[c.URL]
		if !ok {
			misses = append(misses, c)
			continue
		}
		result.Success = append(result.Success, rec)
		result.Attempts++
		log.Debug("pipeline: cache hit", zap.String("url", c.URL))
		if len(result.Success) >= minParsed {
			return nil
		}
	}
	return misses
}

type extraction struct {
	candidate model.Candidate
	outcome   model.Outcome
}

// extractBatch resolves cands concurrently and records outcomes in
// completion order. Once minParsed is reached the batch context is
// cancelled and the remaining outcomes are dropped.
func (o *Orchestrator) extractBatch(ctx context.Context, cands []model.Candidate, minParsed int, result *model.RunResult) {
	if len(cands) == 0 {
		return
	}

	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered so workers never block on a consumer that has stopped reading.
	done := make(chan extraction, len(cands))

	g, gCtx := errgroup.WithContext(batchCtx)
	g.SetLimit(o.batchSize)

	go func() {
		for _, c := range cands {
			if gCtx.Err() != nil {
				break
			}
			g.Go(func() error {
				done <- extraction{candidate: c, outcome: o.resolve(gCtx, c.URL)}
				return nil
			})
		}
		_ = g.Wait()
		close(done)
	}()

	for ex := range done {
		result.Attempts++
		rec := model.Merge(ex.candidate, ex.outcome)
		if ex.outcome.Succeeded() {
			result.Success = append(result.Success, rec)
		} else {
			result.Failed = append(result.Failed, rec)
		}
		if len(result.Success) >= minParsed {
			cancel()
			return
		}
	}
}

// resolve shields the batch from a panicking Resolver.
func (o *Orchestrator) resolve(ctx context.Context, url string) (out model.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("pipeline: resolver panicked", zap.String("url", url), zap.Any("panic", r))
			out = model.Failed(fmt.Sprintf("panic: %v", r))
		}
	}()
	return o.resolver.Resolve(ctx, url)
}

func withDefaults(req Request) Request {
	if req.MinParsed <= 0 {
		req.MinParsed = DefaultMinParsed
	}
	if req.MaxAttempts <= 0 {
		req.MaxAttempts = DefaultMaxAttempts
	}
	return req
}
