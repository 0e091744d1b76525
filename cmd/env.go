package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/search-parser/internal/config"
	"github.com/sells-group/search-parser/internal/extract"
	"github.com/sells-group/search-parser/internal/pipeline"
	"github.com/sells-group/search-parser/internal/source"
	"github.com/sells-group/search-parser/internal/store"
	"github.com/sells-group/search-parser/pkg/searxng"
)

// searchEnv holds the store and orchestrator needed by the search and
// serve commands.
type searchEnv struct {
	Store        store.Store
	Orchestrator *pipeline.Orchestrator
}

// Close releases resources held by the environment.
func (e *searchEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initSearch validates config for mode, opens and migrates the store and
// builds the orchestrator. Callers should defer env.Close().
func initSearch(ctx context.Context, mode string) (*searchEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	client, err := searxng.NewClient(cfg.SearXNG.BaseURL, searxng.WithTimeout(cfg.SearXNG.Timeout()))
	if err != nil {
		return nil, eris.Wrap(err, "init searxng client")
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	log := zap.L()
	src := source.New(client,
		source.WithDisallowedDomain(cfg.SearXNG.DisallowedDomain),
		source.WithLogger(log),
	)
	registry := extract.DefaultRegistry(extract.Options{
		Timeout:       time.Duration(cfg.Extract.TimeoutSecs) * time.Second,
		RetryAttempts: cfg.Extract.RetryAttempts,
		RetryBackoff:  time.Duration(cfg.Extract.RetryBackoffMs) * time.Millisecond,
		MSNLocale:     cfg.Extract.MSNLocale,
	}, log)

	log.Debug("search environment ready",
		zap.String("searxng", cfg.SearXNG.BaseURL),
		zap.String("store", cfg.Store.Driver),
		zap.Strings("extractors", registry.Names()),
	)

	return &searchEnv{
		Store: st,
		Orchestrator: pipeline.New(src, registry,
			pipeline.WithStore(st),
			pipeline.WithBatchSize(cfg.Parse.BatchSize),
			pipeline.WithLogger(log),
		),
	}, nil
}

// initStore opens the store selected by store.driver.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "search-parser.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// withParseDefaults fills zero MinParsed and MaxAttempts from config.
func withParseDefaults(req pipeline.Request, p config.ParseConfig) pipeline.Request {
	if req.MinParsed <= 0 {
		req.MinParsed = p.MinParsed
	}
	if req.MaxAttempts <= 0 {
		req.MaxAttempts = p.MaxAttempts
	}
	return req
}
