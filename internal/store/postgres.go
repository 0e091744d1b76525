package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/search-parser/internal/db"
	"github.com/sells-group/search-parser/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const lookupParsedSQL = `SELECT ` + selectColumns + ` FROM parsed_articles WHERE url = ANY($1)`

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"lookup_parsed": lookupParsedSQL,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare the cache lookup on each new connection. It runs once per
	// search, right before dispatch.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS parsed_articles (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	url         TEXT NOT NULL UNIQUE,
	query       TEXT NOT NULL DEFAULT '',
	title       TEXT NOT NULL DEFAULT '',
	snippet     TEXT NOT NULL DEFAULT '',
	engine      TEXT NOT NULL DEFAULT '',
	published   TIMESTAMPTZ,
	score       DOUBLE PRECISION NOT NULL DEFAULT 0,
	text        TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	inserted_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS failed_articles (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	url         TEXT NOT NULL UNIQUE,
	query       TEXT NOT NULL DEFAULT '',
	title       TEXT NOT NULL DEFAULT '',
	snippet     TEXT NOT NULL DEFAULT '',
	engine      TEXT NOT NULL DEFAULT '',
	published   TIMESTAMPTZ,
	score       DOUBLE PRECISION NOT NULL DEFAULT 0,
	text        TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	inserted_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_parsed_articles_query ON parsed_articles(query);
CREATE INDEX IF NOT EXISTS idx_parsed_articles_inserted_at ON parsed_articles(inserted_at DESC);
CREATE INDEX IF NOT EXISTS idx_failed_articles_query ON failed_articles(query);
CREATE INDEX IF NOT EXISTS idx_failed_articles_inserted_at ON failed_articles(inserted_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) LookupParsed(ctx context.Context, urls []string) (map[string]model.ParsedRecord, error) {
	out := make(map[string]model.ParsedRecord)
	if len(urls) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx, lookupParsedSQL, urls)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: lookup parsed")
	}
	defer rows.Close()

	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan parsed")
		}
		out[r.URL] = r
	}
	return out, eris.Wrap(rows.Err(), "postgres: lookup parsed rows")
}

func (s *PostgresStore) InsertParsed(ctx context.Context, recs []model.ParsedRecord) (int64, error) {
	return s.insert(ctx, TableParsed, recs)
}

func (s *PostgresStore) InsertFailed(ctx context.Context, recs []model.ParsedRecord) (int64, error) {
	return s.insert(ctx, TableFailed, recs)
}

func (s *PostgresStore) insert(ctx context.Context, table string, recs []model.ParsedRecord) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	rows, err := recordRows(recs)
	if err != nil {
		return 0, err
	}
	n, err := db.BulkInsertIgnore(ctx, s.pool, db.InsertConfig{
		Table:        table,
		Columns:      articleColumns,
		ConflictKeys: []string{"url"},
	}, rows)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: insert %s", table)
	}
	return n, nil
}

func (s *PostgresStore) ListArticles(ctx context.Context, filter ArticleFilter) ([]model.ParsedRecord, error) {
	table, err := ResolveTable(filter.Table)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + selectColumns + ` FROM ` + pgx.Identifier{table}.Sanitize() + ` WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Query != "" {
		query += fmt.Sprintf(` AND query LIKE '%%' || $%d || '%%'`, argIdx)
		args = append(args, filter.Query)
		argIdx++
	}
	query += ` ORDER BY inserted_at DESC, url`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list %s", table)
	}
	defer rows.Close()

	out := []model.ParsedRecord{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: scan %s", table)
		}
		out = append(out, r)
	}
	return out, eris.Wrapf(rows.Err(), "postgres: list %s rows", table)
}
