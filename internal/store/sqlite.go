package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/search-parser/internal/model"
)

// sqliteLookupChunk bounds the number of bind variables per lookup query.
const sqliteLookupChunk = 500

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS parsed_articles (
	id          TEXT PRIMARY KEY,
	url         TEXT NOT NULL UNIQUE,
	query       TEXT NOT NULL DEFAULT '',
	title       TEXT NOT NULL DEFAULT '',
	snippet     TEXT NOT NULL DEFAULT '',
	engine      TEXT NOT NULL DEFAULT '',
	published   DATETIME,
	score       REAL NOT NULL DEFAULT 0,
	text        TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	inserted_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS failed_articles (
	id          TEXT PRIMARY KEY,
	url         TEXT NOT NULL UNIQUE,
	query       TEXT NOT NULL DEFAULT '',
	title       TEXT NOT NULL DEFAULT '',
	snippet     TEXT NOT NULL DEFAULT '',
	engine      TEXT NOT NULL DEFAULT '',
	published   DATETIME,
	score       REAL NOT NULL DEFAULT 0,
	text        TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	inserted_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_parsed_articles_query ON parsed_articles(query);
CREATE INDEX IF NOT EXISTS idx_parsed_articles_inserted_at ON parsed_articles(inserted_at);
CREATE INDEX IF NOT EXISTS idx_failed_articles_query ON failed_articles(query);
CREATE INDEX IF NOT EXISTS idx_failed_articles_inserted_at ON failed_articles(inserted_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LookupParsed(ctx context.Context, urls []string) (map[string]model.ParsedRecord, error) {
	out := make(map[string]model.ParsedRecord)
	for start := 0; start < len(urls); start += sqliteLookupChunk {
		chunk := urls[start:min(start+sqliteLookupChunk, len(urls))]

		args := make([]any, len(chunk))
		for i, u := range chunk {
			args[i] = u
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")

		rows, err := s.db.QueryContext(ctx,
			`SELECT `+selectColumns+` FROM parsed_articles WHERE url IN (`+placeholders+`)`,
			args...,
		)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: lookup parsed")
		}
		for rows.Next() {
			r, err := scanRecord(rows)
			if err != nil {
				rows.Close() //nolint:errcheck
				return nil, eris.Wrap(err, "sqlite: scan parsed")
			}
			out[r.URL] = r
		}
		err = rows.Err()
		rows.Close() //nolint:errcheck
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: lookup parsed iterate")
		}
	}
	return out, nil
}

func (s *SQLiteStore) InsertParsed(ctx context.Context, recs []model.ParsedRecord) (int64, error) {
	return s.insert(ctx, TableParsed, recs)
}

func (s *SQLiteStore) InsertFailed(ctx context.Context, recs []model.ParsedRecord) (int64, error) {
	return s.insert(ctx, TableFailed, recs)
}

// insert writes all records in one transaction; rows whose url already
// exists are skipped by INSERT OR IGNORE.
func (s *SQLiteStore) insert(ctx context.Context, table string, recs []model.ParsedRecord) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	rows, err := recordRows(recs)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(articleColumns)), ",")
	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO `+table+` (`+strings.Join(articleColumns, ", ")+`) VALUES (`+placeholders+`)`,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: prepare insert %s", table)
	}
	defer stmt.Close() //nolint:errcheck

	var inserted int64
	for _, row := range rows {
		res, err := stmt.ExecContext(ctx, row...)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert %s", table)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "rows affected")
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit tx")
	}
	return inserted, nil
}

func (s *SQLiteStore) ListArticles(ctx context.Context, filter ArticleFilter) ([]model.ParsedRecord, error) {
	table, err := ResolveTable(filter.Table)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + selectColumns + ` FROM ` + table + ` WHERE 1=1`
	var args []any

	if filter.Query != "" {
		query += ` AND query LIKE '%' || ? || '%'`
		args = append(args, filter.Query)
	}
	query += ` ORDER BY inserted_at DESC, url`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list %s", table)
	}
	defer rows.Close() //nolint:errcheck

	out := []model.ParsedRecord{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan %s", table)
		}
		out = append(out, r)
	}
	return out, eris.Wrapf(rows.Err(), "sqlite: list %s iterate", table)
}
