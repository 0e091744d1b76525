// Package store persists parsed and failed articles and serves the dedup
// cache lookup.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/search-parser/internal/model"
)

// Table names.
const (
	TableParsed = "parsed_articles"
	TableFailed = "failed_articles"
)

// defaultListLimit applies when ArticleFilter.Limit is not positive.
const defaultListLimit = 100

// ArticleFilter specifies criteria for listing stored articles.
type ArticleFilter struct {
	Table  string `json:"table,omitempty"`  // "parsed" (default) or "failed"
	Query  string `json:"query,omitempty"`  // substring match on the originating query
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for search-and-parse runs.
type Store interface {
	// LookupParsed returns previously parsed articles keyed by URL. URLs
	// with no stored row are absent from the map.
	LookupParsed(ctx context.Context, urls []string) (map[string]model.ParsedRecord, error)

	// InsertParsed and InsertFailed add records, ignoring URLs already
	// present in the target table. They return the number of new rows.
	InsertParsed(ctx context.Context, recs []model.ParsedRecord) (int64, error)
	InsertFailed(ctx context.Context, recs []model.ParsedRecord) (int64, error)

	ListArticles(ctx context.Context, filter ArticleFilter) ([]model.ParsedRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// articleColumns is the insert column order shared by both tables.
var articleColumns = []string{
	"id", "url", "query", "title", "snippet", "engine",
	"published", "score", "text", "error", "inserted_at",
}

// selectColumns is the read column order; see scanRecord.
const selectColumns = `url, query, title, snippet, engine, published, score, text, error, inserted_at`

// ResolveTable maps a user-facing table name to the stored table.
func ResolveTable(name string) (string, error) {
	switch name {
	case "", "parsed", TableParsed:
		return TableParsed, nil
	case "failed", TableFailed:
		return TableFailed, nil
	default:
		return "", eris.Errorf("store: unknown table %q", name)
	}
}

// recordRows validates recs and converts them to insert rows in
// articleColumns order. A zero InsertedAt is stamped with now.
func recordRows(recs []model.ParsedRecord) ([][]any, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(recs))
	for i, r := range recs {
		if r.URL == "" {
			return nil, eris.Errorf("store: record %d has no url", i)
		}
		insertedAt := r.InsertedAt
		if insertedAt.IsZero() {
			insertedAt = now
		}
		rows = append(rows, []any{
			uuid.New().String(), r.URL, r.Query, r.Title, r.Snippet, r.Engine,
			r.Published, r.Score, r.Text, r.Error, insertedAt,
		})
	}
	return rows, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (model.ParsedRecord, error) {
	var r model.ParsedRecord
	err := row.Scan(
		&r.URL, &r.Query, &r.Title, &r.Snippet, &r.Engine,
		&r.Published, &r.Score, &r.Text, &r.Error, &r.InsertedAt,
	)
	return r, err
}
