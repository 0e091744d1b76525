package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/search-parser/internal/model"
	"github.com/sells-group/search-parser/internal/store"
)

// PersistResult reports what a Persist call wrote.
type PersistResult struct {
	Parsed int64    `json:"parsed"`
	Failed int64    `json:"failed"`
	Errors []string `json:"errors,omitempty"`
}

// Sink writes run results to the store.
type Sink struct {
	store store.Store
	log   *zap.Logger
	now   func() time.Time
}

// NewSink creates a Sink.
func NewSink(st store.Store, log *zap.Logger) *Sink {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sink{store: st, log: log, now: time.Now}
}

// Persist stamps every record not yet stored (zero InsertedAt) with query
// and one shared timestamp, in place, then inserts both lists. Rows whose
// URL already exists are skipped. Errors are collected, logged and
// returned in the result; they never abort the caller.
func (s *Sink) Persist(ctx context.Context, query string, parsed, failed []model.ParsedRecord) PersistResult {
	var res PersistResult
	if len(parsed) == 0 && len(failed) == 0 {
		return res
	}

	at := s.now().UTC()
	stamp(parsed, query, at)
	stamp(failed, query, at)

	n, err := s.store.InsertParsed(ctx, parsed)
	if err != nil {
		s.log.Error("sink: insert parsed failed", zap.String("query", query), zap.Error(err))
		res.Errors = append(res.Errors, err.Error())
	}
	res.Parsed = n

	n, err = s.store.InsertFailed(ctx, failed)
	if err != nil {
		s.log.Error("sink: insert failed articles failed", zap.String("query", query), zap.Error(err))
		res.Errors = append(res.Errors, err.Error())
	}
	res.Failed = n

	s.log.Info("sink: persisted",
		zap.String("query", query),
		zap.Int64("parsed", res.Parsed),
		zap.Int64("failed", res.Failed),
		zap.Int("errors", len(res.Errors)),
	)
	return res
}

func stamp(recs []model.ParsedRecord, query string, at time.Time) {
	for i := range recs {
		if !recs[i].InsertedAt.IsZero() {
			continue
		}
		recs[i].Query = query
		recs[i].InsertedAt = at
	}
}
