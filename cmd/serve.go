package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/search-parser/internal/config"
	"github.com/sells-group/search-parser/internal/model"
	"github.com/sells-group/search-parser/internal/pipeline"
	"github.com/sells-group/search-parser/internal/store"
)

var servePort int

// searchRunner runs one search-and-parse request. *pipeline.Orchestrator
// satisfies it.
type searchRunner interface {
	Run(ctx context.Context, req pipeline.Request) *model.RunResult
}

// articleLister lists stored articles. store.Store satisfies it.
type articleLister interface {
	ListArticles(ctx context.Context, filter store.ArticleFilter) ([]model.ParsedRecord, error)
}

// searchBody is the POST /search payload.
type searchBody struct {
	Query       string `json:"query"`
	MinParsed   int    `json:"min_parsed"`
	MaxAttempts int    `json:"max_attempts"`
	MaxResults  int    `json:"max_results"`
	Language    string `json:"language"`
	Categories  string `json:"categories"`
	TimeRange   string `json:"time_range"`
	Engines     string `json:"engines"`
	SafeSearch  int    `json:"safesearch"`
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP search API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initSearch(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		limiter := rate.NewLimiter(rate.Limit(cfg.Server.RequestsPerSec), max(cfg.Server.Burst, 1))
		router := buildRouter(env.Orchestrator, env.Store, limiter, cfg.Parse, zap.L())

		return startServer(ctx, router, resolvePort(servePort, cfg.Server.Port))
	},
}

// resolvePort prefers the flag value over the configured port.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

// buildRouter wires the API routes. A nil runner or lister makes the
// corresponding endpoint answer 503; a nil limiter disables rate limiting.
func buildRouter(runner searchRunner, lister articleLister, limiter *rate.Limiter, defaults config.ParseConfig, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.With(rateLimit(limiter)).Post("/search", func(w http.ResponseWriter, r *http.Request) {
		if runner == nil {
			writeError(w, http.StatusServiceUnavailable, "search is not configured")
			return
		}

		var body searchBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := body.validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		req := withParseDefaults(body.request(), defaults)
		writeJSON(w, http.StatusOK, runner.Run(r.Context(), req))
	})

	r.Get("/articles", func(w http.ResponseWriter, r *http.Request) {
		if lister == nil {
			writeError(w, http.StatusServiceUnavailable, "store is not configured")
			return
		}

		q := r.URL.Query()
		filter := store.ArticleFilter{
			Table: q.Get("table"),
			Query: q.Get("query"),
		}
		if _, err := store.ResolveTable(filter.Table); err != nil {
			writeError(w, http.StatusBadRequest, "table must be parsed or failed")
			return
		}
		var err error
		if filter.Limit, err = intParam(q.Get("limit")); err != nil {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		if filter.Offset, err = intParam(q.Get("offset")); err != nil {
			writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}

		recs, err := lister.ListArticles(r.Context(), filter)
		if err != nil {
			log.Error("list articles failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "list articles failed")
			return
		}
		writeJSON(w, http.StatusOK, recs)
	})

	return r
}

func (b searchBody) validate() error {
	if strings.TrimSpace(b.Query) == "" {
		return errors.New("query is required")
	}
	if b.MinParsed < 0 || b.MaxAttempts < 0 || b.MaxResults < 0 {
		return errors.New("min_parsed, max_attempts and max_results must be >= 0")
	}
	if b.SafeSearch < 0 || b.SafeSearch > 2 {
		return errors.New("safesearch must be 0, 1 or 2")
	}
	return nil
}

func (b searchBody) request() pipeline.Request {
	categories := b.Categories
	if categories == "" {
		categories = model.DefaultCategories
	}
	return pipeline.Request{
		Query:       strings.TrimSpace(b.Query),
		MinParsed:   b.MinParsed,
		MaxAttempts: b.MaxAttempts,
		MaxResults:  b.MaxResults,
		Params: model.SearchParams{
			Language:   b.Language,
			Categories: categories,
			TimeRange:  b.TimeRange,
			Engines:    b.Engines,
			SafeSearch: b.SafeSearch,
		},
	}
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid integer %q", s)
	}
	return n, nil
}

// rateLimit rejects requests with 429 once limiter is exhausted.
func rateLimit(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter != nil && !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger logs one line per request.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// startServer serves handler on port until ctx is done, then shuts down
// gracefully.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server listen")
	}
	return nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
