// Package extract resolves article URLs to title and body text using an
// ordered list of site-specific extractors with a universal fallback.
package extract

import (
	"context"
	"time"

	"github.com/sells-group/search-parser/internal/model"
)

// Extractor fetches a single URL and extracts its article content.
// Extract must not return Go errors or panic for expected failures: every
// problem is reported through Outcome.Error.
type Extractor interface {
	Name() string
	CanHandle(url string) bool
	Extract(ctx context.Context, url string) model.Outcome
}

// Options configures the default extractors.
type Options struct {
	// Timeout bounds every individual network call. Default: 10s.
	Timeout time.Duration
	// RetryAttempts is the attempt budget for site-specific extractors.
	// Default: 3.
	RetryAttempts int
	// RetryBackoff is the fixed delay between attempts. Default: 2s.
	RetryBackoff time.Duration
	// MSNLocale selects the MSN content API locale. Default: zh-tw.
	MSNLocale string
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = 3
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.MSNLocale == "" {
		o.MSNLocale = "zh-tw"
	}
	return o
}
