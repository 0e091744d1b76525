package extract

import (
	"bytes"
	"context"
	"net/http"
	nurl "net/url"

	readability "github.com/go-shiori/go-readability"
	"go.uber.org/zap"

	"github.com/sells-group/search-parser/internal/model"
)

// GenericExtractor is the universal fallback. It runs Mozilla Readability
// over the fetched page and makes a single attempt.
type GenericExtractor struct {
	client *http.Client
	log    *zap.Logger
}

// NewGenericExtractor creates the fallback extractor.
func NewGenericExtractor(opts Options, log *zap.Logger) *GenericExtractor {
	opts = opts.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &GenericExtractor{client: newHTTPClient(opts.Timeout), log: log}
}

func (g *GenericExtractor) Name() string           { return "generic" }
func (g *GenericExtractor) CanHandle(_ string) bool { return true }

// Extract downloads the page and extracts title and plain text.
func (g *GenericExtractor) Extract(ctx context.Context, rawURL string) model.Outcome {
	target := EncodeURL(rawURL)
	g.log.Debug("generic: extracting", zap.String("url", target))

	pageURL, err := nurl.Parse(target)
	if err != nil {
		return model.Failed("generic: parse url: " + err.Error())
	}

	body, err := fetchPage(ctx, g.client, target, nil)
	if err != nil {
		g.log.Warn("generic: fetch failed", zap.String("url", target), zap.Error(err))
		return model.Failed("generic: " + err.Error())
	}

	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		g.log.Warn("generic: readability failed", zap.String("url", target), zap.Error(err))
		return model.Failed("generic: readability: " + err.Error())
	}

	return model.Outcome{
		Title: article.Title,
		Text:  article.TextContent,
	}
}
