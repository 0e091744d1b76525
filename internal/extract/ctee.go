package extract

import (
	"bytes"
	"context"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/search-parser/internal/model"
	"github.com/sells-group/search-parser/internal/resilience"
)

const cteeDomain = "ctee.com.tw"

// CteeExtractor handles Commercial Times (ctee.com.tw) article pages.
type CteeExtractor struct {
	client *http.Client
	retry  resilience.RetryConfig
	log    *zap.Logger
}

// NewCteeExtractor creates a CteeExtractor.
func NewCteeExtractor(opts Options, log *zap.Logger) *CteeExtractor {
	opts = opts.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &CteeExtractor{
		client: newHTTPClient(opts.Timeout),
		retry:  resilience.FixedBackoff(opts.RetryAttempts, opts.RetryBackoff),
		log:    log,
	}
}

func (c *CteeExtractor) Name() string { return "ctee" }

func (c *CteeExtractor) CanHandle(url string) bool {
	return strings.Contains(url, cteeDomain)
}

// Extract fetches the page with retries and reads the headline and the
// paragraphs inside <article>.
func (c *CteeExtractor) Extract(ctx context.Context, rawURL string) model.Outcome {
	target := EncodeURL(rawURL)
	c.log.Debug("ctee: extracting", zap.String("url", target))

	cfg := c.retry
	cfg.OnRetry = resilience.RetryLogger(c.log, c.Name(), target)

	out, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (model.Outcome, error) {
		body, err := fetchPage(ctx, c.client, target, nil)
		if err != nil {
			return model.Outcome{}, err
		}
		return parseCteeArticle(body)
	})
	if err != nil {
		c.log.Warn("ctee: extraction failed", zap.String("url", target), zap.Error(err))
		return model.Failed("ctee: " + err.Error())
	}
	return out
}

// parseCteeArticle extracts the title from h1.main-title and the body from
// the <p> elements of the <article> element.
func parseCteeArticle(body []byte) (model.Outcome, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return model.Outcome{}, eris.Wrap(err, "parse html")
	}

	article := doc.Find("article").First()
	if article.Length() == 0 {
		return model.Outcome{}, eris.New("missing <article> element")
	}

	var paras []string
	article.Find("p").Each(func(_ int, s *goquery.Selection) {
		paras = append(paras, s.Text())
	})

	return model.Outcome{
		Title: strings.TrimSpace(doc.Find("h1.main-title").First().Text()),
		Text:  joinParagraphs(paras),
	}, nil
}
