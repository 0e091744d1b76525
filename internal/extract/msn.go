package extract

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/search-parser/internal/model"
	"github.com/sells-group/search-parser/internal/resilience"
)

const (
	msnDomain     = "msn.com"
	msnDefaultAPI = "https://assets.msn.com/content/view/v2/Detail"
)

var msnArticleIDRe = regexp.MustCompile(`/ar-([A-Za-z0-9]+)`)

// msnArticle is the subset of the MSN content API response we use.
type msnArticle struct {
	Title             string `json:"title"`
	PublishedDateTime string `json:"publishedDateTime"`
	Body              string `json:"body"`
}

// MSNExtractor resolves msn.com article pages through MSN's JSON content
// API instead of scraping the client-rendered page.
type MSNExtractor struct {
	client  *http.Client
	retry   resilience.RetryConfig
	apiBase string
	locale  string
	policy  *bluemonday.Policy
	log     *zap.Logger
}

// NewMSNExtractor creates an MSNExtractor.
func NewMSNExtractor(opts Options, log *zap.Logger) *MSNExtractor {
	opts = opts.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &MSNExtractor{
		client:  newHTTPClient(opts.Timeout),
		retry:   resilience.FixedBackoff(opts.RetryAttempts, opts.RetryBackoff),
		apiBase: msnDefaultAPI,
		locale:  opts.MSNLocale,
		policy:  bluemonday.UGCPolicy(),
		log:     log,
	}
}

// WithAPIBase points the extractor at a different content API root.
func (m *MSNExtractor) WithAPIBase(base string) *MSNExtractor {
	m.apiBase = strings.TrimRight(base, "/")
	return m
}

func (m *MSNExtractor) Name() string { return "msn" }

func (m *MSNExtractor) CanHandle(url string) bool {
	return strings.Contains(url, msnDomain)
}

// Extract looks up the article id in the URL and fetches its JSON detail.
func (m *MSNExtractor) Extract(ctx context.Context, rawURL string) model.Outcome {
	target := EncodeURL(rawURL)
	m.log.Debug("msn: extracting", zap.String("url", target))

	match := msnArticleIDRe.FindStringSubmatch(target)
	if match == nil {
		return model.Failed("msn: no article id in url")
	}
	apiURL := m.apiBase + "/" + m.locale + "/" + match[1]

	cfg := m.retry
	cfg.OnRetry = resilience.RetryLogger(m.log, m.Name(), apiURL)

	out, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (model.Outcome, error) {
		body, err := fetchPage(ctx, m.client, apiURL, map[string]string{"Accept": "application/json"})
		if err != nil {
			return model.Outcome{}, err
		}
		return m.parseArticle(body)
	})
	if err != nil {
		m.log.Warn("msn: extraction failed", zap.String("url", target), zap.Error(err))
		return model.Failed("msn: " + err.Error())
	}
	return out
}

func (m *MSNExtractor) parseArticle(body []byte) (model.Outcome, error) {
	var art msnArticle
	if err := json.Unmarshal(body, &art); err != nil {
		return model.Outcome{}, eris.Wrap(err, "unmarshal article")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(m.policy.Sanitize(art.Body)))
	if err != nil {
		return model.Outcome{}, eris.Wrap(err, "parse body html")
	}

	var paras []string
	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		paras = append(paras, s.Text())
	})

	return model.Outcome{
		Title: strings.TrimSpace(art.Title),
		Text:  joinParagraphs(paras),
	}, nil
}
