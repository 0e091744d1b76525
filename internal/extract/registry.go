package extract

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/search-parser/internal/model"
)

// Registry tries extractors in priority order and delegates to the first
// one that can handle the URL. The list is fixed at construction and always
// ends with an extractor that accepts every URL.
type Registry struct {
	extractors []Extractor
	log        *zap.Logger
}

// NewRegistry creates a Registry over the given extractors. When the last
// extractor is not a *GenericExtractor, a default one is appended so every
// URL resolves to some extractor.
func NewRegistry(log *zap.Logger, extractors ...Extractor) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	list := make([]Extractor, len(extractors), len(extractors)+1)
	copy(list, extractors)
	if len(list) == 0 {
		list = append(list, NewGenericExtractor(Options{}, log))
	} else if _, ok := list[len(list)-1].(*GenericExtractor); !ok {
		list = append(list, NewGenericExtractor(Options{}, log))
	}
	return &Registry{extractors: list, log: log}
}

// DefaultRegistry wires the site extractors followed by the fallback.
func DefaultRegistry(opts Options, log *zap.Logger) *Registry {
	return NewRegistry(log,
		NewCteeExtractor(opts, log),
		NewMSNExtractor(opts, log),
		NewGenericExtractor(opts, log),
	)
}

// Names returns extractor names in resolution order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.extractors))
	for i, e := range r.extractors {
		names[i] = e.Name()
	}
	return names
}

// Select returns the extractor that will handle url.
func (r *Registry) Select(url string) Extractor {
	for _, e := range r.extractors {
		if e.CanHandle(url) {
			return e
		}
	}
	// Unreachable with a fallback in place; keeps the method total.
	return r.extractors[len(r.extractors)-1]
}

// Resolve extracts url with the selected extractor. A panicking extractor
// is reported as a failed outcome. Successful text is normalized and, for
// Wikinews pages, stripped of the archive boilerplate.
func (r *Registry) Resolve(ctx context.Context, url string) (out model.Outcome) {
	e := r.Select(url)

	defer func() {
		if p := recover(); p != nil {
			r.log.Error("extract: extractor panicked",
				zap.String("extractor", e.Name()),
				zap.String("url", url),
				zap.Any("panic", p),
			)
			out = model.Failed(fmt.Sprintf("%s: panic: %v", e.Name(), p))
		}
	}()

	out = e.Extract(ctx, url)
	if out.Error != "" {
		return model.Failed(out.Error)
	}

	out.Title = strings.TrimSpace(out.Title)
	out.Text = normalizeText(out.Text)
	if strings.Contains(url, wikinewsDomain) {
		out.Text = CleanWikinewsTail(out.Text)
	}

	r.log.Debug("extract: resolved",
		zap.String("extractor", e.Name()),
		zap.String("url", url),
		zap.Int("text_len", len([]rune(out.Text))),
	)
	return out
}
