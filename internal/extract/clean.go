package extract

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// wikinewsDomain marks URLs whose text carries the archive boilerplate.
const wikinewsDomain = "wikinews.org"

// wikinewsTailMarkers open the boilerplate block appended to archived
// Chinese Wikinews articles.
var wikinewsTailMarkers = []string{
	"本篇报道已经存档，不能再作修訂。",
	"維基新聞上的文章帶有時效性",
	"请注意，新闻中列出的消息来源URL",
	"如果確實需要修正错误",
}

// CleanWikinewsTail drops everything from the first boilerplate marker on.
func CleanWikinewsTail(text string) string {
	for _, marker := range wikinewsTailMarkers {
		if i := strings.Index(text, marker); i >= 0 {
			text = strings.TrimSpace(text[:i])
		}
	}
	return text
}

// normalizeText applies NFC normalization and trims surrounding space so
// length checks count what a reader sees.
func normalizeText(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

// joinParagraphs joins non-empty trimmed paragraphs with newlines.
func joinParagraphs(paras []string) string {
	out := make([]string, 0, len(paras))
	for _, p := range paras {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n")
}
