package model

import (
	"strings"
	"time"
	"unicode/utf8"
)

// MinTextLength is the minimum number of characters an extracted article
// body must have to count as a successful parse.
const MinTextLength = 50

// Candidate is a normalized search hit produced by the result source.
type Candidate struct {
	URL       string     `json:"url"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet"`
	Engine    string     `json:"engine"`
	Published *time.Time `json:"published"`
	Score     float64    `json:"score"`
	Query     string     `json:"query,omitempty"`
}

// Outcome is what an extractor returns for a single URL. Error is empty
// unless the extraction failed, in which case Title and Text are empty.
type Outcome struct {
	Title string `json:"title"`
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// Failed builds an Outcome carrying only an error message.
func Failed(msg string) Outcome {
	return Outcome{Error: msg}
}

// Succeeded reports whether the outcome qualifies as a parsed article:
// no error and at least MinTextLength characters of non-blank text.
func (o Outcome) Succeeded() bool {
	if o.Error != "" {
		return false
	}
	text := strings.TrimSpace(o.Text)
	if text == "" {
		return false
	}
	return utf8.RuneCountInString(text) >= MinTextLength
}

// ParsedRecord is a candidate merged with its extraction outcome. It is the
// row shape of both the parsed and the failed article tables.
type ParsedRecord struct {
	URL        string     `json:"url"`
	Query      string     `json:"query"`
	Title      string     `json:"title"`
	Snippet    string     `json:"snippet"`
	Engine     string     `json:"engine"`
	Published  *time.Time `json:"published"`
	Score      float64    `json:"score"`
	Text       string     `json:"text"`
	Error      string     `json:"error,omitempty"`
	InsertedAt time.Time  `json:"inserted_at,omitzero"`
}

// Merge combines a candidate with an outcome. Fields set by the outcome take
// precedence; the candidate title is kept when the extractor found none.
func Merge(c Candidate, o Outcome) ParsedRecord {
	title := c.Title
	if o.Title != "" {
		title = o.Title
	}
	return ParsedRecord{
		URL:       c.URL,
		Query:     c.Query,
		Title:     title,
		Snippet:   c.Snippet,
		Engine:    c.Engine,
		Published: c.Published,
		Score:     c.Score,
		Text:      o.Text,
		Error:     o.Error,
	}
}

// RunResult is the outcome of one search-and-parse invocation.
type RunResult struct {
	Query    string         `json:"query" yaml:"query"`
	Success  []ParsedRecord `json:"success" yaml:"success"`
	Failed   []ParsedRecord `json:"failed" yaml:"failed"`
	Attempts int            `json:"attempts" yaml:"attempts"`
}

// NewRunResult returns a RunResult whose lists are empty rather than nil so
// they always serialize as arrays.
func NewRunResult(query string) *RunResult {
	return &RunResult{
		Query:   query,
		Success: []ParsedRecord{},
		Failed:  []ParsedRecord{},
	}
}

// SearchParams are forwarded verbatim to the search backend.
type SearchParams struct {
	Language   string `json:"language,omitempty"`
	Categories string `json:"categories,omitempty"`
	TimeRange  string `json:"time_range,omitempty"`
	Engines    string `json:"engines,omitempty"`
	SafeSearch int    `json:"safesearch"`
}

// DefaultCategories is used when SearchParams.Categories is empty.
const DefaultCategories = "general"
