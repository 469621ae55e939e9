// Package search finds articles by free text, source and publication date.
package search

import (
	"context"
	"time"

	"annotator/internal/domain"
)

// Result is a single article hit returned to the caller.
type Result struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Source        string     `json:"source"`
	Author        string     `json:"author,omitempty"`
	Link          string     `json:"link,omitempty"`
	PublishedDate *time.Time `json:"published_date,omitempty"`
	Snippet       string     `json:"snippet,omitempty"`
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute an article search.
type Searcher interface {
	Search(ctx context.Context, q domain.ArticleQuery) ([]Result, int, error)
	Healthy() bool
}

// ArticleRecord is the data we index for an article. Publication dates are
// also stored as unix seconds so they can be range-filtered.
type ArticleRecord struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Source        string `json:"source"`
	Author        string `json:"author"`
	Link          string `json:"link"`
	Topic         string `json:"topic"`
	Text          string `json:"text"`
	PublishedDate string `json:"published_date,omitempty"`
	PublishedTS   *int64 `json:"published_ts,omitempty"`
}

// RecordOf converts an article into its index record.
func RecordOf(a domain.Article) ArticleRecord {
	rec := ArticleRecord{
		ID:     a.ID,
		Title:  a.Title,
		Source: a.Source,
		Author: a.Author,
		Link:   a.Link,
		Topic:  a.Topic,
		Text:   a.Text,
	}
	if a.PublishedDate != nil {
		ts := a.PublishedDate.Unix()
		rec.PublishedTS = &ts
		rec.PublishedDate = a.PublishedDate.UTC().Format(time.RFC3339)
	}
	return rec
}

func resultOf(a domain.Article) Result {
	return Result{
		ID:            a.ID,
		Title:         a.Title,
		Source:        a.Source,
		Author:        a.Author,
		Link:          a.Link,
		PublishedDate: a.PublishedDate,
		Snippet:       snippet(a.Text, 240),
	}
}

func snippet(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "…"
}
