package search

import (
	"context"
	"fmt"

	"annotator/internal/domain"
)

// ArticleStore is the part of the Postgres store search falls back to.
type ArticleStore interface {
	SearchArticles(ctx context.Context, q domain.ArticleQuery) ([]domain.Article, error)
	ListAllArticles(ctx context.Context) ([]domain.Article, error)
}

// PgSearch implements Searcher with ILIKE matching in PostgreSQL.
type PgSearch struct {
	store ArticleStore
}

func NewPgSearch(store ArticleStore) *PgSearch {
	return &PgSearch{store: store}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgSearch) Healthy() bool {
	return true
}

func (p *PgSearch) Search(ctx context.Context, q domain.ArticleQuery) ([]Result, int, error) {
	articles, err := p.store.SearchArticles(ctx, q)
	if err != nil {
		return nil, 0, fmt.Errorf("pg search: %w", err)
	}
	results := make([]Result, 0, len(articles))
	for _, a := range articles {
		results = append(results, resultOf(a))
	}
	return results, len(results), nil
}

// LoadAllRecords returns every article for full reindexing.
func (p *PgSearch) LoadAllRecords(ctx context.Context) ([]ArticleRecord, error) {
	articles, err := p.store.ListAllArticles(ctx)
	if err != nil {
		return nil, fmt.Errorf("load articles: %w", err)
	}
	records := make([]ArticleRecord, 0, len(articles))
	for _, a := range articles {
		records = append(records, RecordOf(a))
	}
	return records, nil
}
