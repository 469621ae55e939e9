package search

import (
	"context"

	"github.com/rs/zerolog"

	"annotator/internal/domain"
)

// Service is the facade that tries Meilisearch first and falls back to
// Postgres.
type Service struct {
	meili *Meili
	pg    *PgSearch
	log   zerolog.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured.
func NewService(meili *Meili, pg *PgSearch, logger zerolog.Logger) *Service {
	return &Service{meili: meili, pg: pg, log: logger.With().Str("component", "search").Logger()}
}

func (s *Service) meiliReady() bool {
	return s.meili != nil && s.meili.Healthy()
}

// Search tries Meilisearch if healthy, otherwise falls back to Postgres.
func (s *Service) Search(ctx context.Context, q domain.ArticleQuery) Response {
	if s.meiliReady() {
		results, total, err := s.meili.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.log.Warn().Err(err).Msg("meilisearch error, falling back to postgres")
	}

	results, total, err := s.pg.Search(ctx, q)
	if err != nil {
		s.log.Error().Err(err).Msg("postgres search failed")
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexArticle indexes an article (fire-and-forget to Meilisearch).
func (s *Service) IndexArticle(a domain.Article) {
	if !s.meiliReady() {
		return
	}
	rec := RecordOf(a)
	go func() {
		if err := s.meili.IndexArticle(rec); err != nil {
			s.log.Warn().Err(err).Str("article_id", rec.ID).Msg("index article")
		}
	}()
}

// ReindexAllFromPG pushes every article from PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if !s.meiliReady() || s.pg == nil {
		return
	}
	records, err := s.pg.LoadAllRecords(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("reindex load failed")
		return
	}
	if err := s.meili.IndexArticles(records); err != nil {
		s.log.Error().Err(err).Int("articles", len(records)).Msg("reindex articles")
		return
	}
	s.log.Info().Int("articles", len(records)).Msg("reindexed articles")
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
