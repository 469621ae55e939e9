package export

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"annotator/internal/domain"
	"annotator/internal/overlay"
)

// articleLoadLimit caps concurrent article reads for user exports.
const articleLoadLimit = 8

// DataStore defines the interface for data access
type DataStore interface {
	GetArticle(ctx context.Context, id string) (domain.Article, error)
	ListArticleAnnotations(ctx context.Context, articleID string) ([]domain.Annotation, error)
	ListUserAnnotations(ctx context.Context, user string) ([]domain.Annotation, error)
}

type PDFRenderer func(ctx context.Context, html, title string) (*Result, error)

type Options struct {
	Palette overlay.Palette
	Archive *Archive
	PDF     PDFRenderer
	Logger  zerolog.Logger
	Now     func() time.Time
}

// Service builds exports from stored articles and annotations.
type Service struct {
	store   DataStore
	palette overlay.Palette
	archive *Archive
	pdf     PDFRenderer
	log     zerolog.Logger
	now     func() time.Time
}

func NewService(store DataStore, opts Options) *Service {
	s := &Service{
		store:   store,
		palette: opts.Palette,
		archive: opts.Archive,
		pdf:     opts.PDF,
		log:     opts.Logger.With().Str("component", "export").Logger(),
		now:     opts.Now,
	}
	if s.palette.IsZero() {
		s.palette = overlay.DefaultPalette()
	}
	if s.pdf == nil {
		s.pdf = PDF
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// ArticleCSV exports the annotations of one article.
func (s *Service) ArticleCSV(ctx context.Context, articleID string) (*Result, error) {
	article, err := s.store.GetArticle(ctx, articleID)
	if err != nil {
		return nil, fmt.Errorf("get article: %w", err)
	}
	annotations, err := s.store.ListArticleAnnotations(ctx, articleID)
	if err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}
	name := article.Title
	if name == "" {
		name = "article"
	}
	return &Result{
		Data:     AnnotationsCSV(annotations, map[string]domain.Article{article.ID: article}),
		Filename: sanitizeFilename(name) + "_annotations.csv",
		MimeType: mimeCSV,
	}, nil
}

// UserCSV exports every annotation made by user. Articles are reloaded so
// the text column is filled; deleted articles fall back to the metadata
// snapshot stored on the annotation.
func (s *Service) UserCSV(ctx context.Context, user string) (*Result, error) {
	annotations, err := s.store.ListUserAnnotations(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}
	articles, err := s.loadArticles(ctx, annotations)
	if err != nil {
		return nil, err
	}
	return &Result{
		Data:     AnnotationsCSV(annotations, articles),
		Filename: "all_annotations_" + sanitizeFilename(user) + ".csv",
		MimeType: mimeCSV,
	}, nil
}

func (s *Service) loadArticles(ctx context.Context, annotations []domain.Annotation) (map[string]domain.Article, error) {
	ids := make([]string, 0)
	seen := map[string]bool{}
	for _, a := range annotations {
		if !seen[a.ArticleID] {
			seen[a.ArticleID] = true
			ids = append(ids, a.ArticleID)
		}
	}

	var mu sync.Mutex
	articles := make(map[string]domain.Article, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(articleLoadLimit)
	for _, id := range ids {
		g.Go(func() error {
			article, err := s.store.GetArticle(gctx, id)
			if errors.Is(err, domain.ErrNotFound) {
				s.log.Debug().Str("article_id", id).Msg("article gone, using annotation metadata")
				return nil
			}
			if err != nil {
				return fmt.Errorf("get article %s: %w", id, err)
			}
			mu.Lock()
			articles[id] = article
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return articles, nil
}

// ArticleHTML renders the article with its highlights.
func (s *Service) ArticleHTML(ctx context.Context, articleID string) (*Result, domain.Article, error) {
	article, err := s.store.GetArticle(ctx, articleID)
	if err != nil {
		return nil, domain.Article{}, fmt.Errorf("get article: %w", err)
	}
	annotations, err := s.store.ListArticleAnnotations(ctx, articleID)
	if err != nil {
		return nil, domain.Article{}, fmt.Errorf("list annotations: %w", err)
	}
	html, err := HighlightedHTML(article, annotations, s.palette, s.now())
	if err != nil {
		return nil, domain.Article{}, fmt.Errorf("render template: %w", err)
	}
	return &Result{
		Data:     []byte(html),
		Filename: sanitizeFilename(article.Title) + ".html",
		MimeType: mimeHTML,
	}, article, nil
}

// ArticlePDF prints the highlighted article.
func (s *Service) ArticlePDF(ctx context.Context, articleID string) (*Result, error) {
	page, article, err := s.ArticleHTML(ctx, articleID)
	if err != nil {
		return nil, err
	}
	started := s.now()
	res, err := s.pdf(ctx, string(page.Data), article.Title)
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Str("article_id", articleID).
		Int("bytes", len(res.Data)).
		Dur("elapsed", s.now().Sub(started)).
		Msg("pdf rendered")
	return res, nil
}

// ArchiveUserCSV uploads the user export and returns a download link.
func (s *Service) ArchiveUserCSV(ctx context.Context, user string) (ArchiveResult, error) {
	if s.archive == nil {
		return ArchiveResult{}, ErrArchiveUnavailable
	}
	res, err := s.UserCSV(ctx, user)
	if err != nil {
		return ArchiveResult{}, err
	}
	key := fmt.Sprintf("exports/%s/%s_%s", sanitizeFilename(user), s.now().UTC().Format("20060102T150405Z"), res.Filename)
	return s.archive.Put(ctx, key, res)
}
