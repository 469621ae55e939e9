package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"annotator/internal/analyze"
	"annotator/internal/config"
	"annotator/internal/domain"
	"annotator/internal/export"
	"annotator/internal/overlay"
	"annotator/internal/search"
	"annotator/internal/taxonomy"
	"annotator/internal/util"
)

// DefaultUser is recorded on annotations and comments created without one.
const DefaultUser = "anonymous"

type dataStore interface {
	Ping(context.Context) error
	CreateArticle(context.Context, domain.Article) (domain.Article, error)
	GetArticle(context.Context, string) (domain.Article, error)
	ListArticleAnnotations(context.Context, string) ([]domain.Annotation, error)
	ListUserAnnotations(context.Context, string) ([]domain.Annotation, error)
	GetAnnotation(context.Context, string) (domain.Annotation, error)
	CreateAnnotation(context.Context, domain.Annotation) (domain.Annotation, error)
	CreateAnnotations(context.Context, []domain.Annotation) ([]domain.Annotation, error)
	UpdateAnnotation(context.Context, domain.Annotation) (domain.Annotation, error)
	DeleteAnnotation(context.Context, string) error
	DeleteArticleAnnotations(context.Context, string) (int64, error)
	CreateComment(context.Context, domain.Comment) (domain.Comment, error)
	DeleteComment(context.Context, string, string) error
}

type articleIndex interface {
	Search(context.Context, domain.ArticleQuery) search.Response
	IndexArticle(domain.Article)
}

type exporter interface {
	ArticleCSV(context.Context, string) (*export.Result, error)
	UserCSV(context.Context, string) (*export.Result, error)
	ArticleHTML(context.Context, string) (*export.Result, domain.Article, error)
	ArticlePDF(context.Context, string) (*export.Result, error)
	ArchiveUserCSV(context.Context, string) (export.ArchiveResult, error)
}

// Deps are the collaborators of a Service. Analyzer, Search and Exports may
// be nil; the matching endpoints then report the feature as unavailable.
type Deps struct {
	Store    dataStore
	Taxonomy *taxonomy.Taxonomy
	Analyzer analyze.Analyzer
	Search   articleIndex
	Exports  exporter
	Logger   zerolog.Logger
	Now      func() time.Time
}

type Service struct {
	cfg      config.Config
	store    dataStore
	taxonomy *taxonomy.Taxonomy
	analyzer analyze.Analyzer
	limiter  *rate.Limiter
	search   articleIndex
	exports  exporter
	log      zerolog.Logger
	now      func() time.Time
}

func New(cfg config.Config, deps Deps) *Service {
	s := &Service{
		cfg:      cfg,
		store:    deps.Store,
		taxonomy: deps.Taxonomy,
		analyzer: deps.Analyzer,
		limiter:  newLimiter(cfg.AnalyzePerMinute),
		search:   deps.Search,
		exports:  deps.Exports,
		log:      deps.Logger.With().Str("component", "service").Logger(),
		now:      deps.Now,
	}
	if s.taxonomy == nil {
		s.taxonomy = taxonomy.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// newLimiter allows perMinute analysis requests per minute with a burst of
// the same size. Zero or less disables the limit.
func newLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Palette() overlay.Palette {
	return s.taxonomy.Palette()
}

func (s *Service) Categories() []domain.Category {
	return s.taxonomy.Categories()
}

func (s *Service) Subcategories(categoryID string) ([]domain.SubcategoryGroup, error) {
	groups, ok := s.taxonomy.Subcategories(categoryID)
	if !ok {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Category not found", map[string]any{"categoryId": categoryID})
	}
	return groups, nil
}

func (s *Service) SearchArticles(ctx context.Context, q domain.ArticleQuery) (search.Response, error) {
	if q.From != nil && q.To != nil && q.To.Before(*q.From) {
		return search.Response{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "to must not be before from", nil)
	}
	if s.search == nil {
		return search.Response{}, domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search is not configured", nil)
	}
	return s.search.Search(ctx, q), nil
}

type CreateArticleInput struct {
	ID            string     `json:"id"`
	Source        string     `json:"source"`
	Link          string     `json:"link"`
	Author        string     `json:"author"`
	Title         string     `json:"title"`
	Topic         string     `json:"topic"`
	Abstract      string     `json:"abstract"`
	Text          string     `json:"text"`
	PublishedDate *time.Time `json:"published_date"`
	ModifiedDate  *time.Time `json:"modified_date"`
	Membership    string     `json:"membership"`
	Language      string     `json:"language"`
}

func (in CreateArticleInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Text, validation.Required),
		validation.Field(&in.Source, validation.Required, validation.Length(1, 255)),
		validation.Field(&in.Title, validation.Length(0, 1000)),
		validation.Field(&in.Language, validation.Length(0, 16)),
	)
}

func (s *Service) CreateArticle(ctx context.Context, in CreateArticleInput) (domain.Article, error) {
	if err := in.Validate(); err != nil {
		return domain.Article{}, invalid("Invalid article", err)
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = util.NewID("art")
	}
	created, err := s.store.CreateArticle(ctx, domain.Article{
		ID:            id,
		Source:        strings.TrimSpace(in.Source),
		Link:          strings.TrimSpace(in.Link),
		Author:        strings.TrimSpace(in.Author),
		Title:         strings.TrimSpace(in.Title),
		Topic:         strings.TrimSpace(in.Topic),
		Abstract:      in.Abstract,
		Text:          in.Text,
		PublishedDate: in.PublishedDate,
		ModifiedDate:  in.ModifiedDate,
		Membership:    in.Membership,
		Language:      in.Language,
	})
	if err != nil {
		return domain.Article{}, err
	}
	if s.search != nil {
		s.search.IndexArticle(created)
	}
	s.log.Info().Str("article_id", created.ID).Str("source", created.Source).Msg("article created")
	return created, nil
}

func (s *Service) GetArticle(ctx context.Context, id string) (domain.Article, error) {
	return s.store.GetArticle(ctx, id)
}

func (s *Service) ListArticleAnnotations(ctx context.Context, articleID string) ([]domain.Annotation, error) {
	return s.store.ListArticleAnnotations(ctx, articleID)
}

func (s *Service) ListUserAnnotations(ctx context.Context, user string) ([]domain.Annotation, error) {
	return s.store.ListUserAnnotations(ctx, user)
}

// CreateAnnotation stores a new annotation. Offsets are optional but come in
// pairs, must lie inside the article text and must cover exactly the
// highlighted text.
func (s *Service) CreateAnnotation(ctx context.Context, in domain.NewAnnotation) (domain.Annotation, error) {
	err := validation.ValidateStruct(&in,
		validation.Field(&in.ArticleID, validation.Required),
		validation.Field(&in.Category, validation.Required, validation.By(s.knownCategory)),
		validation.Field(&in.Subcategory, validation.Required),
		validation.Field(&in.HighlightedText, validation.Required),
		validation.Field(&in.StartOffset, validation.When(in.EndOffset != nil, validation.NotNil), validation.Min(0)),
		validation.Field(&in.EndOffset, validation.When(in.StartOffset != nil, validation.NotNil), validation.By(endAfter(in.StartOffset))),
	)
	if err != nil {
		return domain.Annotation{}, invalid("Invalid annotation", err)
	}

	article, err := s.store.GetArticle(ctx, in.ArticleID)
	if err != nil {
		return domain.Annotation{}, err
	}
	if in.StartOffset != nil && in.EndOffset != nil {
		text := []rune(article.Text)
		if *in.EndOffset > len(text) {
			return domain.Annotation{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Invalid annotation", map[string]string{
				"end_offset": "must not exceed the article length",
			})
		}
		if string(text[*in.StartOffset:*in.EndOffset]) != in.HighlightedText {
			return domain.Annotation{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Invalid annotation", map[string]string{
				"highlighted_text": "must match the article text between the offsets",
			})
		}
	}

	a := domain.Annotation{
		ID:              util.NewID("ann"),
		ArticleID:       article.ID,
		User:            firstNonBlank(in.User, DefaultUser),
		Category:        strings.TrimSpace(in.Category),
		Subcategory:     strings.TrimSpace(in.Subcategory),
		HighlightedText: in.HighlightedText,
		StartOffset:     in.StartOffset,
		EndOffset:       in.EndOffset,
		Timestamp:       in.Timestamp,
		ArticleMetadata: in.ArticleMetadata,
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = s.now().UTC()
	}
	if a.ArticleMetadata == nil {
		a.ArticleMetadata = domain.MetadataOf(article)
	}
	created, err := s.store.CreateAnnotation(ctx, a)
	if err != nil {
		return domain.Annotation{}, err
	}
	s.log.Info().Str("annotation_id", created.ID).Str("article_id", created.ArticleID).Str("category", created.Category).Msg("annotation created")
	return created, nil
}

// UpdateAnnotation applies the non-nil fields of update. Offsets cannot be
// changed.
func (s *Service) UpdateAnnotation(ctx context.Context, id string, update domain.AnnotationUpdate) (domain.Annotation, error) {
	err := validation.ValidateStruct(&update,
		validation.Field(&update.Category, validation.By(notBlank), validation.By(s.knownCategory)),
		validation.Field(&update.Subcategory, validation.By(notBlank)),
		validation.Field(&update.HighlightedText, validation.By(notBlank)),
		validation.Field(&update.User, validation.By(notBlank)),
	)
	if err != nil {
		return domain.Annotation{}, invalid("Invalid annotation update", err)
	}
	existing, err := s.store.GetAnnotation(ctx, id)
	if err != nil {
		return domain.Annotation{}, err
	}
	next := update.Apply(existing)
	if update.Timestamp == nil {
		next.Timestamp = s.now().UTC()
	}
	return s.store.UpdateAnnotation(ctx, next)
}

func (s *Service) DeleteAnnotation(ctx context.Context, id string) error {
	return s.store.DeleteAnnotation(ctx, id)
}

func (s *Service) DeleteArticleAnnotations(ctx context.Context, articleID string) (int64, error) {
	n, err := s.store.DeleteArticleAnnotations(ctx, articleID)
	if err != nil {
		return 0, err
	}
	s.log.Info().Str("article_id", articleID).Int64("deleted", n).Msg("article annotations deleted")
	return n, nil
}

// AnalyzeArticle asks the analyzer for suggestions and stores them as
// annotations by the analysis user. Each suggestion is placed at its first
// case-insensitive match; suggestions not found in the text are stored
// without offsets.
func (s *Service) AnalyzeArticle(ctx context.Context, articleID string) ([]domain.Annotation, error) {
	if s.analyzer == nil {
		return nil, domainError(http.StatusServiceUnavailable, "ANALYSIS_UNAVAILABLE", "Analysis is not configured", nil)
	}
	if !s.limiter.Allow() {
		return nil, domainError(http.StatusTooManyRequests, "RATE_LIMITED", "Too many analysis requests", nil)
	}
	article, err := s.store.GetArticle(ctx, articleID)
	if err != nil {
		return nil, err
	}

	started := s.now()
	suggestions, err := s.analyzer.Analyze(ctx, article, s.taxonomy)
	if err != nil {
		return nil, wrapDomainError(err, http.StatusBadGateway, "ANALYSIS_FAILED", "Analysis failed")
	}

	text := []rune(article.Text)
	meta := domain.MetadataOf(article)
	now := s.now().UTC()
	pending := make([]domain.Annotation, 0, len(suggestions))
	unplaced := 0
	for _, sg := range suggestions {
		a := domain.Annotation{
			ID:              util.NewID("ann"),
			ArticleID:       article.ID,
			User:            firstNonBlank(s.cfg.AnalysisUser, "analysis"),
			Category:        sg.Category,
			Subcategory:     sg.Subcategory,
			HighlightedText: sg.HighlightedText,
			Timestamp:       now,
			ArticleMetadata: meta,
		}
		if r, ok := overlay.FirstOccurrence(article.Text, sg.HighlightedText); ok {
			a.StartOffset = domain.Offset(r.Start)
			a.EndOffset = domain.Offset(r.End)
			a.HighlightedText = string(text[r.Start:r.End])
		} else {
			unplaced++
		}
		pending = append(pending, a)
	}
	if len(pending) == 0 {
		return []domain.Annotation{}, nil
	}
	created, err := s.store.CreateAnnotations(ctx, pending)
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Str("article_id", articleID).
		Int("suggestions", len(suggestions)).
		Int("unplaced", unplaced).
		Dur("elapsed", s.now().Sub(started)).
		Msg("analysis stored")
	return created, nil
}

func (s *Service) CreateComment(ctx context.Context, annotationID string, in domain.NewComment) (domain.Comment, error) {
	in.Text = strings.TrimSpace(in.Text)
	err := validation.ValidateStruct(&in,
		validation.Field(&in.Text, validation.Required, validation.Length(1, 5000)),
	)
	if err != nil {
		return domain.Comment{}, invalid("Invalid comment", err)
	}
	if _, err := s.store.GetAnnotation(ctx, annotationID); err != nil {
		return domain.Comment{}, err
	}
	return s.store.CreateComment(ctx, domain.Comment{
		ID:           util.NewID("cmt"),
		AnnotationID: annotationID,
		User:         firstNonBlank(in.User, DefaultUser),
		Text:         in.Text,
		Timestamp:    s.now().UTC(),
	})
}

func (s *Service) DeleteComment(ctx context.Context, annotationID, commentID string) error {
	return s.store.DeleteComment(ctx, annotationID, commentID)
}

func (s *Service) exportService() (exporter, error) {
	if s.exports == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export is not configured", nil)
	}
	return s.exports, nil
}

func (s *Service) ArticleCSV(ctx context.Context, articleID string) (*export.Result, error) {
	ex, err := s.exportService()
	if err != nil {
		return nil, err
	}
	return ex.ArticleCSV(ctx, articleID)
}

func (s *Service) UserCSV(ctx context.Context, user string) (*export.Result, error) {
	ex, err := s.exportService()
	if err != nil {
		return nil, err
	}
	return ex.UserCSV(ctx, user)
}

func (s *Service) ArticleHTML(ctx context.Context, articleID string) (*export.Result, error) {
	ex, err := s.exportService()
	if err != nil {
		return nil, err
	}
	res, _, err := ex.ArticleHTML(ctx, articleID)
	return res, err
}

func (s *Service) ArticlePDF(ctx context.Context, articleID string) (*export.Result, error) {
	ex, err := s.exportService()
	if err != nil {
		return nil, err
	}
	return ex.ArticlePDF(ctx, articleID)
}

func (s *Service) ArchiveUserCSV(ctx context.Context, user string) (export.ArchiveResult, error) {
	ex, err := s.exportService()
	if err != nil {
		return export.ArchiveResult{}, err
	}
	return ex.ArchiveUserCSV(ctx, user)
}

func (s *Service) knownCategory(value any) error {
	var id string
	switch v := value.(type) {
	case string:
		id = v
	case *string:
		if v == nil {
			return nil
		}
		id = *v
	}
	id = strings.TrimSpace(id)
	if id != "" && !s.taxonomy.Valid(id) {
		return errors.New("unknown category")
	}
	return nil
}

// notBlank rejects a non-nil pointer to a blank string.
func notBlank(value any) error {
	if v, ok := value.(*string); ok && v != nil && strings.TrimSpace(*v) == "" {
		return errors.New("cannot be blank")
	}
	return nil
}

func endAfter(start *int) validation.RuleFunc {
	return func(value any) error {
		end, _ := value.(*int)
		if start == nil || end == nil {
			return nil
		}
		if *end <= *start {
			return errors.New("must be greater than start_offset")
		}
		return nil
	}
}

// invalid turns ozzo validation errors into a 422 with per-field details.
func invalid(message string, err error) error {
	var fields validation.Errors
	if !errors.As(err, &fields) {
		return fmt.Errorf("validate: %w", err)
	}
	details := make(map[string]string, len(fields))
	for field, ferr := range fields {
		details[field] = ferr.Error()
	}
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, details)
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
