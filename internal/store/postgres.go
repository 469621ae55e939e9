package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"annotator/internal/domain"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) CreateArticle(ctx context.Context, a domain.Article) (domain.Article, error) {
	query := `
		INSERT INTO articles (id, source, link, author, title, topic, abstract, text,
			published_date, modified_date, membership, language)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING ` + articleColumns
	row := s.db.QueryRowContext(ctx, query,
		a.ID, a.Source, a.Link, a.Author, a.Title, a.Topic, a.Abstract, a.Text,
		timeArg(a.PublishedDate), timeArg(a.ModifiedDate), a.Membership, a.Lang(),
	)
	created, err := scanArticle(row)
	if err != nil {
		return domain.Article{}, fmt.Errorf("insert article: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) GetArticle(ctx context.Context, id string) (domain.Article, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE id=$1`, id)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Article{}, fmt.Errorf("article %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Article{}, fmt.Errorf("get article: %w", err)
	}
	return a, nil
}

// ListAllArticles returns every article, oldest first.
func (s *PostgresStore) ListAllArticles(ctx context.Context) ([]domain.Article, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+articleColumns+` FROM articles ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Article, 0)
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate articles: %w", err)
	}
	return out, nil
}

// SearchArticles matches q.Text case-insensitively against source, link,
// author, title and text, newest first.
func (s *PostgresStore) SearchArticles(ctx context.Context, q domain.ArticleQuery) ([]domain.Article, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if text := strings.TrimSpace(q.Text); text != "" {
		p := arg("%" + escapeLike(text) + "%")
		where = append(where, fmt.Sprintf(
			"(source ILIKE %[1]s OR link ILIKE %[1]s OR author ILIKE %[1]s OR title ILIKE %[1]s OR text ILIKE %[1]s)", p))
	}
	if q.From != nil {
		where = append(where, "published_date >= "+arg(*q.From))
	}
	if q.To != nil {
		where = append(where, "published_date <= "+arg(*q.To))
	}
	if source := strings.TrimSpace(q.Source); source != "" {
		where = append(where, "source = "+arg(source))
	}

	query := `SELECT ` + articleColumns + ` FROM articles`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY published_date DESC NULLS LAST, created_at DESC LIMIT " + arg(clampLimit(q.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search articles: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Article, 0)
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate articles: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListArticleAnnotations(ctx context.Context, articleID string) ([]domain.Annotation, error) {
	return s.listAnnotations(ctx, `WHERE article_id=$1`, articleID)
}

func (s *PostgresStore) ListUserAnnotations(ctx context.Context, user string) ([]domain.Annotation, error) {
	return s.listAnnotations(ctx, `WHERE user_name=$1`, user)
}

func (s *PostgresStore) listAnnotations(ctx context.Context, where string, arg any) ([]domain.Annotation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+annotationColumns+` FROM annotations `+where+` ORDER BY annotated_at, id`, arg)
	if err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Annotation, 0)
	for rows.Next() {
		a, err := scanAnnotation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan annotation: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate annotations: %w", err)
	}
	if err := s.attachComments(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) GetAnnotation(ctx context.Context, id string) (domain.Annotation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+annotationColumns+` FROM annotations WHERE id=$1`, id)
	a, err := scanAnnotation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Annotation{}, fmt.Errorf("annotation %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Annotation{}, fmt.Errorf("get annotation: %w", err)
	}
	list := []domain.Annotation{a}
	if err := s.attachComments(ctx, list); err != nil {
		return domain.Annotation{}, err
	}
	return list[0], nil
}

// CreateAnnotations inserts every annotation in one transaction.
func (s *PostgresStore) CreateAnnotations(ctx context.Context, annotations []domain.Annotation) ([]domain.Annotation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin annotations tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	out := make([]domain.Annotation, 0, len(annotations))
	for _, a := range annotations {
		created, err := insertAnnotation(ctx, tx, a)
		if err != nil {
			return nil, err
		}
		out = append(out, created)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit annotations tx: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CreateAnnotation(ctx context.Context, a domain.Annotation) (domain.Annotation, error) {
	return insertAnnotation(ctx, s.db, a)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertAnnotation(ctx context.Context, q queryRower, a domain.Annotation) (domain.Annotation, error) {
	meta, err := metadataArg(a.ArticleMetadata)
	if err != nil {
		return domain.Annotation{}, err
	}
	query := `
		INSERT INTO annotations (id, article_id, user_name, category, subcategory, highlighted_text,
			start_offset, end_offset, annotated_at, article_metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + annotationColumns
	created, err := scanAnnotation(q.QueryRowContext(ctx, query,
		a.ID, a.ArticleID, a.User, a.Category, a.Subcategory, a.HighlightedText,
		offsetArg(a.StartOffset), offsetArg(a.EndOffset), a.Timestamp, meta,
	))
	if err != nil {
		return domain.Annotation{}, fmt.Errorf("insert annotation: %w", err)
	}
	return created, nil
}

// UpdateAnnotation stores the editable fields of a. Offsets and article are
// never changed.
func (s *PostgresStore) UpdateAnnotation(ctx context.Context, a domain.Annotation) (domain.Annotation, error) {
	query := `
		UPDATE annotations
		SET category=$2, subcategory=$3, highlighted_text=$4, annotated_at=$5, user_name=$6
		WHERE id=$1
		RETURNING ` + annotationColumns
	updated, err := scanAnnotation(s.db.QueryRowContext(ctx, query,
		a.ID, a.Category, a.Subcategory, a.HighlightedText, a.Timestamp, a.User,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Annotation{}, fmt.Errorf("annotation %s: %w", a.ID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Annotation{}, fmt.Errorf("update annotation: %w", err)
	}
	list := []domain.Annotation{updated}
	if err := s.attachComments(ctx, list); err != nil {
		return domain.Annotation{}, err
	}
	return list[0], nil
}

func (s *PostgresStore) DeleteAnnotation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM annotations WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete annotation: %w", err)
	}
	return expectAffected(res, "annotation", id)
}

// DeleteArticleAnnotations removes every annotation of an article and
// reports how many were deleted.
func (s *PostgresStore) DeleteArticleAnnotations(ctx context.Context, articleID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM annotations WHERE article_id=$1`, articleID)
	if err != nil {
		return 0, fmt.Errorf("delete article annotations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete article annotations: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) CreateComment(ctx context.Context, c domain.Comment) (domain.Comment, error) {
	var created domain.Comment
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO comments (id, annotation_id, user_name, comment_text, commented_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, annotation_id, user_name, comment_text, commented_at
	`, c.ID, c.AnnotationID, c.User, c.Text, c.Timestamp).Scan(
		&created.ID, &created.AnnotationID, &created.User, &created.Text, &created.Timestamp,
	)
	if err != nil {
		return domain.Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) DeleteComment(ctx context.Context, annotationID, commentID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE id=$1 AND annotation_id=$2`, commentID, annotationID)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return expectAffected(res, "comment", commentID)
}

// attachComments loads the comments of every annotation in one query.
func (s *PostgresStore) attachComments(ctx context.Context, annotations []domain.Annotation) error {
	if len(annotations) == 0 {
		return nil
	}
	ids := make([]string, 0, len(annotations))
	index := make(map[string]int, len(annotations))
	for i, a := range annotations {
		ids = append(ids, a.ID)
		index[a.ID] = i
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, annotation_id, user_name, comment_text, commented_at
		FROM comments
		WHERE annotation_id = ANY($1)
		ORDER BY commented_at, id
	`, ids)
	if err != nil {
		return fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.AnnotationID, &c.User, &c.Text, &c.Timestamp); err != nil {
			return fmt.Errorf("scan comment: %w", err)
		}
		i := index[c.AnnotationID]
		annotations[i].Comments = append(annotations[i].Comments, c)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate comments: %w", err)
	}
	return nil
}

func expectAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s: %w", kind, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
	}
	return nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > 500:
		return 500
	default:
		return limit
	}
}
