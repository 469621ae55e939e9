package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"annotator/internal/domain"
)

const articleColumns = `id, source, link, author, title, topic, abstract, text,
	published_date, modified_date, membership, language, created_at, modified_at`

const annotationColumns = `id, article_id, user_name, category, subcategory, highlighted_text,
	start_offset, end_offset, annotated_at, article_metadata`

type scanner interface {
	Scan(dest ...any) error
}

func scanArticle(row scanner) (domain.Article, error) {
	var (
		a         domain.Article
		published sql.NullTime
		modified  sql.NullTime
	)
	err := row.Scan(
		&a.ID, &a.Source, &a.Link, &a.Author, &a.Title, &a.Topic, &a.Abstract, &a.Text,
		&published, &modified, &a.Membership, &a.Language, &a.CreatedAt, &a.ModifiedAt,
	)
	if err != nil {
		return domain.Article{}, err
	}
	a.PublishedDate = nullTime(published)
	a.ModifiedDate = nullTime(modified)
	return a, nil
}

func scanAnnotation(row scanner) (domain.Annotation, error) {
	var (
		a        domain.Annotation
		start    sql.NullInt64
		end      sql.NullInt64
		metadata []byte
	)
	err := row.Scan(
		&a.ID, &a.ArticleID, &a.User, &a.Category, &a.Subcategory, &a.HighlightedText,
		&start, &end, &a.Timestamp, &metadata,
	)
	if err != nil {
		return domain.Annotation{}, err
	}
	if start.Valid && end.Valid {
		a.StartOffset = domain.Offset(int(start.Int64))
		a.EndOffset = domain.Offset(int(end.Int64))
	}
	if len(metadata) > 0 {
		var meta domain.ArticleMetadata
		if err := json.Unmarshal(metadata, &meta); err != nil {
			return domain.Annotation{}, fmt.Errorf("decode article metadata for %s: %w", a.ID, err)
		}
		a.ArticleMetadata = &meta
	}
	a.Comments = []domain.Comment{}
	return a, nil
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}

func timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func offsetArg(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func metadataArg(meta *domain.ArticleMetadata) (any, error) {
	if meta == nil {
		return nil, nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode article metadata: %w", err)
	}
	return string(raw), nil
}
