// Package domain holds the records exchanged between the review backend,
// its HTTP client and the annotation workspace.
package domain

import (
	"strings"
	"time"
)

// DefaultLanguage is used when an article does not declare one.
const DefaultLanguage = "fr"

type Article struct {
	ID            string     `json:"id"`
	Source        string     `json:"source"`
	Link          string     `json:"link"`
	Author        string     `json:"author"`
	Title         string     `json:"title,omitempty"`
	Topic         string     `json:"topic,omitempty"`
	Abstract      string     `json:"abstract,omitempty"`
	Text          string     `json:"text,omitempty"`
	PublishedDate *time.Time `json:"published_date,omitempty"`
	ModifiedDate  *time.Time `json:"modified_date,omitempty"`
	Membership    string     `json:"membership,omitempty"`
	Language      string     `json:"language,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ModifiedAt    time.Time  `json:"modified_at"`
}

// Lang returns the article language or DefaultLanguage.
func (a Article) Lang() string {
	if strings.TrimSpace(a.Language) == "" {
		return DefaultLanguage
	}
	return a.Language
}

// ArticleMetadata is the denormalised article snapshot stored on annotations
// so exports keep working when the article row changes.
type ArticleMetadata struct {
	Title         string     `json:"title,omitempty"`
	Source        string     `json:"source,omitempty"`
	Link          string     `json:"link,omitempty"`
	Author        string     `json:"author,omitempty"`
	Topic         string     `json:"topic,omitempty"`
	Abstract      string     `json:"abstract,omitempty"`
	PublishedDate *time.Time `json:"published_date,omitempty"`
	ModifiedDate  *time.Time `json:"modified_date,omitempty"`
	Membership    string     `json:"membership,omitempty"`
	Language      string     `json:"language,omitempty"`
}

// MetadataOf snapshots the article fields kept on an annotation.
func MetadataOf(a Article) *ArticleMetadata {
	return &ArticleMetadata{
		Title:         a.Title,
		Source:        a.Source,
		Link:          a.Link,
		Author:        a.Author,
		Topic:         a.Topic,
		Abstract:      a.Abstract,
		PublishedDate: a.PublishedDate,
		ModifiedDate:  a.ModifiedDate,
		Membership:    a.Membership,
		Language:      a.Lang(),
	}
}

type Comment struct {
	ID           string    `json:"id"`
	AnnotationID string    `json:"annotation_id"`
	User         string    `json:"user"`
	Text         string    `json:"comment_text"`
	Timestamp    time.Time `json:"timestamp"`
}

type Annotation struct {
	ID              string           `json:"id"`
	ArticleID       string           `json:"article_id"`
	User            string           `json:"user"`
	Category        string           `json:"category"`
	Subcategory     string           `json:"subcategory"`
	HighlightedText string           `json:"highlighted_text"`
	StartOffset     *int             `json:"start_offset"`
	EndOffset       *int             `json:"end_offset"`
	Timestamp       time.Time        `json:"timestamp"`
	Comments        []Comment        `json:"comments"`
	ArticleMetadata *ArticleMetadata `json:"article_metadata,omitempty"`
}

// Anchor picks how the annotation is placed over its document: by stored
// offsets when both are present, by searching its text otherwise.
func (a Annotation) Anchor() Anchor {
	if a.StartOffset != nil && a.EndOffset != nil {
		return Positioned{Start: *a.StartOffset, End: *a.EndOffset}
	}
	return TextOnly{Text: a.HighlightedText}
}

// Clone returns a copy that shares no slices or pointers with a.
func (a Annotation) Clone() Annotation {
	out := a
	if a.StartOffset != nil {
		out.StartOffset = Offset(*a.StartOffset)
	}
	if a.EndOffset != nil {
		out.EndOffset = Offset(*a.EndOffset)
	}
	if a.Comments != nil {
		out.Comments = append([]Comment(nil), a.Comments...)
	}
	if a.ArticleMetadata != nil {
		meta := *a.ArticleMetadata
		out.ArticleMetadata = &meta
	}
	return out
}

// Offset returns a pointer to v.
func Offset(v int) *int {
	return &v
}

// Anchor is either Positioned or TextOnly.
type Anchor interface {
	isAnchor()
}

// Positioned anchors carry authoritative offsets.
type Positioned struct {
	Start int
	End   int
}

// TextOnly anchors come from records persisted before offsets were tracked.
type TextOnly struct {
	Text string
}

func (Positioned) isAnchor() {}
func (TextOnly) isAnchor()   {}

type NewAnnotation struct {
	ArticleID       string           `json:"article_id"`
	HighlightedText string           `json:"highlighted_text"`
	StartOffset     *int             `json:"start_offset"`
	EndOffset       *int             `json:"end_offset"`
	Category        string           `json:"category"`
	Subcategory     string           `json:"subcategory"`
	Timestamp       time.Time        `json:"timestamp"`
	User            string           `json:"user"`
	ArticleMetadata *ArticleMetadata `json:"article_metadata,omitempty"`
}

// AnnotationUpdate carries the editable fields; nil means unchanged.
// Offsets are not editable.
type AnnotationUpdate struct {
	Category        *string    `json:"category,omitempty"`
	Subcategory     *string    `json:"subcategory,omitempty"`
	HighlightedText *string    `json:"highlighted_text,omitempty"`
	Timestamp       *time.Time `json:"timestamp,omitempty"`
	User            *string    `json:"user,omitempty"`
}

// Apply returns a with the non-nil fields of u applied.
func (u AnnotationUpdate) Apply(a Annotation) Annotation {
	out := a.Clone()
	if u.Category != nil {
		out.Category = *u.Category
	}
	if u.Subcategory != nil {
		out.Subcategory = *u.Subcategory
	}
	if u.HighlightedText != nil {
		out.HighlightedText = *u.HighlightedText
	}
	if u.Timestamp != nil {
		out.Timestamp = *u.Timestamp
	}
	if u.User != nil {
		out.User = *u.User
	}
	return out
}

type NewComment struct {
	AnnotationID string `json:"annotation_id"`
	User         string `json:"user"`
	Text         string `json:"comment_text"`
}

// ArticleQuery filters article search.
type ArticleQuery struct {
	Text   string
	From   *time.Time
	To     *time.Time
	Source string
	Limit  int
}

type Category struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// SubcategoryGroup is one labelled group of subcategory options.
type SubcategoryGroup struct {
	Header  string   `json:"header"`
	Options []string `json:"options"`
}
