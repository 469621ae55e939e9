package export

import (
	"bufio"
	"io"
	"strings"
	"time"

	"annotator/internal/domain"
)

const (
	timestampLayout = "2006-01-02 15:04:05"
	dateLayout      = "2006-01-02"
)

var csvHeader = []string{
	"Annotation ID", "Article ID", "Article Title", "User", "Timestamp",
	"Category", "Subcategory", "Highlighted Text", "Source", "Link", "Author",
	"Topic", "Abstract", "Text", "Published Date", "Modified Date",
	"Membership", "Language",
}

// WriteCSV writes one row per annotation after the header row. Article
// columns come from articles[annotation.ArticleID] when present and from the
// metadata snapshot on the annotation otherwise. Every field is quoted and
// rows are separated by CRLF.
func WriteCSV(w io.Writer, annotations []domain.Annotation, articles map[string]domain.Article) error {
	bw := bufio.NewWriter(w)
	writeRecord(bw, csvHeader)
	for _, a := range annotations {
		bw.WriteString("\r\n")
		writeRecord(bw, csvRow(a, articles))
	}
	return bw.Flush()
}

// AnnotationsCSV is WriteCSV into a byte slice.
func AnnotationsCSV(annotations []domain.Annotation, articles map[string]domain.Article) []byte {
	var b strings.Builder
	_ = WriteCSV(&b, annotations, articles)
	return []byte(b.String())
}

func csvRow(a domain.Annotation, articles map[string]domain.Article) []string {
	var meta domain.ArticleMetadata
	text := ""
	if article, ok := articles[a.ArticleID]; ok {
		meta = *domain.MetadataOf(article)
		text = article.Text
	} else if a.ArticleMetadata != nil {
		meta = *a.ArticleMetadata
	}
	language := meta.Language
	if strings.TrimSpace(language) == "" {
		language = domain.DefaultLanguage
	}
	return []string{
		a.ID,
		a.ArticleID,
		meta.Title,
		a.User,
		formatTime(&a.Timestamp, timestampLayout),
		a.Category,
		a.Subcategory,
		a.HighlightedText,
		meta.Source,
		meta.Link,
		meta.Author,
		meta.Topic,
		meta.Abstract,
		text,
		formatTime(meta.PublishedDate, dateLayout),
		formatTime(meta.ModifiedDate, dateLayout),
		meta.Membership,
		language,
	}
}

func writeRecord(w *bufio.Writer, fields []string) {
	for i, field := range fields {
		if i > 0 {
			w.WriteByte(',')
		}
		w.WriteByte('"')
		w.WriteString(strings.ReplaceAll(field, `"`, `""`))
		w.WriteByte('"')
	}
}

func formatTime(t *time.Time, layout string) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(layout)
}
