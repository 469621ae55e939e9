package export

import (
	"bytes"
	"embed"
	"html/template"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var highlightedTemplate = template.Must(
	template.New("highlighted.html").Funcs(template.FuncMap{
		"formatDate": func(t *time.Time, layout string) string {
			if t == nil {
				return ""
			}
			return t.Format(layout)
		},
	}).ParseFS(templateFS, "templates/highlighted.html"),
)

// TemplateData holds data for the highlighted article template.
type TemplateData struct {
	Title         string
	Source        string
	Author        string
	Link          string
	PublishedDate *time.Time
	ContentHTML   template.HTML
	Legend        []LegendEntry
	Annotations   []TemplateAnnotation
	Unplaced      int
	GeneratedAt   time.Time
}

type LegendEntry struct {
	Category string
	Color    string
}

type TemplateAnnotation struct {
	ID          string
	Category    string
	Subcategory string
	Text        string
	User        string
	Color       string
	Comments    int
}

// RenderHighlightedHTML renders the template with provided data. ContentHTML
// is inserted unescaped and must already be safe.
func RenderHighlightedHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := highlightedTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
