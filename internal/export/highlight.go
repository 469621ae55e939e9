package export

import (
	"html/template"
	"sort"
	"time"

	"annotator/internal/domain"
	"annotator/internal/overlay"
	"annotator/internal/workspace"
)

// Highlighted is an article rendered with its annotations.
type Highlighted struct {
	View        overlay.View
	Placed      int
	Unplaced    []domain.Annotation
	ContentHTML template.HTML
}

// Highlight places annotations over the article text the same way the
// workspace does: stored offsets first, every text match for records
// without offsets. Annotations that resolve to no range are returned in
// Unplaced.
func Highlight(article domain.Article, annotations []domain.Annotation, palette overlay.Palette) Highlighted {
	if palette.IsZero() {
		palette = overlay.DefaultPalette()
	}
	surface := overlay.NewSurface()
	surface.Replace(article.Text)

	out := Highlighted{}
	for _, a := range annotations {
		placed := false
		for _, r := range workspace.Resolve(article.Text, a) {
			if _, ok := surface.AddHighlight(r.Start, r.End, palette.ColorFor(a.Category), a.ID); ok {
				placed = true
			}
		}
		if placed {
			out.Placed++
		} else {
			out.Unplaced = append(out.Unplaced, a)
		}
	}
	out.View = surface.Render()
	out.ContentHTML = template.HTML(out.View.HTML())
	return out
}

// HighlightedHTML renders a standalone HTML page of the article with a
// legend and the annotation list.
func HighlightedHTML(article domain.Article, annotations []domain.Annotation, palette overlay.Palette, now time.Time) (string, error) {
	if palette.IsZero() {
		palette = overlay.DefaultPalette()
	}
	h := Highlight(article, annotations, palette)

	data := TemplateData{
		Title:         article.Title,
		Source:        article.Source,
		Author:        article.Author,
		Link:          article.Link,
		PublishedDate: article.PublishedDate,
		ContentHTML:   h.ContentHTML,
		GeneratedAt:   now.UTC(),
		Unplaced:      len(h.Unplaced),
	}
	seen := map[string]bool{}
	for _, a := range annotations {
		if !seen[a.Category] {
			seen[a.Category] = true
			data.Legend = append(data.Legend, LegendEntry{Category: a.Category, Color: palette.ColorFor(a.Category)})
		}
		data.Annotations = append(data.Annotations, TemplateAnnotation{
			ID:          a.ID,
			Category:    a.Category,
			Subcategory: a.Subcategory,
			Text:        a.HighlightedText,
			User:        a.User,
			Color:       palette.ColorFor(a.Category),
			Comments:    len(a.Comments),
		})
	}
	sort.Slice(data.Legend, func(i, j int) bool { return data.Legend[i].Category < data.Legend[j].Category })
	return RenderHighlightedHTML(data)
}
