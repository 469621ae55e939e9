package overlay

import (
	"fmt"
	"html"
	"slices"
	"sort"
	"strings"
)

// Segment is a maximal run of text covered by the same decorations.
type Segment struct {
	Start         int      `json:"start"`
	End           int      `json:"end"`
	Text          string   `json:"text"`
	Color         string   `json:"color,omitempty"`
	AnnotationIDs []string `json:"annotation_ids,omitempty"`
}

// Highlighted reports whether any decoration covers the segment.
func (s Segment) Highlighted() bool {
	return len(s.AnnotationIDs) > 0
}

// View is a rendered document revision.
type View struct {
	Revision int64     `json:"revision"`
	Segments []Segment `json:"segments"`
}

// Text concatenates the segments back into the document text.
func (v View) Text() string {
	var b strings.Builder
	for _, seg := range v.Segments {
		b.WriteString(seg.Text)
	}
	return b.String()
}

// HTML renders the view as escaped text with a <mark> per highlighted
// segment and <br> for line breaks.
func (v View) HTML() string {
	var b strings.Builder
	for _, seg := range v.Segments {
		text := strings.ReplaceAll(html.EscapeString(seg.Text), "\n", "<br>")
		if !seg.Highlighted() {
			b.WriteString(text)
			continue
		}
		fmt.Fprintf(&b, `<mark style="background-color: %s" data-annotation-ids="%s">%s</mark>`,
			html.EscapeString(seg.Color),
			html.EscapeString(strings.Join(seg.AnnotationIDs, " ")),
			text,
		)
	}
	return b.String()
}

// buildView cuts the text at every decoration boundary. The colour of a run
// is the colour of the most recently added decoration covering it, so
// overlapping highlights stay intact underneath each other.
func buildView(text []rune, revision int64, decorations []Decoration) View {
	view := View{Revision: revision, Segments: []Segment{}}
	if len(text) == 0 {
		return view
	}

	cuts := map[int]struct{}{0: {}, len(text): {}}
	for _, deco := range decorations {
		if deco.Start == deco.End {
			continue
		}
		cuts[clamp(deco.Start, 0, len(text))] = struct{}{}
		cuts[clamp(deco.End, 0, len(text))] = struct{}{}
	}
	bounds := make([]int, 0, len(cuts))
	for pos := range cuts {
		bounds = append(bounds, pos)
	}
	sort.Ints(bounds)

	for i := 0; i+1 < len(bounds); i++ {
		start, end := bounds[i], bounds[i+1]
		seg := Segment{Start: start, End: end, Text: string(text[start:end])}
		for _, deco := range decorations {
			if deco.Start <= start && end <= deco.End && deco.Start < deco.End {
				seg.Color = deco.Color
				if !slices.Contains(seg.AnnotationIDs, deco.AnnotationID) {
					seg.AnnotationIDs = append(seg.AnnotationIDs, deco.AnnotationID)
				}
			}
		}
		view.Segments = append(view.Segments, seg)
	}
	return view
}
