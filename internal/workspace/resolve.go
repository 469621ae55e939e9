package workspace

import (
	"annotator/internal/domain"
	"annotator/internal/overlay"
)

// Resolve turns an annotation's anchor into ranges over text. Stored offsets
// are authoritative; records without them are matched by their highlighted
// text and highlight every occurrence.
func Resolve(text string, a domain.Annotation) []overlay.Range {
	switch anchor := a.Anchor().(type) {
	case domain.Positioned:
		return []overlay.Range{{Start: anchor.Start, End: anchor.End}}
	case domain.TextOnly:
		return overlay.FindOccurrences(text, anchor.Text)
	default:
		return nil
	}
}
