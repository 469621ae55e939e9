package overlay

// Decoration is one highlight over the current document revision.
type Decoration struct {
	Start        int    `json:"start"`
	End          int    `json:"end"`
	Color        string `json:"color"`
	AnnotationID string `json:"annotation_id"`
}

// Range returns the span covered by the decoration.
func (d Decoration) Range() Range {
	return Range{Start: d.Start, End: d.End}
}

// DecorationSet owns every highlight of the displayed document. It is
// derived state: the annotation list can always rebuild it. Not safe for
// concurrent use; the owning Surface serialises access.
type DecorationSet struct {
	items    []Decoration
	limit    int
	onChange func()
}

// NewDecorationSet returns an empty set for a document of length runes.
func NewDecorationSet(length int) *DecorationSet {
	return &DecorationSet{limit: max(length, 0)}
}

// OnChange installs the re-render signal.
func (s *DecorationSet) OnChange(fn func()) {
	s.onChange = fn
}

// SetLength updates the bound used to clamp new decorations.
func (s *DecorationSet) SetLength(length int) {
	s.limit = max(length, 0)
}

// Add clamps start and end into the document and appends the decoration.
// Offsets computed against a stale revision degrade to a clamped highlight.
func (s *DecorationSet) Add(start, end int, color, annotationID string) Decoration {
	start = clamp(start, 0, s.limit)
	end = clamp(end, 0, s.limit)
	if start > end {
		start, end = end, start
	}
	deco := Decoration{Start: start, End: end, Color: color, AnnotationID: annotationID}
	s.items = append(s.items, deco)
	s.changed()
	return deco
}

// RemoveByAnnotation drops every decoration of the annotation and reports
// how many were removed. Removing an unknown id is a no-op.
func (s *DecorationSet) RemoveByAnnotation(annotationID string) int {
	kept := s.items[:0]
	removed := 0
	for _, deco := range s.items {
		if deco.AnnotationID == annotationID {
			removed++
			continue
		}
		kept = append(kept, deco)
	}
	clear(s.items[len(kept):])
	s.items = kept
	if removed > 0 {
		s.changed()
	}
	return removed
}

// Remap moves every decoration through an in-place edit of the document.
// Decorations whose text was deleted entirely are dropped.
func (s *DecorationSet) Remap(mapping Mapping) {
	if len(mapping) == 0 || len(s.items) == 0 {
		return
	}
	kept := s.items[:0]
	for _, deco := range s.items {
		if deco.Start == deco.End {
			pos := mapping.Map(deco.Start, 1)
			deco.Start, deco.End = pos, pos
			kept = append(kept, deco)
			continue
		}
		start := mapping.Map(deco.Start, 1)
		end := mapping.Map(deco.End, -1)
		if start >= end {
			continue
		}
		deco.Start, deco.End = start, end
		kept = append(kept, deco)
	}
	clear(s.items[len(kept):])
	s.items = kept
	s.changed()
}

// Clear empties the set.
func (s *DecorationSet) Clear() {
	if len(s.items) == 0 {
		return
	}
	s.items = nil
	s.changed()
}

// All returns a copy of the decorations in insertion order.
func (s *DecorationSet) All() []Decoration {
	return append([]Decoration{}, s.items...)
}

// ForAnnotation returns the decorations of one annotation.
func (s *DecorationSet) ForAnnotation(annotationID string) []Decoration {
	out := []Decoration{}
	for _, deco := range s.items {
		if deco.AnnotationID == annotationID {
			out = append(out, deco)
		}
	}
	return out
}

func (s *DecorationSet) Len() int {
	return len(s.items)
}

func (s *DecorationSet) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}

func clamp(value, low, high int) int {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}
