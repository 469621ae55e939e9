package overlay

// Selection is a non-empty user selection over a document revision.
type Selection struct {
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Text     string `json:"text"`
	Revision int64  `json:"revision"`
}

// Surface owns the displayed document text and its decorations. Every entry
// point is a no-op until the first Replace. Not safe for concurrent use.
type Surface struct {
	text        []rune
	revision    int64
	loaded      bool
	decorations *DecorationSet
	batching    bool
	renders     int

	onSelect func(Selection)
	onRender func(View)
}

func NewSurface() *Surface {
	s := &Surface{decorations: NewDecorationSet(0)}
	s.decorations.OnChange(s.render)
	return s
}

// OnSelect installs the listener that receives reported selections. It
// survives document replacement.
func (s *Surface) OnSelect(fn func(Selection)) {
	s.onSelect = fn
}

// OnRender installs the listener that receives every re-rendered view.
func (s *Surface) OnRender(fn func(View)) {
	s.onRender = fn
}

// Replace discards the current document and all of its decorations, installs
// text and returns the new revision.
func (s *Surface) Replace(text string) int64 {
	s.batching = true
	s.decorations.Clear()
	s.text = []rune(text)
	s.decorations.SetLength(len(s.text))
	s.revision++
	s.loaded = true
	s.batching = false
	s.render()
	return s.revision
}

func (s *Surface) Loaded() bool {
	return s.loaded
}

func (s *Surface) Read() string {
	return string(s.text)
}

func (s *Surface) Revision() int64 {
	return s.revision
}

// Len returns the document length in runes.
func (s *Surface) Len() int {
	return len(s.text)
}

// Renders counts how many views have been produced so far.
func (s *Surface) Renders() int {
	return s.renders
}

// Slice returns the text in [start, end) after clamping; reversed bounds are
// swapped.
func (s *Surface) Slice(start, end int) string {
	start = clamp(start, 0, len(s.text))
	end = clamp(end, 0, len(s.text))
	if start > end {
		start, end = end, start
	}
	return string(s.text[start:end])
}

// Edit replaces [from, to) with insert in place and remaps decorations so
// they keep covering the same text. The revision is unchanged: an edit is not
// a document replacement.
func (s *Surface) Edit(from, to int, insert string) (Mapping, bool) {
	if !s.loaded {
		return nil, false
	}
	from = clamp(from, 0, len(s.text))
	to = clamp(to, 0, len(s.text))
	if from > to {
		from, to = to, from
	}
	inserted := []rune(insert)
	if from == to && len(inserted) == 0 {
		return Mapping{}, true
	}

	next := make([]rune, 0, len(s.text)-(to-from)+len(inserted))
	next = append(next, s.text[:from]...)
	next = append(next, inserted...)
	next = append(next, s.text[to:]...)
	s.text = next

	mapping := Mapping{{From: from, To: to, Insert: len(inserted)}}
	s.batching = true
	s.decorations.SetLength(len(s.text))
	s.decorations.Remap(mapping)
	s.batching = false
	s.render()
	return mapping, true
}

// ReportSelection forwards a user selection. A zero-width selection is a
// click, not a selection, and is ignored.
func (s *Surface) ReportSelection(start, end int) {
	if !s.loaded || start == end {
		return
	}
	if start > end {
		start, end = end, start
	}
	start = clamp(start, 0, len(s.text))
	end = clamp(end, 0, len(s.text))
	if start == end || s.onSelect == nil {
		return
	}
	s.onSelect(Selection{
		Start:    start,
		End:      end,
		Text:     string(s.text[start:end]),
		Revision: s.revision,
	})
}

// AddHighlight decorates [start, end) for the annotation.
func (s *Surface) AddHighlight(start, end int, color, annotationID string) (Decoration, bool) {
	if !s.loaded {
		return Decoration{}, false
	}
	return s.decorations.Add(start, end, color, annotationID), true
}

// RemoveHighlight drops every decoration of the annotation.
func (s *Surface) RemoveHighlight(annotationID string) int {
	if !s.loaded {
		return 0
	}
	return s.decorations.RemoveByAnnotation(annotationID)
}

// ClearHighlights drops every decoration but keeps the document.
func (s *Surface) ClearHighlights() {
	if !s.loaded {
		return
	}
	s.decorations.Clear()
}

// Decorations returns a copy of the current decorations.
func (s *Surface) Decorations() []Decoration {
	return s.decorations.All()
}

// HighlightsFor returns the decorations of one annotation.
func (s *Surface) HighlightsFor(annotationID string) []Decoration {
	return s.decorations.ForAnnotation(annotationID)
}

// Render builds the current view without notifying listeners.
func (s *Surface) Render() View {
	return buildView(s.text, s.revision, s.decorations.items)
}

func (s *Surface) render() {
	if s.batching || !s.loaded {
		return
	}
	s.renders++
	if s.onRender != nil {
		s.onRender(s.Render())
	}
}
