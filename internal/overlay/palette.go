package overlay

import "strings"

// DefaultColor is used for categories the palette does not know.
const DefaultColor = "#FFFF00"

// Palette maps category ids to highlight colours.
type Palette struct {
	colors   map[string]string
	fallback string
}

var defaultColors = map[string]string{
	"A": "#FFD700",
	"B": "#ADFF2F",
	"C": "#87CEFA",
	"D": "#FFB6C1",
}

// DefaultPalette returns the built-in category colours.
func DefaultPalette() Palette {
	return NewPalette(defaultColors, DefaultColor)
}

// NewPalette builds a palette; blank ids and colours are skipped and an
// empty fallback means DefaultColor.
func NewPalette(colors map[string]string, fallback string) Palette {
	normalized := make(map[string]string, len(colors))
	for id, color := range colors {
		id = strings.TrimSpace(id)
		color = strings.TrimSpace(color)
		if id == "" || color == "" {
			continue
		}
		normalized[id] = color
	}
	if strings.TrimSpace(fallback) == "" {
		fallback = DefaultColor
	}
	return Palette{colors: normalized, fallback: fallback}
}

// ColorFor never fails: unknown ids resolve to the fallback colour.
func (p Palette) ColorFor(categoryID string) string {
	if color, ok := p.colors[strings.TrimSpace(categoryID)]; ok {
		return color
	}
	if p.fallback == "" {
		return DefaultColor
	}
	return p.fallback
}

// IsZero reports whether p is the zero Palette.
func (p Palette) IsZero() bool {
	return p.colors == nil && p.fallback == ""
}
