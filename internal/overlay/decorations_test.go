package overlay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecorationSetAddClamps(t *testing.T) {
	tests := []struct {
		name       string
		start, end int
		expected   Range
	}{
		{"in range", 2, 5, Range{2, 5}},
		{"far out of range", -5, 1_000_000_000, Range{0, 40}},
		{"reversed", 9, 3, Range{3, 9}},
		{"reversed and out of range", 100, -1, Range{0, 40}},
		{"both past end", 50, 60, Range{40, 40}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := NewDecorationSet(40)
			deco := set.Add(tt.start, tt.end, "#fff", "ann_1")
			assert.Equal(t, tt.expected, deco.Range())
			require.Len(t, set.All(), 1)
		})
	}
}

func TestDecorationSetRemoveByAnnotation(t *testing.T) {
	set := NewDecorationSet(100)
	set.Add(0, 5, "#a", "keep")
	set.Add(10, 15, "#b", "legacy")
	set.Add(20, 25, "#b", "legacy")
	set.Add(30, 35, "#c", "keep")

	assert.Equal(t, 2, set.RemoveByAnnotation("legacy"))
	once := set.All()
	assert.Equal(t, 0, set.RemoveByAnnotation("legacy"))
	assert.Equal(t, once, set.All(), "removal must be idempotent")
	assert.Equal(t, 0, set.RemoveByAnnotation("missing"))
	assert.Len(t, set.All(), 2)
	assert.Empty(t, set.ForAnnotation("legacy"))
}

func TestDecorationSetAddThenRemoveRestores(t *testing.T) {
	set := NewDecorationSet(50)
	set.Add(1, 4, "#a", "x")
	set.Add(6, 9, "#b", "y")
	before := set.All()

	set.Add(2, 8, "#c", "new")
	set.RemoveByAnnotation("new")

	assert.Equal(t, before, set.All())
}

func TestDecorationSetChangeSignal(t *testing.T) {
	set := NewDecorationSet(10)
	signals := 0
	set.OnChange(func() { signals++ })

	set.Add(0, 1, "#a", "x")
	set.RemoveByAnnotation("missing")
	set.RemoveByAnnotation("x")
	set.Clear()

	assert.Equal(t, 2, signals, "only real changes re-render")
}

func TestDecorationSetRemap(t *testing.T) {
	set := NewDecorationSet(30)
	set.Add(0, 3, "#a", "before")
	set.Add(10, 14, "#b", "deleted")
	set.Add(8, 12, "#c", "partial")
	set.Add(20, 25, "#d", "after")

	// Delete [9, 15).
	set.Remap(Mapping{{From: 9, To: 15, Insert: 0}})

	got := map[string]Range{}
	for _, deco := range set.All() {
		got[deco.AnnotationID] = deco.Range()
	}
	assert.Equal(t, map[string]Range{
		"before":  {0, 3},
		"partial": {8, 9},
		"after":   {14, 19},
	}, got)
}

func TestDecorationSetRemapInsertion(t *testing.T) {
	set := NewDecorationSet(20)
	set.Add(5, 10, "#a", "x")

	// Insertions at either edge stay outside the highlight.
	set.Remap(Mapping{{From: 5, To: 5, Insert: 2}})
	assert.Equal(t, Range{7, 12}, set.All()[0].Range())

	set.Remap(Mapping{{From: 12, To: 12, Insert: 3}})
	assert.Equal(t, Range{7, 12}, set.All()[0].Range())

	// An insertion inside grows it.
	set.Remap(Mapping{{From: 9, To: 9, Insert: 4}})
	assert.Equal(t, Range{7, 16}, set.All()[0].Range())
}

func TestEditMap(t *testing.T) {
	edit := Edit{From: 5, To: 10, Insert: 2}

	assert.Equal(t, 3, edit.Map(3, 1))
	assert.Equal(t, 5, edit.Map(5, 1), "start of deleted range sticks left")
	assert.Equal(t, 7, edit.Map(10, -1), "end of deleted range sticks right")
	assert.Equal(t, 5, edit.Map(7, -1))
	assert.Equal(t, 7, edit.Map(7, 1))
	assert.Equal(t, 9, edit.Map(12, -1))

	mapping := Mapping{{From: 0, To: 0, Insert: 1}, {From: 4, To: 6, Insert: 0}}
	assert.Equal(t, 4, mapping.Map(5, 1))
	assert.Equal(t, 8, mapping.Map(9, 1))
}
