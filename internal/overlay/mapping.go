package overlay

// Edit replaces the runes in [From, To) with Insert new runes.
type Edit struct {
	From   int
	To     int
	Insert int
}

// Map moves a position of the pre-edit text into the post-edit text.
// assoc < 0 keeps positions on the left side of replaced or inserted
// content, assoc >= 0 moves them to the right side.
func (e Edit) Map(pos, assoc int) int {
	if pos < e.From {
		return pos
	}
	deleted := e.To - e.From
	if pos > e.To {
		return pos - deleted + e.Insert
	}
	side := assoc
	switch {
	case deleted == 0:
	case pos == e.From:
		side = -1
	case pos == e.To:
		side = 1
	}
	if side < 0 {
		return e.From
	}
	return e.From + e.Insert
}

// Mapping is a sequence of edits, each expressed against the text produced
// by the previous one.
type Mapping []Edit

// Map runs pos through every edit in order.
func (m Mapping) Map(pos, assoc int) int {
	for _, edit := range m {
		pos = edit.Map(pos, assoc)
	}
	return pos
}
