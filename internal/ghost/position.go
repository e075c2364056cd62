package ghost

import (
	"strings"

	"github.com/dshills/ghostpad/internal/editor"
)

// Relation describes where an edit lies relative to an anchor.
type Relation uint8

const (
	// RelationAfter means the edit starts at or after the anchor. The
	// anchor does not move; an edit starting exactly at the anchor is the
	// user typing into the ghost region.
	RelationAfter Relation = iota

	// RelationBefore means the edit ends at or before the anchor. The
	// anchor moves by the edit's size.
	RelationBefore

	// RelationOverlap means the edited range encloses or crosses the
	// anchor. The anchor does not move; the entry is in contact with user
	// input.
	RelationOverlap
)

// String returns the relation name.
func (r Relation) String() string {
	switch r {
	case RelationAfter:
		return "after"
	case RelationBefore:
		return "before"
	case RelationOverlap:
		return "overlap"
	default:
		return "unknown"
	}
}

// Shift computes where anchor ends up after edit (a range in pre-edit
// coordinates) is replaced by inserted.
func Shift(anchor editor.Position, edit editor.Range, inserted string) (editor.Position, Relation) {
	if !edit.Start.Before(anchor) {
		return anchor, RelationAfter
	}
	if edit.End.After(anchor) {
		return anchor, RelationOverlap
	}

	linesRemoved := edit.End.Line - edit.Start.Line
	linesInserted := strings.Count(inserted, "\n")

	if edit.End.Line < anchor.Line {
		anchor.Line += linesInserted - linesRemoved
		return anchor, RelationBefore
	}

	// The edit ends on the anchor line: the anchor keeps its distance from
	// the end of the edit.
	tail := anchor.Column - edit.End.Column
	end := editor.Extent(edit.Start, inserted)
	return editor.Position{Line: end.Line, Column: end.Column + tail}, RelationBefore
}
