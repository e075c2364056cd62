package ghost

import (
	"strings"

	"github.com/dshills/ghostpad/internal/editor"
)

// Candidate is an existing entry considered for merging.
type Candidate struct {
	ID     uint64
	Text   string
	Anchor editor.Position
}

// MergeResult is the entry that replaces the new request and its absorbed
// neighbours.
type MergeResult struct {
	Text     string
	Anchor   editor.Position
	Absorbed []uint64
}

// LineEndFunc returns the column just past the end of a document line.
type LineEndFunc func(line int) int

// Merge finds entries adjacent to a new ghost insertion of text over rng and
// folds them into one. It returns false when nothing is adjacent, in which
// case the caller creates a fresh entry.
//
// Candidates are examined in order; the first left and first right
// neighbour win.
func Merge(text string, rng editor.Range, existing []Candidate, lineEnd LineEndFunc) (MergeResult, bool) {
	var (
		left, right           *Candidate
		leftCross, rightCross bool
	)

	for i := range existing {
		c := &existing[i]
		if left == nil {
			if adjacent, crossed := leftAdjacent(*c, rng, lineEnd); adjacent {
				left, leftCross = c, crossed
				continue
			}
		}
		if right == nil {
			if adjacent, crossed := rightAdjacent(*c, text, rng, lineEnd); adjacent {
				right, rightCross = c, crossed
			}
		}
	}

	if left == nil && right == nil {
		return MergeResult{}, false
	}

	var b strings.Builder
	result := MergeResult{Anchor: rng.Start}

	if left != nil {
		b.WriteString(left.Text)
		if leftCross {
			b.WriteByte('\n')
		}
		result.Anchor = left.Anchor
		result.Absorbed = append(result.Absorbed, left.ID)
	}

	b.WriteString(text)

	if right != nil {
		if rightCross {
			b.WriteByte('\n')
		}
		b.WriteString(right.Text)
		result.Absorbed = append(result.Absorbed, right.ID)
	}

	result.Text = b.String()
	return result, true
}

// leftAdjacent reports whether c ends where rng starts, either on the same
// line or at the end of the line above a column-1 start.
func leftAdjacent(c Candidate, rng editor.Range, lineEnd LineEndFunc) (adjacent, crossed bool) {
	end := editor.Extent(c.Anchor, c.Text)
	if end == rng.Start {
		return true, false
	}
	if rng.Start.Column == 1 && end.Line == rng.Start.Line-1 {
		if strings.Contains(c.Text, "\n") || reachesLineEnd(end, lineEnd) {
			return true, true
		}
	}
	return false, false
}

// rightAdjacent is the mirror of leftAdjacent against rng.End.
func rightAdjacent(c Candidate, text string, rng editor.Range, lineEnd LineEndFunc) (adjacent, crossed bool) {
	if c.Anchor == rng.End {
		return true, false
	}
	if c.Anchor.Column == 1 && c.Anchor.Line == rng.End.Line+1 {
		if strings.Contains(text, "\n") || reachesLineEnd(rng.End, lineEnd) {
			return true, true
		}
	}
	return false, false
}

func reachesLineEnd(pos editor.Position, lineEnd LineEndFunc) bool {
	if lineEnd == nil {
		return false
	}
	end := lineEnd(pos.Line)
	return end > 0 && pos.Column >= end
}
