// Package editor defines the capabilities the ghost-text engine and the
// completion pipeline consume from the host text editor.
//
// The host widget itself (rendering, highlighting, key handling) lives
// outside this module. Everything here is addressed with 1-based lines and
// 1-based columns counted in runes, the way the host reports positions.
package editor

import (
	"context"
	"strings"
	"sync"
	"unicode/utf8"
)

// Position is a location in a document. Line and Column are 1-based.
type Position struct {
	Line   int
	Column int
}

// Compare returns -1, 0 or 1 when p is before, equal to or after o.
func (p Position) Compare(o Position) int {
	switch {
	case p.Line < o.Line:
		return -1
	case p.Line > o.Line:
		return 1
	case p.Column < o.Column:
		return -1
	case p.Column > o.Column:
		return 1
	default:
		return 0
	}
}

// Before reports whether p is strictly before o.
func (p Position) Before(o Position) bool {
	return p.Compare(o) < 0
}

// After reports whether p is strictly after o.
func (p Position) After(o Position) bool {
	return p.Compare(o) > 0
}

// Range is a half-open span [Start, End) of a document.
type Range struct {
	Start Position
	End   Position
}

// IsEmpty returns true if the range selects nothing.
func (r Range) IsEmpty() bool {
	return r.Start == r.End
}

// Contains returns true if pos lies in [Start, End).
func (r Range) Contains(pos Position) bool {
	return !pos.Before(r.Start) && pos.Before(r.End)
}

// Change is a single content change: Range (in pre-edit coordinates) was
// replaced with Text.
type Change struct {
	Range Range
	Text  string
}

// ChangeEvent is delivered to content listeners after an edit is applied.
type ChangeEvent struct {
	Changes []Change
	Version uint64
}

// Disposable releases a registration.
type Disposable interface {
	Dispose()
}

type onceDisposable struct {
	once sync.Once
	fn   func()
}

func (d *onceDisposable) Dispose() {
	d.once.Do(d.fn)
}

// OnDispose wraps fn so that it runs at most once no matter how many times
// Dispose is called.
func OnDispose(fn func()) Disposable {
	if fn == nil {
		fn = func() {}
	}
	return &onceDisposable{fn: fn}
}

// Document is the text buffer capability.
type Document interface {
	// Text returns the full document text.
	Text() string
	// SetText replaces the whole document.
	SetText(text string)
	// LineCount returns the number of lines (at least 1).
	LineCount() int
	// LineContent returns the text of a line without its terminator.
	LineContent(line int) (string, bool)
	// ApplyEdit replaces r with text and moves the cursor to the end of the
	// inserted text.
	ApplyEdit(r Range, text string) error
	// Cursor returns the primary cursor position.
	Cursor() Position
	// SetCursor moves the primary cursor.
	SetCursor(pos Position)
	// Version increments on every content change.
	Version() uint64
	// LanguageID identifies the buffer language (e.g. "go").
	LanguageID() string
	// OnDidChangeContent registers a listener for content changes.
	OnDidChangeContent(fn func(ChangeEvent)) Disposable
	// OnDidSave registers a listener for save events.
	OnDidSave(fn func()) Disposable
}

// InlineItem is one inline suggestion to render as a preview at a position.
type InlineItem struct {
	Text  string
	Range Range
	Label string
}

// InlineSource answers inline-suggestion queries for a cursor position.
// ctx is cancelled by the host when the query is superseded.
type InlineSource interface {
	ProvideInline(ctx context.Context, doc Document, pos Position) (InlineItem, bool)
}

// InlineSourceFunc adapts a function to InlineSource.
type InlineSourceFunc func(ctx context.Context, doc Document, pos Position) (InlineItem, bool)

// ProvideInline implements InlineSource.
func (f InlineSourceFunc) ProvideInline(ctx context.Context, doc Document, pos Position) (InlineItem, bool) {
	return f(ctx, doc, pos)
}

// Host is the editor surface that renders inline suggestions.
type Host interface {
	// RegisterInlineSource registers src for documents of languageID.
	RegisterInlineSource(languageID string, src InlineSource) Disposable
	// TriggerSuggest asks the surface to re-query its inline sources.
	TriggerSuggest()
}

// RuneLen returns the number of runes in s.
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}

// Extent returns the position just past text when it is inserted at start.
func Extent(start Position, text string) Position {
	lines := strings.Split(text, "\n")
	if len(lines) == 1 {
		return Position{Line: start.Line, Column: start.Column + RuneLen(text)}
	}
	return Position{
		Line:   start.Line + len(lines) - 1,
		Column: RuneLen(lines[len(lines)-1]) + 1,
	}
}

// LineEnd returns the column just past the last rune of line, or 0 if the
// line does not exist.
func LineEnd(doc Document, line int) int {
	if doc == nil {
		return 0
	}
	content, ok := doc.LineContent(line)
	if !ok {
		return 0
	}
	return RuneLen(content) + 1
}

// TextBetween returns the document text in [start, end). It returns "" when
// end is not after start or either position is outside the document.
func TextBetween(doc Document, start, end Position) string {
	if doc == nil || !start.Before(end) {
		return ""
	}

	var b strings.Builder
	for line := start.Line; line <= end.Line; line++ {
		content, ok := doc.LineContent(line)
		if !ok {
			return b.String()
		}
		runes := []rune(content)

		from := 0
		if line == start.Line {
			from = clamp(start.Column-1, 0, len(runes))
		}
		to := len(runes)
		if line == end.Line {
			to = clamp(end.Column-1, from, len(runes))
		}
		b.WriteString(string(runes[from:to]))
		if line != end.Line {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Valid reports whether pos addresses an existing line and a column no
// further than that line's end.
func Valid(doc Document, pos Position) bool {
	if doc == nil || pos.Line < 1 || pos.Column < 1 {
		return false
	}
	end := LineEnd(doc, pos.Line)
	return end > 0 && pos.Column <= end
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
