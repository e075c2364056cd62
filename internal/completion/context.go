package completion

import (
	"strings"

	"github.com/dshills/ghostpad/internal/editor"
)

// LineKind classifies the line under the cursor.
type LineKind uint8

const (
	LineCode LineKind = iota
	LineComment
	LineString
)

// String returns the kind name.
func (k LineKind) String() string {
	switch k {
	case LineComment:
		return "comment"
	case LineString:
		return "string"
	default:
		return "code"
	}
}

// lineCommentPrefixes start a comment when they lead a trimmed line.
var lineCommentPrefixes = []string{"//", "/*", "*", "#", "--", "<!--", ";"}

// Context is the text around the cursor a request is built from.
type Context struct {
	// Prefix is the document text before the cursor, truncated to the
	// window from the left.
	Prefix string
	// Suffix is the document text after the cursor, truncated from the
	// right.
	Suffix string

	// Line is the full line under the cursor; Before and After split it at
	// the cursor.
	Line   string
	Before string
	After  string

	Kind     LineKind
	Language string
	Position editor.Position
	Version  uint64
}

// BuildContext captures the context window at pos. maxPrefix and maxSuffix
// are rune counts; zero or less means unbounded.
func BuildContext(doc editor.Document, pos editor.Position, maxPrefix, maxSuffix int) Context {
	line, _ := doc.LineContent(pos.Line)
	runes := []rune(line)
	col := clampCol(pos.Column-1, len(runes))
	before := string(runes[:col])
	after := string(runes[col:])

	last := doc.LineCount()
	start := editor.Position{Line: 1, Column: 1}
	end := editor.Position{Line: last, Column: editor.LineEnd(doc, last)}

	return Context{
		Prefix:   tailRunes(editor.TextBetween(doc, start, pos), maxPrefix),
		Suffix:   headRunes(editor.TextBetween(doc, pos, end), maxSuffix),
		Line:     line,
		Before:   before,
		After:    after,
		Kind:     ClassifyLine(line, before),
		Language: doc.LanguageID(),
		Position: pos,
		Version:  doc.Version(),
	}
}

// ClassifyLine reports whether the cursor sits in a comment, inside a
// string literal, or in code. before is the part of line left of the
// cursor.
func ClassifyLine(line, before string) LineKind {
	trimmed := strings.TrimSpace(line)
	for _, p := range lineCommentPrefixes {
		if strings.HasPrefix(trimmed, p) {
			return LineComment
		}
	}
	if strings.Contains(before, "//") && !insideString(before[:strings.Index(before, "//")]) {
		return LineComment
	}
	if insideString(before) {
		return LineString
	}
	return LineCode
}

// insideString reports whether s leaves a quote unbalanced. Escaped
// quotes do not count.
func insideString(s string) bool {
	var open rune
	escaped := false
	for _, r := range s {
		switch {
		case escaped:
			escaped = false
		case r == '\\' && open != '`':
			escaped = true
		case open == 0 && (r == '"' || r == '\'' || r == '`'):
			open = r
		case r == open:
			open = 0
		}
	}
	return open != 0
}

func clampCol(col, n int) int {
	if col < 0 {
		return 0
	}
	if col > n {
		return n
	}
	return col
}

func tailRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

func headRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
