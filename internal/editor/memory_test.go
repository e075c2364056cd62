package editor

import (
	"context"
	"errors"
	"testing"
)

func TestPositionCompare(t *testing.T) {
	tests := []struct {
		a, b Position
		want int
	}{
		{Position{1, 1}, Position{1, 1}, 0},
		{Position{1, 2}, Position{1, 3}, -1},
		{Position{2, 1}, Position{1, 9}, 1},
		{Position{3, 5}, Position{4, 1}, -1},
	}

	for _, tt := range tests {
		if got := tt.a.Compare(tt.b); got != tt.want {
			t.Errorf("%v.Compare(%v) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestExtent(t *testing.T) {
	tests := []struct {
		name  string
		start Position
		text  string
		want  Position
	}{
		{"empty", Position{3, 4}, "", Position{3, 4}},
		{"single line", Position{3, 4}, "abc", Position{3, 7}},
		{"trailing newline", Position{3, 4}, "abc\n", Position{4, 1}},
		{"multi line", Position{1, 10}, "ab\ncd\nefg", Position{3, 4}},
		{"runes", Position{1, 1}, "héllo", Position{1, 6}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Extent(tt.start, tt.text); got != tt.want {
				t.Errorf("Extent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMemoryDocumentApplyEdit(t *testing.T) {
	doc := NewMemoryDocument("go", "hello\nworld")

	var events []ChangeEvent
	sub := doc.OnDidChangeContent(func(e ChangeEvent) {
		events = append(events, e)
	})
	defer sub.Dispose()

	err := doc.ApplyEdit(Range{Start: Position{1, 6}, End: Position{2, 1}}, ", ")
	if err != nil {
		t.Fatalf("ApplyEdit() error = %v", err)
	}

	if got := doc.Text(); got != "hello, world" {
		t.Errorf("Text() = %q, want %q", got, "hello, world")
	}
	if got := doc.Cursor(); got != (Position{1, 8}) {
		t.Errorf("Cursor() = %v, want (1,8)", got)
	}
	if doc.Version() != 2 {
		t.Errorf("Version() = %d, want 2", doc.Version())
	}
	if len(events) != 1 || events[0].Changes[0].Text != ", " {
		t.Errorf("events = %+v, want one change inserting \", \"", events)
	}
}

func TestMemoryDocumentInvalidRange(t *testing.T) {
	doc := NewMemoryDocument("go", "abc")

	err := doc.Insert(Position{1, 5}, "x")
	if !errors.Is(err, ErrInvalidRange) {
		t.Errorf("Insert() error = %v, want ErrInvalidRange", err)
	}
	err = doc.Insert(Position{2, 1}, "x")
	if !errors.Is(err, ErrInvalidRange) {
		t.Errorf("Insert() error = %v, want ErrInvalidRange", err)
	}
}

func TestMemoryDocumentType(t *testing.T) {
	doc := NewMemoryDocument("go", "x := ")
	doc.SetCursor(Position{1, 6})

	var changes int
	doc.OnDidChangeContent(func(ChangeEvent) { changes++ })

	if err := doc.Type("42"); err != nil {
		t.Fatalf("Type() error = %v", err)
	}
	if doc.Text() != "x := 42" {
		t.Errorf("Text() = %q, want %q", doc.Text(), "x := 42")
	}
	if changes != 2 {
		t.Errorf("changes = %d, want 2", changes)
	}
}

func TestTextBetween(t *testing.T) {
	doc := NewMemoryDocument("go", "func main() {\n\tfmt.Println()\n}")

	tests := []struct {
		start, end Position
		want       string
	}{
		{Position{1, 6}, Position{1, 10}, "main"},
		{Position{1, 13}, Position{2, 5}, "{\n\tfmt"},
		{Position{2, 1}, Position{2, 1}, ""},
		{Position{2, 3}, Position{1, 1}, ""},
	}

	for _, tt := range tests {
		if got := TextBetween(doc, tt.start, tt.end); got != tt.want {
			t.Errorf("TextBetween(%v, %v) = %q, want %q", tt.start, tt.end, got, tt.want)
		}
	}
}

func TestMemoryHostSources(t *testing.T) {
	host := NewMemoryHost()
	doc := NewMemoryDocument("go", "")

	d := host.RegisterInlineSource("go", InlineSourceFunc(func(context.Context, Document, Position) (InlineItem, bool) {
		return InlineItem{Text: "ghost"}, true
	}))

	item, ok := host.Query(context.Background(), doc, Position{1, 1})
	if !ok || item.Text != "ghost" {
		t.Errorf("Query() = %+v, %v, want ghost", item, ok)
	}

	d.Dispose()
	d.Dispose()
	if host.SourceCount("go") != 0 {
		t.Errorf("SourceCount() = %d, want 0", host.SourceCount("go"))
	}
	if _, ok := host.Query(context.Background(), doc, Position{1, 1}); ok {
		t.Error("Query() should find nothing after Dispose")
	}
}

func TestDetectLanguageID(t *testing.T) {
	tests := map[string]string{
		"main.go":    "go",
		"app.TSX":    "typescriptreact",
		"notes.md":   "markdown",
		"script.lua": "lua",
		"README":     "plaintext",
	}
	for path, want := range tests {
		if got := DetectLanguageID(path); got != want {
			t.Errorf("DetectLanguageID(%q) = %q, want %q", path, got, want)
		}
	}
}
