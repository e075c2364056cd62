package editor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// ErrInvalidRange is returned when an edit addresses text outside the
// document.
var ErrInvalidRange = errors.New("invalid range")

// MemoryDocument is a line-based in-memory Document. It backs the CLI and
// the tests of the packages that consume Document.
type MemoryDocument struct {
	mu       sync.Mutex
	lines    []string
	cursor   Position
	version  uint64
	language string

	nextID          uint64
	changeListeners map[uint64]func(ChangeEvent)
	saveListeners   map[uint64]func()
}

// NewMemoryDocument creates a document holding text.
func NewMemoryDocument(languageID, text string) *MemoryDocument {
	return &MemoryDocument{
		lines:           splitLines(text),
		cursor:          Position{Line: 1, Column: 1},
		version:         1,
		language:        languageID,
		changeListeners: make(map[uint64]func(ChangeEvent)),
		saveListeners:   make(map[uint64]func()),
	}
}

// Text returns the full document text.
func (d *MemoryDocument) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return strings.Join(d.lines, "\n")
}

// SetText replaces the whole document and notifies listeners with a single
// change covering the old content.
func (d *MemoryDocument) SetText(text string) {
	d.mu.Lock()
	last := len(d.lines)
	old := Range{
		Start: Position{Line: 1, Column: 1},
		End:   Position{Line: last, Column: RuneLen(d.lines[last-1]) + 1},
	}
	d.mu.Unlock()

	_ = d.ApplyEdit(old, text)
}

// LineCount returns the number of lines.
func (d *MemoryDocument) LineCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.lines)
}

// LineContent returns the text of a 1-based line.
func (d *MemoryDocument) LineContent(line int) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if line < 1 || line > len(d.lines) {
		return "", false
	}
	return d.lines[line-1], true
}

// ApplyEdit replaces r with text, bumps the version, moves the cursor to
// the end of the inserted text and notifies content listeners.
func (d *MemoryDocument) ApplyEdit(r Range, text string) error {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	d.mu.Lock()
	if err := d.checkRangeLocked(r); err != nil {
		d.mu.Unlock()
		return err
	}

	startLine := []rune(d.lines[r.Start.Line-1])
	endLine := []rune(d.lines[r.End.Line-1])
	head := string(startLine[:r.Start.Column-1])
	tail := string(endLine[r.End.Column-1:])

	inserted := splitLines(head + text + tail)
	lines := make([]string, 0, len(d.lines)-(r.End.Line-r.Start.Line)+len(inserted)-1)
	lines = append(lines, d.lines[:r.Start.Line-1]...)
	lines = append(lines, inserted...)
	lines = append(lines, d.lines[r.End.Line:]...)
	d.lines = lines

	d.version++
	d.cursor = Extent(r.Start, text)

	event := ChangeEvent{
		Changes: []Change{{Range: r, Text: text}},
		Version: d.version,
	}
	listeners := make([]func(ChangeEvent), 0, len(d.changeListeners))
	for _, fn := range d.changeListeners {
		listeners = append(listeners, fn)
	}
	d.mu.Unlock()

	for _, fn := range listeners {
		fn(event)
	}
	return nil
}

// Insert inserts text at pos.
func (d *MemoryDocument) Insert(pos Position, text string) error {
	return d.ApplyEdit(Range{Start: pos, End: pos}, text)
}

// Type inserts text at the cursor one rune at a time, the way keystrokes
// arrive from the host.
func (d *MemoryDocument) Type(text string) error {
	for _, r := range text {
		if err := d.Insert(d.Cursor(), string(r)); err != nil {
			return err
		}
	}
	return nil
}

// Cursor returns the cursor position.
func (d *MemoryDocument) Cursor() Position {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cursor
}

// SetCursor moves the cursor, clamped to the document.
func (d *MemoryDocument) SetCursor(pos Position) {
	d.mu.Lock()
	defer d.mu.Unlock()

	pos.Line = clamp(pos.Line, 1, len(d.lines))
	pos.Column = clamp(pos.Column, 1, RuneLen(d.lines[pos.Line-1])+1)
	d.cursor = pos
}

// Version returns the content version.
func (d *MemoryDocument) Version() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.version
}

// LanguageID returns the document language.
func (d *MemoryDocument) LanguageID() string {
	return d.language
}

// OnDidChangeContent registers a change listener.
func (d *MemoryDocument) OnDidChangeContent(fn func(ChangeEvent)) Disposable {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.nextID
	d.nextID++
	d.changeListeners[id] = fn

	return OnDispose(func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.changeListeners, id)
	})
}

// OnDidSave registers a save listener.
func (d *MemoryDocument) OnDidSave(fn func()) Disposable {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.nextID
	d.nextID++
	d.saveListeners[id] = fn

	return OnDispose(func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.saveListeners, id)
	})
}

// Save notifies save listeners. Persisting the text is the caller's job.
func (d *MemoryDocument) Save() {
	d.mu.Lock()
	listeners := make([]func(), 0, len(d.saveListeners))
	for _, fn := range d.saveListeners {
		listeners = append(listeners, fn)
	}
	d.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

func (d *MemoryDocument) checkRangeLocked(r Range) error {
	for _, p := range []Position{r.Start, r.End} {
		if p.Line < 1 || p.Line > len(d.lines) {
			return fmt.Errorf("%w: line %d", ErrInvalidRange, p.Line)
		}
		if p.Column < 1 || p.Column > RuneLen(d.lines[p.Line-1])+1 {
			return fmt.Errorf("%w: column %d on line %d", ErrInvalidRange, p.Column, p.Line)
		}
	}
	if r.End.Before(r.Start) {
		return fmt.Errorf("%w: end before start", ErrInvalidRange)
	}
	return nil
}

func splitLines(text string) []string {
	return strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
}

// MemoryHost is a Host that keeps inline sources in memory and counts
// trigger requests. Query plays the role of the host's suggestion widget.
type MemoryHost struct {
	mu       sync.Mutex
	nextID   uint64
	sources  map[string]map[uint64]InlineSource
	triggers int

	// OnTrigger, when set, runs after every TriggerSuggest.
	OnTrigger func()
}

// NewMemoryHost creates an empty host.
func NewMemoryHost() *MemoryHost {
	return &MemoryHost{
		sources: make(map[string]map[uint64]InlineSource),
	}
}

// RegisterInlineSource registers src for languageID.
func (h *MemoryHost) RegisterInlineSource(languageID string, src InlineSource) Disposable {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	if h.sources[languageID] == nil {
		h.sources[languageID] = make(map[uint64]InlineSource)
	}
	h.sources[languageID][id] = src

	return OnDispose(func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.sources[languageID], id)
		if len(h.sources[languageID]) == 0 {
			delete(h.sources, languageID)
		}
	})
}

// SourceCount returns the number of sources registered for languageID.
func (h *MemoryHost) SourceCount(languageID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sources[languageID])
}

// TriggerSuggest records a trigger request.
func (h *MemoryHost) TriggerSuggest() {
	h.mu.Lock()
	h.triggers++
	fn := h.OnTrigger
	h.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Triggers returns how many times TriggerSuggest was called.
func (h *MemoryHost) Triggers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.triggers
}

// Query asks every source registered for the document language and returns
// the first answer.
func (h *MemoryHost) Query(ctx context.Context, doc Document, pos Position) (InlineItem, bool) {
	h.mu.Lock()
	srcs := make([]InlineSource, 0, len(h.sources[doc.LanguageID()]))
	for _, src := range h.sources[doc.LanguageID()] {
		srcs = append(srcs, src)
	}
	h.mu.Unlock()

	for _, src := range srcs {
		if ctx.Err() != nil {
			return InlineItem{}, false
		}
		if item, ok := src.ProvideInline(ctx, doc, pos); ok {
			return item, true
		}
	}
	return InlineItem{}, false
}

// DetectLanguageID maps a file path to a language identifier.
func DetectLanguageID(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		return "go"
	case ".rs":
		return "rust"
	case ".ts":
		return "typescript"
	case ".tsx":
		return "typescriptreact"
	case ".js", ".mjs", ".cjs":
		return "javascript"
	case ".jsx":
		return "javascriptreact"
	case ".py":
		return "python"
	case ".rb":
		return "ruby"
	case ".java":
		return "java"
	case ".c", ".h":
		return "c"
	case ".cpp", ".cc", ".cxx", ".hpp":
		return "cpp"
	case ".cs":
		return "csharp"
	case ".lua":
		return "lua"
	case ".sh", ".bash":
		return "shellscript"
	case ".sql":
		return "sql"
	case ".html", ".htm":
		return "html"
	case ".css":
		return "css"
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	case ".toml":
		return "toml"
	case ".md", ".markdown":
		return "markdown"
	default:
		return "plaintext"
	}
}
