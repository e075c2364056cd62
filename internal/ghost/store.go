package ghost

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dshills/ghostpad/internal/editor"
	"github.com/dshills/ghostpad/internal/logging"
	"github.com/dshills/ghostpad/internal/schedule"
)

// Defaults for Store timing and thresholds.
const (
	DefaultTriggerDelay   = 20 * time.Millisecond
	DefaultMergeDebounce  = 100 * time.Millisecond
	DefaultRetriggerRatio = 0.7
)

var (
	// ErrNoGhostText is returned when no entry matches the cursor.
	ErrNoGhostText = errors.New("no ghost text at cursor")

	// ErrLineComplete is returned by AcceptCurrentLine when the current line
	// of the matching entry has already been typed.
	ErrLineComplete = errors.New("line already complete")

	// ErrClosed is returned after the store was closed.
	ErrClosed = errors.New("ghost store closed")
)

// Entry is one ghost-text insertion.
type Entry struct {
	// ID is a monotonic handle.
	ID uint64

	// OriginalText is the full text the entry represents.
	OriginalText string

	// OriginalPosition is the anchor user input is compared from.
	OriginalPosition editor.Position

	// CurrentPosition is where the untyped remainder would be inserted.
	CurrentPosition editor.Position

	// Typed is the user input last seen at the anchor.
	Typed string

	// Matched is how many leading runes of OriginalText Typed matches.
	Matched int

	provider editor.Disposable
}

// Remaining returns the untyped suffix of the entry.
func (e Entry) Remaining() string {
	runes := []rune(e.OriginalText)
	if e.Matched >= len(runes) {
		return ""
	}
	return string(runes[e.Matched:])
}

// Extent returns the end of the entry's virtual text.
func (e Entry) Extent() editor.Position {
	return editor.Extent(e.OriginalPosition, e.OriginalText)
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for debounce timers.
func WithClock(c schedule.Clock) Option {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) {
		s.log = l.WithComponent("ghost")
	}
}

// WithTriggerDelay sets the delay before re-querying the suggestion surface.
func WithTriggerDelay(d time.Duration) Option {
	return func(s *Store) {
		if d >= 0 {
			s.triggerDelay = d
		}
	}
}

// WithMergeDebounce sets the quiet period before queued requests are created.
func WithMergeDebounce(d time.Duration) Option {
	return func(s *Store) {
		if d >= 0 {
			s.mergeDebounce = d
		}
	}
}

// WithRetriggerRatio sets the typed fraction above which every keystroke
// re-queries the suggestion surface.
func WithRetriggerRatio(r float64) Option {
	return func(s *Store) {
		if r > 0 && r <= 1 {
			s.retriggerRatio = r
		}
	}
}

type pendingRequest struct {
	text string
	rng  editor.Range
}

// Store owns the ghost entries of one document. It is created when the
// editor view mounts and closed when it unmounts.
//
// Store never calls into the document or host while holding its lock,
// because the host may synchronously re-enter through change events.
type Store struct {
	mu      sync.Mutex
	doc     editor.Document
	host    editor.Host
	entries map[uint64]*Entry
	nextID  uint64
	closed  bool
	pending []pendingRequest

	clock          schedule.Clock
	triggerTask    *schedule.Task
	mergeTask      *schedule.Task
	triggerDelay   time.Duration
	mergeDebounce  time.Duration
	retriggerRatio float64

	subs []editor.Disposable
	log  *logging.Logger
}

// NewStore creates a store bound to doc and host and subscribes it to the
// document's change and save events.
func NewStore(doc editor.Document, host editor.Host, opts ...Option) *Store {
	s := &Store{
		doc:            doc,
		host:           host,
		entries:        make(map[uint64]*Entry),
		nextID:         1,
		clock:          schedule.Real(),
		triggerDelay:   DefaultTriggerDelay,
		mergeDebounce:  DefaultMergeDebounce,
		retriggerRatio: DefaultRetriggerRatio,
		log:            logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.triggerTask = schedule.NewTask(s.clock)
	s.mergeTask = schedule.NewTask(s.clock)

	if doc != nil {
		s.subs = append(s.subs,
			doc.OnDidChangeContent(func(e editor.ChangeEvent) {
				s.HandleChanges(e.Changes)
			}),
			doc.OnDidSave(s.ClearAll),
		)
	}
	return s
}

// Close disposes every registration and timer. The store is inert
// afterwards.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	subs := s.subs
	s.subs = nil
	disposables := s.takeAllLocked()
	s.pending = nil
	s.mu.Unlock()

	s.triggerTask.Cancel()
	s.mergeTask.Cancel()
	for _, d := range subs {
		d.Dispose()
	}
	disposeAll(disposables)
}

// Create adds ghost text covering rng, merging it with adjacent entries
// first. If rng is empty its end is derived from text. It returns the id
// of the resulting entry.
func (s *Store) Create(text string, rng editor.Range) (uint64, bool) {
	if text == "" {
		return 0, false
	}
	if !rng.End.After(rng.Start) {
		rng.End = editor.Extent(rng.Start, text)
	}

	s.mu.Lock()
	if s.closed || s.doc == nil {
		s.mu.Unlock()
		return 0, false
	}

	anchor := rng.Start
	var absorbed []editor.Disposable
	if merged, ok := Merge(text, rng, s.candidatesLocked(), s.lineEnd); ok {
		text = merged.Text
		anchor = merged.Anchor
		for _, id := range merged.Absorbed {
			if e, ok := s.entries[id]; ok {
				absorbed = append(absorbed, e.provider)
				delete(s.entries, id)
			}
		}
		s.log.Debug("merged %d entries into new ghost text at %d:%d", len(merged.Absorbed), anchor.Line, anchor.Column)
	}

	id := s.nextID
	s.nextID++
	s.entries[id] = &Entry{
		ID:               id,
		OriginalText:     text,
		OriginalPosition: anchor,
		CurrentPosition:  anchor,
	}
	host := s.host
	language := s.doc.LanguageID()
	s.mu.Unlock()

	disposeAll(absorbed)

	if host != nil {
		provider := host.RegisterInlineSource(language, editor.InlineSourceFunc(s.provide))
		s.mu.Lock()
		if e, ok := s.entries[id]; ok {
			e.provider = provider
			provider = nil
		}
		s.mu.Unlock()
		if provider != nil {
			// Entry was removed before registration finished.
			provider.Dispose()
		}
	}

	s.scheduleTrigger()
	return id, true
}

// Enqueue queues a ghost insertion. Queued requests are created in order
// once no new request has arrived for the merge debounce period.
func (s *Store) Enqueue(text string, rng editor.Range) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.pending = append(s.pending, pendingRequest{text: text, rng: rng})
	s.mu.Unlock()

	s.mergeTask.Schedule(s.mergeDebounce, s.flush)
}

func (s *Store) flush() {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, req := range pending {
		s.Create(req.text, req.rng)
	}
}

// HandleChanges updates every entry for a batch of document changes.
func (s *Store) HandleChanges(changes []editor.Change) {
	s.mu.Lock()
	if s.closed || s.doc == nil || len(s.entries) == 0 {
		s.mu.Unlock()
		return
	}

	retrigger := false
	var removed []editor.Disposable

	for _, change := range changes {
		for id, e := range s.entries {
			shifted, rel := Shift(e.OriginalPosition, change.Range, change.Text)
			if rel == RelationBefore {
				e.OriginalPosition = shifted
				e.CurrentPosition, _ = Shift(e.CurrentPosition, change.Range, change.Text)
				continue
			}

			// Only edits starting inside the typed region touch the
			// ghost; anything later in the document leaves it alone.
			typedEnd := editor.Extent(e.OriginalPosition, e.Typed)
			if rel == RelationAfter && typedEnd.Before(change.Range.Start) {
				continue
			}

			end := editor.Extent(change.Range.Start, change.Text)
			if end.Before(e.OriginalPosition) {
				end = e.OriginalPosition
			}
			if tail, trel := Shift(typedEnd, change.Range, change.Text); trel == RelationBefore && end.Before(tail) {
				end = tail
			}
			wasTyped := e.Typed
			e.Typed = editor.TextBetween(s.doc, e.OriginalPosition, end)
			e.Matched = matchCount(e.Typed, e.OriginalText)
			e.CurrentPosition = editor.Extent(e.OriginalPosition, e.Typed)

			if e.Typed == e.OriginalText {
				s.log.Debug("ghost text %d fully typed", id)
				removed = append(removed, e.provider)
				delete(s.entries, id)
				retrigger = true
				continue
			}

			total := editor.RuneLen(e.OriginalText)
			ratio := float64(e.Matched) / float64(total)
			if ratio >= s.retriggerRatio || (e.Typed == "" && wasTyped != "") {
				retrigger = true
			}
		}
	}

	for id, e := range s.entries {
		if !editor.Valid(s.doc, e.OriginalPosition) {
			s.log.Debug("ghost text %d anchor destroyed", id)
			removed = append(removed, e.provider)
			delete(s.entries, id)
		}
	}
	s.mu.Unlock()

	disposeAll(removed)
	if retrigger {
		s.scheduleTrigger()
	}
}

// Suggest returns the untyped remainder of the entry that best matches pos.
func (s *Store) Suggest(pos editor.Position) (string, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, typed := s.bestMatchLocked(pos)
	if e == nil {
		return "", 0, false
	}
	return strings.TrimPrefix(e.OriginalText, typed), e.ID, true
}

// HasGhostAt reports whether ghost text is anchored at or offered at pos.
func (s *Store) HasGhostAt(pos editor.Position) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.OriginalPosition == pos || e.CurrentPosition == pos {
			return true
		}
	}
	e, _ := s.bestMatchLocked(pos)
	return e != nil
}

// AcceptCurrentLine inserts the rest of the current line of the matching
// entry at the cursor. Multi-line ghost text is consumed one line at a time.
func (s *Store) AcceptCurrentLine() (string, error) {
	return s.accept(func(remaining string) string {
		line, _, _ := strings.Cut(remaining, "\n")
		return line
	})
}

// AcceptAll inserts the whole remainder of the matching entry at the cursor.
func (s *Store) AcceptAll() (string, error) {
	return s.accept(func(remaining string) string {
		return remaining
	})
}

func (s *Store) accept(pick func(remaining string) string) (string, error) {
	s.mu.Lock()
	if s.closed || s.doc == nil {
		s.mu.Unlock()
		return "", ErrClosed
	}
	doc := s.doc
	pos := doc.Cursor()
	e, typed := s.bestMatchLocked(pos)
	if e == nil {
		s.mu.Unlock()
		return "", ErrNoGhostText
	}
	text := pick(strings.TrimPrefix(e.OriginalText, typed))
	s.mu.Unlock()

	if text == "" {
		return "", ErrLineComplete
	}
	if err := doc.ApplyEdit(editor.Range{Start: pos, End: pos}, text); err != nil {
		s.log.Warn("accept ghost text: %v", err)
		return "", err
	}
	return text, nil
}

// Clear removes one entry.
func (s *Store) Clear(id uint64) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if ok {
		delete(s.entries, id)
	}
	s.mu.Unlock()

	if ok && e.provider != nil {
		e.provider.Dispose()
	}
}

// ClearAll removes every entry. It runs on document save.
func (s *Store) ClearAll() {
	s.mu.Lock()
	disposables := s.takeAllLocked()
	s.mu.Unlock()

	disposeAll(disposables)
}

// RestoreAll commits the untyped remainder of every entry as real text at
// its current position and clears the store. It returns the number of
// entries written.
func (s *Store) RestoreAll() int {
	s.mu.Lock()
	if s.closed || s.doc == nil {
		s.mu.Unlock()
		return 0
	}
	doc := s.doc
	entries := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, *e)
	}
	disposables := s.takeAllLocked()
	s.mu.Unlock()

	disposeAll(disposables)

	// Bottom-up so each insert leaves the positions above it intact.
	sort.Slice(entries, func(i, j int) bool {
		return entries[j].CurrentPosition.Before(entries[i].CurrentPosition)
	})

	restored := 0
	for _, e := range entries {
		text := e.Remaining()
		if text == "" || !editor.Valid(doc, e.CurrentPosition) {
			continue
		}
		at := editor.Range{Start: e.CurrentPosition, End: e.CurrentPosition}
		if err := doc.ApplyEdit(at, text); err != nil {
			s.log.Warn("restore ghost text %d: %v", e.ID, err)
			continue
		}
		restored++
	}
	return restored
}

// Entries returns a snapshot of the active entries ordered by id.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		snap := *e
		snap.provider = nil
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of active entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// provide is the inline source registered for each entry. Sources are
// registered per language, so queries for other documents are ignored.
func (s *Store) provide(_ context.Context, doc editor.Document, pos editor.Position) (editor.InlineItem, bool) {
	s.mu.Lock()
	own := s.doc
	s.mu.Unlock()
	if doc != own {
		return editor.InlineItem{}, false
	}
	text, _, ok := s.Suggest(pos)
	if !ok || text == "" {
		return editor.InlineItem{}, false
	}
	return editor.InlineItem{
		Text:  text,
		Range: editor.Range{Start: pos, End: pos},
	}, true
}

func (s *Store) scheduleTrigger() {
	s.mu.Lock()
	host, closed := s.host, s.closed
	s.mu.Unlock()
	if host == nil || closed {
		return
	}
	s.triggerTask.Schedule(s.triggerDelay, host.TriggerSuggest)
}

// bestMatchLocked picks the entry whose text the input between its anchor
// and pos is a proper prefix of, scoring by line proximity and by how much
// has been typed.
func (s *Store) bestMatchLocked(pos editor.Position) (*Entry, string) {
	if s.closed || s.doc == nil {
		return nil, ""
	}

	var (
		best      *Entry
		bestTyped string
		bestScore float64
	)
	for _, e := range s.entries {
		if pos.Before(e.OriginalPosition) {
			continue
		}
		typed := editor.TextBetween(s.doc, e.OriginalPosition, pos)
		if typed == e.OriginalText || !strings.HasPrefix(e.OriginalText, typed) {
			continue
		}

		score := matchScore(e, pos, typed)
		if best == nil || score > bestScore || (score == bestScore && e.ID < best.ID) {
			best, bestTyped, bestScore = e, typed, score
		}
	}
	return best, bestTyped
}

func matchScore(e *Entry, pos editor.Position, typed string) float64 {
	var score float64
	if e.OriginalPosition.Line == pos.Line {
		score = 1000
	} else {
		distance := pos.Line - e.OriginalPosition.Line
		score = 500 - float64(min(distance, 50))*10
	}
	if total := editor.RuneLen(e.OriginalText); total > 0 {
		score += 100 * float64(editor.RuneLen(typed)) / float64(total)
	}
	return score
}

func (s *Store) candidatesLocked() []Candidate {
	out := make([]Candidate, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, Candidate{ID: e.ID, Text: e.OriginalText, Anchor: e.OriginalPosition})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// lineEnd is only called under s.mu from Create.
func (s *Store) lineEnd(line int) int {
	return editor.LineEnd(s.doc, line)
}

func (s *Store) takeAllLocked() []editor.Disposable {
	out := make([]editor.Disposable, 0, len(s.entries))
	for id, e := range s.entries {
		out = append(out, e.provider)
		delete(s.entries, id)
	}
	return out
}

func disposeAll(ds []editor.Disposable) {
	for _, d := range ds {
		if d != nil {
			d.Dispose()
		}
	}
}

// matchCount returns how many leading runes of typed equal those of want.
func matchCount(typed, want string) int {
	a, b := []rune(typed), []rune(want)
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}
