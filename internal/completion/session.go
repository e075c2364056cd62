package completion

import (
	"context"
	"strings"
	"sync"

	"github.com/tidwall/match"

	"github.com/dshills/ghostpad/internal/config"
	"github.com/dshills/ghostpad/internal/config/notify"
	"github.com/dshills/ghostpad/internal/editor"
	"github.com/dshills/ghostpad/internal/logging"
)

// State is the session state.
type State uint8

const (
	StateIdle State = iota
	StateRequesting
	StateAccepted
	StateAbstained
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateAccepted:
		return "accepted"
	case StateAbstained:
		return "abstained"
	default:
		return "unknown"
	}
}

// AcceptKind selects how much of a pending suggestion to insert.
type AcceptKind uint8

const (
	// AcceptTab inserts the whole suggestion.
	AcceptTab AcceptKind = iota
	// AcceptWord inserts the next word (Right-Arrow).
	AcceptWord
	// AcceptLine inserts up to the end of the first line (End).
	AcceptLine
)

// PendingCompletion is an accepted suggestion waiting for the user.
type PendingCompletion struct {
	InsertText      string
	Label           string
	Anchor          editor.Position
	DocumentVersion uint64
}

// GhostChecker reports ghost text at a position.
type GhostChecker interface {
	HasGhostAt(pos editor.Position) bool
}

// AILoader reloads the AI settings.
type AILoader func(ctx context.Context) (config.AIConfig, error)

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithGhosts sets the ghost-text lookup used by the ghost-at-cursor guard.
func WithGhosts(g GhostChecker) SessionOption {
	return func(s *Session) {
		s.ghosts = g
	}
}

// WithAILoader sets how Reload fetches the AI settings.
func WithAILoader(l AILoader) SessionOption {
	return func(s *Session) {
		s.loader = l
	}
}

// WithNotifier makes the session reload on every ai.* change and on
// reload broadcasts.
func WithNotifier(n *notify.Notifier) SessionOption {
	return func(s *Session) {
		s.notifier = n
	}
}

// WithStateObserver registers fn for every state transition. fn runs
// without the session lock held.
func WithStateObserver(fn func(from, to State)) SessionOption {
	return func(s *Session) {
		s.observer = fn
	}
}

// WithSessionLogger sets the logger.
func WithSessionLogger(l *logging.Logger) SessionOption {
	return func(s *Session) {
		s.log = l.WithComponent("session")
	}
}

// Session drives inline completion for one editor view. It is created on
// mount and closed on unmount.
//
// The session registers itself as an inline source, runs at most one
// pipeline request at a time and holds the accepted suggestion until the
// user takes it, types, or moves away.
type Session struct {
	mu       sync.Mutex
	doc      editor.Document
	host     editor.Host
	pipeline *Pipeline
	ai       config.AIConfig

	state   State
	active  bool
	pending *PendingCompletion
	// applying is set while Accept edits the document, so the resulting
	// change event does not invalidate the remainder.
	applying bool
	closed   bool

	ghosts   GhostChecker
	loader   AILoader
	notifier *notify.Notifier
	observer func(from, to State)

	subs []editor.Disposable
	sub  *notify.Subscription
	log  *logging.Logger
}

// NewSession creates a session for doc and registers it with host.
func NewSession(doc editor.Document, host editor.Host, p *Pipeline, ai config.AIConfig, opts ...SessionOption) *Session {
	s := &Session{
		doc:      doc,
		host:     host,
		pipeline: p,
		ai:       ai,
		log:      logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if doc != nil {
		s.subs = append(s.subs, doc.OnDidChangeContent(func(e editor.ChangeEvent) {
			s.HandleChanges(e.Changes)
		}))
		if host != nil {
			s.subs = append(s.subs,
				host.RegisterInlineSource(doc.LanguageID(), editor.InlineSourceFunc(s.ProvideInline)))
		}
	}
	if s.notifier != nil {
		s.sub = s.notifier.SubscribePath("ai", func(c notify.Change) {
			if err := s.Reload(context.Background()); err != nil {
				s.log.Warn("reloading AI settings after %s of %s: %v", c.Type, c.Path, err)
			}
		})
	}
	return s
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pending returns the pending completion, if any.
func (s *Session) Pending() (PendingCompletion, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return PendingCompletion{}, false
	}
	return *s.pending, true
}

// AI returns the active AI configuration.
func (s *Session) AI() config.AIConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ai
}

// Reload fetches the AI settings through the loader and reconfigures the
// pipeline. Without a loader it is a no-op.
func (s *Session) Reload(ctx context.Context) error {
	s.mu.Lock()
	loader := s.loader
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if loader == nil {
		return nil
	}
	ai, err := loader(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.ai = ai
	s.mu.Unlock()

	if s.pipeline != nil {
		return s.pipeline.Configure(ai)
	}
	return nil
}

// Provide requests a suggestion at the cursor.
func (s *Session) Provide(ctx context.Context) (Suggestion, error) {
	if s.doc == nil {
		return Suggestion{}, ErrNoDocument
	}
	return s.provide(ctx, s.doc.Cursor())
}

// ProvideInline implements editor.InlineSource. It answers only for the
// session's own document.
func (s *Session) ProvideInline(ctx context.Context, doc editor.Document, pos editor.Position) (editor.InlineItem, bool) {
	if doc != s.doc {
		return editor.InlineItem{}, false
	}
	sug, err := s.provide(ctx, pos)
	if err != nil {
		return editor.InlineItem{}, false
	}
	return editor.InlineItem{
		Text:  sug.Text,
		Range: editor.Range{Start: pos, End: pos},
		Label: sug.Label,
	}, true
}

func (s *Session) provide(ctx context.Context, pos editor.Position) (Suggestion, error) {
	if err := s.guard(pos); err != nil {
		return Suggestion{}, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Suggestion{}, ErrClosed
	}
	if s.active {
		s.mu.Unlock()
		return Suggestion{}, ErrBusy
	}
	s.active = true
	s.pending = nil
	from := s.setStateLocked(StateRequesting)
	s.mu.Unlock()
	s.notifyState(from, StateRequesting)

	sug, err := s.pipeline.Complete(ctx, Request{Document: s.doc, Position: pos})
	if err == nil && (s.doc.Version() != sug.Version || s.doc.Cursor() != pos) {
		err = ErrStale
	}

	s.mu.Lock()
	s.active = false
	if err != nil || s.closed {
		if err == nil {
			err = ErrClosed
		}
		s.setStateLocked(StateAbstained)
		s.setStateLocked(StateIdle)
		s.mu.Unlock()
		s.notifyState(StateRequesting, StateAbstained)
		s.notifyState(StateAbstained, StateIdle)
		return Suggestion{}, err
	}
	s.pending = &PendingCompletion{
		InsertText:      sug.Text,
		Label:           sug.Label,
		Anchor:          pos,
		DocumentVersion: sug.Version,
	}
	s.setStateLocked(StateAccepted)
	s.mu.Unlock()
	s.notifyState(StateRequesting, StateAccepted)

	return sug, nil
}

// guard runs the cheap checks that keep a request from being issued.
func (s *Session) guard(pos editor.Position) error {
	s.mu.Lock()
	ai := s.ai
	closed := s.closed
	s.mu.Unlock()

	switch {
	case closed:
		return ErrClosed
	case s.doc == nil || s.pipeline == nil:
		return ErrNoDocument
	case !ai.Complete():
		return ErrNotConfigured
	}

	lang := s.doc.LanguageID()
	for _, pattern := range ai.ExcludeLanguages {
		if match.Match(lang, pattern) {
			return ErrExcludedLanguage
		}
	}
	if !hasTextBefore(s.doc, pos) {
		return ErrInsufficientContext
	}
	if s.ghosts != nil && s.ghosts.HasGhostAt(pos) {
		return ErrGhostAtCursor
	}
	return nil
}

// hasTextBefore reports whether anything but whitespace precedes pos.
func hasTextBefore(doc editor.Document, pos editor.Position) bool {
	line, ok := doc.LineContent(pos.Line)
	if !ok {
		return false
	}
	runes := []rune(line)
	if strings.TrimSpace(string(runes[:clampCol(pos.Column-1, len(runes))])) != "" {
		return true
	}
	for l := pos.Line - 1; l >= 1; l-- {
		if content, _ := doc.LineContent(l); strings.TrimSpace(content) != "" {
			return true
		}
	}
	return false
}

// Accept inserts the part of the pending suggestion selected by kind and
// returns the inserted text. A suggestion whose version or anchor no
// longer matches the document is dropped with ErrStale.
func (s *Session) Accept(kind AcceptKind) (string, error) {
	if s.doc == nil {
		return "", ErrNoDocument
	}
	version := s.doc.Version()
	cursor := s.doc.Cursor()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrClosed
	}
	p := s.pending
	if p == nil {
		s.mu.Unlock()
		return "", ErrStale
	}
	if p.DocumentVersion != version || p.Anchor != cursor {
		s.pending = nil
		from := s.setStateLocked(StateIdle)
		s.mu.Unlock()
		s.notifyState(from, StateIdle)
		s.log.Debug("discarding stale suggestion (version %d, now %d)", p.DocumentVersion, version)
		return "", ErrStale
	}

	text := acceptPart(p.InsertText, kind)
	rest := p.InsertText[len(text):]
	s.applying = true
	s.mu.Unlock()

	err := s.doc.ApplyEdit(editor.Range{Start: cursor, End: cursor}, text)
	version = s.doc.Version()
	cursor = s.doc.Cursor()

	s.mu.Lock()
	s.applying = false
	if err != nil || rest == "" || s.pending != p {
		s.pending = nil
	} else {
		s.pending = &PendingCompletion{
			InsertText:      rest,
			Label:           Label(rest),
			Anchor:          cursor,
			DocumentVersion: version,
		}
	}
	to := StateAccepted
	if s.pending == nil {
		to = StateIdle
	}
	from := s.setStateLocked(to)
	s.mu.Unlock()
	s.notifyState(from, to)

	if err != nil {
		return "", err
	}
	return text, nil
}

// acceptPart returns the prefix of text that kind inserts.
func acceptPart(text string, kind AcceptKind) string {
	switch kind {
	case AcceptWord:
		return text[:nextWordEnd(text)]
	case AcceptLine:
		i := strings.IndexByte(text, '\n')
		switch {
		case i < 0:
			return text
		case i == 0:
			return "\n"
		default:
			return text[:i]
		}
	default:
		return text
	}
}

// nextWordEnd returns the byte offset ending the next word of s. Leading
// blanks count as a word of their own.
func nextWordEnd(s string) int {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	if i > 0 {
		return i
	}
	if i < len(s) && s[i] == '\n' {
		return 1
	}
	for i < len(s) && s[i] != ' ' && s[i] != '\t' && s[i] != '\n' {
		i++
	}
	return i
}

// HandleChanges invalidates the pending suggestion after an edit the
// session did not make.
func (s *Session) HandleChanges(changes []editor.Change) {
	if len(changes) == 0 {
		return
	}
	s.invalidate(func() bool { return !s.applying })
}

// HandleCursorMove invalidates the pending suggestion when the cursor
// leaves its anchor.
func (s *Session) HandleCursorMove(pos editor.Position) {
	s.invalidate(func() bool { return !s.applying && s.pending.Anchor != pos })
}

// Dismiss drops the pending suggestion.
func (s *Session) Dismiss() {
	s.invalidate(func() bool { return true })
}

func (s *Session) invalidate(when func() bool) {
	s.mu.Lock()
	if s.pending == nil || !when() {
		s.mu.Unlock()
		return
	}
	s.pending = nil
	from := s.setStateLocked(StateIdle)
	s.mu.Unlock()
	s.notifyState(from, StateIdle)
}

func (s *Session) setStateLocked(to State) State {
	from := s.state
	s.state = to
	return from
}

func (s *Session) notifyState(from, to State) {
	if s.observer != nil && from != to {
		s.observer(from, to)
	}
}

// Close unregisters the session. The pipeline is owned by the caller.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.pending = nil
	subs := s.subs
	s.subs = nil
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	for _, d := range subs {
		d.Dispose()
	}
	if sub != nil {
		sub.Unsubscribe()
	}
}
