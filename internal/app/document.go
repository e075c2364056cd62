package app

import (
	"context"
	"os"
	"path/filepath"

	"github.com/dshills/ghostpad/internal/completion"
	"github.com/dshills/ghostpad/internal/editor"
	"github.com/dshills/ghostpad/internal/ghost"
)

// Document represents an open buffer with its ghost-text store and
// completion session.
type Document struct {
	// Path is the absolute file path, or the name given to OpenText.
	Path string

	// Name is the display name.
	Name string

	// LanguageID is the detected language.
	LanguageID string

	Buffer  *editor.MemoryDocument
	Ghosts  *ghost.Store
	Session *completion.Session
}

// OpenFile opens a file and creates a document for it.
func (app *Application) OpenFile(path string) (*Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &OperationError{Op: "open", Target: path, Err: err}
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		return nil, &OperationError{Op: "open", Target: path, Err: err}
	}
	return app.open(abs, editor.DetectLanguageID(abs), string(content))
}

// OpenText creates a document named name holding text.
func (app *Application) OpenText(name, languageID, text string) (*Document, error) {
	return app.open(name, languageID, text)
}

func (app *Application) open(key, languageID, text string) (*Document, error) {
	if app.shutdown.Load() {
		return nil, ErrShutdown
	}

	app.mu.Lock()
	if _, ok := app.documents[key]; ok {
		app.mu.Unlock()
		return nil, &OperationError{Op: "open", Target: key, Err: ErrDocumentAlreadyOpen}
	}
	app.mu.Unlock()

	ai, err := app.AI(context.Background())
	if err != nil {
		app.log.Warn("loading AI settings: %v", err)
	}

	buf := editor.NewMemoryDocument(languageID, text)
	gc := app.config.Ghost()
	ghosts := ghost.NewStore(buf, app.host,
		ghost.WithClock(app.clock),
		ghost.WithLogger(app.log),
		ghost.WithTriggerDelay(gc.TriggerDelay),
		ghost.WithMergeDebounce(gc.MergeDebounce),
		ghost.WithRetriggerRatio(gc.RetriggerRatio),
	)
	session := completion.NewSession(buf, app.host, app.pipeline, ai,
		completion.WithGhosts(ghosts),
		completion.WithAILoader(app.AI),
		completion.WithNotifier(app.notifier),
		completion.WithSessionLogger(app.log.WithField("document", filepath.Base(key))),
	)

	doc := &Document{
		Path:       key,
		Name:       filepath.Base(key),
		LanguageID: languageID,
		Buffer:     buf,
		Ghosts:     ghosts,
		Session:    session,
	}

	app.mu.Lock()
	app.documents[key] = doc
	app.mu.Unlock()

	app.log.Debug("opened %s (%s)", key, languageID)
	return doc, nil
}

// Document returns the open document for path.
func (app *Application) Document(path string) (*Document, bool) {
	app.mu.RLock()
	defer app.mu.RUnlock()
	if doc, ok := app.documents[path]; ok {
		return doc, true
	}
	if abs, err := filepath.Abs(path); err == nil {
		doc, ok := app.documents[abs]
		return doc, ok
	}
	return nil, false
}

// Documents returns the number of open documents.
func (app *Application) Documents() int {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return len(app.documents)
}

// CloseDocument closes doc and releases its store and session.
func (app *Application) CloseDocument(doc *Document) error {
	if doc == nil {
		return ErrDocumentNotFound
	}

	app.mu.Lock()
	if app.documents[doc.Path] != doc {
		app.mu.Unlock()
		return &OperationError{Op: "close", Target: doc.Path, Err: ErrDocumentNotFound}
	}
	delete(app.documents, doc.Path)
	app.mu.Unlock()

	doc.close()
	return nil
}

func (doc *Document) close() {
	doc.Session.Close()
	doc.Ghosts.Close()
}

// Complete moves the cursor of doc to pos and asks its session for a
// suggestion.
func (app *Application) Complete(ctx context.Context, doc *Document, pos editor.Position) (completion.Suggestion, error) {
	if app.shutdown.Load() {
		return completion.Suggestion{}, ErrShutdown
	}
	if !editor.Valid(doc.Buffer, pos) {
		return completion.Suggestion{}, &OperationError{Op: "complete", Target: doc.Path, Err: ErrInvalidPosition}
	}
	doc.Buffer.SetCursor(pos)
	return doc.Session.Provide(ctx)
}
