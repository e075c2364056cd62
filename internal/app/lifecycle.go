package app

import "os"

// Shutdown closes every document and component. It is safe to call more
// than once.
func (app *Application) Shutdown() {
	if app.shutdown.Swap(true) {
		return
	}

	app.mu.Lock()
	docs := make([]*Document, 0, len(app.documents))
	for _, doc := range app.documents {
		docs = append(docs, doc)
	}
	app.documents = make(map[string]*Document)
	subs := app.subs
	app.subs = nil
	app.mu.Unlock()

	for _, doc := range docs {
		doc.close()
	}
	for _, sub := range subs {
		sub.Unsubscribe()
	}

	if app.watchCancel != nil {
		app.watchCancel()
	}
	if app.pipeline != nil {
		if err := app.pipeline.Close(); err != nil {
			app.log.Warn("closing pipeline: %v", err)
		}
	}
	if app.filter != nil {
		app.filter.Close()
	}
	if app.settings != nil {
		if err := app.settings.Close(); err != nil {
			app.log.Warn("closing settings: %v", err)
		}
	}
	// Closing the configuration also shuts the shared notifier down.
	if app.config != nil {
		app.config.Close()
	}

	app.mu.Lock()
	if app.logFile != nil {
		app.log.SetOutput(os.Stderr)
		_ = app.logFile.Close()
		app.logFile = nil
	}
	app.mu.Unlock()
}
