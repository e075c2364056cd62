// Package app provides the main application structure and coordination
// for ghostpad. It wires configuration, the settings store, the completion
// pipeline and the open documents together and manages their lifecycle.
package app

import (
	"context"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/dshills/ghostpad/internal/backend"
	"github.com/dshills/ghostpad/internal/completion"
	"github.com/dshills/ghostpad/internal/completion/script"
	"github.com/dshills/ghostpad/internal/config"
	"github.com/dshills/ghostpad/internal/config/notify"
	"github.com/dshills/ghostpad/internal/editor"
	"github.com/dshills/ghostpad/internal/logging"
	"github.com/dshills/ghostpad/internal/schedule"
	"github.com/dshills/ghostpad/internal/settings"
)

// MemorySettings as Options.SettingsPath keeps settings in memory.
const MemorySettings = ":memory:"

// Options configures the application.
type Options struct {
	// ConfigPath is the path to the configuration file (TOML or YAML).
	ConfigPath string

	// SettingsPath is the settings database. Empty means settings.path
	// from the configuration, then the per-user default.
	SettingsPath string

	// LogLevel overrides logging.level from the configuration.
	LogLevel string

	// LogOutput receives log output. Defaults to stderr, or the file
	// named by logging.file.
	LogOutput io.Writer

	// Environ replaces the process environment for GHOSTPAD_* overrides.
	Environ []string

	// Watch reloads the configuration when its file changes.
	Watch bool

	// Backend fixes the completion backend instead of building one from
	// the AI settings.
	Backend backend.Backend

	// Host is the editor surface. Defaults to an editor.MemoryHost.
	Host editor.Host

	// Clock drives every timer. Defaults to the wall clock.
	Clock schedule.Clock
}

// Application is the central coordinator for all ghostpad components.
type Application struct {
	mu sync.RWMutex

	opts    Options
	log     *logging.Logger
	logFile *os.File

	notifier *notify.Notifier
	config   *config.Config
	settings settings.Store
	host     editor.Host
	clock    schedule.Clock

	metrics  *completion.Metrics
	pipeline *completion.Pipeline
	filter   *script.Filter

	documents map[string]*Document

	subs        []*notify.Subscription
	watchCancel context.CancelFunc
	shutdown    atomic.Bool
}

// New creates a new Application with the given options.
func New(opts Options) (*Application, error) {
	app := &Application{
		opts:      opts,
		documents: make(map[string]*Document),
	}

	if err := app.bootstrap(context.Background()); err != nil {
		app.Shutdown()
		return nil, err
	}
	return app, nil
}

// Logger returns the application logger.
func (app *Application) Logger() *logging.Logger {
	return app.log
}

// Config returns the configuration.
func (app *Application) Config() *config.Config {
	return app.config
}

// Settings returns the settings store.
func (app *Application) Settings() settings.Store {
	return app.settings
}

// Host returns the editor surface.
func (app *Application) Host() editor.Host {
	return app.host
}

// Pipeline returns the completion pipeline.
func (app *Application) Pipeline() *completion.Pipeline {
	return app.pipeline
}

// Metrics returns a snapshot of the completion metrics.
func (app *Application) Metrics() completion.MetricsSnapshot {
	return app.metrics.Snapshot()
}

// AI returns the effective AI settings: the configuration overlaid with
// the settings store.
func (app *Application) AI(ctx context.Context) (config.AIConfig, error) {
	return settings.LoadAI(ctx, app.settings, app.config.AI())
}

// GetSetting reads one setting. Secret values are returned as stored.
func (app *Application) GetSetting(ctx context.Context, key string) (any, error) {
	var v any
	if err := app.settings.Get(ctx, key, &v); err != nil {
		return nil, &OperationError{Op: "get setting", Target: key, Err: err}
	}
	return v, nil
}

// SetSetting parses text for key and stores it.
func (app *Application) SetSetting(ctx context.Context, key, text string) error {
	v, err := settings.ParseValue(key, text)
	if err != nil {
		return &OperationError{Op: "set setting", Target: key, Err: err}
	}
	if err := app.settings.Set(ctx, key, v); err != nil {
		return &OperationError{Op: "set setting", Target: key, Err: err}
	}
	return nil
}

// DeleteSetting removes a stored setting.
func (app *Application) DeleteSetting(ctx context.Context, key string) error {
	if err := app.settings.Delete(ctx, key); err != nil {
		return &OperationError{Op: "delete setting", Target: key, Err: err}
	}
	return nil
}
