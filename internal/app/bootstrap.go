package app

import (
	"context"
	"os"
	"path/filepath"

	"github.com/dshills/ghostpad/internal/backend"
	"github.com/dshills/ghostpad/internal/completion"
	"github.com/dshills/ghostpad/internal/completion/script"
	"github.com/dshills/ghostpad/internal/config"
	"github.com/dshills/ghostpad/internal/config/loader"
	"github.com/dshills/ghostpad/internal/config/notify"
	"github.com/dshills/ghostpad/internal/config/watcher"
	"github.com/dshills/ghostpad/internal/editor"
	"github.com/dshills/ghostpad/internal/logging"
	"github.com/dshills/ghostpad/internal/schedule"
	"github.com/dshills/ghostpad/internal/settings"
)

// bootstrap initializes all components in dependency order.
func (app *Application) bootstrap(ctx context.Context) error {
	app.clock = app.opts.Clock
	if app.clock == nil {
		app.clock = schedule.Real()
	}
	app.host = app.opts.Host
	if app.host == nil {
		app.host = editor.NewMemoryHost()
	}

	// 1. Logger at the requested level; the configured level and file are
	// applied once the configuration is loaded.
	app.log = logging.New(logging.Config{
		Level:  logging.ParseLevel(app.opts.LogLevel),
		Output: app.opts.LogOutput,
		Prefix: "ghostpad",
	})

	// 2. Configuration
	app.notifier = notify.New()
	cfgOpts := []config.Option{
		config.WithNotifier(app.notifier),
		config.WithLogger(app.log),
	}
	if app.opts.ConfigPath != "" {
		cfgOpts = append(cfgOpts, config.WithFile(app.opts.ConfigPath))
	}
	if app.opts.Environ != nil {
		cfgOpts = append(cfgOpts, config.WithEnvLoader(loader.NewEnvLoaderFrom(loader.DefaultEnvPrefix, app.opts.Environ)))
	}
	app.config = config.New(cfgOpts...)
	if err := app.config.Load(ctx); err != nil {
		// A broken file falls back to defaults and the environment.
		app.log.Warn("loading configuration: %v", err)
	}
	if err := app.applyLogging(); err != nil {
		return &InitError{Component: "logging", Err: err}
	}
	app.subs = append(app.subs, app.config.SubscribePath("logging", func(notify.Change) {
		if err := app.applyLogging(); err != nil {
			app.log.Warn("applying logging configuration: %v", err)
		}
	}))

	// 3. Settings store
	if err := app.initSettings(); err != nil {
		return &InitError{Component: "settings", Err: err}
	}

	// 4. Completion pipeline
	ai, err := app.AI(ctx)
	if err != nil {
		app.log.Warn("loading AI settings: %v", err)
	}
	app.initPipeline(ai)
	app.subs = append(app.subs, app.notifier.SubscribePath("ai", func(notify.Change) {
		app.reconfigure()
	}))

	// 5. Configuration watcher
	if app.opts.Watch {
		wctx, cancel := context.WithCancel(context.Background())
		if err := app.config.Watch(wctx, watcher.WithClock(app.clock)); err != nil {
			cancel()
			return &InitError{Component: "config watcher", Err: err}
		}
		app.watchCancel = cancel
	}

	app.log.Debug("bootstrap complete")
	return nil
}

// applyLogging applies logging.level (unless overridden on the command
// line) and logging.file.
func (app *Application) applyLogging() error {
	lc := app.config.Logging()
	if app.opts.LogLevel == "" {
		app.log.SetLevel(logging.ParseLevel(lc.Level))
	}
	if lc.File == "" || app.opts.LogOutput != nil {
		return nil
	}

	app.mu.Lock()
	defer app.mu.Unlock()
	if app.logFile != nil && app.logFile.Name() == lc.File {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(lc.File), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(lc.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	app.log.SetOutput(f)
	if app.logFile != nil {
		_ = app.logFile.Close()
	}
	app.logFile = f
	return nil
}

func (app *Application) initSettings() error {
	opts := []settings.Option{
		settings.WithNotifier(app.notifier),
		settings.WithLogger(app.log),
	}

	path := app.opts.SettingsPath
	if path == "" {
		path = app.config.Settings().Path
	}
	if path == "" {
		path = settings.DefaultPath()
	}
	if path == MemorySettings {
		app.settings = settings.NewMemoryStore(opts...)
		return nil
	}

	store, err := settings.OpenBolt(path, opts...)
	if err != nil {
		return err
	}
	app.settings = store
	app.log.Debug("settings at %s", path)
	return nil
}

// reconfigure rebuilds the pipeline backend from the current AI settings.
// Open sessions do the same for themselves; this covers settings changed
// while no document is open.
func (app *Application) reconfigure() {
	if app.shutdown.Load() {
		return
	}
	ai, err := app.AI(context.Background())
	if err != nil {
		app.log.Warn("loading AI settings: %v", err)
		return
	}
	if err := app.pipeline.Configure(ai); err != nil {
		app.log.Warn("configuring completion: %v", err)
	}
}

func (app *Application) initPipeline(ai config.AIConfig) {
	app.metrics = completion.NewMetrics()

	cascade := completion.DefaultCascade()
	if ai.FilterScript != "" {
		f, err := script.Load(ai.FilterScript, script.WithLogger(app.log))
		if err != nil {
			app.log.Warn("filter script disabled: %v", err)
		} else {
			app.filter = f
			cascade = cascade.With(f)
		}
	}

	opts := []completion.PipelineOption{
		completion.WithTuning(app.config.Completion()),
		completion.WithCascade(cascade),
		completion.WithClock(app.clock),
		completion.WithHost(app.host),
		completion.WithMetrics(app.metrics),
		completion.WithLogger(app.log),
		completion.WithBackendFactory(func(cfg config.AIConfig) (backend.Backend, error) {
			return backend.New(cfg, backend.WithLogger(app.log))
		}),
	}
	if app.opts.Backend != nil {
		opts = append(opts, completion.WithBackend(app.opts.Backend))
	}
	app.pipeline = completion.NewPipeline(ai, opts...)
}
