package config

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dshills/ghostpad/internal/config/loader"
	"github.com/dshills/ghostpad/internal/config/notify"
	"github.com/dshills/ghostpad/internal/config/watcher"
	"github.com/dshills/ghostpad/internal/logging"
)

// Config holds the merged configuration.
type Config struct {
	mu sync.RWMutex

	path      string
	file      loader.Loader
	env       loader.Loader
	defaults  map[string]any
	fileData  map[string]any
	envData   map[string]any
	overrides map[string]any
	merged    map[string]any

	notifier *notify.Notifier
	watcher  *watcher.Watcher
	log      *logging.Logger
	closed   bool

	// configErrors records type problems found while reading sections.
	configErrors map[string]error
}

// Option configures a Config.
type Option func(*Config)

// WithFile sets the configuration file.
func WithFile(path string) Option {
	return func(c *Config) {
		c.path = path
		if path != "" {
			c.file = loader.NewFileLoader(path)
		}
	}
}

// WithFileLoader sets the file source directly.
func WithFileLoader(l loader.Loader) Option {
	return func(c *Config) {
		c.file = l
	}
}

// WithEnvLoader replaces the environment source. A nil loader disables
// environment overrides.
func WithEnvLoader(l loader.Loader) Option {
	return func(c *Config) {
		c.env = l
	}
}

// WithNotifier shares an existing notifier.
func WithNotifier(n *notify.Notifier) Option {
	return func(c *Config) {
		if n != nil {
			c.notifier = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Config) {
		c.log = l.WithComponent("config")
	}
}

// New creates a config holding only the defaults. Call Load to read the
// file and environment.
func New(opts ...Option) *Config {
	c := &Config{
		env:       loader.NewEnvLoader(loader.DefaultEnvPrefix),
		defaults:  defaultConfig(),
		overrides: make(map[string]any),
		notifier:  notify.New(),
		log:       logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.rebuildLocked()
	return c
}

// Load reads the file and environment layers.
func (c *Config) Load(_ context.Context) error {
	var fileData, envData map[string]any
	var err error

	if c.file != nil {
		if fileData, err = c.file.Load(); err != nil {
			return err
		}
	}
	if c.env != nil {
		if envData, err = c.env.Load(); err != nil {
			return fmt.Errorf("loading environment: %w", err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.fileData = fileData
	c.envData = envData
	c.configErrors = nil
	c.rebuildLocked()
	return nil
}

// Reload re-reads the sources and broadcasts a reload.
func (c *Config) Reload(ctx context.Context) error {
	if err := c.Load(ctx); err != nil {
		return err
	}
	c.log.Info("configuration reloaded")
	c.notifier.NotifyReload("file")
	return nil
}

// Watch reloads the configuration whenever the file changes. It returns
// after the watcher is running; watching stops with ctx or Close.
func (c *Config) Watch(ctx context.Context, opts ...watcher.Option) error {
	if c.path == "" {
		return nil
	}

	w := watcher.New(append([]watcher.Option{watcher.WithLogger(c.log)}, opts...)...)
	if err := w.Watch(c.path); err != nil {
		return err
	}
	w.OnChange(func(e watcher.Event) {
		if err := c.Reload(ctx); err != nil {
			c.log.Warn("reload after %s failed: %v", e.Op, err)
		}
	})
	if err := w.Start(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	old := c.watcher
	c.watcher = w
	c.mu.Unlock()
	if old != nil {
		old.Stop()
	}
	return nil
}

// Close stops watching and shuts the notifier down.
func (c *Config) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	w := c.watcher
	c.watcher = nil
	c.mu.Unlock()

	if w != nil {
		w.Stop()
	}
	c.notifier.Close()
}

// Path returns the configuration file path, if any.
func (c *Config) Path() string {
	return c.path
}

// Notifier returns the change notifier.
func (c *Config) Notifier() *notify.Notifier {
	return c.notifier
}

// Subscribe registers an observer for every change.
func (c *Config) Subscribe(observer notify.Observer) *notify.Subscription {
	return c.notifier.Subscribe(observer)
}

// SubscribePath registers an observer for path and everything below it.
func (c *Config) SubscribePath(path string, observer notify.Observer) *notify.Subscription {
	return c.notifier.SubscribePath(path, observer)
}

// Get returns the merged value at path.
func (c *Config) Get(path string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return getPath(c.merged, path)
}

// Set overrides the value at path for the life of the process and
// broadcasts the change.
func (c *Config) Set(path string, value any) error {
	if len(splitPath(path)) == 0 {
		return ErrInvalidPath
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	old, _ := getPath(c.merged, path)
	loader.SetPath(c.overrides, strings.Join(splitPath(path), "."), value)
	c.rebuildLocked()
	c.mu.Unlock()

	c.notifier.NotifySet(path, old, value, "override")
	return nil
}

// Merged returns a copy of the merged configuration.
func (c *Config) Merged() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return loader.Clone(c.merged)
}

func (c *Config) rebuildLocked() {
	merged := loader.Clone(c.defaults)
	merged = loader.DeepMerge(merged, loader.Clone(c.fileData))
	merged = loader.DeepMerge(merged, loader.Clone(c.envData))
	merged = loader.DeepMerge(merged, loader.Clone(c.overrides))
	c.merged = merged
}

// GetString returns a string value.
func (c *Config) GetString(path string) (string, error) {
	v, ok := c.Get(path)
	if !ok {
		return "", ErrSettingNotFound
	}
	s, ok := v.(string)
	if !ok {
		return "", &TypeError{Path: path, Expected: "string", Actual: typeName(v)}
	}
	return s, nil
}

// GetInt returns an integer value.
func (c *Config) GetInt(path string) (int, error) {
	v, ok := c.Get(path)
	if !ok {
		return 0, ErrSettingNotFound
	}
	switch val := v.(type) {
	case int:
		return val, nil
	case int64:
		return int(val), nil
	case float64:
		return int(val), nil
	default:
		return 0, &TypeError{Path: path, Expected: "int", Actual: typeName(v)}
	}
}

// GetBool returns a boolean value.
func (c *Config) GetBool(path string) (bool, error) {
	v, ok := c.Get(path)
	if !ok {
		return false, ErrSettingNotFound
	}
	b, ok := v.(bool)
	if !ok {
		return false, &TypeError{Path: path, Expected: "bool", Actual: typeName(v)}
	}
	return b, nil
}

// GetFloat returns a float value.
func (c *Config) GetFloat(path string) (float64, error) {
	v, ok := c.Get(path)
	if !ok {
		return 0, ErrSettingNotFound
	}
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	default:
		return 0, &TypeError{Path: path, Expected: "float", Actual: typeName(v)}
	}
}

// GetDuration returns a duration. Strings are parsed with
// time.ParseDuration and bare numbers are milliseconds.
func (c *Config) GetDuration(path string) (time.Duration, error) {
	v, ok := c.Get(path)
	if !ok {
		return 0, ErrSettingNotFound
	}
	switch val := v.(type) {
	case time.Duration:
		return val, nil
	case string:
		d, err := time.ParseDuration(val)
		if err != nil {
			return 0, &TypeError{Path: path, Expected: "duration", Actual: fmt.Sprintf("string %q", val)}
		}
		return d, nil
	case int:
		return time.Duration(val) * time.Millisecond, nil
	case int64:
		return time.Duration(val) * time.Millisecond, nil
	case float64:
		return time.Duration(val * float64(time.Millisecond)), nil
	default:
		return 0, &TypeError{Path: path, Expected: "duration", Actual: typeName(v)}
	}
}

// GetStringSlice returns a list of strings. A single string is split on
// commas.
func (c *Config) GetStringSlice(path string) ([]string, error) {
	v, ok := c.Get(path)
	if !ok {
		return nil, ErrSettingNotFound
	}
	switch val := v.(type) {
	case []string:
		return append([]string(nil), val...), nil
	case []any:
		out := make([]string, len(val))
		for i, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, &TypeError{Path: path, Expected: "[]string", Actual: typeName(v)}
			}
			out[i] = s
		}
		return out, nil
	case string:
		if val == "" {
			return nil, nil
		}
		parts := strings.Split(val, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	default:
		return nil, &TypeError{Path: path, Expected: "[]string", Actual: typeName(v)}
	}
}

// ConfigErrors returns the type problems found while reading sections.
func (c *Config) ConfigErrors() map[string]error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.configErrors) == 0 {
		return nil
	}
	out := make(map[string]error, len(c.configErrors))
	for k, v := range c.configErrors {
		out[k] = v
	}
	return out
}

func (c *Config) recordConfigError(path string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.configErrors == nil {
		c.configErrors = make(map[string]error)
	}
	if _, exists := c.configErrors[path]; !exists {
		c.configErrors[path] = err
	}
}

func getPath(m map[string]any, path string) (any, bool) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return nil, false
	}
	var current any = m
	for _, part := range parts {
		cm, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		if current, ok = cm[part]; !ok {
			return nil, false
		}
	}
	return current, true
}

func splitPath(path string) []string {
	var parts []string
	for _, p := range strings.Split(path, ".") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "nil"
	case string:
		return "string"
	case int, int64:
		return "int"
	case float64:
		return "float"
	case bool:
		return "bool"
	case time.Duration:
		return "duration"
	case []string, []any:
		return "list"
	case map[string]any:
		return "map"
	default:
		return fmt.Sprintf("%T", v)
	}
}
