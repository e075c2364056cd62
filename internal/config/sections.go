package config

import (
	"errors"
	"time"
)

// Section accessors return snapshots. Mutating a returned struct does not
// change the configuration; use Set.

// Provider names accepted by ai.provider.
const (
	ProviderOpenAICompatible = "openai-compatible"
	ProviderOpenAI           = "openai"
	ProviderAnthropic        = "anthropic"
	ProviderGemini           = "gemini"
)

// Defaults for the tunable values.
const (
	DefaultProvider       = ProviderOpenAICompatible
	DefaultTemperature    = 0.2
	DefaultMaxTokens      = 64
	DefaultRequestTimeout = 15 * time.Second

	DefaultTriggerDelay   = 20 * time.Millisecond
	DefaultMergeDebounce  = 100 * time.Millisecond
	DefaultRetriggerRatio = 0.7

	DefaultRateLimit      = 6
	DefaultRateWindow     = 10 * time.Second
	DefaultRetryTTL       = 30 * time.Second
	DefaultRetryDelay     = 2 * time.Second
	DefaultRetryMaxChars  = 50
	DefaultRetryMaxTokens = 32
	DefaultMaxPrefix      = 4000
	DefaultMaxSuffix      = 1000

	DefaultLogLevel = "info"
)

// AIConfig is the completion backend configuration.
type AIConfig struct {
	// Enabled turns inline completion on.
	Enabled bool

	// Provider selects the backend ("openai-compatible", "openai",
	// "anthropic", "gemini").
	Provider string

	// BaseURL is the backend root, e.g. "http://localhost:11434".
	BaseURL string

	// APIKey authenticates requests.
	APIKey string

	// Model is the model identifier sent to the backend.
	Model string

	Temperature float64
	MaxTokens   int

	// FilterScript is an optional Lua file run after the built-in filters.
	FilterScript string

	// ExcludeLanguages lists language id patterns (with * and ?) for
	// which completion never runs.
	ExcludeLanguages []string

	// RequestTimeout bounds one backend call.
	RequestTimeout time.Duration
}

// Missing lists the settings that keep the configuration from being usable.
func (a AIConfig) Missing() []string {
	var missing []string
	if !a.Enabled {
		missing = append(missing, "ai.enabled")
	}
	if a.Model == "" {
		missing = append(missing, "ai.model")
	}
	if a.APIKey == "" {
		missing = append(missing, "ai.apiKey")
	}
	if a.BaseURL == "" && a.needsBaseURL() {
		missing = append(missing, "ai.baseUrl")
	}
	return missing
}

// Complete reports whether completion can run with this configuration.
func (a AIConfig) Complete() bool {
	return len(a.Missing()) == 0
}

func (a AIConfig) needsBaseURL() bool {
	switch a.Provider {
	case ProviderAnthropic, ProviderGemini, ProviderOpenAI:
		return false
	default:
		return true
	}
}

// GhostConfig tunes the ghost-text store.
type GhostConfig struct {
	// TriggerDelay is the pause before the suggestion surface is asked to
	// re-query.
	TriggerDelay time.Duration

	// MergeDebounce is the quiet period before queued insertions are
	// created.
	MergeDebounce time.Duration

	// RetriggerRatio is the typed fraction above which every keystroke
	// re-queries the surface.
	RetriggerRatio float64
}

// CompletionConfig tunes the request gate and pipeline.
type CompletionConfig struct {
	RateLimit  int
	RateWindow time.Duration

	RetryTTL       time.Duration
	RetryDelay     time.Duration
	RetryMaxChars  int
	RetryMaxTokens int

	// MaxPrefix and MaxSuffix bound the context window in runes.
	MaxPrefix int
	MaxSuffix int
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	// Level is "debug", "info", "warn" or "error".
	Level string

	// File is a log file path. Empty logs to stderr.
	File string
}

// SettingsConfig locates the persistent settings store.
type SettingsConfig struct {
	// Path is the bbolt database file. Empty selects the default location.
	Path string
}

// AI returns the AI section.
func (c *Config) AI() AIConfig {
	return AIConfig{
		Enabled:          c.getBoolOr("ai.enabled", false),
		Provider:         c.getStringOr("ai.provider", DefaultProvider),
		BaseURL:          c.getStringOr("ai.baseUrl", ""),
		APIKey:           c.getStringOr("ai.apiKey", ""),
		Model:            c.getStringOr("ai.model", ""),
		Temperature:      c.getFloatOr("ai.temperature", DefaultTemperature),
		MaxTokens:        c.getIntOr("ai.maxTokens", DefaultMaxTokens),
		FilterScript:     c.getStringOr("ai.filterScript", ""),
		ExcludeLanguages: c.getStringSliceOr("ai.excludeLanguages", nil),
		RequestTimeout:   c.getDurationOr("ai.requestTimeout", DefaultRequestTimeout),
	}
}

// Ghost returns the ghost section.
func (c *Config) Ghost() GhostConfig {
	return GhostConfig{
		TriggerDelay:   c.getDurationOr("ghost.triggerDelay", DefaultTriggerDelay),
		MergeDebounce:  c.getDurationOr("ghost.mergeDebounce", DefaultMergeDebounce),
		RetriggerRatio: c.getFloatOr("ghost.retriggerRatio", DefaultRetriggerRatio),
	}
}

// Completion returns the completion section.
func (c *Config) Completion() CompletionConfig {
	return CompletionConfig{
		RateLimit:      c.getIntOr("completion.rateLimit", DefaultRateLimit),
		RateWindow:     c.getDurationOr("completion.rateWindow", DefaultRateWindow),
		RetryTTL:       c.getDurationOr("completion.retryTtl", DefaultRetryTTL),
		RetryDelay:     c.getDurationOr("completion.retryDelay", DefaultRetryDelay),
		RetryMaxChars:  c.getIntOr("completion.retryMaxChars", DefaultRetryMaxChars),
		RetryMaxTokens: c.getIntOr("completion.retryMaxTokens", DefaultRetryMaxTokens),
		MaxPrefix:      c.getIntOr("completion.maxPrefix", DefaultMaxPrefix),
		MaxSuffix:      c.getIntOr("completion.maxSuffix", DefaultMaxSuffix),
	}
}

// Logging returns the logging section.
func (c *Config) Logging() LoggingConfig {
	return LoggingConfig{
		Level: c.getStringOr("logging.level", DefaultLogLevel),
		File:  c.getStringOr("logging.file", ""),
	}
}

// Settings returns the settings-store section.
func (c *Config) Settings() SettingsConfig {
	return SettingsConfig{
		Path: c.getStringOr("settings.path", ""),
	}
}

func defaultConfig() map[string]any {
	return map[string]any{
		"ai": map[string]any{
			"enabled":        false,
			"provider":       DefaultProvider,
			"temperature":    DefaultTemperature,
			"maxTokens":      DefaultMaxTokens,
			"requestTimeout": DefaultRequestTimeout,
		},
		"ghost": map[string]any{
			"triggerDelay":   DefaultTriggerDelay,
			"mergeDebounce":  DefaultMergeDebounce,
			"retriggerRatio": DefaultRetriggerRatio,
		},
		"completion": map[string]any{
			"rateLimit":      DefaultRateLimit,
			"rateWindow":     DefaultRateWindow,
			"retryTtl":       DefaultRetryTTL,
			"retryDelay":     DefaultRetryDelay,
			"retryMaxChars":  DefaultRetryMaxChars,
			"retryMaxTokens": DefaultRetryMaxTokens,
			"maxPrefix":      DefaultMaxPrefix,
			"maxSuffix":      DefaultMaxSuffix,
		},
		"logging": map[string]any{
			"level": DefaultLogLevel,
		},
	}
}

// The getXOr helpers fall back to the default when the path is unset.
// Type errors also fall back but are recorded for ConfigErrors.

func (c *Config) getStringOr(path, def string) string {
	v, err := c.GetString(path)
	return orDefault(c, path, v, def, err)
}

func (c *Config) getIntOr(path string, def int) int {
	v, err := c.GetInt(path)
	return orDefault(c, path, v, def, err)
}

func (c *Config) getBoolOr(path string, def bool) bool {
	v, err := c.GetBool(path)
	return orDefault(c, path, v, def, err)
}

func (c *Config) getFloatOr(path string, def float64) float64 {
	v, err := c.GetFloat(path)
	return orDefault(c, path, v, def, err)
}

func (c *Config) getDurationOr(path string, def time.Duration) time.Duration {
	v, err := c.GetDuration(path)
	return orDefault(c, path, v, def, err)
}

func (c *Config) getStringSliceOr(path string, def []string) []string {
	v, err := c.GetStringSlice(path)
	return orDefault(c, path, v, append([]string(nil), def...), err)
}

func orDefault[T any](c *Config, path string, v, def T, err error) T {
	if err == nil {
		return v
	}
	if !errors.Is(err, ErrSettingNotFound) {
		c.recordConfigError(path, err)
	}
	return def
}
