// Package backend talks to the language-model services that produce inline
// completions.
//
// Every backend accepts the same Request (a system and a user message plus
// sampling limits) and returns the raw completion text. Normalizing and
// filtering the text is the caller's job.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dshills/ghostpad/internal/config"
	"github.com/dshills/ghostpad/internal/logging"
)

// ErrUnknownProvider is returned by New for an unsupported ai.provider.
var ErrUnknownProvider = errors.New("unknown completion provider")

// Request is one completion call.
type Request struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// Backend produces completion text.
type Backend interface {
	// Name identifies the provider in logs and errors.
	Name() string
	// Complete returns the raw model output. It honours ctx cancellation.
	Complete(ctx context.Context, req Request) (string, error)
}

// Error describes a failed backend call.
type Error struct {
	Provider string
	Status   int    // HTTP status, 0 when unknown
	Message  string // provider error message, if any
	Err      error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Provider
	if e.Status != 0 {
		msg = fmt.Sprintf("%s: status %d", msg, e.Status)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches the same *Error instance or the wrapped error.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	if t, ok := target.(*Error); ok {
		return e == t
	}
	return errors.Is(e.Err, target)
}

// Canceled reports whether err came from a cancelled or expired context.
func Canceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Option configures backends built by New.
type Option func(*options)

type options struct {
	httpClient *http.Client
	log        *logging.Logger
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		o.log = l.WithComponent("backend")
	}
}

func buildOptions(cfg config.AIConfig, opts []Option) options {
	o := options{log: logging.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}
	return o
}

// New builds the backend selected by cfg.Provider.
func New(cfg config.AIConfig, opts ...Option) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", config.ProviderOpenAICompatible:
		return NewHTTP(cfg, opts...), nil
	case config.ProviderOpenAI:
		return NewOpenAI(cfg, opts...), nil
	case config.ProviderAnthropic:
		return NewAnthropic(cfg, opts...), nil
	case config.ProviderGemini:
		return NewGemini(cfg, opts...), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

// Close releases resources held by b, if it holds any.
func Close(b Backend) error {
	if c, ok := b.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// endpoint joins the base URL and path, tolerating a base that already
// ends in /v1.
func endpoint(base, path string) string {
	base = strings.TrimRight(base, "/")
	base = strings.TrimSuffix(base, "/v1")
	return base + path
}
