// Package settings persists the user's AI settings and announces changes.
//
// Values are stored JSON-encoded under dot-separated keys (ai.model,
// ai.apiKey, ...). Every successful Set or Delete is broadcast through a
// notify.Notifier so that open completion sessions reload.
package settings

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dshills/ghostpad/internal/config/notify"
	"github.com/dshills/ghostpad/internal/logging"
)

var (
	// ErrNotFound is returned by Get for a key with no stored value.
	ErrNotFound = errors.New("setting not found")

	// ErrUnknownKey is returned for keys outside the registry.
	ErrUnknownKey = errors.New("unknown setting")

	// ErrClosed is returned after the store was closed.
	ErrClosed = errors.New("settings store closed")
)

// Setting keys.
const (
	KeyEnabled          = "ai.enabled"
	KeyProvider         = "ai.provider"
	KeyBaseURL          = "ai.baseUrl"
	KeyAPIKey           = "ai.apiKey"
	KeyModel            = "ai.model"
	KeyTemperature      = "ai.temperature"
	KeyMaxTokens        = "ai.maxTokens"
	KeyFilterScript     = "ai.filterScript"
	KeyExcludeLanguages = "ai.excludeLanguages"
	KeyRequestTimeout   = "ai.requestTimeout"
)

// Kind is the value type of a setting.
type Kind int

const (
	KindString Kind = iota
	KindBool
	KindInt
	KindFloat
	KindList
	KindDuration
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindList:
		return "list"
	case KindDuration:
		return "duration"
	default:
		return "unknown"
	}
}

// Definition describes one setting.
type Definition struct {
	Key    string
	Kind   Kind
	Secret bool
}

var registry = map[string]Definition{
	KeyEnabled:          {Key: KeyEnabled, Kind: KindBool},
	KeyProvider:         {Key: KeyProvider, Kind: KindString},
	KeyBaseURL:          {Key: KeyBaseURL, Kind: KindString},
	KeyAPIKey:           {Key: KeyAPIKey, Kind: KindString, Secret: true},
	KeyModel:            {Key: KeyModel, Kind: KindString},
	KeyTemperature:      {Key: KeyTemperature, Kind: KindFloat},
	KeyMaxTokens:        {Key: KeyMaxTokens, Kind: KindInt},
	KeyFilterScript:     {Key: KeyFilterScript, Kind: KindString},
	KeyExcludeLanguages: {Key: KeyExcludeLanguages, Kind: KindList},
	KeyRequestTimeout:   {Key: KeyRequestTimeout, Kind: KindDuration},
}

// Lookup returns the definition of key.
func Lookup(key string) (Definition, bool) {
	def, ok := registry[key]
	return def, ok
}

// Keys returns every registered key in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ParseValue converts text typed by a user into the value type of key.
func ParseValue(key, text string) (any, error) {
	def, ok := Lookup(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	text = strings.TrimSpace(text)
	switch def.Kind {
	case KindBool:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		return b, nil
	case KindInt:
		n, err := strconv.Atoi(text)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		return n, nil
	case KindFloat:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		return f, nil
	case KindList:
		if text == "" {
			return []string{}, nil
		}
		parts := strings.Split(text, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	case KindDuration:
		d, err := time.ParseDuration(text)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		return d, nil
	default:
		return text, nil
	}
}

// Store reads and writes settings. Get decodes the stored value into dst,
// which must be a pointer.
type Store interface {
	Get(ctx context.Context, key string, dst any) error
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
	// List returns the keys that have a stored value.
	List(ctx context.Context) ([]string, error)
	Close() error
}

// Option configures a store.
type Option func(*options)

type options struct {
	notifier *notify.Notifier
	log      *logging.Logger
}

// WithNotifier broadcasts changes through n.
func WithNotifier(n *notify.Notifier) Option {
	return func(o *options) {
		o.notifier = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		o.log = l.WithComponent("settings")
	}
}

func buildOptions(opts []Option) options {
	o := options{log: logging.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) announce(key string, old, value any, deleted bool) {
	if def, ok := Lookup(key); ok && def.Secret {
		old, value = redact(old), redact(value)
	}
	if deleted {
		o.log.Debug("deleted %s", key)
	} else {
		o.log.Debug("set %s = %v", key, value)
	}
	if o.notifier == nil {
		return
	}
	if deleted {
		o.notifier.NotifyDelete(key, old, "settings")
		return
	}
	o.notifier.NotifySet(key, old, value, "settings")
}

func redact(v any) any {
	if v == nil {
		return nil
	}
	return "********"
}

func checkKey(key string) error {
	if _, ok := Lookup(key); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return nil
}
