package config

import (
	"errors"
	"fmt"
)

// Errors returned by configuration operations.
var (
	// ErrSettingNotFound indicates the path has no value in any layer.
	ErrSettingNotFound = errors.New("setting not found")

	// ErrInvalidPath indicates a malformed dot-separated path.
	ErrInvalidPath = errors.New("invalid setting path")

	// ErrClosed indicates the configuration was closed.
	ErrClosed = errors.New("config closed")
)

// TypeError reports a value of the wrong type.
type TypeError struct {
	Path     string
	Expected string
	Actual   string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("setting %s: expected %s, got %s", e.Path, e.Expected, e.Actual)
}
