package completion

import (
	"errors"
	"fmt"
)

// Abstain reasons. Complete and Provide return them (possibly wrapped) in
// place of a suggestion.
var (
	// ErrNotConfigured means the AI settings are incomplete or disabled.
	ErrNotConfigured = errors.New("completion not configured")

	// ErrRateLimited means the request gate denied the request.
	ErrRateLimited = errors.New("rate limited")

	// ErrEmptyResponse means the backend answered with no usable text.
	ErrEmptyResponse = errors.New("empty completion")

	// ErrExcludedLanguage means completion is disabled for the document
	// language.
	ErrExcludedLanguage = errors.New("language excluded")

	// ErrInsufficientContext means there is nothing but whitespace before
	// the cursor.
	ErrInsufficientContext = errors.New("insufficient context")

	// ErrGhostAtCursor means ghost text already occupies the cursor.
	ErrGhostAtCursor = errors.New("ghost text at cursor")

	// ErrBusy means a request for the session is already in flight.
	ErrBusy = errors.New("completion in progress")

	// ErrStale means the document or cursor moved while the request ran.
	ErrStale = errors.New("stale completion")

	// ErrNoDocument means the session has no document.
	ErrNoDocument = errors.New("no document")

	// ErrClosed means the session or pipeline was closed.
	ErrClosed = errors.New("completion closed")
)

// RejectedError reports a suggestion refused by the filter cascade.
type RejectedError struct {
	Verdict Verdict
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("rejected by %s: %s", e.Verdict.Filter, e.Verdict.Reason)
}

// Reason classifies an abstain error for logs and metrics.
func Reason(err error) string {
	var rejected *RejectedError
	switch {
	case err == nil:
		return "none"
	case errors.As(err, &rejected):
		return "rejected"
	case errors.Is(err, ErrNotConfigured):
		return "not-configured"
	case errors.Is(err, ErrRateLimited):
		return "rate-limited"
	case errors.Is(err, ErrEmptyResponse):
		return "empty"
	case errors.Is(err, ErrExcludedLanguage):
		return "excluded-language"
	case errors.Is(err, ErrInsufficientContext):
		return "insufficient-context"
	case errors.Is(err, ErrGhostAtCursor):
		return "ghost-at-cursor"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrStale):
		return "stale"
	case errors.Is(err, ErrNoDocument), errors.Is(err, ErrClosed):
		return "unavailable"
	default:
		return "backend"
	}
}
