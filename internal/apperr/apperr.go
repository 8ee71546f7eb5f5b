// Package apperr classifies the failures the booking and cart components
// surface to their callers.
package apperr

import (
	"context"
	"errors"
)

var (
	// ErrSessionNotReady means identity state is still unknown. Recoverable,
	// shown as a transient reconnecting state.
	ErrSessionNotReady = errors.New("session not ready")
	// ErrUnauthenticated means identity state is known and nobody is signed
	// in.
	ErrUnauthenticated = errors.New("not signed in")
	// ErrRemoteMutation means a record store write failed. Recoverable only by
	// user retry; callers must not run follow-on steps.
	ErrRemoteMutation = errors.New("remote mutation failed")
	// ErrCacheCorrupt means a persisted record could not be decoded.
	ErrCacheCorrupt = errors.New("cache record corrupt")
	// ErrStaleDraft means a draft was expired, for another variant, or
	// already submitted.
	ErrStaleDraft = errors.New("stale draft")
	// ErrValidation means user input failed step validation.
	ErrValidation = errors.New("validation failed")
	// ErrSubmitInProgress means another submission is already in flight.
	ErrSubmitInProgress = errors.New("submission already in progress")
	// ErrSubmitTimeout means the submission watchdog expired. The outcome
	// of the remote call is unknown.
	ErrSubmitTimeout = errors.New("submission timed out")
)

func Kind(err error) string {
	switch {
	case err == nil:
		return ""

	case errors.Is(err, ErrSessionNotReady):
		return "session_not_ready"

	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"

	case errors.Is(err, ErrRemoteMutation):
		return "remote_mutation"

	case errors.Is(err, ErrCacheCorrupt):
		return "cache_corrupt"

	case errors.Is(err, ErrStaleDraft):
		return "stale_draft"

	case errors.Is(err, ErrValidation):
		return "validation"

	case errors.Is(err, ErrSubmitInProgress):
		return "in_progress"

	case errors.Is(err, ErrSubmitTimeout):
		return "submit_timeout"

	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"

	case errors.Is(err, context.Canceled):
		return "canceled"

	default:
		return "internal"
	}
}

// Recoverable reports whether the user can retry the same action without
// changing any input.
func Recoverable(err error) bool {
	switch {
	case err == nil:
		return false

	case errors.Is(err, ErrSessionNotReady),
		errors.Is(err, ErrRemoteMutation),
		errors.Is(err, ErrSubmitTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return true

	default:
		return false
	}
}
