package coordinator

import (
	"context"
	"errors"
	"fmt"
)

// Outcome kinds. Coordinator methods never return these bare; they return an
// *Error whose Kind is one of them, so callers match with errors.Is.
var (
	// ErrAuthFailed means the credential is missing or was rejected by the
	// remote. It is never retried by the coordinator.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrNotReady means the first refresh failed for a transient reason.
	// Setup should be retried later by the host.
	ErrNotReady = errors.New("integration not ready")

	// ErrUpdateFailed means a scheduled refresh failed. The last snapshot is kept.
	ErrUpdateFailed = errors.New("update failed")
)

// AuthError is raised by device clients when the remote rejects the
// credential, or when no credential is available at all.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: authentication rejected", e.Op)
	}
	return fmt.Sprintf("%s: authentication rejected: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// APIError is raised by device clients for any other remote or transport failure.
type APIError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op + ": api error"
	}
}

func (e *APIError) Unwrap() error { return e.Err }

// Error is the error returned by coordinator refreshes. It names the failing
// coordinator so aggregate failures can be traced to a domain.
type Error struct {
	Coordinator string
	Kind        error
	Err         error
}

func (e *Error) Error() string {
	return fmt.Sprintf("coordinator %s: %v: %v", e.Coordinator, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the outcome kind in addition to the wrapped cause.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

// IsAuthError reports whether err carries an *AuthError anywhere in its chain.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// classify maps a fetch error onto an outcome kind. Auth errors always map to
// ErrAuthFailed; everything else, including timeouts, maps to fallback.
func classify(name string, err error, fallback error) *Error {
	if IsAuthError(err) {
		return &Error{Coordinator: name, Kind: ErrAuthFailed, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = &APIError{Op: name, Err: fmt.Errorf("fetch timed out: %w", err)}
	}
	return &Error{Coordinator: name, Kind: fallback, Err: err}
}
