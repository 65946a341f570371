package errs

import "errors"

// Sentinel error classes for the engine. The HTTP boundary translates these
// 1:1 into user-visible statuses; nothing below that boundary auto-retries.
var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized is a generic sentinel for auth failures.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConflict covers illegal transitions and duplicate submissions;
	// the caller must re-fetch before retrying.
	ErrConflict = errors.New("conflict")
	// ErrVersionConflict is raised when an optimistic write loses the race.
	ErrVersionConflict = errors.New("version conflict")
	// ErrUnavailable marks upstream capability outages; safe to retry later.
	ErrUnavailable = errors.New("service unavailable")
	// ErrInternal marks unexpected faults that were logged server-side.
	ErrInternal = errors.New("internal error")
)
