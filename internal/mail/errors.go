package mail

import "errors"

var (
	// ErrValidation marks malformed or insufficient input. Callers must fix the input; it is never retried.
	ErrValidation = errors.New("validation failed")

	// ErrProviderUnavailable indicates the provider integration is not configured or not authenticated.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrTransient wraps network, timeout and HTTP failures of provider calls.
	ErrTransient = errors.New("transient provider error")

	// ErrStorage wraps failed store transactions. The transaction has been rolled back.
	ErrStorage = errors.New("storage error")

	// ErrNotFound indicates a missing local record.
	ErrNotFound = errors.New("not found")
)
