package model

import "errors"

// Error taxonomy shared by services and mapped to HTTP status codes by
// handlers. Services wrap these with fmt.Errorf("...: %w", Err...) so callers
// match with errors.Is.
var (
	ErrValidation = errors.New("invalid input")
	ErrForbidden  = errors.New("forbidden")
	ErrNotFound   = errors.New("not found")
	ErrPollClosed = errors.New("poll is closed")
	ErrTransient  = errors.New("transient failure")
	ErrTimeout    = errors.New("operation timed out")
)
