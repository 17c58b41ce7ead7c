package domain

import "errors"

var (
	// ErrMissingCorrelation is returned when authorize is called before the
	// redirect handler set target, request id and process id. No I/O happens.
	ErrMissingCorrelation = errors.New("verification correlation is incomplete")

	// ErrUnauthorized wraps 401 responses. It forces logout of the owning session.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTransient wraps any other network or transport failure.
	ErrTransient = errors.New("transient network failure")

	ErrPincodeMismatch   = errors.New("pincode mismatch")
	ErrAttemptsExhausted = errors.New("pincode attempts exhausted")
	ErrNoUsableMethods   = errors.New("no usable verification methods")

	ErrAlreadyAuthorized = errors.New("session already authorized")
	ErrNotAuthorized     = errors.New("session not authorized")

	// ErrGateClosed is returned by a PIN gate that finished or was aborted.
	ErrGateClosed = errors.New("pin gate closed")
)
