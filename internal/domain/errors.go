package domain

import "errors"

// Closed set of error kinds surfaced by the aggregation and persistence
// layers. Callers match with errors.Is; transport maps them to status codes.
var (
	ErrNotFound           = errors.New("resource not found")
	ErrSubscriptionFailed = errors.New("subscription failed")
	ErrWriteFailed        = errors.New("write failed")
	ErrConflict           = errors.New("resource already exists")
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnauthorized       = errors.New("unauthorized access")
	ErrForbidden          = errors.New("forbidden")
)
