package model

import "errors"

// Failure classes shared by all components. Wrap with fmt.Errorf("...: %w")
// and test with errors.Is.
var (
	// ErrUnavailable means a backing store or the metrics source is unreachable.
	ErrUnavailable = errors.New("unavailable")

	// ErrTimeout means the metrics source exceeded its deadline.
	ErrTimeout = errors.New("timeout")

	// ErrValidation means a client payload or query parameter is malformed.
	ErrValidation = errors.New("validation failed")

	// ErrDispatch means a notification could not be delivered.
	ErrDispatch = errors.New("dispatch failed")
)
