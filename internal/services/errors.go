// Package services defines the business logic for tests, interview sessions,
// and test results. This file centralizes common service-level error values
// so that they can be consistently returned by service methods and checked by
// callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes is performed at the handler
// layer. None of them is retryable: validation and not-found conditions are
// caller mistakes, and engine failures may have partial side effects.
package services

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound indicates that no conversation checkpoint exists
	// for a test that was expected to already have one.
	ErrSessionNotFound = errors.New("session not found")

	// ErrTestNotFound indicates that the test lifecycle record is missing,
	// or (for activation lookups) the test has already completed.
	ErrTestNotFound = errors.New("test not found")

	// ErrUserNotFound indicates that the referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrJobNotFound indicates that the referenced job does not exist.
	ErrJobNotFound = errors.New("job not found")

	// ErrResultNotFound indicates that no result has been recorded for the
	// requested test.
	ErrResultNotFound = errors.New("test result not found")

	// ErrStaleQuestionToken indicates that an answer submission carried a
	// question token that does not match the pending question, typically a
	// client answering a question it no longer sees.
	ErrStaleQuestionToken = errors.New("stale question token")
)

// ValidationError reports a result field outside its allowed domain. Field
// names the violated field so clients can surface precise messages.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// EngineError wraps an opaque workflow-engine failure. It is logged and
// re-raised without automatic retry, since an interview step may have had
// partial side effects.
type EngineError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	return fmt.Sprintf("workflow engine %s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying engine error for errors.Is/As.
func (e *EngineError) Unwrap() error { return e.Err }
