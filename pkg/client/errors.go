package client

import (
	"context"
	"errors"
	"fmt"
)

// Common errors returned by the executor.
var (
	// ErrRetryExhausted is returned when every attempt of a request failed.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the caller's context ends mid-request.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrInvalidRequest is returned before any attempt for a malformed RequestSpec.
	ErrInvalidRequest = errors.New("invalid request")
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassTransport represents connection, TLS and timeout failures.
	ErrorClassTransport ErrorClass = "transport"

	// ErrorClassProtocol represents non-success statuses and unusable bodies.
	ErrorClassProtocol ErrorClass = "protocol"

	// ErrorClassCancelled represents caller cancellation.
	ErrorClassCancelled ErrorClass = "cancelled"
)

// AttemptError describes why one strategy failed within one attempt.
type AttemptError struct {
	Strategy   string
	StatusCode int
	Class      ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *AttemptError) Error() string {
	if e.StatusCode != 0 {
		if e.Err != nil {
			return fmt.Sprintf("%s %s error (status %d): %s: %v", e.Strategy, e.Class, e.StatusCode, e.Message, e.Err)
		}
		return fmt.Sprintf("%s %s error (status %d): %s", e.Strategy, e.Class, e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s error: %s: %v", e.Strategy, e.Class, e.Message, e.Err)
	}
	return fmt.Sprintf("%s %s error: %s", e.Strategy, e.Class, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *AttemptError) Unwrap() error {
	return e.Err
}

// FetchError is returned once a request has used up its attempts. It matches
// ErrRetryExhausted and unwraps to the last observed cause.
type FetchError struct {
	URL      string
	Attempts int
	Class    ErrorClass
	Err      error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("%v after %d attempts (%s): %s: %v", ErrRetryExhausted, e.Attempts, e.Class, e.URL, e.Err)
}

// Unwrap returns the last cause.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is reports ErrRetryExhausted as a match.
func (e *FetchError) Is(target error) bool {
	return target == ErrRetryExhausted
}

// Classify returns the class of a request error, or "" for nil.
func Classify(err error) ErrorClass {
	if err == nil {
		return ""
	}

	var fe *FetchError
	if errors.As(err, &fe) && fe.Class != "" {
		return fe.Class
	}

	if errors.Is(err, ErrContextCancelled) || errors.Is(err, context.Canceled) {
		return ErrorClassCancelled
	}

	var ae *AttemptError
	if errors.As(err, &ae) {
		return ae.Class
	}

	return ErrorClassTransport
}

// IsRetryable reports whether another attempt may succeed. Transport and
// protocol failures are retried identically; cancellation is final.
func IsRetryable(class ErrorClass) bool {
	switch class {
	case ErrorClassTransport, ErrorClassProtocol:
		return true
	default:
		return false
	}
}
