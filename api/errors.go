// File: api/errors.go
// Package api
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Common error types and error handling utilities for the rtcore library.
// Timeout is deliberately a normal outcome of a blocking call rather than a
// failure of the primitive; Removed reports that the object was destroyed
// while the caller was still blocked on it.

package api

import "fmt"

// Common errors used across the library.
var (
	ErrNotSupported    = fmt.Errorf("operation not supported")
	ErrNoMemory        = fmt.Errorf("allocation failed")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrTimeout         = fmt.Errorf("operation timed out")
	ErrRemoved         = fmt.Errorf("object removed while waiting")
	ErrWouldDeadlock   = fmt.Errorf("recursive lock would deadlock")
	ErrNotFound        = fmt.Errorf("resource not found")
	ErrAlreadyExists   = fmt.Errorf("resource already exists")
	ErrBusy            = fmt.Errorf("resource busy")
	ErrClosed          = fmt.Errorf("service is closed")
	ErrUnblocked       = fmt.Errorf("wait forcibly unblocked")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeNotSupported
	ErrCodeNoMemory
	ErrCodeInvalidArgument
	ErrCodeTimeout
	ErrCodeRemoved
	ErrCodeWouldDeadlock
	ErrCodeNotFound
	ErrCodeAlreadyExists
	ErrCodeBusy
	ErrCodeClosed
	ErrCodeInternal
)

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}
