// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for hioload-sock.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	ErrNotConnected      = errors.New("endpoint is not connected")
	ErrUnknownConnection = errors.New("unknown connection id")
	ErrQueueFull         = errors.New("action queue is full")
	ErrContextClosed     = errors.New("io context is closed")
	ErrNotSupported      = errors.New("operation not supported")
	ErrAlreadyStarted    = errors.New("already started")
	ErrNotStarted        = errors.New("not started")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrOperationTimeout  = errors.New("operation timeout")
)

// ErrorKind classifies where an error came from and how it is handled.
type ErrorKind int

const (
	// KindStartup covers resolution, bind and listen failures. Fatal unless
	// the endpoint allows failure on init.
	KindStartup ErrorKind = iota
	// KindTransport covers any socket operation completing with an error.
	KindTransport
	// KindTimeout is raised by an endpoint when a deadline is exceeded.
	KindTimeout
	// KindInfrastructure covers failures of the I/O context drain step.
	KindInfrastructure
)

func (k ErrorKind) String() string {
	switch k {
	case KindStartup:
		return "startup"
	case KindTransport:
		return "transport"
	case KindTimeout:
		return "timeout"
	case KindInfrastructure:
		return "infrastructure"
	default:
		return "unknown"
	}
}

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeResolve
	ErrCodeBind
	ErrCodeTimeout
	ErrCodeClosed
	ErrCodeNotSupported
	ErrCodeInternal
)

// Error represents a structured error with kind, code and context.
type Error struct {
	Kind    ErrorKind
	Code    ErrorCode
	Op      string
	Message string
	Err     error
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if len(e.Context) == 0 {
		return msg
	}
	return fmt.Sprintf("%s (context: %+v)", msg, e.Context)
}

// Unwrap exposes the underlying cause to errors.Is and errors.As.
func (e *Error) Unwrap() error { return e.Err }

// NewError creates a new structured error.
func NewError(kind ErrorKind, code ErrorCode, message string) *Error {
	return &Error{
		Kind:    kind,
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// WithOp records the operation that failed.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithCause wraps the underlying error.
func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// TimeoutError builds the synthetic error reported when a deadline for op is exceeded.
func TimeoutError(op string) *Error {
	return NewError(KindTimeout, ErrCodeTimeout, "deadline exceeded").
		WithOp(op).
		WithCause(ErrOperationTimeout)
}

// IsKind reports whether err carries a structured error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
