package remote

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode categorizes remote errors.
type ErrorCode string

const (
	// ErrCodeNetwork indicates a transport failure. Retryable.
	ErrCodeNetwork ErrorCode = "NETWORK"

	// ErrCodeRateLimited indicates the server asked the client to slow down.
	// Retryable after RetryAfter.
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"

	// ErrCodeAuth indicates missing or expired credentials. Terminal.
	ErrCodeAuth ErrorCode = "AUTH"

	// ErrCodePermission indicates the account may not perform the operation.
	// Terminal.
	ErrCodePermission ErrorCode = "PERMISSION"

	// ErrCodeInvalid indicates the server rejected the request content.
	ErrCodeInvalid ErrorCode = "INVALID"
)

// Error is an error reported by a remote database.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// RetryAfter is the server's requested delay, if any.
	RetryAfter time.Duration

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// IsRetryable returns true for network and rate-limit errors.
// Uses errors.As to handle wrapped errors.
func IsRetryable(err error) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Code == ErrCodeNetwork || re.Code == ErrCodeRateLimited
	}
	return false
}

// IsTerminal returns true for auth and permission errors, which stop sync
// until resolved outside the program.
func IsTerminal(err error) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Code == ErrCodeAuth || re.Code == ErrCodePermission
	}
	return false
}

// RetryAfter returns the delay requested by a rate-limit error, or 0.
func RetryAfter(err error) time.Duration {
	var re *Error
	if errors.As(err, &re) {
		return re.RetryAfter
	}
	return 0
}

// NewNetworkError wraps a transport failure.
func NewNetworkError(err error) *Error {
	return &Error{Code: ErrCodeNetwork, Message: "remote unreachable", Err: err}
}

// NewRateLimitError asks the caller to retry after d.
func NewRateLimitError(d time.Duration) *Error {
	return &Error{
		Code:       ErrCodeRateLimited,
		Message:    fmt.Sprintf("rate limited, retry after %s", d),
		RetryAfter: d,
	}
}

// NewAuthError reports rejected credentials.
func NewAuthError(message string) *Error {
	return &Error{Code: ErrCodeAuth, Message: message}
}

// NewPermissionError reports a forbidden operation.
func NewPermissionError(message string) *Error {
	return &Error{Code: ErrCodePermission, Message: message}
}
