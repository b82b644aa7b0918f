package http

import (
	"fmt"
	"net/http"
)

// Error is a request failure rendered into the response envelope.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

func newError(status int, code, format string, args ...interface{}) *Error {
	return &Error{Status: status, Code: code, Message: fmt.Sprintf(format, args...)}
}

// NotFound is a 404.
func NotFound(format string, args ...interface{}) *Error {
	return newError(http.StatusNotFound, "ERR_NOT_FOUND", format, args...)
}

// Unavailable is a 503 for data that does not exist yet.
func Unavailable(format string, args ...interface{}) *Error {
	return newError(http.StatusServiceUnavailable, "ERR_UNAVAILABLE", format, args...)
}

// Internal is a 500. The cause is logged, never rendered.
func Internal(cause error, format string, args ...interface{}) *Error {
	e := newError(http.StatusInternalServerError, "ERR_INTERNAL", format, args...)
	e.cause = cause
	return e
}
