// Package errs carries a client-facing code and message alongside an internal cause.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an error for REST status codes and MCP tool error payloads.
type Code string

const (
	InvalidArgument   Code = "invalid_argument"
	NotFound          Code = "not_found"
	ResourceExhausted Code = "resource_exhausted"
	Unavailable       Code = "unavailable"
	Internal          Code = "internal"
)

var httpStatus = map[Code]int{
	InvalidArgument:   http.StatusBadRequest,
	NotFound:          http.StatusNotFound,
	ResourceExhausted: http.StatusTooManyRequests,
	Unavailable:       http.StatusServiceUnavailable,
	Internal:          http.StatusInternalServerError,
}

// Error pairs a safe Message with the Err that caused it. Only Message reaches clients.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error includes the cause so log lines keep it.
func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Message == "" && e.Err == nil:
		return string(e.Code)
	case e.Message == "":
		return e.Err.Error()
	case e.Err == nil:
		return e.Message
	default:
		return e.Message + ": " + e.Err.Error()
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func New(code Code, message string) error {
	return Wrap(code, message, nil)
}

func Newf(code Code, format string, args ...any) error {
	return Wrap(code, fmt.Sprintf(format, args...), nil)
}

func Wrap(code Code, message string, cause error) error {
	return &Error{Code: code, Message: message, Err: cause}
}

func asError(err error) (*Error, bool) {
	var coded *Error
	if err == nil || !errors.As(err, &coded) {
		return nil, false
	}
	return coded, true
}

// CodeOf returns the outermost code in err's chain, or Internal.
func CodeOf(err error) Code {
	if coded, ok := asError(err); ok && coded.Code != "" {
		return coded.Code
	}
	return Internal
}

// MessageOf returns text that is safe to show a client. Uncoded errors may hold SQL,
// file paths or bucket names, so they collapse to "internal error".
func MessageOf(err error) string {
	if err == nil {
		return string(Internal)
	}
	if coded, ok := asError(err); ok && coded.Message != "" {
		return coded.Message
	}
	return "internal error"
}

// HTTPStatus maps code to a status, with 500 for unknown codes.
func HTTPStatus(code Code) int {
	if status, ok := httpStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
