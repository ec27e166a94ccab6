package store

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes store errors. The values are the wire-level codes
// surfaced to callers.
type ErrorCode string

const (
	// CodeSourceNotAllowed indicates the source is not in the allow-list.
	CodeSourceNotAllowed ErrorCode = "source_not_allowed"

	// CodeTypeNotAllowed indicates the type is not in the allow-list.
	CodeTypeNotAllowed ErrorCode = "type_not_allowed"

	// CodeBadPatch indicates a malformed patch (nil, or refs not a list of tuples).
	CodeBadPatch ErrorCode = "bad_patch"

	// CodeNotFound indicates an unknown event id or ref.
	CodeNotFound ErrorCode = "not_found"

	// CodeLockFailed indicates the collection lock could not be acquired.
	CodeLockFailed ErrorCode = "lock_failed"

	// CodeReadFailed indicates the collection file exists but could not be read.
	CodeReadFailed ErrorCode = "read_failed"

	// CodeWriteFailed indicates the collection could not be persisted.
	CodeWriteFailed ErrorCode = "write_failed"
)

// Error is a coded store error.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf extracts the ErrorCode from err, or "" if err is not a store error.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsCode reports whether err carries code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
