package asset

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes finalize failures.
type ErrorCode string

const (
	CodeBadKNOrSession      ErrorCode = "bad_kn_or_session"
	CodeTmpSessionNotFound  ErrorCode = "tmp_session_not_found"
	CodeDataDirCreateFailed ErrorCode = "data_dir_create_failed"
	CodePathEscape          ErrorCode = "path_escape"
	CodeBadItemFilenames    ErrorCode = "bad_item_filenames"
	CodeSrcFileMissing      ErrorCode = "src_file_missing"
	CodeMoveFailed          ErrorCode = "move_failed"
	CodeSessionBusy         ErrorCode = "session_busy"
)

// Error is a coded finalize error. Item is the zero-based index of the
// offending item, or -1 when the failure is not tied to one item.
type Error struct {
	Code    ErrorCode
	Message string
	Item    int
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Code) + ": " + e.Message
	if e.Item >= 0 {
		msg = fmt.Sprintf("%s (item %d)", msg, e.Item)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, Item: -1, Err: err}
}

func itemError(code ErrorCode, i int, msg string) *Error {
	return &Error{Code: code, Message: msg, Item: i}
}

// CodeOf extracts the ErrorCode from err, or "" if err is not an asset error.
func CodeOf(err error) ErrorCode {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// IsCode reports whether err carries code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
