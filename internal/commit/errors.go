package commit

import (
	"errors"

	"github.com/roach88/ledger/internal/asset"
	"github.com/roach88/ledger/internal/store"
)

// ErrorCode categorizes request validation failures.
type ErrorCode string

const (
	CodeBadRequest       ErrorCode = "bad_request"
	CodeBadWorkflowState ErrorCode = "bad_workflow_state"
	CodeNotFound         ErrorCode = "not_found"
	CodeBadKNOrSession   ErrorCode = ErrorCode(asset.CodeBadKNOrSession)
)

// codeInternal is reported for errors that carry no code of their own.
const codeInternal = "internal"

// Error is a coded request error.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

func newError(code ErrorCode, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// IsCode reports whether err is a commit error carrying code.
func IsCode(err error, code ErrorCode) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Code == code
}

// CodeOf returns the wire code of err, whichever layer produced it.
func CodeOf(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return string(ce.Code)
	}
	if code := store.CodeOf(err); code != "" {
		return string(code)
	}
	if code := asset.CodeOf(err); code != "" {
		return string(code)
	}
	return codeInternal
}

// MessageOf returns the human-readable part of err without its code prefix.
func MessageOf(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Message
	}
	var se *store.Error
	if errors.As(err, &se) {
		return se.Message
	}
	var ae *asset.Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	return err.Error()
}
