package engine

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrorCode classifies a business failure
type ErrorCode string

const (
	CodeValidation        ErrorCode = "validation_error"
	CodeConflict          ErrorCode = "conflict"
	CodeNotFound          ErrorCode = "not_found"
	CodeInvalidTransition ErrorCode = "invalid_transition"
	CodeAlreadySettled    ErrorCode = "already_settled"
)

// Error is returned for every business failure of the engine.
// errors.Is matches it against the kind sentinels below by code.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "umbrella engine error"
	}
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches kind sentinels, which carry a code and no message
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil {
		return false
	}
	return t.Message == "" && t.Code == e.Code
}

var (
	ErrValidation        = &Error{Code: CodeValidation}
	ErrConflict          = &Error{Code: CodeConflict}
	ErrNotFound          = &Error{Code: CodeNotFound}
	ErrInvalidTransition = &Error{Code: CodeInvalidTransition}
	ErrAlreadySettled    = &Error{Code: CodeAlreadySettled}
)

var (
	// ErrDuplicateSignature is a conflict: the signer already signed the document.
	ErrDuplicateSignature = errors.New("duplicate signature")
	// ErrNotAParty is a validation failure: the signer is neither referrer nor referred.
	ErrNotAParty = errors.New("signer is not a party to the relationship")
	// ErrConcurrentUpdate is a conflict: the relationship changed since it was read.
	ErrConcurrentUpdate = errors.New("relationship was modified concurrently")
)

func newError(code ErrorCode, cause error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func validationError(format string, args ...interface{}) *Error {
	return newError(CodeValidation, nil, format, args...)
}

func notFoundError(entity, id string) *Error {
	return newError(CodeNotFound, nil, "%s %s not found", entity, id)
}

// storeError wraps an unexpected persistence failure; it is not a business error
func storeError(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}

// lookupError maps gorm.ErrRecordNotFound to a NotFound business error
func lookupError(entity, id string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFoundError(entity, id)
	}
	return storeError("load "+entity, err)
}

// Code returns the business code of err, or "" for infrastructure errors
func Code(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
