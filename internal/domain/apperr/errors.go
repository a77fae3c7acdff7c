// Package apperr defines the error taxonomy returned by the approval and procurement core.
// Every failure carries a Code so the presentation layer can render a specific message per kind.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Code classifies a failure
type Code string

const (
	CodeUnauthorized  Code = "unauthorized"
	CodeInvalidState  Code = "invalid_state"
	CodeConfiguration Code = "configuration_error"
	CodeNotFound      Code = "not_found"
	CodePersistence   Code = "persistence_error"
	CodeValidation    Code = "validation"
)

// Error is the canonical error wrapper of the core
type Error struct {
	Code    Code
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	op := strings.TrimSpace(e.Op)
	msg := strings.TrimSpace(e.Message)
	switch {
	case op != "" && msg != "":
		return fmt.Sprintf("%s: %s (%s)", op, msg, e.Code)
	case op != "":
		return fmt.Sprintf("%s (%s)", op, e.Code)
	case msg != "":
		return fmt.Sprintf("%s (%s)", msg, e.Code)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an error with an explicit code and operation
func New(code Code, op, message string) error {
	return &Error{Code: code, Op: strings.TrimSpace(op), Message: strings.TrimSpace(message)}
}

// Newf builds an error with a formatted message
func Newf(code Code, op, format string, args ...interface{}) error {
	return New(code, op, fmt.Sprintf(format, args...))
}

// Wrap annotates err with a code. An err that already carries a code keeps it.
func Wrap(code Code, op string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}
	return &Error{Code: code, Op: strings.TrimSpace(op), Message: err.Error(), Cause: err}
}

// Unauthorized reports that the caller lacks the required role or ownership
func Unauthorized(op, message string) error { return New(CodeUnauthorized, op, message) }

// InvalidState reports that the operation is not legal in the current state
func InvalidState(op, message string) error { return New(CodeInvalidState, op, message) }

// Configuration reports a missing or unusable approval route
func Configuration(op, message string) error { return New(CodeConfiguration, op, message) }

// NotFound reports a referenced document, instance or route that does not exist
func NotFound(op, message string) error { return New(CodeNotFound, op, message) }

// Validation reports malformed caller input
func Validation(op, message string) error { return New(CodeValidation, op, message) }

// Persistence wraps a store failure
func Persistence(op string, err error) error { return Wrap(CodePersistence, op, err) }

// IsCode checks whether err (or a wrapped err) carries the given code
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// CodeOf extracts the code of err. Errors without a code are persistence errors.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var appErr *Error
	if !errors.As(err, &appErr) {
		return CodePersistence
	}
	return appErr.Code
}

// MessageOf returns the short human readable message of err
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
