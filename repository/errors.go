package repository

import (
	"errors"
	"fmt"
)

// Code classifies an error for the UI layer. The set is closed: every error
// a handler reports carries exactly one of these.
type Code string

const (
	CodeAuthRequired Code = "AUTH_REQUIRED"
	CodeValidation   Code = "VALIDATION"
	CodeNotFound     Code = "NOT_FOUND"
	CodeService      Code = "SERVICE"
	CodeTransport    Code = "TRANSPORT"
)

// ErrAuthRequired is returned before any network call when a handler needs
// an authenticated user and none is present.
var ErrAuthRequired = errors.New("authentication required")

// ErrNotFound reports that the referenced record does not exist.
var ErrNotFound = errors.New("record not found")

// ServiceError is the "resolved but success:false" channel: the backend
// answered, and the answer is a failure with a message meant for the user.
// It is distinct from a transport failure and surfaced verbatim.
type ServiceError struct {
	Op      string
	Message string
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Op == "" {
		return e.Message
	}
	return e.Op + ": " + e.Message
}

// ValidationError reports bad input rejected before any network call.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Normalize maps any error from a repository call or a handler gate to the
// (message, code) contract the toast sink and callers consume. A backend
// that answered with a failure and a transport that never answered are two
// distinct channels; both land here.
func Normalize(err error) (string, Code) {
	if err == nil {
		return "", ""
	}

	if errors.Is(err, ErrAuthRequired) {
		return "Please log in to continue", CodeAuthRequired
	}
	if errors.Is(err, ErrNotFound) {
		return "Not found", CodeNotFound
	}

	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Message, CodeValidation
	}

	var serr *ServiceError
	if errors.As(err, &serr) {
		return serr.Message, CodeService
	}

	return err.Error(), CodeTransport
}
