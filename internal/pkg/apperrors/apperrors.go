package apperrors

import (
	"errors"
	"fmt"
)

// NotFoundError indicates a campaign, version, or approval that does not exist
// within the caller's tenant.
type NotFoundError struct {
	Resource string
	Detail   string
}

func (e *NotFoundError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s not found: %s", e.Resource, e.Detail)
	}
	return e.Resource + " not found"
}

// ValidationError indicates malformed or inconsistent input, such as a missing
// required field or a dangling version reference.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// InvalidStateError indicates a terminal business-rule violation, such as
// approving a rejected approval or updating a locked slot. Never retried.
type InvalidStateError struct {
	Message string
}

func (e *InvalidStateError) Error() string { return e.Message }

func NewNotFound(resource string) *NotFoundError {
	return &NotFoundError{Resource: resource}
}

func NewNotFoundf(resource, format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Resource: resource, Detail: fmt.Sprintf(format, args...)}
}

func NewValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func NewInvalidState(format string, args ...interface{}) *InvalidStateError {
	return &InvalidStateError{Message: fmt.Sprintf(format, args...)}
}

func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

func IsInvalidState(err error) bool {
	var e *InvalidStateError
	return errors.As(err, &e)
}
