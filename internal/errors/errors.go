package errors

import (
	"errors"
	"strings"
)

type ErrorType string

func (s ErrorType) String() string {
	return strings.ToLower(string(s))
}

const (
	ErrInternalError   ErrorType = "Internal Error"
	ErrNotFound        ErrorType = "Not Found"
	ErrAlreadyExists   ErrorType = "Resource Already Exists"
	ErrInvalidArgument ErrorType = "Invalid Argument"
	ErrFailedPrecond   ErrorType = "Failed Precondition"
	ErrUpstream        ErrorType = "Upstream Failure"
)

// DomainError is the single error type raised below the orchestrators.
// Entity names the component that failed, ErrorType classifies it, and
// WrappedErr carries the cause when one exists.
type DomainError struct {
	ErrorType  ErrorType
	Entity     string
	Message    string
	WrappedErr error
}

func InternalError(entity, msg string, err error) *DomainError {
	return &DomainError{
		ErrorType:  ErrInternalError,
		Entity:     entity,
		Message:    msg,
		WrappedErr: err,
	}
}

func NotFound(entity, msg string) *DomainError {
	return &DomainError{
		ErrorType: ErrNotFound,
		Entity:    entity,
		Message:   msg,
	}
}

func InvalidArgument(entity, msg string) *DomainError {
	return &DomainError{
		ErrorType: ErrInvalidArgument,
		Entity:    entity,
		Message:   msg,
	}
}

func FailedPrecondition(entity, msg string) *DomainError {
	return &DomainError{
		ErrorType: ErrFailedPrecond,
		Entity:    entity,
		Message:   msg,
	}
}

// Upstream reports a non-success response from a remote service. The
// message carries the upstream status and body.
func Upstream(entity, msg string, err error) *DomainError {
	return &DomainError{
		ErrorType:  ErrUpstream,
		Entity:     entity,
		Message:    msg,
		WrappedErr: err,
	}
}

func Wrap(entity, msg string, err error) *DomainError {
	return &DomainError{
		ErrorType:  ErrInternalError,
		Entity:     entity,
		Message:    msg,
		WrappedErr: err,
	}
}

func WrapIfErr(entity, msg string, err error) error {
	if err == nil {
		return nil
	}
	return Wrap(entity, msg, err)
}

func (e *DomainError) Error() string {
	if e.WrappedErr != nil {
		return e.ErrorType.String() + " for entity " + e.Entity + ": " + e.Message + ": " + e.WrappedErr.Error()
	}
	return e.ErrorType.String() + " for entity " + e.Entity + ": " + e.Message
}

func (e *DomainError) Unwrap() error {
	return e.WrappedErr
}

func IsErrorType(err error, errType ErrorType) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.ErrorType == errType
	}
	return false
}
