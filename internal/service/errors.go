package service

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// Error kinds. Every service error matches exactly one of them with errors.Is.
var (
	ErrValidation = errors.New("validation")
	ErrAuth       = errors.New("auth")
	ErrForbidden  = errors.New("forbidden")
	ErrNotFound   = errors.New("not_found")
	ErrConflict   = errors.New("conflict")
	ErrTransient  = errors.New("transient")
)

// Error is the error type returned by every chat service operation.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func validationError(message string) error { return &Error{Kind: ErrValidation, Message: message} }
func forbidden(message string) error       { return &Error{Kind: ErrForbidden, Message: message} }
func notFound(message string) error        { return &Error{Kind: ErrNotFound, Message: message} }

// KindOf returns the kind of err. Unclassified errors are transient.
func KindOf(err error) error {
	var serviceErr *Error
	if errors.As(err, &serviceErr) {
		return serviceErr.Kind
	}
	return ErrTransient
}

// classify converts a gateway or validator error into a service error.
// Service errors pass through untouched; missing names the absent entity.
func classify(err error, missing string) error {
	if err == nil {
		return nil
	}
	var serviceErr *Error
	if errors.As(err, &serviceErr) {
		return err
	}
	var validationErrs validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrs):
		return &Error{Kind: ErrValidation, Message: validationErrs.Error(), Err: err}
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &Error{Kind: ErrNotFound, Message: missing, Err: err}
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return &Error{Kind: ErrConflict, Message: "concurrent membership change, retry", Err: err}
	default:
		return &Error{Kind: ErrTransient, Message: "storage unavailable", Err: err}
	}
}
