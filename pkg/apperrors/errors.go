// Package apperrors defines the error kinds shared by services and stores and
// their mapping to HTTP status codes.
//
// A kind is a sentinel error. Services return *Error values that carry a kind and a
// caller-facing message, so errors.Is(err, apperrors.ErrNotFound) works across wraps.
package apperrors

import (
	"errors"
	"net/http"
)

// Error kinds.
var (
	ErrValidation    = errors.New("validation error")
	ErrNotFound      = errors.New("not found")
	ErrForbidden     = errors.New("forbidden")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrConflict      = errors.New("conflict")
	ErrCapacity      = errors.New("meeting is full")
	ErrDuplicate     = errors.New("already registered")
	ErrUnregistered  = errors.New("not registered")
	ErrNotLive       = errors.New("meeting is not live")
	ErrAlreadyJoined = errors.New("already joined")
	ErrUnavailable   = errors.New("service unavailable")
)

// Error is a classified error with a message safe to show to API callers.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

// New returns an error of the given kind with a caller-facing message.
func New(kind error, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Validation returns an ErrValidation error.
func Validation(message string) error { return New(ErrValidation, message) }

// NotFound returns an ErrNotFound error.
func NotFound(message string) error { return New(ErrNotFound, message) }

// Forbidden returns an ErrForbidden error.
func Forbidden(message string) error { return New(ErrForbidden, message) }

// Unauthorized returns an ErrUnauthorized error.
func Unauthorized(message string) error { return New(ErrUnauthorized, message) }

// IsNotFound reports whether any error in err's chain is ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsForbidden reports whether any error in err's chain is ErrForbidden.
func IsForbidden(err error) bool { return errors.Is(err, ErrForbidden) }

// IsValidation reports whether any error in err's chain is ErrValidation.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// HTTPStatus maps an error to the status code the API answers with.
// Unclassified errors are internal.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrCapacity),
		errors.Is(err, ErrDuplicate),
		errors.Is(err, ErrUnregistered),
		errors.Is(err, ErrNotLive),
		errors.Is(err, ErrAlreadyJoined):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message to expose for err. Internal errors are masked.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}
