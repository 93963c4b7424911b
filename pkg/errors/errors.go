package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard sentinel errors for common cases.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal error")
	ErrServiceUnavail = errors.New("service unavailable")
)

// kind is the wire code and status shared by every error of one sentinel.
type kind struct {
	sentinel error
	code     string
	status   int
	// message is shown when nothing more specific is known.
	message string
}

var (
	notFound    = kind{ErrNotFound, "NOT_FOUND", http.StatusNotFound, "resource not found"}
	invalid     = kind{ErrInvalidInput, "INVALID_INPUT", http.StatusBadRequest, "invalid input"}
	unauth      = kind{ErrUnauthorized, "UNAUTHORIZED", http.StatusUnauthorized, "sign in required"}
	forbidden   = kind{ErrForbidden, "FORBIDDEN", http.StatusForbidden, "not allowed"}
	conflict    = kind{ErrConflict, "CONFLICT", http.StatusConflict, "request conflicts with current state"}
	unavailable = kind{ErrServiceUnavail, "SERVICE_UNAVAILABLE", http.StatusServiceUnavailable, "a dependency is temporarily unavailable"}
	internal    = kind{ErrInternal, "INTERNAL_ERROR", http.StatusInternalServerError, "an internal error occurred"}
)

// kinds is ordered: the first sentinel matched by errors.Is wins.
var kinds = []kind{notFound, invalid, unauth, forbidden, conflict, unavailable}

// AppError represents a structured application error with HTTP status mapping.
// Message is safe to show to a shopper; Err carries the diagnostic cause.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func newError(k kind, message string, cause error) *AppError {
	return &AppError{Code: k.code, Message: message, Status: k.status, Err: cause}
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return newError(notFound, fmt.Sprintf("%s with id %s not found", resource, id), ErrNotFound)
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return newError(invalid, message, ErrInvalidInput)
}

// Unauthorized creates a 401 error.
func Unauthorized(message string) *AppError {
	return newError(unauth, message, ErrUnauthorized)
}

// Forbidden creates a 403 error.
func Forbidden(message string) *AppError {
	return newError(forbidden, message, ErrForbidden)
}

// Conflict creates a 409 error.
func Conflict(message string) *AppError {
	return newError(conflict, message, ErrConflict)
}

// ServiceUnavailable creates a 503 error for an unreachable collaborator.
func ServiceUnavailable(service string, err error) *AppError {
	return newError(unavailable, service+" is temporarily unavailable", errors.Join(ErrServiceUnavail, err))
}

// Internal creates a 500 error. The cause is kept for logs only.
func Internal(err error) *AppError {
	return newError(internal, internal.message, err)
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// Classify returns the wire code, status and shopper-facing message for
// err. AppErrors report their own fields; bare sentinels get the generic
// message of their kind; anything else is internal.
func Classify(err error) (code string, status int, message string) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code, appErr.Status, appErr.Message
	}
	k := kindOf(err)
	return k.code, k.status, k.message
}

func kindOf(err error) kind {
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k
		}
	}
	return internal
}

// UserMessage returns the shopper-facing message carried by err, or fallback
// when err is not an AppError or has an empty message.
func UserMessage(err error, fallback string) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return fallback
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	_, status, _ := Classify(err)
	return status
}
