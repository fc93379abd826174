package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinels classify failures independently of the message shown to clients.
var (
	ErrNotFound        = errors.New("resource not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidRelation = errors.New("invalid relation")
	ErrInvalidFilter   = errors.New("invalid filter")
	ErrInternal        = errors.New("internal error")
	ErrServiceUnavail  = errors.New("service unavailable")
)

// kind ties a sentinel to its wire code and HTTP status.
type kind struct {
	sentinel error
	code     string
	status   int
}

var kinds = []kind{
	{ErrNotFound, "NOT_FOUND", http.StatusNotFound},
	{ErrInvalidInput, "INVALID_INPUT", http.StatusBadRequest},
	{ErrInvalidRelation, "INVALID_RELATION", http.StatusBadRequest},
	{ErrInvalidFilter, "INVALID_FILTER", http.StatusBadRequest},
	{ErrServiceUnavail, "SERVICE_UNAVAILABLE", http.StatusServiceUnavailable},
	{ErrInternal, "INTERNAL_ERROR", http.StatusInternalServerError},
}

func kindOf(err error) kind {
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k
		}
	}
	return kinds[len(kinds)-1]
}

// AppError carries a client-facing code and message plus the HTTP status
// they map to. Err keeps the cause for logs and errors.Is.
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

func newAppError(sentinel error, message string, cause error) *AppError {
	k := kindOf(sentinel)
	if cause == nil {
		cause = sentinel
	}
	return &AppError{Code: k.code, Message: message, Status: k.status, Err: cause}
}

// NotFound reports a missing resource, e.g. NotFound("product", 42).
func NotFound(resource string, id any) *AppError {
	return newAppError(ErrNotFound, fmt.Sprintf("%s with id %v not found", resource, id), nil)
}

// InvalidInput reports a malformed request.
func InvalidInput(message string) *AppError {
	return newAppError(ErrInvalidInput, message, nil)
}

// InvalidRelation reports a rejected graph edge: a self reference, a
// non-positive weight or an unknown kind.
func InvalidRelation(message string) *AppError {
	return newAppError(ErrInvalidRelation, message, nil)
}

// InvalidFilter reports a filter that can never match, such as an inverted
// price range.
func InvalidFilter(message string) *AppError {
	return newAppError(ErrInvalidFilter, message, nil)
}

// Internal hides err behind a generic 500 message.
func Internal(err error) *AppError {
	return newAppError(ErrInternal, "an internal error occurred", err)
}

// Unavailable reports a dependency that cannot be reached. The result
// matches both ErrServiceUnavail and err.
func Unavailable(message string, err error) *AppError {
	return newAppError(ErrServiceUnavail, message, fmt.Errorf("%w: %w", ErrServiceUnavail, err))
}

// Wrap prefixes err with message, keeping it matchable.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// Code returns the wire code for err, using the same precedence as HTTPStatus.
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return kindOf(err).code
}

// HTTPStatus maps err to a status: an AppError's own status first, then the
// first matching sentinel, else 500.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return kindOf(err).status
}
