package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrValidation           = errors.New("validation error")
	ErrHTTPStatus           = errors.New("http status error")
	ErrUnauthenticated      = errors.New("unauthenticated")
	ErrForbidden            = errors.New("forbidden")
	ErrSessionEstablishment = errors.New("session establishment failed")
	ErrProvider             = errors.New("identity provider error")
	ErrNoChanges            = errors.New("no changes")
	ErrInvalidResponse      = errors.New("invalid response")
)

// Provider error codes carried in AppError.Code for ErrProvider failures.
const (
	CodeUnauthorizedDomain = "unauthorized_domain"
	CodeCancelled          = "cancelled"
	CodeProviderUnknown    = "unknown"
)

type AppError struct {
	Err     error  // sentinel the error belongs to
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Status  int    // Optional: HTTP status for ErrHTTPStatus
	Code    string // Optional: machine-readable sub-classification
	Cause   error  // Optional: lower-level error this one was built from
}

func (e *AppError) Error() string {
	return e.Message
}

// Unwrap exposes both the sentinel and the underlying cause to errors.Is/As.
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// HTTPStatus builds the error for a non-2xx response. A 404 also matches
// ErrNotFound so callers can treat it like any other missing entity.
func HTTPStatus(status int, message string) *AppError {
	e := &AppError{
		Err:     ErrHTTPStatus,
		Message: fmt.Sprintf("HTTP error! status: %d - %s", status, message),
		Status:  status,
	}
	if status == http.StatusNotFound {
		e.Cause = ErrNotFound
	}
	return e
}

func Unauthenticated(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: message,
	}
}

func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

func SessionEstablishment(email string, cause error) *AppError {
	return &AppError{
		Err:     ErrSessionEstablishment,
		Message: fmt.Sprintf("could not establish server session for %s", email),
		Cause:   cause,
	}
}

// Provider maps a provider error code onto the message shown to the user.
func Provider(code string, cause error) *AppError {
	msg := "Login with provider failed"
	switch code {
	case CodeUnauthorizedDomain:
		msg = "This domain is not authorized for provider login. Please check the OAuth client configuration."
	case CodeCancelled:
		msg = "Login was cancelled"
	default:
		code = CodeProviderUnknown
	}
	return &AppError{
		Err:     ErrProvider,
		Message: msg,
		Code:    code,
		Cause:   cause,
	}
}

func NoChanges(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNoChanges,
		Message: fmt.Sprintf("No changes were made to the %s %s", resource, id),
	}
}

func InvalidResponse(message string) *AppError {
	return &AppError{
		Err:     ErrInvalidResponse,
		Message: message,
	}
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return 0
}

// UserMessage returns the message suitable for display to the user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
