package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindUnauthorized Kind = "UNAUTHORIZED"
	KindNotFound     Kind = "NOT_FOUND"
	KindConflict     Kind = "CONFLICT"
	KindValidation   Kind = "VALIDATION_FAILED"
	KindInternal     Kind = "INTERNAL_ERROR"
)

const (
	CodeInvalidCredentials  = "invalid_credentials"
	CodeInvalidRefreshToken = "invalid_refresh_token"
	CodeInvalidAccessToken  = "invalid_access_token"
	CodeMissingToken        = "missing_token"
	CodeTypeMismatch        = "token_type_mismatch"
	CodeEmailNotVerified    = "email_not_verified"
	CodeInvalidAssertion    = "invalid_assertion"
)

// Error is the single error shape the lifecycle flows surface to transports.
// Details carries caller-safe data only: a field map for validation, the
// colliding value for conflicts. Cause is logged, never rendered.
type Error struct {
	Kind      Kind
	Code      string
	Message   string
	Details   any
	Retryable bool
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func Unauthorized(code, message string) *Error {
	return &Error{Kind: KindUnauthorized, Code: code, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Conflict names the colliding field in the message, e.g. "email already exists".
func Conflict(field, value string) *Error {
	return &Error{
		Kind:    KindConflict,
		Code:    field,
		Message: fmt.Sprintf("%s already exists", field),
		Details: fmt.Sprintf("The value '%s' for field '%s' already exists.", value, field),
	}
}

func Validation(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: "Validation error", Details: fields}
}

func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Message: "Internal server error", Cause: cause}
}

// Retryable is an InternalError the caller may safely repeat, e.g. after a
// transaction timeout.
func Retryable(cause error) *Error {
	return &Error{Kind: KindInternal, Message: "Internal server error", Retryable: true, Cause: cause}
}

func (e *Error) WithCause(cause error) *Error {
	cp := *e
	cp.Cause = cause
	return &cp
}

func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf reports the taxonomy kind of err. Anything unclassified is internal.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

func HTTPStatus(err error) int {
	if e, ok := As(err); ok {
		return e.HTTPStatus()
	}
	return http.StatusInternalServerError
}
