// Package apperr defines the error taxonomy rendered at the HTTP boundary.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure for transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindTooManyRequests
)

// Error carries a stable machine code and a human-readable message.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	if e.Message == "" || e.Message == e.Code {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by Kind and Code so callers can compare against
// the exported sentinels.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// Status maps the kind onto an HTTP status.
func (e *Error) Status() int {
	switch e.Kind {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func newErr(kind Kind, code, message string) *Error {
	if message == "" {
		message = code
	}
	return &Error{Kind: kind, Code: code, Message: message}
}

func BadRequest(code, message string) *Error   { return newErr(KindBadRequest, code, message) }
func Unauthorized(code, message string) *Error { return newErr(KindUnauthorized, code, message) }
func Forbidden(code, message string) *Error    { return newErr(KindForbidden, code, message) }
func NotFound(code, message string) *Error     { return newErr(KindNotFound, code, message) }
func Conflict(code, message string) *Error     { return newErr(KindConflict, code, message) }
func TooManyRequests(code, message string) *Error {
	return newErr(KindTooManyRequests, code, message)
}

// Internal wraps an unexpected failure.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: "internal_error", Message: "An unexpected error occurred.", Err: err}
}

// From extracts an *Error from err, wrapping anything else as internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// KindOf reports the kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Authorization failures shared by the pipeline and the services.
var (
	ErrMissingToken       = Unauthorized("missing_token", "Missing bearer token.")
	ErrInvalidToken       = Unauthorized("invalid_token", "Invalid token.")
	ErrTokenExpired       = Unauthorized("token_expired", "Token has expired.")
	ErrInvalidCredentials = Unauthorized("invalid_credentials", "Invalid credentials.")
	ErrUserInactive       = Forbidden("user_inactive", "User is not active.")

	ErrTenantContextRequired = BadRequest("tenant_context_required", "Selecciona un tenant")
	ErrInvalidClientID       = BadRequest("invalid_client_id", "Invalid client_id format.")
	ErrTenantNotFound        = NotFound("tenant_not_found", "Tenant no encontrado")

	ErrMissingPermission  = Forbidden("missing_permission", "missing_permission")
	ErrInsufficientAccess = Forbidden("insufficient_access", "Insufficient access level")
	ErrAccessNotFound     = NotFound("access_record_not_found", "Resource not found.")
)
