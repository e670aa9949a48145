// Package apperrors provides the registry's unified error taxonomy. Every
// failure carries a stable Kind/Code, a human message, and optional
// structured Details.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure into one of seven stable categories.
type Kind string

const (
	KindValidation    Kind = "VALIDATION"
	KindAuthorization Kind = "AUTHORIZATION"
	KindNotFound      Kind = "NOT_FOUND"
	KindState         Kind = "STATE"
	KindIntegrity     Kind = "INTEGRITY"
	KindUpstream      Kind = "UPSTREAM"
	KindInternal      Kind = "INTERNAL"
)

func (k Kind) httpStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthorization:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindState:
		return http.StatusConflict
	case KindIntegrity:
		return http.StatusConflict
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// RegistryError is the concrete error type every registry-level failure
// surfaces as. It implements error and supports errors.As/Unwrap.
type RegistryError struct {
	Kind       Kind
	Code       string
	Message    string
	Details    map[string]any
	Err        error
	HTTPStatus int
}

// Error implements the error interface.
func (e *RegistryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s/%s] %s: %v", e.Kind, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s/%s] %s", e.Kind, e.Code, e.Message)
}

// Unwrap exposes the wrapped cause, if any.
func (e *RegistryError) Unwrap() error { return e.Err }

// WithDetails attaches a structured detail key/value and returns the error
// for chaining.
func (e *RegistryError) WithDetails(key string, value any) *RegistryError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New builds a RegistryError with no wrapped cause.
func New(kind Kind, code, message string) *RegistryError {
	return &RegistryError{Kind: kind, Code: code, Message: message, HTTPStatus: kind.httpStatus()}
}

// Wrap builds a RegistryError around an existing error.
func Wrap(kind Kind, code, message string, err error) *RegistryError {
	return &RegistryError{Kind: kind, Code: code, Message: message, Err: err, HTTPStatus: kind.httpStatus()}
}

// --- Validation ---

func Validation(code, message string) *RegistryError { return New(KindValidation, code, message) }

func MutuallyExclusive(fieldA, fieldB string) *RegistryError {
	return New(KindValidation, "VAL_MUTUALLY_EXCLUSIVE", "fields are mutually exclusive").
		WithDetails("field_a", fieldA).WithDetails("field_b", fieldB)
}

func OutOfRange(field string, min, max any) *RegistryError {
	return New(KindValidation, "VAL_OUT_OF_RANGE", "value out of range").
		WithDetails("field", field).WithDetails("min", min).WithDetails("max", max)
}

func InvalidIssuanceID(raw string) *RegistryError {
	return New(KindValidation, "INVALID_ISSUANCE_ID", "malformed issuance id").WithDetails("issuance_id", raw)
}

func InvalidTimezone(field string) *RegistryError {
	return New(KindValidation, "INVALID_TIMEZONE", "datetime must be timezone-aware UTC").WithDetails("field", field)
}

// --- Authorization ---

func Unauthorized(message string) *RegistryError { return New(KindAuthorization, "AUTHZ_UNAUTHORIZED", message) }

func Forbidden(message string) *RegistryError { return New(KindAuthorization, "AUTHZ_FORBIDDEN", message) }

// --- Not found ---

func NotFound(resource, id string) *RegistryError {
	return New(KindNotFound, "NOT_FOUND", fmt.Sprintf("%s not found", resource)).
		WithDetails("resource", resource).WithDetails("id", id)
}

// --- State (precondition failures) ---

func State(message string) *RegistryError { return New(KindState, "STATE_PRECONDITION", message) }

// --- Integrity ---

func Integrity(message string) *RegistryError { return New(KindIntegrity, "INTEGRITY_VIOLATION", message) }

// --- Upstream ---

func Upstream(service string, err error) *RegistryError {
	return Wrap(KindUpstream, "UPSTREAM_FAILURE", fmt.Sprintf("%s call failed", service), err).
		WithDetails("service", service)
}

// --- Internal ---

// Internal wraps a failure the CQRS coordinator rolled back for, attaching a
// correlation id so operators can match logs to the caller's response.
func Internal(correlationID string, err error) *RegistryError {
	return Wrap(KindInternal, "INTERNAL", "internal error", err).WithDetails("correlation_id", correlationID)
}

// As extracts a *RegistryError from an error chain, if present.
func As(err error) (*RegistryError, bool) {
	var re *RegistryError
	ok := errors.As(err, &re)
	return re, ok
}

// HTTPStatus returns the HTTP status an error should surface as, defaulting
// to 500 for errors that aren't a *RegistryError.
func HTTPStatus(err error) int {
	if re, ok := As(err); ok {
		return re.HTTPStatus
	}
	return http.StatusInternalServerError
}
