// Copyright (c) 2026 Divvy. All rights reserved.

/*
Package apperr defines the centralized error handling framework for Divvy.

It provides a rich error type that bridges the gap between low-level Domain/Storage
errors and high-level HTTP responses.

Architecture:

  - AppError: A struct containing machine-readable ErrorCode and user-friendly messages.
  - Reason: A finer-grained code for authentication failures (e.g. "expired").
  - Mapping: Explicit mapping from AppError to standard HTTP Status Codes.

Every error that leaves the service layer should be wrapped as an [AppError] to ensure
consistent API responses.
*/
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/divvyapp/divvy/internal/platform/sec"
)

// # Authentication Reasons

// Reason codes attached to 401/503 responses. Clients switch on these to
// decide between re-login, refresh and retry.
const (
	ReasonMissingToken       = "missing_token"
	ReasonInvalidSignature   = "invalid_signature"
	ReasonExpired            = "expired"
	ReasonRevoked            = "revoked"
	ReasonInvalidCredentials = "invalid_credentials"
	ReasonInvalidRefresh     = "invalid_refresh_token"
	ReasonStoreUnavailable   = "store_unavailable"
)

// AppError is the canonical error type for the Divvy API.
//
// It carries an HTTP status code, a machine-readable code, a client-safe
// message, and an optional slice of field-level validation errors.
//
// # Security
//
// The Cause field is for server-side logging only and is never sent to clients
// to avoid leaking internal implementation details (e.g., SQL queries).
type AppError struct {
	// Code is a machine-readable error identifier (e.g. "NOT_FOUND", "CONFLICT").
	Code string `json:"code"`
	// Message is a human-readable description safe to return to the client.
	Message string `json:"error"`
	// Reason refines UNAUTHORIZED and SERVICE_UNAVAILABLE responses.
	Reason string `json:"reason,omitempty"`
	// HTTPStatus is the HTTP response status code.
	HTTPStatus int `json:"-"`
	// Retryable marks transient failures; the responder adds Retry-After.
	Retryable bool `json:"-"`
	// Cause is the underlying error, used for server-side logging only.
	Cause error `json:"-"`
	// Details holds per-field validation errors for VALIDATION_ERROR responses.
	Details []FieldError `json:"details,omitempty"`
}

// FieldError represents a single field-level validation failure.
type FieldError struct {
	// Field is the JSON field name that failed validation.
	Field string `json:"field"`
	// Message is the human-readable description of the failure.
	Message string `json:"message"`
}

// Error implements the error interface. It returns the client-safe message.
func (e *AppError) Error() string { return e.Message }

// Unwrap allows [errors.Is] and [errors.As] to traverse the cause chain.
func (e *AppError) Unwrap() error { return e.Cause }

// # Client Errors (4xx)

// NotFound creates a 404 [AppError] for a named resource.
//
// Example:
//
//	apperr.NotFound("Session") // Returns "Session not found"
func NotFound(resource string) *AppError {
	return &AppError{
		Code:       "NOT_FOUND",
		Message:    resource + " not found",
		HTTPStatus: http.StatusNotFound,
	}
}

// Unauthorized creates a 401 [AppError].
func Unauthorized(msg string) *AppError {
	return &AppError{
		Code:       "UNAUTHORIZED",
		Message:    msg,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// Unauthenticated creates a 401 [AppError] carrying an authentication reason.
func Unauthenticated(reason, msg string, cause error) *AppError {
	return &AppError{
		Code:       "UNAUTHORIZED",
		Message:    msg,
		Reason:     reason,
		HTTPStatus: http.StatusUnauthorized,
		Cause:      cause,
	}
}

// Forbidden creates a 403 [AppError].
func Forbidden(msg string) *AppError {
	return &AppError{
		Code:       "FORBIDDEN",
		Message:    msg,
		HTTPStatus: http.StatusForbidden,
	}
}

// Conflict creates a 409 [AppError] for duplicate or unique-constraint violations.
func Conflict(msg string) *AppError {
	return &AppError{
		Code:       "CONFLICT",
		Message:    msg,
		HTTPStatus: http.StatusConflict,
	}
}

// ValidationError creates a 400 [AppError] with optional per-field details.
func ValidationError(msg string, details ...FieldError) *AppError {
	return &AppError{
		Code:       "VALIDATION_ERROR",
		Message:    msg,
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
	}
}

// RateLimited creates a 429 [AppError].
func RateLimited(retryAfterSeconds int) *AppError {
	return &AppError{
		Code:       "RATE_LIMITED",
		Message:    fmt.Sprintf("Too many requests. Try again in %ds.", retryAfterSeconds),
		HTTPStatus: http.StatusTooManyRequests,
		Retryable:  true,
	}
}

// PayloadTooLarge creates a 413 [AppError].
func PayloadTooLarge(limit int64) *AppError {
	return &AppError{
		Code:       "PAYLOAD_TOO_LARGE",
		Message:    fmt.Sprintf("Request body exceeds %d bytes", limit),
		HTTPStatus: http.StatusRequestEntityTooLarge,
	}
}

// # Server Errors (5xx)

// Internal creates a 500 [AppError] wrapping an unexpected server-side error.
// The cause is stored for logging but is never sent to the client.
func Internal(cause error) *AppError {
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "An unexpected error occurred",
		HTTPStatus: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// ServiceUnavailable creates a 503 [AppError] for maintenance mode.
func ServiceUnavailable(msg string) *AppError {
	return &AppError{
		Code:       "SERVICE_UNAVAILABLE",
		Message:    msg,
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

// StoreUnavailable creates a retryable 503 [AppError] for a failed credential
// or revocation lookup. It is never reported as an authentication failure.
func StoreUnavailable(cause error) *AppError {
	return &AppError{
		Code:       "SERVICE_UNAVAILABLE",
		Message:    "Authentication is temporarily unavailable, please retry",
		Reason:     ReasonStoreUnavailable,
		HTTPStatus: http.StatusServiceUnavailable,
		Retryable:  true,
		Cause:      cause,
	}
}

// # Authentication Mapping

// Auth maps an authentication failure from package sec onto its client
// response. An [*AppError] that already carries a Reason passes through
// unchanged, and anything unrecognised becomes a 500.
func Auth(err error) *AppError {
	if err == nil {
		return nil
	}

	if appErr := As(err); appErr != nil && appErr.Reason != "" {
		return appErr
	}

	switch {
	case errors.Is(err, sec.ErrStoreUnavailable):
		return StoreUnavailable(err)
	case errors.Is(err, sec.ErrUnauthenticated):
		return Unauthenticated(ReasonMissingToken, "Authentication required", err)
	case errors.Is(err, sec.ErrTokenExpired):
		return Unauthenticated(ReasonExpired, "Access token has expired", err)
	case errors.Is(err, sec.ErrTokenRevoked):
		return Unauthenticated(ReasonRevoked, "Access token has been revoked", err)
	case errors.Is(err, sec.ErrInvalidSignature):
		return Unauthenticated(ReasonInvalidSignature, "Invalid access token", err)
	case errors.Is(err, sec.ErrInvalidCredentials):
		return Unauthenticated(ReasonInvalidCredentials, "Invalid username or password", err)
	}

	if appErr := As(err); appErr != nil {
		return appErr
	}
	return Internal(err)
}

// # Helpers

// IsAppError reports whether err (or any error in its chain) is an [*AppError].
func IsAppError(err error) bool {
	var ae *AppError
	return errors.As(err, &ae)
}

// As extracts the [*AppError] from err's chain. It returns nil if not found.
func As(err error) *AppError {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	return nil
}
