// Copyright (c) 2026 DLMS. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package apperr defines the centralized error handling framework for the DLMS gateway.

It provides a rich error type that bridges remote API failures, local validation
failures and the JSON responses the gateway sends back to the browser.

Architecture:

  - AppError: A struct containing a machine-readable Code, a failure Kind and a
    user-friendly message.
  - Kind: The recovery taxonomy (authentication, authorization, validation, network,
    server). Callers branch on the Kind, never on the message.
  - Mapping: Explicit mapping from AppError to standard HTTP Status Codes.

Every error that leaves a store or the API client should be an [AppError] so the
gateway can decide between a redirect, a rollback notice or a plain error.
*/
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// # Failure Taxonomy

// Kind classifies an [AppError] by how the caller is expected to recover.
type Kind string

const (
	// KindAuthentication means the token is missing, expired or rejected.
	KindAuthentication Kind = "authentication"

	// KindAuthorization means the user is known but lacks a required role.
	KindAuthorization Kind = "authorization"

	// KindValidation means the input was rejected before any network call.
	KindValidation Kind = "validation"

	// KindNotFound means the addressed record or resource does not exist.
	KindNotFound Kind = "not_found"

	// KindNetwork means the remote API could not be reached.
	KindNetwork Kind = "network"

	// KindServer means the remote API answered with an error or a malformed body.
	KindServer Kind = "server"

	// KindInternal is an unexpected local failure.
	KindInternal Kind = "internal"
)

// AppError is the canonical error type for the DLMS gateway.
//
// It carries an HTTP status code, a machine-readable code, a client-safe
// message, and an optional slice of field-level validation errors.
//
// # Security
//
// The Cause field is for server-side logging only and is never sent to clients
// to avoid leaking internal implementation details (e.g., upstream bodies).
type AppError struct {
	// Code is a machine-readable error identifier (e.g. "NOT_FOUND", "UNAUTHENTICATED").
	Code string `json:"code"`
	// Kind is the recovery class of the failure.
	Kind Kind `json:"kind"`
	// Message is a human-readable description safe to return to the client.
	Message string `json:"error"`
	// Redirect, when set, is the navigation target the client should follow.
	Redirect string `json:"redirect,omitempty"`
	// HTTPStatus is the HTTP response status code.
	HTTPStatus int `json:"-"`
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

// WithRedirect returns a copy of the error carrying a navigation target.
func (e *AppError) WithRedirect(path string) *AppError {
	clone := *e
	clone.Redirect = path
	return &clone
}

// WithCause returns a copy of the error wrapping cause.
func (e *AppError) WithCause(cause error) *AppError {
	clone := *e
	clone.Cause = cause
	return &clone
}

// # Client Errors (4xx)

// NotFound creates a 404 [AppError] for a named resource.
//
// Example:
//
//	apperr.NotFound("Note") // Returns "Note not found"
func NotFound(resource string) *AppError {
	return &AppError{
		Code:       "NOT_FOUND",
		Kind:       KindNotFound,
		Message:    resource + " not found",
		HTTPStatus: http.StatusNotFound,
	}
}

// Unauthenticated creates a 401 [AppError] (AuthenticationError).
func Unauthenticated(msg string) *AppError {
	return &AppError{
		Code:       "UNAUTHENTICATED",
		Kind:       KindAuthentication,
		Message:    msg,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// Forbidden creates a 403 [AppError] (AuthorizationError).
func Forbidden(msg string) *AppError {
	return &AppError{
		Code:       "FORBIDDEN",
		Kind:       KindAuthorization,
		Message:    msg,
		HTTPStatus: http.StatusForbidden,
	}
}

// ValidationError creates a 400 [AppError] with optional per-field details.
func ValidationError(msg string, details ...FieldError) *AppError {
	return &AppError{
		Code:       "VALIDATION_ERROR",
		Kind:       KindValidation,
		Message:    msg,
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
	}
}

// RateLimited creates a 429 [AppError].
func RateLimited(retryAfterSeconds int) *AppError {
	return &AppError{
		Code:       "RATE_LIMITED",
		Kind:       KindValidation,
		Message:    fmt.Sprintf("Too many requests. Try again in %ds.", retryAfterSeconds),
		HTTPStatus: http.StatusTooManyRequests,
	}
}

// # Upstream Errors

// Network creates a 502 [AppError] for a remote API that could not be reached.
func Network(cause error) *AppError {
	return &AppError{
		Code:       "NETWORK_ERROR",
		Kind:       KindNetwork,
		Message:    "The library service could not be reached",
		HTTPStatus: http.StatusBadGateway,
		Cause:      cause,
	}
}

// Upstream creates a [AppError] (ServerError) for a remote API failure response.
//
// Client-side statuses (4xx) are passed through so the browser sees the same
// class of failure the API reported; everything else becomes 502.
func Upstream(status int, msg string) *AppError {
	if msg == "" {
		msg = "The library service rejected the request"
	}

	httpStatus := http.StatusBadGateway
	if status >= 400 && status < 500 {
		httpStatus = status
	}

	return &AppError{
		Code:       "UPSTREAM_ERROR",
		Kind:       KindServer,
		Message:    msg,
		HTTPStatus: httpStatus,
	}
}

// # Server Errors (5xx)

// Internal creates a 500 [AppError] wrapping an unexpected local error.
// The cause is stored for logging but is never sent to the client.
func Internal(cause error) *AppError {
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Kind:       KindInternal,
		Message:    "An unexpected error occurred",
		HTTPStatus: http.StatusInternalServerError,
		Cause:      cause,
	}
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

// IsKind reports whether err carries an [*AppError] of the given kind.
func IsKind(err error, kind Kind) bool {
	ae := As(err)
	return ae != nil && ae.Kind == kind
}
