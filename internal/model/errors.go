package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for common cases.
// Use errors.Is() to check against these.
var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
	ErrAuthFailure    = errors.New("authentication failed")
	ErrUpstreamError  = errors.New("upstream error")
	ErrRateLimited    = errors.New("rate limited")
	ErrCartUnusable   = errors.New("cart unusable")
	ErrConfigMissing  = errors.New("configuration missing")
)

// APIError represents a structured error for API responses.
// Implements error interface and supports unwrapping.
type APIError struct {
	Code       string        `json:"code"`
	Message    string        `json:"message"`
	StatusCode int           `json:"-"` // HTTP status, not serialized
	RetryAfter time.Duration `json:"-"` // Hint from rate limit headers, zero if unknown
	Err        error         `json:"-"` // Wrapped error, not serialized
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a 404 error for missing resources.
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: 404,
		Err:        ErrNotFound,
	}
}

// NewValidationError creates a 400 error for invalid input.
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:       "VALIDATION_ERROR",
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		StatusCode: 400,
		Err:        ErrInvalidRequest,
	}
}

// NewAuthError creates a 401 error for a rejected credential exchange or bearer token.
func NewAuthError(reason string, err error) *APIError {
	wrapped := ErrAuthFailure
	if err != nil {
		wrapped = fmt.Errorf("%w: %v", ErrAuthFailure, err)
	}
	return &APIError{
		Code:       "AUTH_FAILURE",
		Message:    reason,
		StatusCode: 401,
		Err:        wrapped,
	}
}

// NewUpstreamError creates a 502 error for backend failures.
func NewUpstreamError(service string, err error) *APIError {
	return &APIError{
		Code:       "UPSTREAM_ERROR",
		Message:    fmt.Sprintf("%s request failed", service),
		StatusCode: 502,
		Err:        fmt.Errorf("%w: %v", ErrUpstreamError, err),
	}
}

// NewCartUnusableError marks a cart that is absent, malformed or terminal.
// The session recovers from it by creating a replacement cart.
func NewCartUnusableError(id, reason string) *APIError {
	return &APIError{
		Code:       "CART_UNUSABLE",
		Message:    fmt.Sprintf("cart %s unusable: %s", id, reason),
		StatusCode: 409,
		Err:        ErrCartUnusable,
	}
}

// NewInternalError creates a 500 error for unexpected failures.
func NewInternalError(err error) *APIError {
	return &APIError{
		Code:       "INTERNAL_ERROR",
		Message:    "an internal error occurred",
		StatusCode: 500,
		Err:        err,
	}
}

// NewRateLimitError creates a 429 error for rate limiting.
func NewRateLimitError(service string, retryAfter time.Duration) *APIError {
	return &APIError{
		Code:       "RATE_LIMITED",
		Message:    fmt.Sprintf("%s rate limit exceeded, please retry later", service),
		StatusCode: 429,
		RetryAfter: retryAfter,
		Err:        ErrRateLimited,
	}
}

// ConfigError lists every required configuration key that is absent.
type ConfigError struct {
	Missing []string
}

func (e *ConfigError) Error() string {
	return "missing parameters: " + strings.Join(e.Missing, ", ")
}

func (e *ConfigError) Unwrap() error {
	return ErrConfigMissing
}
