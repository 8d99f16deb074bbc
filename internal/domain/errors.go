package domain

import (
	"errors"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// HTTPError is implemented by every error type in this package so handlers
// can map any of them to a status code without a type switch.
type HTTPError interface {
	error
	StatusCode() int
}

// Sentinels for errors.Is matching.
var (
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("already exists")
	ErrAuth       = errors.New("invalid credentials")
	ErrNotFound   = errors.New("not found")
	ErrConfig     = errors.New("server misconfigured")
	ErrUpstream   = errors.New("upstream failure")
)

type (
	// ValidationError is bad or missing user input.
	ValidationError struct {
		Message string
	}

	// ConflictError is a uniqueness violation, e.g. a duplicate email.
	ConflictError struct {
		Message string
	}

	// AuthError carries a deliberately generic message.
	AuthError struct {
		Message string
	}

	// NotFoundError is returned both for missing resources and for
	// resources owned by another user.
	NotFoundError struct {
		Message string
	}

	// ConfigError is a server-side misconfiguration the user cannot fix.
	ConfigError struct {
		Message string
	}

	// UpstreamError wraps a failed call to a third-party API.
	UpstreamError struct {
		Message string
		Err     error
	}
)

func (e *ValidationError) Error() string { return e.Message }
func (e *ConflictError) Error() string   { return e.Message }
func (e *AuthError) Error() string       { return e.Message }
func (e *NotFoundError) Error() string   { return e.Message }
func (e *ConfigError) Error() string     { return e.Message }
func (e *UpstreamError) Error() string   { return e.Message }

func (e *ValidationError) StatusCode() int { return http.StatusBadRequest }
func (e *ConflictError) StatusCode() int   { return http.StatusConflict }
func (e *AuthError) StatusCode() int       { return http.StatusUnauthorized }
func (e *NotFoundError) StatusCode() int   { return http.StatusNotFound }
func (e *ConfigError) StatusCode() int     { return http.StatusInternalServerError }
func (e *UpstreamError) StatusCode() int   { return http.StatusBadGateway }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
func (e *ConflictError) Is(target error) bool   { return target == ErrConflict }
func (e *AuthError) Is(target error) bool       { return target == ErrAuth }
func (e *NotFoundError) Is(target error) bool   { return target == ErrNotFound }
func (e *ConfigError) Is(target error) bool     { return target == ErrConfig }
func (e *UpstreamError) Is(target error) bool   { return target == ErrUpstream }

func (e *UpstreamError) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status for err, or 500 when err is not a
// domain error.
func StatusCode(err error) int {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode()
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the message that is safe to show a client.
// Errors outside this package are never exposed.
func PublicMessage(err error) string {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Error()
	}
	return "internal server error"
}

// FromValidation converts ozzo-validation field errors into a
// ValidationError carrying the message of the first failing field, checked
// in the given order.
func FromValidation(err error, fields ...string) error {
	if err == nil {
		return nil
	}
	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		for _, f := range fields {
			if fe, ok := fieldErrs[f]; ok && fe != nil {
				return &ValidationError{Message: fe.Error()}
			}
		}
	}
	return &ValidationError{Message: err.Error()}
}
