package models

import (
	"errors"
	"net/http"
)

// Sentinel errors for the gateway error taxonomy. Layers wrap these with
// fmt.Errorf("...: %w", Err...) so handlers can map any error chain to an
// HTTP status and a stable code.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("requested item not found")
	ErrQuotaExhausted     = errors.New("upstream quota exhausted")
	ErrSandboxRestriction = errors.New("sandbox restriction")
	ErrTimeout            = errors.New("operation timed out")
	ErrUpstream           = errors.New("upstream error")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrInternal           = errors.New("internal error")
)

// ErrorCode returns the wire-level code for an error chain.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "invalid-input"
	case errors.Is(err, ErrNotFound):
		return "not-found"
	case errors.Is(err, ErrQuotaExhausted):
		return "quota-exhausted"
	case errors.Is(err, ErrSandboxRestriction):
		return "sandbox-restriction"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrUpstream):
		return "upstream-error"
	case errors.Is(err, ErrBackendUnavailable):
		return "backend-unavailable"
	default:
		return "internal"
	}
}

// HTTPStatus maps an error chain to the response status.
// Sandbox restrictions surface as 200 with a meta flag (see handlers).
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrQuotaExhausted):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrSandboxRestriction):
		return http.StatusOK
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
