package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses. Code is part of
// the public contract and must stay stable.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Tenant isolation ----

// ErrCrossTenantDenied marks an attempt to touch another tenant's row. Always
// fatal to the request and logged as security-relevant.
func ErrCrossTenantDenied() *AppError {
	return New("CROSS_TENANT_DENIED", "Access to this resource is denied", http.StatusForbidden)
}

// ---- Idempotency ----

func ErrIdempotencyConflict() *AppError {
	return New("IDEMPOTENCY_CONFLICT", "Idempotency key was already used with a different payload", http.StatusConflict)
}

func ErrIdempotencyInProgress() *AppError {
	return New("IDEMPOTENCY_IN_PROGRESS", "A request with this idempotency key is still processing, retry shortly", http.StatusConflict)
}

// ---- Order lifecycle ----

func ErrStaleOrderState() *AppError {
	return New("STALE_ORDER_STATE", "Order was modified concurrently, re-fetch and retry", http.StatusConflict)
}

func ErrInvalidTransition(from, action string) *AppError {
	return New("INVALID_TRANSITION", fmt.Sprintf("Action %q is not allowed in status %q", action, from), http.StatusUnprocessableEntity)
}

// ---- Webhooks ----

func ErrWebhookSignatureInvalid() *AppError {
	return New("WEBHOOK_SIGNATURE_INVALID", "Webhook signature verification failed", http.StatusUnauthorized)
}

// ---- Validation ----

func Validation(message string) *AppError {
	return New("VALIDATION_ERROR", message, http.StatusBadRequest)
}

// ---- AuthN / AuthZ ----

func ErrUnauthorized() *AppError {
	return New("UNAUTHORIZED", "Invalid or missing credentials", http.StatusUnauthorized)
}

func ErrForbidden() *AppError {
	return New("FORBIDDEN", "Operation not permitted for this role", http.StatusForbidden)
}

// ---- Rate limiting ----

func ErrRateLimited() *AppError {
	return New("RATE_LIMITED", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- Lookup ----

func ErrNotFound(entity string) *AppError {
	return New("NOT_FOUND", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

// ---- System ----

// InternalError wraps an internal fault. The wrapped error is logged, never
// returned to the client.
func InternalError(err error) *AppError {
	return Wrap("INTERNAL", "Internal server error", http.StatusInternalServerError, err)
}
