package errors

import (
	"errors"
	"net/http"
)

// Standard error types
var (
	ErrNotFound            = errors.New("resource not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidTransition   = errors.New("invalid state transition")
	ErrInvalidOperation    = errors.New("invalid operation")
	ErrPaymentVerification = errors.New("payment verification failed")
	ErrConflict            = errors.New("resource conflict")
	ErrInternal            = errors.New("internal server error")
	ErrTemporaryFailure    = errors.New("temporary failure")
	ErrServiceUnavailable  = errors.New("service unavailable")
	ErrTimeout             = errors.New("timeout")
	ErrRateLimited         = errors.New("rate limited")
)

// Machine-readable error codes surfaced to callers
const (
	CodeValidation             = "VALIDATION_ERROR"
	CodeOrderNotFound          = "ORDER_NOT_FOUND"
	CodeDeadLetterNotFound     = "DEAD_LETTER_NOT_FOUND"
	CodeInvalidStateTransition = "INVALID_STATE_TRANSITION"
	CodeInvalidOperation       = "INVALID_OPERATION"
	CodePaymentVerification    = "PAYMENT_VERIFICATION_FAILED"
	CodeOrderCreationFailed    = "ORDER_CREATION_FAILED"
	CodeOrderUpdateFailed      = "ORDER_UPDATE_FAILED"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeInternal               = "INTERNAL_ERROR"
	CodeServiceUnavailable     = "SERVICE_UNAVAILABLE"
	CodeTimeout                = "TIMEOUT"
	CodeRateLimited            = "RATE_LIMITED"
)

// AppError represents a structured application error with context
type AppError struct {
	Err        error
	Code       string
	StatusCode int
	Message    string
	Retryable  bool
	Context    map[string]interface{}
}

// Error returns the error message
func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithContext adds additional context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new AppError with the given parameters
func NewAppError(err error, code, message string, statusCode int, retryable bool) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  retryable,
		Context:    make(map[string]interface{}),
	}
}

// AsAppError extracts the first AppError in err's chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the machine-readable code of err, INTERNAL_ERROR for
// anything that is not an AppError.
func CodeOf(err error) string {
	if appErr, ok := AsAppError(err); ok && appErr.Code != "" {
		return appErr.Code
	}
	return CodeInternal
}

// StatusCodeOf returns the HTTP status carried by err
func StatusCodeOf(err error) int {
	if appErr, ok := AsAppError(err); ok && appErr.StatusCode != 0 {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsRetryable checks if the error is retryable
func IsRetryable(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Retryable
	}

	return errors.Is(err, ErrTemporaryFailure) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}

// NewValidationError creates a validation error for rejected input
func NewValidationError(message string) *AppError {
	return NewAppError(ErrInvalidInput, CodeValidation, message, http.StatusBadRequest, false)
}

// NewOrderNotFoundError creates a not found error for an order id
func NewOrderNotFoundError(orderID string) *AppError {
	return NewAppError(ErrNotFound, CodeOrderNotFound, "order not found", http.StatusNotFound, false).
		WithContext("orderId", orderID)
}

// NewInvalidStateTransitionError reports an edge missing from a transition table
func NewInvalidStateTransitionError(field, current, requested string) *AppError {
	return NewAppError(
		ErrInvalidTransition,
		CodeInvalidStateTransition,
		"cannot change "+field+" from "+current+" to "+requested,
		http.StatusBadRequest,
		false,
	).WithContext("field", field).
		WithContext("currentStatus", current).
		WithContext("requestedStatus", requested)
}

// NewInvalidOperationError creates an error for a structurally valid but disallowed action
func NewInvalidOperationError(message string) *AppError {
	return NewAppError(ErrInvalidOperation, CodeInvalidOperation, message, http.StatusBadRequest, false)
}

// NewPaymentNotVerifiedError is returned when the gateway explicitly refuses a payment
func NewPaymentNotVerifiedError(message string) *AppError {
	return NewAppError(ErrPaymentVerification, CodePaymentVerification, message, http.StatusBadRequest, false)
}

// NewPaymentVerifierError wraps an unexpected failure of the payment verifier
func NewPaymentVerifierError(message string) *AppError {
	return NewAppError(ErrPaymentVerification, CodePaymentVerification, message, http.StatusInternalServerError, false)
}

// NewOrderCreationFailedError wraps a persistence failure during creation
func NewOrderCreationFailedError(message string) *AppError {
	return NewAppError(ErrInternal, CodeOrderCreationFailed, message, http.StatusInternalServerError, false)
}

// NewOrderUpdateFailedError wraps a persistence failure during an update
func NewOrderUpdateFailedError(message string) *AppError {
	return NewAppError(ErrInternal, CodeOrderUpdateFailed, message, http.StatusInternalServerError, false)
}

// NewConflictError creates a conflict error
func NewConflictError(message string) *AppError {
	return NewAppError(ErrConflict, CodeConcurrentModification, message, http.StatusConflict, true)
}

// NewInternalError creates an internal server error
func NewInternalError(message string) *AppError {
	return NewAppError(ErrInternal, CodeInternal, message, http.StatusInternalServerError, true)
}

// NewTemporaryError creates a temporary error
func NewTemporaryError(message string) *AppError {
	return NewAppError(ErrTemporaryFailure, CodeServiceUnavailable, message, http.StatusServiceUnavailable, true)
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(message string) *AppError {
	return NewAppError(ErrTimeout, CodeTimeout, message, http.StatusGatewayTimeout, true)
}

// NewRateLimitedError creates a rate limited error
func NewRateLimitedError(message string) *AppError {
	return NewAppError(ErrRateLimited, CodeRateLimited, message, http.StatusTooManyRequests, true)
}
