package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Session lifecycle
	ErrCodePairingExhausted  ErrorCode = "PAIRING_EXHAUSTED"
	ErrCodeNotReady          ErrorCode = "NOT_READY"
	ErrCodeLifecycleCallback ErrorCode = "LIFECYCLE_CALLBACK"

	// Delivery
	ErrCodeDeliveryFailed      ErrorCode = "DELIVERY_FAILED"
	ErrCodeDestinationNotFound ErrorCode = "DESTINATION_NOT_FOUND"
	ErrCodeTransientFetch      ErrorCode = "TRANSIENT_FETCH"

	// Validation
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED"

	// Resource
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// Throttling
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"

	// Internal
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
	ErrCodeExternal ErrorCode = "EXTERNAL_SERVICE_ERROR"
)

// AppError is a structured error that can be returned to clients
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common error constructors

// PairingExhausted reports a pairing payload reissued past the retry ceiling.
// It is recovered locally by restarting the client.
func PairingExhausted(tenantID string, attempts int) *AppError {
	return New(ErrCodePairingExhausted, fmt.Sprintf("Pairing payload reissued %d times for tenant %s", attempts, tenantID)).
		WithDetails(map[string]any{"tenantId": tenantID, "attempts": attempts})
}

func NotReady(tenantID string) *AppError {
	return New(ErrCodeNotReady, fmt.Sprintf("Session for tenant %s is not ready", tenantID))
}

func LifecycleCallback(event string, cause error) *AppError {
	return Wrap(ErrCodeLifecycleCallback, fmt.Sprintf("Lifecycle callback %s failed", event), cause)
}

// DeliveryFailed wraps a failure in one step of a paced send.
func DeliveryFailed(step string, cause error) *AppError {
	code := ErrCodeDeliveryFailed
	if errors.Is(cause, ErrDestinationNotFound) {
		code = ErrCodeDestinationNotFound
	}
	return Wrap(code, fmt.Sprintf("Delivery failed at %s", step), cause).
		WithDetails(map[string]string{"step": step})
}

func TransientFetch(cause error) *AppError {
	return Wrap(ErrCodeTransientFetch, "Failed to fetch due notifications", cause)
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func RateLimited(retryAfter int) *AppError {
	return New(ErrCodeRateLimited, "Rate limit exceeded").
		WithDetails(map[string]any{"retryAfterSeconds": retryAfter})
}

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func InvalidInput(field string, reason string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Invalid %s: %s", field, reason))
}

func MissingRequired(field string) *AppError {
	return New(ErrCodeMissingRequired, fmt.Sprintf("%s is required", field))
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func Database(cause error) *AppError {
	return Wrap(ErrCodeDatabase, "Database error", cause)
}

func External(service string, cause error) *AppError {
	return Wrap(ErrCodeExternal, fmt.Sprintf("External service error: %s", service), cause)
}

// ErrDestinationNotFound is returned by messaging clients when the target
// conversation does not exist.
var ErrDestinationNotFound = errors.New("destination not found")

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether err is an AppError carrying code.
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}
