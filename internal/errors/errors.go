package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Authentication
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeInvalidToken ErrorCode = "INVALID_TOKEN"

	// Validation
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED"

	// Resource
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	ErrCodeConflict ErrorCode = "CONFLICT"

	// Transport
	ErrCodeNotConnected     ErrorCode = "NOT_CONNECTED"
	ErrCodeConnectionFailed ErrorCode = "CONNECTION_FAILED"

	// Session
	ErrCodeAlreadyConnecting ErrorCode = "ALREADY_CONNECTING"
	ErrCodeAlreadyActive     ErrorCode = "ALREADY_ACTIVE"
	ErrCodeUnknownChannel    ErrorCode = "UNKNOWN_CHANNEL"

	// Pairing
	ErrCodeStalePairingCode ErrorCode = "STALE_PAIRING_CODE"
	ErrCodePairingExpired   ErrorCode = "PAIRING_EXPIRED"

	// Dispatch
	ErrCodeSubscriber ErrorCode = "SUBSCRIBER_ERROR"

	// Rate Limiting
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Internal
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
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

func Unauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message)
}

func InvalidToken(message string) *AppError {
	return New(ErrCodeInvalidToken, message)
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func Conflict(message string) *AppError {
	return New(ErrCodeConflict, message)
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

func NotConnected() *AppError {
	return New(ErrCodeNotConnected, "Agent transport is not connected")
}

func ConnectionFailed(reason string) *AppError {
	return New(ErrCodeConnectionFailed, fmt.Sprintf("Could not connect to agent: %s", reason))
}

func AlreadyConnecting(channelID string) *AppError {
	return New(ErrCodeAlreadyConnecting, "Channel is already pairing").
		WithDetails(map[string]string{"channelId": channelID})
}

func AlreadyActive(channelID string) *AppError {
	return New(ErrCodeAlreadyActive, "Channel is already active; disconnect first").
		WithDetails(map[string]string{"channelId": channelID})
}

func UnknownChannel(channelID string) *AppError {
	return New(ErrCodeUnknownChannel, "No pairing session for channel").
		WithDetails(map[string]string{"channelId": channelID})
}

func StalePairingCode() *AppError {
	return New(ErrCodeStalePairingCode, "Pairing code is no longer current; request a new one")
}

func PairingExpired() *AppError {
	return New(ErrCodePairingExpired, "Pairing code has expired; request a new one")
}

func SubscriberError(kind string, cause error) *AppError {
	return Wrap(ErrCodeSubscriber, fmt.Sprintf("Subscriber for %s failed", kind), cause)
}

func RateLimitExceeded() *AppError {
	return New(ErrCodeRateLimitExceeded, "Rate limit exceeded")
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func Database(cause error) *AppError {
	return Wrap(ErrCodeDatabase, "Database error", cause)
}

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

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	return GetCode(err) == code
}
