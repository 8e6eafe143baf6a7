package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Authentication
	ErrCodeInvalidCredentials   ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeSecondFactorRequired ErrorCode = "SECOND_FACTOR_REQUIRED"
	ErrCodeRateLimited          ErrorCode = "RATE_LIMITED"
	ErrCodeUnauthorized         ErrorCode = "UNAUTHORIZED"
	ErrCodeSessionExpired       ErrorCode = "SESSION_EXPIRED"
	ErrCodeCSRFInvalid          ErrorCode = "CSRF_INVALID"

	// Authorization
	ErrCodePermissionDenied ErrorCode = "PERMISSION_DENIED"

	// Invitations
	ErrCodeInvitationNotFound    ErrorCode = "INVITATION_NOT_FOUND"
	ErrCodeInvitationExpired     ErrorCode = "INVITATION_EXPIRED"
	ErrCodeInvitationAlreadyUsed ErrorCode = "INVITATION_ALREADY_USED"

	// Validation
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED"

	// Resource
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeAlreadyExists ErrorCode = "ALREADY_EXISTS"

	// Internal
	ErrCodeStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
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

// Is matches any AppError carrying the same code, so callers can compare
// against the sentinel constructors with errors.Is.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
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

// Caller-facing messages stay generic; specifics go to the log.

func InvalidCredentials() *AppError {
	return New(ErrCodeInvalidCredentials, "Invalid email or password")
}

func SecondFactorRequired() *AppError {
	return New(ErrCodeSecondFactorRequired, "Two-factor code required").
		WithDetails(map[string]bool{"requiresTotp": true})
}

func RateLimited() *AppError {
	return New(ErrCodeRateLimited, "Too many login attempts. Please try again later.")
}

func Unauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message)
}

func SessionExpired() *AppError {
	return New(ErrCodeSessionExpired, "Session expired, please sign in again")
}

func CSRFInvalid() *AppError {
	return New(ErrCodeCSRFInvalid, "Invalid CSRF token")
}

func PermissionDenied() *AppError {
	return New(ErrCodePermissionDenied, "Access denied")
}

func InvitationNotFound() *AppError {
	return New(ErrCodeInvitationNotFound, "This invitation link is not valid")
}

func InvitationExpired() *AppError {
	return New(ErrCodeInvitationExpired, "This invitation has expired")
}

func InvitationAlreadyUsed() *AppError {
	return New(ErrCodeInvitationAlreadyUsed, "This invitation has already been used")
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func AlreadyExists(resource string) *AppError {
	return New(ErrCodeAlreadyExists, fmt.Sprintf("%s already exists", resource))
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

func StorageUnavailable(cause error) *AppError {
	return Wrap(ErrCodeStorageUnavailable, "Service temporarily unavailable", cause)
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
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

// HasCode reports whether err is an AppError with the given code.
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}
