package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError(t *testing.T) {
	t.Run("Error returns formatted string", func(t *testing.T) {
		err := New(ErrCodeNotFound, "User not found")
		assert.Equal(t, "NOT_FOUND: User not found", err.Error())
	})

	t.Run("Error with cause includes cause", func(t *testing.T) {
		cause := errors.New("dial tcp: connection refused")
		err := StorageUnavailable(cause)
		assert.Contains(t, err.Error(), "STORAGE_UNAVAILABLE")
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("WithCause adds cause to error", func(t *testing.T) {
		cause := errors.New("original error")
		err := New(ErrCodeInternal, "Something went wrong").WithCause(cause)
		assert.Equal(t, cause, err.Unwrap())
	})

	t.Run("WithDetails adds details to error", func(t *testing.T) {
		details := map[string]string{"field": "email"}
		err := New(ErrCodeValidation, "Validation failed").WithDetails(details)
		assert.Equal(t, details, err.Details)
	})

	t.Run("errors.Is matches by code", func(t *testing.T) {
		err := fmt.Errorf("redeem: %w", InvitationAlreadyUsed())
		assert.True(t, errors.Is(err, InvitationAlreadyUsed()))
		assert.False(t, errors.Is(err, InvitationExpired()))
	})
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name         string
		constructor  func() *AppError
		expectedCode ErrorCode
	}{
		{"InvalidCredentials", InvalidCredentials, ErrCodeInvalidCredentials},
		{"SecondFactorRequired", SecondFactorRequired, ErrCodeSecondFactorRequired},
		{"RateLimited", RateLimited, ErrCodeRateLimited},
		{"Unauthorized", func() *AppError { return Unauthorized("test") }, ErrCodeUnauthorized},
		{"SessionExpired", SessionExpired, ErrCodeSessionExpired},
		{"CSRFInvalid", CSRFInvalid, ErrCodeCSRFInvalid},
		{"PermissionDenied", PermissionDenied, ErrCodePermissionDenied},
		{"InvitationNotFound", InvitationNotFound, ErrCodeInvitationNotFound},
		{"InvitationExpired", InvitationExpired, ErrCodeInvitationExpired},
		{"InvitationAlreadyUsed", InvitationAlreadyUsed, ErrCodeInvitationAlreadyUsed},
		{"NotFound", func() *AppError { return NotFound("User") }, ErrCodeNotFound},
		{"AlreadyExists", func() *AppError { return AlreadyExists("User") }, ErrCodeAlreadyExists},
		{"ValidationError", func() *AppError { return ValidationError("test") }, ErrCodeValidation},
		{"InvalidInput", func() *AppError { return InvalidInput("email", "invalid") }, ErrCodeInvalidInput},
		{"MissingRequired", func() *AppError { return MissingRequired("email") }, ErrCodeMissingRequired},
		{"StorageUnavailable", func() *AppError { return StorageUnavailable(nil) }, ErrCodeStorageUnavailable},
		{"Internal", func() *AppError { return Internal("test") }, ErrCodeInternal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.constructor()
			assert.Equal(t, tc.expectedCode, err.Code)
			assert.NotEmpty(t, err.Message)
		})
	}
}

func TestGenericMessages(t *testing.T) {
	t.Run("credential failures do not reveal which check failed", func(t *testing.T) {
		assert.Equal(t, "Invalid email or password", InvalidCredentials().Message)
	})

	t.Run("storage failures hide the cause from the message", func(t *testing.T) {
		err := StorageUnavailable(errors.New("pq: password authentication failed for user \"intranet\""))
		assert.NotContains(t, err.Message, "pq")
	})

	t.Run("permission denied carries no detail", func(t *testing.T) {
		assert.Equal(t, "Access denied", PermissionDenied().Message)
		assert.Nil(t, PermissionDenied().Details)
	})
}

func TestAsAppError(t *testing.T) {
	t.Run("extracts wrapped AppError", func(t *testing.T) {
		original := NotFound("User")
		extracted, ok := AsAppError(fmt.Errorf("lookup: %w", original))
		assert.True(t, ok)
		assert.Equal(t, original, extracted)
	})

	t.Run("returns false for non-AppError", func(t *testing.T) {
		extracted, ok := AsAppError(errors.New("standard error"))
		assert.False(t, ok)
		assert.Nil(t, extracted)
	})
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, ErrCodeRateLimited, GetCode(RateLimited()))
	assert.Equal(t, ErrCodeInternal, GetCode(errors.New("standard error")))
	assert.True(t, HasCode(PermissionDenied(), ErrCodePermissionDenied))
	assert.False(t, HasCode(errors.New("x"), ErrCodePermissionDenied))
	assert.True(t, IsAppError(InvalidCredentials()))
}
