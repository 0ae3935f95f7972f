package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError(t *testing.T) {
	t.Run("Error returns formatted string", func(t *testing.T) {
		err := New(ErrCodeNotFound, "Notification not found")
		assert.Equal(t, "NOT_FOUND: Notification not found", err.Error())
	})

	t.Run("Error with cause includes cause", func(t *testing.T) {
		cause := errors.New("database connection failed")
		err := Wrap(ErrCodeDatabase, "Database error", cause)
		assert.Contains(t, err.Error(), "DATABASE_ERROR")
		assert.Contains(t, err.Error(), "Database error")
		assert.Contains(t, err.Error(), "database connection failed")
	})

	t.Run("WithCause adds cause to error", func(t *testing.T) {
		cause := errors.New("original error")
		err := New(ErrCodeInternal, "Something went wrong").WithCause(cause)
		assert.Equal(t, cause, err.Unwrap())
	})

	t.Run("WithDetails adds details to error", func(t *testing.T) {
		details := map[string]string{"field": "dueAt", "reason": "invalid format"}
		err := New(ErrCodeValidation, "Validation failed").WithDetails(details)
		assert.Equal(t, details, err.Details)
	})
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name         string
		constructor  func() *AppError
		expectedCode ErrorCode
	}{
		{"PairingExhausted", func() *AppError { return PairingExhausted("t1", 5) }, ErrCodePairingExhausted},
		{"NotReady", func() *AppError { return NotReady("t1") }, ErrCodeNotReady},
		{"LifecycleCallback", func() *AppError { return LifecycleCallback("ready", errors.New("x")) }, ErrCodeLifecycleCallback},
		{"DeliveryFailed", func() *AppError { return DeliveryFailed("send", errors.New("x")) }, ErrCodeDeliveryFailed},
		{"TransientFetch", func() *AppError { return TransientFetch(errors.New("x")) }, ErrCodeTransientFetch},
		{"NotFound", func() *AppError { return NotFound("Session") }, ErrCodeNotFound},
		{"ValidationError", func() *AppError { return ValidationError("test") }, ErrCodeValidation},
		{"InvalidInput", func() *AppError { return InvalidInput("dueAt", "invalid") }, ErrCodeInvalidInput},
		{"MissingRequired", func() *AppError { return MissingRequired("body") }, ErrCodeMissingRequired},
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

func TestDeliveryFailed(t *testing.T) {
	t.Run("classifies missing destination", func(t *testing.T) {
		cause := fmt.Errorf("bridge: %w", ErrDestinationNotFound)
		err := DeliveryFailed("markSeen", cause)
		assert.Equal(t, ErrCodeDestinationNotFound, err.Code)
		assert.ErrorIs(t, err, ErrDestinationNotFound)
	})

	t.Run("records failing step", func(t *testing.T) {
		err := DeliveryFailed("send", errors.New("timeout"))
		assert.Equal(t, ErrCodeDeliveryFailed, err.Code)
		assert.Equal(t, map[string]string{"step": "send"}, err.Details)
	})
}

func TestPairingExhausted(t *testing.T) {
	err := PairingExhausted("tenant-1", 5)
	assert.Contains(t, err.Message, "tenant-1")
	assert.Equal(t, map[string]any{"tenantId": "tenant-1", "attempts": 5}, err.Details)
}

func TestDatabase(t *testing.T) {
	t.Run("wraps database error", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Database(cause)
		assert.Equal(t, ErrCodeDatabase, err.Code)
		assert.Equal(t, cause, err.Unwrap())
	})
}

func TestExternal(t *testing.T) {
	t.Run("wraps external service error", func(t *testing.T) {
		cause := errors.New("timeout")
		err := External("bridge", cause)
		assert.Equal(t, ErrCodeExternal, err.Code)
		assert.Contains(t, err.Message, "bridge")
		assert.Equal(t, cause, err.Unwrap())
	})
}

func TestIsAppError(t *testing.T) {
	t.Run("returns true for AppError", func(t *testing.T) {
		err := New(ErrCodeNotFound, "test")
		assert.True(t, IsAppError(err))
	})

	t.Run("returns false for standard error", func(t *testing.T) {
		err := errors.New("standard error")
		assert.False(t, IsAppError(err))
	})

	t.Run("returns true for wrapped AppError", func(t *testing.T) {
		wrapped := fmt.Errorf("outbox: %w", NotReady("t1"))
		assert.True(t, IsAppError(wrapped))
	})
}

func TestGetCode(t *testing.T) {
	t.Run("returns code for AppError", func(t *testing.T) {
		err := New(ErrCodeNotFound, "test")
		assert.Equal(t, ErrCodeNotFound, GetCode(err))
	})

	t.Run("returns ErrCodeInternal for standard error", func(t *testing.T) {
		err := errors.New("standard error")
		assert.Equal(t, ErrCodeInternal, GetCode(err))
	})
}

func TestHasCode(t *testing.T) {
	assert.True(t, HasCode(NotReady("t1"), ErrCodeNotReady))
	assert.False(t, HasCode(NotReady("t1"), ErrCodeNotFound))
	assert.False(t, HasCode(errors.New("plain"), ErrCodeNotReady))
}
