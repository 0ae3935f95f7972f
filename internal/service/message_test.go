package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/session-relay/internal/delivery"
	apperrors "github.com/openclaw/session-relay/internal/errors"
	"github.com/openclaw/session-relay/internal/model"
)

func TestMessageService_Send(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers through the pipeline", func(t *testing.T) {
		sessions := new(mockSessions)
		deliverer := new(mockDeliverer)
		target := &stubTarget{tenantID: "T1", state: model.SessionStatusReady}
		sessions.On("Lookup", "T1").Return(target, true)
		deliverer.On("Deliver", ctx, target, "5511@c.us", "oi").
			Return(&delivery.Result{TenantID: "T1", MessageID: "m-1"}, nil)

		result, err := NewMessageService(sessions, deliverer).Send(ctx, "T1", "5511@c.us", "oi")

		require.NoError(t, err)
		assert.Equal(t, "m-1", result.MessageID)
		deliverer.AssertExpectations(t)
	})

	t.Run("no session is not ready", func(t *testing.T) {
		sessions := new(mockSessions)
		deliverer := new(mockDeliverer)
		sessions.On("Lookup", "T1").Return(nil, false)

		_, err := NewMessageService(sessions, deliverer).Send(ctx, "T1", "5511@c.us", "oi")

		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotReady))
		deliverer.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("pipeline errors pass through", func(t *testing.T) {
		sessions := new(mockSessions)
		deliverer := new(mockDeliverer)
		target := &stubTarget{tenantID: "T1", state: model.SessionStatusPairing}
		sessions.On("Lookup", "T1").Return(target, true)
		deliverer.On("Deliver", ctx, target, "5511@c.us", "oi").Return(nil, apperrors.NotReady("T1"))

		_, err := NewMessageService(sessions, deliverer).Send(ctx, "T1", "5511@c.us", "oi")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotReady))
	})

	t.Run("validates input", func(t *testing.T) {
		svc := NewMessageService(new(mockSessions), new(mockDeliverer))

		_, err := svc.Send(ctx, "T1", "", "oi")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeMissingRequired))

		_, err = svc.Send(ctx, "T1", "d", " ")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeMissingRequired))
	})
}
