package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/session-relay/internal/delivery"
	apperrors "github.com/openclaw/session-relay/internal/errors"
	"github.com/openclaw/session-relay/internal/model"
	"github.com/openclaw/session-relay/internal/repository"
	"github.com/openclaw/session-relay/internal/session"
	"github.com/openclaw/session-relay/internal/util"
)

// Sessions is the live session registry.
type Sessions interface {
	Start(ctx context.Context, tenantID string) (*session.Handle, error)
	Lookup(tenantID string) (delivery.Target, bool)
}

type SessionView struct {
	TenantID        string              `json:"tenantId"`
	Status          model.SessionStatus `json:"status"`
	PairingPayload  *string             `json:"pairingPayload,omitempty"`
	Live            bool                `json:"live"`
	LiveState       model.SessionStatus `json:"liveState,omitempty"`
	PairingAttempts int                 `json:"pairingAttempts"`
	InitFailed      bool                `json:"initFailed,omitempty"`
	UpdatedAt       *string             `json:"updatedAt,omitempty"`
}

type SessionService struct {
	records  repository.SessionRecordRepository
	sessions Sessions
}

func NewSessionService(records repository.SessionRecordRepository, sessions Sessions) *SessionService {
	return &SessionService{
		records:  records,
		sessions: sessions,
	}
}

func (s *SessionService) Start(ctx context.Context, tenantID string) (*SessionView, error) {
	if _, err := s.sessions.Start(ctx, tenantID); err != nil {
		if apperrors.IsAppError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("start session: %w", err)
	}

	log.Info().Str("tenantId", tenantID).Msg("session start requested")

	return s.Status(ctx, tenantID)
}

// Status combines the persisted record with the live handle, if any.
func (s *SessionService) Status(ctx context.Context, tenantID string) (*SessionView, error) {
	if !util.IsValidTenantID(tenantID) {
		return nil, apperrors.InvalidInput("tenantId", "contains unsupported characters")
	}

	rec, err := s.records.FindByTenantID(ctx, tenantID)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	target, live := s.sessions.Lookup(tenantID)
	if rec == nil && !live {
		return nil, apperrors.NotFound("Session")
	}

	view := &SessionView{
		TenantID: tenantID,
		Status:   model.SessionStatusUnpaired,
		Live:     live,
	}
	if rec != nil {
		view.Status = rec.Status
		view.PairingPayload = rec.PairingPayload
		if !rec.UpdatedAt.IsZero() {
			updated := rec.UpdatedAt.UTC().Format(time.RFC3339)
			view.UpdatedAt = &updated
		}
	}
	if live {
		view.LiveState = target.State()
		if counter, ok := target.(interface{ PairingAttempts() int }); ok {
			view.PairingAttempts = counter.PairingAttempts()
		}
		if failed, ok := target.(interface{ InitFailed() bool }); ok {
			view.InitFailed = failed.InitFailed()
		}
	}
	return view, nil
}
