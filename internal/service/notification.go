package service

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/session-relay/internal/errors"
	"github.com/openclaw/session-relay/internal/model"
	"github.com/openclaw/session-relay/internal/repository"
	"github.com/openclaw/session-relay/internal/util"
)

const maxBodyLength = 4096

type ScheduleParams struct {
	TenantID      string
	DestinationID string
	Body          string
	DueAt         time.Time
}

type NotificationService struct {
	repo repository.NotificationRepository
}

func NewNotificationService(repo repository.NotificationRepository) *NotificationService {
	return &NotificationService{repo: repo}
}

// Schedule stores a pending notification. The outbox picks it up on the
// first tick at or after DueAt once the tenant's session is ready.
func (s *NotificationService) Schedule(ctx context.Context, params ScheduleParams) (*model.Notification, error) {
	params.TenantID = strings.TrimSpace(params.TenantID)
	params.DestinationID = strings.TrimSpace(params.DestinationID)

	switch {
	case params.TenantID == "":
		return nil, apperrors.MissingRequired("tenantId")
	case !util.IsValidTenantID(params.TenantID):
		return nil, apperrors.InvalidInput("tenantId", "contains unsupported characters")
	case params.DestinationID == "":
		return nil, apperrors.MissingRequired("destinationId")
	case strings.TrimSpace(params.Body) == "":
		return nil, apperrors.MissingRequired("body")
	case len(params.Body) > maxBodyLength:
		return nil, apperrors.InvalidInput("body", "too long")
	case params.DueAt.IsZero():
		return nil, apperrors.MissingRequired("dueAt")
	}

	n, err := s.repo.Create(ctx, model.CreateNotificationParams{
		TenantID:      params.TenantID,
		DestinationID: params.DestinationID,
		Body:          params.Body,
		DueAt:         params.DueAt.UTC(),
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().
		Int64("notificationId", n.ID).
		Str("tenantId", n.TenantID).
		Time("dueAt", n.DueAt).
		Msg("notification scheduled")

	return n, nil
}

func (s *NotificationService) FindByID(ctx context.Context, id int64) (*model.Notification, error) {
	n, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if n == nil {
		return nil, apperrors.NotFound("Notification")
	}
	return n, nil
}

func (s *NotificationService) ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]model.Notification, int, error) {
	if !util.IsValidTenantID(tenantID) {
		return nil, 0, apperrors.InvalidInput("tenantId", "contains unsupported characters")
	}

	ns, err := s.repo.FindByTenantID(ctx, tenantID, limit, offset)
	if err != nil {
		return nil, 0, apperrors.Database(err)
	}
	total, err := s.repo.CountByTenantID(ctx, tenantID)
	if err != nil {
		return nil, 0, apperrors.Database(err)
	}
	return ns, total, nil
}
