package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/session-relay/internal/model"
)

type NotificationRepository interface {
	FindByID(ctx context.Context, id int64) (*model.Notification, error)
	FindByTenantID(ctx context.Context, tenantID string, limit, offset int) ([]model.Notification, error)
	CountByTenantID(ctx context.Context, tenantID string) (int, error)
	// FindDue returns pending and failed entries due at or before now,
	// earliest first with ties broken by insertion order.
	FindDue(ctx context.Context, now time.Time) ([]model.Notification, error)
	Create(ctx context.Context, params model.CreateNotificationParams) (*model.Notification, error)
	// MarkSent and MarkFailed never modify an entry that is already sent.
	MarkSent(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, errorMsg string) error
}

type notificationRepo struct {
	db queryer
}

func NewNotificationRepository(db *sqlx.DB) NotificationRepository {
	return &notificationRepo{db: db}
}

func (r *notificationRepo) FindByID(ctx context.Context, id int64) (*model.Notification, error) {
	var n model.Notification
	err := r.db.GetContext(ctx, &n, `SELECT * FROM notifications WHERE id = $1`, id)
	return HandleNotFound(&n, err)
}

func (r *notificationRepo) FindByTenantID(ctx context.Context, tenantID string, limit, offset int) ([]model.Notification, error) {
	var ns []model.Notification
	err := r.db.SelectContext(ctx, &ns, `
		SELECT * FROM notifications
		WHERE tenant_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, tenantID, limit, offset)
	return ns, err
}

func (r *notificationRepo) CountByTenantID(ctx context.Context, tenantID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM notifications WHERE tenant_id = $1
	`, tenantID)
	return count, err
}

func (r *notificationRepo) FindDue(ctx context.Context, now time.Time) ([]model.Notification, error) {
	var ns []model.Notification
	err := r.db.SelectContext(ctx, &ns, `
		SELECT * FROM notifications
		WHERE status IN ('pending', 'failed')
		AND due_at <= $1
		ORDER BY due_at ASC, id ASC
	`, now)
	return ns, err
}

func (r *notificationRepo) Create(ctx context.Context, params model.CreateNotificationParams) (*model.Notification, error) {
	var n model.Notification
	err := r.db.GetContext(ctx, &n, `
		INSERT INTO notifications (tenant_id, destination_id, body, due_at)
		VALUES ($1, $2, $3, $4)
		RETURNING *
	`, params.TenantID, params.DestinationID, params.Body, params.DueAt)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *notificationRepo) MarkSent(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET
			status = 'sent',
			attempts = attempts + 1,
			last_error = NULL,
			sent_at = $2,
			updated_at = $2
		WHERE id = $1 AND status <> 'sent'
	`, id, time.Now())
	return err
}

func (r *notificationRepo) MarkFailed(ctx context.Context, id int64, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET
			status = 'failed',
			attempts = attempts + 1,
			last_error = $2,
			updated_at = $3
		WHERE id = $1 AND status <> 'sent'
	`, id, errorMsg, time.Now())
	return err
}
