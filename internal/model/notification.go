package model

import "time"

type Notification struct {
	ID            int64              `db:"id" json:"id"`
	TenantID      string             `db:"tenant_id" json:"tenantId"`
	DestinationID string             `db:"destination_id" json:"destinationId"`
	Body          string             `db:"body" json:"body"`
	DueAt         time.Time          `db:"due_at" json:"dueAt"`
	Status        NotificationStatus `db:"status" json:"status"`
	Attempts      int                `db:"attempts" json:"attempts"`
	LastError     *string            `db:"last_error" json:"lastError,omitempty"`
	CreatedAt     time.Time          `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time          `db:"updated_at" json:"updatedAt"`
	SentAt        *time.Time         `db:"sent_at" json:"sentAt,omitempty"`
}

// Eligible reports whether the entry may be dispatched at now.
func (n *Notification) Eligible(now time.Time) bool {
	if n.Status.Terminal() || !n.Status.Valid() {
		return false
	}
	return !n.DueAt.After(now)
}

type CreateNotificationParams struct {
	TenantID      string
	DestinationID string
	Body          string
	DueAt         time.Time
}
