package model

import "time"

// SessionRecord is the persisted pairing state of one tenant.
// PairingPayload is set iff Status is SessionStatusPairing.
type SessionRecord struct {
	TenantID       string        `db:"tenant_id" json:"tenantId"`
	PairingPayload *string       `db:"pairing_payload" json:"pairingPayload,omitempty"`
	Status         SessionStatus `db:"status" json:"status"`
	CreatedAt      time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updatedAt"`
}

// NewPairingRecord builds the record persisted for each issued pairing payload.
func NewPairingRecord(tenantID, payload string) SessionRecord {
	return SessionRecord{
		TenantID:       tenantID,
		PairingPayload: &payload,
		Status:         SessionStatusPairing,
	}
}

// NewStatusRecord builds a record for any non-pairing status. The payload is
// always cleared.
func NewStatusRecord(tenantID string, status SessionStatus) SessionRecord {
	return SessionRecord{
		TenantID: tenantID,
		Status:   status,
	}
}
