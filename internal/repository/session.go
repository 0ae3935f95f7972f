package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/session-relay/internal/model"
	"github.com/openclaw/session-relay/internal/util"
)

type SessionRecordRepository interface {
	FindByTenantID(ctx context.Context, tenantID string) (*model.SessionRecord, error)
	List(ctx context.Context) ([]model.SessionRecord, error)
	// CreateIfAbsent inserts an unpaired record and reports whether one was created.
	CreateIfAbsent(ctx context.Context, tenantID string) (bool, error)
	Upsert(ctx context.Context, record model.SessionRecord) error
}

type sessionRecordRepo struct {
	db     queryer
	cipher *util.Cipher
}

// NewSessionRecordRepository returns a Postgres-backed repository. Pairing
// payloads are sealed at rest when cipher is non-nil.
func NewSessionRecordRepository(db *sqlx.DB, cipher *util.Cipher) SessionRecordRepository {
	return &sessionRecordRepo{db: db, cipher: cipher}
}

func (r *sessionRecordRepo) FindByTenantID(ctx context.Context, tenantID string) (*model.SessionRecord, error) {
	var rec model.SessionRecord
	err := r.db.GetContext(ctx, &rec, `
		SELECT * FROM session_records WHERE tenant_id = $1
	`, tenantID)
	found, err := HandleNotFound(&rec, err)
	if err != nil || found == nil {
		return found, err
	}
	if err := r.openPayload(found); err != nil {
		return nil, err
	}
	return found, nil
}

func (r *sessionRecordRepo) List(ctx context.Context) ([]model.SessionRecord, error) {
	var recs []model.SessionRecord
	err := r.db.SelectContext(ctx, &recs, `
		SELECT * FROM session_records ORDER BY created_at ASC, tenant_id ASC
	`)
	if err != nil {
		return nil, err
	}
	for i := range recs {
		if err := r.openPayload(&recs[i]); err != nil {
			return nil, err
		}
	}
	return recs, nil
}

func (r *sessionRecordRepo) CreateIfAbsent(ctx context.Context, tenantID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO session_records (tenant_id, status)
		VALUES ($1, 'unpaired')
		ON CONFLICT (tenant_id) DO NOTHING
	`, tenantID)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *sessionRecordRepo) Upsert(ctx context.Context, record model.SessionRecord) error {
	if !record.Status.Valid() {
		return fmt.Errorf("invalid session status %q", record.Status)
	}

	var payload *string
	if record.Status == model.SessionStatusPairing {
		if record.PairingPayload == nil {
			return fmt.Errorf("pairing record for %s has no payload", record.TenantID)
		}
		sealed, err := r.sealPayload(*record.PairingPayload)
		if err != nil {
			return err
		}
		payload = &sealed
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO session_records (tenant_id, pairing_payload, status, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id) DO UPDATE SET
			pairing_payload = EXCLUDED.pairing_payload,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`, record.TenantID, payload, record.Status, time.Now())
	return err
}

func (r *sessionRecordRepo) sealPayload(payload string) (string, error) {
	if r.cipher == nil {
		return payload, nil
	}
	sealed, err := r.cipher.Seal(payload)
	if err != nil {
		return "", fmt.Errorf("encrypt pairing payload: %w", err)
	}
	return sealed, nil
}

func (r *sessionRecordRepo) openPayload(rec *model.SessionRecord) error {
	if r.cipher == nil || rec.PairingPayload == nil {
		return nil
	}
	plain, err := r.cipher.Open(*rec.PairingPayload)
	if err != nil {
		return fmt.Errorf("decrypt pairing payload: %w", err)
	}
	rec.PairingPayload = &plain
	return nil
}
