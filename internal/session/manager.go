package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/session-relay/internal/delivery"
	apperrors "github.com/openclaw/session-relay/internal/errors"
	"github.com/openclaw/session-relay/internal/messaging"
	"github.com/openclaw/session-relay/internal/model"
	"github.com/openclaw/session-relay/internal/repository"
	"github.com/openclaw/session-relay/internal/util"
)

const (
	DefaultRetryCeiling      = 4
	DefaultSettleInterval    = 5 * time.Second
	DefaultInitRetryInterval = 10 * time.Second
)

// CredentialWiper erases a tenant's cached messaging credentials.
type CredentialWiper interface {
	Wipe(ctx context.Context, tenantID string) error
}

// StatusPublisher is notified after every persisted lifecycle change.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, record model.SessionRecord) error
}

type Options struct {
	// RetryCeiling is the number of pairing payloads tolerated before the
	// client is force-restarted.
	RetryCeiling int
	// SettleInterval is the pause between wiping a disconnected session and
	// pairing again. Zero skips the pause and is only meant for tests.
	SettleInterval time.Duration
	// InitRetryInterval is the delay before a failed client initialization
	// is attempted again.
	InitRetryInterval time.Duration
}

type Manager struct {
	factory   messaging.Factory
	records   repository.SessionRecordRepository
	creds     CredentialWiper
	publisher StatusPublisher
	opts      Options

	mu      sync.Mutex
	handles map[string]*Handle
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager returns a manager with an empty registry. publisher may be nil.
func NewManager(
	factory messaging.Factory,
	records repository.SessionRecordRepository,
	creds CredentialWiper,
	publisher StatusPublisher,
	opts Options,
) *Manager {
	if opts.RetryCeiling <= 0 {
		opts.RetryCeiling = DefaultRetryCeiling
	}
	if opts.SettleInterval < 0 {
		opts.SettleInterval = DefaultSettleInterval
	}
	if opts.InitRetryInterval <= 0 {
		opts.InitRetryInterval = DefaultInitRetryInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		factory:   factory,
		records:   records,
		creds:     creds,
		publisher: publisher,
		opts:      opts,
		handles:   make(map[string]*Handle),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start registers a handle for tenantID and begins pairing it. Calling Start
// for a tenant that already has a handle returns that handle untouched, unless
// its client failed to initialize, in which case a retry is queued at once.
func (m *Manager) Start(ctx context.Context, tenantID string) (*Handle, error) {
	if !util.IsValidTenantID(tenantID) {
		return nil, apperrors.InvalidInput("tenantId", "must be 1-128 letters, digits or _.@:-")
	}

	if h, ok := m.GetActive(tenantID); ok {
		return m.existing(h), nil
	}

	created, err := m.records.CreateIfAbsent(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("create session record: %w", err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, apperrors.Internal("session manager is shut down")
	}
	if h, ok := m.handles[tenantID]; ok {
		m.mu.Unlock()
		return m.existing(h), nil
	}
	client, err := m.factory.NewClient(tenantID)
	if err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("create client: %w", err)
	}
	h := newHandle(tenantID, client)
	m.handles[tenantID] = h
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(m.ctx, h)

	log.Info().
		Str("tenantId", tenantID).
		Bool("newRecord", created).
		Msg("session started")

	return h, nil
}

func (m *Manager) existing(h *Handle) *Handle {
	if h.InitFailed() {
		log.Info().Str("tenantId", h.tenantID).Msg("retrying failed client initialization")
		h.enqueue(event{kind: eventRetryInit, generation: h.currentGeneration()})
	}
	return h
}

// GetActive returns the registered handle for tenantID. A returned handle is
// not necessarily ready.
func (m *Manager) GetActive(tenantID string) (*Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[tenantID]
	return h, ok
}

// Lookup is GetActive for delivery callers.
func (m *Manager) Lookup(tenantID string) (delivery.Target, bool) {
	h, ok := m.GetActive(tenantID)
	if !ok {
		return nil, false
	}
	return h, true
}

// StartAll starts a handle for every persisted session record. Failures for
// individual tenants are logged and skipped.
func (m *Manager) StartAll(ctx context.Context) (int, error) {
	records, err := m.records.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list session records: %w", err)
	}

	started := 0
	for _, rec := range records {
		if _, err := m.Start(ctx, rec.TenantID); err != nil {
			log.Error().Err(err).Str("tenantId", rec.TenantID).Msg("failed to rehydrate session")
			continue
		}
		started++
	}

	log.Info().Int("count", started).Int("records", len(records)).Msg("sessions rehydrated")
	return started, nil
}

// Shutdown stops every lifecycle worker and destroys their clients. No new
// sessions can be started afterwards.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("session manager stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("session manager shutdown: %w", ctx.Err())
	}
}
