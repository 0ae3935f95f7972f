package session

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/session-relay/internal/audit"
	"github.com/openclaw/session-relay/internal/config"
	apperrors "github.com/openclaw/session-relay/internal/errors"
	"github.com/openclaw/session-relay/internal/messaging"
	"github.com/openclaw/session-relay/internal/model"
)

// run is the lifecycle worker of one handle. It is the only goroutine that
// changes the handle's client, so events for a tenant are applied strictly in
// the order the client emitted them.
func (m *Manager) run(ctx context.Context, h *Handle) {
	defer m.wg.Done()
	defer close(h.done)
	defer m.teardown(h)

	// retry is armed while the handle has no initialized client.
	var retry *time.Timer
	defer func() {
		if retry != nil {
			retry.Stop()
		}
	}()
	arm := func() {
		if retry != nil || !h.InitFailed() {
			return
		}
		retry = time.NewTimer(m.opts.InitRetryInterval)
		log.Warn().
			Str("tenantId", h.tenantID).
			Dur("retryIn", m.opts.InitRetryInterval).
			Msg("client initialization failed, retry scheduled")
	}
	retryC := func() <-chan time.Time {
		if retry == nil {
			return nil
		}
		return retry.C
	}

	m.guard(h, "initialize", func() error {
		return m.initialize(ctx, h)
	})
	arm()

	for {
		select {
		case <-ctx.Done():
			return
		case <-retryC():
			retry = nil
			m.guard(h, "reinitialize", func() error {
				return m.reinitialize(ctx, h)
			})
		case <-h.wake:
			for _, ev := range h.drain() {
				if ctx.Err() != nil {
					return
				}
				m.dispatch(ctx, h, ev)
			}
		}
		arm()
	}
}

func (m *Manager) dispatch(ctx context.Context, h *Handle, ev event) {
	if ev.generation != h.currentGeneration() {
		log.Debug().
			Str("tenantId", h.tenantID).
			Stringer("event", ev.kind).
			Msg("dropping event from replaced client")
		return
	}

	m.guard(h, ev.kind.String(), func() error {
		switch ev.kind {
		case eventPairingPayload:
			return m.onPairingPayload(ctx, h, ev.value)
		case eventReady:
			return m.onReady(ctx, h)
		case eventDisconnected:
			return m.onDisconnected(ctx, h, ev.value)
		case eventAuthFailure:
			m.onAuthFailure(ctx, h, ev.value)
		case eventRetryInit:
			return m.reinitialize(ctx, h)
		}
		return nil
	})
}

// guard isolates a failing or panicking callback to its own tenant.
func (m *Manager) guard(h *Handle, name string, fn func() error) {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		err = fn()
	}()

	if err != nil {
		log.Error().
			Err(apperrors.LifecycleCallback(name, err)).
			Str("tenantId", h.tenantID).
			Str("state", string(h.State())).
			Msg("lifecycle callback failed")
	}
}

// initialize enters pairing with the handle's current client under a new
// generation, creating a client first if the handle has none. Any failure
// marks the handle so the worker retries.
func (m *Manager) initialize(ctx context.Context, h *Handle) error {
	h.mu.Lock()
	h.initFailed = true
	h.generation++
	generation := h.generation
	client := h.client
	h.state = model.SessionStatusPairing
	h.mu.Unlock()

	if client == nil {
		fresh, err := m.factory.NewClient(h.tenantID)
		if err != nil {
			return fmt.Errorf("create client: %w", err)
		}
		h.mu.Lock()
		h.client = fresh
		h.mu.Unlock()
		client = fresh
	}

	client.On(h.handlers(generation))

	initCtx, cancel := context.WithTimeout(ctx, config.ClientInitTimeout)
	defer cancel()

	if err := client.Initialize(initCtx); err != nil {
		return fmt.Errorf("initialize client: %w", err)
	}

	h.mu.Lock()
	h.initFailed = false
	h.mu.Unlock()

	log.Info().
		Str("tenantId", h.tenantID).
		Uint64("generation", generation).
		Msg("client initializing")
	return nil
}

func (m *Manager) onPairingPayload(ctx context.Context, h *Handle, payload string) error {
	h.mu.Lock()
	h.state = model.SessionStatusPairing
	h.attempts++
	attempts := h.attempts
	h.mu.Unlock()

	log.Info().
		Str("tenantId", h.tenantID).
		Int("attempt", attempts).
		Msg("pairing payload issued")

	persistErr := m.persist(ctx, model.NewPairingRecord(h.tenantID, payload))

	if attempts > m.opts.RetryCeiling {
		log.Warn().
			Err(apperrors.PairingExhausted(h.tenantID, attempts)).
			Str("tenantId", h.tenantID).
			Msg("pairing retry ceiling exceeded, restarting client")
		audit.Log(ctx, audit.Event{
			Type:     audit.EventForcedRestart,
			TenantID: h.tenantID,
			Details:  map[string]interface{}{"attempts": attempts},
		})

		h.mu.Lock()
		h.attempts = 0
		h.mu.Unlock()

		if err := m.restart(ctx, h); err != nil {
			return err
		}
	}

	return persistErr
}

func (m *Manager) onReady(ctx context.Context, h *Handle) error {
	h.mu.Lock()
	h.state = model.SessionStatusReady
	h.attempts = 0
	h.mu.Unlock()

	log.Info().Str("tenantId", h.tenantID).Msg("session ready")
	audit.Log(ctx, audit.Event{Type: audit.EventSessionReady, TenantID: h.tenantID})

	return m.persist(ctx, model.NewStatusRecord(h.tenantID, model.SessionStatusReady))
}

// onDisconnected destroys the client, wipes the tenant's credential cache and
// waits out the settle interval before pairing again with a fresh client.
func (m *Manager) onDisconnected(ctx context.Context, h *Handle, reason string) error {
	h.mu.Lock()
	h.state = model.SessionStatusDisconnected
	h.attempts = 0
	h.generation++
	old := h.client
	h.mu.Unlock()

	log.Warn().Str("tenantId", h.tenantID).Str("reason", reason).Msg("session disconnected")
	audit.Log(ctx, audit.Event{
		Type:     audit.EventSessionLost,
		TenantID: h.tenantID,
		Details:  map[string]interface{}{"reason": reason},
	})

	if err := m.persist(ctx, model.NewStatusRecord(h.tenantID, model.SessionStatusDisconnected)); err != nil {
		log.Error().Err(err).Str("tenantId", h.tenantID).Msg("failed to persist disconnect")
	}

	if old != nil {
		if err := m.destroy(ctx, old); err != nil {
			log.Error().Err(err).Str("tenantId", h.tenantID).Msg("failed to destroy disconnected client")
		}
	}
	h.mu.Lock()
	h.client = nil
	h.mu.Unlock()

	if err := m.wipe(ctx, h.tenantID); err != nil {
		log.Error().Err(err).Str("tenantId", h.tenantID).Msg("failed to wipe credential cache")
	} else {
		audit.Log(ctx, audit.Event{Type: audit.EventCredentialWipe, TenantID: h.tenantID})
	}

	if err := m.settle(ctx); err != nil {
		return fmt.Errorf("settle before re-pairing: %w", err)
	}

	return m.initialize(ctx, h)
}

func (m *Manager) onAuthFailure(ctx context.Context, h *Handle, message string) {
	log.Warn().Str("tenantId", h.tenantID).Str("message", message).Msg("authentication failure")
	audit.Log(ctx, audit.Event{
		Type:     audit.EventAuthFailure,
		TenantID: h.tenantID,
		Details:  map[string]interface{}{"message": message},
	})
}

// restart destroys and re-initializes the handle's client in place.
func (m *Manager) restart(ctx context.Context, h *Handle) error {
	if client := h.Client(); client != nil {
		if err := m.destroy(ctx, client); err != nil {
			return fmt.Errorf("restart: %w", err)
		}
	}
	return m.initialize(ctx, h)
}

// reinitialize retries a failed initialization. The half-initialized client
// is destroyed first and its destroy error ignored.
func (m *Manager) reinitialize(ctx context.Context, h *Handle) error {
	if !h.InitFailed() {
		return nil
	}
	if client := h.Client(); client != nil {
		if err := m.destroy(ctx, client); err != nil {
			log.Debug().Err(err).Str("tenantId", h.tenantID).Msg("destroy before re-initialize failed")
		}
	}
	return m.initialize(ctx, h)
}

func (m *Manager) destroy(ctx context.Context, client messaging.Client) error {
	destroyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), config.ClientDestroyTimeout)
	defer cancel()

	if err := client.Destroy(destroyCtx); err != nil {
		return fmt.Errorf("destroy client: %w", err)
	}
	return nil
}

func (m *Manager) wipe(ctx context.Context, tenantID string) error {
	wipeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), config.CredentialWipeTimeout)
	defer cancel()
	return m.creds.Wipe(wipeCtx, tenantID)
}

func (m *Manager) settle(ctx context.Context) error {
	if m.opts.SettleInterval <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(m.opts.SettleInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// persist writes record and publishes it. Publish failures are logged only.
func (m *Manager) persist(ctx context.Context, record model.SessionRecord) error {
	persistCtx, cancel := context.WithTimeout(ctx, config.PersistTimeout)
	defer cancel()

	if err := m.records.Upsert(persistCtx, record); err != nil {
		return fmt.Errorf("persist %s record: %w", record.Status, err)
	}

	if m.publisher != nil {
		if err := m.publisher.PublishStatus(persistCtx, record); err != nil {
			log.Warn().Err(err).Str("tenantId", record.TenantID).Msg("failed to publish session status")
		}
	}
	return nil
}

// teardown destroys whatever client the handle still owns once its worker
// exits.
func (m *Manager) teardown(h *Handle) {
	h.mu.Lock()
	client := h.client
	h.client = nil
	h.generation++
	h.mu.Unlock()

	if client == nil {
		return
	}
	m.guard(h, "teardown", func() error {
		return m.destroy(context.Background(), client)
	})
	log.Info().Str("tenantId", h.tenantID).Msg("client destroyed")
}
