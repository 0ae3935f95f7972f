// Package session owns the per-tenant messaging connections: the registry of
// live handles and the lifecycle state machine behind each of them.
package session

import (
	"sync"

	"github.com/openclaw/session-relay/internal/messaging"
	"github.com/openclaw/session-relay/internal/model"
)

type eventKind int

const (
	eventPairingPayload eventKind = iota
	eventReady
	eventDisconnected
	eventAuthFailure
	eventRetryInit
)

func (k eventKind) String() string {
	switch k {
	case eventPairingPayload:
		return "pairingPayload"
	case eventReady:
		return "ready"
	case eventDisconnected:
		return "disconnected"
	case eventAuthFailure:
		return "authFailure"
	case eventRetryInit:
		return "retryInit"
	default:
		return "unknown"
	}
}

type event struct {
	kind       eventKind
	generation uint64
	value      string
}

// Handle is the in-memory connection for one tenant. The manager creates at
// most one per tenant and keeps it for the life of the process; the client
// inside it is swapped only by the lifecycle worker.
type Handle struct {
	tenantID string

	mu         sync.RWMutex
	state      model.SessionStatus
	attempts   int
	client     messaging.Client
	generation uint64
	initFailed bool

	queueMu sync.Mutex
	queue   []event
	wake    chan struct{}
	done    chan struct{}
}

func newHandle(tenantID string, client messaging.Client) *Handle {
	return &Handle{
		tenantID: tenantID,
		state:    model.SessionStatusUnpaired,
		client:   client,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

func (h *Handle) TenantID() string {
	return h.tenantID
}

// State may be ahead of the persisted record while a write is in flight.
func (h *Handle) State() model.SessionStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// PairingAttempts is the number of pairing payloads issued since the last
// ready transition or forced restart.
func (h *Handle) PairingAttempts() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.attempts
}

func (h *Handle) Client() messaging.Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.client
}

// InitFailed reports whether the last attempt to initialize a client failed.
// The lifecycle worker retries until one succeeds.
func (h *Handle) InitFailed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.initFailed
}

// Done is closed once the lifecycle worker has exited and the client has
// been destroyed.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) currentGeneration() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.generation
}

// enqueue never blocks; clients may fire callbacks from inside Initialize.
func (h *Handle) enqueue(ev event) {
	h.queueMu.Lock()
	h.queue = append(h.queue, ev)
	h.queueMu.Unlock()

	select {
	case h.wake <- struct{}{}:
	default:
	}
}

func (h *Handle) drain() []event {
	h.queueMu.Lock()
	defer h.queueMu.Unlock()
	events := h.queue
	h.queue = nil
	return events
}

// handlers binds client callbacks to one client generation so events from a
// destroyed client are recognised and dropped.
func (h *Handle) handlers(generation uint64) messaging.Handlers {
	return messaging.Handlers{
		OnPairingPayload: func(payload string) {
			h.enqueue(event{kind: eventPairingPayload, generation: generation, value: payload})
		},
		OnReady: func() {
			h.enqueue(event{kind: eventReady, generation: generation})
		},
		OnDisconnected: func(reason string) {
			h.enqueue(event{kind: eventDisconnected, generation: generation, value: reason})
		},
		OnAuthFailure: func(message string) {
			h.enqueue(event{kind: eventAuthFailure, generation: generation, value: message})
		},
	}
}
