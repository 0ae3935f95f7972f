package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/session-relay/internal/service"
	"github.com/openclaw/session-relay/internal/sse"
)

type Subscriber interface {
	Subscribe(tenantID string) *sse.Client
	Unsubscribe(client *sse.Client)
}

// EventsHandler streams session status changes for one tenant. The first
// event is always a snapshot of the current status.
type EventsHandler struct {
	broker         Subscriber
	sessionService *service.SessionService
	heartbeat      time.Duration
}

func NewEventsHandler(broker Subscriber, sessionService *service.SessionService) *EventsHandler {
	return &EventsHandler{
		broker:         broker,
		sessionService: sessionService,
		heartbeat:      sse.HeartbeatInterval,
	}
}

// GET /v1/sessions/{tenantId}/events
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Streaming not supported"})
		return
	}

	// subscribe before the snapshot so no change falls between them
	client := h.broker.Subscribe(tenantID)
	defer h.broker.Unsubscribe(client)

	ctx := r.Context()

	snapshot, err := h.sessionService.Status(ctx, tenantID)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	log.Info().
		Str("tenantId", tenantID).
		Msg("sse connection established")

	if err := h.sendEvent(w, flusher, "connected", snapshot); err != nil {
		log.Debug().Err(err).Str("tenantId", tenantID).Msg("failed to send snapshot")
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().
				Str("tenantId", tenantID).
				Msg("sse connection closed by client")
			return

		case <-client.Done:
			log.Info().
				Str("tenantId", tenantID).
				Msg("sse connection closed by broker")
			return

		case event := <-client.Events:
			if err := h.sendRawEvent(w, flusher, event); err != nil {
				log.Error().Err(err).Msg("failed to send event")
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				log.Debug().
					Str("tenantId", tenantID).
					Msg("heartbeat failed, closing connection")
				return
			}
			flusher.Flush()
		}
	}
}

func (h *EventsHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return h.sendRawEvent(w, flusher, sse.Event{Type: eventType, Data: jsonData})
}

func (h *EventsHandler) sendRawEvent(w http.ResponseWriter, flusher http.Flusher, event sse.Event) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", event.Data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
