package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openclaw/session-relay/internal/audit"
	"github.com/openclaw/session-relay/internal/service"
)

type SessionHandler struct {
	sessionService *service.SessionService
}

func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
	}
}

func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/{tenantId}/start", h.StartSession)
	r.Get("/{tenantId}", h.GetSession)

	return r
}

// POST /v1/sessions/{tenantId}/start
func (h *SessionHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	view, err := h.sessionService.Start(r.Context(), tenantID)
	if err != nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:     audit.EventSessionStart,
		TenantID: tenantID,
	})

	writeJSON(w, http.StatusAccepted, view)
}

// GET /v1/sessions/{tenantId}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.sessionService.Status(r.Context(), chi.URLParam(r, "tenantId"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}
