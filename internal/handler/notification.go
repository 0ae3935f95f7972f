package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/openclaw/session-relay/internal/errors"
	"github.com/openclaw/session-relay/internal/service"
)

type NotificationHandler struct {
	notificationService *service.NotificationService
}

func NewNotificationHandler(notificationService *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{
		notificationService: notificationService,
	}
}

func (h *NotificationHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Schedule)
	r.Get("/{id}", h.Get)

	return r
}

type scheduleRequest struct {
	TenantID      string    `json:"tenantId"`
	DestinationID string    `json:"destinationId"`
	Body          string    `json:"body"`
	DueAt         time.Time `json:"dueAt"`
}

// POST /v1/notifications
func (h *NotificationHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	n, err := h.notificationService.Schedule(r.Context(), service.ScheduleParams{
		TenantID:      req.TenantID,
		DestinationID: req.DestinationID,
		Body:          req.Body,
		DueAt:         req.DueAt,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, formatNotification(*n))
}

// GET /v1/notifications/{id}
func (h *NotificationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, apperrors.InvalidInput("id", "must be a positive integer"))
		return
	}

	n, err := h.notificationService.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, formatNotification(*n))
}

// GET /v1/tenants/{tenantId}/notifications
func (h *NotificationHandler) ListByTenant(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r)

	ns, total, err := h.notificationService.ListByTenant(r.Context(), chi.URLParam(r, "tenantId"), p.Limit, p.Offset)
	if err != nil {
		writeError(w, err)
		return
	}

	items := make([]map[string]any, 0, len(ns))
	for _, n := range ns {
		items = append(items, formatNotification(n))
	}

	writeJSON(w, http.StatusOK, paginated(items, total, p))
}

