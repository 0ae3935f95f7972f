package handler

import (
	"net/http"

	"github.com/openclaw/session-relay/internal/service"
)

type MessageHandler struct {
	messageService *service.MessageService
}

func NewMessageHandler(messageService *service.MessageService) *MessageHandler {
	return &MessageHandler{
		messageService: messageService,
	}
}

type sendRequest struct {
	TenantID      string `json:"tenantId"`
	DestinationID string `json:"destinationId"`
	Body          string `json:"body"`
}

// POST /v1/messages
//
// Sends immediately with the same human pacing the outbox uses, so the
// request takes a few seconds. A tenant without a ready session gets 404.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.messageService.Send(r.Context(), req.TenantID, req.DestinationID, req.Body)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tenantId":      result.TenantID,
		"destinationId": result.DestinationID,
		"messageId":     result.MessageID,
		"sentAt":        formatTime(&result.SentAt),
	})
}
