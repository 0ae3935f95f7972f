package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	apperrors "github.com/openclaw/session-relay/internal/errors"
	"github.com/openclaw/session-relay/internal/httputil"
	"github.com/openclaw/session-relay/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

// decodeJSON reads one JSON object from the request body.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.ValidationError("Request body is required")
		}
		return apperrors.ValidationError("Invalid request body")
	}
	return nil
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func formatNotification(n model.Notification) map[string]any {
	return map[string]any{
		"id":            n.ID,
		"tenantId":      n.TenantID,
		"destinationId": n.DestinationID,
		"body":          n.Body,
		"dueAt":         formatTime(&n.DueAt),
		"status":        n.Status,
		"attempts":      n.Attempts,
		"lastError":     n.LastError,
		"createdAt":     formatTime(&n.CreatedAt),
		"sentAt":        formatTime(n.SentAt),
	}
}
