package audit

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventSessionStart     EventType = "session_start"
	EventSessionReady     EventType = "session_ready"
	EventSessionLost      EventType = "session_disconnected"
	EventForcedRestart    EventType = "forced_restart"
	EventCredentialWipe   EventType = "credential_wipe"
	EventAuthFailure      EventType = "auth_failure"
	EventNotificationSent EventType = "notification_sent"
)

type Event struct {
	Type      EventType
	TenantID  string
	IP        string
	UserAgent string
	Details   map[string]interface{}
}

// Log writes one lifecycle audit line. Details are flattened into top-level
// fields.
func Log(ctx context.Context, event Event) {
	ctxLogger := log.With().
		Str("audit", "lifecycle").
		Str("eventType", string(event.Type))
	if event.TenantID != "" {
		ctxLogger = ctxLogger.Str("tenantId", event.TenantID)
	}
	if event.IP != "" {
		ctxLogger = ctxLogger.Str("ip", event.IP)
	}
	if event.UserAgent != "" {
		ctxLogger = ctxLogger.Str("userAgent", event.UserAgent)
	}
	logger := ctxLogger.Logger()

	logEvent := logger.Info()
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("lifecycle audit event")
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	case error:
		return e.AnErr(key, v)
	default:
		return e.Interface(key, v)
	}
}

func LogFromRequest(r *http.Request, event Event) {
	event.IP = ClientIP(r)
	event.UserAgent = r.UserAgent()
	Log(r.Context(), event)
}

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the
// socket address without its port.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
