package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/openclaw/session-relay/internal/errors"
	"github.com/openclaw/session-relay/internal/messaging"
	"github.com/openclaw/session-relay/internal/service"
)

// ChatHandler serves reads of a paired account's contacts and chats. A tenant
// without a ready session gets 404 NOT_READY.
type ChatHandler struct {
	chatService *service.ChatService
}

func NewChatHandler(chatService *service.ChatService) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
	}
}

// GET /v1/tenants/{tenantId}/contacts
func (h *ChatHandler) Contacts(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	contacts, err := h.chatService.Contacts(r.Context(), tenantID)
	if err != nil {
		writeError(w, err)
		return
	}

	items := make([]map[string]any, 0, len(contacts))
	for _, c := range contacts {
		items = append(items, formatContact(c))
	}
	writeJSON(w, http.StatusOK, listed(tenantID, items))
}

// GET /v1/tenants/{tenantId}/groups
func (h *ChatHandler) Groups(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	groups, err := h.chatService.Groups(r.Context(), tenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listed(tenantID, formatChats(groups)))
}

// GET /v1/tenants/{tenantId}/chats?hours=24
//
// hours=0 lists every chat.
func (h *ChatHandler) Chats(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	hours, err := queryInt(r, "hours", service.DefaultRecentHours)
	if err != nil {
		writeError(w, err)
		return
	}

	chats, err := h.chatService.RecentChats(r.Context(), tenantID, hours)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listed(tenantID, formatChats(chats)))
}

// GET /v1/tenants/{tenantId}/chats/{chatId}/messages?limit=100
func (h *ChatHandler) Messages(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	limit, err := queryInt(r, "limit", service.DefaultMessageLimit)
	if err != nil {
		writeError(w, err)
		return
	}

	messages, err := h.chatService.Messages(r.Context(), tenantID, chi.URLParam(r, "chatId"), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	items := make([]map[string]any, 0, len(messages))
	for _, m := range messages {
		items = append(items, formatMessage(m))
	}
	writeJSON(w, http.StatusOK, listed(tenantID, items))
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.InvalidInput(name, "must be an integer")
	}
	return n, nil
}

func listed(tenantID string, items []map[string]any) map[string]any {
	return map[string]any{
		"tenantId": tenantID,
		"count":    len(items),
		"items":    items,
	}
}

func formatContact(c messaging.Contact) map[string]any {
	return map[string]any{
		"id":          c.ID,
		"name":        c.Name,
		"isGroup":     c.IsGroup,
		"description": c.Description,
	}
}

func formatChats(chats []messaging.Chat) []map[string]any {
	items := make([]map[string]any, 0, len(chats))
	for _, c := range chats {
		var last any
		if !c.LastMessageAt.IsZero() {
			last = formatTime(&c.LastMessageAt)
		}
		items = append(items, map[string]any{
			"id":            c.ID,
			"name":          c.Name,
			"isGroup":       c.IsGroup,
			"description":   c.Description,
			"lastMessageAt": last,
		})
	}
	return items
}

func formatMessage(m messaging.Message) map[string]any {
	return map[string]any{
		"id":        m.ID,
		"chatId":    m.ChatID,
		"from":      m.From,
		"body":      m.Body,
		"type":      m.Type,
		"fromMe":    m.FromMe,
		"timestamp": formatTime(&m.Timestamp),
	}
}
