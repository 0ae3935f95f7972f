package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/session-relay/internal/errors"
	"github.com/openclaw/session-relay/internal/messaging"
	"github.com/openclaw/session-relay/internal/model"
)

const (
	DefaultMessageLimit = 100
	MaxMessageLimit     = 1000
	DefaultRecentHours  = 24
)

// ChatService reads contacts, chats and chat history through a tenant's live
// session. Every read requires a ready session.
type ChatService struct {
	sessions Sessions
	now      func() time.Time
}

func NewChatService(sessions Sessions) *ChatService {
	return &ChatService{
		sessions: sessions,
		now:      time.Now,
	}
}

func (s *ChatService) Contacts(ctx context.Context, tenantID string) ([]messaging.Contact, error) {
	reader, err := s.reader(tenantID)
	if err != nil {
		return nil, err
	}
	contacts, err := reader.ListContacts(ctx)
	if err != nil {
		return nil, s.readError(tenantID, "contacts", err)
	}
	return contacts, nil
}

// Groups returns the tenant's group chats.
func (s *ChatService) Groups(ctx context.Context, tenantID string) ([]messaging.Chat, error) {
	chats, err := s.chats(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	groups := make([]messaging.Chat, 0, len(chats))
	for _, c := range chats {
		if c.IsGroup {
			groups = append(groups, c)
		}
	}
	return groups, nil
}

// RecentChats returns the chats whose last message is newer than withinHours.
// Zero hours returns every chat.
func (s *ChatService) RecentChats(ctx context.Context, tenantID string, withinHours int) ([]messaging.Chat, error) {
	if withinHours < 0 {
		return nil, apperrors.InvalidInput("hours", "must not be negative")
	}
	chats, err := s.chats(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if withinHours == 0 {
		return chats, nil
	}

	cutoff := s.now().Add(-time.Duration(withinHours) * time.Hour)
	recent := make([]messaging.Chat, 0, len(chats))
	for _, c := range chats {
		if c.LastMessageAt.After(cutoff) {
			recent = append(recent, c)
		}
	}
	return recent, nil
}

// Messages returns up to limit of the newest messages of a chat. A zero limit
// means DefaultMessageLimit.
func (s *ChatService) Messages(ctx context.Context, tenantID, chatID string, limit int) ([]messaging.Message, error) {
	chatID = strings.TrimSpace(chatID)
	switch {
	case chatID == "":
		return nil, apperrors.MissingRequired("chatId")
	case limit < 0 || limit > MaxMessageLimit:
		return nil, apperrors.InvalidInput("limit", "must be between 1 and 1000")
	case limit == 0:
		limit = DefaultMessageLimit
	}

	reader, err := s.reader(tenantID)
	if err != nil {
		return nil, err
	}
	messages, err := reader.FetchMessages(ctx, chatID, limit)
	if err != nil {
		return nil, s.readError(tenantID, "messages", err)
	}
	return messages, nil
}

func (s *ChatService) chats(ctx context.Context, tenantID string) ([]messaging.Chat, error) {
	reader, err := s.reader(tenantID)
	if err != nil {
		return nil, err
	}
	chats, err := reader.ListChats(ctx)
	if err != nil {
		return nil, s.readError(tenantID, "chats", err)
	}
	return chats, nil
}

func (s *ChatService) reader(tenantID string) (messaging.ChatReader, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, apperrors.MissingRequired("tenantId")
	}
	target, ok := s.sessions.Lookup(tenantID)
	if !ok || target.State() != model.SessionStatusReady {
		return nil, apperrors.NotReady(tenantID)
	}
	client := target.Client()
	if client == nil {
		return nil, apperrors.NotReady(tenantID)
	}
	return client, nil
}

func (s *ChatService) readError(tenantID, what string, err error) error {
	log.Warn().Err(err).Str("tenantId", tenantID).Str("read", what).Msg("chat read failed")

	if errors.Is(err, apperrors.ErrDestinationNotFound) {
		return apperrors.NotFound("Chat").WithCause(err)
	}
	if apperrors.IsAppError(err) {
		return err
	}
	return apperrors.External("messaging bridge", err)
}
