package service

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/session-relay/internal/delivery"
	apperrors "github.com/openclaw/session-relay/internal/errors"
)

type Deliverer interface {
	Deliver(ctx context.Context, target delivery.Target, destinationID, body string) (*delivery.Result, error)
}

// MessageService sends a message immediately, outside the outbox.
type MessageService struct {
	sessions  Sessions
	deliverer Deliverer
}

func NewMessageService(sessions Sessions, deliverer Deliverer) *MessageService {
	return &MessageService{
		sessions:  sessions,
		deliverer: deliverer,
	}
}

func (s *MessageService) Send(ctx context.Context, tenantID, destinationID, body string) (*delivery.Result, error) {
	switch {
	case strings.TrimSpace(tenantID) == "":
		return nil, apperrors.MissingRequired("tenantId")
	case strings.TrimSpace(destinationID) == "":
		return nil, apperrors.MissingRequired("destinationId")
	case strings.TrimSpace(body) == "":
		return nil, apperrors.MissingRequired("body")
	case len(body) > maxBodyLength:
		return nil, apperrors.InvalidInput("body", "too long")
	}

	target, ok := s.sessions.Lookup(tenantID)
	if !ok {
		return nil, apperrors.NotReady(tenantID)
	}

	start := time.Now()
	result, err := s.deliverer.Deliver(ctx, target, strings.TrimSpace(destinationID), body)
	if err != nil {
		log.Warn().
			Err(err).
			Str("tenantId", tenantID).
			Str("destinationId", destinationID).
			Msg("direct send failed")
		return nil, err
	}

	log.Info().
		Str("tenantId", tenantID).
		Str("destinationId", destinationID).
		Str("messageId", result.MessageID).
		Dur("elapsed", time.Since(start)).
		Msg("direct message sent")

	return result, nil
}
