// Package delivery performs one human-paced message send over a ready
// session: read receipt, typing indicator, a randomized pause, then the send.
package delivery

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/session-relay/internal/errors"
	"github.com/openclaw/session-relay/internal/messaging"
	"github.com/openclaw/session-relay/internal/model"
)

const (
	DefaultMinPause = 1 * time.Second
	DefaultMaxPause = 4 * time.Second
)

// Target is a tenant session that may carry a delivery.
type Target interface {
	TenantID() string
	State() model.SessionStatus
	Client() messaging.Client
}

type Result struct {
	TenantID      string        `json:"tenantId"`
	DestinationID string        `json:"destinationId"`
	MessageID     string        `json:"messageId"`
	Paused        time.Duration `json:"-"`
	SentAt        time.Time     `json:"sentAt"`
}

type Pipeline struct {
	minPause time.Duration
	maxPause time.Duration
	randN    func(n int64) int64
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewPipeline(minPause, maxPause time.Duration) *Pipeline {
	if maxPause < minPause {
		maxPause = minPause
	}
	return &Pipeline{
		minPause: minPause,
		maxPause: maxPause,
		randN:    rand.Int63n,
		sleep:    sleepContext,
	}
}

// Deliver sends body to destinationID through target's client. It fails with
// NOT_READY unless the session is ready, and with DELIVERY_FAILED (or
// DESTINATION_NOT_FOUND) naming the step that broke otherwise.
func (p *Pipeline) Deliver(ctx context.Context, target Target, destinationID, body string) (*Result, error) {
	if target.State() != model.SessionStatusReady {
		return nil, apperrors.NotReady(target.TenantID())
	}
	client := target.Client()
	if client == nil {
		return nil, apperrors.NotReady(target.TenantID())
	}

	if err := client.MarkSeen(ctx, destinationID); err != nil {
		return nil, apperrors.DeliveryFailed("markSeen", err)
	}

	if err := client.SetTyping(ctx, destinationID); err != nil {
		return nil, apperrors.DeliveryFailed("setTyping", err)
	}

	pause := p.pause()
	log.Debug().
		Str("tenantId", target.TenantID()).
		Str("destinationId", destinationID).
		Dur("pause", pause).
		Msg("typing before send")

	if err := p.sleep(ctx, pause); err != nil {
		// leave the indicator clean even though this delivery is abandoned
		_ = client.ClearTyping(context.WithoutCancel(ctx), destinationID)
		return nil, apperrors.DeliveryFailed("pause", err)
	}

	if err := client.ClearTyping(ctx, destinationID); err != nil {
		return nil, apperrors.DeliveryFailed("clearTyping", err)
	}

	messageID, err := client.SendMessage(ctx, destinationID, body)
	if err != nil {
		return nil, apperrors.DeliveryFailed("send", err)
	}

	return &Result{
		TenantID:      target.TenantID(),
		DestinationID: destinationID,
		MessageID:     messageID,
		Paused:        pause,
		SentAt:        time.Now(),
	}, nil
}

// pause is uniformly distributed in [minPause, maxPause].
func (p *Pipeline) pause() time.Duration {
	span := int64(p.maxPause - p.minPause)
	if span <= 0 {
		return p.minPause
	}
	return p.minPause + time.Duration(p.randN(span+1))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
