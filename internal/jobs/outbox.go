package jobs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/session-relay/internal/audit"
	"github.com/openclaw/session-relay/internal/config"
	"github.com/openclaw/session-relay/internal/delivery"
	apperrors "github.com/openclaw/session-relay/internal/errors"
	"github.com/openclaw/session-relay/internal/model"
	"github.com/openclaw/session-relay/internal/repository"
)

const DefaultOutboxInterval = 5 * time.Second

// SessionLookup resolves the live session of a tenant.
type SessionLookup interface {
	Lookup(tenantID string) (delivery.Target, bool)
}

type Deliverer interface {
	Deliver(ctx context.Context, target delivery.Target, destinationID, body string) (*delivery.Result, error)
}

type TickResult struct {
	Due         int
	Sent        int
	Failed      int
	Skipped     int
	FetchFailed bool
}

// Outbox drains due notifications through the delivery pipeline. At most one
// tick runs at a time; a trigger that finds a tick in progress is dropped.
type Outbox struct {
	repo      repository.NotificationRepository
	sessions  SessionLookup
	deliverer Deliverer
	interval  time.Duration
	now       func() time.Time

	started atomic.Bool
	running atomic.Bool
	ticks   sync.WaitGroup
	done    chan struct{}
	stopped chan struct{}
	stop    sync.Once
}

func NewOutbox(
	repo repository.NotificationRepository,
	sessions SessionLookup,
	deliverer Deliverer,
	interval time.Duration,
) *Outbox {
	if interval <= 0 {
		interval = DefaultOutboxInterval
	}
	return &Outbox{
		repo:      repo,
		sessions:  sessions,
		deliverer: deliverer,
		interval:  interval,
		now:       time.Now,
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

func (o *Outbox) Start() {
	o.started.Store(true)
	go o.run()
	log.Info().Dur("interval", o.interval).Msg("notification outbox started")
}

// Stop stops the ticker and waits for an in-flight tick to finish.
func (o *Outbox) Stop() {
	o.stop.Do(func() {
		close(o.done)
		if o.started.Load() {
			<-o.stopped
		}
		o.ticks.Wait()
		log.Info().Msg("notification outbox stopped")
	})
}

func (o *Outbox) run() {
	defer close(o.stopped)

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-o.done:
			return
		case <-ticker.C:
			o.ticks.Add(1)
			go func() {
				defer o.ticks.Done()
				o.Tick(context.Background())
			}()
		}
	}
}

// Tick processes every due entry once, in due order. The second return value
// is false when the tick was dropped because another one was running.
func (o *Outbox) Tick(ctx context.Context) (TickResult, bool) {
	if !o.running.CompareAndSwap(false, true) {
		log.Debug().Msg("outbox tick still running, skipping")
		return TickResult{}, false
	}
	defer o.running.Store(false)

	tickID := uuid.NewString()
	logger := log.With().Str("tickId", tickID).Logger()

	var result TickResult

	now := o.now()
	fetchCtx, cancel := context.WithTimeout(ctx, config.OutboxFetchTimeout)
	due, err := o.repo.FindDue(fetchCtx, now)
	cancel()
	if err != nil {
		logger.Error().Err(apperrors.TransientFetch(err)).Msg("outbox tick aborted")
		result.FetchFailed = true
		return result, true
	}
	result.Due = len(due)

	for i := range due {
		entry := &due[i]
		// a concurrent tick or process may have finished the entry after it was read
		if !entry.Eligible(now) {
			logger.Debug().
				Int64("notificationId", entry.ID).
				Str("status", string(entry.Status)).
				Msg("skipping ineligible notification")
			result.Skipped++
			continue
		}

		target, ok := o.sessions.Lookup(entry.TenantID)
		if !ok || target.State() != model.SessionStatusReady {
			result.Skipped++
			continue
		}

		if err := o.dispatch(ctx, target, entry); err != nil {
			// the session dropped between lookup and delivery
			if apperrors.HasCode(err, apperrors.ErrCodeNotReady) {
				result.Skipped++
				continue
			}
			result.Failed++
			logger.Warn().
				Err(err).
				Str("code", string(apperrors.GetCode(err))).
				Int64("notificationId", entry.ID).
				Str("tenantId", entry.TenantID).
				Msg("notification delivery failed")
			o.persist(ctx, logger, entry.ID, func(ctx context.Context) error {
				return o.repo.MarkFailed(ctx, entry.ID, err.Error())
			})
			continue
		}

		result.Sent++
		o.persist(ctx, logger, entry.ID, func(ctx context.Context) error {
			return o.repo.MarkSent(ctx, entry.ID)
		})
		audit.Log(ctx, audit.Event{
			Type:     audit.EventNotificationSent,
			TenantID: entry.TenantID,
			Details:  map[string]interface{}{"notificationId": entry.ID},
		})
	}

	if result.Due > 0 {
		logger.Info().
			Int("due", result.Due).
			Int("sent", result.Sent).
			Int("failed", result.Failed).
			Int("skipped", result.Skipped).
			Msg("outbox tick finished")
	}
	return result, true
}

func (o *Outbox) dispatch(ctx context.Context, target delivery.Target, entry *model.Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.DeliveryFailed("dispatch", fmt.Errorf("panic: %v", r))
		}
	}()

	dispatchCtx, cancel := context.WithTimeout(ctx, config.OutboxDispatchTimeout)
	defer cancel()

	_, err = o.deliverer.Deliver(dispatchCtx, target, entry.DestinationID, entry.Body)
	return err
}

func (o *Outbox) persist(ctx context.Context, logger zerolog.Logger, id int64, fn func(context.Context) error) {
	persistCtx, cancel := context.WithTimeout(ctx, config.PersistTimeout)
	defer cancel()

	if err := fn(persistCtx); err != nil {
		logger.Error().Err(err).Int64("notificationId", id).Msg("failed to update notification status")
	}
}
