package sse

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/session-relay/internal/model"
	redisclient "github.com/openclaw/session-relay/internal/redis"
)

const (
	HeartbeatInterval = 30 * time.Second

	EventSessionStatus = "session.status"
)

type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// StatusData is the payload of a session.status event.
type StatusData struct {
	TenantID       string              `json:"tenantId"`
	Status         model.SessionStatus `json:"status"`
	PairingPayload *string             `json:"pairingPayload,omitempty"`
	At             time.Time           `json:"at"`
}

// PubSub is the part of the Redis client the broker needs.
type PubSub interface {
	Publish(ctx context.Context, channel string, message interface{}) *goredis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *goredis.PubSub
}

type Client struct {
	TenantID string
	Events   chan Event
	Done     chan struct{}
}

// Broker fans session events out to SSE clients. Events travel through Redis
// so every relay instance sees changes made by any other.
type Broker struct {
	redis   PubSub
	clients map[string]map[*Client]bool // tenantID -> set of clients
	subs    map[string]context.CancelFunc
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewBroker(redis PubSub) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		redis:   redis,
		clients: make(map[string]map[*Client]bool),
		subs:    make(map[string]context.CancelFunc),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (b *Broker) Subscribe(tenantID string) *Client {
	client := &Client{
		TenantID: tenantID,
		Events:   make(chan Event, 100),
		Done:     make(chan struct{}),
	}

	b.mu.Lock()
	if b.clients[tenantID] == nil {
		b.clients[tenantID] = make(map[*Client]bool)
		subCtx, cancel := context.WithCancel(b.ctx)
		b.subs[tenantID] = cancel
		go b.subscribeToRedis(subCtx, tenantID)
	}
	b.clients[tenantID][client] = true
	clientCount := len(b.clients[tenantID])
	b.mu.Unlock()

	log.Info().
		Str("tenantId", tenantID).
		Int("clientCount", clientCount).
		Msg("sse client subscribed")

	return client
}

func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if clients, ok := b.clients[client.TenantID]; ok {
		if _, present := clients[client]; !present {
			return
		}
		delete(clients, client)
		close(client.Done)

		if len(clients) == 0 {
			delete(b.clients, client.TenantID)
			if cancel, ok := b.subs[client.TenantID]; ok {
				cancel()
				delete(b.subs, client.TenantID)
			}
		}

		log.Info().
			Str("tenantId", client.TenantID).
			Int("clientCount", len(clients)).
			Msg("sse client unsubscribed")
	}
}

func (b *Broker) Publish(ctx context.Context, tenantID string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	channel := redisclient.SessionChannel(tenantID)
	return b.redis.Publish(ctx, channel, data).Err()
}

// PublishStatus announces a persisted session record change.
func (b *Broker) PublishStatus(ctx context.Context, record model.SessionRecord) error {
	event, err := StatusEvent(record, time.Now())
	if err != nil {
		return err
	}
	return b.Publish(ctx, record.TenantID, event)
}

func StatusEvent(record model.SessionRecord, at time.Time) (Event, error) {
	data, err := json.Marshal(StatusData{
		TenantID:       record.TenantID,
		Status:         record.Status,
		PairingPayload: record.PairingPayload,
		At:             at,
	})
	if err != nil {
		return Event{}, err
	}
	return Event{Type: EventSessionStatus, Data: data}, nil
}

func (b *Broker) subscribeToRedis(ctx context.Context, tenantID string) {
	channel := redisclient.SessionChannel(tenantID)
	pubsub := b.redis.Subscribe(ctx, channel)
	defer pubsub.Close()

	log.Debug().
		Str("tenantId", tenantID).
		Str("channel", channel).
		Msg("redis pubsub subscribed")

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error().Err(err).Msg("failed to unmarshal event")
				continue
			}

			b.broadcast(tenantID, event)
		}
	}
}

func (b *Broker) broadcast(tenantID string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for client := range b.clients[tenantID] {
		select {
		case client.Events <- event:
		default:
			log.Warn().
				Str("tenantId", tenantID).
				Msg("client event buffer full, dropping event")
		}
	}
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, clients := range b.clients {
		for client := range clients {
			close(client.Done)
		}
	}
	b.clients = make(map[string]map[*Client]bool)
	b.subs = make(map[string]context.CancelFunc)
}

func (b *Broker) ClientCount(tenantID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[tenantID])
}

func (b *Broker) TotalClients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := 0
	for _, clients := range b.clients {
		total += len(clients)
	}
	return total
}
