package sse

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/session-relay/internal/model"
)

type recordingPubSub struct {
	mu        sync.Mutex
	published map[string][]string
}

func (r *recordingPubSub) Publish(ctx context.Context, channel string, message interface{}) *goredis.IntCmd {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.published == nil {
		r.published = make(map[string][]string)
	}
	r.published[channel] = append(r.published[channel], string(message.([]byte)))
	cmd := goredis.NewIntCmd(ctx)
	cmd.SetVal(1)
	return cmd
}

func (r *recordingPubSub) Subscribe(ctx context.Context, channels ...string) *goredis.PubSub {
	panic("not used")
}

func TestStatusEvent(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("pairing carries payload", func(t *testing.T) {
		event, err := StatusEvent(model.NewPairingRecord("T1", "2@abc"), at)
		require.NoError(t, err)
		assert.Equal(t, EventSessionStatus, event.Type)

		var data StatusData
		require.NoError(t, json.Unmarshal(event.Data, &data))
		assert.Equal(t, "T1", data.TenantID)
		assert.Equal(t, model.SessionStatusPairing, data.Status)
		require.NotNil(t, data.PairingPayload)
		assert.Equal(t, "2@abc", *data.PairingPayload)
		assert.True(t, at.Equal(data.At))
	})

	t.Run("ready omits payload", func(t *testing.T) {
		event, err := StatusEvent(model.NewStatusRecord("T1", model.SessionStatusReady), at)
		require.NoError(t, err)
		assert.NotContains(t, string(event.Data), "pairingPayload")
	})
}

func TestBroker_PublishStatus(t *testing.T) {
	redis := &recordingPubSub{}
	b := NewBroker(redis)
	defer b.Close()

	require.NoError(t, b.PublishStatus(context.Background(), model.NewStatusRecord("T1", model.SessionStatusReady)))

	redis.mu.Lock()
	defer redis.mu.Unlock()
	require.Len(t, redis.published["sessions:T1"], 1)

	var event Event
	require.NoError(t, json.Unmarshal([]byte(redis.published["sessions:T1"][0]), &event))
	assert.Equal(t, EventSessionStatus, event.Type)
}

func TestBroker_Broadcast(t *testing.T) {
	b := &Broker{clients: make(map[string]map[*Client]bool), subs: make(map[string]context.CancelFunc)}

	c1 := &Client{TenantID: "T1", Events: make(chan Event, 1), Done: make(chan struct{})}
	c2 := &Client{TenantID: "T1", Events: make(chan Event, 1), Done: make(chan struct{})}
	other := &Client{TenantID: "T2", Events: make(chan Event, 1), Done: make(chan struct{})}
	b.clients["T1"] = map[*Client]bool{c1: true, c2: true}
	b.clients["T2"] = map[*Client]bool{other: true}

	b.broadcast("T1", Event{Type: EventSessionStatus})

	assert.Len(t, c1.Events, 1)
	assert.Len(t, c2.Events, 1)
	assert.Len(t, other.Events, 0)

	// full buffers drop instead of blocking
	b.broadcast("T1", Event{Type: EventSessionStatus})
	assert.Len(t, c1.Events, 1)

	assert.Equal(t, 2, b.ClientCount("T1"))
	assert.Equal(t, 3, b.TotalClients())
}

func TestBroker_UnsubscribeClosesDone(t *testing.T) {
	b := &Broker{clients: make(map[string]map[*Client]bool), subs: make(map[string]context.CancelFunc)}
	cancelled := false
	c := &Client{TenantID: "T1", Events: make(chan Event, 1), Done: make(chan struct{})}
	b.clients["T1"] = map[*Client]bool{c: true}
	b.subs["T1"] = func() { cancelled = true }

	b.Unsubscribe(c)
	b.Unsubscribe(c)

	select {
	case <-c.Done:
	default:
		t.Fatal("done not closed")
	}
	assert.True(t, cancelled)
	assert.Equal(t, 0, b.TotalClients())
}
