// Package bridge implements messaging.Client on top of an external protocol
// bridge: commands are HTTP calls, lifecycle events arrive over Redis pub/sub.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/session-relay/internal/config"
	apperrors "github.com/openclaw/session-relay/internal/errors"
	"github.com/openclaw/session-relay/internal/messaging"
	redisclient "github.com/openclaw/session-relay/internal/redis"
	"github.com/openclaw/session-relay/internal/util"
)

// Lifecycle event types published by the bridge.
const (
	EventQR           = "qr"
	EventReady        = "ready"
	EventDisconnected = "disconnected"
	EventAuthFailure  = "auth_failure"
)

const maxErrorBody = 1024

type Event struct {
	Type    string `json:"type"`
	Payload string `json:"payload,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

// Subscriber is the part of the Redis client the bridge needs.
type Subscriber interface {
	Subscribe(ctx context.Context, channels ...string) *goredis.PubSub
}

type Factory struct {
	baseURL string
	http    *http.Client
	events  Subscriber
}

func NewFactory(baseURL string, events Subscriber) *Factory {
	return &Factory{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: config.BridgeRequestTimeout,
		},
		events: events,
	}
}

func (f *Factory) NewClient(tenantID string) (messaging.Client, error) {
	return f.newClient(tenantID)
}

func (f *Factory) newClient(tenantID string) (*Client, error) {
	if !util.IsValidTenantID(tenantID) {
		return nil, apperrors.InvalidInput("tenantId", "contains unsupported characters")
	}
	return &Client{
		tenantID: tenantID,
		baseURL:  f.baseURL,
		http:     f.http,
		events:   f.events,
	}, nil
}

// Wipe deletes the bridge's stored credentials for tenantID so the next
// client has to pair from scratch. The bridge owns the credential store; a
// tenant without stored credentials is not an error.
func (f *Factory) Wipe(ctx context.Context, tenantID string) error {
	c, err := f.newClient(tenantID)
	if err != nil {
		return err
	}
	err = c.do(ctx, http.MethodDelete, c.clientPath("credentials"), nil, nil, true)
	if errors.Is(err, apperrors.ErrDestinationNotFound) {
		return nil
	}
	return err
}

type Client struct {
	tenantID string
	baseURL  string
	http     *http.Client
	events   Subscriber

	mu       sync.Mutex
	handlers messaging.Handlers
	sub      *goredis.PubSub
	listener chan struct{}
}

func (c *Client) On(h messaging.Handlers) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = h
}

// Initialize subscribes to the tenant's event channel before asking the
// bridge to start, so no early event is missed.
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.sub != nil {
		c.mu.Unlock()
		return fmt.Errorf("bridge client for %s already initialized", c.tenantID)
	}
	sub := c.events.Subscribe(context.Background(), redisclient.BridgeEventsChannel(c.tenantID))
	c.sub = sub
	c.mu.Unlock()

	if _, err := sub.Receive(ctx); err != nil {
		c.stopListening()
		return fmt.Errorf("subscribe bridge events: %w", err)
	}

	listener := make(chan struct{})
	c.mu.Lock()
	c.listener = listener
	c.mu.Unlock()
	go c.listen(sub, listener)

	if err := c.post(ctx, c.clientPath("initialize"), nil, nil, false); err != nil {
		c.stopListening()
		return err
	}
	return nil
}

// Destroy asks the bridge to drop the connection and stops event delivery
// even when the bridge call fails.
func (c *Client) Destroy(ctx context.Context) error {
	err := c.post(ctx, c.clientPath("destroy"), nil, nil, false)
	c.stopListening()
	return err
}

func (c *Client) MarkSeen(ctx context.Context, destinationID string) error {
	return c.post(ctx, c.chatPath(destinationID, "seen"), nil, nil, true)
}

func (c *Client) SetTyping(ctx context.Context, destinationID string) error {
	return c.post(ctx, c.chatPath(destinationID, "typing"), nil, nil, true)
}

func (c *Client) ClearTyping(ctx context.Context, destinationID string) error {
	return c.post(ctx, c.chatPath(destinationID, "clear-typing"), nil, nil, true)
}

func (c *Client) SendMessage(ctx context.Context, destinationID, body string) (string, error) {
	var reply struct {
		ID string `json:"id"`
	}
	payload := map[string]string{"body": body}
	if err := c.post(ctx, c.chatPath(destinationID, "messages"), payload, &reply, true); err != nil {
		return "", err
	}
	return reply.ID, nil
}

type contactWire struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	IsGroup     bool   `json:"isGroup"`
	Description string `json:"description,omitempty"`
}

type chatWire struct {
	contactWire
	// LastMessageAt is unix seconds; 0 when the chat has no messages.
	LastMessageAt int64 `json:"lastMessageAt"`
}

type messageWire struct {
	ID        string `json:"id"`
	ChatID    string `json:"chatId"`
	From      string `json:"from"`
	Body      string `json:"body"`
	Type      string `json:"type"`
	FromMe    bool   `json:"fromMe"`
	Timestamp int64  `json:"timestamp"`
}

func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func (c *Client) ListContacts(ctx context.Context) ([]messaging.Contact, error) {
	var reply struct {
		Result []contactWire `json:"result"`
	}
	if err := c.get(ctx, c.clientPath("contacts"), &reply, false); err != nil {
		return nil, err
	}
	contacts := make([]messaging.Contact, len(reply.Result))
	for i, w := range reply.Result {
		contacts[i] = messaging.Contact{
			ID:          w.ID,
			Name:        w.Name,
			IsGroup:     w.IsGroup,
			Description: w.Description,
		}
	}
	return contacts, nil
}

func (c *Client) ListChats(ctx context.Context) ([]messaging.Chat, error) {
	var reply struct {
		Result []chatWire `json:"result"`
	}
	if err := c.get(ctx, c.clientPath("chats"), &reply, false); err != nil {
		return nil, err
	}
	chats := make([]messaging.Chat, len(reply.Result))
	for i, w := range reply.Result {
		chats[i] = messaging.Chat{
			ID:            w.ID,
			Name:          w.Name,
			IsGroup:       w.IsGroup,
			Description:   w.Description,
			LastMessageAt: unixTime(w.LastMessageAt),
		}
	}
	return chats, nil
}

func (c *Client) FetchMessages(ctx context.Context, chatID string, limit int) ([]messaging.Message, error) {
	var reply struct {
		Result []messageWire `json:"result"`
	}
	path := c.chatPath(chatID, "messages") + "?limit=" + strconv.Itoa(limit)
	if err := c.get(ctx, path, &reply, true); err != nil {
		return nil, err
	}
	messages := make([]messaging.Message, len(reply.Result))
	for i, w := range reply.Result {
		messages[i] = messaging.Message{
			ID:        w.ID,
			ChatID:    w.ChatID,
			From:      w.From,
			Body:      w.Body,
			Type:      w.Type,
			FromMe:    w.FromMe,
			Timestamp: unixTime(w.Timestamp),
		}
	}
	return messages, nil
}

func (c *Client) clientPath(action string) string {
	return fmt.Sprintf("/clients/%s/%s", url.PathEscape(c.tenantID), action)
}

func (c *Client) chatPath(destinationID, action string) string {
	return fmt.Sprintf("/clients/%s/chats/%s/%s", url.PathEscape(c.tenantID), url.PathEscape(destinationID), action)
}

func (c *Client) post(ctx context.Context, path string, payload, out any, chat bool) error {
	if payload == nil {
		payload = struct{}{}
	}
	return c.do(ctx, http.MethodPost, path, payload, out, chat)
}

func (c *Client) get(ctx context.Context, path string, out any, chat bool) error {
	return c.do(ctx, http.MethodGet, path, nil, out, chat)
}

// do sends one bridge request. With chat set, a 404 means the addressed chat
// or credential set does not exist and maps to ErrDestinationNotFound.
func (c *Client) do(ctx context.Context, method, path string, payload, out any, chat bool) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	requestID := uuid.NewString()
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		log.Error().
			Err(err).
			Str("tenantId", c.tenantID).
			Str("method", method).
			Str("path", path).
			Str("requestId", requestID).
			Dur("elapsed", elapsed).
			Msg("bridge request error")
		return fmt.Errorf("bridge request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		log.Warn().
			Str("tenantId", c.tenantID).
			Str("path", path).
			Str("requestId", requestID).
			Int("status", resp.StatusCode).
			Dur("elapsed", elapsed).
			Msg("bridge request failed")
		if chat && resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("bridge %s: %w", path, apperrors.ErrDestinationNotFound)
		}
		return apperrors.External("messaging bridge",
			fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(detail))))
	}

	log.Debug().
		Str("tenantId", c.tenantID).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", elapsed).
		Msg("bridge request ok")

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode bridge reply: %w", err)
	}
	return nil
}

func (c *Client) listen(sub *goredis.PubSub, done chan struct{}) {
	defer close(done)
	for msg := range sub.Channel() {
		c.dispatch([]byte(msg.Payload))
	}
}

func (c *Client) stopListening() {
	c.mu.Lock()
	sub := c.sub
	listener := c.listener
	c.sub = nil
	c.listener = nil
	c.mu.Unlock()

	if sub != nil {
		if err := sub.Close(); err != nil {
			log.Debug().Err(err).Str("tenantId", c.tenantID).Msg("closing bridge subscription")
		}
	}
	if listener != nil {
		<-listener
	}
}

// dispatch decodes one bridge event and invokes the matching handler.
// Events are dispatched one at a time in arrival order.
func (c *Client) dispatch(raw []byte) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		log.Error().Err(err).Str("tenantId", c.tenantID).Msg("failed to unmarshal bridge event")
		return
	}

	c.mu.Lock()
	h := c.handlers
	c.mu.Unlock()

	switch ev.Type {
	case EventQR:
		if h.OnPairingPayload != nil {
			h.OnPairingPayload(ev.Payload)
		}
	case EventReady:
		if h.OnReady != nil {
			h.OnReady()
		}
	case EventDisconnected:
		if h.OnDisconnected != nil {
			h.OnDisconnected(ev.Reason)
		}
	case EventAuthFailure:
		if h.OnAuthFailure != nil {
			h.OnAuthFailure(ev.Message)
		}
	default:
		log.Warn().Str("tenantId", c.tenantID).Str("type", ev.Type).Msg("unknown bridge event")
	}
}
