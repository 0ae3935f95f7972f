package service

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/openclaw/session-relay/internal/delivery"
	"github.com/openclaw/session-relay/internal/messaging"
	"github.com/openclaw/session-relay/internal/model"
	"github.com/openclaw/session-relay/internal/session"
)

type mockNotificationRepo struct {
	mock.Mock
}

func (m *mockNotificationRepo) FindByID(ctx context.Context, id int64) (*model.Notification, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Notification), args.Error(1)
}

func (m *mockNotificationRepo) FindByTenantID(ctx context.Context, tenantID string, limit, offset int) ([]model.Notification, error) {
	args := m.Called(ctx, tenantID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Notification), args.Error(1)
}

func (m *mockNotificationRepo) CountByTenantID(ctx context.Context, tenantID string) (int, error) {
	args := m.Called(ctx, tenantID)
	return args.Int(0), args.Error(1)
}

func (m *mockNotificationRepo) FindDue(ctx context.Context, now time.Time) ([]model.Notification, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Notification), args.Error(1)
}

func (m *mockNotificationRepo) Create(ctx context.Context, params model.CreateNotificationParams) (*model.Notification, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Notification), args.Error(1)
}

func (m *mockNotificationRepo) MarkSent(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockNotificationRepo) MarkFailed(ctx context.Context, id int64, errorMsg string) error {
	args := m.Called(ctx, id, errorMsg)
	return args.Error(0)
}

type mockSessionRecordRepo struct {
	mock.Mock
}

func (m *mockSessionRecordRepo) FindByTenantID(ctx context.Context, tenantID string) (*model.SessionRecord, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SessionRecord), args.Error(1)
}

func (m *mockSessionRecordRepo) List(ctx context.Context) ([]model.SessionRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.SessionRecord), args.Error(1)
}

func (m *mockSessionRecordRepo) CreateIfAbsent(ctx context.Context, tenantID string) (bool, error) {
	args := m.Called(ctx, tenantID)
	return args.Bool(0), args.Error(1)
}

func (m *mockSessionRecordRepo) Upsert(ctx context.Context, record model.SessionRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

type mockSessions struct {
	mock.Mock
}

func (m *mockSessions) Start(ctx context.Context, tenantID string) (*session.Handle, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.Handle), args.Error(1)
}

func (m *mockSessions) Lookup(tenantID string) (delivery.Target, bool) {
	args := m.Called(tenantID)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).(delivery.Target), args.Bool(1)
}

type mockDeliverer struct {
	mock.Mock
}

func (m *mockDeliverer) Deliver(ctx context.Context, target delivery.Target, destinationID, body string) (*delivery.Result, error) {
	args := m.Called(ctx, target, destinationID, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*delivery.Result), args.Error(1)
}

type stubTarget struct {
	tenantID   string
	state      model.SessionStatus
	attempts   int
	initFailed bool
	client     messaging.Client
}

func (s *stubTarget) TenantID() string           { return s.tenantID }
func (s *stubTarget) State() model.SessionStatus { return s.state }
func (s *stubTarget) Client() messaging.Client   { return s.client }
func (s *stubTarget) PairingAttempts() int       { return s.attempts }
func (s *stubTarget) InitFailed() bool           { return s.initFailed }

// fakeChatClient serves canned chat reads. Lifecycle and send calls are
// no-ops.
type fakeChatClient struct {
	contacts []messaging.Contact
	chats    []messaging.Chat
	messages []messaging.Message
	err      error

	gotChatID string
	gotLimit  int
}

func (c *fakeChatClient) On(h messaging.Handlers)                                     {}
func (c *fakeChatClient) Initialize(ctx context.Context) error                        { return nil }
func (c *fakeChatClient) Destroy(ctx context.Context) error                           { return nil }
func (c *fakeChatClient) MarkSeen(ctx context.Context, destinationID string) error    { return nil }
func (c *fakeChatClient) SetTyping(ctx context.Context, destinationID string) error   { return nil }
func (c *fakeChatClient) ClearTyping(ctx context.Context, destinationID string) error { return nil }
func (c *fakeChatClient) SendMessage(ctx context.Context, destinationID, body string) (string, error) {
	return "", nil
}

func (c *fakeChatClient) ListContacts(ctx context.Context) ([]messaging.Contact, error) {
	return c.contacts, c.err
}

func (c *fakeChatClient) ListChats(ctx context.Context) ([]messaging.Chat, error) {
	return c.chats, c.err
}

func (c *fakeChatClient) FetchMessages(ctx context.Context, chatID string, limit int) ([]messaging.Message, error) {
	c.gotChatID = chatID
	c.gotLimit = limit
	return c.messages, c.err
}
