// Package messaging defines the contract between the session core and the
// messaging-network client that actually talks to the network.
package messaging

import (
	"context"
	"time"
)

// Handlers are the lifecycle callbacks a Client invokes. A Client must call
// them sequentially, in the order the events occurred.
type Handlers struct {
	OnPairingPayload func(payload string)
	OnReady          func()
	OnDisconnected   func(reason string)
	OnAuthFailure    func(message string)
}

// Client is one live connection to the messaging network for one tenant.
//
// Initialize starts the connection and returns once it is underway; pairing,
// readiness and disconnection are reported later through Handlers. Destroy
// tears the connection down; a destroyed client may be initialized again.
// On replaces any previously registered Handlers.
type Client interface {
	On(h Handlers)
	Initialize(ctx context.Context) error
	Destroy(ctx context.Context) error

	MarkSeen(ctx context.Context, destinationID string) error
	SetTyping(ctx context.Context, destinationID string) error
	ClearTyping(ctx context.Context, destinationID string) error
	// SendMessage returns the network's acknowledgment id for the message.
	SendMessage(ctx context.Context, destinationID, body string) (string, error)

	ChatReader
}

// ChatReader reads the address book and chat history of a paired account.
type ChatReader interface {
	ListContacts(ctx context.Context) ([]Contact, error)
	// ListChats returns every chat, groups included, in the order the
	// network reports them.
	ListChats(ctx context.Context) ([]Chat, error)
	// FetchMessages returns at most limit of the newest messages of a chat.
	// An unknown chat yields errors.ErrDestinationNotFound.
	FetchMessages(ctx context.Context, chatID string, limit int) ([]Message, error)
}

type Contact struct {
	ID          string
	Name        string
	IsGroup     bool
	Description string
}

type Chat struct {
	ID          string
	Name        string
	IsGroup     bool
	Description string
	// LastMessageAt is zero for a chat without messages.
	LastMessageAt time.Time
}

type Message struct {
	ID        string
	ChatID    string
	From      string
	Body      string
	Type      string
	FromMe    bool
	Timestamp time.Time
}

// Factory builds a fresh, uninitialized Client for a tenant. It must not
// block on network I/O.
type Factory interface {
	NewClient(tenantID string) (Client, error)
}
