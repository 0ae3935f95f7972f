package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/openclaw/session-relay/internal/messaging"
	"github.com/openclaw/session-relay/internal/model"
)

// recorder keeps a process-wide ordered log of side effects.
type recorder struct {
	mu      sync.Mutex
	entries []recorded
}

type recorded struct {
	what string
	at   time.Time
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, recorded{what: fmt.Sprintf(format, args...), at: time.Now()})
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.what
	}
	return out
}

func (r *recorder) timeOf(what string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.what == what {
			return e.at, true
		}
	}
	return time.Time{}, false
}

type fakeClient struct {
	tenantID string
	seq      int
	rec      *recorder

	mu             sync.Mutex
	handlers       messaging.Handlers
	initCount      int
	destroyCount   int
	panicOnDestroy bool
	// failInits is the number of leading Initialize calls that fail.
	failInits int
}

func (c *fakeClient) On(h messaging.Handlers) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = h
}

func (c *fakeClient) Initialize(ctx context.Context) error {
	c.mu.Lock()
	c.initCount++
	failing := c.initCount <= c.failInits
	c.mu.Unlock()
	c.rec.add("init:%s:%d", c.tenantID, c.seq)
	if failing {
		return errors.New("bridge unreachable")
	}
	return nil
}

func (c *fakeClient) Destroy(ctx context.Context) error {
	c.mu.Lock()
	c.destroyCount++
	panicking := c.panicOnDestroy
	c.mu.Unlock()
	c.rec.add("destroy:%s:%d", c.tenantID, c.seq)
	if panicking {
		panic("destroy exploded")
	}
	return nil
}

func (c *fakeClient) MarkSeen(ctx context.Context, destinationID string) error    { return nil }
func (c *fakeClient) SetTyping(ctx context.Context, destinationID string) error   { return nil }
func (c *fakeClient) ClearTyping(ctx context.Context, destinationID string) error { return nil }
func (c *fakeClient) SendMessage(ctx context.Context, destinationID, body string) (string, error) {
	return "ack", nil
}

func (c *fakeClient) ListContacts(ctx context.Context) ([]messaging.Contact, error) { return nil, nil }
func (c *fakeClient) ListChats(ctx context.Context) ([]messaging.Chat, error)       { return nil, nil }
func (c *fakeClient) FetchMessages(ctx context.Context, chatID string, limit int) ([]messaging.Message, error) {
	return nil, nil
}

func (c *fakeClient) current() messaging.Handlers {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlers
}

func (c *fakeClient) emitPayload(payload string) { c.current().OnPairingPayload(payload) }
func (c *fakeClient) emitReady()                 { c.current().OnReady() }
func (c *fakeClient) emitDisconnected(r string)  { c.current().OnDisconnected(r) }

func (c *fakeClient) inits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initCount
}

func (c *fakeClient) destroys() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyCount
}

type fakeFactory struct {
	rec *recorder

	mu        sync.Mutex
	clients   map[string][]*fakeClient
	failInits map[string]int
}

func newFakeFactory(rec *recorder) *fakeFactory {
	return &fakeFactory{
		rec:       rec,
		clients:   make(map[string][]*fakeClient),
		failInits: make(map[string]int),
	}
}

// failFirstInits makes the next client created for tenantID fail its first n
// initializations.
func (f *fakeFactory) failFirstInits(tenantID string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failInits[tenantID] = n
}

func (f *fakeFactory) NewClient(tenantID string) (messaging.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &fakeClient{
		tenantID:  tenantID,
		seq:       len(f.clients[tenantID]) + 1,
		rec:       f.rec,
		failInits: f.failInits[tenantID],
	}
	delete(f.failInits, tenantID)
	f.clients[tenantID] = append(f.clients[tenantID], c)
	return c, nil
}

func (f *fakeFactory) count(tenantID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients[tenantID])
}

func (f *fakeFactory) client(tenantID string, n int) *fakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.clients[tenantID]) < n {
		return nil
	}
	return f.clients[tenantID][n-1]
}

type fakeRecords struct {
	mu      sync.Mutex
	records map[string]model.SessionRecord
	// panicFor makes Upsert panic for a tenant while it is pairing.
	panicFor string
}

func newFakeRecords(tenants ...string) *fakeRecords {
	r := &fakeRecords{records: make(map[string]model.SessionRecord)}
	for _, t := range tenants {
		r.records[t] = model.NewStatusRecord(t, model.SessionStatusReady)
	}
	return r
}

func (r *fakeRecords) FindByTenantID(ctx context.Context, tenantID string) (*model.SessionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[tenantID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (r *fakeRecords) List(ctx context.Context) ([]model.SessionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.SessionRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	return out, nil
}

func (r *fakeRecords) CreateIfAbsent(ctx context.Context, tenantID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[tenantID]; ok {
		return false, nil
	}
	r.records[tenantID] = model.NewStatusRecord(tenantID, model.SessionStatusUnpaired)
	return true, nil
}

func (r *fakeRecords) Upsert(ctx context.Context, record model.SessionRecord) error {
	if record.TenantID == r.panicFor && record.Status == model.SessionStatusPairing {
		panic("store exploded")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.TenantID] = record
	return nil
}

func (r *fakeRecords) get(tenantID string) model.SessionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[tenantID]
}

type fakeWiper struct {
	rec *recorder
}

func (w *fakeWiper) Wipe(ctx context.Context, tenantID string) error {
	w.rec.add("wipe:%s", tenantID)
	return nil
}

type fakePublisher struct {
	mu       sync.Mutex
	statuses []model.SessionStatus
}

func (p *fakePublisher) PublishStatus(ctx context.Context, record model.SessionRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses = append(p.statuses, record.Status)
	return nil
}

func (p *fakePublisher) published() []model.SessionStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.SessionStatus(nil), p.statuses...)
}
