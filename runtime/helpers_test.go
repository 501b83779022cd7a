package runtime

import (
	"context"
	"nexchat/domain/event"
	"sync"

	"github.com/google/uuid"
)

// fakeConn is an in-memory connection recording what it receives.
type fakeConn struct {
	id      string
	mu      sync.Mutex
	events  []event.DomainEvent
	stall   bool
	fail    error
	revoked chan error
}

func newFakeConn() *fakeConn {
	return &fakeConn{id: uuid.NewString(), revoked: make(chan error, 1)}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Consume(ctx context.Context, e event.DomainEvent) error {
	if c.fail != nil {
		return c.fail
	}
	if c.stall {
		<-ctx.Done()
		return ctx.Err()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *fakeConn) Revoke(cause error) {
	select {
	case c.revoked <- cause:
	default:
	}
}

func (c *fakeConn) received() []event.DomainEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]event.DomainEvent(nil), c.events...)
}

func (c *fakeConn) texts() []string {
	var out []string
	for _, e := range c.received() {
		if m, ok := e.(event.MessagePersisted); ok {
			out = append(out, m.Message.Text)
		}
	}
	return out
}
