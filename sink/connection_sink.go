package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"nexchat/domain/chat"
	"nexchat/domain/event"
	"nexchat/errors"
	"sync"
)

// ConnectionSink is the registry side of one WebSocket connection.
// Consume only enqueues an encoded frame, the session write pump owns the socket
// and drains Frames in FIFO order.
type ConnectionSink struct {
	id     string
	frames chan []byte
	done   chan struct{}
	once   sync.Once
	mu     sync.Mutex
	cause  error
}

func NewConnectionSink(id string, bufferSize int) *ConnectionSink {
	return &ConnectionSink{
		id:     id,
		frames: make(chan []byte, bufferSize),
		done:   make(chan struct{}),
	}
}

func (s *ConnectionSink) ID() string { return s.id }

// Consume is called by the broadcaster, ctx carries the delivery timeout.
func (s *ConnectionSink) Consume(ctx context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.MessagePersisted:
		return s.enqueue(ctx, chat.ToOutboundFrame(evt.Message))
	default:
		return nil
	}
}

// Notify queues a frame addressed to this connection only, such as an error frame.
func (s *ConnectionSink) Notify(ctx context.Context, frame any) error {
	return s.enqueue(ctx, frame)
}

func (s *ConnectionSink) enqueue(ctx context.Context, frame any) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	// A revoked sink never accepts a frame, even with room left in the buffer
	select {
	case <-s.done:
		return fmt.Errorf("%w: connection %s revoked", errors.ErrPeerUnreachable, s.id)
	default:
	}
	select {
	case s.frames <- payload:
		return nil
	case <-s.done:
		return fmt.Errorf("%w: connection %s revoked", errors.ErrPeerUnreachable, s.id)
	case <-ctx.Done():
		return fmt.Errorf("%w: connection %s: %w", errors.ErrPeerUnreachable, s.id, ctx.Err())
	}
}

// Frames is drained by the write pump.
func (s *ConnectionSink) Frames() <-chan []byte { return s.frames }

// Done is closed once the sink is revoked.
func (s *ConnectionSink) Done() <-chan struct{} { return s.done }

// Revoke never blocks and only the first cause is kept.
func (s *ConnectionSink) Revoke(cause error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.cause = cause
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *ConnectionSink) Cause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause
}
