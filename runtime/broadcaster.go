package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"nexchat/contract"
	"nexchat/domain/chat"
	"nexchat/domain/event"
	"nexchat/errors"
	"sync"
	"time"
)

// Broadcaster delivers an event to every member of a room snapshot.
// Each member is served by its own goroutine, under its own timeout:
// a stalled member costs at most deliveryTimeout and never delays the others.
type Broadcaster struct {
	log             *slog.Logger
	registry        contract.IRegistry
	deliveryTimeout time.Duration
	telemetryEvents chan event.Event
}

func NewBroadcaster(log *slog.Logger, registry contract.IRegistry,
	deliveryTimeout time.Duration, telemetryEvents chan event.Event) *Broadcaster {
	return &Broadcaster{
		log:             log,
		registry:        registry,
		deliveryTimeout: deliveryTimeout,
		telemetryEvents: telemetryEvents,
	}
}

// Broadcast never fails. A member that cannot be reached is evicted:
// it is deregistered and revoked asynchronously.
// It returns once every delivery succeeded or timed out, so two successive
// calls for the same room reach each member in call order.
func (b *Broadcaster) Broadcast(ctx context.Context, roomID chat.RoomID, e event.DomainEvent) contract.BroadcastReport {
	members := b.registry.MembersOf(roomID)
	if len(members) == 0 {
		return contract.BroadcastReport{}
	}

	// The fan-out outlives a sender that went away in the meantime
	deliveryCtx := context.WithoutCancel(ctx)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		report contract.BroadcastReport
	)
	for _, member := range members {
		wg.Add(1)
		go func(conn contract.Connection) {
			defer wg.Done()
			err := b.deliver(deliveryCtx, conn, e)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				b.evict(roomID, conn, err)
				return
			}
			report.Delivered++
		}(member)
	}
	wg.Wait()
	return report
}

func (b *Broadcaster) deliver(ctx context.Context, conn contract.Connection, e event.DomainEvent) (err error) {
	ctx, cancel := context.WithTimeout(ctx, b.deliveryTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("delivery panic: %v", r)
		}
	}()
	return conn.Consume(ctx, e)
}

// evict is the self-healing path: the registry is corrected without waiting
// for the session to notice its peer is gone.
func (b *Broadcaster) evict(roomID chat.RoomID, conn contract.Connection, cause error) {
	err := fmt.Errorf("%w: %w", errors.ErrPeerUnreachable, cause)
	b.log.Warn("Evicting unreachable connection", "room", roomID, "connection_id", conn.ID(), "error", cause)

	if b.telemetryEvents != nil {
		select {
		case b.telemetryEvents <- event.NewEvent(event.ConnectionEvictedType, event.ConnectionEvicted{
			Room:         roomID,
			ConnectionID: conn.ID(),
			Reason:       cause.Error(),
		}):
		default:
			b.log.Debug("Observability telemetry event lost")
		}
	}

	go func() {
		b.registry.Deregister(roomID, conn)
		conn.Revoke(err)
	}()
}
