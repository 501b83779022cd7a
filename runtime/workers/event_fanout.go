package workers

import (
	"context"
	"log/slog"
	"nexchat/contract"
	"nexchat/domain/event"
	"sync"
	"time"
)

// EventFanout delivers persisted messages to the permanent, in-process consumers
// (search index, metrics).
//
// It provides best-effort fan-out with no guarantees regarding delivery,
// durability, or retries. It runs off the critical path: the room members
// have already been served by the Broadcaster when an event gets here.
type EventFanout struct {
	log         *slog.Logger
	domainEvent chan event.DomainEvent
	sinkTimeout time.Duration
	mu          sync.RWMutex
	sinks       []contract.EventSink
}

func NewEventFanout(log *slog.Logger, domainEvent chan event.DomainEvent, sinkTimeout time.Duration) *EventFanout {
	return &EventFanout{log: log, domainEvent: domainEvent, sinkTimeout: sinkTimeout}
}

func (w *EventFanout) Add(sinks ...contract.EventSink) *EventFanout {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sinks = append(w.sinks, sinks...)
	return w
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case evt := <-w.domainEvent:
			w.Fanout(ctx, evt)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping event fan-out")
			return nil
		}
	}
}

// Fanout One sink for each event, every sink bounded by sinkTimeout
func (w *EventFanout) Fanout(ctx context.Context, evt event.DomainEvent) {
	w.mu.RLock()
	sinks := append([]contract.EventSink(nil), w.sinks...)
	w.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sink := range sinks {
		wg.Add(1)
		go func(sink contract.EventSink) {
			defer wg.Done()
			sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
			defer cancel()
			if err := sink.Consume(sinkCtx, evt); err != nil {
				w.log.Warn("Sink failed to consume event", "sink", sinkName(sink),
					"room", evt.RoomID(), "error", err)
			}
		}(sink)
	}
	wg.Wait()
}

func sinkName(sink contract.EventSink) string {
	if named, ok := sink.(interface{ Name() string }); ok {
		return named.Name()
	}
	return "anonymous"
}
