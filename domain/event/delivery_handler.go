package event

import (
	"log/slog"
	"nexchat/errors"
	"time"
)

// DeliveryHandler handles the events produced around a broadcast:
// evicted recipients, storage failures and fan-out latency.
type DeliveryHandler struct {
	log              *slog.Logger
	counter          *Counter
	latencyThreshold time.Duration
}

func NewDeliveryHandler(log *slog.Logger, counter *Counter, latencyThreshold time.Duration) *DeliveryHandler {
	return &DeliveryHandler{log: log, counter: counter, latencyThreshold: latencyThreshold}
}

func (h *DeliveryHandler) Handle(e Event) {
	switch e.Type {
	case ConnectionEvictedType:
		payload, ok := e.Payload.(ConnectionEvicted)
		if !ok {
			h.log.Error(errors.ErrInvalidPayload.Error())
			return
		}
		h.counter.Increment(ConnectionEvictedType)
		h.log.Info("Connection evicted", "room", payload.Room,
			"connection_id", payload.ConnectionID, "reason", payload.Reason)
	case StorageFailureType:
		payload, ok := e.Payload.(StorageFailure)
		if !ok {
			h.log.Error(errors.ErrInvalidPayload.Error())
			return
		}
		h.counter.Increment(StorageFailureType)
		h.log.Warn("Message not persisted", "room", payload.Room, "reason", payload.Reason)
	case MessageBroadcastType:
		payload, ok := e.Payload.(MessageBroadcast)
		if !ok {
			h.log.Error(errors.ErrInvalidPayload.Error())
			return
		}
		h.counter.Increment(MessageBroadcastType)
		if h.latencyThreshold > 0 && payload.Latency > h.latencyThreshold {
			h.log.Warn("high latency detected", "room", payload.Room, "seq", payload.Seq,
				"lead_time_ms", payload.Latency.Milliseconds())
		}
	}
}
