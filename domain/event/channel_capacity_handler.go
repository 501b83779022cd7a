package event

import (
	"log/slog"
	"nexchat/errors"
	"sync"
)

// ChannelCapacityHandler keeps the last sampled fill level of the internal channels
// and warns when one of them is about to apply back-pressure.
type ChannelCapacityHandler struct {
	log                  *slog.Logger
	lowCapacityThreshold int
	mu                   sync.RWMutex
	latest               map[string]ChannelCapacity
}

func NewChannelCapacityHandler(log *slog.Logger, lowCapacityThreshold int) *ChannelCapacityHandler {
	return &ChannelCapacityHandler{
		log:                  log,
		lowCapacityThreshold: lowCapacityThreshold,
		latest:               make(map[string]ChannelCapacity),
	}
}

func (h *ChannelCapacityHandler) Handle(event Event) {
	switch event.Type {
	case ChannelCapacityType:
		payload, ok := event.Payload.(ChannelCapacity)
		if !ok {
			h.log.Error(errors.ErrInvalidPayload.Error())
			return
		}
		h.mu.Lock()
		h.latest[payload.ChannelName] = payload
		h.mu.Unlock()

		if payload.Capacity <= 0 {
			// unbuffered
			return
		}
		capacityLeft := payload.Capacity - payload.Length
		if capacityLeft <= h.lowCapacityThreshold {
			h.log.Warn("Channel close to saturation", "channel", payload.ChannelName,
				"length", payload.Length, "capacity", payload.Capacity)
		}
	}
}

// Latest returns the last sample of every channel.
func (h *ChannelCapacityHandler) Latest() []ChannelCapacity {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]ChannelCapacity, 0, len(h.latest))
	for _, c := range h.latest {
		out = append(out, c)
	}
	return out
}
