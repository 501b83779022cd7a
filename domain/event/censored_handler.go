package event

import (
	"log/slog"
	"maps"
	"nexchat/errors"
	"sync"
)

// CensoredHandler keeps track of the censored words per room.
type CensoredHandler struct {
	mu      sync.Mutex
	log     *slog.Logger
	counter *Counter
	hit     map[string]uint64
}

func NewCensoredHandler(log *slog.Logger, counter *Counter) *CensoredHandler {
	return &CensoredHandler{
		log:     log,
		counter: counter,
		hit:     make(map[string]uint64),
	}
}

func (h *CensoredHandler) Handle(event Event) {
	switch event.Type {
	case CensorshipHit:
		payload, ok := event.Payload.(Censored)
		if !ok {
			h.log.Error(errors.ErrInvalidPayload.Error())
			return
		}
		h.mu.Lock()
		defer h.mu.Unlock()
		h.counter.Increment(CensorshipHit)
		h.hit[payload.Word]++
		h.log.Debug("Censored word", "room", payload.Room, "word", payload.Word, "hits", h.hit[payload.Word])
	}
}

// Hits returns how many times each word was censored.
func (h *CensoredHandler) Hits() map[string]uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return maps.Clone(h.hit)
}
