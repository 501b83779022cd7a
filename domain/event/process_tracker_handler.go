package event

import (
	"log/slog"
	"nexchat/errors"
	"sync/atomic"
)

// ProcessTrackerHandler logs every heartbeat and raises a warning each time the
// resident memory reaches a new peak, which is how a leaking room or session shows up.
type ProcessTrackerHandler struct {
	log     *slog.Logger
	peakRss atomic.Uint64
}

func NewProcessTrackerHandler(log *slog.Logger) *ProcessTrackerHandler {
	return &ProcessTrackerHandler{log: log}
}

func (h *ProcessTrackerHandler) Handle(event Event) {
	if event.Type != ProcessTrackerType {
		return
	}
	payload, ok := event.Payload.(ProcessTracker)
	if !ok {
		h.log.Error(errors.ErrInvalidPayload.Error(), "type", event.Type)
		return
	}
	h.log.Debug("Process stats", "pid", payload.PID, "status", payload.Status,
		"cpu_percent", payload.Cpu, "rss_bytes", payload.Ram)

	previous := h.peakRss.Load()
	// The first sample only sets the baseline
	if payload.Ram > previous && h.peakRss.CompareAndSwap(previous, payload.Ram) && previous != 0 {
		h.log.Warn("New resident memory peak", "rss_bytes", payload.Ram, "previous_bytes", previous)
	}
}

// PeakRss is the highest resident memory seen so far, in bytes.
func (h *ProcessTrackerHandler) PeakRss() uint64 {
	return h.peakRss.Load()
}
