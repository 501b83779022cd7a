package event

import (
	"log/slog"
	"nexchat/errors"
	"sync"
)

// WorkerRestartedAfterPanicHandler counts supervisor restarts, globally and per worker.
// A room worker that keeps panicking is reported at error level.
type WorkerRestartedAfterPanicHandler struct {
	log       *slog.Logger
	counter   *Counter
	mu        sync.Mutex
	perWorker map[string]int
}

const repeatedPanicThreshold = 3

func NewWorkerRestartedAfterPanicHandler(log *slog.Logger, counter *Counter) *WorkerRestartedAfterPanicHandler {
	return &WorkerRestartedAfterPanicHandler{log: log, counter: counter, perWorker: make(map[string]int)}
}

func (h *WorkerRestartedAfterPanicHandler) Handle(event Event) {
	if event.Type != RestartedAfterPanicType {
		return
	}
	payload, ok := event.Payload.(WorkerRestartedAfterPanic)
	if !ok {
		h.log.Error(errors.ErrInvalidPayload.Error(), "type", event.Type)
		return
	}
	h.counter.Increment(RestartedAfterPanicType)

	h.mu.Lock()
	h.perWorker[payload.WorkerName]++
	restarts := h.perWorker[payload.WorkerName]
	h.mu.Unlock()

	if restarts >= repeatedPanicThreshold {
		h.log.Error("Worker keeps panicking", "worker", payload.WorkerName, "restarts", restarts)
		return
	}
	h.log.Warn("Worker restarted after panic", "worker", payload.WorkerName,
		"restarts", restarts, "total", h.counter.Get(RestartedAfterPanicType))
}

// Restarts returns how many times worker has been restarted.
func (h *WorkerRestartedAfterPanicHandler) Restarts(worker string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.perWorker[worker]
}
