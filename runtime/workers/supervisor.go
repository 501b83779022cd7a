package workers

import (
	"context"
	"fmt"
	"log/slog"
	"nexchat/contract"
	"nexchat/domain/event"
	"nexchat/errors"
	"sync"
	"time"
)

// Supervisor Own a context and a Cancel function
// Run each worker in a goroutine
// Check panics and errors
// Restart workers automatically
// Accept workers started on the fly (one per active room) until it is stopped
// Wait for the end of all goroutines via WaitGroup
type Supervisor struct {
	mu              sync.Mutex
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	log             *slog.Logger
	workers         []contract.Worker
	telemetryEvents chan event.Event
	restartInterval time.Duration
	stopped         bool
}

func NewSupervisor(log *slog.Logger, telemetryEvents chan event.Event, restartInterval time.Duration) *Supervisor {
	return &Supervisor{log: log, telemetryEvents: telemetryEvents, restartInterval: restartInterval}
}

// Run starts the registered workers and blocks until ctx is canceled or Stop is called,
// then waits for every supervised goroutine, including the ones started later through Start.
func (s *Supervisor) Run(ctx context.Context) {
	// If the parent (main) cancels, we cancel.
	// If we call Stop, only our children cancel.
	supervisedCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.cancel = cancel
	workers := append([]contract.Worker(nil), s.workers...)
	s.mu.Unlock()

	for _, worker := range workers {
		s.Start(supervisedCtx, worker)
	}

	<-supervisedCtx.Done()

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Supervisor) Add(worker ...contract.Worker) contract.ISupervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers = append(s.workers, worker...)
	return s
}

// Start runs a worker under supervision.
// The worker is executed in a dedicated goroutine. If its Run method panics
// or fails, the supervisor restarts it. A worker returning nil is done and never restarted.
// A failure in one worker must not stop the supervisor itself.
func (s *Supervisor) Start(ctx context.Context, worker contract.Worker) {
	workerName := contract.GetWorkerName(worker)

	s.mu.Lock()
	if s.stopped || ctx.Err() != nil {
		s.mu.Unlock()
		s.log.Debug("Supervisor stopped, worker not started", "name", workerName)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()

		for {
			if ctx.Err() != nil {
				s.log.Debug(fmt.Sprintf("Stopping : %s", workerName))
				return
			}

			err := func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						s.log.Error("Worker panic", "name", workerName, "panic", r)
						s.notifyRestart(workerName)
						err = errors.ErrWorkerPanic
					}
				}()
				return worker.Run(ctx)
			}()

			if err == nil {
				// Terminated properly, never restart !
				s.log.Debug(fmt.Sprintf("Worker finished : %s", workerName))
				return
			}

			if ctx.Err() != nil {
				s.log.Debug("Worker stopped (context canceled)", "name", workerName)
				return
			}

			s.log.Warn("Worker crashed, restarting", "name", workerName, "error", err)
			select {
			case <-ctx.Done():
				// Priority stop, no restart delay
				return
			case <-time.After(s.restartInterval):
			}
		}
	}()
}

// Stop Cancel all goroutines listening channel for Ctx.Done
// Run returns once all of them are finished
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Supervisor) notifyRestart(workerName string) {
	if s.telemetryEvents == nil {
		return
	}
	select {
	case s.telemetryEvents <- event.NewEvent(event.RestartedAfterPanicType,
		event.WorkerRestartedAfterPanic{WorkerName: workerName}):
	default:
		s.log.Debug("Observability telemetry event lost")
	}
}
