package workers

import (
	"context"
	"log/slog"
	"nexchat/domain/event"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// HeartbeatWorker samples the CPU, memory and OS status of the server process
// and publishes them as telemetry.
type HeartbeatWorker struct {
	log           *slog.Logger
	interval      time.Duration
	telemetryChan chan event.Event
}

func NewHeartbeatWorker(log *slog.Logger, interval time.Duration, telemetryChan chan event.Event) *HeartbeatWorker {
	return &HeartbeatWorker{
		log:           log,
		interval:      interval,
		telemetryChan: telemetryChan,
	}
}

// Run executes the main loop of the worker, sampling the process every interval.
func (w *HeartbeatWorker) Run(ctx context.Context) error {
	pid := int32(os.Getpid())
	p, err := process.NewProcess(pid)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			rss, cpu, status, err := selfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "error", err)
				continue
			}
			select {
			case w.telemetryChan <- event.NewEvent(event.ProcessTrackerType, event.ProcessTracker{
				PID: pid, Status: status, Cpu: cpu, Ram: rss,
			}):
			default:
				w.log.Debug("Process stats dropped, telemetry channel full")
			}
		}
	}
}

// selfStats retrieves memory, CPU and OS status for the given process.
func selfStats(p *process.Process) (uint64, float64, string, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, "", err
	}

	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, "", err
	}

	status, err := p.Status()
	if err != nil {
		return 0, 0, "", err
	}
	return memInfo.RSS, cpuPercent, status, nil
}
