package observability

import (
	"log/slog"
	"nexchat/domain/chat"
	"nexchat/domain/event"
	"nexchat/errors"
	"runtime"
	"sort"
	"sync"
	"time"
)

// ProcessStats Last sample of the server process
type ProcessStats struct {
	PID        int32   `json:"pid"`
	Status     string  `json:"status"`
	CpuPercent float64 `json:"cpu_percent"`
	RamBytes   uint64  `json:"ram_bytes"`
}

type ChannelStats struct {
	Name     string `json:"name"`
	Length   int    `json:"length"`
	Capacity int    `json:"capacity"`
}

// MonitoringStats aggregates every metric exposed on /stats
type MonitoringStats struct {
	UptimeSeconds int64             `json:"uptime_seconds"`
	Rooms         map[string]int    `json:"rooms"`
	Connections   int               `json:"connections"`
	Events        map[string]uint64 `json:"events"`
	CensoredWords map[string]uint64 `json:"censored_words"`
	Channels      []ChannelStats    `json:"channels"`
	Process       ProcessStats      `json:"process"`
	AllocMemMb    uint64            `json:"alloc_mem_mb"`
	NumGC         uint32            `json:"num_gc"`
	Goroutines    int               `json:"goroutines"`
}

// RoomCounter returns the number of live connections of every non-empty room
type RoomCounter interface {
	Rooms() map[chat.RoomID]int
}

// MonitoringManager is also a telemetry handler: it keeps the last process sample
// it has seen and reads the rest on demand.
type MonitoringManager struct {
	log       *slog.Logger
	startedAt time.Time
	counter   *event.Counter
	capacity  *event.ChannelCapacityHandler
	censored  *event.CensoredHandler
	rooms     RoomCounter

	mu      sync.RWMutex
	process ProcessStats
}

func NewMonitoringManager(log *slog.Logger,
	counter *event.Counter,
	capacity *event.ChannelCapacityHandler,
	censored *event.CensoredHandler,
	rooms RoomCounter) *MonitoringManager {
	return &MonitoringManager{
		log:       log,
		startedAt: time.Now(),
		counter:   counter,
		capacity:  capacity,
		censored:  censored,
		rooms:     rooms,
	}
}

func (mm *MonitoringManager) Handle(e event.Event) {
	switch e.Type {
	case event.ProcessTrackerType:
		payload, ok := e.Payload.(event.ProcessTracker)
		if !ok {
			mm.log.Error(errors.ErrInvalidPayload.Error())
			return
		}
		mm.mu.Lock()
		mm.process = ProcessStats{
			PID:        payload.PID,
			Status:     payload.Status,
			CpuPercent: payload.Cpu,
			RamBytes:   payload.Ram,
		}
		mm.mu.Unlock()
	}
}

func (mm *MonitoringManager) GetLatest() MonitoringStats {
	stats := MonitoringStats{
		UptimeSeconds: int64(time.Since(mm.startedAt).Seconds()),
		Rooms:         make(map[string]int),
		Events:        make(map[string]uint64),
		CensoredWords: make(map[string]uint64),
		Channels:      make([]ChannelStats, 0),
		Goroutines:    runtime.NumGoroutine(),
	}

	if mm.rooms != nil {
		for room, n := range mm.rooms.Rooms() {
			stats.Rooms[string(room)] = n
			stats.Connections += n
		}
	}
	if mm.counter != nil {
		for t, n := range mm.counter.Snapshot() {
			stats.Events[string(t)] = n
		}
	}
	if mm.censored != nil {
		stats.CensoredWords = mm.censored.Hits()
	}
	if mm.capacity != nil {
		for _, c := range mm.capacity.Latest() {
			stats.Channels = append(stats.Channels, ChannelStats{Name: c.ChannelName, Length: c.Length, Capacity: c.Capacity})
		}
		sort.Slice(stats.Channels, func(i, j int) bool { return stats.Channels[i].Name < stats.Channels[j].Name })
	}

	mm.mu.RLock()
	stats.Process = mm.process
	mm.mu.RUnlock()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	stats.AllocMemMb = m.Alloc / 1024 / 1024
	stats.NumGC = m.NumGC
	return stats
}
