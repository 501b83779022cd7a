package workers

import (
	"context"
	"log/slog"
	"nexchat/domain/event"
	"time"
)

// QueueSampler reads the fill level of the queues worth watching.
// It is called from the sampling goroutine and must not block.
type QueueSampler func() []event.ChannelCapacity

// ChannelCapacityWorker periodically publishes the samples of a QueueSampler
// on the telemetry channel. A sample is dropped when the telemetry channel is
// full, the next tick sends a fresh one.
type ChannelCapacityWorker struct {
	log            *slog.Logger
	sample         QueueSampler
	telemetryChan  chan event.Event
	metricInterval time.Duration
}

func NewChannelCapacityWorker(log *slog.Logger, sample QueueSampler,
	telemetryChan chan event.Event, metricInterval time.Duration) *ChannelCapacityWorker {
	return &ChannelCapacityWorker{
		log:            log,
		sample:         sample,
		telemetryChan:  telemetryChan,
		metricInterval: metricInterval,
	}
}

func (w ChannelCapacityWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping queue sampling")
			return nil
		case <-ticker.C:
			for _, capacity := range w.sample() {
				select {
				case w.telemetryChan <- event.NewEvent(event.ChannelCapacityType, capacity):
				default:
					w.log.Debug("Queue sample lost", "queue", capacity.ChannelName)
				}
			}
		}
	}
}

// ChanSample is a QueueSampler entry for a plain buffered channel.
func ChanSample[T any](name string, ch chan T) event.ChannelCapacity {
	return event.ChannelCapacity{ChannelName: name, Capacity: cap(ch), Length: len(ch)}
}
