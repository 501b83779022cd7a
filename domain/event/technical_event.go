package event

import (
	"nexchat/domain/chat"
	"time"
)

const (
	RestartedAfterPanicType Type = "WORKER_RESTARTED_AFTER_PANIC"
	ChannelCapacityType     Type = "CHANNEL_CAPACITY"
	ProcessTrackerType      Type = "PROCESS_TRACKER"
	ConnectionEvictedType   Type = "CONNECTION_EVICTED"
	StorageFailureType      Type = "STORAGE_FAILURE"
	MessageBroadcastType    Type = "MESSAGE_BROADCAST"
	CensorshipHit           Type = "CENSORSHIP_HIT"
)

type WorkerRestartedAfterPanic struct {
	WorkerName string
}

type ChannelCapacity struct {
	ChannelName string
	Capacity    int
	Length      int
}

type ProcessTracker struct {
	PID    int32
	Status string
	Cpu    float64
	Ram    uint64
}

type ConnectionEvicted struct {
	Room         chat.RoomID
	ConnectionID string
	Reason       string
}

type StorageFailure struct {
	Room   chat.RoomID
	Reason string
}

type MessageBroadcast struct {
	Room      chat.RoomID
	Seq       uint64
	Delivered int
	Failed    int
	Latency   time.Duration
}

type Censored struct {
	Room chat.RoomID
	Word string
}
