package event

import (
	"nexchat/domain/chat"
	"time"
)

// DomainEvent is what travels from a room to its members and to the permanent sinks.
type DomainEvent interface {
	RoomID() chat.RoomID
}

// MessagePersisted is emitted once a message has been durably stored.
type MessagePersisted struct {
	Message chat.Message
	Lang    string
}

func (m MessagePersisted) RoomID() chat.RoomID {
	return m.Message.Room
}

type Type string

// Event is a technical event, consumed by the telemetry handlers only.
type Event struct {
	Type      Type
	CreatedAt time.Time
	Payload   any
}

func NewEvent(t Type, payload any) Event {
	return Event{Type: t, CreatedAt: time.Now().UTC(), Payload: payload}
}
