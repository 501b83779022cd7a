package chat

import (
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	TextMessage  MessageType = "text"
	ImageMessage MessageType = "image"
	FileMessage  MessageType = "file"
)

const StatusSent = "sent"

// Message represents an immutable, persisted chat message.
// ID, Seq and CreatedAt are assigned by the store.
type Message struct {
	ID          uuid.UUID
	Seq         uint64
	Room        RoomID
	SenderID    string
	SenderName  string
	Text        string
	MessageType MessageType
	MediaURL    string
	ReceiverID  string
	Status      string
	CreatedAt   time.Time
}

// Conversation summarizes a direct room from the point of view of one participant.
type Conversation struct {
	ContactID       string    `json:"contact_id"`
	Room            RoomID    `json:"room_id"`
	LastMessage     string    `json:"last_message"`
	LastSenderID    string    `json:"last_sender_id"`
	LastMessageTime time.Time `json:"last_message_time"`
	MessageCount    int       `json:"message_count"`
}
