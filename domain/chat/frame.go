package chat

import (
	"nexchat/errors"
	"time"
)

const (
	FrameMessage = "message"
	FrameError   = "error"
)

// InboundFrame is the payload a client writes on its WebSocket.
type InboundFrame struct {
	Sender      string `json:"sender" validate:"notblank,max=64"`
	SenderID    string `json:"sender_id" validate:"notblank,max=128"`
	Text        string `json:"text" validate:"notblank"`
	MessageType string `json:"message_type" validate:"omitempty,oneof=text image file"`
	MediaURL    string `json:"media_url" validate:"omitempty,url,max=2048"`
	ReceiverID  string `json:"receiver_id" validate:"omitempty,max=128"`
}

// OutboundFrame is the enriched payload broadcast to the members of a room
// and returned by the history endpoints.
type OutboundFrame struct {
	Type        string      `json:"type"`
	ID          string      `json:"id"`
	Room        RoomID      `json:"room"`
	Seq         uint64      `json:"seq"`
	Sender      string      `json:"sender"`
	SenderID    string      `json:"sender_id"`
	Text        string      `json:"text"`
	MessageType MessageType `json:"message_type"`
	MediaURL    string      `json:"media_url,omitempty"`
	ReceiverID  string      `json:"receiver_id,omitempty"`
	Status      string      `json:"status"`
	Timestamp   string      `json:"timestamp"`
}

// ErrorFrame is only ever sent to the connection whose frame failed.
type ErrorFrame struct {
	Type    string      `json:"type"`
	Code    errors.Code `json:"code"`
	Message string      `json:"message"`
}

func ToOutboundFrame(m Message) OutboundFrame {
	return OutboundFrame{
		Type:        FrameMessage,
		ID:          m.ID.String(),
		Room:        m.Room,
		Seq:         m.Seq,
		Sender:      m.SenderName,
		SenderID:    m.SenderID,
		Text:        m.Text,
		MessageType: m.MessageType,
		MediaURL:    m.MediaURL,
		ReceiverID:  m.ReceiverID,
		Status:      m.Status,
		Timestamp:   m.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func ToErrorFrame(err error) ErrorFrame {
	return ErrorFrame{Type: FrameError, Code: errors.CodeOf(err), Message: err.Error()}
}
