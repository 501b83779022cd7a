package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"nexchat/domain/chat"
	"nexchat/domain/event"
	"nexchat/errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func persisted(room chat.RoomID, seq uint64, text string) event.MessagePersisted {
	return event.MessagePersisted{Message: chat.Message{
		ID:          uuid.New(),
		Seq:         seq,
		Room:        room,
		SenderID:    "u1",
		SenderName:  "alice",
		Text:        text,
		MessageType: chat.TextMessage,
		Status:      chat.StatusSent,
		CreatedAt:   time.Date(2025, 1, 2, 3, 4, 5, 6, time.UTC),
	}}
}

func TestConnectionSink_Consume_Encodes_Message_Frame(t *testing.T) {
	req := require.New(t)
	s := NewConnectionSink("c1", 4)

	// When a persisted message is delivered
	evt := persisted("general", 7, "hi")
	req.NoError(s.Consume(context.Background(), evt))

	// Then one JSON message frame is queued
	var frame chat.OutboundFrame
	req.NoError(json.Unmarshal(<-s.Frames(), &frame))
	req.Equal(chat.FrameMessage, frame.Type)
	req.Equal(evt.Message.ID.String(), frame.ID)
	req.Equal(chat.RoomID("general"), frame.Room)
	req.Equal(uint64(7), frame.Seq)
	req.Equal("alice", frame.Sender)
	req.Equal("hi", frame.Text)
	req.Equal("sent", frame.Status)
	req.Equal("2025-01-02T03:04:05.000000006Z", frame.Timestamp)
}

func TestConnectionSink_Full_Buffer_Times_Out(t *testing.T) {
	req := require.New(t)
	s := NewConnectionSink("c1", 1)
	req.NoError(s.Consume(context.Background(), persisted("general", 1, "first")))

	// Given nobody drains the queue
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// Then the delivery fails as unreachable
	err := s.Consume(ctx, persisted("general", 2, "second"))
	req.ErrorIs(err, errors.ErrPeerUnreachable)
	req.ErrorIs(err, context.DeadlineExceeded)
}

func TestConnectionSink_Revoke(t *testing.T) {
	req := require.New(t)
	s := NewConnectionSink("c1", 4)

	first := fmt.Errorf("first")
	s.Revoke(first)
	s.Revoke(fmt.Errorf("second"))

	// Then the first cause wins and nothing is accepted anymore
	req.Equal(first, s.Cause())
	<-s.Done()
	req.ErrorIs(s.Consume(context.Background(), persisted("general", 1, "hi")), errors.ErrPeerUnreachable)
	req.ErrorIs(s.Notify(context.Background(), chat.ToErrorFrame(errors.ErrRoomBusy)), errors.ErrPeerUnreachable)
	req.Len(s.Frames(), 0)
}

func TestConnectionSink_Notify_Error_Frame(t *testing.T) {
	req := require.New(t)
	s := NewConnectionSink("c1", 4)

	req.NoError(s.Notify(context.Background(), chat.ToErrorFrame(fmt.Errorf("%w: text is blank", errors.ErrValidation))))

	var frame chat.ErrorFrame
	req.NoError(json.Unmarshal(<-s.Frames(), &frame))
	req.Equal(chat.FrameError, frame.Type)
	req.Equal(errors.CodeValidation, frame.Code)
}
