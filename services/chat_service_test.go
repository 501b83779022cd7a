package services

import (
	"context"
	"fmt"
	"log/slog"
	"nexchat/domain/chat"
	"nexchat/errors"
	"nexchat/mocks"
	"testing"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestChatService_PostMessage(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	orchestrator := mocks.NewMockIOrchestrator(ctrl)
	service := NewChatService(log, orchestrator)

	cmd := chat.PostMessageCommand{Room: "general", SenderID: "u1", SenderName: "alice", Text: "hi"}
	stored := chat.Message{ID: uuid.New(), Seq: 1, Room: "general", SenderID: "u1", Text: "hi"}

	tests := []struct {
		description string
		message     chat.Message
		err         error
	}{
		{"Should return the persisted message", stored, nil},
		{"Should propagate a storage failure", chat.Message{}, fmt.Errorf("%w: disk full", errors.ErrStorageUnavailable)},
		{"Should propagate a busy room", chat.Message{}, errors.ErrRoomBusy},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			orchestrator.EXPECT().PostMessage(ctx, cmd).Return(tt.message, tt.err).Times(1)

			message, err := service.PostMessage(ctx, cmd)
			if tt.err != nil {
				req.ErrorIs(err, tt.err)
				req.Equal(chat.Message{}, message)
				return
			}
			req.NoError(err)
			req.Equal(tt.message, message)
		})
	}
}

func TestChatService_JoinRoom_Refused(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	orchestrator := mocks.NewMockIOrchestrator(ctrl)
	conn := mocks.NewMockConnection(ctrl)
	service := NewChatService(log, orchestrator)

	conn.EXPECT().ID().Return("c1").AnyTimes()
	orchestrator.EXPECT().JoinRoom(chat.RoomID("tech"), conn).Return(errors.ErrAlreadyRegistered).Times(1)

	req.ErrorIs(service.JoinRoom("tech", conn), errors.ErrAlreadyRegistered)
}

func TestChatService_Delegates_Reads(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	orchestrator := mocks.NewMockIOrchestrator(ctrl)
	conn := mocks.NewMockConnection(ctrl)
	service := NewChatService(log, orchestrator)

	history := []chat.Message{{Seq: 1, Room: "general"}, {Seq: 2, Room: "general"}}
	orchestrator.EXPECT().GetMessages(ctx, chat.GetMessagesCommand{Room: "general", Limit: 10}).Return(history, nil)
	orchestrator.EXPECT().Search(ctx, chat.SearchCommand{Room: "general", Query: "hello"}).Return(history[:1], nil)
	orchestrator.EXPECT().Rooms().Return(chat.DefaultRooms)
	orchestrator.EXPECT().Conversations(ctx, "u1").Return([]chat.Conversation{{ContactID: "u2", Room: "dm:u1:u2", MessageCount: 2}}, nil)
	orchestrator.EXPECT().LeaveRoom(chat.RoomID("general"), conn)

	messages, err := service.GetMessages(ctx, chat.GetMessagesCommand{Room: "general", Limit: 10})
	req.NoError(err)
	req.Equal(history, messages)

	found, err := service.Search(ctx, chat.SearchCommand{Room: "general", Query: "hello"})
	req.NoError(err)
	req.Len(found, 1)

	req.Equal(chat.DefaultRooms, service.Rooms())

	conversations, err := service.Conversations(ctx, "u1")
	req.NoError(err)
	req.Len(conversations, 1)
	req.Equal("u2", conversations[0].ContactID)

	service.LeaveRoom("general", conn)
}
