//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_chat_service.go -package=mocks
package services

import (
	"context"
	"log/slog"
	"nexchat/contract"
	"nexchat/domain/chat"
)

// IChatService is what the transport layers (WebSocket sessions, HTTP handlers) see of the engine.
type IChatService interface {
	PostMessage(ctx context.Context, cmd chat.PostMessageCommand) (chat.Message, error)
	GetMessages(ctx context.Context, cmd chat.GetMessagesCommand) ([]chat.Message, error)
	Search(ctx context.Context, cmd chat.SearchCommand) ([]chat.Message, error)
	Conversations(ctx context.Context, userID string) ([]chat.Conversation, error)
	JoinRoom(roomID chat.RoomID, conn contract.Connection) error
	LeaveRoom(roomID chat.RoomID, conn contract.Connection)
	Rooms() []chat.RoomSummary
}

type ChatService struct {
	log          *slog.Logger
	orchestrator contract.IOrchestrator
}

func NewChatService(log *slog.Logger, o contract.IOrchestrator) *ChatService {
	return &ChatService{log: log, orchestrator: o}
}

func (s *ChatService) PostMessage(ctx context.Context, cmd chat.PostMessageCommand) (chat.Message, error) {
	message, err := s.orchestrator.PostMessage(ctx, cmd)
	if err != nil {
		s.log.Debug("Message rejected", "room", cmd.Room, "sender_id", cmd.SenderID, "error", err)
		return chat.Message{}, err
	}
	return message, nil
}

func (s *ChatService) GetMessages(ctx context.Context, cmd chat.GetMessagesCommand) ([]chat.Message, error) {
	return s.orchestrator.GetMessages(ctx, cmd)
}

func (s *ChatService) Search(ctx context.Context, cmd chat.SearchCommand) ([]chat.Message, error) {
	return s.orchestrator.Search(ctx, cmd)
}

func (s *ChatService) Conversations(ctx context.Context, userID string) ([]chat.Conversation, error) {
	return s.orchestrator.Conversations(ctx, userID)
}

func (s *ChatService) JoinRoom(roomID chat.RoomID, conn contract.Connection) error {
	if err := s.orchestrator.JoinRoom(roomID, conn); err != nil {
		s.log.Warn("Connection refused", "room", roomID, "connection_id", conn.ID(), "error", err)
		return err
	}
	return nil
}

func (s *ChatService) LeaveRoom(roomID chat.RoomID, conn contract.Connection) {
	s.orchestrator.LeaveRoom(roomID, conn)
}

func (s *ChatService) Rooms() []chat.RoomSummary {
	return s.orchestrator.Rooms()
}
