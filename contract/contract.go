//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"nexchat/domain/chat"
	"nexchat/domain/event"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// Connection is the handle the registry keeps for one live client.
// Revoke must not block: it only asks the owner of the transport to tear it down.
type Connection interface {
	EventSink
	ID() string
	Revoke(cause error)
}

type IRegistry interface {
	Register(roomID chat.RoomID, conn Connection) error
	Deregister(roomID chat.RoomID, conn Connection)
	MembersOf(roomID chat.RoomID) []Connection
	Rooms() map[chat.RoomID]int
}

type BroadcastReport struct {
	Delivered int
	Failed    int
}

type IBroadcaster interface {
	Broadcast(ctx context.Context, roomID chat.RoomID, e event.DomainEvent) BroadcastReport
}

type IOrchestrator interface {
	PostMessage(ctx context.Context, cmd chat.PostMessageCommand) (chat.Message, error)
	GetMessages(ctx context.Context, cmd chat.GetMessagesCommand) ([]chat.Message, error)
	Search(ctx context.Context, cmd chat.SearchCommand) ([]chat.Message, error)
	Conversations(ctx context.Context, userID string) ([]chat.Conversation, error)
	JoinRoom(roomID chat.RoomID, conn Connection) error
	LeaveRoom(roomID chat.RoomID, conn Connection)
	Rooms() []chat.RoomSummary
	AddSinks(sinks ...EventSink)
	Start(ctx context.Context) error
	Stop()
}
