package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"nexchat/contract"
	"nexchat/domain/chat"
	"nexchat/domain/event"
	"nexchat/errors"
	"nexchat/mocks"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func persisted(room chat.RoomID, seq uint64, text string) event.MessagePersisted {
	return event.MessagePersisted{Message: chat.Message{Room: room, Seq: seq, Text: text}}
}

func TestBroadcaster_Delivers_To_Every_Member(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := NewRegistry()
	conn1, conn2 := newFakeConn(), newFakeConn()
	req.NoError(registry.Register("general", conn1))
	req.NoError(registry.Register("general", conn2))
	req.NoError(registry.Register("tech", newFakeConn()))

	broadcaster := NewBroadcaster(log, registry, time.Second, nil)

	report := broadcaster.Broadcast(context.Background(), "general", persisted("general", 1, "hi"))

	req.Equal(contract.BroadcastReport{Delivered: 2}, report)
	req.Equal([]string{"hi"}, conn1.texts())
	req.Equal([]string{"hi"}, conn2.texts())
}

func TestBroadcaster_Empty_Room_Is_A_NoOp(t *testing.T) {
	req := require.New(t)
	broadcaster := NewBroadcaster(logs.GetLoggerFromLevel(slog.LevelDebug), NewRegistry(), time.Second, nil)
	req.Equal(contract.BroadcastReport{}, broadcaster.Broadcast(context.Background(), "nobody", persisted("nobody", 1, "hi")))
}

func TestBroadcaster_Self_Heals_On_Severed_Connection(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := NewRegistry()
	telemetry := make(chan event.Event, 10)

	// Given a member whose transport is already gone
	alive, severed := newFakeConn(), newFakeConn()
	severed.fail = fmt.Errorf("use of closed network connection")
	req.NoError(registry.Register("general", alive))
	req.NoError(registry.Register("general", severed))

	broadcaster := NewBroadcaster(log, registry, time.Second, telemetry)

	// When broadcasting to the room
	report := broadcaster.Broadcast(context.Background(), "general", persisted("general", 1, "hi"))

	// Then the live member still gets the message
	req.Equal(contract.BroadcastReport{Delivered: 1, Failed: 1}, report)
	req.Equal([]string{"hi"}, alive.texts())

	// And the severed one is removed from the registry and revoked
	req.Eventually(func() bool {
		return len(registry.MembersOf("general")) == 1
	}, time.Second, 5*time.Millisecond)
	select {
	case cause := <-severed.revoked:
		req.ErrorIs(cause, errors.ErrPeerUnreachable)
	case <-time.After(time.Second):
		req.Fail("severed connection was not revoked")
	}

	evt := <-telemetry
	req.Equal(event.ConnectionEvictedType, evt.Type)
	req.Equal(severed.ID(), evt.Payload.(event.ConnectionEvicted).ConnectionID)
}

func TestBroadcaster_Slow_Member_Does_Not_Stall_The_Others(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := NewRegistry()

	fast, slow := newFakeConn(), newFakeConn()
	slow.stall = true
	req.NoError(registry.Register("general", fast))
	req.NoError(registry.Register("general", slow))

	broadcaster := NewBroadcaster(log, registry, 50*time.Millisecond, nil)

	start := time.Now()
	report := broadcaster.Broadcast(context.Background(), "general", persisted("general", 1, "hi"))

	// The call is bounded by the delivery timeout, not by the slow member
	req.Less(time.Since(start), time.Second)
	req.Equal(contract.BroadcastReport{Delivered: 1, Failed: 1}, report)
	req.Equal([]string{"hi"}, fast.texts())
	req.Eventually(func() bool {
		return len(registry.MembersOf("general")) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestBroadcaster_Ignores_Sender_Cancellation(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	conn := newFakeConn()
	req.NoError(registry.Register("general", conn))
	broadcaster := NewBroadcaster(logs.GetLoggerFromLevel(slog.LevelDebug), registry, time.Second, nil)

	// Given the originating session is already gone
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := broadcaster.Broadcast(ctx, "general", persisted("general", 1, "still delivered"))

	req.Equal(1, report.Delivered)
	req.Equal([]string{"still delivered"}, conn.texts())
}

func TestBroadcaster_Successive_Calls_Keep_Their_Order(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	members := []*fakeConn{newFakeConn(), newFakeConn(), newFakeConn()}
	for _, m := range members {
		req.NoError(registry.Register("general", m))
	}
	broadcaster := NewBroadcaster(logs.GetLoggerFromLevel(slog.LevelDebug), registry, time.Second, nil)

	var expected []string
	for i := 1; i <= 20; i++ {
		text := fmt.Sprintf("message %d", i)
		expected = append(expected, text)
		broadcaster.Broadcast(context.Background(), "general", persisted("general", uint64(i), text))
	}

	for _, m := range members {
		req.Equal(expected, m.texts())
	}
}

// snapshotMutator changes the membership while it is being delivered to.
type snapshotMutator struct {
	*fakeConn
	onConsume func()
}

func (p snapshotMutator) Consume(ctx context.Context, e event.DomainEvent) error {
	p.onConsume()
	return p.fakeConn.Consume(ctx, e)
}

func TestBroadcaster_Snapshot_Isolation(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	leaving, newcomer := newFakeConn(), newFakeConn()
	mutator := snapshotMutator{fakeConn: newFakeConn()}
	mutator.onConsume = func() {
		registry.Deregister("general", leaving)
		_ = registry.Register("general", newcomer)
	}
	req.NoError(registry.Register("general", mutator))
	req.NoError(registry.Register("general", leaving))

	broadcaster := NewBroadcaster(logs.GetLoggerFromLevel(slog.LevelDebug), registry, time.Second, nil)

	// When the membership changes while the broadcast is in progress
	report := broadcaster.Broadcast(context.Background(), "general", persisted("general", 1, "hi"))

	// Then the snapshot taken at the start is delivered to completion
	req.Equal(2, report.Delivered)
	req.Equal([]string{"hi"}, leaving.texts())
	req.Empty(newcomer.texts())
}

func TestBroadcaster_Evicts_Through_The_Registry(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := mocks.NewMockIRegistry(ctrl)
	conn := mocks.NewMockConnection(ctrl)
	deregistered := make(chan struct{})
	revoked := make(chan struct{})

	conn.EXPECT().ID().Return("c1").AnyTimes()
	registry.EXPECT().MembersOf(chat.RoomID("general")).Return([]contract.Connection{conn}).Times(1)
	conn.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(fmt.Errorf("broken pipe")).Times(1)
	registry.EXPECT().Deregister(chat.RoomID("general"), conn).Do(func(chat.RoomID, contract.Connection) {
		close(deregistered)
	}).Times(1)
	conn.EXPECT().Revoke(gomock.Any()).Do(func(cause error) {
		req.ErrorIs(cause, errors.ErrPeerUnreachable)
		close(revoked)
	}).Times(1)

	broadcaster := NewBroadcaster(logs.GetLoggerFromLevel(slog.LevelDebug), registry, time.Second, nil)
	report := broadcaster.Broadcast(context.Background(), "general", persisted("general", 1, "hi"))
	req.Equal(1, report.Failed)

	<-deregistered
	<-revoked
}
