package runtime

import (
	"fmt"
	"nexchat/contract"
	"nexchat/domain/chat"
	"nexchat/errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_Register_One_Room_Multiple_Connections(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	conn1, conn2 := newFakeConn(), newFakeConn()

	// Given no room exists
	req.Empty(registry.Rooms())

	// When two connections join a room
	req.NoError(registry.Register("general", conn1))
	req.NoError(registry.Register("general", conn2))

	// Then both are members
	members := registry.MembersOf("general")
	req.Len(members, 2)
	req.ElementsMatch([]contract.Connection{conn1, conn2}, members)
	req.Equal(map[chat.RoomID]int{"general": 2}, registry.Rooms())
}

func TestRegistry_Register_Twice_Is_A_NoOp(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	conn := newFakeConn()

	req.NoError(registry.Register("general", conn))
	req.NoError(registry.Register("general", conn))

	req.Len(registry.MembersOf("general"), 1)
}

func TestRegistry_A_Connection_Belongs_To_One_Room(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	conn := newFakeConn()

	req.NoError(registry.Register("general", conn))

	// When the same connection tries another room
	err := registry.Register("tech", conn)

	// Then it is refused and the first membership is untouched
	req.ErrorIs(err, errors.ErrAlreadyRegistered)
	req.Empty(registry.MembersOf("tech"))
	req.Len(registry.MembersOf("general"), 1)

	// Once it left, it may join elsewhere
	registry.Deregister("general", conn)
	req.NoError(registry.Register("tech", conn))
}

func TestRegistry_Deregister_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	conn1, conn2 := newFakeConn(), newFakeConn()
	req.NoError(registry.Register("general", conn1))
	req.NoError(registry.Register("general", conn2))

	// When deregistering the same connection twice
	registry.Deregister("general", conn1)
	once := registry.MembersOf("general")
	registry.Deregister("general", conn1)
	twice := registry.MembersOf("general")

	// Then the set is the same as after a single call
	req.Equal(once, twice)
	req.Equal([]contract.Connection{conn2}, twice)

	// Removing from an unknown room is also a no-op
	registry.Deregister("unknown", conn1)
}

func TestRegistry_Empty_Room_Is_Garbage_Collected(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	conn := newFakeConn()
	req.NoError(registry.Register("general", conn))

	registry.Deregister("general", conn)

	req.Empty(registry.Rooms())
	req.Empty(registry.MembersOf("general"))

	// The room comes back on the next registration
	req.NoError(registry.Register("general", conn))
	req.Len(registry.MembersOf("general"), 1)
}

func TestRegistry_Snapshot_Is_Isolated(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	conn1, conn2, conn3 := newFakeConn(), newFakeConn(), newFakeConn()
	req.NoError(registry.Register("general", conn1))
	req.NoError(registry.Register("general", conn2))

	// Given a snapshot taken before the membership changes
	snapshot := registry.MembersOf("general")

	// When a connection leaves and another joins
	registry.Deregister("general", conn1)
	req.NoError(registry.Register("general", conn3))

	// Then the snapshot still holds the original members
	req.ElementsMatch([]contract.Connection{conn1, conn2}, snapshot)
	req.ElementsMatch([]contract.Connection{conn2, conn3}, registry.MembersOf("general"))
}

func TestRegistry_Concurrent_Join_And_Leave(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	rooms := []chat.RoomID{"general", "tech", "random"}

	// Given connections repeatedly joining and leaving rooms at the same time
	var wg sync.WaitGroup
	survivors := make([]*fakeConn, 0, 30)
	for i := 0; i < 30; i++ {
		conn := newFakeConn()
		room := rooms[i%len(rooms)]
		if i%2 == 0 {
			survivors = append(survivors, conn)
		}
		wg.Add(1)
		go func(i int, conn *fakeConn, room chat.RoomID) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = registry.Register(room, conn)
				registry.MembersOf(room)
				registry.Deregister(room, conn)
			}
			if i%2 == 0 {
				_ = registry.Register(room, conn)
			}
		}(i, conn, room)
	}
	wg.Wait()

	// Then only the connections that stayed are members, each exactly once
	total := 0
	for _, room := range rooms {
		members := registry.MembersOf(room)
		seen := make(map[string]struct{})
		for _, m := range members {
			_, dup := seen[m.ID()]
			req.False(dup, fmt.Sprintf("duplicate %s in %s", m.ID(), room))
			seen[m.ID()] = struct{}{}
		}
		total += len(members)
	}
	req.Equal(len(survivors), total)
}
