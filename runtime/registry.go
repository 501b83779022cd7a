package runtime

import (
	"fmt"
	"nexchat/contract"
	"nexchat/domain/chat"
	"nexchat/errors"
	"sync"
)

// members is the membership set of one room.
// Its own mutex serializes register/deregister of that room only.
type members struct {
	mu    sync.Mutex
	conns map[string]contract.Connection
	// retired is set when the set became empty and left the registry.
	// A late Register on a retired set must retry on a fresh one.
	retired bool
}

// Registry tracks, per room, the live connections.
// Rooms never contend with each other: the registry lock is only held
// to find, create or drop a room, never while a set is mutated.
type Registry struct {
	mu    sync.RWMutex
	rooms map[chat.RoomID]*members
	// owners maps a connection ID to its room, a connection belongs to one room at most
	owners sync.Map
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[chat.RoomID]*members)}
}

// Register adds a connection to a room, creating the room on the fly.
// Registering twice in the same room is a no-op, registering in another room fails.
func (r *Registry) Register(roomID chat.RoomID, conn contract.Connection) error {
	if owner, loaded := r.owners.LoadOrStore(conn.ID(), roomID); loaded && owner.(chat.RoomID) != roomID {
		return fmt.Errorf("%w: %s is in %s", errors.ErrAlreadyRegistered, conn.ID(), owner)
	}

	for {
		set := r.room(roomID)
		set.mu.Lock()
		if set.retired {
			set.mu.Unlock()
			continue
		}
		set.conns[conn.ID()] = conn
		set.mu.Unlock()
		return nil
	}
}

// Deregister removes a connection from a room. Removing an absent connection is a no-op.
// An emptied room is dropped from the registry.
func (r *Registry) Deregister(roomID chat.RoomID, conn contract.Connection) {
	r.mu.RLock()
	set, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	set.mu.Lock()
	if _, ok := set.conns[conn.ID()]; !ok {
		set.mu.Unlock()
		return
	}
	delete(set.conns, conn.ID())
	r.owners.CompareAndDelete(conn.ID(), roomID)
	empty := len(set.conns) == 0
	if empty {
		set.retired = true
	}
	set.mu.Unlock()

	if empty {
		r.mu.Lock()
		if r.rooms[roomID] == set {
			delete(r.rooms, roomID)
		}
		r.mu.Unlock()
	}
}

// MembersOf returns a point-in-time copy of the room membership.
// The copy is never updated: callers iterating over it are not affected
// by concurrent registrations.
func (r *Registry) MembersOf(roomID chat.RoomID) []contract.Connection {
	r.mu.RLock()
	set, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	set.mu.Lock()
	defer set.mu.Unlock()
	snapshot := make([]contract.Connection, 0, len(set.conns))
	for _, conn := range set.conns {
		snapshot = append(snapshot, conn)
	}
	return snapshot
}

// Rooms returns the active rooms and their number of members.
func (r *Registry) Rooms() map[chat.RoomID]int {
	r.mu.RLock()
	sets := make(map[chat.RoomID]*members, len(r.rooms))
	for id, set := range r.rooms {
		sets[id] = set
	}
	r.mu.RUnlock()

	out := make(map[chat.RoomID]int, len(sets))
	for id, set := range sets {
		set.mu.Lock()
		if n := len(set.conns); n > 0 {
			out[id] = n
		}
		set.mu.Unlock()
	}
	return out
}

// room returns the live set of a room, replacing a retired one.
func (r *Registry) room(roomID chat.RoomID) *members {
	r.mu.RLock()
	set, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if ok && !r.isRetired(set) {
		return set
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok = r.rooms[roomID]
	if !ok || r.isRetired(set) {
		set = &members{conns: make(map[string]contract.Connection)}
		r.rooms[roomID] = set
	}
	return set
}

func (r *Registry) isRetired(set *members) bool {
	set.mu.Lock()
	defer set.mu.Unlock()
	return set.retired
}
