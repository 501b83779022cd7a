// Package chat contains the core concepts of the chat system:
// rooms, messages, inbound/outbound frames and the commands
// exchanged between the transport and the runtime.
package chat

import (
	"fmt"
	"nexchat/errors"
	"strings"
	"unicode/utf8"
)

const (
	maxRoomIDLength  = 128
	directRoomPrefix = "dm"
)

// RoomID identifies a room. Rooms have no record of their own,
// they exist as long as somebody is connected or has written to them.
type RoomID string

// ParseRoomID checks a client supplied room identifier.
func ParseRoomID(raw string) (RoomID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: room id is empty", errors.ErrValidation)
	}
	if len(raw) > maxRoomIDLength || !utf8.ValidString(raw) {
		return "", fmt.Errorf("%w: room id is invalid", errors.ErrValidation)
	}
	return RoomID(raw), nil
}

// ParsePublicRoomID checks a room identifier reachable without knowing the
// participants. Direct rooms are only served by the private routes.
func ParsePublicRoomID(raw string) (RoomID, error) {
	room, err := ParseRoomID(raw)
	if err != nil {
		return "", err
	}
	if room.IsDirect() {
		return "", fmt.Errorf("%w: room %q is private", errors.ErrValidation, room)
	}
	return room, nil
}

// DirectRoomID returns the room shared by two users for a 1:1 conversation.
// The order of the arguments does not matter.
func DirectRoomID(userID, contactID string) (RoomID, error) {
	userID, contactID = strings.TrimSpace(userID), strings.TrimSpace(contactID)
	if userID == "" || contactID == "" {
		return "", fmt.Errorf("%w: both participants are required", errors.ErrValidation)
	}
	if strings.Contains(userID, ":") || strings.Contains(contactID, ":") {
		return "", fmt.Errorf("%w: user ids cannot contain ':'", errors.ErrValidation)
	}
	if userID == contactID {
		return "", fmt.Errorf("%w: cannot open a conversation with yourself", errors.ErrValidation)
	}
	if contactID < userID {
		userID, contactID = contactID, userID
	}
	return ParseRoomID(fmt.Sprintf("%s:%s:%s", directRoomPrefix, userID, contactID))
}

// IsDirect reports whether the room is a 1:1 conversation.
func (r RoomID) IsDirect() bool {
	return strings.HasPrefix(string(r), directRoomPrefix+":")
}

// Counterpart returns the other participant of a direct room.
func (r RoomID) Counterpart(userID string) (string, bool) {
	if !r.IsDirect() {
		return "", false
	}
	parts := strings.SplitN(strings.TrimPrefix(string(r), directRoomPrefix+":"), ":", 2)
	if len(parts) != 2 {
		return "", false
	}
	switch userID {
	case parts[0]:
		return parts[1], true
	case parts[1]:
		return parts[0], true
	}
	return "", false
}

// RoomSummary describes a room for the room listing.
type RoomSummary struct {
	ID          RoomID `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Online      int    `json:"online"`
}

// DefaultRooms are always listed, even when nobody is connected.
var DefaultRooms = []RoomSummary{
	{ID: "general", Name: "General", Description: "General discussion"},
	{ID: "tech", Name: "Tech Talk", Description: "Technology discussions"},
	{ID: "random", Name: "Random", Description: "Random conversations"},
}
