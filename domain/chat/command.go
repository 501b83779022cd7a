package chat

type Command interface {
	RoomID() RoomID
}

type PostMessageCommand struct {
	Room        RoomID
	SenderID    string
	SenderName  string
	Text        string
	MessageType MessageType
	MediaURL    string
	ReceiverID  string
}

func (p PostMessageCommand) RoomID() RoomID {
	return p.Room
}

// GetMessagesCommand reads a room history.
// Limit <= 0 falls back to the default history size, Since is an exclusive sequence watermark.
type GetMessagesCommand struct {
	Room  RoomID
	Limit int
	Since *uint64
}

func (g GetMessagesCommand) RoomID() RoomID {
	return g.Room
}

type SearchCommand struct {
	Room  RoomID
	Query string
	Limit int
}

func (s SearchCommand) RoomID() RoomID {
	return s.Room
}
