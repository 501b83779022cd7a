//go:generate go run go.uber.org/mock/mockgen -source=message_repository.go -destination=../../mocks/mock_message_repository.go -package=mocks
package storage

import (
	"fmt"
	"log/slog"
	"nexchat/domain/chat"
	"nexchat/errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const (
	messagePrefix  = "msg:"
	sequencePrefix = "seq:"

	// Number of sequence values leased from badger at once.
	sequenceBandwidth = 100

	// Larger than any 20 digits sequence, used to start reverse scans.
	lastSeqKey = "99999999999999999999"
)

type IMessageRepository interface {
	StoreMessage(message DiskMessage) (DiskMessage, error)
	GetMessages(room chat.RoomID, limit int, since *uint64) ([]DiskMessage, error)
	Rooms() (map[chat.RoomID]int, error)
	Close() error
}

type DiskMessage struct {
	ID          uuid.UUID
	Room        chat.RoomID
	Seq         uint64
	Author      string
	AuthorName  string
	Content     string
	MessageType string
	MediaURL    string
	ReceiverID  string
	Status      string
	At          time.Time
}

type MessageRepository struct {
	db        *badger.DB
	log       *slog.Logger
	mu        sync.Mutex
	sequences map[chat.RoomID]*badger.Sequence
	closed    bool
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) *MessageRepository {
	return &MessageRepository{
		db:        db,
		log:       log,
		sequences: make(map[chat.RoomID]*badger.Sequence),
	}
}

// StoreMessage persists a message in BadgerDB and returns it with its
// identifier, room sequence and server timestamp.
// The key is formatted as "msg:{len(room)}:{room}:{seq_padded}":
//  1. The length prefix keeps a room scan from matching a room sharing the same prefix.
//  2. The 20 digits padded sequence keeps the lexicographical order equal to the write order.
//
// Once started, a write is never abandoned.
func (m *MessageRepository) StoreMessage(message DiskMessage) (DiskMessage, error) {
	seq, err := m.nextSeq(message.Room)
	if err != nil {
		return DiskMessage{}, fmt.Errorf("%w: %w", errors.ErrStorageUnavailable, err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return DiskMessage{}, fmt.Errorf("%w: %w", errors.ErrStorageUnavailable, err)
	}

	message.ID = id
	message.Seq = seq
	message.At = time.Now().UTC().Round(0)

	bytes, err := encodeMessage(message)
	if err != nil {
		return DiskMessage{}, err
	}
	err = m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(message.Room, seq), bytes)
	})
	if err != nil {
		return DiskMessage{}, fmt.Errorf("%w: %w", errors.ErrStorageUnavailable, err)
	}
	return message, nil
}

// GetMessages returns the messages of a room in ascending order.
// The scan runs backward from the most recent message so that a limit keeps
// the latest messages, then the result is reversed.
// A nil since reads from the beginning, otherwise only seq > *since are returned.
func (m *MessageRepository) GetMessages(room chat.RoomID, limit int, since *uint64) ([]DiskMessage, error) {
	var diskMessages []DiskMessage
	prefix := roomPrefix(room)

	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(append(append([]byte{}, prefix...), lastSeqKey...)); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(diskMessages) == limit {
				break
			}
			item := it.Item()
			seq, err := strconv.ParseUint(string(item.Key()[len(prefix):]), 10, 64)
			if err != nil {
				return fmt.Errorf("malformed key %q: %w", item.Key(), err)
			}
			if since != nil && seq <= *since {
				break
			}
			err = item.Value(func(value []byte) error {
				message, err := decodeMessage(value)
				if err != nil {
					return err
				}
				diskMessages = append(diskMessages, message)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrStorageUnavailable, err)
	}

	for i, j := 0, len(diskMessages)-1; i < j; i, j = i+1, j-1 {
		diskMessages[i], diskMessages[j] = diskMessages[j], diskMessages[i]
	}
	return diskMessages, nil
}

// Rooms counts the persisted messages of every room, reading keys only.
func (m *MessageRepository) Rooms() (map[chat.RoomID]int, error) {
	rooms := make(map[chat.RoomID]int)
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		options.Prefix = []byte(messagePrefix)
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			room, ok := parseRoom(string(it.Item().Key()))
			if !ok {
				m.log.Warn("Skipping malformed message key", "key", string(it.Item().Key()))
				continue
			}
			rooms[room]++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrStorageUnavailable, err)
	}
	return rooms, nil
}

// Close releases the leased sequences so that unused values are given back.
// The badger DB itself is owned and closed by the caller.
func (m *MessageRepository) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	var firstErr error
	for room, seq := range m.sequences {
		if err := seq.Release(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.sequences, room)
	}
	return firstErr
}

func (m *MessageRepository) nextSeq(room chat.RoomID) (uint64, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, badger.ErrDBClosed
	}
	seq, ok := m.sequences[room]
	if !ok {
		var err error
		seq, err = m.db.GetSequence([]byte(sequencePrefix+string(room)), sequenceBandwidth)
		if err != nil {
			m.mu.Unlock()
			return 0, err
		}
		m.sequences[room] = seq
	}
	m.mu.Unlock()

	n, err := seq.Next()
	if err != nil {
		return 0, err
	}
	// badger sequences start at 0, rooms start at 1
	return n + 1, nil
}

func roomPrefix(room chat.RoomID) []byte {
	return []byte(fmt.Sprintf("%s%d:%s:", messagePrefix, len(room), room))
}

func messageKey(room chat.RoomID, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", roomPrefix(room), seq))
}

// parseRoom extracts the room from "msg:{len}:{room}:{seq}".
func parseRoom(key string) (chat.RoomID, bool) {
	rest, ok := strings.CutPrefix(key, messagePrefix)
	if !ok {
		return "", false
	}
	length, rest, ok := strings.Cut(rest, ":")
	if !ok {
		return "", false
	}
	n, err := strconv.Atoi(length)
	if err != nil || n <= 0 || len(rest) < n+1 || rest[n] != ':' {
		return "", false
	}
	return chat.RoomID(rest[:n]), true
}
