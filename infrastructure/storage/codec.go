//go:generate protoc --go_out=../.. --go_opt=paths=source_relative -I ../.. proto/storage/message.proto
package storage

import (
	"fmt"
	"nexchat/domain/chat"
	pb "nexchat/proto/storage"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"google.golang.org/protobuf/proto"
)

// encodeMessage serializes a record with the protobuf schema of proto/storage,
// so fields can be added without rewriting old records.
func encodeMessage(message DiskMessage) ([]byte, error) {
	bytes, err := proto.Marshal(lo.ToPtr(fromDiskMessage(message)))
	if err != nil {
		return nil, fmt.Errorf("encode message %s: %w", message.ID, err)
	}
	return bytes, nil
}

func decodeMessage(b []byte) (DiskMessage, error) {
	var messagePb pb.Message
	if err := proto.Unmarshal(b, &messagePb); err != nil {
		return DiskMessage{}, err
	}
	return toDiskMessage(&messagePb)
}

func fromDiskMessage(message DiskMessage) pb.Message {
	return pb.Message{
		Id:          message.ID.String(),
		Room:        string(message.Room),
		Seq:         message.Seq,
		Author:      message.Author,
		AuthorName:  message.AuthorName,
		Content:     message.Content,
		At:          message.At.UnixNano(),
		MessageType: message.MessageType,
		MediaUrl:    message.MediaURL,
		ReceiverId:  message.ReceiverID,
		Status:      message.Status,
	}
}

func toDiskMessage(messagePb *pb.Message) (DiskMessage, error) {
	parsedID, err := uuid.Parse(messagePb.GetId())
	if err != nil {
		return DiskMessage{}, fmt.Errorf("invalid message id %q: %w", messagePb.GetId(), err)
	}
	return DiskMessage{
		ID:          parsedID,
		Room:        chat.RoomID(messagePb.GetRoom()),
		Seq:         messagePb.GetSeq(),
		Author:      messagePb.GetAuthor(),
		AuthorName:  messagePb.GetAuthorName(),
		Content:     messagePb.GetContent(),
		At:          time.Unix(0, messagePb.GetAt()).UTC(),
		MessageType: messagePb.GetMessageType(),
		MediaURL:    messagePb.GetMediaUrl(),
		ReceiverID:  messagePb.GetReceiverId(),
		Status:      messagePb.GetStatus(),
	}, nil
}

// DecodeMessage decodes a stored value, for the inspection tools.
func DecodeMessage(value []byte) (DiskMessage, error) {
	return decodeMessage(value)
}

// IsMessageKey tells message keys apart from sequence keys.
func IsMessageKey(key []byte) bool {
	_, ok := parseRoom(string(key))
	return ok
}

// KeyPrefix is the scan prefix of one room, or of every message when room is empty.
func KeyPrefix(room chat.RoomID) []byte {
	if room == "" {
		return []byte(messagePrefix)
	}
	return roomPrefix(room)
}
