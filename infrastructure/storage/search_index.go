//go:generate go run go.uber.org/mock/mockgen -source=search_index.go -destination=../../mocks/mock_search_index.go -package=mocks
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"nexchat/domain/chat"
	"nexchat/errors"
	"strings"

	"github.com/blugelabs/bluge"
)

const (
	defaultSearchLimit = 20

	fieldNameRoom    = "room"
	fieldNameText    = "text"
	fieldNameSender  = "sender"
	fieldNamePayload = "payload"
)

type ISearchIndex interface {
	Index(message DiskMessage) error
	Search(ctx context.Context, room chat.RoomID, query string, limit int) ([]DiskMessage, error)
}

// SearchIndex is a full-text index over the persisted messages.
// It is fed asynchronously and may lag behind the message store.
type SearchIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewSearchIndex(writer *bluge.Writer, log *slog.Logger) *SearchIndex {
	return &SearchIndex{writer: writer, log: log}
}

// Index upserts one message, the whole record is kept as a stored payload.
func (s *SearchIndex) Index(message DiskMessage) error {
	payload, err := encodeMessage(message)
	if err != nil {
		return err
	}
	doc := bluge.NewDocument(message.ID.String()).
		AddField(bluge.NewKeywordField(fieldNameRoom, string(message.Room))).
		AddField(bluge.NewTextField(fieldNameText, message.Content)).
		AddField(bluge.NewTextField(fieldNameSender, message.AuthorName)).
		AddField(bluge.NewStoredOnlyField(fieldNamePayload, payload))

	if err := s.writer.Update(doc.ID(), doc); err != nil {
		return fmt.Errorf("index message %s: %w", message.ID, err)
	}
	return nil
}

// Search returns the best matches of a room for the given terms.
func (s *SearchIndex) Search(ctx context.Context, room chat.RoomID, query string, limit int) ([]DiskMessage, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is empty", errors.ErrValidation)
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	reader, err := s.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrStorageUnavailable, err)
	}
	defer reader.Close()

	q := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(string(room)).SetField(fieldNameRoom)).
		AddMust(bluge.NewBooleanQuery().
			AddShould(bluge.NewMatchQuery(query).SetField(fieldNameText)).
			AddShould(bluge.NewMatchQuery(query).SetField(fieldNameSender)))

	it, err := reader.Search(ctx, bluge.NewTopNSearch(limit, q))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrStorageUnavailable, err)
	}

	var results []DiskMessage
	match, err := it.Next()
	for err == nil && match != nil {
		var decodeErr error
		visitErr := match.VisitStoredFields(func(field string, value []byte) bool {
			if field != fieldNamePayload {
				return true
			}
			var m DiskMessage
			if m, decodeErr = decodeMessage(value); decodeErr == nil {
				results = append(results, m)
			}
			return false
		})
		if visitErr != nil {
			return nil, visitErr
		}
		if decodeErr != nil {
			s.log.Warn("Skipping undecodable search hit", "room", room, "error", decodeErr)
		}
		match, err = it.Next()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrStorageUnavailable, err)
	}
	return results, nil
}

// FromMessage converts a domain message back to its stored form.
func FromMessage(m chat.Message) DiskMessage {
	return DiskMessage{
		ID:          m.ID,
		Room:        m.Room,
		Seq:         m.Seq,
		Author:      m.SenderID,
		AuthorName:  m.SenderName,
		Content:     m.Text,
		MessageType: string(m.MessageType),
		MediaURL:    m.MediaURL,
		ReceiverID:  m.ReceiverID,
		Status:      m.Status,
		At:          m.CreatedAt,
	}
}

// ToMessage converts a stored message to the domain.
func ToMessage(d DiskMessage) chat.Message {
	return chat.Message{
		ID:          d.ID,
		Seq:         d.Seq,
		Room:        d.Room,
		SenderID:    d.Author,
		SenderName:  d.AuthorName,
		Text:        d.Content,
		MessageType: chat.MessageType(d.MessageType),
		MediaURL:    d.MediaURL,
		ReceiverID:  d.ReceiverID,
		Status:      d.Status,
		CreatedAt:   d.At,
	}
}
