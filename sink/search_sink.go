package sink

import (
	"context"
	"fmt"
	"log/slog"
	"nexchat/domain/event"
	"nexchat/infrastructure/storage"
)

// SearchSink feeds the full-text index with every persisted message.
type SearchSink struct {
	index storage.ISearchIndex
	log   *slog.Logger
}

func NewSearchSink(index storage.ISearchIndex, log *slog.Logger) SearchSink {
	return SearchSink{index: index, log: log}
}

func (s SearchSink) Name() string { return "search_index" }

func (s SearchSink) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.MessagePersisted:
		return s.index.Index(storage.FromMessage(evt.Message))
	default:
		s.log.Debug(fmt.Sprintf("Not indexed event : %T", evt))
		return nil
	}
}
