package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"nexchat/domain/chat"
	"nexchat/domain/event"
	"nexchat/errors"
	"nexchat/infrastructure/storage"
	"nexchat/mocks"
	"nexchat/runtime/workers"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func testConfig() OrchestratorConfig {
	return OrchestratorConfig{
		BufferSize:          64,
		RoomBufferSize:      64,
		RoomIdleTimeout:     time.Minute,
		SinkTimeout:         time.Second,
		MetricInterval:      time.Second,
		CharReplacement:     '*',
		HistoryDefaultLimit: 50,
		HistoryMaxLimit:     500,
	}
}

type harness struct {
	orchestrator *Orchestrator
	registry     *Registry
}

func newHarness(t *testing.T, config OrchestratorConfig, repository storage.IMessageRepository) harness {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	if repository == nil {
		repository = newBadgerRepository(t)
	}

	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })

	registry := NewRegistry()
	broadcaster := NewBroadcaster(log, registry, time.Second, nil)
	supervisor := workers.NewSupervisor(log, nil, 10*time.Millisecond)
	o := NewOrchestrator(log, supervisor, registry, broadcaster, repository,
		storage.NewSearchIndex(writer, log), nil, config)
	return harness{orchestrator: o, registry: registry}
}

func newBadgerRepository(t *testing.T) *storage.MessageRepository {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	repository := storage.NewMessageRepository(db, logs.GetLoggerFromLevel(slog.LevelDebug))
	t.Cleanup(func() {
		_ = repository.Close()
		_ = db.Close()
	})
	return repository
}

// gatedRepository holds every write until release is closed.
type gatedRepository struct {
	storage.IMessageRepository
	started chan struct{}
	release chan struct{}
}

func newGatedRepository(t *testing.T) *gatedRepository {
	return &gatedRepository{
		IMessageRepository: newBadgerRepository(t),
		started:            make(chan struct{}, 1),
		release:            make(chan struct{}),
	}
}

func (g *gatedRepository) StoreMessage(message storage.DiskMessage) (storage.DiskMessage, error) {
	select {
	case g.started <- struct{}{}:
	default:
	}
	<-g.release
	return g.IMessageRepository.StoreMessage(message)
}

func (h harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.orchestrator.Start(context.Background()))
	t.Cleanup(h.orchestrator.Stop)
}

func post(room chat.RoomID, sender, text string) chat.PostMessageCommand {
	return chat.PostMessageCommand{Room: room, SenderID: sender, SenderName: sender, Text: text, MessageType: chat.TextMessage}
}

func TestOrchestrator_Rejects_Before_Start(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, testConfig(), nil)

	_, err := h.orchestrator.PostMessage(context.Background(), post("general", "u1", "hi"))
	req.ErrorIs(err, errors.ErrShuttingDown)
}

func TestOrchestrator_PostMessage_Persists_Then_Broadcasts(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, testConfig(), nil)
	h.start(t)

	alice, bob := newFakeConn(), newFakeConn()
	req.NoError(h.orchestrator.JoinRoom("general", alice))
	req.NoError(h.orchestrator.JoinRoom("general", bob))

	// When alice posts
	message, err := h.orchestrator.PostMessage(context.Background(), post("general", "alice", "hi"))
	req.NoError(err)

	// Then the message is stored with server assigned fields
	req.Equal(uint64(1), message.Seq)
	req.Equal(chat.RoomID("general"), message.Room)
	req.Equal(chat.StatusSent, message.Status)
	req.False(message.CreatedAt.IsZero())

	// And both members, sender included, have received it before the reply
	req.Equal([]string{"hi"}, alice.texts())
	req.Equal([]string{"hi"}, bob.texts())

	history, err := h.orchestrator.GetMessages(context.Background(), chat.GetMessagesCommand{Room: "general"})
	req.NoError(err)
	req.Equal([]chat.Message{message}, history)
}

func TestOrchestrator_Concurrent_Senders_Keep_Persisted_Order(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, testConfig(), nil)
	h.start(t)

	member := newFakeConn()
	req.NoError(h.orchestrator.JoinRoom("general", member))

	var wg sync.WaitGroup
	for s := 0; s < 4; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				_, err := h.orchestrator.PostMessage(context.Background(), post("general", fmt.Sprintf("u%d", s), fmt.Sprintf("%d-%d", s, i)))
				assert.NoError(t, err)
			}
		}(s)
	}
	wg.Wait()

	history, err := h.orchestrator.GetMessages(context.Background(), chat.GetMessagesCommand{Room: "general", Limit: 100})
	req.NoError(err)
	req.Len(history, 40)

	// Then the member saw exactly the persisted order
	received := lo.Map(member.received(), func(e event.DomainEvent, _ int) uint64 {
		return e.(event.MessagePersisted).Message.Seq
	})
	persistedOrder := lo.Map(history, func(m chat.Message, _ int) uint64 { return m.Seq })
	req.Equal(persistedOrder, received)
	req.IsIncreasing(received)
}

func TestOrchestrator_Moderates_Before_Persisting(t *testing.T) {
	req := require.New(t)
	config := testConfig()
	config.EnableModeration = true
	h := newHarness(t, config, nil)
	h.start(t)

	message, err := h.orchestrator.PostMessage(context.Background(), post("general", "alice", "you idiot"))
	req.NoError(err)
	req.Equal("you *****", message.Text)

	history, err := h.orchestrator.GetMessages(context.Background(), chat.GetMessagesCommand{Room: "general"})
	req.NoError(err)
	req.Equal("you *****", history[0].Text)
}

func TestOrchestrator_Moderation_From_Custom_Dictionaries(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()
	req.NoError(os.WriteFile(filepath.Join(dir, "en.txt"), []byte("rubbish\n"), 0o600))

	// Given dictionaries replacing the embedded ones
	config := testConfig()
	config.EnableModeration = true
	config.CensoredDir = dir
	h := newHarness(t, config, nil)
	h.start(t)

	// Then only the custom words are censored
	message, err := h.orchestrator.PostMessage(context.Background(), post("general", "alice", "what rubbish idiot"))
	req.NoError(err)
	req.Equal("what ******* idiot", message.Text)
}

func TestOrchestrator_Start_Fails_On_Empty_Dictionary_Dir(t *testing.T) {
	req := require.New(t)
	config := testConfig()
	config.EnableModeration = true
	config.CensoredDir = t.TempDir()
	h := newHarness(t, config, nil)

	req.ErrorIs(h.orchestrator.Start(context.Background()), errors.ErrEmptyWords)
}

func TestOrchestrator_Search_Is_Fed_Asynchronously(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, testConfig(), nil)
	h.start(t)

	_, err := h.orchestrator.PostMessage(context.Background(), post("tech", "alice", "the deploy is green"))
	req.NoError(err)

	req.Eventually(func() bool {
		found, err := h.orchestrator.Search(context.Background(), chat.SearchCommand{Room: "tech", Query: "deploy"})
		return err == nil && len(found) == 1 && found[0].Text == "the deploy is green"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestOrchestrator_History_Limits(t *testing.T) {
	req := require.New(t)
	config := testConfig()
	config.HistoryDefaultLimit = 2
	config.HistoryMaxLimit = 3
	h := newHarness(t, config, nil)
	h.start(t)

	for i := 0; i < 5; i++ {
		_, err := h.orchestrator.PostMessage(context.Background(), post("general", "alice", fmt.Sprint(i)))
		req.NoError(err)
	}

	byDefault, err := h.orchestrator.GetMessages(context.Background(), chat.GetMessagesCommand{Room: "general"})
	req.NoError(err)
	req.Equal([]string{"3", "4"}, lo.Map(byDefault, func(m chat.Message, _ int) string { return m.Text }))

	negative, err := h.orchestrator.GetMessages(context.Background(), chat.GetMessagesCommand{Room: "general", Limit: -1})
	req.NoError(err)
	req.Len(negative, 2)

	capped, err := h.orchestrator.GetMessages(context.Background(), chat.GetMessagesCommand{Room: "general", Limit: 100})
	req.NoError(err)
	req.Len(capped, 3)

	since := uint64(3)
	after, err := h.orchestrator.GetMessages(context.Background(), chat.GetMessagesCommand{Room: "general", Since: &since})
	req.NoError(err)
	req.Equal([]string{"3", "4"}, lo.Map(after, func(m chat.Message, _ int) string { return m.Text }))
}

func TestOrchestrator_Rooms(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, testConfig(), nil)

	req.NoError(h.orchestrator.JoinRoom("general", newFakeConn()))
	req.NoError(h.orchestrator.JoinRoom("zeta", newFakeConn()))
	req.NoError(h.orchestrator.JoinRoom("alpha", newFakeConn()))
	req.NoError(h.orchestrator.JoinRoom("dm:u1:u2", newFakeConn()))

	rooms := h.orchestrator.Rooms()

	// Then defaults come first, active public rooms after, direct rooms never
	req.Equal([]chat.RoomID{"general", "tech", "random", "alpha", "zeta"},
		lo.Map(rooms, func(r chat.RoomSummary, _ int) chat.RoomID { return r.ID }))
	req.Equal(1, rooms[0].Online)
	req.Equal(0, rooms[1].Online)
	req.Equal("General", rooms[0].Name)
}

func TestOrchestrator_Room_Busy(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	repository := mocks.NewMockIMessageRepository(ctrl)
	config := testConfig()
	config.RoomBufferSize = 1
	h := newHarness(t, config, repository)
	h.start(t)

	started, release := make(chan struct{}, 1), make(chan struct{})
	repository.EXPECT().StoreMessage(gomock.Any()).DoAndReturn(func(m storage.DiskMessage) (storage.DiskMessage, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		m.Seq = 1
		m.At = time.Now().UTC()
		return m, nil
	}).AnyTimes()

	results := make(chan error, 2)
	go func() {
		_, err := h.orchestrator.PostMessage(context.Background(), post("general", "alice", "first"))
		results <- err
	}()
	<-started

	// Given a room whose worker is busy and whose queue is full
	go func() {
		_, err := h.orchestrator.PostMessage(context.Background(), post("general", "alice", "second"))
		results <- err
	}()
	req.Eventually(func() bool {
		h.orchestrator.mu.Lock()
		defer h.orchestrator.mu.Unlock()
		w, ok := h.orchestrator.rooms["general"]
		return ok && w.Pending() == 1
	}, time.Second, 5*time.Millisecond)

	// Then the next message is refused right away
	_, err := h.orchestrator.PostMessage(context.Background(), post("general", "alice", "third"))
	req.ErrorIs(err, errors.ErrRoomBusy)

	close(release)
	req.NoError(<-results)
	req.NoError(<-results)
}

func TestOrchestrator_Idle_Room_Is_Retired_And_Recreated(t *testing.T) {
	req := require.New(t)
	config := testConfig()
	config.RoomIdleTimeout = 20 * time.Millisecond
	h := newHarness(t, config, nil)
	h.start(t)

	_, err := h.orchestrator.PostMessage(context.Background(), post("general", "alice", "one"))
	req.NoError(err)

	req.Eventually(func() bool {
		h.orchestrator.mu.Lock()
		defer h.orchestrator.mu.Unlock()
		return len(h.orchestrator.rooms) == 0
	}, time.Second, 5*time.Millisecond)

	// Then a new message spawns a fresh worker and the sequence goes on
	message, err := h.orchestrator.PostMessage(context.Background(), post("general", "alice", "two"))
	req.NoError(err)
	req.Equal(uint64(2), message.Seq)
}

func TestOrchestrator_Stop_Refuses_New_Messages(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, testConfig(), nil)
	req.NoError(h.orchestrator.Start(context.Background()))

	_, err := h.orchestrator.PostMessage(context.Background(), post("general", "alice", "before"))
	req.NoError(err)

	h.orchestrator.Stop()

	_, err = h.orchestrator.PostMessage(context.Background(), post("general", "alice", "after"))
	req.ErrorIs(err, errors.ErrShuttingDown)
}

func TestOrchestrator_Accepted_Message_Survives_Caller_Cancellation(t *testing.T) {
	req := require.New(t)
	repository := newGatedRepository(t)
	h := newHarness(t, testConfig(), repository)
	h.start(t)

	alice, bob := newFakeConn(), newFakeConn()
	req.NoError(h.orchestrator.JoinRoom("general", alice))
	req.NoError(h.orchestrator.JoinRoom("general", bob))

	// Given a message accepted by the room and being written
	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		_, err := h.orchestrator.PostMessage(ctx, post("general", "alice", "gone"))
		result <- err
	}()
	select {
	case <-repository.started:
	case <-time.After(2 * time.Second):
		req.Fail("the write never started")
	}

	// When the sender goes away before the outcome
	cancel()
	select {
	case err := <-result:
		req.ErrorIs(err, context.Canceled)
	case <-time.After(2 * time.Second):
		req.Fail("PostMessage did not return on cancellation")
	}
	close(repository.release)

	// Then the message is still stored and delivered to the other member
	req.Eventually(func() bool {
		return lo.Contains(bob.texts(), "gone")
	}, 2*time.Second, 5*time.Millisecond)
	history, err := h.orchestrator.GetMessages(context.Background(), chat.GetMessagesCommand{Room: "general"})
	req.NoError(err)
	req.Len(history, 1)
	req.Equal("gone", history[0].Text)
	req.Equal("alice", history[0].SenderID)
}

func TestOrchestrator_Conversations(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, testConfig(), nil)
	h.start(t)
	ctx := context.Background()

	// Given u1 talking to u2 then to u3, and a public room
	for _, cmd := range []chat.PostMessageCommand{
		post("dm:u1:u2", "u1", "hello u2"),
		post("dm:u1:u2", "u2", "hi u1"),
		post("dm:u1:u3", "u3", "ping"),
		post("general", "u1", "public"),
	} {
		_, err := h.orchestrator.PostMessage(ctx, cmd)
		req.NoError(err)
	}

	// When u1 lists its conversations
	conversations, err := h.orchestrator.Conversations(ctx, "u1")
	req.NoError(err)

	// Then both direct rooms are listed, the most recent first
	req.Len(conversations, 2)
	req.Equal("u3", conversations[0].ContactID)
	req.Equal("ping", conversations[0].LastMessage)
	req.Equal(1, conversations[0].MessageCount)
	req.Equal("u2", conversations[1].ContactID)
	req.Equal(chat.RoomID("dm:u1:u2"), conversations[1].Room)
	req.Equal("hi u1", conversations[1].LastMessage)
	req.Equal("u2", conversations[1].LastSenderID)
	req.Equal(2, conversations[1].MessageCount)

	// And a user without direct rooms gets an empty list
	conversations, err = h.orchestrator.Conversations(ctx, "u9")
	req.NoError(err)
	req.Empty(conversations)

	_, err = h.orchestrator.Conversations(ctx, " ")
	req.ErrorIs(err, errors.ErrValidation)
}
