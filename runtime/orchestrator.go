// Package runtime handles connection membership, fan-out and the room actors.
// It orchestrates the system without containing business logic or domain rules.
package runtime

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"nexchat/contract"
	"nexchat/domain/chat"
	"nexchat/domain/event"
	"nexchat/errors"
	"nexchat/infrastructure/storage"
	"nexchat/moderation"
	"nexchat/runtime/workers"
	"nexchat/sink"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
)

//go:embed censored/*
var censoredFolder embed.FS

type OrchestratorConfig struct {
	BufferSize          int
	RoomBufferSize      int
	RoomIdleTimeout     time.Duration
	SinkTimeout         time.Duration
	MetricInterval      time.Duration
	EnableModeration    bool
	CharReplacement     rune
	// CensoredDir replaces the embedded dictionaries when set
	CensoredDir         string
	HistoryDefaultLimit int
	HistoryMaxLimit     int
}

type Orchestrator struct {
	mu                sync.Mutex
	log               *slog.Logger
	config            OrchestratorConfig
	rooms             map[chat.RoomID]*workers.RoomWorker
	permanentSinks    []contract.EventSink
	handlers          []event.Handler
	supervisor        contract.ISupervisor
	registry          contract.IRegistry
	broadcaster       contract.IBroadcaster
	messageRepository storage.IMessageRepository
	searchIndex       storage.ISearchIndex
	moderator         *moderation.Moderator
	domainEvents      chan event.DomainEvent
	telemetryEvents   chan event.Event
	ctx               context.Context
	cancel            context.CancelFunc
	done              chan struct{}
	stopped           bool
}

func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor,
	registry contract.IRegistry, broadcaster contract.IBroadcaster,
	messageRepository storage.IMessageRepository, searchIndex storage.ISearchIndex,
	telemetryEvents chan event.Event, config OrchestratorConfig) *Orchestrator {
	return &Orchestrator{
		log:               log,
		config:            config,
		rooms:             make(map[chat.RoomID]*workers.RoomWorker),
		supervisor:        supervisor,
		registry:          registry,
		broadcaster:       broadcaster,
		messageRepository: messageRepository,
		searchIndex:       searchIndex,
		domainEvents:      make(chan event.DomainEvent, config.BufferSize),
		telemetryEvents:   telemetryEvents,
	}
}

// AddSinks registers consumers of every persisted message, must be called before Start.
func (o *Orchestrator) AddSinks(sinks ...contract.EventSink) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.permanentSinks = append(o.permanentSinks, sinks...)
}

// AddHandlers registers telemetry handlers, must be called before Start.
func (o *Orchestrator) AddHandlers(handlers ...event.Handler) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.handlers = append(o.handlers, handlers...)
}

// PostMessage hands the command to the actor of its room and waits for the outcome.
// The actor keeps running under the orchestrator context: once accepted, a message is
// persisted and broadcast even if ctx is canceled while waiting.
func (o *Orchestrator) PostMessage(ctx context.Context, cmd chat.PostMessageCommand) (chat.Message, error) {
	job := workers.NewRoomJob(cmd)

	o.mu.Lock()
	if o.stopped || o.ctx == nil {
		o.mu.Unlock()
		return chat.Message{}, errors.ErrShuttingDown
	}
	w, ok := o.rooms[cmd.Room]
	if !ok {
		w = workers.NewRoomWorker(o.log, cmd.Room, o.config.RoomBufferSize,
			o.messageRepository, o.broadcaster, o.moderator,
			o.domainEvents, o.telemetryEvents, o.config.RoomIdleTimeout, o.retire)
		o.rooms[cmd.Room] = w
		o.supervisor.Start(o.ctx, w)
	}
	accepted := w.Enqueue(job)
	serverCtx := o.ctx
	o.mu.Unlock()

	if !accepted {
		o.log.Warn("Room queue full, rejecting message", "room", cmd.Room, "sender_id", cmd.SenderID)
		return chat.Message{}, fmt.Errorf("%w: room %s", errors.ErrRoomBusy, cmd.Room)
	}

	select {
	case res := <-job.Reply:
		return res.Message, res.Err
	case <-ctx.Done():
		return chat.Message{}, ctx.Err()
	case <-serverCtx.Done():
		return chat.Message{}, errors.ErrShuttingDown
	}
}

// retire is called by an idle room worker. It only succeeds if nothing was
// enqueued in the meantime, the check and the removal share the dispatcher lock.
func (o *Orchestrator) retire(w *workers.RoomWorker) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if w.Pending() > 0 || o.rooms[w.RoomID()] != w {
		return false
	}
	delete(o.rooms, w.RoomID())
	return true
}

func (o *Orchestrator) GetMessages(_ context.Context, cmd chat.GetMessagesCommand) ([]chat.Message, error) {
	messages, err := o.messageRepository.GetMessages(cmd.Room, o.historyLimit(cmd.Limit), cmd.Since)
	if err != nil {
		return nil, err
	}
	return fromDiskMessages(messages), nil
}

func (o *Orchestrator) Search(ctx context.Context, cmd chat.SearchCommand) ([]chat.Message, error) {
	if o.searchIndex == nil {
		return nil, fmt.Errorf("%w: search is disabled", errors.ErrStorageUnavailable)
	}
	messages, err := o.searchIndex.Search(ctx, cmd.Room, cmd.Query, o.historyLimit(cmd.Limit))
	if err != nil {
		return nil, err
	}
	return fromDiskMessages(messages), nil
}

// Conversations lists the direct rooms of userID with their latest message,
// most recent first. Rooms without any stored message are not listed.
func (o *Orchestrator) Conversations(_ context.Context, userID string) ([]chat.Conversation, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || strings.Contains(userID, ":") {
		return nil, fmt.Errorf("%w: invalid user id %q", errors.ErrValidation, userID)
	}
	rooms, err := o.messageRepository.Rooms()
	if err != nil {
		return nil, err
	}

	conversations := make([]chat.Conversation, 0)
	for room, count := range rooms {
		contactID, ok := room.Counterpart(userID)
		if !ok {
			continue
		}
		last, err := o.messageRepository.GetMessages(room, 1, nil)
		if err != nil {
			return nil, err
		}
		if len(last) == 0 {
			continue
		}
		conversations = append(conversations, chat.Conversation{
			ContactID:       contactID,
			Room:            room,
			LastMessage:     last[0].Content,
			LastSenderID:    last[0].Author,
			LastMessageTime: last[0].At,
			MessageCount:    count,
		})
	}
	sort.Slice(conversations, func(i, j int) bool {
		return conversations[i].LastMessageTime.After(conversations[j].LastMessageTime)
	})
	return conversations, nil
}

func (o *Orchestrator) historyLimit(limit int) int {
	if limit <= 0 {
		return o.config.HistoryDefaultLimit
	}
	if o.config.HistoryMaxLimit > 0 && limit > o.config.HistoryMaxLimit {
		return o.config.HistoryMaxLimit
	}
	return limit
}

func fromDiskMessages(messages []storage.DiskMessage) []chat.Message {
	return lo.Map(messages, func(item storage.DiskMessage, _ int) chat.Message {
		return storage.ToMessage(item)
	})
}

func (o *Orchestrator) JoinRoom(roomID chat.RoomID, conn contract.Connection) error {
	if err := o.registry.Register(roomID, conn); err != nil {
		return err
	}
	o.log.Debug("Connection joined", "room", roomID, "connection_id", conn.ID())
	return nil
}

func (o *Orchestrator) LeaveRoom(roomID chat.RoomID, conn contract.Connection) {
	o.registry.Deregister(roomID, conn)
	o.log.Debug("Connection left", "room", roomID, "connection_id", conn.ID())
}

// Rooms lists the default rooms first, then every other public room that has members.
// Direct rooms are never listed.
func (o *Orchestrator) Rooms() []chat.RoomSummary {
	online := o.registry.Rooms()

	summaries := lo.Map(chat.DefaultRooms, func(r chat.RoomSummary, _ int) chat.RoomSummary {
		r.Online = online[r.ID]
		return r
	})

	var active []chat.RoomSummary
	for id, n := range online {
		if id.IsDirect() || lo.ContainsBy(chat.DefaultRooms, func(r chat.RoomSummary) bool { return r.ID == id }) {
			continue
		}
		active = append(active, chat.RoomSummary{ID: id, Name: string(id), Online: n})
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })
	return append(summaries, active...)
}

// Start initiates the orchestrator by preparing all components (moderation, pipeline, telemetry)
// and then starting the supervisor. It uses a preparation pattern to minimize mutex locking time.
func (o *Orchestrator) Start(ctx context.Context) error {
	// 1. Preparation phase (No Lock)
	// Heavy tasks like I/O (loading files) and CPU (Aho-Corasick build) are done here.
	var moderator *moderation.Moderator
	if o.config.EnableModeration {
		m, err := o.prepareModeration(o.config.CharReplacement)
		if err != nil {
			return err
		}
		moderator = m
	}

	// 2. Critical Section (Short Lock)
	o.mu.Lock()
	if o.ctx != nil {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator already started")
	}
	o.moderator = moderator
	o.supervisor.Add(o.preparePipeline()...)
	o.ctx, o.cancel = context.WithCancel(ctx)
	o.done = make(chan struct{})
	supervisedCtx, done := o.ctx, o.done
	o.mu.Unlock()

	// 3. Execution phase (No Lock)
	o.log.Info("Starting orchestrator and all supervised workers")
	go func() {
		defer close(done)
		o.supervisor.Run(supervisedCtx)
	}()
	return nil
}

// prepareModeration loads censored words and builds the Aho-Corasick automaton.
func (o *Orchestrator) prepareModeration(charReplacement rune) (*moderation.Moderator, error) {
	var fsys fs.FS = censoredFolder
	dir := "censored"
	if o.config.CensoredDir != "" {
		fsys, dir = os.DirFS(o.config.CensoredDir), "."
	}
	data, err := NewCensoredLoader(fsys).LoadAll(dir)
	if err != nil {
		return nil, fmt.Errorf("loading censored words: %w", err)
	}

	o.log.Info(fmt.Sprintf("%d censored files loaded [%s]",
		len(data.Languages), strings.Join(data.Languages, ",")))
	for _, lang := range data.Languages {
		o.log.Debug("Censored dictionary", "lang", lang, "entries", data.PerLanguage[lang])
	}
	o.log.Info(fmt.Sprintf("%d unique censored words loaded", len(data.Words)))

	return moderation.NewModerator(data.Words, charReplacement, o.log)
}

// preparePipeline initializes the sinks, the fan-out and the telemetry workers.
func (o *Orchestrator) preparePipeline() []contract.Worker {
	sinks := append([]contract.EventSink(nil), o.permanentSinks...)
	if o.searchIndex != nil {
		sinks = append(sinks, sink.NewSearchSink(o.searchIndex, o.log))
	}

	pipeline := []contract.Worker{
		workers.NewEventFanout(o.log, o.domainEvents, o.config.SinkTimeout).Add(sinks...),
	}
	if o.telemetryEvents != nil {
		pipeline = append(pipeline,
			workers.NewTelemetryWorker(o.log, o.telemetryEvents, o.handlers),
			workers.NewChannelCapacityWorker(o.log, o.sampleQueues, o.telemetryEvents, o.config.MetricInterval),
			workers.NewHeartbeatWorker(o.log, o.config.MetricInterval, o.telemetryEvents),
		)
	}
	return pipeline
}

// sampleQueues reports the shared channels and the busiest room queue.
// Room queues come and go, a single aggregated sample keeps the handler state bounded.
func (o *Orchestrator) sampleQueues() []event.ChannelCapacity {
	samples := []event.ChannelCapacity{
		workers.ChanSample("domain_events", o.domainEvents),
		workers.ChanSample("telemetry_events", o.telemetryEvents),
	}

	busiest := event.ChannelCapacity{ChannelName: "room_queues", Capacity: o.config.RoomBufferSize}
	var busiestRoom chat.RoomID
	o.mu.Lock()
	for id, w := range o.rooms {
		if pending := w.Pending(); pending > busiest.Length {
			busiest.Length, busiest.Capacity = pending, w.Capacity()
			busiestRoom = id
		}
	}
	o.mu.Unlock()
	if busiestRoom != "" {
		o.log.Debug("Busiest room queue", "room", busiestRoom, "pending", busiest.Length)
	}
	return append(samples, busiest)
}

// Stop initiates a graceful shutdown of the orchestrator.
// New messages are refused, queued ones are answered with ErrShuttingDown,
// and Stop returns once every supervised worker is finished.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")

	o.mu.Lock()
	o.stopped = true
	cancel, done := o.cancel, o.done
	o.mu.Unlock()

	o.supervisor.Stop()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	o.log.Debug("Orchestrator stopped")
}
