package workers

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"nexchat/contract"
	"nexchat/domain/chat"
	"nexchat/domain/event"
	"nexchat/errors"
	"nexchat/infrastructure/storage"
	"nexchat/moderation"
	"time"
)

// RoomJob is a command waiting in a room queue, Reply must be buffered.
type RoomJob struct {
	Cmd        chat.PostMessageCommand
	Reply      chan RoomResult
	AcceptedAt time.Time
}

type RoomResult struct {
	Message chat.Message
	Err     error
}

func NewRoomJob(cmd chat.PostMessageCommand) RoomJob {
	return RoomJob{Cmd: cmd, Reply: make(chan RoomResult, 1), AcceptedAt: time.Now()}
}

// RoomWorker is the single owner of a room write path.
// Jobs are handled one at a time: moderation, persistence then broadcast.
// A job is fully broadcast before the next one is persisted, which keeps
// the broadcast order of a room equal to its persistence order.
type RoomWorker struct {
	log             *slog.Logger
	roomID          chat.RoomID
	jobs            chan RoomJob
	repository      storage.IMessageRepository
	broadcaster     contract.IBroadcaster
	moderator       *moderation.Moderator
	domainEvents    chan event.DomainEvent
	telemetryEvents chan event.Event
	idleTimeout     time.Duration
	retire          func(w *RoomWorker) bool
}

func NewRoomWorker(log *slog.Logger, roomID chat.RoomID, bufferSize int,
	repository storage.IMessageRepository, broadcaster contract.IBroadcaster,
	moderator *moderation.Moderator, domainEvents chan event.DomainEvent,
	telemetryEvents chan event.Event, idleTimeout time.Duration,
	retire func(w *RoomWorker) bool) *RoomWorker {
	return &RoomWorker{
		log:             log.With("room", roomID),
		roomID:          roomID,
		jobs:            make(chan RoomJob, bufferSize),
		repository:      repository,
		broadcaster:     broadcaster,
		moderator:       moderator,
		domainEvents:    domainEvents,
		telemetryEvents: telemetryEvents,
		idleTimeout:     idleTimeout,
		retire:          retire,
	}
}

func (w *RoomWorker) RoomID() chat.RoomID { return w.roomID }

// Pending is the number of queued jobs.
func (w *RoomWorker) Pending() int { return len(w.jobs) }

func (w *RoomWorker) Capacity() int { return cap(w.jobs) }

// Enqueue never blocks, false means the room queue is full.
func (w *RoomWorker) Enqueue(job RoomJob) bool {
	select {
	case w.jobs <- job:
		return true
	default:
		return false
	}
}

func (w *RoomWorker) Run(ctx context.Context) error {
	idle := time.NewTimer(w.idleTimeout)
	defer idle.Stop()

	for {
		if ctx.Err() != nil {
			w.rejectPending()
			w.log.Debug("Stopping room worker")
			return ctx.Err()
		}
		select {
		case <-ctx.Done():
			continue
		case job := <-w.jobs:
			w.handle(ctx, job)
			idle.Reset(w.idleTimeout)
		case <-idle.C:
			if w.retire == nil || w.retire(w) {
				w.log.Debug("Room worker idle, retiring")
				return nil
			}
			idle.Reset(w.idleTimeout)
		}
	}
}

func (w *RoomWorker) handle(ctx context.Context, job RoomJob) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Room job panic", "panic", r)
			job.Reply <- RoomResult{Err: fmt.Errorf("room %s: %v", w.roomID, r)}
		}
	}()

	cmd := job.Cmd
	text := w.moderate(cmd.Text)

	stored, err := w.repository.StoreMessage(storage.DiskMessage{
		Room:        w.roomID,
		Author:      cmd.SenderID,
		AuthorName:  cmd.SenderName,
		Content:     text,
		MessageType: string(cmd.MessageType),
		MediaURL:    cmd.MediaURL,
		ReceiverID:  cmd.ReceiverID,
		Status:      chat.StatusSent,
	})
	if err != nil {
		if !stderrors.Is(err, errors.ErrStorageUnavailable) {
			err = fmt.Errorf("%w: %w", errors.ErrStorageUnavailable, err)
		}
		w.log.Warn("Message not persisted, nothing broadcast", "sender_id", cmd.SenderID, "error", err)
		w.emit(event.NewEvent(event.StorageFailureType, event.StorageFailure{Room: w.roomID, Reason: err.Error()}))
		job.Reply <- RoomResult{Err: err}
		return
	}

	message := storage.ToMessage(stored)
	persisted := event.MessagePersisted{Message: message, Lang: moderation.DetectLanguage(message.Text)}

	report := w.broadcaster.Broadcast(ctx, w.roomID, persisted)
	w.emit(event.NewEvent(event.MessageBroadcastType, event.MessageBroadcast{
		Room:      w.roomID,
		Seq:       message.Seq,
		Delivered: report.Delivered,
		Failed:    report.Failed,
		Latency:   time.Since(job.AcceptedAt),
	}))

	select {
	case w.domainEvents <- persisted:
	default:
		w.log.Debug("Domain event lost", "seq", message.Seq)
	}

	job.Reply <- RoomResult{Message: message}
}

func (w *RoomWorker) moderate(text string) string {
	if w.moderator == nil {
		return text
	}
	censored, words := w.moderator.Censor(text)
	for _, word := range words {
		w.emit(event.NewEvent(event.CensorshipHit, event.Censored{Room: w.roomID, Word: word}))
	}
	return censored
}

// rejectPending answers the jobs that were queued but never started.
func (w *RoomWorker) rejectPending() {
	for {
		select {
		case job := <-w.jobs:
			job.Reply <- RoomResult{Err: errors.ErrShuttingDown}
		default:
			return
		}
	}
}

func (w *RoomWorker) emit(e event.Event) {
	if w.telemetryEvents == nil {
		return
	}
	select {
	case w.telemetryEvents <- e:
	default:
		w.log.Debug("Observability telemetry event lost")
	}
}
