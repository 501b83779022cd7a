// Package session runs the control loop of one WebSocket connection:
// join, read frames, post them, push outbound frames, leave exactly once.
package session

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"nexchat/domain/chat"
	"nexchat/errors"
	"nexchat/services"
	"nexchat/sink"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type State int32

const (
	Connecting State = iota
	Open
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "CONNECTING"
	case Open:
		return "OPEN"
	case Closing:
		return "CLOSING"
	case Closed:
		return "CLOSED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

type Config struct {
	WriteWait            time.Duration
	PongWait             time.Duration
	MaxMessageSize       int64
	ConnectionBufferSize int
	// Bounds the enqueue of an error frame for the own client.
	NotifyTimeout time.Duration
}

func (c Config) pingPeriod() time.Duration {
	return (c.PongWait * 9) / 10
}

type Session struct {
	log       *slog.Logger
	conn      *websocket.Conn
	room      chat.RoomID
	service   services.IChatService
	validator *chat.FrameValidator
	config    Config
	sink      *sink.ConnectionSink
	state     atomic.Int32
	leaveOnce sync.Once

	// senderID is only touched by the read loop
	senderID string
}

// New builds a session over an upgraded connection. identity is the already
// verified user (JWT claims or the owner of a direct room), empty when anonymous.
func New(log *slog.Logger, conn *websocket.Conn, room chat.RoomID,
	service services.IChatService, validator *chat.FrameValidator,
	config Config, identity string) *Session {
	id := uuid.NewString()
	return &Session{
		log:       log.With("room", room, "connection_id", id),
		conn:      conn,
		room:      room,
		service:   service,
		validator: validator,
		config:    config,
		sink:      sink.NewConnectionSink(id, config.ConnectionBufferSize),
		senderID:  identity,
	}
}

func (s *Session) ID() string { return s.sink.ID() }

func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(state State) { s.state.Store(int32(state)) }

// Run blocks until the connection is closed by the peer, by the server shutdown (ctx)
// or by a revocation. It always leaves the room before returning.
func (s *Session) Run(ctx context.Context) (err error) {
	if err := s.service.JoinRoom(s.room, s.sink); err != nil {
		s.log.Warn("Registration refused", "error", err)
		s.sink.Revoke(err)
		s.closeWith(websocket.ClosePolicyViolation, errors.CodeOf(err))
		_ = s.conn.Close()
		s.setState(Closed)
		return err
	}
	s.setState(Open)
	s.log.Debug("Session open")

	writerDone := make(chan struct{})
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Session panic", "panic", r)
			err = fmt.Errorf("session %s: %v", s.ID(), r)
		}
		s.setState(Closing)
		s.leave()
		s.sink.Revoke(errors.ErrTransportFatal)
		<-writerDone
		_ = s.conn.Close()
		s.setState(Closed)
		s.log.Debug("Session closed")
	}()

	go func() {
		defer close(writerDone)
		s.writePump(ctx)
	}()

	s.readLoop(ctx)
	return nil
}

func (s *Session) leave() {
	s.leaveOnce.Do(func() {
		s.service.LeaveRoom(s.room, s.sink)
	})
}

func (s *Session) readLoop(ctx context.Context) {
	s.conn.SetReadLimit(s.config.MaxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.config.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.config.PongWait))
	})

	for {
		messageType, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.logReadError(err)
			return
		}
		if messageType != websocket.TextMessage {
			s.notify(ctx, fmt.Errorf("%w: only text frames are accepted", errors.ErrValidation))
			continue
		}
		s.handleFrame(ctx, raw)
	}
}

// handleFrame never closes the session, every failure becomes an error frame.
func (s *Session) handleFrame(ctx context.Context, raw []byte) {
	var frame chat.InboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		s.notify(ctx, fmt.Errorf("%w: malformed JSON: %v", errors.ErrValidation, err))
		return
	}
	if s.senderID != "" && strings.TrimSpace(frame.SenderID) == "" {
		frame.SenderID = s.senderID
	}

	cmd, err := s.validator.Validate(s.room, frame)
	if err != nil {
		s.notify(ctx, err)
		return
	}

	if s.senderID == "" {
		s.senderID = cmd.SenderID
	} else if cmd.SenderID != s.senderID {
		s.notify(ctx, fmt.Errorf("%w: sender_id is bound to this connection", errors.ErrValidation))
		return
	}

	if s.room.IsDirect() {
		counterpart, ok := s.room.Counterpart(cmd.SenderID)
		if !ok {
			s.notify(ctx, fmt.Errorf("%w: sender is not a participant of %s", errors.ErrValidation, s.room))
			return
		}
		cmd.ReceiverID = counterpart
	}

	// Success needs no reply, the sender gets its own message from the broadcast
	if _, err := s.service.PostMessage(ctx, cmd); err != nil {
		s.log.Info("Message not posted", "sender_id", cmd.SenderID, "error", err)
		s.notify(ctx, err)
	}
}

func (s *Session) notify(ctx context.Context, err error) {
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.NotifyTimeout)
	defer cancel()
	if nErr := s.sink.Notify(notifyCtx, chat.ToErrorFrame(err)); nErr != nil {
		s.log.Debug("Error frame dropped", "error", nErr)
	}
}

// writePump owns every write on the socket: frames, pings and the close frame.
func (s *Session) writePump(ctx context.Context) {
	ticker := time.NewTicker(s.config.pingPeriod())
	defer func() {
		ticker.Stop()
		// Unblocks the read loop
		_ = s.conn.Close()
	}()

	for {
		select {
		case frame := <-s.sink.Frames():
			if err := s.write(websocket.TextMessage, frame); err != nil {
				s.fail(err)
				return
			}
		case <-ticker.C:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				s.fail(err)
				return
			}
		case <-s.sink.Done():
			s.flush()
			s.closeWith(closeCode(s.sink.Cause()), closeReason(s.sink.Cause()))
			return
		case <-ctx.Done():
			s.closeWith(websocket.CloseGoingAway, errors.CodeUnavailable)
			return
		}
	}
}

// flush writes what was queued before a local close, best effort.
func (s *Session) flush() {
	for {
		select {
		case frame := <-s.sink.Frames():
			if err := s.write(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *Session) write(messageType int, payload []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(messageType, payload)
}

func (s *Session) fail(err error) {
	if !isExpectedCloseError(err) {
		s.log.Warn("Write failed, closing session", "error", err)
	}
	s.sink.Revoke(fmt.Errorf("%w: %w", errors.ErrTransportFatal, err))
}

func (s *Session) closeWith(code int, reason errors.Code) {
	msg := websocket.FormatCloseMessage(code, string(reason))
	if err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.config.WriteWait)); err != nil && !isExpectedCloseError(err) {
		s.log.Debug("Close frame not sent", "error", err)
	}
}

func (s *Session) logReadError(err error) {
	switch {
	case stderrors.Is(err, websocket.ErrReadLimit):
		s.log.Info("Frame exceeded maximum size", "max_bytes", s.config.MaxMessageSize)
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		s.log.Debug("Peer closed the connection", "error", err)
	case stderrors.Is(err, io.EOF), isExpectedCloseError(err):
		s.log.Debug("Connection closed", "error", err)
	default:
		s.log.Info("Read failed, closing session", "error", err)
	}
}

func closeCode(cause error) int {
	if stderrors.Is(cause, errors.ErrPeerUnreachable) {
		return websocket.CloseTryAgainLater
	}
	return websocket.CloseNormalClosure
}

func closeReason(cause error) errors.Code {
	if cause == nil || stderrors.Is(cause, errors.ErrTransportFatal) {
		return ""
	}
	return errors.CodeOf(cause)
}

func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if stderrors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "broken pipe")
}
