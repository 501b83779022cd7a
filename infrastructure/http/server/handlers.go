package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"nexchat/auth"
	"nexchat/domain/chat"
	"nexchat/errors"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

const maxSendBodySize = 64 << 10

// RoomHistory serves GET /chat/messages/{room_id}?limit=&since=
func (s *ChatServer) RoomHistory(w http.ResponseWriter, r *http.Request) {
	room, err := chat.ParsePublicRoomID(r.PathValue("room_id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.history(w, r, room)
}

// PrivateHistory serves GET /private/messages/{user_id}/{contact_id}?limit=&since=
func (s *ChatServer) PrivateHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	room, err := chat.DirectRoomID(userID, r.PathValue("contact_id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	r, err = s.authorize(r, userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.history(w, r, room)
}

// Conversations serves GET /private/conversations/{user_id}
func (s *ChatServer) Conversations(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.PathValue("user_id"))
	r, err := s.authorize(r, userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	conversations, err := s.chatService.Conversations(r.Context(), userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, conversations)
}

// PrivateSend serves POST /private/send.
// The message takes the same path as a WebSocket frame, so the connected
// participants of the direct room receive it as well.
func (s *ChatServer) PrivateSend(w http.ResponseWriter, r *http.Request) {
	var frame chat.InboundFrame
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSendBodySize)).Decode(&frame); err != nil {
		s.writeError(w, fmt.Errorf("%w: malformed JSON: %v", errors.ErrValidation, err))
		return
	}
	r, err := s.authenticate(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	identity, authenticated := auth.UserIDFrom(r.Context())
	if authenticated && strings.TrimSpace(frame.SenderID) == "" {
		frame.SenderID = identity
	}

	room, err := chat.DirectRoomID(frame.SenderID, frame.ReceiverID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	cmd, err := s.validator.Validate(room, frame)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if authenticated && identity != cmd.SenderID {
		s.writeError(w, fmt.Errorf("%w: token does not belong to %s", errors.ErrUnauthorized, cmd.SenderID))
		return
	}
	cmd.ReceiverID, _ = room.Counterpart(cmd.SenderID)

	message, err := s.chatService.PostMessage(r.Context(), cmd)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, chat.ToOutboundFrame(message))
}

func (s *ChatServer) history(w http.ResponseWriter, r *http.Request, room chat.RoomID) {
	limit, err := s.parseLimit(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var since *uint64
	if raw := r.URL.Query().Get("since"); raw != "" {
		seq, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeError(w, fmt.Errorf("%w: since must be a sequence number", errors.ErrValidation))
			return
		}
		since = &seq
	}

	messages, err := s.chatService.GetMessages(r.Context(), chat.GetMessagesCommand{Room: room, Limit: limit, Since: since})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toFrames(messages))
}

// Rooms serves GET /chat/rooms
func (s *ChatServer) Rooms(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.chatService.Rooms())
}

// Search serves GET /chat/search/{room_id}?q=&limit=
func (s *ChatServer) Search(w http.ResponseWriter, r *http.Request) {
	room, err := chat.ParsePublicRoomID(r.PathValue("room_id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	limit, err := s.parseLimit(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	messages, err := s.chatService.Search(r.Context(), chat.SearchCommand{Room: room, Query: r.URL.Query().Get("q"), Limit: limit})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toFrames(messages))
}

func (s *ChatServer) Health(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *ChatServer) Stats(w http.ResponseWriter, _ *http.Request) {
	if s.stats == nil {
		s.writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	s.writeJSON(w, http.StatusOK, s.stats.GetLatest())
}

// parseLimit applies the default limit when absent and caps the others.
func (s *ChatServer) parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return s.config.HistoryDefaultLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("%w: limit must be a positive integer", errors.ErrValidation)
	}
	if s.config.HistoryMaxLimit > 0 && limit > s.config.HistoryMaxLimit {
		limit = s.config.HistoryMaxLimit
	}
	return limit, nil
}

func toFrames(messages []chat.Message) []chat.OutboundFrame {
	return lo.Map(messages, func(m chat.Message, _ int) chat.OutboundFrame {
		return chat.ToOutboundFrame(m)
	})
}

func (s *ChatServer) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Debug("Response not written", "error", err)
	}
}

func (s *ChatServer) writeError(w http.ResponseWriter, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.Warn("Request failed", "status", status, "error", err)
	}
	s.writeJSON(w, status, chat.ToErrorFrame(err))
}
