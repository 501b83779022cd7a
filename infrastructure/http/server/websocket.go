package server

import (
	"fmt"
	"net/http"
	"nexchat/auth"
	"nexchat/domain/chat"
	"nexchat/errors"
	"nexchat/infrastructure/session"
)

// RoomWebSocket upgrades GET /ws/{room_id}.
func (s *ChatServer) RoomWebSocket(w http.ResponseWriter, r *http.Request) {
	room, err := chat.ParsePublicRoomID(r.PathValue("room_id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	r, err = s.authenticate(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	identity, _ := auth.UserIDFrom(r.Context())
	s.serveSession(w, r, room, identity)
}

// PrivateWebSocket upgrades GET /ws/private/{user_id}/{contact_id}.
// The connection speaks for user_id, a token, when required, must belong to that user.
func (s *ChatServer) PrivateWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, contactID := r.PathValue("user_id"), r.PathValue("contact_id")
	room, err := chat.DirectRoomID(userID, contactID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	r, err = s.authorize(r, userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.serveSession(w, r, room, userID)
}

// authenticate returns r with the token claims in its context.
// r is returned unchanged when authentication is disabled.
func (s *ChatServer) authenticate(r *http.Request) (*http.Request, error) {
	if len(s.config.JWTSecret) == 0 {
		return r, nil
	}
	claims, err := auth.Authenticate(s.config.JWTSecret, r)
	if err != nil {
		return nil, err
	}
	return r.WithContext(auth.WithClaims(r.Context(), claims)), nil
}

// authorize authenticates r and checks that it speaks for userID.
func (s *ChatServer) authorize(r *http.Request, userID string) (*http.Request, error) {
	r, err := s.authenticate(r)
	if err != nil {
		return nil, err
	}
	if identity, ok := auth.UserIDFrom(r.Context()); ok && identity != userID {
		return nil, fmt.Errorf("%w: token does not belong to %s", errors.ErrUnauthorized, userID)
	}
	return r, nil
}

func (s *ChatServer) serveSession(w http.ResponseWriter, r *http.Request, room chat.RoomID, identity string) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader already answered the client
		s.log.Info("WebSocket upgrade failed", "room", room, "error", err)
		return
	}

	s.sessions.Add(1)
	defer s.sessions.Done()

	// The session context carries the claims of the upgrade request
	sess := session.New(s.log, conn, room, s.chatService, s.validator, s.config.Session, identity)
	if err := sess.Run(r.Context()); err != nil {
		s.log.Info("Session ended with error", "room", room, "connection_id", sess.ID(), "error", err)
	}
}
