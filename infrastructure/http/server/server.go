// Package server exposes the WebSocket endpoints and the HTTP read paths.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"nexchat/domain/chat"
	"nexchat/infrastructure/session"
	"nexchat/observability"
	"nexchat/services"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type Config struct {
	AllowedOrigins      []string
	BufferSize          int
	HistoryDefaultLimit int
	HistoryMaxLimit     int
	MaxContentLength    int
	// Empty means anonymous clients are accepted
	JWTSecret []byte
	Session   session.Config
}

// StatsProvider is whatever can produce the /stats snapshot.
type StatsProvider interface {
	GetLatest() observability.MonitoringStats
}

type ChatServer struct {
	log         *slog.Logger
	chatService services.IChatService
	stats       StatsProvider
	validator   *chat.FrameValidator
	upgrader    websocket.Upgrader
	origins     originPolicy
	config      Config
	sessions    sync.WaitGroup
}

func NewChatServer(log *slog.Logger, chatService services.IChatService,
	stats StatsProvider, config Config) *ChatServer {
	s := &ChatServer{
		log:         log,
		chatService: chatService,
		stats:       stats,
		validator:   chat.NewFrameValidator(config.MaxContentLength),
		origins:     newOriginPolicy(log, config.AllowedOrigins),
		config:      config,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  config.BufferSize,
		WriteBufferSize: config.BufferSize,
		CheckOrigin:     s.origins.check,
	}
	return s
}

// Routes configures an HTTP ServeMux with all application routes.
func (s *ChatServer) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/{room_id}", s.RoomWebSocket)
	mux.HandleFunc("GET /ws/private/{user_id}/{contact_id}", s.PrivateWebSocket)
	mux.HandleFunc("GET /chat/messages/{room_id}", s.RoomHistory)
	mux.HandleFunc("GET /private/messages/{user_id}/{contact_id}", s.PrivateHistory)
	mux.HandleFunc("GET /private/conversations/{user_id}", s.Conversations)
	mux.HandleFunc("POST /private/send", s.PrivateSend)
	mux.HandleFunc("GET /chat/rooms", s.Rooms)
	mux.HandleFunc("GET /chat/search/{room_id}", s.Search)
	mux.HandleFunc("GET /health", s.Health)
	mux.HandleFunc("GET /stats", s.Stats)
	return mux
}

// NewHTTPServer sets reasonable timeout values for production use.
// Every request context derives from ctx, so canceling it also ends the
// hijacked WebSocket connections that Shutdown does not track.
func NewHTTPServer(ctx context.Context, address string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              address,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

// WaitSessions blocks until every WebSocket session has left its room or the timeout expires.
func (s *ChatServer) WaitSessions(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
