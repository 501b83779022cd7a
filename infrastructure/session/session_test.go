package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"nexchat/domain/chat"
	"nexchat/errors"
	"nexchat/mocks"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func testSessionConfig() Config {
	return Config{
		WriteWait:            time.Second,
		PongWait:             5 * time.Second,
		MaxMessageSize:       4096,
		ConnectionBufferSize: 8,
		NotifyTimeout:        time.Second,
	}
}

// serve upgrades every request into a session of room and reports what Run returned.
func serve(t *testing.T, service *mocks.MockIChatService, room chat.RoomID, identity string) (*websocket.Conn, <-chan error) {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	result := make(chan error, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			result <- err
			return
		}
		s := New(log, conn, room, service, chat.NewFrameValidator(100), testSessionConfig(), identity)
		result <- s.Run(r.Context())
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn, result
}

func readErrorFrame(t *testing.T, conn *websocket.Conn) chat.ErrorFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame chat.ErrorFrame
	require.NoError(t, json.Unmarshal(raw, &frame))
	return frame
}

func TestSession_Refused_Registration_Closes_With_Policy_Violation(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	service := mocks.NewMockIChatService(ctrl)
	service.EXPECT().JoinRoom(chat.RoomID("general"), gomock.Any()).Return(errors.ErrAlreadyRegistered)

	conn, result := serve(t, service, "general", "")

	req.NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, _, err := conn.ReadMessage()
	req.True(websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
	req.ErrorIs(<-result, errors.ErrAlreadyRegistered)
}

func TestSession_Binds_Sender_Id_To_First_Frame(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	service := mocks.NewMockIChatService(ctrl)
	service.EXPECT().JoinRoom(chat.RoomID("general"), gomock.Any()).Return(nil)
	service.EXPECT().PostMessage(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, cmd chat.PostMessageCommand) (chat.Message, error) {
			return chat.Message{Room: cmd.Room, SenderID: cmd.SenderID, Text: cmd.Text}, nil
		})
	service.EXPECT().LeaveRoom(chat.RoomID("general"), gomock.Any())

	conn, result := serve(t, service, "general", "")

	// Given a first accepted frame from u1
	req.NoError(conn.WriteJSON(chat.InboundFrame{Sender: "u1", SenderID: "u1", Text: "hi"}))

	// When the same connection claims another identity
	req.NoError(conn.WriteJSON(chat.InboundFrame{Sender: "u2", SenderID: "u2", Text: "hi"}))

	// Then only an error frame comes back, the second post never happens
	frame := readErrorFrame(t, conn)
	req.Equal(chat.FrameError, frame.Type)
	req.Equal(errors.CodeOf(errors.ErrValidation), frame.Code)

	req.NoError(conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	req.NoError(<-result)
}

func TestSession_Direct_Room_Rejects_Outsiders(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	service := mocks.NewMockIChatService(ctrl)
	room, err := chat.DirectRoomID("alice", "bob")
	req.NoError(err)
	service.EXPECT().JoinRoom(room, gomock.Any()).Return(nil)
	service.EXPECT().LeaveRoom(room, gomock.Any())

	conn, result := serve(t, service, room, "")

	// When someone who is not a participant writes into the direct room
	req.NoError(conn.WriteJSON(chat.InboundFrame{Sender: "eve", SenderID: "eve", Text: "hi"}))

	frame := readErrorFrame(t, conn)
	req.Equal(errors.CodeOf(errors.ErrValidation), frame.Code)

	_ = conn.Close()
	req.NoError(<-result)
}

func TestState_String(t *testing.T) {
	req := require.New(t)
	req.Equal("OPEN", Open.String())
	req.Equal("CLOSED", Closed.String())
	req.Equal("State(9)", State(9).String())
}
