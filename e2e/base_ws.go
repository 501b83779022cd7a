package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"nexchat/auth"
	"nexchat/domain/chat"
	"nexchat/errors"
	"testing"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"
)

type BaseWsSuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseWsSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.ServerAddr == "" {
		s.T().Skip("SERVER_ADDR is not set, skipping end-to-end scenarios")
	}
}

// Frame is either a message frame or an error frame.
type Frame struct {
	chat.OutboundFrame
	Code    errors.Code `json:"code"`
	Message string      `json:"message"`
}

type Client struct {
	suite *BaseWsSuite
	name  string
	conn  *websocket.Conn
}

func (s *BaseWsSuite) header(t *testing.T, name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)
}

// Dial opens a WebSocket on path, a token is attached for userID when a secret is configured.
func (s *BaseWsSuite) Dial(name, path, userID string) *Client {
	s.header(s.T(), name)

	u := url.URL{Scheme: "ws", Host: s.Config.ServerAddr, Path: path}
	if s.Config.JWTSecret != "" {
		token, err := auth.GenerateToken([]byte(s.Config.JWTSecret), userID, nil, time.Minute)
		s.Require().NoError(err)
		u.RawQuery = url.Values{"token": {token}}.Encode()
	}

	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	s.Require().NoError(err, "Failed to dial "+u.String())
	s.Require().Equal(http.StatusSwitchingProtocols, resp.StatusCode)
	client := &Client{suite: s, name: name, conn: conn}
	s.T().Cleanup(func() { _ = conn.Close() })
	return client
}

func (c *Client) Send(frame chat.InboundFrame) {
	c.suite.Require().NoError(c.conn.WriteJSON(frame))
}

func (c *Client) Read() Frame {
	c.suite.Require().NoError(c.conn.SetReadDeadline(time.Now().Add(5 * time.Second)))
	_, raw, err := c.conn.ReadMessage()
	c.suite.Require().NoError(err, c.name+" did not receive a frame")
	if c.suite.Config.DebugJSON {
		c.suite.T().Logf("%s <- %s", c.name, raw)
	}
	var frame Frame
	c.suite.Require().NoError(json.Unmarshal(raw, &frame))
	return frame
}

// GetJSON decodes the body of a read endpoint.
func (s *BaseWsSuite) GetJSON(path string, out any) {
	s.header(s.T(), "GET "+path)
	resp, err := http.Get("http://" + s.Config.ServerAddr + path)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(out))
}

// Online reads the live member count of room from /chat/rooms, -1 when it cannot be read.
func (s *BaseWsSuite) Online(room chat.RoomID) int {
	resp, err := http.Get("http://" + s.Config.ServerAddr + "/chat/rooms")
	if err != nil {
		return -1
	}
	defer resp.Body.Close()
	var rooms []chat.RoomSummary
	if err := json.NewDecoder(resp.Body).Decode(&rooms); err != nil {
		return -1
	}
	for _, r := range rooms {
		if r.ID == room {
			return r.Online
		}
	}
	return 0
}

// WithHealth provides a gRPC health client within a contextual test step
func (s *BaseWsSuite) WithHealth(name string, fn func(ctx context.Context, client healthpb.HealthClient)) {
	if s.Config.GrpcAddr == "" {
		s.T().Skip("GRPC_ADDR is not set")
	}
	s.header(s.T(), name)
	conn, err := grpc.NewClient(s.Config.GrpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	s.Require().NoError(err, "Failed to connect to gRPC server at "+s.Config.GrpcAddr)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	fn(ctx, healthpb.NewHealthClient(conn))
}

func (s *BaseWsSuite) dumpProto(resp *healthpb.HealthCheckResponse) {
	if !s.Config.DebugJSON {
		return
	}
	marshaler := protojson.MarshalOptions{UseProtoNames: true, EmitUnpopulated: true}
	s.T().Log(marshaler.Format(resp))
}
