package e2e

import (
	"encoding/json"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"

	"chat-router/auth"
)

type BaseWsSuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration before running tests.
// Without a SERVER_ADDR the whole suite is skipped: these tests need a
// running server.
func (s *BaseWsSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.ServerAddr == "" {
		s.T().Skip("SERVER_ADDR not set, skipping end to end suite")
	}
	auth.SetSecret(s.Config.AuthSecret)
}

// Dial opens an authenticated websocket connection for the given user,
// with a colorized header in the logs.
func (s *BaseWsSuite) Dial(t *testing.T, name string, userID int64, userName string) *websocket.Conn {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)

	token, err := auth.GenerateToken(userID, userName, 5*time.Minute)
	s.Require().NoError(err)

	u := url.URL{Scheme: "ws", Host: s.Config.ServerAddr, Path: "/ws",
		RawQuery: "token=" + url.QueryEscape(token)}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	s.Require().NoError(err, "Failed to connect to server at "+s.Config.ServerAddr)
	return conn
}

// Send marshals one action frame onto the wire, logging the full JSON
// body if E2E_DEBUG_JSON is enabled.
func (s *BaseWsSuite) Send(t *testing.T, conn *websocket.Conn, frame map[string]any) {
	data, err := json.Marshal(frame)
	s.Require().NoError(err)
	if s.Config.DebugJSON {
		t.Log("REQUEST:\n" + string(data))
	}
	s.Require().NoError(conn.WriteMessage(websocket.TextMessage, data))
}

// WaitFor reads frames off the connection until one matches the wanted
// event name, failing the test on timeout.
func (s *BaseWsSuite) WaitFor(t *testing.T, conn *websocket.Conn, wanted string, timeout time.Duration) map[string]any {
	deadline := time.Now().Add(timeout)
	for {
		s.Require().NoError(conn.SetReadDeadline(deadline))
		_, data, err := conn.ReadMessage()
		s.Require().NoError(err, "No %q frame within %v", wanted, timeout)

		var frame struct {
			Event   string          `json:"event"`
			Payload json.RawMessage `json:"payload"`
		}
		s.Require().NoError(json.Unmarshal(data, &frame))
		if s.Config.DebugJSON {
			t.Log("RESPONSE:\n" + string(data))
		}
		if frame.Event != wanted {
			continue
		}
		var payload map[string]any
		s.Require().NoError(json.Unmarshal(frame.Payload, &payload))
		return payload
	}
}
