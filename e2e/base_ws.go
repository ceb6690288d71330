package e2e

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
)

const readTimeout = 5 * time.Second

type BaseWsSuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseWsSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.RelayAddr == "" {
		s.T().Skip("RELAY_ADDR not set, skipping end-to-end suite")
	}
}

// Step prints a colorized header for a scenario step
func (s *BaseWsSuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// Join opens a websocket on the given room. The connection is closed at the end of the test.
func (s *BaseWsSuite) Join(roomID string) *websocket.Conn {
	target := url.URL{Scheme: "ws", Host: s.Config.RelayAddr, Path: "/ws/" + roomID}
	header := http.Header{}
	if s.Config.Token != "" {
		header.Set("Authorization", "Bearer "+s.Config.Token)
	}

	ws, _, err := websocket.DefaultDialer.Dial(target.String(), header)
	s.Require().NoError(err, "Failed to join "+target.String())
	s.T().Cleanup(func() { _ = ws.Close() })
	return ws
}

func (s *BaseWsSuite) Send(ws *websocket.Conn, frame string) {
	if s.Config.DebugJSON {
		s.T().Logf("SEND %s", frame)
	}
	s.Require().NoError(ws.WriteMessage(websocket.TextMessage, []byte(frame)))
}

// Expect reads the next frame and checks it is JSON equal to want.
func (s *BaseWsSuite) Expect(ws *websocket.Conn, want string) {
	s.Require().NoError(ws.SetReadDeadline(time.Now().Add(readTimeout)))
	_, data, err := ws.ReadMessage()
	s.Require().NoError(err)
	if s.Config.DebugJSON {
		s.T().Logf("RECV %s", data)
	}
	s.Require().JSONEq(want, string(data))
}

// ExpectNothing checks no frame arrives within wait.
func (s *BaseWsSuite) ExpectNothing(ws *websocket.Conn, wait time.Duration) {
	s.Require().NoError(ws.SetReadDeadline(time.Now().Add(wait)))
	_, data, err := ws.ReadMessage()
	s.Require().Error(err, "unexpected frame %s", data)
}
