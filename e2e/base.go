package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"group-cart/domain"
	"group-cart/domain/event"
	"group-cart/infrastructure/grpc/client"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
)

const waitTimeout = 5 * time.Second

type BaseSuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.GRPCAddr == "" || s.Config.HTTPAddr == "" {
		s.T().Skip("E2E_GRPC_ADDR and E2E_HTTP_ADDR are not set")
	}
}

// Peer is one connected client, whatever its transport.
type Peer interface {
	Send(eventName string, payload any) error
	Recv() (event.Envelope, error)
	Close() error
}

func (s *BaseSuite) header(t *testing.T, name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)
}

// DialGRPC opens an event stream announcing hello.
func (s *BaseSuite) DialGRPC(ctx context.Context, name string, hello domain.Hello) Peer {
	s.header(s.T(), name)
	conn, err := client.Dial(s.Config.GRPCAddr)
	s.Require().NoError(err, "Failed to connect to gRPC server at "+s.Config.GRPCAddr)
	stream, err := client.NewStreamClient(conn).Connect(ctx, hello)
	s.Require().NoError(err)
	return &grpcPeer{stream: stream, close: conn.Close}
}

// DialWebSocket opens /ws announcing hello in the query string.
func (s *BaseSuite) DialWebSocket(name string, hello domain.Hello) Peer {
	s.header(s.T(), name)
	q := url.Values{}
	q.Set("group_id", string(hello.GroupID))
	q.Set("user_id", string(hello.UserID))
	q.Set("name", hello.Name)
	q.Set("avatar", hello.Avatar)
	target := url.URL{Scheme: "ws", Host: s.Config.HTTPAddr, Path: "/ws", RawQuery: q.Encode()}
	conn, resp, err := websocket.DefaultDialer.Dial(target.String(), nil)
	s.Require().NoError(err, "Failed to open WebSocket at "+target.String())
	_ = resp.Body.Close()
	return &wsPeer{conn: conn}
}

// Await reads from p until an envelope named eventName arrives, skipping the others.
func (s *BaseSuite) Await(p Peer, eventName string) event.Envelope {
	got := make(chan event.Envelope, 1)
	failed := make(chan error, 1)
	go func() {
		for {
			env, err := p.Recv()
			if err != nil {
				failed <- err
				return
			}
			if s.Config.DebugJSON {
				s.T().Logf("<- %s %s", env.Event, env.Data)
			}
			if env.Event == eventName {
				got <- env
				return
			}
		}
	}()
	select {
	case env := <-got:
		return env
	case err := <-failed:
		s.FailNow("stream ended while waiting for "+eventName, err.Error())
	case <-time.After(waitTimeout):
		s.FailNow("timed out waiting for " + eventName)
	}
	return event.Envelope{}
}

// GetJSON decodes GET path on the HTTP surface into out.
func (s *BaseSuite) GetJSON(path string, out any) {
	resp, err := http.Get("http://" + s.Config.HTTPAddr + path)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(out))
}

type grpcPeer struct {
	stream *client.Stream
	close  func() error
}

func (p *grpcPeer) Send(eventName string, payload any) error { return p.stream.Send(eventName, payload) }

func (p *grpcPeer) Recv() (event.Envelope, error) { return p.stream.Recv() }

func (p *grpcPeer) Close() error {
	_ = p.stream.CloseSend()
	return p.close()
}

type wsPeer struct {
	conn *websocket.Conn
}

func (p *wsPeer) Send(eventName string, payload any) error {
	frame, err := event.Encode(eventName, payload)
	if err != nil {
		return err
	}
	return p.conn.WriteMessage(websocket.TextMessage, frame)
}

func (p *wsPeer) Recv() (event.Envelope, error) {
	_, frame, err := p.conn.ReadMessage()
	if err != nil {
		return event.Envelope{}, err
	}
	return event.Decode(frame)
}

func (p *wsPeer) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	_ = p.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return p.conn.Close()
}
