package server

import (
	"context"
	"encoding/json"
	"group-cart/domain"
	"group-cart/errors"
	"group-cart/infrastructure/grpc/client"
	"group-cart/runtime"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type textPayload struct {
	Text string `json:"text" validate:"required"`
}

// greetingHooks binds new connections and greets them with their own hello.
type greetingHooks struct {
	registry     *runtime.Registry
	broadcaster  *runtime.Broadcaster
	disconnected chan domain.Session
}

func (h *greetingHooks) OnConnect(ctx context.Context, connID domain.ConnectionID, hello domain.Hello) {
	h.registry.Bind(connID, hello.GroupID, hello.UserID)
	h.broadcaster.SendTo(ctx, connID, "welcome", hello)
}

func (h *greetingHooks) OnDisconnect(_ context.Context, session domain.Session) {
	h.disconnected <- session
}

type failingGateway struct{ err error }

func (g failingGateway) Serve(context.Context, runtime.FrameConn, domain.Hello) error {
	return g.err
}

func newEventGateway(t *testing.T) (*runtime.Gateway, *greetingHooks) {
	t.Helper()
	registry := runtime.NewRegistry()
	broadcaster := runtime.NewBroadcaster(slog.Default(), registry, nil)
	router := runtime.NewRouter(slog.Default(), registry, broadcaster, nil, 0, 0)
	runtime.Handle(router, "shout", func(ctx context.Context, req runtime.Request, p textPayload) error {
		broadcaster.BroadcastToGroup(ctx, req.Session.GroupID, "shouted", p)
		return nil
	})
	hooks := &greetingHooks{registry: registry, broadcaster: broadcaster, disconnected: make(chan domain.Session, 4)}
	return runtime.NewGateway(slog.Default(), registry, router, hooks, nil, 16, time.Second), hooks
}

func startServer(t *testing.T, gateway ConnectionServer) *client.StreamClient {
	t.Helper()
	listener := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterEventStreamServer(srv, NewStreamServer(slog.Default(), gateway))
	go func() { _ = srv.Serve(listener) }()
	t.Cleanup(srv.Stop)

	conn, err := client.Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return client.NewStreamClient(conn)
}

func TestStreamServer_Carries_Hello_And_Events(t *testing.T) {
	req := require.New(t)
	gateway, _ := newEventGateway(t)
	streams := startServer(t, gateway)
	hello := domain.Hello{GroupID: "family", UserID: "u1", Name: "Zoé", Avatar: "🦊"}

	// Given two members of the same group
	ana, err := streams.Connect(t.Context(), hello)
	req.NoError(err)
	bob, err := streams.Connect(t.Context(), domain.Hello{GroupID: "family", UserID: "u2"})
	req.NoError(err)

	// Then the hello travels through metadata untouched
	welcome, err := ana.Recv()
	req.NoError(err)
	req.Equal("welcome", welcome.Event)
	var got domain.Hello
	req.NoError(json.Unmarshal(welcome.Data, &got))
	req.Equal(hello, got)
	_, err = bob.Recv()
	req.NoError(err)

	// When one of them sends an event
	req.NoError(ana.Send("shout", textPayload{Text: "dinner"}))

	// Then both receive the broadcast
	for _, s := range []*client.Stream{ana, bob} {
		env, err := s.Recv()
		req.NoError(err)
		req.Equal("shouted", env.Event)
		req.JSONEq(`{"text":"dinner"}`, string(env.Data))
	}
}

func TestStreamServer_Rejected_Event_Comes_Back_As_Error_Event(t *testing.T) {
	req := require.New(t)
	gateway, _ := newEventGateway(t)
	stream, err := startServer(t, gateway).Connect(t.Context(), domain.Hello{GroupID: "g1", UserID: "u1"})
	req.NoError(err)
	_, err = stream.Recv()
	req.NoError(err)

	req.NoError(stream.SendFrame([]byte(`{"event":"shout","data":{}}`)))

	env, err := stream.Recv()
	req.NoError(err)
	req.Equal("error", env.Event)
	req.Contains(string(env.Data), errors.CodeValidation)
}

func TestStreamServer_Half_Close_Ends_The_Session(t *testing.T) {
	req := require.New(t)
	gateway, hooks := newEventGateway(t)
	stream, err := startServer(t, gateway).Connect(t.Context(), domain.Hello{GroupID: "g1", UserID: "u1"})
	req.NoError(err)
	_, err = stream.Recv()
	req.NoError(err)

	// When the client says goodbye
	req.NoError(stream.CloseSend())

	// Then the server ends the stream cleanly and runs the disconnect hook
	_, err = stream.Recv()
	req.ErrorIs(err, io.EOF)
	select {
	case session := <-hooks.disconnected:
		req.Equal(domain.UserID("u1"), session.UserID)
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect hook not called")
	}
}

func TestStreamServer_Maps_Gateway_Errors_To_Status(t *testing.T) {
	req := require.New(t)
	streams := startServer(t, failingGateway{err: errors.Validation("unknown group")})

	stream, err := streams.Connect(t.Context(), domain.Hello{})
	req.NoError(err)
	_, err = stream.Recv()

	req.Equal(codes.InvalidArgument, status.Code(err))
}

func TestHelloFromMetadata_Without_Metadata(t *testing.T) {
	require.Equal(t, domain.Hello{}, HelloFromMetadata(t.Context()))
}
