package server

import (
	"context"
	"group-cart/domain"
	"group-cart/errors"
	"group-cart/infrastructure/grpc/wire"
	"group-cart/runtime"
	"io"
	"log/slog"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// ConnectionServer runs one client channel until it ends.
type ConnectionServer interface {
	Serve(ctx context.Context, conn runtime.FrameConn, hello domain.Hello) error
}

type EventStreamServer interface {
	Connect(stream grpc.ServerStream) error
}

var eventStreamDesc = grpc.ServiceDesc{
	ServiceName: wire.ServiceName,
	HandlerType: (*EventStreamServer)(nil),
	Streams: []grpc.StreamDesc{{
		StreamName:    wire.ConnectDesc.StreamName,
		Handler:       connectHandler,
		ServerStreams: wire.ConnectDesc.ServerStreams,
		ClientStreams: wire.ConnectDesc.ClientStreams,
	}},
	Metadata: "groupcart/v1/event_stream",
}

func connectHandler(srv any, stream grpc.ServerStream) error {
	return srv.(EventStreamServer).Connect(stream)
}

// RegisterEventStreamServer attaches srv to s.
func RegisterEventStreamServer(s grpc.ServiceRegistrar, srv EventStreamServer) {
	s.RegisterService(&eventStreamDesc, srv)
}

// StreamServer feeds every Connect stream to the gateway, like a WebSocket.
type StreamServer struct {
	log     *slog.Logger
	gateway ConnectionServer
}

func NewStreamServer(log *slog.Logger, gateway ConnectionServer) *StreamServer {
	return &StreamServer{log: log, gateway: gateway}
}

// Connect blocks until the client half-closes, the stream breaks, or the server stops.
func (s *StreamServer) Connect(stream grpc.ServerStream) error {
	hello := HelloFromMetadata(stream.Context())
	conn := newStreamConn(stream)
	if err := s.gateway.Serve(stream.Context(), conn, hello); err != nil {
		s.log.Warn("Event stream ended with error", "user_id", hello.UserID, "error", err)
		return errors.MapToGRPCError(err)
	}
	return nil
}

func HelloFromMetadata(ctx context.Context) domain.Hello {
	md, _ := metadata.FromIncomingContext(ctx)
	first := func(key string) string {
		if values := md.Get(key); len(values) > 0 {
			return values[0]
		}
		return ""
	}
	return domain.Hello{
		GroupID: domain.GroupID(first(wire.MetadataGroupID)),
		UserID:  domain.UserID(first(wire.MetadataUserID)),
		Name:    first(wire.MetadataName),
		Avatar:  first(wire.MetadataAvatar),
	}
}

type received struct {
	frame []byte
	err   error
}

// streamConn adapts a server stream to runtime.FrameConn.
// A server stream cannot be closed from the outside, so reads are pumped
// by a dedicated goroutine and Close only releases the pending reader.
type streamConn struct {
	stream grpc.ServerStream
	frames chan received
	closed chan struct{}
	once   sync.Once
}

func newStreamConn(stream grpc.ServerStream) *streamConn {
	c := &streamConn{
		stream: stream,
		frames: make(chan received),
		closed: make(chan struct{}),
	}
	go c.pump()
	return c
}

func (c *streamConn) pump() {
	for {
		var frame wire.Frame
		err := c.stream.RecvMsg(&frame)
		select {
		case c.frames <- received{frame: frame.Data, err: err}:
		case <-c.closed:
			return
		}
		if err != nil {
			return
		}
	}
}

func (c *streamConn) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case r := <-c.frames:
		if errors.Is(r.err, io.EOF) {
			return nil, io.EOF
		}
		return r.frame, r.err
	case <-c.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WriteFrame honors the ctx deadline even though SendMsg itself has none.
func (c *streamConn) WriteFrame(ctx context.Context, frame []byte) error {
	done := make(chan error, 1)
	go func() {
		done <- c.stream.SendMsg(&wire.Frame{Data: frame})
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *streamConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}
