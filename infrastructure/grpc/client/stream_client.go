package client

import (
	"context"
	"group-cart/domain"
	"group-cart/domain/event"
	"group-cart/infrastructure/grpc/wire"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// StreamClient opens event streams on a group-cart server.
type StreamClient struct {
	conn grpc.ClientConnInterface
}

// Dial creates a plaintext client connection to target.
func Dial(target string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	return grpc.NewClient(target, opts...)
}

func NewStreamClient(conn grpc.ClientConnInterface) *StreamClient {
	return &StreamClient{conn: conn}
}

// Connect opens the stream and announces hello. The stream lives as long as ctx.
func (c *StreamClient) Connect(ctx context.Context, hello domain.Hello) (*Stream, error) {
	pairs := make([]string, 0, 8)
	for key, value := range map[string]string{
		wire.MetadataGroupID: string(hello.GroupID),
		wire.MetadataUserID:  string(hello.UserID),
		wire.MetadataName:    hello.Name,
		wire.MetadataAvatar:  hello.Avatar,
	} {
		if value != "" {
			pairs = append(pairs, key, value)
		}
	}
	ctx = metadata.AppendToOutgoingContext(ctx, pairs...)

	stream, err := c.conn.NewStream(ctx, &wire.ConnectDesc, wire.ConnectMethod, grpc.CallContentSubtype(wire.CodecName))
	if err != nil {
		return nil, err
	}
	return &Stream{stream: stream}, nil
}

// Stream sends and receives envelopes. Send and Recv may run in two different goroutines.
type Stream struct {
	stream grpc.ClientStream
}

func (s *Stream) Send(eventName string, payload any) error {
	frame, err := event.Encode(eventName, payload)
	if err != nil {
		return err
	}
	return s.SendFrame(frame)
}

func (s *Stream) SendFrame(frame []byte) error {
	return s.stream.SendMsg(&wire.Frame{Data: frame})
}

// Recv blocks for the next event. It returns io.EOF once the server has ended the stream.
func (s *Stream) Recv() (event.Envelope, error) {
	var frame wire.Frame
	if err := s.stream.RecvMsg(&frame); err != nil {
		return event.Envelope{}, err
	}
	return event.Decode(frame.Data)
}

// CloseSend tells the server the client is leaving.
func (s *Stream) CloseSend() error {
	return s.stream.CloseSend()
}
