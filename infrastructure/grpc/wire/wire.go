// Package wire describes the gRPC event stream without generated code: each stream message
// is one raw envelope, carried by a codec registered under the "envelope" content-subtype.
package wire

import (
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

const (
	CodecName     = "envelope"
	ServiceName   = "groupcart.v1.EventStream"
	ConnectStream = "Connect"
	ConnectMethod = "/" + ServiceName + "/" + ConnectStream
)

// Hello metadata keys. The -bin keys are binary-safe for names and emoji avatars.
const (
	MetadataGroupID = "group-id"
	MetadataUserID  = "user-id"
	MetadataName    = "name-bin"
	MetadataAvatar  = "avatar-bin"
)

// ConnectDesc is the bidirectional stream shared by server and client.
var ConnectDesc = grpc.StreamDesc{
	StreamName:    ConnectStream,
	ServerStreams: true,
	ClientStreams: true,
}

// Frame is one envelope on the stream.
type Frame struct {
	Data []byte
}

// Codec passes frames through untouched.
type Codec struct{}

func init() {
	encoding.RegisterCodec(Codec{})
}

func (Codec) Marshal(v any) ([]byte, error) {
	frame, ok := v.(*Frame)
	if !ok {
		return nil, fmt.Errorf("envelope codec cannot marshal %T", v)
	}
	return frame.Data, nil
}

func (Codec) Unmarshal(data []byte, v any) error {
	frame, ok := v.(*Frame)
	if !ok {
		return fmt.Errorf("envelope codec cannot unmarshal into %T", v)
	}
	// data belongs to the transport buffer pool.
	frame.Data = append([]byte(nil), data...)
	return nil
}

func (Codec) Name() string { return CodecName }
