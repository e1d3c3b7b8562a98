package playhtv1

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// FullMethodTts is the full name of the server-streaming Tts method.
const FullMethodTts = "/playht.v1.Tts/Tts"

// TtsStreamDesc describes the Tts method.
var TtsStreamDesc = grpc.StreamDesc{
	StreamName:    "Tts",
	ServerStreams: true,
}

// Dial creates a client connection to an inference address. The connection
// is established lazily on the first call.
func Dial(target string, useInsecure bool, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	creds := insecure.NewCredentials()
	if !useInsecure {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	all := append([]grpc.DialOption{grpc.WithTransportCredentials(creds)}, opts...)
	return grpc.NewClient(target, all...)
}

// TtsClient calls the Tts method on a connection.
type TtsClient struct {
	cc grpc.ClientConnInterface
}

// NewTtsClient returns a client bound to cc.
func NewTtsClient(cc grpc.ClientConnInterface) *TtsClient {
	return &TtsClient{cc: cc}
}

// TtsStream receives the response frames of one call.
type TtsStream struct {
	grpc.ClientStream
}

// ErrMalformedFrame wraps a response frame that arrived intact but does not
// decode as a TtsResponse.
var ErrMalformedFrame = errors.New("playhtv1: malformed response frame")

// frame holds one undecoded message so decode failures stay distinguishable
// from transport failures.
type frame struct{ b []byte }

func (f *frame) Marshal() ([]byte, error) { return f.b, nil }

func (f *frame) Unmarshal(b []byte) error {
	f.b = append(f.b[:0], b...)
	return nil
}

// Recv reads the next response frame. A frame that fails to decode yields an
// error wrapping ErrMalformedFrame.
func (s *TtsStream) Recv() (*TtsResponse, error) {
	var f frame
	if err := s.RecvMsg(&f); err != nil {
		return nil, err
	}
	m := &TtsResponse{}
	if err := m.Unmarshal(f.b); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	return m, nil
}

// Tts sends req and returns the response stream.
func (c *TtsClient) Tts(ctx context.Context, req *TtsRequest, opts ...grpc.CallOption) (*TtsStream, error) {
	opts = append([]grpc.CallOption{grpc.ForceCodec(Codec{})}, opts...)
	cs, err := c.cc.NewStream(ctx, &TtsStreamDesc, FullMethodTts, opts...)
	if err != nil {
		return nil, err
	}
	if err := cs.SendMsg(req); err != nil {
		return nil, err
	}
	if err := cs.CloseSend(); err != nil {
		return nil, err
	}
	return &TtsStream{ClientStream: cs}, nil
}
