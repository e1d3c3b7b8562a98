package playhtv1

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// CodecName is registered as the content-subtype, so requests are sent as
// application/grpc+proto.
const CodecName = "proto"

// Message is implemented by every message in this package.
type Message interface {
	Marshal() ([]byte, error)
	Unmarshal([]byte) error
}

// Codec encodes the messages of this package for gRPC.
type Codec struct{}

var _ encoding.Codec = Codec{}

// Marshal implements encoding.Codec.
func (Codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(Message)
	if !ok {
		return nil, fmt.Errorf("playhtv1: cannot marshal %T", v)
	}
	return m.Marshal()
}

// Unmarshal implements encoding.Codec.
func (Codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(Message)
	if !ok {
		return fmt.Errorf("playhtv1: cannot unmarshal into %T", v)
	}
	return m.Unmarshal(data)
}

// Name implements encoding.Codec.
func (Codec) Name() string {
	return CodecName
}
