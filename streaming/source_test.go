package streaming

import (
	"context"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/playht/playht-go-sdk/congestion"
	pkgerrors "github.com/playht/playht-go-sdk/pkg/errors"
	"github.com/playht/playht-go-sdk/proto/playhtv1"
)

type ttsHandler func(req *playhtv1.TtsRequest, stream grpc.ServerStream) error

type fakeNode struct {
	calls atomic.Int32
	conn  *grpc.ClientConn
	lis   *bufconn.Listener
}

func newFakeNode(t *testing.T, handler ttsHandler) *fakeNode {
	t.Helper()
	n := &fakeNode{lis: bufconn.Listen(1 << 20)}

	srv := grpc.NewServer(
		grpc.ForceServerCodec(playhtv1.Codec{}),
		grpc.UnknownServiceHandler(func(_ any, stream grpc.ServerStream) error {
			n.calls.Add(1)
			req := &playhtv1.TtsRequest{}
			if err := stream.RecvMsg(req); err != nil {
				return err
			}
			return handler(req, stream)
		}),
	)
	go func() { _ = srv.Serve(n.lis) }()
	t.Cleanup(srv.Stop)

	n.conn = n.dial(t)
	return n
}

func (n *fakeNode) dial(t *testing.T) *grpc.ClientConn {
	t.Helper()
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return n.lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (n *fakeNode) target(name string) Target {
	return Target{Name: name, Conn: n.conn}
}

func sendFrames(stream grpc.ServerStream, frames ...*playhtv1.TtsResponse) error {
	for _, f := range frames {
		if err := stream.SendMsg(f); err != nil {
			return err
		}
	}
	return nil
}

func data(s string) *playhtv1.TtsResponse {
	return &playhtv1.TtsResponse{Data: []byte(s)}
}

func code(c playhtv1.Code, msg ...string) *playhtv1.TtsResponse {
	return &playhtv1.TtsResponse{Status: &playhtv1.Status{Code: c, Message: msg}}
}

func unavailable(*playhtv1.TtsRequest, grpc.ServerStream) error {
	return status.Error(codes.Unavailable, "node down")
}

func request(text string) *playhtv1.TtsRequest {
	return &playhtv1.TtsRequest{
		Params: &playhtv1.TtsParams{Text: []string{text}, Voice: "voice"},
		Lease:  []byte("lease"),
	}
}

func readAll(t *testing.T, r io.Reader) ([]byte, error) {
	t.Helper()
	type result struct {
		b   []byte
		err error
	}
	ch := make(chan result, 1)
	go func() {
		b, err := io.ReadAll(r)
		ch <- result{b, err}
	}()
	select {
	case res := <-ch:
		return res.b, res.err
	case <-time.After(5 * time.Second):
		t.Fatal("read did not finish")
		return nil, nil
	}
}

func TestSource_ForwardsDataUntilComplete(t *testing.T) {
	var got *playhtv1.TtsRequest
	node := newFakeNode(t, func(req *playhtv1.TtsRequest, stream grpc.ServerStream) error {
		got = req
		return sendFrames(stream,
			code(playhtv1.CodeInProgress),
			data("ab"),
			data("cd"),
			code(playhtv1.CodeComplete),
		)
	})

	var firstData, settled atomic.Int32
	src := Open(context.Background(), SourceConfig{
		Request:     request("Hello."),
		Primary:     node.target("primary"),
		OnFirstData: func() { firstData.Add(1) },
		OnSettled:   func() { settled.Add(1) },
	})

	b, err := readAll(t, src)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(b))
	assert.Equal(t, int32(1), firstData.Load())
	assert.Equal(t, int32(1), settled.Load())
	require.NotNil(t, got)
	assert.Equal(t, []string{"Hello."}, got.Params.Text)
	assert.Equal(t, []byte("lease"), got.Lease)
}

func TestSource_ErrorStatus(t *testing.T) {
	node := newFakeNode(t, func(_ *playhtv1.TtsRequest, stream grpc.ServerStream) error {
		return sendFrames(stream, code(playhtv1.CodeError, "voice not found"))
	})

	var settled atomic.Int32
	src := Open(context.Background(), SourceConfig{
		Request:    request("Hi."),
		Primary:    node.target("primary"),
		Congestion: congestion.StaticMar2024,
		OnSettled:  func() { settled.Add(1) },
	})

	_, err := readAll(t, src)
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.ErrProtocol)
	assert.Contains(t, err.Error(), "voice not found")
	assert.Equal(t, int32(1), node.calls.Load())
	assert.Equal(t, int32(1), settled.Load())
}

func TestSource_UnknownStatusCode(t *testing.T) {
	node := newFakeNode(t, func(_ *playhtv1.TtsRequest, stream grpc.ServerStream) error {
		return sendFrames(stream, code(playhtv1.Code(17)))
	})

	src := Open(context.Background(), SourceConfig{Request: request("Hi."), Primary: node.target("primary")})

	_, err := readAll(t, src)
	assert.ErrorIs(t, err, pkgerrors.ErrProtocol)
	assert.Contains(t, err.Error(), "unknown status code 17")
}

// badFrame sends bytes that are not a valid TtsResponse.
type badFrame []byte

func (b badFrame) Marshal() ([]byte, error) { return b, nil }
func (badFrame) Unmarshal([]byte) error     { return nil }

func TestSource_MalformedFrameIsFatal(t *testing.T) {
	node := newFakeNode(t, func(_ *playhtv1.TtsRequest, stream grpc.ServerStream) error {
		// Field 1, length-delimited, claiming more bytes than follow.
		return stream.SendMsg(badFrame{0x0a, 0x7f, 0x01})
	})

	src := Open(context.Background(), SourceConfig{
		Request:    request("Hi."),
		Primary:    node.target("primary"),
		Congestion: congestion.StaticMar2024,
	})

	_, err := readAll(t, src)
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.ErrProtocol)
	assert.ErrorIs(t, err, playhtv1.ErrMalformedFrame)
	assert.Equal(t, int32(1), node.calls.Load())
}

func TestSource_UnknownCodeIsRetried(t *testing.T) {
	node := newFakeNode(t, func(*playhtv1.TtsRequest, grpc.ServerStream) error {
		return status.Error(codes.Unknown, "stream reset")
	})

	src := Open(context.Background(), SourceConfig{
		Request:    request("Hi."),
		Primary:    node.target("primary"),
		Congestion: congestion.StaticMar2024,
	})

	_, err := readAll(t, src)
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.ErrTransport)
	assert.Equal(t, int32(3), node.calls.Load())
}

func TestSource_RetriesThenFallsBackThenFails(t *testing.T) {
	primary := newFakeNode(t, unavailable)
	fallback := newFakeNode(t, unavailable)
	fb := fallback.target("fallback")

	src := Open(context.Background(), SourceConfig{
		Request:    request("Hi."),
		Primary:    primary.target("primary"),
		Fallback:   &fb,
		Congestion: congestion.StaticMar2024,
	})

	_, err := readAll(t, src)
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.ErrTransport)
	assert.Equal(t, int32(3), primary.calls.Load())
	assert.Equal(t, int32(3), fallback.calls.Load())
}

func TestSource_FallbackSucceeds(t *testing.T) {
	primary := newFakeNode(t, unavailable)
	fallback := newFakeNode(t, func(_ *playhtv1.TtsRequest, stream grpc.ServerStream) error {
		return sendFrames(stream, data("audio"), code(playhtv1.CodeComplete))
	})
	fb := fallback.target("fallback")

	src := Open(context.Background(), SourceConfig{
		Request:    request("Hi."),
		Primary:    primary.target("primary"),
		Fallback:   &fb,
		Congestion: congestion.StaticMar2024,
	})

	b, err := readAll(t, src)
	require.NoError(t, err)
	assert.Equal(t, "audio", string(b))
	assert.Equal(t, int32(3), primary.calls.Load())
	assert.Equal(t, int32(1), fallback.calls.Load())
}

func TestSource_OffDoesNotRetry(t *testing.T) {
	primary := newFakeNode(t, unavailable)

	src := Open(context.Background(), SourceConfig{Request: request("Hi."), Primary: primary.target("primary")})

	_, err := readAll(t, src)
	assert.ErrorIs(t, err, pkgerrors.ErrTransport)
	assert.Equal(t, int32(1), primary.calls.Load())
}

func TestSource_NoRetryAfterData(t *testing.T) {
	primary := newFakeNode(t, func(_ *playhtv1.TtsRequest, stream grpc.ServerStream) error {
		if err := sendFrames(stream, data("partial")); err != nil {
			return err
		}
		return status.Error(codes.Unavailable, "connection reset")
	})

	src := Open(context.Background(), SourceConfig{
		Request:    request("Hi."),
		Primary:    primary.target("primary"),
		Congestion: congestion.StaticMar2024,
	})

	b, err := readAll(t, src)
	assert.Equal(t, "partial", string(b))
	assert.ErrorIs(t, err, pkgerrors.ErrTransport)
	assert.Equal(t, int32(1), primary.calls.Load())
}

func TestSource_CancelStopsCall(t *testing.T) {
	serverDone := make(chan struct{})
	primary := newFakeNode(t, func(_ *playhtv1.TtsRequest, stream grpc.ServerStream) error {
		defer close(serverDone)
		<-stream.Context().Done()
		return stream.Context().Err()
	})

	src := Open(context.Background(), SourceConfig{
		Request:    request("Hi."),
		Primary:    primary.target("primary"),
		Congestion: congestion.StaticMar2024,
	})

	assert.Eventually(t, func() bool { return primary.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, src.Close())

	_, err := readAll(t, src)
	assert.ErrorIs(t, err, pkgerrors.ErrCanceled)

	select {
	case <-serverDone:
	case <-time.After(2 * time.Second):
		t.Fatal("server call was not canceled")
	}
	assert.Equal(t, int32(1), primary.calls.Load())
}

func TestConnHandle_ReplacesOnAddressChange(t *testing.T) {
	node := newFakeNode(t, unavailable)

	var dialed []string
	h := NewConnHandle(func(address string) (*grpc.ClientConn, error) {
		dialed = append(dialed, address)
		return node.dial(t), nil
	})

	c1, err := h.Get("a:443")
	require.NoError(t, err)
	c2, err := h.Get("a:443")
	require.NoError(t, err)
	assert.Same(t, c1, c2)

	c3, err := h.Get("b:443")
	require.NoError(t, err)
	assert.NotSame(t, c1, c3)
	assert.Equal(t, []string{"a:443", "b:443"}, dialed)
	assert.Equal(t, "b:443", h.Address())

	require.NoError(t, h.Close())
	_, err = h.Get("b:443")
	assert.ErrorIs(t, err, pkgerrors.ErrCanceled)
}
