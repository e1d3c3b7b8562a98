package tts

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/playht/playht-go-sdk/lease"
	"github.com/playht/playht-go-sdk/proto/playhtv1"
)

const (
	testUser = "user-1"
	testKey  = "secret-key"
)

// fakeAPI serves the REST surface, the inference nodes of the auth-token
// engines and their websocket endpoint.
type fakeAPI struct {
	srv *httptest.Server

	leaseCalls     atomic.Int32
	authCalls      atomic.Int32
	inferenceCalls atomic.Int32
	polls          atomic.Int32

	// rejectInference is the number of inference calls answered with 401.
	rejectInference atomic.Int32
	// readyAfter is the poll on which a legacy conversion completes.
	readyAfter int32
	// sseError makes the SSE endpoint emit an error event.
	sseError bool

	mu     sync.Mutex
	bodies []synthesisRequest
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{readyAfter: 1}
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+lease.LeasesPath, f.authorized(f.handleLease))
	mux.HandleFunc("POST "+lease.AuthPath, f.authorized(f.handleAuth))
	mux.HandleFunc("POST "+ConvertPath, f.authorized(f.handleConvert))
	mux.HandleFunc("GET "+ArticleStatusPath, f.authorized(f.handleArticleStatus))
	mux.HandleFunc("GET /audio/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "legacy:"+r.PathValue("id"))
	})
	mux.HandleFunc("POST "+TTSPath, f.authorized(f.handleSSE))
	mux.HandleFunc("POST "+TTSStreamPath, f.authorized(f.handleStream))
	mux.HandleFunc("POST /inference", f.handleInference)
	mux.HandleFunc("GET /ws", f.handleWebSocket)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeAPI) authorized(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-User-Id") != testUser || r.Header.Get("Authorization") != "Bearer "+testKey {
			http.Error(w, `{"error_message":"bad credentials"}`, http.StatusUnauthorized)
			return
		}
		h(w, r)
	}
}

func (f *fakeAPI) record(r *http.Request) synthesisRequest {
	var body synthesisRequest
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.mu.Lock()
	f.bodies = append(f.bodies, body)
	f.mu.Unlock()
	return body
}

func (f *fakeAPI) lastBody() synthesisRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.bodies) == 0 {
		return synthesisRequest{}
	}
	return f.bodies[len(f.bodies)-1]
}

func (f *fakeAPI) handleLease(w http.ResponseWriter, _ *http.Request) {
	f.leaseCalls.Add(1)
	_, _ = w.Write(leaseBlob(time.Now(), time.Hour, map[string]any{
		lease.MetaInferenceAddress:        "node.play.ht:11045",
		lease.MetaPremiumInferenceAddress: "premium.play.ht:11045",
	}))
}

func (f *fakeAPI) handleAuth(w http.ResponseWriter, _ *http.Request) {
	f.authCalls.Add(1)
	wsURL := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	entry := map[string]string{"http_streaming_url": f.srv.URL + "/inference", "websocket_url": wsURL}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"expires_at_ms":  time.Now().Add(time.Hour).UnixMilli(),
		string(Play3Mini): entry,
		string(PlayDialog): entry,
	})
}

func (f *fakeAPI) handleConvert(w http.ResponseWriter, r *http.Request) {
	var body convertRequest
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.Voice == "" || len(body.Content) == 0 {
		http.Error(w, `{"error":"missing content"}`, http.StatusBadRequest)
		return
	}
	_ = json.NewEncoder(w).Encode(convertResponse{Status: "CREATED", TranscriptionID: "tr-1"})
}

func (f *fakeAPI) handleArticleStatus(w http.ResponseWriter, r *http.Request) {
	n := f.polls.Add(1)
	id := r.URL.Query().Get("transcriptionId")
	if n < f.readyAfter {
		_ = json.NewEncoder(w).Encode(articleStatusResponse{Message: "Transcription still in progress"})
		return
	}
	_ = json.NewEncoder(w).Encode(articleStatusResponse{
		Converted: true,
		AudioURL:  f.srv.URL + "/audio/" + id,
		Message:   "done",
	})
}

func (f *fakeAPI) handleSSE(w http.ResponseWriter, r *http.Request) {
	f.record(r)
	w.Header().Set("Content-Type", "text/event-stream")
	_, _ = io.WriteString(w, "event: generating\ndata: {\"progress\":0.5}\n\n: keepalive\n\n")
	if f.sseError {
		_, _ = io.WriteString(w, "event: error\ndata: {\"error_message\":\"voice not found\",\"error_id\":\"VOICE_NOT_FOUND\"}\n\n")
		return
	}
	fmt.Fprintf(w, "event: completed\ndata: {\"id\":\"gen-1\",\"url\":\"%s/audio/gen-1\",\"duration\":1.5,\"size\":2048}\n\n",
		f.srv.URL)
}

func (f *fakeAPI) handleStream(w http.ResponseWriter, r *http.Request) {
	body := f.record(r)
	w.Header().Set("Content-Type", r.Header.Get("Accept"))
	_, _ = io.WriteString(w, "["+body.Text+"]")
}

func (f *fakeAPI) handleInference(w http.ResponseWriter, r *http.Request) {
	f.inferenceCalls.Add(1)
	if f.rejectInference.Load() > 0 {
		f.rejectInference.Add(-1)
		http.Error(w, `{"error_message":"token expired"}`, http.StatusUnauthorized)
		return
	}
	body := f.record(r)
	_, _ = io.WriteString(w, "inference:"+body.Text)
}

var upgrader = websocket.Upgrader{}

func (f *fakeAPI) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		var body synthesisRequest
		if err := conn.ReadJSON(&body); err != nil {
			return
		}
		f.mu.Lock()
		f.bodies = append(f.bodies, body)
		f.mu.Unlock()

		id := body.RequestID
		_ = conn.WriteJSON(map[string]string{"type": "start", "request_id": id})
		_ = conn.WriteJSON(map[string]string{"type": "start", "request_id": "someone-else"})
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte("ws:"))
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte(body.Text))
		_ = conn.WriteJSON(map[string]string{"type": "end", "request_id": id})
	}
}

func leaseBlob(created time.Time, d time.Duration, meta map[string]any) []byte {
	blob := make([]byte, 72)
	binary.BigEndian.PutUint32(blob[64:], uint32(created.Unix()-lease.Epoch))
	binary.BigEndian.PutUint32(blob[68:], uint32(d/time.Second))
	b, _ := json.Marshal(meta)
	return append(blob, b...)
}

func newTestClient(t *testing.T, api *fakeAPI, opts ...Option) *Client {
	t.Helper()
	base := []Option{WithBaseURL(api.srv.URL), WithPolling(5*time.Millisecond, 5)}
	c, err := New(testUser, testKey, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// rpcNode is an in-memory inference node for the RPC engine.
type rpcNode struct {
	lis    *bufconn.Listener
	calls  atomic.Int32
	mu     sync.Mutex
	dialed []string
}

func newRPCNode(t *testing.T, handler func(req *playhtv1.TtsRequest, stream grpc.ServerStream) error) *rpcNode {
	t.Helper()
	n := &rpcNode{lis: bufconn.Listen(1 << 20)}
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
	return n
}

func echoRPC(req *playhtv1.TtsRequest, stream grpc.ServerStream) error {
	if err := stream.SendMsg(&playhtv1.TtsResponse{Data: []byte("<" + strings.Join(req.Params.Text, "") + ">")}); err != nil {
		return err
	}
	return stream.SendMsg(&playhtv1.TtsResponse{Status: &playhtv1.Status{Code: playhtv1.CodeComplete}})
}

func (n *rpcNode) dialer(address string) (*grpc.ClientConn, error) {
	n.mu.Lock()
	n.dialed = append(n.dialed, address)
	n.mu.Unlock()
	return grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return n.lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
}

func (n *rpcNode) addresses() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.dialed...)
}

func readAllTimeout(t *testing.T, r io.Reader) ([]byte, error) {
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
		t.Fatal("read timed out")
		return nil, nil
	}
}
