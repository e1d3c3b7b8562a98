package tts

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/playht/playht-go-sdk/internal/wsconn"
	"github.com/playht/playht-go-sdk/lease"
	"github.com/playht/playht-go-sdk/logger"
	pkgerrors "github.com/playht/playht-go-sdk/pkg/errors"
	"github.com/playht/playht-go-sdk/pkg/httputil"
)

func protocolOf(opts Options) Protocol {
	switch o := opts.(type) {
	case *Play3Options:
		return o.Protocol
	case *DialogOptions:
		return o.Protocol
	}
	return ProtocolHTTP
}

// inferenceStream synthesizes text on the engine's inference node. A 401 or
// 403 from the node forces one coordinates refresh and a single retry.
func (c *Client) inferenceStream(ctx context.Context, text string, opts Options) (io.ReadCloser, error) {
	key := c.key(opts.Engine())
	coords, err := c.coords.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	open := c.inferenceHTTP
	if protocolOf(opts) == ProtocolWebSocket {
		open = c.inferenceWS
	}

	r, err := open(ctx, coords, text, opts)
	if err == nil || !isAuthRejection(err) {
		return r, err
	}

	logger.LeaseEvent(ctx, "coordinates", key.Engine, "rejected", "error", err)
	if coords, err = c.coords.Refresh(ctx, key); err != nil {
		return nil, err
	}
	return open(ctx, coords, text, opts)
}

func (c *Client) inferenceHTTP(ctx context.Context, coords *lease.Coordinates, text string, opts Options) (io.ReadCloser, error) {
	req, err := c.newJSONRequest(ctx, http.MethodPost, coords.InferenceAddress,
		newSynthesisRequest(text, opts), opts.common().OutputFormat.mimeType(), false)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(c.streamHTTP, req, "Inference")
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *Client) inferenceWS(ctx context.Context, coords *lease.Coordinates, text string, opts Options) (io.ReadCloser, error) {
	if coords.WebSocketURL == "" {
		return nil, pkgerrors.Newf(pkgerrors.KindAuth, component, "Inference",
			"no websocket address for %s", opts.Engine())
	}
	conn, err := wsconn.Dial(ctx, wsconn.Config{URL: coords.WebSocketURL})
	if err != nil {
		return nil, err
	}

	ctx, id := withRequestID(ctx)
	body := newSynthesisRequest(text, opts)
	body.RequestID = id
	if err := conn.SendJSON(body); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &wsAudio{ctx: ctx, conn: conn, requestID: id}, nil
}

type wsMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Message   string `json:"message"`
	Error     string `json:"error"`
	Code      string `json:"code"`
}

// wsAudio reads one request's audio frames off a websocket.
type wsAudio struct {
	ctx       context.Context
	conn      *wsconn.Conn
	requestID string
	buf       []byte
	err       error
}

func (w *wsAudio) Read(p []byte) (int, error) {
	for len(w.buf) == 0 {
		if w.err != nil {
			return 0, w.err
		}
		w.err = w.next()
	}
	n := copy(p, w.buf)
	w.buf = w.buf[n:]
	return n, nil
}

// next reads frames until audio arrives or the request ends.
func (w *wsAudio) next() error {
	f, err := w.conn.Receive(w.ctx)
	if err != nil {
		return err
	}
	if f.Binary {
		w.buf = f.Data
		return nil
	}

	var msg wsMessage
	if err := json.Unmarshal(f.Data, &msg); err != nil {
		return pkgerrors.New(pkgerrors.KindProtocol, component, "Inference", err).
			WithMessage("malformed websocket message: " + err.Error())
	}
	if msg.RequestID != "" && msg.RequestID != w.requestID {
		return nil
	}
	switch msg.Type {
	case "start":
		return nil
	case "end":
		_ = w.conn.Close()
		return io.EOF
	}
	if msg.Type == "error" || msg.Error != "" {
		text, code := httputil.ExtractErrorMessage(f.Data)
		e := pkgerrors.Newf(pkgerrors.KindProvider, component, "Inference", "%s", text)
		if code != "" {
			e = e.WithCode(code)
		}
		return e
	}
	return nil
}

func (w *wsAudio) Close() error {
	return w.conn.Close()
}
