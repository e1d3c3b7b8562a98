// Package wsconn is the WebSocket transport of the inference engines'
// websocket protocol: dial with retry, JSON requests, typed frame reads and
// a close handshake.
package wsconn

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/playht/playht-go-sdk/logger"
	pkgerrors "github.com/playht/playht-go-sdk/pkg/errors"
)

const component = "wsconn"

// Defaults.
const (
	DefaultDialTimeout      = 10 * time.Second
	DefaultWriteWait        = 10 * time.Second
	DefaultMaxMessageSize   = 16 * 1024 * 1024
	DefaultDialAttempts     = 3
	DefaultRetryBackoff     = 250 * time.Millisecond
	DefaultRetryBackoffMax  = 5 * time.Second
	DefaultCloseGracePeriod = 2 * time.Second
)

// Config configures a connection.
type Config struct {
	URL              string
	Headers          http.Header
	DialTimeout      time.Duration
	WriteWait        time.Duration
	MaxMessageSize   int64
	DialAttempts     int
	RetryBackoff     time.Duration
	RetryBackoffMax  time.Duration
	CloseGracePeriod time.Duration
}

func (c *Config) defaults() {
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.WriteWait <= 0 {
		c.WriteWait = DefaultWriteWait
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.DialAttempts <= 0 {
		c.DialAttempts = DefaultDialAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
	if c.RetryBackoffMax <= 0 {
		c.RetryBackoffMax = DefaultRetryBackoffMax
	}
	if c.CloseGracePeriod <= 0 {
		c.CloseGracePeriod = DefaultCloseGracePeriod
	}
}

// Frame is one received message.
type Frame struct {
	Binary bool
	Data   []byte
}

// Conn is an established WebSocket connection. Writes are serialized; reads
// must come from one goroutine at a time.
type Conn struct {
	cfg  Config
	ws   *websocket.Conn
	wmu  sync.Mutex
	mu   sync.Mutex
	done bool
}

// Dial connects to cfg.URL, retrying failed handshakes with jittered
// exponential backoff. Handshakes rejected with 401 or 403 are not retried.
func Dial(ctx context.Context, cfg Config) (*Conn, error) {
	cfg.defaults()

	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.DialTimeout,
		TLSClientConfig:  &tls.Config{MinVersion: tls.VersionTLS12},
		Proxy:            http.ProxyFromEnvironment,
	}

	backoff := cfg.RetryBackoff
	var lastErr *pkgerrors.Error
	for attempt := 1; attempt <= cfg.DialAttempts; attempt++ {
		ws, resp, err := dialer.DialContext(ctx, cfg.URL, cfg.Headers)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err == nil {
			ws.SetReadLimit(cfg.MaxMessageSize)
			logger.DebugContext(ctx, "websocket connected", "attempt", attempt)
			return &Conn{cfg: cfg, ws: ws}, nil
		}
		if ctx.Err() != nil {
			return nil, pkgerrors.New(pkgerrors.KindCanceled, component, "Dial", ctx.Err())
		}

		lastErr = pkgerrors.New(pkgerrors.KindTransport, component, "Dial", err)
		if resp != nil {
			lastErr.WithStatusCode(resp.StatusCode)
			if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
				lastErr.Kind = pkgerrors.KindAuth
				return nil, lastErr
			}
		}
		logger.WarnContext(ctx, "websocket dial failed",
			"attempt", attempt, "max_attempts", cfg.DialAttempts, "error", err)

		if attempt < cfg.DialAttempts {
			select {
			case <-ctx.Done():
				return nil, pkgerrors.New(pkgerrors.KindCanceled, component, "Dial", ctx.Err())
			case <-time.After(jitter(backoff)):
			}
			backoff = min(backoff*2, cfg.RetryBackoffMax)
		}
	}
	return nil, lastErr
}

// SendJSON encodes v and writes it as a text message.
func (c *Conn) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return pkgerrors.New(pkgerrors.KindInvalidOption, component, "Send", err)
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
		return pkgerrors.New(pkgerrors.KindTransport, component, "Send", err)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return pkgerrors.New(pkgerrors.KindTransport, component, "Send", err)
	}
	return nil
}

// Receive reads the next text or binary message. Canceling ctx closes the
// connection to unblock the read.
func (c *Conn) Receive(ctx context.Context) (Frame, error) {
	stop := context.AfterFunc(ctx, func() { _ = c.ws.Close() })
	defer stop()

	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return Frame{}, pkgerrors.New(pkgerrors.KindCanceled, component, "Receive", ctx.Err())
			}
			return Frame{}, pkgerrors.New(pkgerrors.KindTransport, component, "Receive", err)
		}
		switch mt {
		case websocket.TextMessage:
			return Frame{Data: data}, nil
		case websocket.BinaryMessage:
			return Frame{Binary: true, Data: data}, nil
		}
	}
}

// Close sends a normal close frame and closes the connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return nil
	}
	c.done = true
	c.mu.Unlock()

	c.wmu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.cfg.CloseGracePeriod))
	c.wmu.Unlock()
	return c.ws.Close()
}

// IsNormalClose reports whether err is a normal close by the peer.
func IsNormalClose(err error) bool {
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway
}

// jitter spreads d by up to a quarter in either direction.
func jitter(d time.Duration) time.Duration {
	n, err := rand.Int(rand.Reader, big.NewInt(1000))
	if err != nil {
		return d
	}
	f := (float64(n.Int64())/500 - 1) * 0.25
	return d + time.Duration(float64(d)*f)
}
