package streaming

import (
	"sync"

	"google.golang.org/grpc"

	"github.com/playht/playht-go-sdk/logger"
	pkgerrors "github.com/playht/playht-go-sdk/pkg/errors"
)

// Dialer creates a connection to an inference address.
type Dialer func(address string) (*grpc.ClientConn, error)

// ConnHandle owns the connection to one inference node. The connection is
// dialed on first use and replaced when the node's address changes; a
// replaced connection is closed and never reused.
type ConnHandle struct {
	dial Dialer

	mu      sync.Mutex
	address string
	conn    *grpc.ClientConn
	closed  bool
}

// NewConnHandle returns an empty handle.
func NewConnHandle(dial Dialer) *ConnHandle {
	return &ConnHandle{dial: dial}
}

// Get returns the connection for address, dialing or replacing as needed.
func (h *ConnHandle) Get(address string) (*grpc.ClientConn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, pkgerrors.Newf(pkgerrors.KindCanceled, component, "Dial", "connection handle closed")
	}
	if h.conn != nil && h.address == address {
		return h.conn, nil
	}

	conn, err := h.dial(address)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.KindTransport, component, "Dial", err)
	}
	if h.conn != nil {
		logger.Debug("replacing inference connection", "from", h.address, "to", address)
		if err := h.conn.Close(); err != nil {
			logger.Warn("closing replaced connection", "address", h.address, "error", err)
		}
	}
	h.conn = conn
	h.address = address
	return conn, nil
}

// Address returns the address of the live connection, if any.
func (h *ConnHandle) Address() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.address
}

// Close closes the live connection. Later calls to Get fail.
func (h *ConnHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	if h.conn == nil {
		return nil
	}
	err := h.conn.Close()
	h.conn = nil
	h.address = ""
	return err
}
