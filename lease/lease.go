// Package lease acquires and caches the time-boxed authorization material
// PlayHT issues per user and voice engine: binary leases for the RPC engine
// and inference coordinates for the auth-token engines.
package lease

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"time"

	pkgerrors "github.com/playht/playht-go-sdk/pkg/errors"
)

// Epoch is the origin, in Unix seconds, of the created field of a lease blob.
const Epoch = 1519257480

// Lease blob layout.
const (
	createdOffset  = 64
	durationOffset = 68
	headerSize     = 72
)

// Metadata keys carried by a lease.
const (
	MetaInferenceAddress        = "inference_address"
	MetaPremiumInferenceAddress = "premium_inference_address"
)

// Credential is any cached authorization value with an absolute expiry.
type Credential interface {
	ExpiresAt() time.Time
	MarshalBinary() ([]byte, error)
}

// Key identifies a cache entry.
type Key struct {
	UserID string
	Engine string
}

// String returns "user:engine".
func (k Key) String() string {
	return k.UserID + ":" + k.Engine
}

// Lease is a binary credential authorizing RPC streaming sessions.
// It is immutable once parsed.
type Lease struct {
	Raw      []byte
	Created  time.Time
	Duration time.Duration
	Metadata map[string]any
}

// ParseLease decodes a lease blob.
func ParseLease(raw []byte) (*Lease, error) {
	if len(raw) < headerSize {
		return nil, pkgerrors.Newf(pkgerrors.KindAuth, "lease", "ParseLease",
			"malformed lease: %d bytes, need at least %d", len(raw), headerSize)
	}

	created := binary.BigEndian.Uint32(raw[createdOffset:durationOffset])
	duration := binary.BigEndian.Uint32(raw[durationOffset:headerSize])

	meta := map[string]any{}
	if body := bytes.TrimSpace(raw[headerSize:]); len(body) > 0 {
		if err := json.Unmarshal(body, &meta); err != nil {
			return nil, pkgerrors.New(pkgerrors.KindAuth, "lease", "ParseLease", err).
				WithMessage("malformed lease metadata: " + err.Error())
		}
	}

	return &Lease{
		Raw:      bytes.Clone(raw),
		Created:  time.Unix(Epoch+int64(created), 0),
		Duration: time.Duration(duration) * time.Second,
		Metadata: meta,
	}, nil
}

// ExpiresAt returns the absolute expiry.
func (l *Lease) ExpiresAt() time.Time {
	return l.Created.Add(l.Duration)
}

// MarshalBinary returns the original blob.
func (l *Lease) MarshalBinary() ([]byte, error) {
	return bytes.Clone(l.Raw), nil
}

// InferenceAddress returns the RPC target the lease was issued for.
func (l *Lease) InferenceAddress() string {
	return l.metaString(MetaInferenceAddress)
}

// PremiumInferenceAddress returns the RPC target for premium quality, if any.
func (l *Lease) PremiumInferenceAddress() string {
	return l.metaString(MetaPremiumInferenceAddress)
}

func (l *Lease) metaString(key string) string {
	s, _ := l.Metadata[key].(string)
	return s
}

// Coordinates is the lighter alternative to a lease used by auth-token engines.
type Coordinates struct {
	Engine           string    `json:"engine"`
	InferenceAddress string    `json:"inference_address"`
	WebSocketURL     string    `json:"websocket_url,omitempty"`
	Expires          time.Time `json:"expires"`
}

// ExpiresAt returns the absolute expiry.
func (c *Coordinates) ExpiresAt() time.Time {
	return c.Expires
}

// MarshalBinary encodes the coordinates as JSON.
func (c *Coordinates) MarshalBinary() ([]byte, error) {
	return json.Marshal(c)
}

// ParseCoordinates decodes coordinates produced by MarshalBinary.
func ParseCoordinates(b []byte) (*Coordinates, error) {
	var c Coordinates
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, pkgerrors.New(pkgerrors.KindAuth, "lease", "ParseCoordinates", err)
	}
	return &c, nil
}
