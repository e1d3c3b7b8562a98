package lease

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/playht/playht-go-sdk/credentials"
	"github.com/playht/playht-go-sdk/logger"
	pkgerrors "github.com/playht/playht-go-sdk/pkg/errors"
	"github.com/playht/playht-go-sdk/pkg/httputil"
)

// API paths, relative to the base URL.
const (
	LeasesPath = "/api/v2/leases"
	AuthPath   = "/api/v3/auth"
)

const maxLeaseBody = 1 << 20

// Acquirer performs one network acquisition of a credential.
type Acquirer[T Credential] interface {
	Acquire(ctx context.Context, key Key) (T, error)
}

// AcquireFunc adapts a function to Acquirer.
type AcquireFunc[T Credential] func(ctx context.Context, key Key) (T, error)

// Acquire calls f.
func (f AcquireFunc[T]) Acquire(ctx context.Context, key Key) (T, error) {
	return f(ctx, key)
}

// HTTPAcquirer holds what both REST acquirers need.
type HTTPAcquirer struct {
	BaseURL    string
	Credential credentials.Credential
	Client     *http.Client
	Now        func() time.Time
}

func (a *HTTPAcquirer) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a *HTTPAcquirer) post(ctx context.Context, op, path string) ([]byte, error) {
	url := strings.TrimRight(a.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, http.NoBody)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.KindAuth, "lease", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if err := a.Credential.Apply(ctx, req); err != nil {
		return nil, pkgerrors.New(pkgerrors.KindAuth, "lease", op, err)
	}
	logger.APIRequest(ctx, op, req.Method, url, map[string]string{
		credentials.HeaderUserID:        req.Header.Get(credentials.HeaderUserID),
		credentials.HeaderAuthorization: req.Header.Get(credentials.HeaderAuthorization),
	}, nil)

	client := a.Client
	if client == nil {
		client = httputil.NewHTTPClient(httputil.DefaultAPITimeout)
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, pkgerrors.New(pkgerrors.KindCanceled, "lease", op, ctx.Err())
		}
		return nil, pkgerrors.New(pkgerrors.KindTransport, "lease", op, err)
	}
	defer resp.Body.Close()

	if !httputil.IsSuccess(resp.StatusCode) {
		e := httputil.ErrorFromResponse(pkgerrors.KindAuth, "lease", op, resp)
		logger.APIResponse(ctx, op, resp.StatusCode, "", e)
		return nil, e
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLeaseBody))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.KindTransport, "lease", op, err)
	}
	logger.APIResponse(ctx, op, resp.StatusCode, "", nil)
	return body, nil
}

// LeaseAcquirer obtains binary leases from POST /api/v2/leases.
type LeaseAcquirer struct {
	HTTPAcquirer
}

// Acquire requests a new lease. The key's engine is informational; leases
// are account-wide.
func (a *LeaseAcquirer) Acquire(ctx context.Context, _ Key) (*Lease, error) {
	body, err := a.post(ctx, "AcquireLease", LeasesPath)
	if err != nil {
		return nil, err
	}
	l, err := ParseLease(body)
	if err != nil {
		return nil, err
	}
	if now := a.now(); !l.ExpiresAt().After(now) {
		return nil, expiredError("AcquireLease", l.ExpiresAt(), now)
	}
	return l, nil
}

// authEngineEntry is one engine entry of the v3/auth body, which also
// carries a shared expires_at_ms.
type authEngineEntry struct {
	HTTPStreamingURL string `json:"http_streaming_url"`
	WebSocketURL     string `json:"websocket_url"`
}

// CoordinatesAcquirer obtains inference coordinates from POST /api/v3/auth.
type CoordinatesAcquirer struct {
	HTTPAcquirer
}

// Acquire requests coordinates for key.Engine.
func (a *CoordinatesAcquirer) Acquire(ctx context.Context, key Key) (*Coordinates, error) {
	body, err := a.post(ctx, "AcquireCoordinates", AuthPath)
	if err != nil {
		return nil, err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, pkgerrors.New(pkgerrors.KindAuth, "lease", "AcquireCoordinates", err).
			WithMessage("malformed auth response: " + err.Error())
	}

	var expiresMs int64
	if v, ok := raw["expires_at_ms"]; ok {
		if err := json.Unmarshal(v, &expiresMs); err != nil {
			return nil, pkgerrors.New(pkgerrors.KindAuth, "lease", "AcquireCoordinates", err)
		}
	}

	var entry authEngineEntry
	v, ok := raw[key.Engine]
	if ok {
		err = json.Unmarshal(v, &entry)
	}
	if !ok || err != nil || entry.HTTPStreamingURL == "" {
		return nil, pkgerrors.Newf(pkgerrors.KindAuth, "lease", "AcquireCoordinates",
			"auth response has no inference address for %s", key.Engine)
	}

	c := &Coordinates{
		Engine:           key.Engine,
		InferenceAddress: entry.HTTPStreamingURL,
		WebSocketURL:     entry.WebSocketURL,
		Expires:          time.UnixMilli(expiresMs),
	}
	if now := a.now(); !c.Expires.After(now) {
		return nil, expiredError("AcquireCoordinates", c.Expires, now)
	}
	return c, nil
}

func expiredError(op string, expires, now time.Time) *pkgerrors.Error {
	return pkgerrors.Newf(pkgerrors.KindExpiredLease, "lease", op,
		"credential expired at %s (now %s); check the system clock",
		expires.UTC().Format(time.RFC3339), now.UTC().Format(time.RFC3339))
}

// isCanceled reports whether err stems from context cancellation.
func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		pkgerrors.KindOf(err) == pkgerrors.KindCanceled
}
