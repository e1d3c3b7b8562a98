// Package credentials provides PlayHT account authentication for REST and
// lease requests.
package credentials

import (
	"context"
	"log/slog"
	"net/http"
)

// Header names used by the PlayHT API.
const (
	HeaderUserID        = "X-User-Id"
	HeaderAuthorization = "Authorization"
)

// Credential signs outgoing API requests for one account.
type Credential interface {
	Apply(ctx context.Context, req *http.Request) error
	// UserID keys cached leases and coordinates.
	UserID() string
}

// APIKeyCredential is a PlayHT user ID paired with its secret API key.
// Requests carry the key as a bearer token next to X-User-Id.
type APIKeyCredential struct {
	userID string
	apiKey string
}

// NewAPIKeyCredential pairs a user ID with its API key.
func NewAPIKeyCredential(userID, apiKey string) *APIKeyCredential {
	return &APIKeyCredential{userID: userID, apiKey: apiKey}
}

// Header returns the authentication headers, omitting empty values.
func (c *APIKeyCredential) Header() http.Header {
	h := make(http.Header, 2)
	if c.userID != "" {
		h.Set(HeaderUserID, c.userID)
	}
	if c.apiKey != "" {
		h.Set(HeaderAuthorization, "Bearer "+c.apiKey)
	}
	return h
}

// Apply sets the authentication headers on req.
func (c *APIKeyCredential) Apply(_ context.Context, req *http.Request) error {
	for k, v := range c.Header() {
		req.Header[k] = v
	}
	return nil
}

func (c *APIKeyCredential) UserID() string { return c.userID }

// APIKey returns the raw key. Keep it out of logs.
func (c *APIKeyCredential) APIKey() string { return c.apiKey }

// LogValue keeps the key out of structured logs.
func (c *APIKeyCredential) LogValue() slog.Value {
	masked := ""
	if c.apiKey != "" {
		masked = "[REDACTED]"
	}
	return slog.GroupValue(slog.String("user_id", c.userID), slog.String("api_key", masked))
}
