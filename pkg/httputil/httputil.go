// Package httputil provides shared HTTP client construction utilities
// for the PlayHT client. It centralizes timeout defaults, tracing transport
// and provider error extraction so that every engine behaves the same way.
package httputil

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	pkgerrors "github.com/playht/playht-go-sdk/pkg/errors"
)

// Standard timeout defaults used across the project.
const (
	// DefaultAPITimeout is the HTTP timeout for short REST calls
	// (leases, auth, convert, status polls).
	DefaultAPITimeout = 30 * time.Second

	// DefaultStreamTimeout bounds the headers of streaming audio responses.
	// The body itself is read without a client deadline.
	DefaultStreamTimeout = 60 * time.Second
)

// maxErrorBody caps how much of an error body is read.
const maxErrorBody = 64 * 1024

// NewHTTPClient returns an *http.Client configured with the given timeout.
// Pass one of the Default*Timeout constants, or a custom duration.
// Requests are traced through otelhttp using the global tracer provider.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// NewStreamingClient returns a client without an overall deadline, suitable
// for long audio bodies. Cancellation is driven by the request context.
func NewStreamingClient(headerTimeout time.Duration) *http.Client {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.ResponseHeaderTimeout = headerTimeout
	return &http.Client{Transport: otelhttp.NewTransport(base)}
}

// IsSuccess reports whether the status code is 2xx.
func IsSuccess(code int) bool {
	return code >= http.StatusOK && code < http.StatusMultipleChoices
}

// ErrorFromResponse builds a normalized error from a non-2xx response.
// The message is extracted best-effort from a JSON body ("error_message",
// "message", "error") or the plain-text body. The body is consumed but not closed.
func ErrorFromResponse(kind pkgerrors.Kind, component, operation string, resp *http.Response) *pkgerrors.Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg, code := ExtractErrorMessage(body)
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	e := pkgerrors.Newf(kind, component, operation, "%s", msg).WithStatusCode(resp.StatusCode)
	if code != "" {
		e = e.WithCode(code)
	}
	return e
}

// ExtractErrorMessage pulls a message and optional code out of an error body.
func ExtractErrorMessage(body []byte) (message, code string) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "", ""
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return trimmed, ""
	}

	for _, k := range []string{"error_message", "message", "error", "detail"} {
		switch v := obj[k].(type) {
		case string:
			if v != "" {
				message = v
			}
		case map[string]any:
			if m, ok := v["message"].(string); ok {
				message = m
			}
			if c, ok := v["code"].(string); ok && code == "" {
				code = c
			}
		}
		if message != "" {
			break
		}
	}
	for _, k := range []string{"error_id", "code"} {
		if c, ok := obj[k].(string); ok && code == "" {
			code = c
		}
	}
	if message == "" {
		message = trimmed
	}
	return message, code
}
