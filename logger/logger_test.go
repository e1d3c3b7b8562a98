package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureLogs installs a JSON handler writing into a buffer for the duration of the test.
func captureLogs(t *testing.T, level slog.Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetLogger(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: level}))
	t.Cleanup(func() { SetLogger(nil) })
	return &buf
}

func TestSetLevel(t *testing.T) {
	for _, lvl := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		SetLevel(lvl)
		require.NotNil(t, DefaultLogger)
		assert.True(t, DefaultLogger.Enabled(context.Background(), lvl))
	}
	SetLevel(slog.LevelInfo)
}

func TestSetVerbose(t *testing.T) {
	SetVerbose(true)
	assert.True(t, DefaultLogger.Enabled(context.Background(), slog.LevelDebug))

	SetVerbose(false)
	assert.False(t, DefaultLogger.Enabled(context.Background(), slog.LevelDebug))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"TRACE", slog.LevelDebug},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}

func TestContextFieldsAreLogged(t *testing.T) {
	buf := captureLogs(t, slog.LevelDebug)

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithVoiceEngine(ctx, "PlayHT2.0-turbo")
	ctx = WithChunkIndex(ctx, 3)
	InfoContext(ctx, "hello", "k", "v")

	out := buf.String()
	assert.Contains(t, out, `"request_id":"req-1"`)
	assert.Contains(t, out, `"voice_engine":"PlayHT2.0-turbo"`)
	assert.Contains(t, out, `"chunk_index":"3"`)
	assert.Contains(t, out, `"k":"v"`)
}

func TestLoggingContextRoundTrip(t *testing.T) {
	ctx := WithLoggingContext(context.Background(), &LoggingFields{
		RequestID: "r",
		UserID:    "u",
		Target:    "node-1:443",
	})
	got := ExtractLoggingFields(ctx)
	assert.Equal(t, "r", got.RequestID)
	assert.Equal(t, "u", got.UserID)
	assert.Equal(t, "node-1:443", got.Target)
	assert.Empty(t, got.VoiceEngine)

	assert.Equal(t, context.Background(), WithLoggingContext(context.Background(), nil))
}

func TestLeaseFailure(t *testing.T) {
	buf := captureLogs(t, slog.LevelInfo)

	LeaseFailure(context.Background(), "coordinates", "Play3.0-mini", 3, errors.New("denied"))

	out := buf.String()
	assert.Contains(t, out, `"level":"ERROR"`)
	assert.Contains(t, out, `"engine":"Play3.0-mini"`)
	assert.Contains(t, out, `"attempts":3`)
}

func TestDomainEventsAreDebug(t *testing.T) {
	buf := captureLogs(t, slog.LevelInfo)

	LeaseEvent(context.Background(), "lease", "PlayHT2.0-turbo", "acquired")
	StreamEvent(context.Background(), "PlayHT2.0-turbo", "first_data")
	assert.Empty(t, buf.String())

	buf = captureLogs(t, slog.LevelDebug)
	StreamEvent(context.Background(), "PlayHT2.0-turbo", "first_data", "chunk", 0)
	assert.Contains(t, buf.String(), `"event":"first_data"`)
}

func TestRedactSensitiveData(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains string
		absent   string
	}{
		{"bearer", "Authorization: Bearer abc.def-123", "Bearer [REDACTED]", "abc.def-123"},
		{"api key", "key=ak-0123456789abcdef0123", "ak-0...[REDACTED]", "0123456789abcdef0123"},
		{"lease", `{"lease":"AAAABBBBCCCC","text":"hi"}`, `"lease":"[REDACTED]"`, "AAAABBBBCCCC"},
		{"token query", "https://node/stream?token=secret&x=1", "token=[REDACTED]", "secret"},
		{"plain", "nothing to see", "nothing to see", "[REDACTED]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RedactSensitiveData(tt.input)
			assert.Contains(t, got, tt.contains)
			assert.NotContains(t, got, tt.absent)
		})
	}
}

func TestAPIRequestRedactsHeaders(t *testing.T) {
	buf := captureLogs(t, slog.LevelDebug)

	APIRequest(context.Background(), "leases", "POST", "https://api.play.ht/api/v2/leases",
		map[string]string{"Authorization": "Bearer supersecret"}, map[string]string{"text": "hi"})

	out := buf.String()
	assert.Contains(t, out, "API request")
	assert.NotContains(t, out, "supersecret")
}

func TestAPIResponseErrorLoggedAtErrorLevel(t *testing.T) {
	buf := captureLogs(t, slog.LevelError)

	APIResponse(context.Background(), "auth", 401, "", errors.New("unauthorized"))
	APIResponse(context.Background(), "auth", 200, "ok", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"status_code":401`)
}

func TestConfigure(t *testing.T) {
	var buf bytes.Buffer
	prev := logOutput
	logOutput = &buf
	t.Cleanup(func() {
		logOutput = prev
		SetLevel(slog.LevelInfo)
	})

	require.NoError(t, Configure(&LoggingConfigSpec{
		Level:        "debug",
		Format:       FormatJSON,
		CommonFields: map[string]string{"service": "playht"},
	}))
	Debug("configured")

	assert.Contains(t, buf.String(), `"service":"playht"`)
	assert.Contains(t, buf.String(), `"msg":"configured"`)
	assert.NoError(t, Configure(nil))
}

func TestConfigureKeepsCustomHandler(t *testing.T) {
	buf := captureLogs(t, slog.LevelInfo)

	require.NoError(t, Configure(&LoggingConfigSpec{Level: "error"}))
	Info("still here")

	assert.Contains(t, buf.String(), "still here")
}

func TestHandlerScrubsAttributes(t *testing.T) {
	buf := captureLogs(t, slog.LevelInfo)

	log := DefaultLogger.With("auth", "Bearer persistent-token")
	log.Info("dial https://node/stream?token=abc123",
		"err", errors.New("rejected key ak-0123456789abcdef0123"),
		slog.Group("req", slog.String("header", "Bearer nested-token")),
	)

	out := buf.String()
	assert.NotContains(t, out, "persistent-token")
	assert.NotContains(t, out, "abc123")
	assert.NotContains(t, out, "0123456789abcdef0123")
	assert.NotContains(t, out, "nested-token")
	assert.Contains(t, out, "token=[REDACTED]")
}

func TestConfigureRejectsUnknownFormat(t *testing.T) {
	assert.Error(t, Configure(&LoggingConfigSpec{Format: "xml"}))
}
