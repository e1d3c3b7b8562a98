// Package logger provides structured logging with automatic credential redaction.
//
// This package wraps Go's standard log/slog with convenience functions for:
//   - REST and RPC call logging (requests, responses, errors)
//   - Lease and inference-coordinate lifecycle events
//   - Automatic API key, bearer token and lease redaction
//   - Contextual logging with request tracing
//   - Level-based verbosity control
//
// All exported functions use the global DefaultLogger which can be configured
// for different output formats and log levels.
package logger

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"
)

var (
	// DefaultLogger is the global structured logger instance.
	// It is safe for concurrent use and initialized with slog.LevelInfo by default.
	DefaultLogger *slog.Logger

	// logOutput is where handlers built by this package write.
	logOutput io.Writer = os.Stderr

	// customHandler is set by SetLogger and survives Configure calls.
	customHandler slog.Handler

	mu sync.Mutex
)

func init() {
	level := slog.LevelInfo
	if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
		level = ParseLevel(envLevel)
	}
	DefaultLogger = slog.New(newScrubHandler(slog.NewTextHandler(logOutput, &slog.HandlerOptions{
		Level: level,
	})))
}

// ParseLevel converts a level name into a slog.Level. Unknown names map to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace", "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel changes the logging level for all subsequent log operations.
// This is safe for concurrent use as it replaces the entire logger instance.
func SetLevel(level slog.Level) {
	mu.Lock()
	defer mu.Unlock()
	DefaultLogger = slog.New(newScrubHandler(slog.NewTextHandler(logOutput, &slog.HandlerOptions{
		Level: level,
	})))
}

// SetVerbose enables debug-level logging when verbose is true, otherwise sets info-level.
func SetVerbose(verbose bool) {
	if verbose {
		SetLevel(slog.LevelDebug)
	} else {
		SetLevel(slog.LevelInfo)
	}
}

// SetLogger replaces the global logger with one built on the given handler.
// Context fields are still extracted. Passing nil restores the default handler.
func SetLogger(h slog.Handler) {
	mu.Lock()
	defer mu.Unlock()
	customHandler = h
	if h == nil {
		DefaultLogger = slog.New(newScrubHandler(slog.NewTextHandler(logOutput, nil)))
		return
	}
	DefaultLogger = slog.New(newScrubHandler(h))
}

// Info logs an informational message with structured key-value attributes.
// Args should be provided in key-value pairs: key1, value1, key2, value2, ...
func Info(msg string, args ...any) {
	DefaultLogger.Info(msg, args...)
}

// InfoContext logs an informational message with context and structured attributes.
func InfoContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.InfoContext(ctx, msg, args...)
}

// Debug logs a debug-level message with structured attributes.
func Debug(msg string, args ...any) {
	DefaultLogger.Debug(msg, args...)
}

// DebugContext logs a debug message with context and structured attributes.
func DebugContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.DebugContext(ctx, msg, args...)
}

// Warn logs a warning message with structured attributes.
// Use for recoverable errors or unexpected but non-critical situations.
func Warn(msg string, args ...any) {
	DefaultLogger.Warn(msg, args...)
}

// WarnContext logs a warning message with context and structured attributes.
func WarnContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.WarnContext(ctx, msg, args...)
}

// Error logs an error message with structured attributes.
func Error(msg string, args ...any) {
	DefaultLogger.Error(msg, args...)
}

// ErrorContext logs an error message with context and structured attributes.
func ErrorContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.ErrorContext(ctx, msg, args...)
}

// LeaseEvent logs a credential lifecycle event (acquire, refresh, evict).
func LeaseEvent(ctx context.Context, kind, engine, event string, attrs ...any) {
	allAttrs := make([]any, 0, 6+len(attrs))
	allAttrs = append(allAttrs,
		"credential", kind,
		"engine", engine,
		"event", event,
	)
	allAttrs = append(allAttrs, attrs...)
	DebugContext(ctx, "credential event", allAttrs...)
}

// LeaseFailure logs an acquisition that exhausted its retry budget.
func LeaseFailure(ctx context.Context, kind, engine string, attempts int, err error) {
	ErrorContext(ctx, "credential acquisition failed",
		"credential", kind,
		"engine", engine,
		"attempts", attempts,
		"error", err,
	)
}

// StreamEvent logs an audio stream lifecycle event.
func StreamEvent(ctx context.Context, engine, event string, attrs ...any) {
	allAttrs := make([]any, 0, 4+len(attrs))
	allAttrs = append(allAttrs,
		"engine", engine,
		"event", event,
	)
	allAttrs = append(allAttrs, attrs...)
	DebugContext(ctx, "stream event", allAttrs...)
}

var (
	// apiKeyPatterns contains compiled regular expressions for detecting sensitive data.
	apiKeyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._~+/=-]+`), // Bearer tokens
		regexp.MustCompile(`ak-[a-zA-Z0-9]{16,}`),          // PlayHT API keys
		regexp.MustCompile(`"lease"\s*:\s*"[^"]+"`),        // serialized leases
		regexp.MustCompile(`[?&]token=[^&\s"]+`),           // tokens embedded in inference URLs
	}
)

// RedactSensitiveData removes API keys and other sensitive information from strings.
// Bearer tokens keep only their scheme; API keys keep their first 4 characters.
//
// This function is safe for concurrent use as it only reads from the compiled patterns.
func RedactSensitiveData(input string) string {
	result := input

	for _, pattern := range apiKeyPatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			switch {
			case strings.HasPrefix(match, "Bearer"):
				return "Bearer [REDACTED]"
			case strings.HasPrefix(match, `"lease"`):
				return `"lease":"[REDACTED]"`
			case strings.Contains(match, "token="):
				return match[:strings.Index(match, "=")+1] + "[REDACTED]"
			case len(match) > 8:
				return match[:4] + "...[REDACTED]"
			default:
				return "[REDACTED]"
			}
		})
	}

	return result
}

// APIRequest logs HTTP API request details at debug level with automatic redaction.
// This function is a no-op when debug logging is disabled.
func APIRequest(ctx context.Context, endpoint, method, url string, headers map[string]string, body any) {
	if !DefaultLogger.Enabled(ctx, slog.LevelDebug) {
		return
	}

	attrs := make([]any, 0, 10)
	attrs = append(attrs,
		"endpoint", endpoint,
		"method", method,
		"url", RedactSensitiveData(url),
	)

	if len(headers) > 0 {
		redactedHeaders := make(map[string]string, len(headers))
		for key, value := range headers {
			redactedHeaders[key] = RedactSensitiveData(value)
		}
		attrs = append(attrs, "headers", redactedHeaders)
	}

	if body != nil {
		bodyJSON, err := json.Marshal(body)
		if err != nil {
			attrs = append(attrs, "body_error", err.Error())
		} else {
			attrs = append(attrs, "body", RedactSensitiveData(string(bodyJSON)))
		}
	}

	DebugContext(ctx, "API request", attrs...)
}

// APIResponse logs HTTP API response details at debug level with automatic redaction.
// Errors are logged at error level regardless of the body.
func APIResponse(ctx context.Context, endpoint string, statusCode int, body string, err error) {
	if err != nil {
		ErrorContext(ctx, "API response error",
			"endpoint", endpoint,
			"status_code", statusCode,
			"error", err.Error(),
		)
		return
	}
	if !DefaultLogger.Enabled(ctx, slog.LevelDebug) {
		return
	}

	attrs := []any{"endpoint", endpoint, "status_code", statusCode}
	if body != "" {
		attrs = append(attrs, "body", RedactSensitiveData(body))
	}
	DebugContext(ctx, "API response", attrs...)
}
