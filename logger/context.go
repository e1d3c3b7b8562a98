package logger

import (
	"context"
	"strconv"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

// Context keys for common logging fields. Values stored under these keys are
// added to every record the package logger writes.
const (
	// ContextKeyRequestID identifies one public call (Stream, StreamText, Generate).
	ContextKeyRequestID contextKey = "request_id"

	// ContextKeyUserID identifies the PlayHT account.
	ContextKeyUserID contextKey = "user_id"

	// ContextKeyVoiceEngine identifies the backend voice engine.
	ContextKeyVoiceEngine contextKey = "voice_engine"

	// ContextKeyChunkIndex identifies the text chunk being synthesized.
	ContextKeyChunkIndex contextKey = "chunk_index"

	// ContextKeyTarget identifies the backend inference address.
	ContextKeyTarget contextKey = "target"
)

// allContextKeys lists all context keys that should be extracted for logging.
var allContextKeys = []contextKey{
	ContextKeyRequestID,
	ContextKeyUserID,
	ContextKeyVoiceEngine,
	ContextKeyChunkIndex,
	ContextKeyTarget,
}

// WithRequestID returns a new context with the request ID set.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// WithUserID returns a new context with the user ID set.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ContextKeyUserID, userID)
}

// WithVoiceEngine returns a new context with the voice engine set.
func WithVoiceEngine(ctx context.Context, engine string) context.Context {
	return context.WithValue(ctx, ContextKeyVoiceEngine, engine)
}

// WithChunkIndex returns a new context with the chunk index set.
func WithChunkIndex(ctx context.Context, index int) context.Context {
	return context.WithValue(ctx, ContextKeyChunkIndex, strconv.Itoa(index))
}

// WithTarget returns a new context with the inference target set.
func WithTarget(ctx context.Context, target string) context.Context {
	return context.WithValue(ctx, ContextKeyTarget, target)
}

// LoggingFields holds all standard logging context fields.
type LoggingFields struct {
	RequestID   string
	UserID      string
	VoiceEngine string
	ChunkIndex  string
	Target      string
}

// WithLoggingContext returns a new context with multiple logging fields set at once.
// Only non-empty values are set.
func WithLoggingContext(ctx context.Context, fields *LoggingFields) context.Context {
	if fields == nil {
		return ctx
	}
	if fields.RequestID != "" {
		ctx = WithRequestID(ctx, fields.RequestID)
	}
	if fields.UserID != "" {
		ctx = WithUserID(ctx, fields.UserID)
	}
	if fields.VoiceEngine != "" {
		ctx = WithVoiceEngine(ctx, fields.VoiceEngine)
	}
	if fields.ChunkIndex != "" {
		ctx = context.WithValue(ctx, ContextKeyChunkIndex, fields.ChunkIndex)
	}
	if fields.Target != "" {
		ctx = WithTarget(ctx, fields.Target)
	}
	return ctx
}

// ExtractLoggingFields extracts all logging fields from a context.
func ExtractLoggingFields(ctx context.Context) LoggingFields {
	get := func(k contextKey) string {
		s, _ := ctx.Value(k).(string)
		return s
	}
	return LoggingFields{
		RequestID:   get(ContextKeyRequestID),
		UserID:      get(ContextKeyUserID),
		VoiceEngine: get(ContextKeyVoiceEngine),
		ChunkIndex:  get(ContextKeyChunkIndex),
		Target:      get(ContextKeyTarget),
	}
}
