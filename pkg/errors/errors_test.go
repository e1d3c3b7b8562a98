package errors_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pkgerrors "github.com/playht/playht-go-sdk/pkg/errors"
)

func TestNew(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := pkgerrors.New(pkgerrors.KindTransport, "streaming", "Open", cause)

	assert.Equal(t, pkgerrors.KindTransport, err.Kind)
	assert.Equal(t, "streaming", err.Component)
	assert.Equal(t, "Open", err.Operation)
	assert.Equal(t, "connection refused", err.Message)
	assert.Equal(t, cause, err.Cause)
}

func TestNew_NilCause(t *testing.T) {
	err := pkgerrors.New(pkgerrors.KindAuth, "lease", "Acquire", nil)

	assert.Nil(t, err.Cause)
	assert.Equal(t, "[lease] Acquire", err.Error())
}

func TestError_BasicMessage(t *testing.T) {
	err := pkgerrors.New(pkgerrors.KindTransport, "streaming", "Open", fmt.Errorf("eof"))

	assert.Equal(t, "[streaming] Open: eof", err.Error())
}

func TestError_WithStatusAndCode(t *testing.T) {
	err := pkgerrors.Newf(pkgerrors.KindProvider, "tts", "Generate", "voice not found").
		WithStatusCode(404).
		WithCode("VOICE_NOT_FOUND")

	assert.Equal(t, "[tts] Generate (status 404 Not Found) [VOICE_NOT_FOUND]: voice not found", err.Error())
	assert.Equal(t, "Not Found", err.StatusMessage)
}

func TestError_NoComponentUsesKind(t *testing.T) {
	err := &pkgerrors.Error{Kind: pkgerrors.KindProtocol, Message: "unknown status code 9"}

	assert.Equal(t, "protocol: unknown status code 9", err.Error())
}

func TestError_IsMatchesByKind(t *testing.T) {
	err := pkgerrors.New(pkgerrors.KindExpiredLease, "lease", "Acquire", nil)
	wrapped := fmt.Errorf("outer: %w", err)

	assert.True(t, errors.Is(wrapped, pkgerrors.ErrExpiredLease))
	assert.False(t, errors.Is(wrapped, pkgerrors.ErrAuth))
}

func TestError_UnwrapReachesCause(t *testing.T) {
	err := pkgerrors.New(pkgerrors.KindCanceled, "streaming", "Read", context.Canceled)

	assert.True(t, errors.Is(err, context.Canceled))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, pkgerrors.KindUnknown, pkgerrors.KindOf(errors.New("plain")))
	assert.Equal(t, pkgerrors.KindUnsplittableInput,
		pkgerrors.KindOf(fmt.Errorf("x: %w", pkgerrors.Newf(pkgerrors.KindUnsplittableInput, "sentence", "Split", "too long"))))
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "max_retries_exceeded", pkgerrors.KindMaxRetriesExceeded.String())
	assert.Equal(t, "kind(99)", pkgerrors.Kind(99).String())
}

func TestNormalize(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		assert.Nil(t, pkgerrors.Normalize(nil))
	})

	t.Run("already normalized", func(t *testing.T) {
		orig := pkgerrors.Newf(pkgerrors.KindAuth, "lease", "Acquire", "denied")
		assert.Same(t, orig, pkgerrors.Normalize(fmt.Errorf("wrap: %w", orig)))
	})

	t.Run("context canceled", func(t *testing.T) {
		got := pkgerrors.Normalize(context.Canceled)
		assert.Equal(t, pkgerrors.KindCanceled, got.Kind)
	})

	t.Run("grpc unauthenticated", func(t *testing.T) {
		got := pkgerrors.Normalize(status.Error(codes.Unauthenticated, "bad lease"))
		require.NotNil(t, got)
		assert.Equal(t, pkgerrors.KindAuth, got.Kind)
		assert.Equal(t, 401, got.StatusCode)
		assert.Equal(t, "bad lease", got.Message)
		assert.Equal(t, "Unauthenticated", got.Code)
	})

	t.Run("grpc unavailable", func(t *testing.T) {
		got := pkgerrors.Normalize(status.Error(codes.Unavailable, "connection reset"))
		assert.Equal(t, pkgerrors.KindTransport, got.Kind)
		assert.Equal(t, 503, got.StatusCode)
	})

	t.Run("grpc unknown is transport", func(t *testing.T) {
		got := pkgerrors.Normalize(status.Error(codes.Unknown, "stream reset by peer"))
		assert.Equal(t, pkgerrors.KindTransport, got.Kind)
		assert.Equal(t, "Unknown", got.Code)
		assert.True(t, pkgerrors.IsRetryable(got))
	})

	t.Run("plain", func(t *testing.T) {
		got := pkgerrors.Normalize(errors.New("boom"))
		assert.Equal(t, pkgerrors.KindUnknown, got.Kind)
		assert.Equal(t, "boom", got.Message)
	})
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, pkgerrors.IsRetryable(pkgerrors.Newf(pkgerrors.KindTransport, "", "", "reset")))
	assert.True(t, pkgerrors.IsRetryable(pkgerrors.Newf(pkgerrors.KindProvider, "", "", "busy").WithStatusCode(503)))
	assert.True(t, pkgerrors.IsRetryable(pkgerrors.Newf(pkgerrors.KindProvider, "", "", "slow down").WithStatusCode(429)))
	assert.False(t, pkgerrors.IsRetryable(pkgerrors.Newf(pkgerrors.KindProvider, "", "", "bad").WithStatusCode(400)))
	assert.False(t, pkgerrors.IsRetryable(pkgerrors.Newf(pkgerrors.KindProtocol, "", "", "bad frame")))
}
