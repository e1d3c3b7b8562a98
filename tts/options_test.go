package tts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/playht/playht-go-sdk/pkg/errors"
	"github.com/playht/playht-go-sdk/pkg/testutil"
	"github.com/playht/playht-go-sdk/proto/playhtv1"
)

func TestParseVoiceEngine(t *testing.T) {
	for _, e := range Engines {
		got, err := ParseVoiceEngine(string(e))
		require.NoError(t, err)
		assert.Equal(t, e, got)
	}

	got, err := ParseVoiceEngine("playht2.0-TURBO")
	require.NoError(t, err)
	assert.Equal(t, PlayHT2Turbo, got)

	_, err = ParseVoiceEngine("PlayHT9")
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidEngine)
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"legacy ok", &PlayHT1Options{CommonOptions: CommonOptions{Voice: "v", Speed: 1.5}}, false},
		{"missing voice", &PlayHT2Options{}, true},
		{"unknown format", &PlayHT2Options{CommonOptions: CommonOptions{Voice: "v", OutputFormat: "aiff"}}, true},
		{"unknown quality", &PlayHT2Options{CommonOptions: CommonOptions{Voice: "v", Quality: "ultra"}}, true},
		{"sample rate low", &Play3Options{CommonOptions: CommonOptions{Voice: "v", SampleRate: 4000}}, true},
		{"speed high", &Play3Options{CommonOptions: CommonOptions{Voice: "v", Speed: 6}}, true},
		{"temperature high", &TurboOptions{CommonOptions: CommonOptions{Voice: "v", Temperature: testutil.Ptr(2.5)}}, true},
		{"legacy seed", &PlayHT1Options{CommonOptions: CommonOptions{Voice: "v", Seed: testutil.Ptr(7)}}, true},
		{"legacy ogg", &PlayHT1Options{CommonOptions: CommonOptions{Voice: "v", OutputFormat: FormatOGG}}, true},
		{"unknown emotion", &PlayHT2Options{CommonOptions: CommonOptions{Voice: "v"}, Emotion: "bored"}, true},
		{"voice guidance", &PlayHT2Options{CommonOptions: CommonOptions{Voice: "v"}, VoiceGuidance: testutil.Ptr(7.0)}, true},
		{"turbo ok", &TurboOptions{CommonOptions: CommonOptions{Voice: "v", Seed: testutil.Ptr(1)}, TopP: testutil.Ptr(0.9)}, false},
		{"turbo top p", &TurboOptions{CommonOptions: CommonOptions{Voice: "v"}, TopP: testutil.Ptr(1.5)}, true},
		{"fallback without custom", &TurboOptions{CommonOptions: CommonOptions{Voice: "v"}, FallbackEnabled: true}, true},
		{"play3 repetition penalty", &Play3Options{CommonOptions: CommonOptions{Voice: "v"}, RepetitionPenalty: testutil.Ptr(3.0)}, true},
		{"play3 protocol", &Play3Options{CommonOptions: CommonOptions{Voice: "v"}, Protocol: "grpc"}, true},
		{"dialog ok", &DialogOptions{CommonOptions: CommonOptions{Voice: "v"}, Voice2: "w", TurnPrefix: "A:", TurnPrefix2: "B:"}, false},
		{"dialog missing prefix", &DialogOptions{CommonOptions: CommonOptions{Voice: "v"}, Voice2: "w", TurnPrefix: "A:"}, true},
		{"dialog prefix without voice", &DialogOptions{CommonOptions: CommonOptions{Voice: "v"}, TurnPrefix2: "B:"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, pkgerrors.ErrInvalidOption)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewOptions(t *testing.T) {
	for _, e := range Engines {
		opts, err := NewOptions(e, CommonOptions{Voice: "v"})
		require.NoError(t, err)
		assert.Equal(t, e, opts.Engine())
		assert.NoError(t, opts.Validate())
	}

	_, err := NewOptions("nope", CommonOptions{Voice: "v"})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidEngine)
}

func TestWithProtocol(t *testing.T) {
	play3 := &Play3Options{CommonOptions: CommonOptions{Voice: "v"}}
	require.NoError(t, WithProtocol(play3, ProtocolWebSocket))
	assert.Equal(t, ProtocolWebSocket, play3.Protocol)

	turbo := &TurboOptions{CommonOptions: CommonOptions{Voice: "v"}}
	assert.NoError(t, WithProtocol(turbo, ProtocolHTTP))
	assert.ErrorIs(t, WithProtocol(turbo, ProtocolWebSocket), pkgerrors.ErrInvalidEngine)
}

func TestSynthesisRequest(t *testing.T) {
	body := newSynthesisRequest("Hi.", &Play3Options{
		CommonOptions:     CommonOptions{Voice: "v", OutputFormat: FormatWAV, SampleRate: 24000, Seed: testutil.Ptr(3)},
		Language:          "german",
		RepetitionPenalty: testutil.Ptr(1.2),
	})
	assert.Equal(t, "Hi.", body.Text)
	assert.Equal(t, "wav", body.OutputFormat)
	assert.Equal(t, 24000, body.SampleRate)
	assert.Equal(t, 3, *body.Seed)
	assert.Equal(t, "german", body.Language)
	assert.Equal(t, string(Play3Mini), body.VoiceEngine)
	assert.InDelta(t, 1.2, *body.RepetitionPenalty, 1e-9)
}

func TestTurboParams(t *testing.T) {
	p := turboParams("Hello.", &TurboOptions{
		CommonOptions: CommonOptions{Voice: "v", Quality: QualityHigh, OutputFormat: FormatWAV, SampleRate: 24000, Speed: 1.5},
		TopP:          testutil.Ptr(0.5),
	})
	assert.Equal(t, []string{"Hello."}, p.Text)
	require.NotNil(t, p.Quality)
	assert.Equal(t, playhtv1.QualityHigh, *p.Quality)
	assert.Equal(t, playhtv1.FormatWAV, p.Format)
	assert.Equal(t, int32(24000), *p.SampleRate)
	assert.InDelta(t, 1.5, *p.Speed, 1e-6)
	assert.InDelta(t, 0.5, *p.TopP, 1e-6)
	assert.Nil(t, p.Seed)
	assert.Nil(t, p.Temperature)
}

func TestOutputFormatMIME(t *testing.T) {
	assert.Equal(t, "audio/mpeg", OutputFormat("").mimeType())
	assert.Equal(t, "audio/wav", FormatWAV.mimeType())
	assert.Equal(t, "audio/basic", FormatMULAW.mimeType())
}
