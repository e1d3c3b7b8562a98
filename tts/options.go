package tts

import (
	"slices"

	"github.com/playht/playht-go-sdk/congestion"
	pkgerrors "github.com/playht/playht-go-sdk/pkg/errors"
	"github.com/playht/playht-go-sdk/proto/playhtv1"
)

// OutputFormat is the audio container of the result.
type OutputFormat string

// Output formats.
const (
	FormatMP3   OutputFormat = "mp3"
	FormatWAV   OutputFormat = "wav"
	FormatOGG   OutputFormat = "ogg"
	FormatFLAC  OutputFormat = "flac"
	FormatMULAW OutputFormat = "mulaw"
	FormatRaw   OutputFormat = "raw"
)

var formats = []OutputFormat{FormatMP3, FormatWAV, FormatOGG, FormatFLAC, FormatMULAW, FormatRaw}

func (f OutputFormat) orDefault() OutputFormat {
	if f == "" {
		return FormatMP3
	}
	return f
}

func (f OutputFormat) mimeType() string {
	switch f.orDefault() {
	case FormatWAV:
		return "audio/wav"
	case FormatOGG:
		return "audio/ogg"
	case FormatFLAC:
		return "audio/flac"
	case FormatMULAW:
		return "audio/basic"
	case FormatRaw:
		return "audio/L16"
	}
	return "audio/mpeg"
}

func (f OutputFormat) proto() playhtv1.Format {
	switch f.orDefault() {
	case FormatWAV:
		return playhtv1.FormatWAV
	case FormatOGG:
		return playhtv1.FormatOGG
	case FormatFLAC:
		return playhtv1.FormatFLAC
	case FormatMULAW:
		return playhtv1.FormatMULAW
	case FormatRaw:
		return playhtv1.FormatRaw
	}
	return playhtv1.FormatMP3
}

// Quality is the requested synthesis quality.
type Quality string

// Quality levels.
const (
	QualityDraft   Quality = "draft"
	QualityLow     Quality = "low"
	QualityMedium  Quality = "medium"
	QualityHigh    Quality = "high"
	QualityPremium Quality = "premium"
)

var qualities = []Quality{QualityDraft, QualityLow, QualityMedium, QualityHigh, QualityPremium}

func (q Quality) proto() *playhtv1.Quality {
	i := slices.Index(qualities, q)
	if i < 0 {
		return nil
	}
	v := playhtv1.Quality(i)
	return &v
}

// Emotion is a PlayHT2.0 emotion preset.
type Emotion string

var emotions = []Emotion{
	"female_happy", "female_sad", "female_angry", "female_fearful", "female_disgust", "female_surprised",
	"male_happy", "male_sad", "male_angry", "male_fearful", "male_disgust", "male_surprised",
}

// Protocol selects how the inference engines deliver audio.
type Protocol string

// Protocols.
const (
	ProtocolHTTP      Protocol = "http"
	ProtocolWebSocket Protocol = "ws"
)

// Options configures one call. Exactly one variant exists per engine.
type Options interface {
	Engine() VoiceEngine
	Validate() error
	common() *CommonOptions
}

// CommonOptions are accepted by every engine.
type CommonOptions struct {
	Voice        string
	OutputFormat OutputFormat
	SampleRate   int
	Speed        float64
	Quality      Quality
	Seed         *int
	Temperature  *float64
}

func (c *CommonOptions) common() *CommonOptions { return c }

func invalid(op, format string, args ...any) *pkgerrors.Error {
	return pkgerrors.Newf(pkgerrors.KindInvalidOption, component, op, format, args...)
}

func (c *CommonOptions) validate(engine VoiceEngine) error {
	if c.Voice == "" {
		return invalid("Validate", "%s: voice is required", engine)
	}
	if c.OutputFormat != "" && !slices.Contains(formats, c.OutputFormat) {
		return invalid("Validate", "%s: unknown output format %q", engine, c.OutputFormat)
	}
	if c.Quality != "" && !slices.Contains(qualities, c.Quality) {
		return invalid("Validate", "%s: unknown quality %q", engine, c.Quality)
	}
	if c.SampleRate != 0 && (c.SampleRate < 8000 || c.SampleRate > 48000) {
		return invalid("Validate", "%s: sample rate %d outside 8000..48000", engine, c.SampleRate)
	}
	if c.Speed != 0 && (c.Speed < 0.1 || c.Speed > 5) {
		return invalid("Validate", "%s: speed %.2f outside 0.1..5", engine, c.Speed)
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return invalid("Validate", "%s: temperature %.2f outside 0..2", engine, *c.Temperature)
	}
	return nil
}

func checkRange(engine VoiceEngine, name string, v *float64, lo, hi float64) error {
	if v != nil && (*v < lo || *v > hi) {
		return invalid("Validate", "%s: %s %.2f outside %g..%g", engine, name, *v, lo, hi)
	}
	return nil
}

// PlayHT1Options configures the legacy engine.
type PlayHT1Options struct {
	CommonOptions
	NarrationStyle string
	TrimSilence    bool
}

// Engine implements Options.
func (o *PlayHT1Options) Engine() VoiceEngine { return PlayHT1 }

// Validate implements Options.
func (o *PlayHT1Options) Validate() error {
	if err := o.validate(PlayHT1); err != nil {
		return err
	}
	if o.Seed != nil || o.Temperature != nil {
		return invalid("Validate", "%s does not support seed or temperature", PlayHT1)
	}
	if o.OutputFormat != "" && o.OutputFormat != FormatMP3 && o.OutputFormat != FormatWAV {
		return invalid("Validate", "%s supports only mp3 and wav output", PlayHT1)
	}
	return nil
}

// PlayHT2Options configures the SSE engine.
type PlayHT2Options struct {
	CommonOptions
	Emotion       Emotion
	VoiceGuidance *float64
	StyleGuidance *float64
}

// Engine implements Options.
func (o *PlayHT2Options) Engine() VoiceEngine { return PlayHT2 }

// Validate implements Options.
func (o *PlayHT2Options) Validate() error {
	if err := o.validate(PlayHT2); err != nil {
		return err
	}
	if o.Emotion != "" && !slices.Contains(emotions, o.Emotion) {
		return invalid("Validate", "%s: unknown emotion %q", PlayHT2, o.Emotion)
	}
	if err := checkRange(PlayHT2, "voice guidance", o.VoiceGuidance, 1, 6); err != nil {
		return err
	}
	return checkRange(PlayHT2, "style guidance", o.StyleGuidance, 1, 30)
}

// TurboOptions configures the streaming RPC engine.
type TurboOptions struct {
	CommonOptions
	TextGuidance  *float64
	TopP          *float64
	VoiceGuidance *float64
	StyleGuidance *float64

	// CustomAddress replaces the inference address carried by the lease.
	CustomAddress string
	// FallbackEnabled falls back to the lease's address when CustomAddress fails.
	FallbackEnabled bool
	// Congestion overrides the client's congestion control for this call.
	Congestion *congestion.Algorithm
}

// Engine implements Options.
func (o *TurboOptions) Engine() VoiceEngine { return PlayHT2Turbo }

// Validate implements Options.
func (o *TurboOptions) Validate() error {
	if err := o.validate(PlayHT2Turbo); err != nil {
		return err
	}
	if o.FallbackEnabled && o.CustomAddress == "" {
		return invalid("Validate", "%s: fallback requires a custom address", PlayHT2Turbo)
	}
	for _, r := range []struct {
		name   string
		v      *float64
		lo, hi float64
	}{
		{"text guidance", o.TextGuidance, 0, 2},
		{"top p", o.TopP, 0, 1},
		{"voice guidance", o.VoiceGuidance, 1, 6},
		{"style guidance", o.StyleGuidance, 1, 30},
	} {
		if err := checkRange(PlayHT2Turbo, r.name, r.v, r.lo, r.hi); err != nil {
			return err
		}
	}
	return nil
}

// Play3Options configures Play3.0-mini.
type Play3Options struct {
	CommonOptions
	Language          string
	Protocol          Protocol
	VoiceGuidance     *float64
	StyleGuidance     *float64
	TextGuidance      *float64
	RepetitionPenalty *float64
}

// Engine implements Options.
func (o *Play3Options) Engine() VoiceEngine { return Play3Mini }

// Validate implements Options.
func (o *Play3Options) Validate() error {
	if err := o.validate(Play3Mini); err != nil {
		return err
	}
	if err := validateProtocol(Play3Mini, o.Protocol); err != nil {
		return err
	}
	for _, r := range []struct {
		name   string
		v      *float64
		lo, hi float64
	}{
		{"voice guidance", o.VoiceGuidance, 1, 6},
		{"style guidance", o.StyleGuidance, 1, 30},
		{"text guidance", o.TextGuidance, 1, 2},
		{"repetition penalty", o.RepetitionPenalty, 1, 2},
	} {
		if err := checkRange(Play3Mini, r.name, r.v, r.lo, r.hi); err != nil {
			return err
		}
	}
	return nil
}

// DialogOptions configures PlayDialog. Two-speaker dialog needs Voice2 and
// both turn prefixes.
type DialogOptions struct {
	CommonOptions
	Language    string
	Protocol    Protocol
	Voice2      string
	TurnPrefix  string
	TurnPrefix2 string
}

// Engine implements Options.
func (o *DialogOptions) Engine() VoiceEngine { return PlayDialog }

// Validate implements Options.
func (o *DialogOptions) Validate() error {
	if err := o.validate(PlayDialog); err != nil {
		return err
	}
	if err := validateProtocol(PlayDialog, o.Protocol); err != nil {
		return err
	}
	if o.Voice2 != "" && (o.TurnPrefix == "" || o.TurnPrefix2 == "") {
		return invalid("Validate", "%s: a second voice requires both turn prefixes", PlayDialog)
	}
	if o.Voice2 == "" && o.TurnPrefix2 != "" {
		return invalid("Validate", "%s: second turn prefix given without a second voice", PlayDialog)
	}
	return nil
}

func validateProtocol(engine VoiceEngine, p Protocol) error {
	if p != "" && p != ProtocolHTTP && p != ProtocolWebSocket {
		return invalid("Validate", "%s: unknown protocol %q", engine, p)
	}
	return nil
}

// NewOptions returns the options variant for engine with common fields set.
// It is a convenience for callers that select the engine at runtime.
func NewOptions(engine VoiceEngine, common CommonOptions) (Options, error) {
	switch engine {
	case PlayHT1:
		return &PlayHT1Options{CommonOptions: common}, nil
	case PlayHT2:
		return &PlayHT2Options{CommonOptions: common}, nil
	case PlayHT2Turbo:
		return &TurboOptions{CommonOptions: common}, nil
	case Play3Mini:
		return &Play3Options{CommonOptions: common}, nil
	case PlayDialog:
		return &DialogOptions{CommonOptions: common}, nil
	}
	return nil, pkgerrors.Newf(pkgerrors.KindInvalidEngine, component, "NewOptions",
		"unknown voice engine %q", engine)
}

// WithProtocol sets the delivery protocol on opts. Only the inference
// engines support a protocol other than HTTP.
func WithProtocol(opts Options, p Protocol) error {
	switch o := opts.(type) {
	case *Play3Options:
		o.Protocol = p
	case *DialogOptions:
		o.Protocol = p
	default:
		if p != "" && p != ProtocolHTTP {
			return pkgerrors.Newf(pkgerrors.KindInvalidEngine, component, "WithProtocol",
				"%s does not support the %s protocol", opts.Engine(), p)
		}
	}
	return nil
}
