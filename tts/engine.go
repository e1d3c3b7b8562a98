// Package tts is the PlayHT client: one entry point for streaming and
// file-based speech across every voice engine.
package tts

import (
	"strings"

	pkgerrors "github.com/playht/playht-go-sdk/pkg/errors"
)

// VoiceEngine identifies a PlayHT backend.
type VoiceEngine string

// Voice engines.
const (
	PlayHT1      VoiceEngine = "PlayHT1.0"
	PlayHT2      VoiceEngine = "PlayHT2.0"
	PlayHT2Turbo VoiceEngine = "PlayHT2.0-turbo"
	Play3Mini    VoiceEngine = "Play3.0-mini"
	PlayDialog   VoiceEngine = "PlayDialog"
)

// Engines lists every supported engine.
var Engines = []VoiceEngine{PlayHT1, PlayHT2, PlayHT2Turbo, Play3Mini, PlayDialog}

// ParseVoiceEngine parses an engine name, ignoring case.
func ParseVoiceEngine(s string) (VoiceEngine, error) {
	for _, e := range Engines {
		if strings.EqualFold(s, string(e)) {
			return e, nil
		}
	}
	return "", pkgerrors.Newf(pkgerrors.KindInvalidEngine, component, "ParseVoiceEngine",
		"unknown voice engine %q", s)
}

// usesCoordinates reports whether the engine authenticates with inference
// coordinates rather than API keys or leases.
func (e VoiceEngine) usesCoordinates() bool {
	return e == Play3Mini || e == PlayDialog
}
