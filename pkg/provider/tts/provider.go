// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., OpenAI speech,
// ElevenLabs, or Amazon Polly) and turns a complete piece of text into a
// single encoded audio clip. Callers receive the whole clip at once, which
// suits request/response surfaces that embed audio in a JSON payload.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
)

// MIMETypeMP3 is the content type reported for MPEG layer III clips.
const MIMETypeMP3 = "audio/mpeg"

// ErrEmptyText is returned when Synthesize is called with blank text.
var ErrEmptyText = errors.New("tts: text must not be empty")

// Voice selects the voice used for a synthesis request. Providers interpret
// ID in their own namespace (e.g., "alloy" for OpenAI, a voice_id for
// ElevenLabs, "Kajal" for Polly). An empty ID means the provider default.
type Voice struct {
	ID string

	// Language is a BCP-47 hint (e.g., "ta-IN"). Providers that cannot use it
	// ignore it.
	Language string
}

// Audio is an encoded clip returned by a provider.
type Audio struct {
	// Data holds the encoded bytes (mp3 unless MIMEType says otherwise).
	Data []byte

	// MIMEType is the IANA media type of Data (e.g., "audio/mpeg").
	MIMEType string
}

// Provider is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use. Multiple synthesis
// requests may run in parallel.
type Provider interface {
	// Synthesize converts text into a single audio clip spoken by voice.
	//
	// Returns ErrEmptyText for blank input. Any other error means the backend
	// could not produce audio; no partial clip is returned in that case.
	Synthesize(ctx context.Context, text string, voice Voice) (*Audio, error)
}
