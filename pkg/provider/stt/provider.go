// Package stt defines the Provider interface for speech-to-text backends.
//
// An STT provider wraps a batch transcription service (the OpenAI
// transcription endpoint or a self-hosted whisper.cpp server) and turns one
// complete uploaded recording into text. The dictated message is always
// complete before transcription starts, so the interface is a single
// blocking call rather than a streaming session.
//
// Implementations must be safe for concurrent use and must abort the upstream
// request when ctx is cancelled.
package stt

import (
	"context"
	"errors"
)

// ErrNoSpeech is returned when the backend answered successfully but the
// transcript contains no usable text.
var ErrNoSpeech = errors.New("stt: no speech recognised")

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe converts req.Data into text. The returned text is trimmed.
	// An empty transcript is reported as ErrNoSpeech, never as ("", nil).
	Transcribe(ctx context.Context, req Request) (string, error)
}
