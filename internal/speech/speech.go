// Package speech attaches synthesized audio of an explanation to the
// explanation itself. Synthesis is best effort: any failure leaves the
// explanation untouched and is only logged.
package speech

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vilakkam/vilakkam/internal/explain"
	"github.com/vilakkam/vilakkam/pkg/provider/tts"
)

// ErrDisabled is returned by Synthesize when no TTS provider is configured.
var ErrDisabled = errors.New("speech: synthesis disabled")

// Option configures an Enricher.
type Option func(*Enricher)

// WithVoice sets the voice used for every clip.
func WithVoice(v tts.Voice) Option {
	return func(e *Enricher) {
		e.voice = v
	}
}

// WithTimeout bounds a single synthesis call. Zero means no extra bound
// beyond the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(e *Enricher) {
		e.timeout = d
	}
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(e *Enricher) {
		e.log = l
	}
}

// Enricher renders explanation text as speech. A nil provider yields a
// disabled Enricher whose Attach is a no-op.
type Enricher struct {
	tts     tts.Provider
	voice   tts.Voice
	timeout time.Duration
	log     *slog.Logger
}

// New returns an Enricher backed by p.
func New(p tts.Provider, opts ...Option) *Enricher {
	e := &Enricher{tts: p, log: slog.Default()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Enabled reports whether a provider is configured.
func (e *Enricher) Enabled() bool { return e != nil && e.tts != nil }

// Synthesize returns text as base64-encoded audio and its media type.
func (e *Enricher) Synthesize(ctx context.Context, text string) (audioBase64, mimeType string, err error) {
	if !e.Enabled() {
		return "", "", ErrDisabled
	}
	if strings.TrimSpace(text) == "" {
		return "", "", tts.ErrEmptyText
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	clip, err := e.tts.Synthesize(ctx, text, e.voice)
	if err != nil {
		return "", "", fmt.Errorf("speech: synthesize: %w", err)
	}
	if clip == nil || len(clip.Data) == 0 {
		return "", "", errors.New("speech: provider returned no audio")
	}
	mimeType = clip.MIMEType
	if mimeType == "" {
		mimeType = tts.MIMETypeMP3
	}
	return base64.StdEncoding.EncodeToString(clip.Data), mimeType, nil
}

// Attach synthesizes exp.Explanation and stores the audio on exp. It reports
// whether audio was attached. Failures are logged at Warn and leave every
// field of exp unchanged.
func (e *Enricher) Attach(ctx context.Context, exp *explain.Explanation) bool {
	if !e.Enabled() || exp == nil {
		return false
	}
	audio, mime, err := e.Synthesize(ctx, exp.Explanation)
	if err != nil {
		e.log.WarnContext(ctx, "speech: synthesis failed, returning text-only response", "err", err)
		return false
	}
	exp.AudioBase64 = audio
	exp.AudioMIMEType = mime
	return true
}
