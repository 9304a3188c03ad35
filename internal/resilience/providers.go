package resilience

import (
	"context"
	"errors"

	"github.com/vilakkam/vilakkam/pkg/provider/llm"
	"github.com/vilakkam/vilakkam/pkg/provider/stt"
	"github.com/vilakkam/vilakkam/pkg/provider/tts"
)

// LLM is an [llm.Provider] that fails over across a chain of backends.
type LLM struct {
	chain *Chain[llm.Provider]
}

var _ llm.Provider = (*LLM)(nil)

// NewLLM returns an LLM trying members in order.
func NewLLM(cfg ChainConfig, members ...Member[llm.Provider]) (*LLM, error) {
	c, err := NewChain("llm", cfg, members...)
	if err != nil {
		return nil, err
	}
	return &LLM{chain: c}, nil
}

// Complete implements llm.Provider.
func (l *LLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Call(ctx, l.chain, func(ctx context.Context, m Member[llm.Provider]) (*llm.CompletionResponse, error) {
		return m.Value.Complete(ctx, req)
	})
}

// Chain exposes the underlying chain for readiness reporting.
func (l *LLM) Chain() *Chain[llm.Provider] { return l.chain }

// STT is an [stt.Provider] that fails over across a chain of backends.
// Silence is not a backend fault and is reported without failover.
type STT struct {
	chain *Chain[stt.Provider]
}

var _ stt.Provider = (*STT)(nil)

// NewSTT returns an STT trying members in order.
func NewSTT(cfg ChainConfig, members ...Member[stt.Provider]) (*STT, error) {
	c, err := NewChain("stt", cfg, members...)
	if err != nil {
		return nil, err
	}
	return &STT{chain: c}, nil
}

// Transcribe implements stt.Provider.
func (s *STT) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	return Call(ctx, s.chain, func(ctx context.Context, m Member[stt.Provider]) (string, error) {
		text, err := m.Value.Transcribe(ctx, req)
		if errors.Is(err, stt.ErrNoSpeech) {
			return "", Permanent(err)
		}
		return text, err
	})
}

// Chain exposes the underlying chain for readiness reporting.
func (s *STT) Chain() *Chain[stt.Provider] { return s.chain }

// TTS is a [tts.Provider] that fails over across a chain of backends.
type TTS struct {
	chain *Chain[tts.Provider]
}

var _ tts.Provider = (*TTS)(nil)

// NewTTS returns a TTS trying members in order.
func NewTTS(cfg ChainConfig, members ...Member[tts.Provider]) (*TTS, error) {
	c, err := NewChain("tts", cfg, members...)
	if err != nil {
		return nil, err
	}
	return &TTS{chain: c}, nil
}

// Synthesize implements tts.Provider. Voice IDs are backend specific, so
// only the primary receives voice.ID; fallbacks use their own default voice.
func (t *TTS) Synthesize(ctx context.Context, text string, voice tts.Voice) (*tts.Audio, error) {
	primary := t.chain.links[0].name
	return Call(ctx, t.chain, func(ctx context.Context, m Member[tts.Provider]) (*tts.Audio, error) {
		v := voice
		if m.Name != primary {
			v.ID = ""
		}
		audio, err := m.Value.Synthesize(ctx, text, v)
		if errors.Is(err, tts.ErrEmptyText) {
			return nil, Permanent(err)
		}
		return audio, err
	})
}

// Chain exposes the underlying chain for readiness reporting.
func (t *TTS) Chain() *Chain[tts.Provider] { return t.chain }
