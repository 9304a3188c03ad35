// Package explain turns a plain-text message into a structured, elderly-friendly
// Explanation by asking a language model and coercing its answer into a fixed
// shape.
//
// The engine has three outcomes. Input under the minimum length gets a fixed
// "too short" answer without a model call. A model answer that is not a valid
// object gets the fixed fail-safe answer. A failed model call is returned as
// [ErrExplanationService] so the caller can report the outage instead of
// pretending it answered.
package explain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/vilakkam/vilakkam/pkg/provider/llm"
)

// ErrExplanationService wraps any failure of the language model call itself.
var ErrExplanationService = errors.New("explain: explanation service failed")

const (
	// DefaultMinChars is the shortest trimmed input sent to the model.
	DefaultMinChars = 3

	// DefaultTemperature keeps answers close to deterministic.
	DefaultTemperature = 0.2

	// maxLoggedOutput bounds how much raw model output reaches debug logs.
	maxLoggedOutput = 2048
)

// Option configures an Engine.
type Option func(*Engine)

// WithTemperature overrides the sampling temperature.
func WithTemperature(t float64) Option {
	return func(e *Engine) {
		e.temperature = t
	}
}

// WithMaxTokens caps the answer length. Zero leaves the provider default.
func WithMaxTokens(n int) Option {
	return func(e *Engine) {
		e.maxTokens = n
	}
}

// WithMinChars sets the shortest trimmed input sent to the model.
func WithMinChars(n int) Option {
	return func(e *Engine) {
		e.minChars = n
	}
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// Engine builds the prompt, calls the model and parses its answer. It is safe
// for concurrent use.
type Engine struct {
	llm         llm.Provider
	temperature float64
	maxTokens   int
	minChars    int
	log         *slog.Logger
}

// New returns an Engine backed by p.
func New(p llm.Provider, opts ...Option) (*Engine, error) {
	if p == nil {
		return nil, errors.New("explain: llm provider must not be nil")
	}
	e := &Engine{
		llm:         p,
		temperature: DefaultTemperature,
		minChars:    DefaultMinChars,
		log:         slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Explain returns the structured explanation of text in lang. The only error
// it returns wraps ErrExplanationService.
func (e *Engine) Explain(ctx context.Context, text string, lang Language) (Result, error) {
	if utf8.RuneCountInString(strings.TrimSpace(text)) < e.minChars {
		return Result{Explanation: TooShort(), Outcome: OutcomeTooShort}, nil
	}
	if lang == "" {
		lang = DefaultLanguage
	}

	resp, err := e.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: SystemPrompt,
		Messages:     []llm.Message{{Role: "user", Content: BuildUserPrompt(text, lang)}},
		Temperature:  e.temperature,
		MaxTokens:    e.maxTokens,
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrExplanationService, err)
	}

	raw := ""
	if resp != nil {
		raw = resp.Content
	}
	e.log.DebugContext(ctx, "explain: model output", "raw", truncate(raw, maxLoggedOutput))

	exp, err := Parse(raw)
	if err != nil {
		e.log.WarnContext(ctx, "explain: unparseable model output, using fail-safe",
			"err", err, "raw", truncate(raw, maxLoggedOutput))
		return Result{Explanation: FailSafe(), Outcome: OutcomeFailSafe}, nil
	}
	return Result{Explanation: exp, Outcome: OutcomeModel}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Back off to a rune boundary.
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}
