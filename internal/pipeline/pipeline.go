// Package pipeline wires admission control, normalization, guardrails,
// explanation and speech enrichment into the three operations the transport
// layer exposes: ExplainText, ExplainAudio and ExplainFile.
//
// Every failure is returned as an *Error whose Message is safe to show to the
// user. Speech synthesis never fails an operation; a response without audio
// is still complete.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vilakkam/vilakkam/internal/explain"
	"github.com/vilakkam/vilakkam/internal/guardrail"
	"github.com/vilakkam/vilakkam/internal/normalize"
	"github.com/vilakkam/vilakkam/internal/observe"
	"github.com/vilakkam/vilakkam/internal/ratelimit"
	"github.com/vilakkam/vilakkam/internal/speech"
)

// DefaultMinExtractedChars is the shortest trimmed document text worth
// explaining.
const DefaultMinExtractedChars = 5

// Config holds the collaborators of a Pipeline. Speech and Metrics are
// optional.
type Config struct {
	Limiter    ratelimit.Limiter
	Normalizer *normalize.Normalizer
	Guard      *guardrail.Policy
	Engine     *explain.Engine
	Speech     *speech.Enricher
	Metrics    *observe.Metrics

	// MinExtractedChars defaults to DefaultMinExtractedChars.
	MinExtractedChars int
}

// Pipeline runs requests through every stage. It holds no per-request state
// and is safe for concurrent use.
type Pipeline struct {
	limiter      ratelimit.Limiter
	normalizer   *normalize.Normalizer
	guard        *guardrail.Policy
	engine       *explain.Engine
	speech       *speech.Enricher
	metrics      *observe.Metrics
	minExtracted int
}

// New validates cfg and returns a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	var errs []error
	if cfg.Limiter == nil {
		errs = append(errs, errors.New("pipeline: limiter must not be nil"))
	}
	if cfg.Normalizer == nil {
		errs = append(errs, errors.New("pipeline: normalizer must not be nil"))
	}
	if cfg.Guard == nil {
		errs = append(errs, errors.New("pipeline: guard must not be nil"))
	}
	if cfg.Engine == nil {
		errs = append(errs, errors.New("pipeline: engine must not be nil"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	p := &Pipeline{
		limiter:      cfg.Limiter,
		normalizer:   cfg.Normalizer,
		guard:        cfg.Guard,
		engine:       cfg.Engine,
		speech:       cfg.Speech,
		metrics:      cfg.Metrics,
		minExtracted: cfg.MinExtractedChars,
	}
	if p.speech == nil {
		p.speech = speech.New(nil)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	if p.minExtracted <= 0 {
		p.minExtracted = DefaultMinExtractedChars
	}
	return p, nil
}

// AudioInput is a recorded question, optionally a follow-up about an earlier
// message.
type AudioInput struct {
	Data        []byte
	Filename    string
	ContentType string
	Language    explain.Language

	// Context is the original message being discussed. When blank the
	// transcript is explained on its own.
	Context string

	// History is the prior conversation, one turn per line.
	History string
}

// FileInput is an uploaded PDF or image.
type FileInput struct {
	Data        []byte
	Filename    string
	ContentType string
	Language    explain.Language
}

// ExplainText explains typed text for the client identified by key.
func (p *Pipeline) ExplainText(ctx context.Context, key, text string, lang explain.Language) (_ explain.Explanation, err error) {
	ctx, done := p.begin(ctx, "explain_text")
	defer func() { err = done(err) }()

	if err := p.admit(ctx, key); err != nil {
		return explain.Explanation{}, err
	}
	if err := p.guard.Check(text); err != nil {
		return explain.Explanation{}, err
	}

	exp, err := p.explain(ctx, text, lang)
	if err != nil {
		return explain.Explanation{}, err
	}
	p.attachSpeech(ctx, &exp)
	exp.SourceText = text
	return exp, nil
}

// ExplainAudio transcribes a spoken question and explains it. With a Context
// the transcript is asked as a follow-up about that message.
func (p *Pipeline) ExplainAudio(ctx context.Context, key string, in AudioInput) (_ explain.Explanation, err error) {
	ctx, done := p.begin(ctx, "explain_audio")
	defer func() { err = done(err) }()

	if err := p.admit(ctx, key); err != nil {
		return explain.Explanation{}, err
	}

	res, err := p.stage(ctx, "transcribe", func(ctx context.Context) (normalize.Result, error) {
		start := time.Now()
		defer func() { p.metrics.STTDuration.Record(ctx, time.Since(start).Seconds()) }()
		return p.normalizer.FromAudio(ctx, in.Data, in.Filename, in.ContentType)
	})
	if err != nil {
		return explain.Explanation{}, err
	}
	p.metrics.RecordExtraction(ctx, string(res.Provenance))
	transcript := res.Text

	prompt := transcript
	if cp, ok := guardrail.Compose(in.Context, in.History, transcript); ok {
		if err := p.guard.CheckPrompt(cp); err != nil {
			return explain.Explanation{}, err
		}
		prompt = cp.Render()
	} else if err := p.guard.Check(prompt); err != nil {
		return explain.Explanation{}, err
	}

	exp, err := p.explain(ctx, prompt, in.Language)
	if err != nil {
		return explain.Explanation{}, err
	}
	p.attachSpeech(ctx, &exp)
	exp.SourceText = transcript
	return exp, nil
}

// ExplainFile extracts the text of an uploaded document and explains it.
// Documents with too little readable text get a fixed "send a clearer file"
// answer without a model call.
func (p *Pipeline) ExplainFile(ctx context.Context, key string, in FileInput) (_ explain.Explanation, err error) {
	ctx, done := p.begin(ctx, "explain_file")
	defer func() { err = done(err) }()

	if err := p.admit(ctx, key); err != nil {
		return explain.Explanation{}, err
	}

	res, err := p.stage(ctx, "extract", func(ctx context.Context) (normalize.Result, error) {
		start := time.Now()
		defer func() { p.metrics.ExtractionDuration.Record(ctx, time.Since(start).Seconds()) }()
		return p.normalizer.FromDocument(ctx, in.Data, in.Filename, in.ContentType)
	})
	if err != nil {
		return explain.Explanation{}, err
	}
	p.metrics.RecordExtraction(ctx, string(res.Provenance))

	text := res.Text
	if utf8.RuneCountInString(strings.TrimSpace(text)) < p.minExtracted {
		observe.Logger(ctx).InfoContext(ctx, "pipeline: document yielded too little text",
			"provenance", res.Provenance, "chars", utf8.RuneCountInString(text))
		p.metrics.RecordExplanationOutcome(ctx, "unreadable")
		return explain.Unreadable(), nil
	}
	if err := p.guard.CheckLength(text); err != nil {
		return explain.Explanation{}, err
	}

	exp, err := p.explain(ctx, text, in.Language)
	if err != nil {
		return explain.Explanation{}, err
	}
	p.attachSpeech(ctx, &exp)
	exp.SourceText = text
	return exp, nil
}

// begin opens the operation span and returns a finisher that classifies the
// error, records metrics and ends the span.
func (p *Pipeline) begin(ctx context.Context, op string) (context.Context, func(error) error) {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, observe.PipelineSpanName(op))
	p.metrics.ActiveRequests.Add(ctx, 1)

	return ctx, func(err error) error {
		defer span.End()
		defer p.metrics.ActiveRequests.Add(ctx, -1)

		if err == nil {
			p.metrics.RecordPipeline(ctx, op, "ok", start)
			return nil
		}
		pe := classify(err, p.guard.FollowupLimit(), emptyMessage(op))
		p.metrics.RecordPipeline(ctx, op, pe.Kind.String(), start)
		span.SetAttributes(observe.AttrErrorKind.String(pe.Kind.String()))
		span.SetStatus(codes.Error, pe.Kind.String())
		if isPolicy(pe.Kind) {
			p.metrics.RecordRejection(ctx, pe.Kind.String())
			observe.Logger(ctx).InfoContext(ctx, "pipeline: request rejected", "op", op, "kind", pe.Kind.String(), "err", pe.Err)
		} else {
			observe.Logger(ctx).ErrorContext(ctx, "pipeline: request failed", "op", op, "kind", pe.Kind.String(), "err", pe.Err)
		}
		return pe
	}
}

func (p *Pipeline) admit(ctx context.Context, key string) error {
	if key == "" {
		key = "unknown"
	}
	if !p.limiter.Allow(ctx, key) {
		return ErrRateLimited
	}
	return nil
}

func (p *Pipeline) explain(ctx context.Context, text string, lang explain.Language) (explain.Explanation, error) {
	ctx, span := observe.StartSpan(ctx, observe.PipelineSpanName("explain"))
	defer span.End()

	start := time.Now()
	res, err := p.engine.Explain(ctx, text, lang)
	if err != nil {
		p.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
		span.RecordError(err)
		return explain.Explanation{}, err
	}
	if res.Outcome != explain.OutcomeTooShort {
		p.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	}
	p.metrics.RecordExplanationOutcome(ctx, res.Outcome.String())
	span.SetAttributes(
		observe.AttrOutcome.String(res.Outcome.String()),
		observe.AttrUrgency.String(string(res.Explanation.Urgency)),
	)
	return res.Explanation, nil
}

func (p *Pipeline) attachSpeech(ctx context.Context, exp *explain.Explanation) {
	if !p.speech.Enabled() {
		return
	}
	ctx, span := observe.StartSpan(ctx, observe.PipelineSpanName("speech"))
	defer span.End()

	start := time.Now()
	ok := p.speech.Attach(ctx, exp)
	p.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	p.metrics.RecordSpeechAttachment(ctx, ok)
	span.SetAttributes(observe.AttrAudioAttached.Bool(ok))
}

// stage runs fn inside a child span named after the stage.
func (p *Pipeline) stage(ctx context.Context, name string, fn func(context.Context) (normalize.Result, error)) (normalize.Result, error) {
	ctx, span := observe.StartSpan(ctx, observe.PipelineSpanName(name), trace.WithAttributes(observe.AttrStage.String(name)))
	defer span.End()

	res, err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		return res, err
	}
	span.SetAttributes(observe.AttrProvenance.String(string(res.Provenance)))
	return res, nil
}

func emptyMessage(op string) string {
	if op == "explain_audio" {
		return msgEmptyAudio
	}
	return msgEmptyFile
}

func isPolicy(k Kind) bool {
	switch k {
	case KindRateLimited, KindInputTooLarge, KindTooManyFollowups, KindEmptyInput, KindUnsupportedType:
		return true
	}
	return false
}
