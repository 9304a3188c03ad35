package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/vilakkam/vilakkam/internal/observe"
	"github.com/vilakkam/vilakkam/pkg/provider/llm"
	llmmock "github.com/vilakkam/vilakkam/pkg/provider/llm/mock"
	"github.com/vilakkam/vilakkam/pkg/provider/stt"
	sttmock "github.com/vilakkam/vilakkam/pkg/provider/stt/mock"
	"github.com/vilakkam/vilakkam/pkg/provider/tts"
	ttsmock "github.com/vilakkam/vilakkam/pkg/provider/tts/mock"
)

func testConfig(t *testing.T) (ChainConfig, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return ChainConfig{
		Breaker: BreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour},
		Metrics: m,
	}, reader
}

func providerErrors(t *testing.T, r *sdkmetric.ManualReader) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := r.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var n int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "vilakkam.provider.errors" {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					n += dp.Value
				}
			}
		}
	}
	return n
}

func TestNewChain_Validation(t *testing.T) {
	cfg, _ := testConfig(t)
	if _, err := NewLLM(cfg); err == nil {
		t.Error("expected error for empty chain")
	}
	p := &llmmock.Provider{}
	if _, err := NewLLM(cfg, Member[llm.Provider]{"a", p}, Member[llm.Provider]{"a", p}); err == nil {
		t.Error("expected error for duplicate names")
	}
}

func TestLLM_PrimarySuccess(t *testing.T) {
	cfg, _ := testConfig(t)
	primary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "primary"}}
	secondary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "secondary"}}

	l, err := NewLLM(cfg, Member[llm.Provider]{"openai", primary}, Member[llm.Provider]{"anyllm", secondary})
	if err != nil {
		t.Fatalf("NewLLM: %v", err)
	}
	resp, err := l.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "primary" {
		t.Errorf("content = %q, want primary", resp.Content)
	}
	if secondary.Calls() != 0 {
		t.Errorf("secondary called %d times", secondary.Calls())
	}
	if got := l.Chain().Names(); len(got) != 2 || got[0] != "openai" {
		t.Errorf("Names() = %v", got)
	}
}

func TestLLM_FailoverAndBreaker(t *testing.T) {
	cfg, reader := testConfig(t)
	primary := &llmmock.Provider{CompleteErr: errors.New("503")}
	secondary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "secondary"}}

	l, err := NewLLM(cfg, Member[llm.Provider]{"openai", primary}, Member[llm.Provider]{"anyllm", secondary})
	if err != nil {
		t.Fatalf("NewLLM: %v", err)
	}
	for range 3 {
		resp, err := l.Complete(context.Background(), llm.CompletionRequest{})
		if err != nil {
			t.Fatalf("Complete: %v", err)
		}
		if resp.Content != "secondary" {
			t.Errorf("content = %q, want secondary", resp.Content)
		}
	}
	// The breaker opens after two failures; the third call skips the primary.
	if n := primary.Calls(); n != 2 {
		t.Errorf("primary called %d times, want 2", n)
	}
	if st, _ := l.Chain().State("openai"); st != StateOpen {
		t.Errorf("primary state = %v, want open", st)
	}
	if n := providerErrors(t, reader); n != 2 {
		t.Errorf("provider errors = %d, want 2", n)
	}
}

func TestLLM_AllFailed(t *testing.T) {
	cfg, _ := testConfig(t)
	cause := errors.New("boom")
	l, err := NewLLM(cfg, Member[llm.Provider]{"openai", &llmmock.Provider{CompleteErr: cause}})
	if err != nil {
		t.Fatalf("NewLLM: %v", err)
	}
	_, err = l.Complete(context.Background(), llm.CompletionRequest{})
	if !errors.Is(err, ErrAllFailed) || !errors.Is(err, cause) {
		t.Fatalf("err = %v, want ErrAllFailed wrapping cause", err)
	}
}

func TestSTT_NoSpeechDoesNotFailOver(t *testing.T) {
	cfg, _ := testConfig(t)
	primary := &sttmock.Provider{Err: stt.ErrNoSpeech}
	secondary := &sttmock.Provider{Text: "vanakkam"}

	s, err := NewSTT(cfg, Member[stt.Provider]{"openai", primary}, Member[stt.Provider]{"whisper", secondary})
	if err != nil {
		t.Fatalf("NewSTT: %v", err)
	}
	_, err = s.Transcribe(context.Background(), stt.Request{Data: []byte("x")})
	if !errors.Is(err, stt.ErrNoSpeech) {
		t.Fatalf("err = %v, want ErrNoSpeech", err)
	}
	if IsPermanent(err) {
		t.Error("permanent marker leaked to caller")
	}
	if n := secondary.CallCount(); n != 0 {
		t.Errorf("secondary called %d times, want 0", n)
	}
}

func TestSTT_Failover(t *testing.T) {
	cfg, _ := testConfig(t)
	primary := &sttmock.Provider{Err: errors.New("timeout")}
	secondary := &sttmock.Provider{Text: "vanakkam"}

	s, err := NewSTT(cfg, Member[stt.Provider]{"openai", primary}, Member[stt.Provider]{"whisper", secondary})
	if err != nil {
		t.Fatalf("NewSTT: %v", err)
	}
	text, err := s.Transcribe(context.Background(), stt.Request{Data: []byte("x"), Language: "ta"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "vanakkam" {
		t.Errorf("text = %q", text)
	}
	if got := secondary.Calls[0].Req.Language; got != "ta" {
		t.Errorf("language = %q, want ta", got)
	}
}

func TestTTS_FallbackUsesOwnDefaultVoice(t *testing.T) {
	cfg, _ := testConfig(t)
	primary := &ttsmock.Provider{SynthesizeErr: errors.New("quota")}
	secondary := &ttsmock.Provider{SynthesizeResult: &tts.Audio{Data: []byte("mp3"), MIMEType: tts.MIMETypeMP3}}

	tt, err := NewTTS(cfg, Member[tts.Provider]{"elevenlabs", primary}, Member[tts.Provider]{"polly", secondary})
	if err != nil {
		t.Fatalf("NewTTS: %v", err)
	}
	audio, err := tt.Synthesize(context.Background(), "vanakkam", tts.Voice{ID: "eleven-voice", Language: "ta"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio.Data) != "mp3" {
		t.Errorf("audio = %q", audio.Data)
	}
	if got := primary.SynthesizeCalls[0].Voice.ID; got != "eleven-voice" {
		t.Errorf("primary voice = %q", got)
	}
	v := secondary.SynthesizeCalls[0].Voice
	if v.ID != "" || v.Language != "ta" {
		t.Errorf("fallback voice = %+v, want language only", v)
	}
}

func TestTTS_EmptyTextIsPermanent(t *testing.T) {
	cfg, _ := testConfig(t)
	primary := &ttsmock.Provider{SynthesizeErr: tts.ErrEmptyText}
	secondary := &ttsmock.Provider{}

	tt, err := NewTTS(cfg, Member[tts.Provider]{"openai", primary}, Member[tts.Provider]{"polly", secondary})
	if err != nil {
		t.Fatalf("NewTTS: %v", err)
	}
	if _, err := tt.Synthesize(context.Background(), "", tts.Voice{}); !errors.Is(err, tts.ErrEmptyText) {
		t.Fatalf("err = %v, want ErrEmptyText", err)
	}
	if secondary.CallCount() != 0 {
		t.Error("secondary was tried")
	}
}
