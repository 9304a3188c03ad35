// Package polly provides an Amazon Polly-backed TTS provider. Credentials and
// region follow the standard AWS SDK resolution chain (environment, shared
// config, instance role); the region can be pinned with WithRegion.
package polly

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"

	"github.com/vilakkam/vilakkam/pkg/provider/tts"
)

const (
	defaultRegion = "ap-south-1"
	defaultVoice  = "Kajal"
	defaultEngine = "neural"
)

// ErrThrottled is returned when Polly rejects a request with
// TooManyRequestsException.
var ErrThrottled = errors.New("polly: throttled")

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// synthClient is the subset of *polly.Client used by Provider.
type synthClient interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// Option is a functional option for configuring the Polly Provider.
type Option func(*Provider)

// WithRegion sets the AWS region. Defaults to "ap-south-1".
func WithRegion(region string) Option {
	return func(p *Provider) {
		p.region = region
	}
}

// WithDefaultVoice sets the Polly VoiceId used when a request does not name one.
func WithDefaultVoice(voice string) Option {
	return func(p *Provider) {
		p.defaultVoice = voice
	}
}

// WithEngine selects "neural" (default) or "standard".
func WithEngine(engine string) Option {
	return func(p *Provider) {
		p.engine = engine
	}
}

// withClient injects a pre-built client. Used by tests.
func withClient(c synthClient) Option {
	return func(p *Provider) {
		p.client = c
	}
}

// Provider implements tts.Provider backed by Amazon Polly.
type Provider struct {
	mu           sync.Mutex
	client       synthClient
	region       string
	defaultVoice string
	engine       string
}

// New creates a Polly provider. The AWS client is built lazily on the first
// Synthesize call so that construction never touches the network.
func New(opts ...Option) (*Provider, error) {
	p := &Provider{
		region:       defaultRegion,
		defaultVoice: defaultVoice,
		engine:       defaultEngine,
	}
	for _, o := range opts {
		o(p)
	}
	switch strings.ToLower(p.engine) {
	case "neural", "standard":
	default:
		return nil, fmt.Errorf("polly: unsupported engine %q", p.engine)
	}
	return p, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.Voice) (*tts.Audio, error) {
	if strings.TrimSpace(text) == "" {
		return nil, tts.ErrEmptyText
	}
	client, err := p.resolveClient(ctx)
	if err != nil {
		return nil, err
	}

	voiceID := voice.ID
	if voiceID == "" {
		voiceID = p.defaultVoice
	}
	engine := pollytypes.EngineStandard
	if strings.EqualFold(p.engine, "neural") {
		engine = pollytypes.EngineNeural
	}

	in := &polly.SynthesizeSpeechInput{
		Engine:       engine,
		OutputFormat: pollytypes.OutputFormatMp3,
		Text:         aws.String(text),
		TextType:     pollytypes.TextTypeText,
		VoiceId:      pollytypes.VoiceId(voiceID),
	}
	// Polly only accepts region-qualified codes such as "en-IN".
	if strings.Contains(voice.Language, "-") {
		in.LanguageCode = pollytypes.LanguageCode(voice.Language)
	}

	out, err := client.SynthesizeSpeech(ctx, in)
	if err != nil {
		return nil, classifyError(err)
	}
	if out == nil || out.AudioStream == nil {
		return nil, errors.New("polly: empty audio stream")
	}
	defer out.AudioStream.Close()

	data, err := io.ReadAll(out.AudioStream)
	if err != nil {
		return nil, fmt.Errorf("polly: read audio: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("polly: empty audio stream")
	}
	return &tts.Audio{Data: data, MIMEType: tts.MIMETypeMP3}, nil
}

// classifyError maps Polly API errors onto wrapped errors with stable prefixes.
func classifyError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "TooManyRequestsException", "ThrottlingException":
			return fmt.Errorf("%w: %s", ErrThrottled, apiErr.ErrorMessage())
		case "TextLengthExceededException", "InvalidSsmlException", "LanguageNotSupportedException":
			return fmt.Errorf("polly: rejected input (%s): %w", apiErr.ErrorCode(), err)
		}
	}
	return fmt.Errorf("polly: synthesize: %w", err)
}

func (p *Provider) resolveClient(ctx context.Context) (synthClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return p.client, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(p.region))
	if err != nil {
		return nil, fmt.Errorf("polly: load aws config: %w", err)
	}
	p.client = polly.NewFromConfig(awsCfg)
	return p.client, nil
}
