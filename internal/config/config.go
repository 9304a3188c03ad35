// Package config provides the configuration schema, loader, and provider
// registry for the vilakkam server.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// RateLimitBackend selects where admission timestamps are kept.
type RateLimitBackend string

const (
	// RateLimitMemory keeps windows in process. Each replica limits on its own.
	RateLimitMemory RateLimitBackend = "memory"

	// RateLimitRedis shares windows across replicas through Redis.
	RateLimitRedis RateLimitBackend = "redis"
)

// IsValid reports whether b is a recognised backend.
func (b RateLimitBackend) IsValid() bool {
	return b == RateLimitMemory || b == RateLimitRedis
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader], which also apply defaults.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Limits     LimitsConfig     `yaml:"limits"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Explain    ExplainConfig    `yaml:"explain"`
	Speech     SpeechConfig     `yaml:"speech"`
	OCR        OCRConfig        `yaml:"ocr"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// ServerConfig holds HTTP and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on. Default ":8000".
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Default info.
	LogLevel LogLevel `yaml:"log_level"`

	// CORSOrigins lists allowed browser origins. "*" allows any. Default ["*"].
	CORSOrigins []string `yaml:"cors_origins"`

	// MaxUploadBytes caps multipart request bodies. Default 10 MiB.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// RequestTimeout bounds one API request end to end. Default 90s.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// TLS enables HTTPS when set.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// LimitsConfig holds the guardrail thresholds.
type LimitsConfig struct {
	// MaxInputChars is the longest text, in characters, sent to the model.
	// Default 2000.
	MaxInputChars int `yaml:"max_input_chars"`

	// FollowupLimit is the number of follow-up questions allowed about one
	// message. Default 5.
	FollowupLimit int `yaml:"followup_limit"`

	// MinExtractedChars is the shortest document text worth explaining.
	// Default 5.
	MinExtractedChars int `yaml:"min_extracted_chars"`

	// MinMessageChars is the shortest message sent to the model. Default 3.
	MinMessageChars int `yaml:"min_message_chars"`

	// MaxImagePixels bounds width*height of an uploaded image before it is
	// decoded. Default 40000000.
	MaxImagePixels int `yaml:"max_image_pixels"`
}

// RateLimitConfig configures per-client admission.
type RateLimitConfig struct {
	Backend     RateLimitBackend `yaml:"backend"`
	MaxRequests int              `yaml:"max_requests"`
	Window      time.Duration    `yaml:"window"`

	// PruneInterval is how often idle in-memory windows are reclaimed.
	// Default: Window.
	PruneInterval time.Duration `yaml:"prune_interval"`

	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig addresses the Redis server behind the shared limiter.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// ProvidersConfig selects the capability backends. STT and LLM are required;
// an empty TTS name disables speech.
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`
	STT ProviderEntry `yaml:"stt"`
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the configuration block shared by all provider kinds.
// Name looks up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered implementation (e.g. "openai", "polly").
	Name string `yaml:"name"`

	// APIKey authenticates against the provider's API, if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a model within the provider (e.g. "gpt-4o", "whisper-1").
	Model string `yaml:"model"`

	// Timeout bounds a single call. Zero keeps the provider default.
	Timeout time.Duration `yaml:"timeout"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`

	// Fallbacks are tried in order when this provider fails or its circuit
	// breaker is open.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// OptString returns Options[key] as a string, or "" when absent or not a
// string.
func (e ProviderEntry) OptString(key string) string {
	s, _ := e.Options[key].(string)
	return s
}

// ExplainConfig tunes the explanation call.
type ExplainConfig struct {
	// Temperature is the sampling temperature. Default 0.2.
	Temperature *float64 `yaml:"temperature"`

	// MaxTokens caps the answer length. Zero leaves it to the provider.
	MaxTokens int `yaml:"max_tokens"`
}

// SpeechConfig tunes the optional spoken rendition.
type SpeechConfig struct {
	// VoiceID is passed to the primary TTS provider. Empty uses its default.
	VoiceID string `yaml:"voice_id"`

	// Language is the voice language hint. Default "ta".
	Language string `yaml:"language"`

	// Timeout bounds synthesis so a slow provider cannot hold the response.
	// Default 20s.
	Timeout time.Duration `yaml:"timeout"`
}

// OCRConfig locates the OCR tools. The command fields accept absolute paths
// for hosts where the tools are not on PATH.
type OCRConfig struct {
	TesseractCmd    string `yaml:"tesseract_cmd"`
	PdftoppmCmd     string `yaml:"pdftoppm_cmd"`
	Languages       string `yaml:"languages"`
	DPI             int    `yaml:"dpi"`
	PageConcurrency int    `yaml:"page_concurrency"`
}

// ResilienceConfig tunes the per-provider circuit breakers.
type ResilienceConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	HalfOpenMax  int           `yaml:"half_open_max"`
}

// TelemetryConfig configures OpenTelemetry export. The service fields become
// resource attributes on every metric and span.
type TelemetryConfig struct {
	ServiceName      string `yaml:"service_name"`
	ServiceNamespace string `yaml:"service_namespace"`
	// InstanceID defaults to the host name.
	InstanceID  string `yaml:"instance_id"`
	Environment string `yaml:"environment"`
	MetricsPath string `yaml:"metrics_path"`
}
