package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// [Validate] warns about names not listed here.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"openai", "whisper", "deepgram"},
	"tts": {"openai", "elevenlabs", "polly"},
}

// Defaults.
const (
	DefaultListenAddr        = ":8000"
	DefaultMaxUploadBytes    = 10 << 20
	DefaultRequestTimeout    = 90 * time.Second
	DefaultMaxInputChars     = 2000
	DefaultFollowupLimit     = 5
	DefaultMinExtractedChars = 5
	DefaultMinMessageChars   = 3
	DefaultMaxImagePixels    = 40_000_000
	DefaultMaxRequests       = 5
	DefaultWindow            = 60 * time.Second
	DefaultRedisKeyPrefix    = "vilakkam:ratelimit:"
	DefaultTemperature       = 0.2
	DefaultSpeechLanguage    = "ta"
	DefaultSpeechTimeout     = 20 * time.Second
	DefaultTesseractCmd      = "tesseract"
	DefaultPdftoppmCmd       = "pdftoppm"
	DefaultOCRLanguages      = "eng"
	DefaultOCRDPI            = 200
	DefaultPageConcurrency   = 4
	DefaultServiceName       = "vilakkam"
	DefaultMetricsPath       = "/metrics"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader expands ${VAR} references, decodes a YAML config from r,
// applies defaults and validates the result. An empty document yields the
// defaults, which fail validation only for the required providers.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(ExpandEnv(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv replaces ${VAR} and ${VAR:-default} with values from the
// environment. A bare $VAR is left alone so literal dollars survive.
func ExpandEnv(raw []byte) []byte {
	return envRef.ReplaceAllFunc(raw, func(m []byte) []byte {
		sub := envRef.FindSubmatch(m)
		if v, ok := os.LookupEnv(string(sub[1])); ok && v != "" {
			return []byte(v)
		}
		return sub[2]
	})
}

// ApplyDefaults fills every unset field of cfg.
func ApplyDefaults(cfg *Config) {
	s := &cfg.Server
	if s.ListenAddr == "" {
		s.ListenAddr = DefaultListenAddr
	}
	if s.LogLevel == "" {
		s.LogLevel = LogInfo
	}
	if len(s.CORSOrigins) == 0 {
		s.CORSOrigins = []string{"*"}
	}
	if s.MaxUploadBytes == 0 {
		s.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if s.RequestTimeout == 0 {
		s.RequestTimeout = DefaultRequestTimeout
	}

	l := &cfg.Limits
	if l.MaxInputChars == 0 {
		l.MaxInputChars = DefaultMaxInputChars
	}
	if l.FollowupLimit == 0 {
		l.FollowupLimit = DefaultFollowupLimit
	}
	if l.MinExtractedChars == 0 {
		l.MinExtractedChars = DefaultMinExtractedChars
	}
	if l.MinMessageChars == 0 {
		l.MinMessageChars = DefaultMinMessageChars
	}
	if l.MaxImagePixels == 0 {
		l.MaxImagePixels = DefaultMaxImagePixels
	}

	rl := &cfg.RateLimit
	if rl.Backend == "" {
		rl.Backend = RateLimitMemory
	}
	if rl.MaxRequests == 0 {
		rl.MaxRequests = DefaultMaxRequests
	}
	if rl.Window == 0 {
		rl.Window = DefaultWindow
	}
	if rl.PruneInterval == 0 {
		rl.PruneInterval = rl.Window
	}
	if rl.Redis.KeyPrefix == "" {
		rl.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}

	if cfg.Explain.Temperature == nil {
		t := DefaultTemperature
		cfg.Explain.Temperature = &t
	}

	if cfg.Speech.Language == "" {
		cfg.Speech.Language = DefaultSpeechLanguage
	}
	if cfg.Speech.Timeout == 0 {
		cfg.Speech.Timeout = DefaultSpeechTimeout
	}

	o := &cfg.OCR
	if o.TesseractCmd == "" {
		o.TesseractCmd = DefaultTesseractCmd
	}
	if o.PdftoppmCmd == "" {
		o.PdftoppmCmd = DefaultPdftoppmCmd
	}
	if o.Languages == "" {
		o.Languages = DefaultOCRLanguages
	}
	if o.DPI == 0 {
		o.DPI = DefaultOCRDPI
	}
	if o.PageConcurrency == 0 {
		o.PageConcurrency = DefaultPageConcurrency
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = DefaultServiceName
	}
	if cfg.Telemetry.MetricsPath == "" {
		cfg.Telemetry.MetricsPath = DefaultMetricsPath
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing every problem found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.MaxUploadBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes %d must be positive", cfg.Server.MaxUploadBytes))
	}
	if cfg.Server.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.request_timeout %v must be positive", cfg.Server.RequestTimeout))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	for _, f := range []struct {
		name string
		v    int
	}{
		{"limits.max_input_chars", cfg.Limits.MaxInputChars},
		{"limits.followup_limit", cfg.Limits.FollowupLimit},
		{"limits.min_extracted_chars", cfg.Limits.MinExtractedChars},
		{"limits.min_message_chars", cfg.Limits.MinMessageChars},
		{"limits.max_image_pixels", cfg.Limits.MaxImagePixels},
		{"rate_limit.max_requests", cfg.RateLimit.MaxRequests},
		{"ocr.page_concurrency", cfg.OCR.PageConcurrency},
	} {
		if f.v < 0 {
			errs = append(errs, fmt.Errorf("%s %d must be positive", f.name, f.v))
		}
	}
	if cfg.Limits.MinMessageChars > cfg.Limits.MaxInputChars {
		errs = append(errs, fmt.Errorf("limits.min_message_chars %d exceeds limits.max_input_chars %d",
			cfg.Limits.MinMessageChars, cfg.Limits.MaxInputChars))
	}

	rl := cfg.RateLimit
	if !rl.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("rate_limit.backend %q is invalid; valid values: memory, redis", rl.Backend))
	}
	if rl.Window < 0 {
		errs = append(errs, fmt.Errorf("rate_limit.window %v must be positive", rl.Window))
	}
	if rl.Backend == RateLimitRedis && rl.Redis.Addr == "" {
		errs = append(errs, errors.New("rate_limit.redis.addr is required when backend is redis"))
	}

	errs = append(errs, validateEntry("providers.llm", "llm", cfg.Providers.LLM, true)...)
	errs = append(errs, validateEntry("providers.stt", "stt", cfg.Providers.STT, true)...)
	errs = append(errs, validateEntry("providers.tts", "tts", cfg.Providers.TTS, false)...)
	if cfg.Providers.TTS.Name == "" {
		slog.Info("providers.tts is not configured; responses will be text-only")
	}

	if t := cfg.Explain.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, fmt.Errorf("explain.temperature %.2f is out of range [0, 2]", *t))
	}
	if cfg.Explain.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("explain.max_tokens %d must be positive", cfg.Explain.MaxTokens))
	}
	if cfg.Speech.Timeout < 0 {
		errs = append(errs, fmt.Errorf("speech.timeout %v must be positive", cfg.Speech.Timeout))
	}

	if cfg.OCR.DPI != 0 && (cfg.OCR.DPI < 72 || cfg.OCR.DPI > 600) {
		errs = append(errs, fmt.Errorf("ocr.dpi %d is out of range [72, 600]", cfg.OCR.DPI))
	}

	if cfg.Resilience.MaxFailures < 0 || cfg.Resilience.HalfOpenMax < 0 || cfg.Resilience.ResetTimeout < 0 {
		errs = append(errs, errors.New("resilience values must not be negative"))
	}

	if p := cfg.Telemetry.MetricsPath; p != "" && !strings.HasPrefix(p, "/") {
		errs = append(errs, fmt.Errorf("telemetry.metrics_path %q must start with /", p))
	}

	return errors.Join(errs...)
}

func validateEntry(path, kind string, e ProviderEntry, required bool) []error {
	var errs []error
	if e.Name == "" {
		if required {
			errs = append(errs, fmt.Errorf("%s.name is required", path))
		}
		if len(e.Fallbacks) > 0 {
			errs = append(errs, fmt.Errorf("%s.fallbacks set without a primary provider", path))
		}
		return errs
	}
	warnUnknownProvider(kind, e.Name)
	if e.Timeout < 0 {
		errs = append(errs, fmt.Errorf("%s.timeout %v must be positive", path, e.Timeout))
	}

	seen := map[string]int{e.Name: -1}
	for i, fb := range e.Fallbacks {
		prefix := fmt.Sprintf("%s.fallbacks[%d]", path, i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		if len(fb.Fallbacks) > 0 {
			errs = append(errs, fmt.Errorf("%s.fallbacks must not be nested", prefix))
		}
		if _, dup := seen[fb.Name]; dup {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate", prefix, fb.Name))
		}
		seen[fb.Name] = i
		warnUnknownProvider(kind, fb.Name)
	}
	return errs
}

// warnUnknownProvider logs a warning if name is not listed in
// [ValidProviderNames] for kind.
func warnUnknownProvider(kind, name string) {
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
