package config_test

import (
	"strings"
	"testing"

	"github.com/vilakkam/vilakkam/internal/config"
)

const minimalProviders = `
providers:
  llm: {name: openai}
  stt: {name: openai}
`

func TestValidate_RequiredProviders(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(`server: {log_level: info}`))
	if err == nil {
		t.Fatal("expected error without providers")
	}
	for _, want := range []string{"providers.llm.name is required", "providers.stt.name is required"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q, got: %v", want, err)
		}
	}
	if strings.Contains(err.Error(), "providers.tts") {
		t.Errorf("tts is optional, got: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"log level", "server: {log_level: verbose}", "server.log_level"},
		{"backend", "rate_limit: {backend: memcached}", "rate_limit.backend"},
		{"redis addr", "rate_limit: {backend: redis}", "rate_limit.redis.addr"},
		{"negative limit", "limits: {max_input_chars: -1}", "limits.max_input_chars"},
		{"min above max", "limits: {max_input_chars: 2, min_message_chars: 3}", "limits.min_message_chars"},
		{"temperature", "explain: {temperature: 3}", "explain.temperature"},
		{"dpi", "ocr: {dpi: 20}", "ocr.dpi"},
		{"metrics path", "telemetry: {metrics_path: metrics}", "telemetry.metrics_path"},
		{"tls", "server: {tls: {cert_file: a.pem}}", "server.tls"},
		{"tts fallbacks without primary", "providers: {llm: {name: openai}, stt: {name: openai}, tts: {fallbacks: [{name: polly}]}}", "providers.tts.fallbacks"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			doc := tc.yaml
			if !strings.HasPrefix(doc, "providers:") {
				doc += "\n" + minimalProviders
			}
			_, err := config.LoadFromReader(strings.NewReader(doc))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error should mention %q, got: %v", tc.want, err)
			}
		})
	}
}

func TestValidate_FallbackDuplicatesAndNesting(t *testing.T) {
	t.Parallel()
	doc := `
providers:
  stt: {name: openai}
  llm:
    name: openai
    fallbacks:
      - name: openai
      - name: anthropic
        fallbacks: [{name: groq}]
`
	_, err := config.LoadFromReader(strings.NewReader(doc))
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"duplicate", "must not be nested"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q, got: %v", want, err)
		}
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("server: {log_level: loud}\nrate_limit: {backend: x}\n"))
	if err == nil {
		t.Fatal("expected validation error")
	}
	if n := strings.Count(err.Error(), "\n") + 1; n < 4 {
		t.Errorf("got %d errors, want at least 4: %v", n, err)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("VILAKKAM_TEST_KEY", "sk-from-env")
	t.Setenv("VILAKKAM_TEST_EMPTY", "")

	tests := []struct {
		in, want string
	}{
		{"api_key: ${VILAKKAM_TEST_KEY}", "api_key: sk-from-env"},
		{"api_key: ${VILAKKAM_TEST_UNSET}", "api_key: "},
		{"api_key: ${VILAKKAM_TEST_UNSET:-fallback}", "api_key: fallback"},
		{"api_key: ${VILAKKAM_TEST_EMPTY:-fallback}", "api_key: fallback"},
		{"password: pa$$word", "password: pa$$word"},
		{"x: $VILAKKAM_TEST_KEY", "x: $VILAKKAM_TEST_KEY"},
	}
	for _, tc := range tests {
		if got := string(config.ExpandEnv([]byte(tc.in))); got != tc.want {
			t.Errorf("ExpandEnv(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestLoadFromReader_EnvKey(t *testing.T) {
	t.Setenv("VILAKKAM_TEST_OPENAI", "sk-live")
	cfg, err := config.LoadFromReader(strings.NewReader(`
providers:
  llm: {name: openai, api_key: "${VILAKKAM_TEST_OPENAI}"}
  stt: {name: openai, api_key: "${VILAKKAM_TEST_OPENAI}"}
`))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Providers.LLM.APIKey != "sk-live" {
		t.Errorf("api_key = %q", cfg.Providers.LLM.APIKey)
	}
}
