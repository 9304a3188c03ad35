package openai_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vilakkam/vilakkam/pkg/provider/stt"
	"github.com/vilakkam/vilakkam/pkg/provider/stt/openai"
)

// newTranscriptionServer answers POST /audio/transcriptions with body and
// records the multipart fields it received.
func newTranscriptionServer(t *testing.T, body string, fields map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for k, v := range r.MultipartForm.Value {
			if len(v) > 0 {
				fields[k] = v[0]
			}
		}
		if fhs := r.MultipartForm.File["file"]; len(fhs) > 0 {
			fields["filename"] = fhs[0].Filename
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
}

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := openai.New(""); err == nil {
		t.Fatal("expected error for empty api key")
	}
}

func TestTranscribe_SendsLanguageAndFilename(t *testing.T) {
	fields := map[string]string{}
	srv := newTranscriptionServer(t, `{"text":"  vanakkam  "}`, fields)
	defer srv.Close()

	p, err := openai.New("sk-test", openai.WithBaseURL(srv.URL+"/"), openai.WithLanguage("ta"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := p.Transcribe(context.Background(), stt.Request{
		Data:        []byte("RIFF....WAVE"),
		Filename:    "voice.webm",
		ContentType: "audio/webm",
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got != "vanakkam" {
		t.Errorf("transcript = %q, want %q", got, "vanakkam")
	}
	if fields["language"] != "ta" {
		t.Errorf("language = %q, want ta", fields["language"])
	}
	if fields["model"] != "whisper-1" {
		t.Errorf("model = %q, want whisper-1", fields["model"])
	}
	if fields["filename"] != "voice.webm" {
		t.Errorf("filename = %q, want voice.webm", fields["filename"])
	}
}

func TestTranscribe_EmptyTranscript(t *testing.T) {
	srv := newTranscriptionServer(t, `{"text":"   "}`, map[string]string{})
	defer srv.Close()

	p, _ := openai.New("sk-test", openai.WithBaseURL(srv.URL+"/"))
	_, err := p.Transcribe(context.Background(), stt.Request{Data: []byte("x")})
	if !errors.Is(err, stt.ErrNoSpeech) {
		t.Fatalf("err = %v, want ErrNoSpeech", err)
	}
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	p, _ := openai.New("sk-test")
	if _, err := p.Transcribe(context.Background(), stt.Request{}); err == nil {
		t.Fatal("expected error for empty audio")
	}
}
