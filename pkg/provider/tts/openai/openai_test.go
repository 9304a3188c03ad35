package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/vilakkam/vilakkam/pkg/provider/tts"
)

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	p, err := New("sk-test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = p.Synthesize(context.Background(), "   ", tts.Voice{})
	if !errors.Is(err, tts.ErrEmptyText) {
		t.Fatalf("err = %v, want ErrEmptyText", err)
	}
}

func TestSynthesize_RequestAndResponse(t *testing.T) {
	var body map[string]any
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/audio/speech" {
			http.Error(w, "unexpected path "+r.URL.Path, http.StatusNotFound)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3fake-mp3"))
	}))
	defer srv.Close()

	p, err := New("sk-test", WithBaseURL(srv.URL+"/"), WithDefaultVoice("nova"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	clip, err := p.Synthesize(context.Background(), "Idhu oru bank message.", tts.Voice{})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(clip.Data) != "ID3fake-mp3" {
		t.Errorf("data = %q", clip.Data)
	}
	if clip.MIMEType != tts.MIMETypeMP3 {
		t.Errorf("mime = %q, want %q", clip.MIMEType, tts.MIMETypeMP3)
	}
	if body["model"] != "tts-1" {
		t.Errorf("model = %v, want tts-1", body["model"])
	}
	if body["voice"] != "nova" {
		t.Errorf("voice = %v, want nova", body["voice"])
	}
	if body["response_format"] != "mp3" {
		t.Errorf("response_format = %v, want mp3", body["response_format"])
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestSynthesize_ServerErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer srv.Close()

	p, _ := New("sk-test", WithBaseURL(srv.URL+"/"))
	if _, err := p.Synthesize(context.Background(), "hello", tts.Voice{ID: "alloy"}); err == nil {
		t.Fatal("expected error for HTTP 500")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want exactly 1", calls.Load())
	}
}
