package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/vilakkam/vilakkam/internal/explain"
	"github.com/vilakkam/vilakkam/internal/observe"
	"github.com/vilakkam/vilakkam/internal/pipeline"
)

type call struct {
	op    string
	key   string
	text  string
	lang  explain.Language
	audio pipeline.AudioInput
	file  pipeline.FileInput
}

type fakeExplainer struct {
	mu    sync.Mutex
	calls []call
	exp   explain.Explanation
	err   error
}

func (f *fakeExplainer) record(c call) (explain.Explanation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return f.exp, f.err
}

func (f *fakeExplainer) ExplainText(_ context.Context, key, text string, lang explain.Language) (explain.Explanation, error) {
	return f.record(call{op: "text", key: key, text: text, lang: lang})
}

func (f *fakeExplainer) ExplainAudio(_ context.Context, key string, in pipeline.AudioInput) (explain.Explanation, error) {
	return f.record(call{op: "audio", key: key, audio: in})
}

func (f *fakeExplainer) ExplainFile(_ context.Context, key string, in pipeline.FileInput) (explain.Explanation, error) {
	return f.record(call{op: "file", key: key, file: in})
}

var sampleExplanation = explain.Explanation{
	Explanation: "Bill kattanum",
	Urgency:     explain.UrgencyMedium,
	NextSteps:   "15 March-kulla kattunga",
	ReplyOptions: explain.ReplyOptions{
		Tamil: "sari", Tanglish: "seri", English: "okay",
	},
	SourceText: "Electricity Bill Due 15 March",
}

func newTestServer(t *testing.T, f *fakeExplainer, opts ...Option) http.Handler {
	t.Helper()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader())))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	s, err := New(f, append([]Option{WithMetrics(m)}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s.Handler()
}

func multipartBody(t *testing.T, fileField, filename string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if fileField != "" {
		fw, err := mw.CreateFormFile(fileField, filename)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		_, _ = fw.Write(data)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func decodeDetail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Detail
}

func TestNew_NilExplainer(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestExplainMessage_Success(t *testing.T) {
	f := &fakeExplainer{exp: sampleExplanation}
	h := newTestServer(t, f)

	req := httptest.NewRequest(http.MethodPost, "/api/explain-message",
		strings.NewReader(`{"text":"Electricity Bill Due 15 March","language_preference":"tanglish"}`))
	req.RemoteAddr = "203.0.113.7:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var got map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"explanation", "urgency", "next_steps", "reply_options", "source_text"} {
		if _, ok := got[key]; !ok {
			t.Errorf("response missing %q", key)
		}
	}
	if _, ok := got["tts_audio_base64"]; ok {
		t.Error("absent audio serialized")
	}

	c := f.calls[0]
	if c.key != "203.0.113.7" || c.lang != explain.LanguageTanglish || c.text != "Electricity Bill Due 15 March" {
		t.Errorf("call = %+v", c)
	}
}

func TestExplainMessage_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"invalid json", `{"text":`, msgBadJSON},
		{"missing text", `{"language_preference":"tamil"}`, msgMissingText},
		{"bad language", `{"text":"hi","language_preference":"hindi"}`, msgBadLanguage},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := &fakeExplainer{}
			h := newTestServer(t, f)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/explain-message", strings.NewReader(tc.body)))

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if got := decodeDetail(t, rec); got != tc.want {
				t.Errorf("detail = %q, want %q", got, tc.want)
			}
			if len(f.calls) != 0 {
				t.Error("pipeline called for a bad request")
			}
		})
	}
}

func TestPipelineErrorMapping(t *testing.T) {
	tests := []struct {
		kind pipeline.Kind
		want int
	}{
		{pipeline.KindRateLimited, http.StatusTooManyRequests},
		{pipeline.KindInputTooLarge, http.StatusRequestEntityTooLarge},
		{pipeline.KindTooManyFollowups, http.StatusBadRequest},
		{pipeline.KindEmptyInput, http.StatusBadRequest},
		{pipeline.KindUnsupportedType, http.StatusBadRequest},
		{pipeline.KindOCRUnavailable, http.StatusInternalServerError},
		{pipeline.KindExtractionService, http.StatusInternalServerError},
		{pipeline.KindTranscriptionService, http.StatusBadGateway},
		{pipeline.KindExplanationService, http.StatusBadGateway},
	}
	for _, tc := range tests {
		t.Run(tc.kind.String(), func(t *testing.T) {
			f := &fakeExplainer{err: &pipeline.Error{Kind: tc.kind, Message: "calm message", Err: errors.New("secret internal cause")}}
			h := newTestServer(t, f)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/explain-message", strings.NewReader(`{"text":"hello there"}`)))

			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
			body := rec.Body.String()
			if strings.Contains(body, "secret") {
				t.Errorf("internal cause leaked: %s", body)
			}
			if !strings.Contains(body, "calm message") {
				t.Errorf("body = %s, want user message", body)
			}
		})
	}
}

func TestUnclassifiedErrorIsGeneric(t *testing.T) {
	f := &fakeExplainer{err: errors.New("db exploded at 0xdeadbeef")}
	h := newTestServer(t, f)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/explain-message", strings.NewReader(`{"text":"hello"}`)))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if got := decodeDetail(t, rec); got != msgInternalError {
		t.Errorf("detail = %q", got)
	}
}

func TestVoiceInput(t *testing.T) {
	f := &fakeExplainer{exp: sampleExplanation}
	h := newTestServer(t, f)

	body, ct := multipartBody(t, "audio", "q.webm", []byte("OggS"), map[string]string{
		"language_preference": "english",
		"context_text":        "Electricity Bill Due 15 March",
		"history":             "User: enna idhu?\nAssistant: Bill.",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/voice-input", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	in := f.calls[0].audio
	if string(in.Data) != "OggS" || in.Filename != "q.webm" {
		t.Errorf("audio = %q %q", in.Data, in.Filename)
	}
	if in.Language != explain.LanguageEnglish || in.Context != "Electricity Bill Due 15 March" || !strings.HasPrefix(in.History, "User:") {
		t.Errorf("input = %+v", in)
	}
}

func TestVoiceInput_FormLanguageDefaults(t *testing.T) {
	f := &fakeExplainer{exp: sampleExplanation}
	h := newTestServer(t, f)

	body, ct := multipartBody(t, "audio", "q.wav", []byte("RIFF"), map[string]string{"language_preference": "klingon"})
	req := httptest.NewRequest(http.MethodPost, "/api/voice-input", body)
	req.Header.Set("Content-Type", ct)
	h.ServeHTTP(httptest.NewRecorder(), req)

	if got := f.calls[0].audio.Language; got != explain.LanguageTamil {
		t.Errorf("language = %q, want tamil", got)
	}
}

func TestFileUpload(t *testing.T) {
	f := &fakeExplainer{exp: sampleExplanation}
	h := newTestServer(t, f)

	body, ct := multipartBody(t, "file", "bill.pdf", []byte("%PDF-1.4"), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/file-upload", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	in := f.calls[0].file
	if in.Filename != "bill.pdf" || in.Language != explain.LanguageTamil {
		t.Errorf("input = %+v", in)
	}
}

func TestUploadErrors(t *testing.T) {
	t.Run("missing file field", func(t *testing.T) {
		f := &fakeExplainer{}
		h := newTestServer(t, f)
		body, ct := multipartBody(t, "", "", nil, map[string]string{"language_preference": "tamil"})
		req := httptest.NewRequest(http.MethodPost, "/api/file-upload", body)
		req.Header.Set("Content-Type", ct)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest || decodeDetail(t, rec) != msgMissingFile {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("not multipart", func(t *testing.T) {
		h := newTestServer(t, &fakeExplainer{})
		req := httptest.NewRequest(http.MethodPost, "/api/voice-input", strings.NewReader("{}"))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("too large", func(t *testing.T) {
		f := &fakeExplainer{}
		h := newTestServer(t, f, WithMaxUploadBytes(1024))
		body, ct := multipartBody(t, "file", "big.png", bytes.Repeat([]byte("x"), 4096), nil)
		req := httptest.NewRequest(http.MethodPost, "/api/file-upload", body)
		req.Header.Set("Content-Type", ct)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("status = %d, want 413", rec.Code)
		}
		if len(f.calls) != 0 {
			t.Error("pipeline called for oversized upload")
		}
	})
}

func TestCORS(t *testing.T) {
	h := newTestServer(t, &fakeExplainer{exp: sampleExplanation}, WithCORSOrigins("https://app.example"))

	pre := httptest.NewRequest(http.MethodOptions, "/api/explain-message", nil)
	pre.Header.Set("Origin", "https://app.example")
	pre.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, pre)
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Errorf("allow origin = %q", got)
	}

	pre = httptest.NewRequest(http.MethodOptions, "/api/explain-message", nil)
	pre.Header.Set("Origin", "https://evil.example")
	pre.Header.Set("Access-Control-Request-Method", "POST")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, pre)
	if rec.Code != http.StatusForbidden {
		t.Errorf("disallowed preflight status = %d, want 403", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("allow origin set for disallowed origin")
	}
}

func TestCORS_Wildcard(t *testing.T) {
	h := newTestServer(t, &fakeExplainer{exp: sampleExplanation})
	req := httptest.NewRequest(http.MethodPost, "/api/explain-message", strings.NewReader(`{"text":"hello"}`))
	req.Header.Set("Origin", "https://anything.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("allow origin = %q, want *", got)
	}
}

func TestExtraRoutes(t *testing.T) {
	h := newTestServer(t, &fakeExplainer{}, WithRoute("GET /healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/explain-message", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET on POST route = %d, want 405", rec.Code)
	}
}
