// Package server is the HTTP transport for the explanation pipeline.
//
// Routes:
//
//	POST /api/explain-message  JSON {text, language_preference}
//	POST /api/voice-input      multipart audio, language_preference, context_text, history
//	POST /api/file-upload      multipart file, language_preference
//
// Successful calls answer with the explanation object. Failures answer with
// {"detail": "..."} carrying a short user-facing message; internal causes are
// only logged.
package server

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/vilakkam/vilakkam/internal/explain"
	"github.com/vilakkam/vilakkam/internal/observe"
	"github.com/vilakkam/vilakkam/internal/pipeline"
)

// Explainer is the pipeline surface served over HTTP. *pipeline.Pipeline
// implements it.
type Explainer interface {
	ExplainText(ctx context.Context, key, text string, lang explain.Language) (explain.Explanation, error)
	ExplainAudio(ctx context.Context, key string, in pipeline.AudioInput) (explain.Explanation, error)
	ExplainFile(ctx context.Context, key string, in pipeline.FileInput) (explain.Explanation, error)
}

var _ Explainer = (*pipeline.Pipeline)(nil)

// Defaults.
const (
	DefaultMaxUploadBytes = 10 << 20
	DefaultRequestTimeout = 90 * time.Second

	// maxJSONBytes bounds the text endpoint body. The guardrail limit is far
	// smaller; this only stops abuse before decoding.
	maxJSONBytes = 1 << 20
)

// Option configures a Server.
type Option func(*Server)

// WithCORSOrigins sets the allowed browser origins. "*" allows any.
func WithCORSOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithMaxUploadBytes caps multipart request bodies.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// WithRequestTimeout bounds each API call.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMetrics sets the metrics used by the HTTP middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithRoute mounts an extra handler, such as health probes or the metrics
// endpoint, next to the API routes.
func WithRoute(pattern string, h http.Handler) Option {
	return func(s *Server) { s.extra = append(s.extra, route{pattern, h}) }
}

type route struct {
	pattern string
	h       http.Handler
}

// Server routes HTTP requests to an Explainer.
type Server struct {
	explainer Explainer
	origins   []string
	maxUpload int64
	timeout   time.Duration
	metrics   *observe.Metrics
	extra     []route
}

// New returns a Server for e.
func New(e Explainer, opts ...Option) (*Server, error) {
	if e == nil {
		return nil, errors.New("server: explainer must not be nil")
	}
	s := &Server{
		explainer: e,
		origins:   []string{"*"},
		maxUpload: DefaultMaxUploadBytes,
		timeout:   DefaultRequestTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s, nil
}

// Handler returns the complete handler: routes wrapped in CORS and the
// observability middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/explain-message", s.handleExplainMessage)
	mux.HandleFunc("POST /api/voice-input", s.handleVoiceInput)
	mux.HandleFunc("POST /api/file-upload", s.handleFileUpload)
	for _, r := range s.extra {
		mux.Handle(r.pattern, r.h)
	}
	return observe.Middleware(s.metrics)(s.cors(mux))
}

// cors answers preflight requests and sets the allow headers for permitted
// origins.
func (s *Server) cors(next http.Handler) http.Handler {
	wildcard := slices.Contains(s.origins, "*")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowed := origin != "" && (wildcard || slices.Contains(s.origins, origin))
		if allowed {
			h := w.Header()
			if wildcard {
				h.Set("Access-Control-Allow-Origin", "*")
			} else {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			h.Set("Access-Control-Max-Age", strconv.Itoa(int((10 * time.Minute).Seconds())))
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			if !allowed {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusFor maps a pipeline failure kind to an HTTP status.
func statusFor(k pipeline.Kind) int {
	switch k {
	case pipeline.KindRateLimited:
		return http.StatusTooManyRequests
	case pipeline.KindInputTooLarge:
		return http.StatusRequestEntityTooLarge
	case pipeline.KindTooManyFollowups, pipeline.KindEmptyInput, pipeline.KindUnsupportedType:
		return http.StatusBadRequest
	case pipeline.KindTranscriptionService, pipeline.KindExplanationService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}
