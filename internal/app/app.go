// Package app wires the explanation pipeline into a running HTTP service.
//
// The App struct owns the full lifecycle: New builds every subsystem from the
// config, Run serves HTTP until the context is cancelled, and Shutdown tears
// everything down in order.
//
// For testing, inject doubles via functional options (WithLimiter, WithOCR,
// etc.). When an option is not provided, New creates real implementations
// from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/vilakkam/vilakkam/internal/config"
	"github.com/vilakkam/vilakkam/internal/explain"
	"github.com/vilakkam/vilakkam/internal/guardrail"
	"github.com/vilakkam/vilakkam/internal/health"
	"github.com/vilakkam/vilakkam/internal/normalize"
	"github.com/vilakkam/vilakkam/internal/normalize/ocr"
	"github.com/vilakkam/vilakkam/internal/observe"
	"github.com/vilakkam/vilakkam/internal/pipeline"
	"github.com/vilakkam/vilakkam/internal/ratelimit"
	"github.com/vilakkam/vilakkam/internal/server"
	"github.com/vilakkam/vilakkam/internal/speech"
	"github.com/vilakkam/vilakkam/pkg/provider/llm"
	"github.com/vilakkam/vilakkam/pkg/provider/stt"
	"github.com/vilakkam/vilakkam/pkg/provider/tts"
)

// shutdownGrace bounds how long in-flight requests may finish after Run's
// context is cancelled.
const shutdownGrace = 15 * time.Second

// Providers holds one interface value per capability. LLM and STT are
// required; a nil TTS disables speech. Populated by main.go via the config
// registry.
type Providers struct {
	LLM llm.Provider
	STT stt.Provider
	TTS tts.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	limiter  ratelimit.Limiter
	ocr      ocr.Engine
	metrics  *observe.Metrics
	redis    *redis.Client
	pipeline *pipeline.Pipeline
	handler  http.Handler

	// stopPruner stops the in-memory limiter's pruner.
	stopPruner context.CancelFunc

	// closers are called in order during Shutdown.
	closers []func() error

	srvMu sync.Mutex
	srv   *http.Server

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithLimiter injects an admission limiter instead of creating one from config.
func WithLimiter(l ratelimit.Limiter) Option {
	return func(a *App) { a.limiter = l }
}

// WithOCR injects an OCR engine instead of the Tesseract command-line engine.
func WithOCR(e ocr.Engine) Option {
	return func(a *App) { a.ocr = e }
}

// WithMetrics injects the metrics instruments. Defaults to the global meter
// provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go. New performs all initialisation synchronously and does
// not start listening; call Run for that.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config must not be nil")
	}
	if providers == nil || providers.LLM == nil || providers.STT == nil {
		return nil, errors.New("app: llm and stt providers are required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initLimiter(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init rate limiter: %w", err)
	}
	if a.ocr == nil {
		a.ocr = ocr.NewTesseract(
			ocr.WithTesseractCmd(cfg.OCR.TesseractCmd),
			ocr.WithPdftoppmCmd(cfg.OCR.PdftoppmCmd),
			ocr.WithLanguages(cfg.OCR.Languages),
			ocr.WithDPI(cfg.OCR.DPI),
			ocr.WithPageConcurrency(cfg.OCR.PageConcurrency),
		)
	}
	if err := a.initPipeline(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}
	if err := a.initServer(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init server: %w", err)
	}
	return a, nil
}

// initLimiter builds the configured admission limiter unless one was injected.
func (a *App) initLimiter(ctx context.Context) error {
	if a.limiter != nil {
		return nil
	}
	rl := a.cfg.RateLimit

	switch rl.Backend {
	case config.RateLimitRedis:
		a.redis = redis.NewClient(&redis.Options{
			Addr:     rl.Redis.Addr,
			Password: rl.Redis.Password,
			DB:       rl.Redis.DB,
		})
		a.closers = append(a.closers, a.redis.Close)

		lim, err := ratelimit.NewRedis(a.redis, rl.MaxRequests, rl.Window, ratelimit.WithKeyPrefix(rl.Redis.KeyPrefix))
		if err != nil {
			return err
		}
		a.limiter = lim
		slog.Info("rate limiter ready", "backend", "redis", "addr", rl.Redis.Addr)
	default:
		lim, err := ratelimit.New(rl.MaxRequests, rl.Window)
		if err != nil {
			return err
		}
		interval := rl.PruneInterval
		if interval <= 0 {
			interval = rl.Window
		}
		pruneCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		a.stopPruner = cancel
		go lim.RunPruner(pruneCtx, interval)
		a.limiter = lim
		slog.Info("rate limiter ready", "backend", "memory", "max_requests", rl.MaxRequests, "window", rl.Window)
	}
	return nil
}

// initPipeline assembles normalizer, guardrail, engine, and speech enricher.
func (a *App) initPipeline() error {
	cfg := a.cfg

	normOpts := []normalize.Option{normalize.WithMaxImagePixels(cfg.Limits.MaxImagePixels)}
	if lang := cfg.Providers.STT.OptString("language"); lang != "" {
		normOpts = append(normOpts, normalize.WithLanguage(lang))
	}
	norm, err := normalize.New(a.providers.STT, a.ocr, normOpts...)
	if err != nil {
		return err
	}

	guard, err := guardrail.New(cfg.Limits.MaxInputChars, cfg.Limits.FollowupLimit)
	if err != nil {
		return err
	}

	engineOpts := []explain.Option{explain.WithMinChars(cfg.Limits.MinMessageChars)}
	if cfg.Explain.Temperature != nil {
		engineOpts = append(engineOpts, explain.WithTemperature(*cfg.Explain.Temperature))
	}
	if cfg.Explain.MaxTokens > 0 {
		engineOpts = append(engineOpts, explain.WithMaxTokens(cfg.Explain.MaxTokens))
	}
	engine, err := explain.New(a.providers.LLM, engineOpts...)
	if err != nil {
		return err
	}

	var enricher *speech.Enricher
	if a.providers.TTS != nil {
		enricher = speech.New(a.providers.TTS,
			speech.WithVoice(tts.Voice{ID: cfg.Speech.VoiceID, Language: cfg.Speech.Language}),
			speech.WithTimeout(cfg.Speech.Timeout),
		)
	} else {
		slog.Info("speech disabled: no tts provider configured")
	}

	a.pipeline, err = pipeline.New(pipeline.Config{
		Limiter:           a.limiter,
		Normalizer:        norm,
		Guard:             guard,
		Engine:            engine,
		Speech:            enricher,
		Metrics:           a.metrics,
		MinExtractedChars: cfg.Limits.MinExtractedChars,
	})
	return err
}

// initServer builds the HTTP handler with health probes and metrics.
func (a *App) initServer() error {
	var checkers []health.Checker
	if c, ok := a.ocr.(health.Checkable); ok {
		checkers = append(checkers, health.From("ocr", c))
	}
	if a.redis != nil {
		checkers = append(checkers, health.Redis("redis", a.redis))
	}
	hh := health.New(checkers...)

	srv, err := server.New(a.pipeline,
		server.WithCORSOrigins(a.cfg.Server.CORSOrigins...),
		server.WithMaxUploadBytes(a.cfg.Server.MaxUploadBytes),
		server.WithRequestTimeout(a.cfg.Server.RequestTimeout),
		server.WithMetrics(a.metrics),
		server.WithRoute("GET /healthz", http.HandlerFunc(hh.Healthz)),
		server.WithRoute("GET /readyz", http.HandlerFunc(hh.Readyz)),
		server.WithRoute("GET "+a.cfg.Telemetry.MetricsPath, promhttp.Handler()),
	)
	if err != nil {
		return err
	}
	a.handler = srv.Handler()
	return nil
}

// Handler returns the complete HTTP handler. Useful for tests and for
// embedding the service behind another server.
func (a *App) Handler() http.Handler { return a.handler }

// Pipeline returns the assembled pipeline.
func (a *App) Pipeline() *pipeline.Pipeline { return a.pipeline }

// Run listens on the configured address and serves until ctx is cancelled,
// then drains in-flight requests for up to shutdownGrace.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", a.cfg.Server.ListenAddr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	a.srvMu.Lock()
	a.srv = srv
	a.srvMu.Unlock()

	tlsCfg := a.cfg.Server.TLS
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", ln.Addr().String(), "tls", tlsCfg != nil)
		if tlsCfg != nil {
			errCh <- srv.ServeTLS(ln, tlsCfg.CertFile, tlsCfg.KeyFile)
			return
		}
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("app: drain http server: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP server if it is running and tears down all
// subsystems. It respects the context deadline: if ctx expires before all
// closers finish, remaining closers are skipped and the context error is
// returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		a.srvMu.Lock()
		srv := a.srv
		a.srvMu.Unlock()
		if srv != nil {
			if err := srv.Shutdown(ctx); err != nil {
				slog.Warn("http server shutdown error", "err", err)
			}
		}

		if a.stopPruner != nil {
			a.stopPruner()
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll releases what a failed New already opened.
func (a *App) closeAll() {
	if a.stopPruner != nil {
		a.stopPruner()
	}
	for _, c := range a.closers {
		_ = c()
	}
}
