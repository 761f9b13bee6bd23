// Package api provides the HTTP server for Skopos.
//
// It exposes the dialogue engine over REST: user turns, caller-supplied replies, session
// inspection and reset, the opening greeting and the healing-mode toggle, plus health and
// Prometheus endpoints and the optional Twilio WhatsApp webhook.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/Skopos/internal/metrics"
	"github.com/BTreeMap/Skopos/internal/models"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// Server defaults.
const (
	DefaultAddr            = ":8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	// MaxBodyBytes caps JSON request bodies.
	MaxBodyBytes = 64 << 10
	// CredentialHeader carries an optional per-call generation key.
	CredentialHeader = "X-Generation-Key"
)

// Engine is the dialogue engine surface served over HTTP. flow.Orchestrator implements it.
type Engine interface {
	ProcessTurn(ctx context.Context, sessionID, userText, credential string) (models.TurnResult, error)
	CompleteTurn(ctx context.Context, sessionID, reply, credential string) (models.TurnResult, error)
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	ResetSession(ctx context.Context, sessionID string) error
	Greeting() string
	HealingMode(ctx context.Context) (models.HealingModeStatus, error)
	SetHealingMode(ctx context.Context, enabled bool) error
}

// Opts holds configuration options for the server.
type Opts struct {
	Addr    string
	Twilio  http.Handler
	Checker func(ctx context.Context) error
}

// Option defines a configuration option for the server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithTwilioWebhook mounts the WhatsApp webhook at /twilio/whatsapp.
func WithTwilioWebhook(h http.Handler) Option {
	return func(o *Opts) { o.Twilio = h }
}

// WithHealthCheck adds a dependency check to /health.
func WithHealthCheck(check func(ctx context.Context) error) Option {
	return func(o *Opts) { o.Checker = check }
}

// Server serves the HTTP API.
type Server struct {
	engine  Engine
	addr    string
	twilio  http.Handler
	checker func(ctx context.Context) error
	router  chi.Router
}

// NewServer builds a server and its router.
func NewServer(engine Engine, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Server{
		engine:  engine,
		addr:    cfg.Addr,
		twilio:  cfg.Twilio,
		checker: cfg.Checker,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chiMiddleware.Recoverer)

	r.Get("/health", s.healthHandler)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/greeting", s.greetingHandler)

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.createSessionHandler)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getSessionHandler)
			r.Delete("/", s.resetSessionHandler)
			r.Post("/turns", s.turnHandler)
			r.Post("/replies", s.replyHandler)
		})
	})

	r.Route("/settings/healing-mode", func(r chi.Router) {
		r.Get("/", s.getHealingModeHandler)
		r.Put("/", s.setHealingModeHandler)
	})

	if s.twilio != nil {
		r.Method(http.MethodPost, "/twilio/whatsapp", s.twilio)
		slog.Info("Server.routes: Twilio WhatsApp webhook enabled")
	}
	return r
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
		IdleTimeout:  DefaultIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Server shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		return err
	}
	slog.Info("Server stopped successfully")
	return nil
}

// requestLogger logs each request through slog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"requestID", chiMiddleware.GetReqID(r.Context()))
	})
}
