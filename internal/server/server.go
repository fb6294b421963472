// Package server exposes the speech pipeline over an OpenAI-compatible HTTP
// API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/speech-gateway/internal/tts"
)

// Service metadata reported by the root endpoint.
const (
	SERVICE_NAME        = "Chatterbox FastAPI"
	SERVICE_DESCRIPTION = "OpenAI-compatible text-to-speech API with voice cloning"
	SERVICE_VERSION     = "1.0.0"
)

// Defaults for Config.
const (
	DEFAULT_HOST             = "0.0.0.0"
	DEFAULT_PORT             = 8000
	DEFAULT_READ_TIMEOUT     = 30 * time.Second
	DEFAULT_WRITE_TIMEOUT    = 300 * time.Second
	DEFAULT_SHUTDOWN_TIMEOUT = 10 * time.Second
	DEFAULT_MAX_BODY_BYTES   = 1 << 20
)

// Synthesizer is the pipeline the server fronts. *tts.Service implements it.
type Synthesizer interface {
	Synthesize(ctx context.Context, req tts.SpeechRequest) (tts.Speech, error)
	Voices() []tts.VoiceInfo
	Models() []tts.ModelInfo
	Health() tts.Health
}

// Observer receives one call per served request.
type Observer interface {
	ObserveHTTP(route string, code int)
}

// Config holds listener settings.
type Config struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
}

// DefaultConfig returns the compiled-in listener settings.
func DefaultConfig() Config {
	return Config{
		Host:            DEFAULT_HOST,
		Port:            DEFAULT_PORT,
		ReadTimeout:     DEFAULT_READ_TIMEOUT,
		WriteTimeout:    DEFAULT_WRITE_TIMEOUT,
		ShutdownTimeout: DEFAULT_SHUTDOWN_TIMEOUT,
		MaxBodyBytes:    DEFAULT_MAX_BODY_BYTES,
	}
}

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics mounts handler on /metrics.
func WithMetrics(handler http.Handler) Option {
	return func(s *Server) {
		s.metrics = handler
	}
}

// WithObserver attaches a request Observer.
func WithObserver(observer Observer) Option {
	return func(s *Server) {
		s.observer = observer
	}
}

// Server is the HTTP front end.
type Server struct {
	config   Config
	speech   Synthesizer
	log      *logger.Logger
	metrics  http.Handler
	observer Observer
	handler  http.Handler
}

// New builds the routes. The listener is not opened until Run.
func New(cfg Config, speech Synthesizer, log *logger.Logger, opts ...Option) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DEFAULT_MAX_BODY_BYTES
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DEFAULT_SHUTDOWN_TIMEOUT
	}

	server := &Server{
		config: cfg,
		speech: speech,
		log:    log,
	}

	for _, opt := range opts {
		opt(server)
	}

	server.handler = server.routes()

	return server
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /v1/audio/speech", s.handleSpeech)
	mux.HandleFunc("GET /v1/audio/voices", s.handleVoices)
	mux.HandleFunc("GET /v1/models", s.handleModels)

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	return s.withRequestID(s.withCORS(s.withLogging(s.withRecovery(mux))))
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr(), err)
	}

	return s.Serve(ctx, listener)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.config.ReadTimeout,
		ReadHeaderTimeout: s.config.ReadTimeout,
		WriteTimeout:      s.config.WriteTimeout,
		BaseContext: func(net.Listener) context.Context {
			return context.WithoutCancel(ctx)
		},
	}

	serveErr := make(chan error, 1)

	go func() {
		s.log.System("HTTP server listening on %s", listener.Addr())
		serveErr <- httpServer.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	s.log.System("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
	defer cancel()

	err := httpServer.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}

	return nil
}
