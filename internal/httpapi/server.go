// Package httpapi implements the daemon's local control API: session
// actions, navigation events, symbol and history queries, and the WebSocket
// endpoint report viewers attach to.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/digitarald/Gecko-Profiler-Addon/internal/history"
	"github.com/digitarald/Gecko-Profiler-Addon/internal/session"
)

// Controller is the session surface the API drives. *session.Orchestrator
// implements it.
type Controller interface {
	Status(ctx context.Context) session.Status
	ToggleStartStop(ctx context.Context) error
	Collect(ctx context.Context) (*history.Cycle, error)
	TriggerCollect() error
	ToggleAutoCapture() bool
	Restart(ctx context.Context) error
	OnTabOpen(ctx context.Context, url string) error
	OnTabLoad(url string) bool
	ResolveLibraries(ctx context.Context, prefix string) ([]session.LibrarySymbols, error)
}

// HistoryLister is implemented by *history.Store.
type HistoryLister interface {
	ListCycles(ctx context.Context, f history.Filter) ([]history.Cycle, error)
}

// Server is the control API server.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	logger     zerolog.Logger
}

// Config contains dependencies for creating a control API server.
type Config struct {
	// ListenAddr is the host:port to listen on.
	ListenAddr string

	// Controller receives actions and navigation events.
	Controller Controller

	// ReportURL is the report viewer base URL. Its origin may call the API
	// from a browser alongside the daemon's own host.
	ReportURL string

	// History serves GET /history. Nil disables the endpoint.
	History HistoryLister

	// ViewerHandler accepts viewer WebSocket connections on
	// GET /viewer/{id}/ws (optional).
	ViewerHandler http.HandlerFunc

	// Logger is the logger instance.
	Logger zerolog.Logger
}

// New creates a control API server. It does not listen until Start.
func New(cfg Config) (*Server, error) {
	if cfg.Controller == nil {
		return nil, fmt.Errorf("controller is required")
	}
	if cfg.ListenAddr == "" {
		return nil, fmt.Errorf("listen address is required")
	}

	logger := cfg.Logger.With().Str("component", "httpapi").Logger()

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           h2c.NewHandler(NewHandler(cfg, logger), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		logger:     logger,
	}, nil
}

// NewHandler builds the routed, audited handler for cfg.
func NewHandler(cfg Config, logger zerolog.Logger) http.Handler {
	h := &handlers{
		controller: cfg.Controller,
		history:    cfg.History,
		logger:     logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", h.status)
	mux.HandleFunc("POST /actions/start-stop", h.startStop)
	mux.HandleFunc("POST /actions/collect", h.collect)
	mux.HandleFunc("POST /actions/auto-capture", h.autoCapture)
	mux.HandleFunc("POST /actions/restart", h.restart)
	mux.HandleFunc("POST /events/navigation", h.navigation)
	mux.HandleFunc("GET /symbols", h.symbols)
	mux.HandleFunc("GET /history", h.listHistory)

	if cfg.ViewerHandler != nil {
		mux.HandleFunc("GET /viewer/{id}/ws", cfg.ViewerHandler)
		logger.Debug().Msg("Registered viewer attach endpoint")
	}

	auditMw := NewAuditMiddleware(logger)
	originMw := NewOriginMiddleware(cfg.ReportURL, logger)
	routed := auditMw.Handler(originMw.Handler(mux))

	// Health endpoint bypasses all middleware.
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("OK\n"))
			return
		}
		routed.ServeHTTP(w, r)
	})
}

// Start binds the listen address and serves in a background goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	s.listener = ln

	s.logger.Info().
		Str("addr", ln.Addr().String()).
		Msg("Starting control API server")

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Control API server error")
		}
	}()

	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Stopping control API server")
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the bound address once started, else the configured one.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// URL returns the server URL.
func (s *Server) URL() string {
	return fmt.Sprintf("http://%s", s.Addr())
}
