package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Server is the HTTP command API with the websocket stats stream.
type Server struct {
	ctrl        ControllerInterface
	router      *chi.Mux
	wsHub       *WebSocketHub
	rateLimiter *IPRateLimiter
	httpServer  *http.Server
}

// ServerConfig holds the optional parts of a Server.
type ServerConfig struct {
	RateLimit      RateLimitConfig
	CORSOrigins    []string
	StaticFilesDir string
	DisableLogging bool
}

// NewServer creates a new API server with default production configuration.
//
// IMPORTANT: The hub and broadcast loop do NOT start until Start() is called.
// For testing HTTP endpoints without WebSocket support, use NewRouter() directly.
func NewServer(ctrl ControllerInterface) *Server {
	return NewServerWithConfig(ctrl, ServerConfig{RateLimit: DefaultRateLimitConfig})
}

// NewServerWithConfig creates a server with explicit limits and origins.
func NewServerWithConfig(ctrl ControllerInterface, cfg ServerConfig) *Server {
	s := &Server{
		ctrl:        ctrl,
		wsHub:       NewWebSocketHub(),
		rateLimiter: NewIPRateLimiter(cfg.RateLimit),
	}

	s.router = NewRouter(RouterConfig{
		Controller:     ctrl,
		RateLimiter:    s.rateLimiter,
		CORSOrigins:    cfg.CORSOrigins,
		StaticFilesDir: cfg.StaticFilesDir,
		DisableLogging: cfg.DisableLogging,
	})

	// The stats stream needs the hub instance, so it is not part of NewRouter.
	s.router.Get("/ws", s.wsHub.HandleWebSocket)

	return s
}

// Start runs the hub and broadcast loop, then serves until Stop.
// It returns nil after a graceful Stop.
func (s *Server) Start(addr string) error {
	go s.wsHub.Run()
	s.wsHub.StartBroadcastLoop(s.ctrl, StatsBroadcastInterval)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Printf("🌐 API server starting on %s", addr)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Router returns the HTTP handler for use with httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub exposes the websocket hub, mainly for tests.
func (s *Server) Hub() *WebSocketHub {
	return s.wsHub
}

// Stop shuts the listener down and stops background workers.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.wsHub.Stop()
	s.rateLimiter.Stop()
	return err
}
