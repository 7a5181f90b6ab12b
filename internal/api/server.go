// Package api provides the HTTP JSON API for parley.
//
// Routes:
//
//	GET    /conversations                → list conversations
//	POST   /conversation                 → create conversation
//	DELETE /conversation/{id}            → delete conversation and messages
//	GET    /conversation/{id}/messages   → list messages
//	POST   /conversation/{id}/message    → run a query through the provider
//	GET    /health, /ready               → probes
//	GET    /                             → embedded web client
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: recovery, request-ID, logging, CORS
//   - ratelimit.go: per-client token bucket
//   - conversation.go, message.go: resource handlers
//   - health.go: liveness and readiness probes
//   - response.go: JSON response helpers
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parleyhq/parley/internal/llm"
	"github.com/parleyhq/parley/internal/log"
	"github.com/parleyhq/parley/internal/web"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = "127.0.0.1:8080"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout is the timeout for reading request headers.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing the response. It must
	// leave room for a full provider round trip.
	WriteTimeout = 5 * time.Minute

	// IdleTimeout is the maximum time to wait for the next request on
	// keep-alive connections.
	IdleTimeout = 120 * time.Second

	// limiterSweepInterval is how often stale rate-limiter entries are
	// dropped while the server runs.
	limiterSweepInterval = time.Minute
)

// Config carries the runtime settings of the HTTP server.
type Config struct {
	Addr            string
	CORSOrigins     []string
	TrustProxy      bool
	RateBurst       int
	HistoryMessages int
}

// Server is the HTTP server for parley's JSON API and embedded client.
type Server struct {
	mux     *http.ServeMux
	limiter *rateLimiter
	logger  log.Logger
	addr    string
	corsMW  func(http.Handler) http.Handler
}

// NewServer creates a new HTTP server with all routes registered.
func NewServer(cfg Config, cs ConversationStore, completer llm.Completer, pool *pgxpool.Pool, logger log.Logger) *Server {
	mux := http.NewServeMux()

	NewHealthHandler(pool, logger).RegisterRoutes(mux)
	NewConversationHandler(cs, logger).RegisterRoutes(mux)
	NewMessageHandler(cs, completer, cfg.HistoryMessages, logger).RegisterRoutes(mux)
	mux.Handle("GET /", web.Handler())

	addr := cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}

	return &Server{
		mux:     mux,
		limiter: newRateLimiter(burst, cfg.TrustProxy),
		logger:  logger,
		addr:    addr,
		corsMW:  corsMiddleware(cfg.CORSOrigins),
	}
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → request-ID → logging → CORS → rate limit → routes.
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		recoveryMiddleware(s.logger),
		requestIDMiddleware,
		loggingMiddleware(s.logger),
		s.corsMW,
		s.limiter.middleware,
	)
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go s.sweepLimiter(sweepCtx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// sweepLimiter periodically evicts idle clients from the rate limiter.
func (s *Server) sweepLimiter(ctx context.Context) {
	ticker := time.NewTicker(limiterSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.limiter.cleanup()
		}
	}
}
