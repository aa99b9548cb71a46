package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/jobscout/internal/common"
	"github.com/ternarybob/jobscout/internal/handlers"
	"github.com/ternarybob/jobscout/internal/services/auth"
	"github.com/ternarybob/jobscout/internal/services/ratelimit"
)

// Server manages the HTTP server and routes
type Server struct {
	config *common.Config
	logger arbor.ILogger

	scraperHandler *handlers.ScraperHandler
	eventsHandler  *handlers.EventsHandler
	auth           *auth.Validator
	apiLimiter     *ratelimit.Limiter
	scrapeLimiter  *ratelimit.Limiter

	router *http.ServeMux
	server *http.Server
}

// New creates a new HTTP server with the given dependencies.
func New(
	config *common.Config,
	scraperHandler *handlers.ScraperHandler,
	eventsHandler *handlers.EventsHandler,
	authValidator *auth.Validator,
	logger arbor.ILogger,
) *Server {
	window := config.Scraper.RateLimitWindow
	if window <= 0 {
		window = time.Minute
	}

	s := &Server{
		config:         config,
		logger:         logger,
		scraperHandler: scraperHandler,
		eventsHandler:  eventsHandler,
		auth:           authValidator,
		apiLimiter:     ratelimit.NewLimiter(config.Scraper.RateLimitDefault, window),
		scrapeLimiter:  ratelimit.NewLimiter(config.Scraper.RateLimitScraper, window),
	}

	s.router = s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.withMiddleware(s.router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // long-lived event streams manage their own deadlines
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// APILimiter exposes the general inbound limiter for the scheduler's
// sweep.
func (s *Server) APILimiter() *ratelimit.Limiter {
	return s.apiLimiter
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info().
		Str("address", s.server.Addr).
		Msg("HTTP server starting")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server...")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info().Msg("HTTP server stopped")
	return nil
}
