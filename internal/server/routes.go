package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Run lifecycle
	mux.HandleFunc("/scraper/start", s.scraperHandler.StartHandler)    // POST - launch async run
	mux.HandleFunc("/scraper/quick", s.scraperHandler.QuickHandler)    // POST - synchronous snippet search
	mux.HandleFunc("/scraper/status/", s.scraperHandler.StatusHandler) // GET /{runId}
	mux.HandleFunc("/scraper/runs", s.scraperHandler.RunsHandler)      // GET - caller's runs
	mux.HandleFunc("/scraper/cancel/", s.scraperHandler.CancelHandler) // POST /{runId}
	mux.HandleFunc("/scraper/quota", s.scraperHandler.QuotaHandler)    // GET - outbound budget, no auth

	// Progress stream
	mux.HandleFunc("/scraper/events/", s.eventsHandler.HandleEvents) // GET /{runId} - WebSocket

	mux.HandleFunc("/health", s.healthHandler) // GET - liveness

	return mux
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
