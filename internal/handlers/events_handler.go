package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/jobscout/internal/common"
	"github.com/ternarybob/jobscout/internal/models"
	"github.com/ternarybob/jobscout/internal/services/registry"
)

// EventsHandler streams run progress over a WebSocket until the run
// reaches a terminal state. The registry is polled rather than pushed
// to: run updates are coarse (progress milestones), so a short poll
// interval loses nothing.
type EventsHandler struct {
	registry *registry.Registry
	upgrader websocket.Upgrader
	interval time.Duration
	logger   arbor.ILogger
}

func NewEventsHandler(reg *registry.Registry, allowedOrigins []string, logger arbor.ILogger) *EventsHandler {
	return &EventsHandler{
		registry: reg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		interval: 500 * time.Millisecond,
		logger:   logger,
	}
}

// HandleEvents subscribes the caller to one run's progress.
// GET /scraper/events/{runId}
func (h *EventsHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	runID := pathTail(r.URL.Path, "/scraper/events/")
	if runID == "" {
		WriteError(w, common.ErrInvalidInput("run id is required"))
		return
	}

	owner := Owner(r)
	// Ownership is checked before the upgrade so a foreign run gets a
	// plain 404, not a half-open socket.
	if _, err := h.registry.Get(runID, owner); err != nil {
		WriteError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	// Drain client frames so close messages are noticed.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var lastProgress = -1
	for {
		run, err := h.registry.Get(runID, owner)
		if err != nil {
			// Evicted mid-stream.
			return
		}

		if run.Progress != lastProgress || run.Status.Terminal() {
			lastProgress = run.Progress
			if err := h.writeRun(conn, &run); err != nil {
				return
			}
		}
		if run.Status.Terminal() {
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(run.Status)))
			return
		}

		select {
		case <-ticker.C:
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// writeRun sends a snapshot: summaries while running, the full payload
// once terminal.
func (h *EventsHandler) writeRun(conn *websocket.Conn, run *models.ScrapeRun) error {
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if run.Status.Terminal() {
		return conn.WriteJSON(run)
	}
	summary := run.Summary()
	return conn.WriteJSON(&summary)
}

// originChecker admits same-host requests and the configured origins.
func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}
