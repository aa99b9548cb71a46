package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/jobscout/internal/common"
	"github.com/ternarybob/jobscout/internal/models"
	"github.com/ternarybob/jobscout/internal/services/antidetect"
	"github.com/ternarybob/jobscout/internal/services/registry"
	"github.com/ternarybob/jobscout/internal/services/scraper"
)

// defaultMaxApplicants distinguishes "field absent" from an explicit
// zero: the decode target is pre-seeded, so an omitted maxApplicants
// gets the default while an explicit 0 means "early applicants only".
const defaultMaxApplicants = 100

// quickMaxResults caps the synchronous search below the async run
// ceiling so a single request cannot hold a connection for long.
const quickMaxResults = 50

// ScraperHandler serves the scrape API: run lifecycle, quick search,
// and the outbound quota snapshot.
type ScraperHandler struct {
	orchestrator *scraper.Orchestrator
	registry     *registry.Registry
	outbound     *antidetect.SessionLimiter
	enrichReady  bool
	validate     *validator.Validate
	logger       arbor.ILogger
}

func NewScraperHandler(
	orchestrator *scraper.Orchestrator,
	reg *registry.Registry,
	outbound *antidetect.SessionLimiter,
	enrichReady bool,
	logger arbor.ILogger,
) *ScraperHandler {
	return &ScraperHandler{
		orchestrator: orchestrator,
		registry:     reg,
		outbound:     outbound,
		enrichReady:  enrichReady,
		validate:     validator.New(),
		logger:       logger,
	}
}

// decodeSpec parses, sanitizes, and normalizes the request body into a
// FilterSpec ready for the pipeline. The decode target is pre-seeded so
// omitted fields get their defaults: validateHtml is on unless the
// caller explicitly turns it off.
func (h *ScraperHandler) decodeSpec(r *http.Request) (models.FilterSpec, error) {
	spec := models.FilterSpec{MaxApplicants: defaultMaxApplicants, ValidateHTML: true}
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		return spec, common.ErrInvalidInput("invalid request body")
	}

	keywords, err := common.SanitizeQuery(spec.Keywords)
	if err != nil {
		return spec, common.ErrInvalidInput(fmt.Sprintf("keywords: %s", err))
	}
	spec.Keywords = keywords

	location, err := common.SanitizeQuery(spec.Location)
	if err != nil {
		return spec, common.ErrInvalidInput(fmt.Sprintf("location: %s", err))
	}
	spec.Location = location
	spec.UserSkills = common.SanitizeSkills(spec.UserSkills)

	if err := h.validate.Struct(&spec); err != nil {
		return spec, common.ErrInvalidInput(validationMessage(err))
	}
	if err := spec.Normalize(); err != nil {
		return spec, common.ErrInvalidInput(err.Error())
	}
	return spec, nil
}

// StartHandler launches an asynchronous scrape run.
// POST /scraper/start
func (h *ScraperHandler) StartHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	spec, err := h.decodeSpec(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	run, err := h.orchestrator.StartRun(Owner(r), spec)
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"runId":  run.RunID,
		"status": run.Status,
	})
}

// QuickHandler runs a synchronous snippet-confidence search.
// POST /scraper/quick
func (h *ScraperHandler) QuickHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	spec, err := h.decodeSpec(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	if spec.MaxResults > quickMaxResults {
		spec.MaxResults = quickMaxResults
	}
	spec.PostedWithinDays = quickWindowDays(spec.PostedWithinDays)

	jobs, method, err := h.orchestrator.QuickSearch(r.Context(), spec)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Quick search failed")
		WriteError(w, common.ErrInternal("search failed"))
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":         jobs,
		"jobsFound":    len(jobs),
		"searchMethod": method,
	})
}

// StatusHandler returns the caller's run by ID.
// GET /scraper/status/{runId}
func (h *ScraperHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	runID := pathTail(r.URL.Path, "/scraper/status/")
	if runID == "" {
		WriteError(w, common.ErrInvalidInput("run id is required"))
		return
	}

	run, err := h.registry.Get(runID, Owner(r))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, run)
}

// RunsHandler lists the caller's runs, newest first, without payloads.
// GET /scraper/runs
func (h *ScraperHandler) RunsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	runs := h.registry.List(Owner(r))
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// CancelHandler requests cancellation of a running scrape.
// POST /scraper/cancel/{runId}
func (h *ScraperHandler) CancelHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	runID := pathTail(r.URL.Path, "/scraper/cancel/")
	if runID == "" {
		WriteError(w, common.ErrInvalidInput("run id is required"))
		return
	}

	if err := h.registry.Cancel(runID, Owner(r)); err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"runId":  runID,
		"status": "cancelling",
	})
}

// QuotaHandler reports the outbound session budget. Unauthenticated by
// design: it reveals nothing about any caller's runs.
// GET /scraper/quota
func (h *ScraperHandler) QuotaHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"requestsRemaining": h.outbound.RequestsRemaining(),
		"monthlyLimit":      h.outbound.MaxRequests(),
		"apiConfigured":     h.enrichReady,
	})
}

// quickWindowDays snaps an arbitrary recency window onto the presets
// the quick search supports.
func quickWindowDays(days int) int {
	switch {
	case days <= 1:
		return 1
	case days <= 7:
		return 7
	default:
		return 30
	}
}

func pathTail(path, prefix string) string {
	tail := strings.TrimPrefix(path, prefix)
	if tail == path || tail == "" || strings.Contains(tail, "/") {
		return ""
	}
	return tail
}

// validationMessage flattens the first field error into something a
// caller can act on.
func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return fmt.Sprintf("invalid value for %s", fieldErrs[0].Field())
	}
	return "invalid filter"
}
