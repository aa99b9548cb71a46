package scraper

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/jobscout/internal/common"
	"github.com/ternarybob/jobscout/internal/interfaces"
	"github.com/ternarybob/jobscout/internal/models"
	"github.com/ternarybob/jobscout/internal/services/filter"
	"github.com/ternarybob/jobscout/internal/services/registry"
	"github.com/ternarybob/jobscout/internal/services/workers"
)

// Progress milestones reported through the run registry.
const (
	progressDiscovery  = 10
	progressDeduped    = 30
	progressValidated  = 60
	progressDeepChecks = 85
	progressDone       = 100
)

// Orchestrator drives a scrape run end to end: discovery, validation
// tiers, enrichment, ranking. Runs execute in the background; all state
// a caller can see goes through the registry.
type Orchestrator struct {
	config   *common.Config
	primary  interfaces.PrimarySource
	fallback interfaces.FallbackSource
	html     interfaces.Validator
	browser  interfaces.Validator
	enricher interfaces.Enricher
	registry *registry.Registry
	logger   arbor.ILogger
}

// NewOrchestrator wires the scrape pipeline. browser may be nil when
// headless validation is disabled.
func NewOrchestrator(
	config *common.Config,
	primary interfaces.PrimarySource,
	fallback interfaces.FallbackSource,
	html interfaces.Validator,
	browser interfaces.Validator,
	enricher interfaces.Enricher,
	reg *registry.Registry,
	logger arbor.ILogger,
) *Orchestrator {
	return &Orchestrator{
		config:   config,
		primary:  primary,
		fallback: fallback,
		html:     html,
		browser:  browser,
		enricher: enricher,
		registry: reg,
		logger:   logger,
	}
}

// StartRun registers a run for the owner and launches it in the
// background. The returned run is the queued snapshot; progress is
// observed via the registry.
func (o *Orchestrator) StartRun(ownerID string, spec models.FilterSpec) (models.ScrapeRun, error) {
	if max := o.config.Scraper.MaxConcurrentRuns; max > 0 && o.registry.ActiveCount() >= max {
		return models.ScrapeRun{}, common.ErrRateLimited("too many concurrent runs, try again shortly")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	run := o.registry.Create(ownerID, spec, cancel)

	go o.execute(runCtx, run.RunID, spec)

	o.logger.Info().
		Str("run_id", run.RunID).
		Str("keywords", spec.Keywords).
		Msg("Scrape run started")
	return run, nil
}

// execute runs the pipeline for one run. Cancellation is cooperative:
// it is observed between stages and inside the validation fan-outs.
func (o *Orchestrator) execute(ctx context.Context, runID string, spec models.FilterSpec) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error().Str("panic", fmt.Sprintf("%v", r)).Str("run_id", runID).Msg("Scrape run panicked")
			o.registry.Update(runID, func(run *models.ScrapeRun) {
				run.Status = models.RunStatusFailed
				run.Error = "Scrape failed"
			})
		}
	}()

	stats := make(map[string]int)

	o.registry.Update(runID, func(run *models.ScrapeRun) {
		run.Status = models.RunStatusRunning
		run.Progress = progressDiscovery
	})

	jobs, method, fallbackUsed, err := o.discover(ctx, &spec, stats)
	if o.checkCancelled(ctx, runID) {
		return
	}
	if err != nil {
		o.logger.Error().Err(err).Str("run_id", runID).Msg("Discovery failed")
		o.registry.Update(runID, func(run *models.ScrapeRun) {
			run.Status = models.RunStatusFailed
			run.Error = "Scrape failed"
		})
		return
	}

	jobs = Dedupe(jobs)
	sources := countSources(jobs)

	o.registry.Update(runID, func(run *models.ScrapeRun) {
		run.Progress = progressDeduped
		run.JobsFound = len(jobs)
		run.SearchMethod = method
		run.FallbackUsed = fallbackUsed
		run.Sources = sources
	})

	if spec.ValidateHTML {
		jobs = o.validateTier(ctx, jobs, &spec, o.html, len(jobs), stats)
		if o.checkCancelled(ctx, runID) {
			return
		}
	}
	o.registry.Update(runID, func(run *models.ScrapeRun) {
		run.Progress = progressValidated
		run.JobsFound = len(jobs)
	})

	if spec.ValidateBrowser && o.browser != nil {
		sortBySignal(jobs)
		jobs = o.validateTier(ctx, jobs, &spec, o.browser, spec.ValidateTopN, stats)
		if o.checkCancelled(ctx, runID) {
			return
		}
	}
	o.registry.Update(runID, func(run *models.ScrapeRun) {
		run.Progress = progressDeepChecks
		run.JobsFound = len(jobs)
	})

	jobs = o.enrichAll(ctx, jobs, &spec)
	if o.checkCancelled(ctx, runID) {
		return
	}

	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].MatchScore > jobs[j].MatchScore
	})
	if len(jobs) > spec.MaxResults {
		jobs = jobs[:spec.MaxResults]
	}

	o.registry.Update(runID, func(run *models.ScrapeRun) {
		run.Status = models.RunStatusCompleted
		run.Progress = progressDone
		run.Jobs = jobs
		run.JobsFound = len(jobs)
		run.FilterStats = stats
	})

	o.logger.Info().
		Str("run_id", runID).
		Int("jobs", len(jobs)).
		Str("method", string(method)).
		Msg("Scrape run completed")
}

// discover tries the native endpoint first and falls back to the
// aggregated web search when it is blocked or empty. Primary results
// carry only listing-card signals, so the snippet patterns and the
// structural caps are applied here; fallback results arrive already
// tier-1 filtered.
func (o *Orchestrator) discover(ctx context.Context, spec *models.FilterSpec, stats map[string]int) ([]models.Job, models.SearchMethod, bool, error) {
	jobs, blocked, err := o.primary.Search(ctx, spec)
	if err == nil && !blocked && len(jobs) > 0 {
		return o.filterPrimary(jobs, spec, stats), models.SearchMethodPrimary, false, nil
	}
	if ctx.Err() != nil {
		return nil, "", false, ctx.Err()
	}
	if err != nil {
		o.logger.Warn().Err(err).Msg("Primary discovery failed, switching to fallback")
	} else {
		o.logger.Info().Bool("blocked", blocked).Int("jobs", len(jobs)).Msg("Primary discovery empty or blocked, switching to fallback")
	}

	fallbackJobs, err := o.fallback.Search(ctx, spec)
	if err != nil {
		// Primary leftovers are better than nothing.
		if len(jobs) > 0 {
			return o.filterPrimary(jobs, spec, stats), models.SearchMethodPrimary, false, nil
		}
		return nil, "", true, err
	}
	return fallbackJobs, models.SearchMethodFallback, true, nil
}

// filterPrimary runs the tier-1 snippet patterns and the structural
// caps over raw primary cards. The adapter oversamples, so dropped
// cards are replaced by the surplus.
func (o *Orchestrator) filterPrimary(jobs []models.Job, spec *models.FilterSpec, stats map[string]int) []models.Job {
	kept := jobs[:0]
	for _, job := range jobs {
		if filter.DetectClosed(job.Snippet) {
			stats["closed"]++
			continue
		}
		if filter.DetectReposted(job.Snippet) {
			stats["reposted"]++
			continue
		}
		if ok, reason := filter.PassesStructural(&job, spec.MaxApplicants, spec.MaxHours()); !ok {
			stats[reasonKey(reason)]++
			continue
		}
		kept = append(kept, job)
	}
	return kept
}

// validateTier fans the first limit candidates out across the
// validation workers and drops the ones that failed. Jobs beyond the
// limit pass through untouched.
func (o *Orchestrator) validateTier(ctx context.Context, jobs []models.Job, spec *models.FilterSpec, validator interfaces.Validator, limit int, stats map[string]int) []models.Job {
	if len(jobs) == 0 || limit <= 0 {
		return jobs
	}
	if limit > len(jobs) {
		limit = len(jobs)
	}

	pool := workers.NewPool(ctx, o.config.Scraper.ValidateWorkers, o.logger)
	pool.Start()
	for i := 0; i < limit; i++ {
		job := &jobs[i]
		if err := pool.Submit(func(taskCtx context.Context) error {
			return validator.ValidateJob(taskCtx, job, spec)
		}); err != nil {
			break
		}
	}
	pool.Wait()

	kept := jobs[:0]
	for _, job := range jobs {
		if job.ValidationReason != "" && !job.PassesValidation {
			stats[reasonKey(job.ValidationReason)]++
			continue
		}
		kept = append(kept, job)
	}
	return kept
}

// enrichAll scores each surviving candidate, pacing calls to the
// external collaborator.
func (o *Orchestrator) enrichAll(ctx context.Context, jobs []models.Job, spec *models.FilterSpec) []models.Job {
	if o.enricher == nil || len(jobs) == 0 {
		return jobs
	}

	pacing := o.config.Enrich.PacingDelay
	for i := range jobs {
		if ctx.Err() != nil {
			return jobs
		}
		jobs[i] = o.enricher.Enrich(ctx, jobs[i], spec.UserSkills)
		if pacing > 0 && i < len(jobs)-1 {
			if !sleepCtx(ctx, pacing) {
				return jobs
			}
		}
	}
	return jobs
}

// checkCancelled marks the run cancelled if its context is done.
func (o *Orchestrator) checkCancelled(ctx context.Context, runID string) bool {
	if ctx.Err() == nil {
		return false
	}
	o.registry.Update(runID, func(run *models.ScrapeRun) {
		run.Status = models.RunStatusCancelled
	})
	o.logger.Info().Str("run_id", runID).Msg("Scrape run cancelled")
	return true
}

// Dedupe collapses duplicate discoveries. Identity is the external ID
// when both sides have one, otherwise the URL; the richer record wins a
// collision. Order of first appearance is preserved.
func Dedupe(jobs []models.Job) []models.Job {
	byID := make(map[string]int)
	byURL := make(map[string]int)
	out := make([]models.Job, 0, len(jobs))

	for _, job := range jobs {
		var existing = -1
		if job.ExternalID != "" {
			if i, ok := byID[job.ExternalID]; ok {
				existing = i
			}
		}
		if existing < 0 && job.URL != "" {
			if i, ok := byURL[job.URL]; ok {
				existing = i
			}
		}

		if existing >= 0 {
			if job.Richer(&out[existing]) {
				out[existing] = job
			}
			continue
		}

		out = append(out, job)
		idx := len(out) - 1
		if job.ExternalID != "" {
			byID[job.ExternalID] = idx
		}
		if job.URL != "" {
			byURL[job.URL] = idx
		}
	}
	return out
}

// sortBySignal orders candidates for the expensive tier: confirmed low
// applicant counts first, then the freshest postings, unknowns last.
func sortBySignal(jobs []models.Job) {
	sort.SliceStable(jobs, func(i, j int) bool {
		a, b := &jobs[i], &jobs[j]
		switch {
		case a.Applicants != nil && b.Applicants != nil:
			if *a.Applicants != *b.Applicants {
				return *a.Applicants < *b.Applicants
			}
		case a.Applicants != nil:
			return true
		case b.Applicants != nil:
			return false
		}
		switch {
		case a.PostedHoursAgo != nil && b.PostedHoursAgo != nil:
			return *a.PostedHoursAgo < *b.PostedHoursAgo
		case a.PostedHoursAgo != nil:
			return true
		case b.PostedHoursAgo != nil:
			return false
		}
		return false
	})
}

// reasonKey collapses parameterized validation reasons so the filter
// stats stay low-cardinality: "too_many_applicants:245" counts under
// "too_many_applicants".
func reasonKey(reason string) string {
	if i := strings.Index(reason, ":"); i > 0 {
		return reason[:i]
	}
	return reason
}

func countSources(jobs []models.Job) map[string]int {
	counts := make(map[string]int)
	for _, job := range jobs {
		counts[string(job.Source)]++
	}
	return counts
}

// sleepCtx sleeps unless the context is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
