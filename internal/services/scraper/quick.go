package scraper

import (
	"context"

	"github.com/ternarybob/jobscout/internal/models"
)

// QuickSearch runs discovery synchronously with snippet-tier filtering
// only: no fetch-based validation, no enrichment. It serves callers who
// want a fast candidate list and accept snippet-level confidence.
func (o *Orchestrator) QuickSearch(ctx context.Context, spec models.FilterSpec) ([]models.Job, models.SearchMethod, error) {
	jobs, blocked, err := o.primary.Search(ctx, &spec)
	if err == nil && !blocked && len(jobs) > 0 {
		jobs = Dedupe(o.filterPrimary(jobs, &spec, make(map[string]int)))
		if len(jobs) > spec.MaxResults {
			jobs = jobs[:spec.MaxResults]
		}
		return jobs, models.SearchMethodPrimary, nil
	}
	if ctx.Err() != nil {
		return nil, "", ctx.Err()
	}

	fallbackJobs, ferr := o.fallback.Search(ctx, &spec)
	if ferr != nil {
		if len(jobs) > 0 {
			return Dedupe(o.filterPrimary(jobs, &spec, make(map[string]int))), models.SearchMethodPrimary, nil
		}
		return nil, "", ferr
	}

	fallbackJobs = Dedupe(fallbackJobs)
	if len(fallbackJobs) > spec.MaxResults {
		fallbackJobs = fallbackJobs[:spec.MaxResults]
	}
	return fallbackJobs, models.SearchMethodFallback, nil
}
