package interfaces

import (
	"context"

	"github.com/ternarybob/jobscout/internal/models"
)

// PrimarySource queries the native listings endpoint with server-side
// filters and parses result cards into canonical jobs.
type PrimarySource interface {
	// Search returns discovered jobs and whether the endpoint blocked
	// us (429 or any other non-200). A blocked response is not an
	// error: the orchestrator reacts by switching to the fallback.
	Search(ctx context.Context, spec *models.FilterSpec) (jobs []models.Job, blocked bool, err error)
}

// FallbackSource issues an aggregated-web-search query and parses
// heterogeneous result snippets, pre-filtering via the tier-1 snippet
// patterns.
type FallbackSource interface {
	Search(ctx context.Context, spec *models.FilterSpec) ([]models.Job, error)
}

// Validator verifies a single candidate in place, updating its
// validation tier, pass flag, and reason. Implementations must
// fail-open on transport trouble: a job is never dropped just because
// it could not be checked.
type Validator interface {
	ValidateJob(ctx context.Context, job *models.Job, spec *models.FilterSpec) error
}

// Enricher is the external collaborator that parses required skills
// from a job's text and scores it against the user's skills. On
// failure the job comes back unchanged with a zero score; enrichment
// never fails a run.
type Enricher interface {
	Enrich(ctx context.Context, job models.Job, userSkills []string) models.Job
	Name() string
}

// RunArchive persists terminal runs for post-hoc inspection. The
// registry publishes to it; nothing reads it on the hot path.
type RunArchive interface {
	SaveRun(run *models.ScrapeRun) error
	Close() error
}

// RunNotifier is told when a run reaches a terminal state with
// results. Notification failures are logged and ignored.
type RunNotifier interface {
	RunCompleted(run *models.ScrapeRun)
}
