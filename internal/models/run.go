package models

import "time"

// RunStatus represents the state of a scrape run
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status allows no further transitions.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// SearchMethod labels which discovery path produced a run's jobs.
type SearchMethod string

const (
	SearchMethodPrimary  SearchMethod = "primary"
	SearchMethodFallback SearchMethod = "fallback"
)

// ScrapeRun is the mutable state of one scrape, stored in the run
// registry and owned by the caller that started it. The orchestrator is
// the only writer for a given run.
type ScrapeRun struct {
	RunID   string     `json:"runId" badgerhold:"key"`
	OwnerID string     `json:"-"`
	Spec    FilterSpec `json:"spec"`

	Status   RunStatus `json:"status"`
	Progress int       `json:"progress"`

	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt"`

	JobsFound int   `json:"jobsFound"`
	Jobs      []Job `json:"jobs,omitempty"`

	SearchMethod SearchMethod   `json:"searchMethod,omitempty"`
	FallbackUsed bool           `json:"fallbackUsed"`
	Sources      map[string]int `json:"sources,omitempty"`
	FilterStats  map[string]int `json:"filterStats,omitempty"`

	Error string `json:"error,omitempty"`
}

// Summary returns a copy without the job payload, for run listings.
func (r *ScrapeRun) Summary() ScrapeRun {
	c := *r
	c.Jobs = nil
	return c
}
