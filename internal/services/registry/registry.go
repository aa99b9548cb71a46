package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/jobscout/internal/common"
	"github.com/ternarybob/jobscout/internal/interfaces"
	"github.com/ternarybob/jobscout/internal/models"
)

// entry pairs a run with its cancellation hook. The cancel func is
// released once the run is terminal.
type entry struct {
	run    *models.ScrapeRun
	cancel context.CancelFunc
}

// Registry is the in-memory, owner-scoped store of scrape runs. Lookups
// never reveal whether a run belongs to someone else: a foreign runId
// and an unknown runId are the same not-found.
type Registry struct {
	mu        sync.RWMutex
	runs      map[string]*entry
	maxStored int

	archive  interfaces.RunArchive
	notifier interfaces.RunNotifier
	logger   arbor.ILogger
}

// NewRegistry creates a run registry. archive and notifier are
// optional; nil disables the corresponding hook.
func NewRegistry(maxStored int, archive interfaces.RunArchive, notifier interfaces.RunNotifier, logger arbor.ILogger) *Registry {
	if maxStored <= 0 {
		maxStored = 100
	}
	return &Registry{
		runs:      make(map[string]*entry),
		maxStored: maxStored,
		archive:   archive,
		notifier:  notifier,
		logger:    logger,
	}
}

// Create registers a new queued run for the given owner and binds the
// cancellation hook the orchestrator will honor.
func (reg *Registry) Create(ownerID string, spec models.FilterSpec, cancel context.CancelFunc) models.ScrapeRun {
	run := &models.ScrapeRun{
		RunID:     uuid.NewString(),
		OwnerID:   ownerID,
		Spec:      spec,
		Status:    models.RunStatusQueued,
		StartedAt: time.Now().UTC(),
	}

	reg.mu.Lock()
	reg.runs[run.RunID] = &entry{run: run, cancel: cancel}
	reg.evictLocked()
	reg.mu.Unlock()

	return *run
}

// Update applies fn to the run under the registry lock. The
// orchestrator is the only caller. A transition into a terminal state
// publishes the run to the archive and notifier.
func (reg *Registry) Update(runID string, fn func(run *models.ScrapeRun)) {
	reg.mu.Lock()
	e, ok := reg.runs[runID]
	if !ok {
		reg.mu.Unlock()
		return
	}

	wasTerminal := e.run.Status.Terminal()
	fn(e.run)
	nowTerminal := e.run.Status.Terminal()

	var published models.ScrapeRun
	if !wasTerminal && nowTerminal {
		now := time.Now().UTC()
		e.run.CompletedAt = &now
		e.cancel = nil
		published = *e.run
	}
	reg.mu.Unlock()

	if !wasTerminal && nowTerminal {
		go reg.publish(published)
	}
}

// Get returns the run if it exists and belongs to the caller.
func (reg *Registry) Get(runID, callerID string) (models.ScrapeRun, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	e, ok := reg.runs[runID]
	if !ok || e.run.OwnerID != callerID {
		return models.ScrapeRun{}, common.ErrNotFound("run not found")
	}
	return *e.run, nil
}

// List returns the caller's run summaries, newest first.
func (reg *Registry) List(callerID string) []models.ScrapeRun {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	out := make([]models.ScrapeRun, 0)
	for _, e := range reg.runs {
		if e.run.OwnerID == callerID {
			out = append(out, e.run.Summary())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// Cancel requests cancellation of a non-terminal run. The orchestrator
// observes the context and moves the run to cancelled at its next
// suspension point.
func (reg *Registry) Cancel(runID, callerID string) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	e, ok := reg.runs[runID]
	if !ok || e.run.OwnerID != callerID {
		return common.ErrNotFound("run not found")
	}
	if e.run.Status.Terminal() {
		return common.ErrInvalidInput("run already finished")
	}
	if e.cancel != nil {
		e.cancel()
	}
	return nil
}

// ActiveCount reports how many runs are not yet terminal.
func (reg *Registry) ActiveCount() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	n := 0
	for _, e := range reg.runs {
		if !e.run.Status.Terminal() {
			n++
		}
	}
	return n
}

// Evict removes terminal runs beyond the storage cap and those older
// than maxAge. Active runs are never evicted, even when the cap is
// exceeded.
func (reg *Registry) Evict(maxAge time.Duration) int {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	removed := 0
	if maxAge > 0 {
		cutoff := time.Now().UTC().Add(-maxAge)
		for id, e := range reg.runs {
			if e.run.Status.Terminal() && e.run.StartedAt.Before(cutoff) {
				delete(reg.runs, id)
				removed++
			}
		}
	}
	removed += reg.evictLocked()
	return removed
}

// evictLocked drops the oldest terminal runs until the cap holds.
func (reg *Registry) evictLocked() int {
	excess := len(reg.runs) - reg.maxStored
	if excess <= 0 {
		return 0
	}

	terminal := make([]*models.ScrapeRun, 0, excess)
	for _, e := range reg.runs {
		if e.run.Status.Terminal() {
			terminal = append(terminal, e.run)
		}
	}
	sort.Slice(terminal, func(i, j int) bool {
		return terminal[i].StartedAt.Before(terminal[j].StartedAt)
	})

	removed := 0
	for _, run := range terminal {
		if removed >= excess {
			break
		}
		delete(reg.runs, run.RunID)
		removed++
	}
	return removed
}

// publish hands a terminal run to the archive and notifier. Both are
// best effort.
func (reg *Registry) publish(run models.ScrapeRun) {
	if reg.archive != nil {
		if err := reg.archive.SaveRun(&run); err != nil {
			reg.logger.Warn().Err(err).Str("run_id", run.RunID).Msg("Failed to archive run")
		}
	}
	if reg.notifier != nil {
		reg.notifier.RunCompleted(&run)
	}
}
