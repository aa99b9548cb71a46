package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ternarybob/jobscout/internal/common"
	"github.com/ternarybob/jobscout/internal/models"
)

func newTestRegistry(maxStored int) *Registry {
	return NewRegistry(maxStored, nil, nil, common.GetLogger())
}

func testRunSpec() models.FilterSpec {
	return models.FilterSpec{Keywords: "engineer", MaxResults: 10}
}

func TestRegistryCreateAndGet(t *testing.T) {
	reg := newTestRegistry(10)
	run := reg.Create("alice", testRunSpec(), func() {})

	got, err := reg.Get(run.RunID, "alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != models.RunStatusQueued {
		t.Errorf("status = %q, want queued", got.Status)
	}
	if got.RunID == "" || got.StartedAt.IsZero() {
		t.Error("run identity fields should be populated")
	}
}

func TestRegistryOwnerScoping(t *testing.T) {
	reg := newTestRegistry(10)
	run := reg.Create("alice", testRunSpec(), func() {})

	_, errForeign := reg.Get(run.RunID, "mallory")
	_, errMissing := reg.Get("no-such-run", "mallory")

	if common.KindOf(errForeign) != common.KindNotFound {
		t.Errorf("foreign run must read as not_found, got %v", errForeign)
	}
	// A foreign run and a missing run must be indistinguishable.
	if errForeign.Error() != errMissing.Error() {
		t.Errorf("foreign %q vs missing %q leak ownership", errForeign, errMissing)
	}

	if err := reg.Cancel(run.RunID, "mallory"); common.KindOf(err) != common.KindNotFound {
		t.Errorf("foreign cancel must read as not_found, got %v", err)
	}
}

func TestRegistryListScopedAndSorted(t *testing.T) {
	reg := newTestRegistry(10)
	a1 := reg.Create("alice", testRunSpec(), func() {})
	reg.Create("bob", testRunSpec(), func() {})
	// Force distinct creation times.
	reg.Update(a1.RunID, func(run *models.ScrapeRun) {
		run.StartedAt = run.StartedAt.Add(-time.Minute)
		run.Jobs = []models.Job{{URL: "http://example.com/1"}}
	})
	a2 := reg.Create("alice", testRunSpec(), func() {})

	runs := reg.List("alice")
	if len(runs) != 2 {
		t.Fatalf("len = %d, want 2", len(runs))
	}
	if runs[0].RunID != a2.RunID {
		t.Error("list should be newest first")
	}
	for _, r := range runs {
		if r.Jobs != nil {
			t.Error("list must return summaries without job payloads")
		}
	}
}

func TestRegistryCancel(t *testing.T) {
	reg := newTestRegistry(10)
	ctx, cancel := context.WithCancel(context.Background())
	run := reg.Create("alice", testRunSpec(), cancel)

	if err := reg.Cancel(run.RunID, "alice"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("cancel hook was not invoked")
	}

	reg.Update(run.RunID, func(r *models.ScrapeRun) { r.Status = models.RunStatusCancelled })
	err := reg.Cancel(run.RunID, "alice")
	if common.KindOf(err) != common.KindInvalidInput {
		t.Errorf("cancelling a finished run should be invalid_input, got %v", err)
	}
}

func TestRegistryTerminalTransitionSetsCompletedAt(t *testing.T) {
	reg := newTestRegistry(10)
	run := reg.Create("alice", testRunSpec(), func() {})

	reg.Update(run.RunID, func(r *models.ScrapeRun) {
		r.Status = models.RunStatusCompleted
		r.Progress = 100
	})

	got, err := reg.Get(run.RunID, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if got.CompletedAt == nil {
		t.Error("terminal transition must stamp CompletedAt")
	}
}

type recordingArchive struct {
	mu    sync.Mutex
	saved []string
}

func (a *recordingArchive) SaveRun(run *models.ScrapeRun) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.saved = append(a.saved, run.RunID)
	return nil
}

func (a *recordingArchive) Close() error { return nil }

func (a *recordingArchive) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.saved)
}

func TestRegistryPublishesTerminalRuns(t *testing.T) {
	archive := &recordingArchive{}
	reg := NewRegistry(10, archive, nil, common.GetLogger())
	run := reg.Create("alice", testRunSpec(), func() {})

	reg.Update(run.RunID, func(r *models.ScrapeRun) { r.Status = models.RunStatusFailed })
	// Progress updates after terminal must not re-publish.
	reg.Update(run.RunID, func(r *models.ScrapeRun) { r.Progress = 100 })

	deadline := time.After(time.Second)
	for archive.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("terminal run was never archived")
		case <-time.After(10 * time.Millisecond):
		}
	}
	time.Sleep(20 * time.Millisecond)
	if archive.count() != 1 {
		t.Errorf("archived %d times, want exactly 1", archive.count())
	}
}

func TestRegistryEvictsOnlyTerminalRuns(t *testing.T) {
	reg := newTestRegistry(2)

	active := reg.Create("alice", testRunSpec(), func() {})
	oldDone := reg.Create("alice", testRunSpec(), func() {})
	reg.Update(oldDone.RunID, func(r *models.ScrapeRun) {
		r.Status = models.RunStatusCompleted
		r.StartedAt = r.StartedAt.Add(-time.Hour)
	})

	// Third run pushes the map over the cap; only the terminal run may go.
	newest := reg.Create("alice", testRunSpec(), func() {})

	if _, err := reg.Get(oldDone.RunID, "alice"); common.KindOf(err) != common.KindNotFound {
		t.Errorf("oldest terminal run should be evicted, got %v", err)
	}
	for _, id := range []string{active.RunID, newest.RunID} {
		if _, err := reg.Get(id, "alice"); err != nil {
			t.Errorf("run %s should survive eviction: %v", id, err)
		}
	}
}

func TestRegistryEvictByAge(t *testing.T) {
	reg := newTestRegistry(100)
	stale := reg.Create("alice", testRunSpec(), func() {})
	reg.Update(stale.RunID, func(r *models.ScrapeRun) {
		r.Status = models.RunStatusCompleted
		r.StartedAt = time.Now().UTC().Add(-48 * time.Hour)
	})
	fresh := reg.Create("alice", testRunSpec(), func() {})
	reg.Update(fresh.RunID, func(r *models.ScrapeRun) { r.Status = models.RunStatusCompleted })

	if removed := reg.Evict(24 * time.Hour); removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := reg.Get(fresh.RunID, "alice"); err != nil {
		t.Errorf("fresh run should survive: %v", err)
	}
}

func TestRegistryActiveCount(t *testing.T) {
	reg := newTestRegistry(10)
	r1 := reg.Create("alice", testRunSpec(), func() {})
	reg.Create("bob", testRunSpec(), func() {})

	if got := reg.ActiveCount(); got != 2 {
		t.Errorf("ActiveCount = %d, want 2", got)
	}
	reg.Update(r1.RunID, func(r *models.ScrapeRun) { r.Status = models.RunStatusCompleted })
	if got := reg.ActiveCount(); got != 1 {
		t.Errorf("ActiveCount = %d, want 1", got)
	}
}
