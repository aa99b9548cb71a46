package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/jobscout/internal/common"
	"github.com/ternarybob/jobscout/internal/services/antidetect"
	"github.com/ternarybob/jobscout/internal/services/ratelimit"
	"github.com/ternarybob/jobscout/internal/services/registry"
)

// runPruner trims the run archive during the eviction sweep.
type runPruner interface {
	PruneOlderThan(maxAge time.Duration) (int, error)
}

// Service owns the background maintenance jobs: the periodic eviction
// sweep over the run registry, inbound limiter, and archive, plus the
// daily outbound session budget reset.
type Service struct {
	config   common.SchedulerConfig
	cron     *cron.Cron
	logger   arbor.ILogger
	registry *registry.Registry
	inbound  *ratelimit.Limiter
	outbound *antidetect.SessionLimiter
	archive  runPruner
}

// NewService creates the scheduler. archive may be nil when run
// archiving is disabled.
func NewService(
	config common.SchedulerConfig,
	reg *registry.Registry,
	inbound *ratelimit.Limiter,
	outbound *antidetect.SessionLimiter,
	archive runPruner,
	logger arbor.ILogger,
) *Service {
	return &Service{
		config:   config,
		cron:     cron.New(),
		logger:   logger,
		registry: reg,
		inbound:  inbound,
		outbound: outbound,
		archive:  archive,
	}
}

// Start registers the maintenance jobs and starts the cron loop.
func (s *Service) Start() error {
	evictExpr := s.config.EvictSchedule
	if evictExpr == "" {
		evictExpr = "*/10 * * * *"
	}
	if _, err := s.cron.AddFunc(evictExpr, s.evictionSweep); err != nil {
		return fmt.Errorf("failed to schedule eviction sweep: %w", err)
	}

	resetExpr := s.config.ResetSchedule
	if resetExpr == "" {
		resetExpr = "0 0 * * *"
	}
	if _, err := s.cron.AddFunc(resetExpr, s.resetOutboundBudget); err != nil {
		return fmt.Errorf("failed to schedule budget reset: %w", err)
	}

	s.cron.Start()
	s.logger.Info().
		Str("evict_schedule", evictExpr).
		Str("reset_schedule", resetExpr).
		Msg("Scheduler started")
	return nil
}

// Stop halts the cron loop and waits for any running job.
func (s *Service) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Scheduler stopped")
}

// evictionSweep drops stale terminal runs from the registry, prunes the
// archive, and forgets idle rate-limit clients.
func (s *Service) evictionSweep() {
	maxAge := time.Duration(s.config.RunMaxAgeHours) * time.Hour
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}

	evicted := s.registry.Evict(maxAge)
	swept := s.inbound.Sweep()

	pruned := 0
	if s.archive != nil {
		var err error
		if pruned, err = s.archive.PruneOlderThan(maxAge); err != nil {
			s.logger.Warn().Err(err).Msg("Archive prune failed")
		}
	}

	s.logger.Debug().
		Int("runs_evicted", evicted).
		Int("clients_swept", swept).
		Int("runs_pruned", pruned).
		Msg("Eviction sweep complete")
}

// resetOutboundBudget restores the per-session request budget.
func (s *Service) resetOutboundBudget() {
	s.outbound.Reset()
	s.logger.Info().Msg("Outbound session budget reset")
}
