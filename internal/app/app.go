package app

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/jobscout/internal/common"
	"github.com/ternarybob/jobscout/internal/handlers"
	"github.com/ternarybob/jobscout/internal/interfaces"
	"github.com/ternarybob/jobscout/internal/services/antidetect"
	"github.com/ternarybob/jobscout/internal/services/auth"
	"github.com/ternarybob/jobscout/internal/services/discovery"
	"github.com/ternarybob/jobscout/internal/services/enrich"
	"github.com/ternarybob/jobscout/internal/services/mailer"
	"github.com/ternarybob/jobscout/internal/services/ratelimit"
	"github.com/ternarybob/jobscout/internal/services/registry"
	"github.com/ternarybob/jobscout/internal/services/scheduler"
	"github.com/ternarybob/jobscout/internal/services/scraper"
	"github.com/ternarybob/jobscout/internal/services/validation"
	"github.com/ternarybob/jobscout/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Outbound request budget shared by discovery and validation
	Outbound *antidetect.SessionLimiter

	// Storage
	Storage *badger.BadgerDB
	Archive *badger.RunStorage

	// Run tracking and notification
	Registry *registry.Registry
	Notifier *mailer.Service

	// Scrape pipeline
	Orchestrator *scraper.Orchestrator
	Browser      *validation.BrowserValidator

	// Enrichment collaborator (gemini, claude, or keyword)
	Enricher interfaces.Enricher

	// Authentication
	AuthValidator *auth.Validator

	// Background maintenance (started after the HTTP server exists)
	Scheduler *scheduler.Service

	// HTTP handlers
	ScraperHandler *handlers.ScraperHandler
	EventsHandler  *handlers.EventsHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Outbound session limiter is shared by every component that talks
	// to the job boards, so one budget covers the whole pipeline.
	app.Outbound = antidetect.NewSessionLimiter(
		cfg.Scraper.SessionBudget,
		cfg.Scraper.DelayMin,
		cfg.Scraper.DelayMax,
	)

	if err := app.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	logger.Info().
		Str("enrich_provider", app.Enricher.Name()).
		Bool("browser_enabled", app.Browser != nil).
		Bool("auth_enabled", app.AuthValidator.Enabled()).
		Msg("Application initialization complete")

	return app, nil
}

// initStorage opens the Badger-backed run archive.
func (a *App) initStorage() error {
	db, err := badger.NewBadgerDB(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return err
	}
	a.Storage = db
	a.Archive = badger.NewRunStorage(db, a.Logger)

	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")
	return nil
}

// initServices builds the scrape pipeline in dependency order:
// notifier and registry first, then discovery and validation tiers,
// then the orchestrator that drives them.
func (a *App) initServices() error {
	a.Notifier = mailer.NewService(a.Config.Notify, a.Logger)
	if !a.Notifier.Enabled() {
		a.Logger.Debug().Msg("Run notifications disabled (no SMTP host configured)")
	}

	a.Registry = registry.NewRegistry(
		a.Config.Scheduler.MaxStoredRuns,
		a.Archive,
		a.Notifier,
		a.Logger,
	)

	primary := discovery.NewPrimaryAdapter(
		a.Config.Scraper.PrimaryEndpoint,
		a.Config.Scraper.FetchTimeout,
		a.Outbound,
		a.Logger,
	)
	fallback := discovery.NewFallbackAdapter(
		a.Config.Scraper.FallbackEndpoint,
		a.Config.Scraper.FetchTimeout,
		a.Outbound,
		a.Logger,
	)

	htmlValidator := validation.NewHTMLValidator(&a.Config.Scraper, a.Outbound, a.Logger)

	// The browser tier is optional: runs degrade to two-tier validation
	// when Chrome is unavailable or disabled.
	var browserValidator interfaces.Validator
	if a.Config.Browser.Enabled {
		bv, err := validation.NewBrowserValidator(a.Config.Browser, a.Logger)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("Browser validator unavailable - deep validation disabled")
		} else {
			a.Browser = bv
			browserValidator = bv
		}
	}

	enricher, err := enrich.NewEnricher(a.Config.Enrich, a.Logger)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Enrichment provider unavailable - falling back to keyword matching")
		enricher, err = enrich.NewEnricher(common.EnrichConfig{Provider: "keyword"}, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to create enricher: %w", err)
		}
	}
	a.Enricher = enricher
	a.Logger.Debug().Str("provider", enricher.Name()).Msg("Enrichment provider initialized")

	a.Orchestrator = scraper.NewOrchestrator(
		a.Config,
		primary,
		fallback,
		htmlValidator,
		browserValidator,
		enricher,
		a.Registry,
		a.Logger,
	)

	a.AuthValidator = auth.NewValidator(a.Config.Auth)

	return nil
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() {
	enrichReady := a.Enricher.Name() != "keyword"

	a.ScraperHandler = handlers.NewScraperHandler(
		a.Orchestrator,
		a.Registry,
		a.Outbound,
		enrichReady,
		a.Logger,
	)
	a.EventsHandler = handlers.NewEventsHandler(a.Registry, a.Config.Server.AllowedOrigins, a.Logger)
}

// StartScheduler wires and starts the maintenance jobs. It takes the
// inbound limiter from the HTTP server so the eviction sweep can
// forget idle clients, which is why it runs after server construction.
func (a *App) StartScheduler(inbound *ratelimit.Limiter) error {
	if !a.Config.Scheduler.Enabled {
		a.Logger.Debug().Msg("Scheduler disabled by configuration")
		return nil
	}

	a.Scheduler = scheduler.NewService(
		a.Config.Scheduler,
		a.Registry,
		inbound,
		a.Outbound,
		a.Archive,
		a.Logger,
	)
	return a.Scheduler.Start()
}

// Close closes all application resources
func (a *App) Close() error {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}

	if a.Browser != nil {
		a.Browser.Shutdown()
		a.Logger.Debug().Msg("Browser validator stopped")
	}

	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
