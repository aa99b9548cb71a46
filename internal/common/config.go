package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Logging     LoggingConfig   `toml:"logging"`
	Scraper     ScraperConfig   `toml:"scraper"`
	Browser     BrowserConfig   `toml:"browser"`
	Auth        AuthConfig      `toml:"auth"`
	Enrich      EnrichConfig    `toml:"enrich"`
	Storage     StorageConfig   `toml:"storage"`
	Notify      NotifyConfig    `toml:"notify"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
}

type ServerConfig struct {
	Port           int      `toml:"port"`
	Host           string   `toml:"host"`
	AllowedOrigins []string `toml:"allowed_origins"` // CORS allow-list; credentialed requests only from these
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05.000")
}

// ScraperConfig contains discovery and validation tuning. Durations use
// Go duration syntax ("2s", "15s").
type ScraperConfig struct {
	PrimaryEndpoint   string        `toml:"primary_endpoint"`    // Guest listings endpoint base URL
	FallbackEndpoint  string        `toml:"fallback_endpoint"`   // Aggregated-search HTML endpoint
	SessionBudget     int           `toml:"session_budget"`      // Max outbound requests per session (default 50)
	DelayMin          time.Duration `toml:"delay_min"`           // Minimum spacing between outbound fetches
	DelayMax          time.Duration `toml:"delay_max"`           // Upper bound for jitter
	FetchTimeout      time.Duration `toml:"fetch_timeout"`       // Discovery fetch timeout
	ValidateTimeout   time.Duration `toml:"validate_timeout"`    // Tier-2 HTML fetch timeout
	ValidateWorkers   int           `toml:"validate_workers"`    // Tier-2/3 fan-out bound
	RateLimitDefault  int           `toml:"rate_limit_default"`  // Inbound requests per window per client
	RateLimitScraper  int           `toml:"rate_limit_scraper"`  // Inbound scrape starts per window per client
	RateLimitWindow   time.Duration `toml:"rate_limit_window"`   // Inbound sliding window size
	MaxConcurrentRuns int           `toml:"max_concurrent_runs"` // Simultaneous background runs
}

type BrowserConfig struct {
	Enabled     bool          `toml:"enabled"`      // Tier-3 validation available
	Headless    bool          `toml:"headless"`     // Run Chrome headless
	NavTimeout  time.Duration `toml:"nav_timeout"`  // Per-page navigation timeout
	SettleDelay time.Duration `toml:"settle_delay"` // Post-load wait for dynamic content
	PoolSize    int           `toml:"pool_size"`    // Concurrent browser contexts
}

type AuthConfig struct {
	Issuer    string `toml:"issuer"`     // Expected token issuer URL
	SharedKey string `toml:"shared_key"` // HS256 verification key; auth disabled when empty
	Audience  string `toml:"audience"`   // Expected audience claim
}

type EnrichConfig struct {
	Provider    string        `toml:"provider"`     // "gemini", "claude", or "keyword"
	APIKey      string        `toml:"api_key"`      // Provider credential
	Model       string        `toml:"model"`        // Provider model name
	Timeout     time.Duration `toml:"timeout"`      // Per-candidate enrichment timeout
	PacingDelay time.Duration `toml:"pacing_delay"` // Delay between enrichment calls
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type NotifyConfig struct {
	SMTPHost string `toml:"smtp_host"` // Notifications disabled when empty
	SMTPPort int    `toml:"smtp_port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	From     string `toml:"from"`
	To       string `toml:"to"`
}

type SchedulerConfig struct {
	Enabled        bool   `toml:"enabled"`
	EvictSchedule  string `toml:"evict_schedule"`  // Cron schedule for registry eviction sweeps
	ResetSchedule  string `toml:"reset_schedule"`  // Cron schedule for the outbound budget reset
	MaxStoredRuns  int    `toml:"max_stored_runs"` // Terminal runs kept in memory before eviction
	RunMaxAgeHours int    `toml:"run_max_age_hours"`
}

// NewDefaultConfig returns the configuration used when no file or
// environment override supplies a value.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port:           8085,
			Host:           "0.0.0.0",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05.000",
		},
		Scraper: ScraperConfig{
			PrimaryEndpoint:   "https://www.linkedin.com/jobs-guest/jobs/api/seeMoreJobPostings/search",
			FallbackEndpoint:  "https://html.duckduckgo.com/html/",
			SessionBudget:     50,
			DelayMin:          2 * time.Second,
			DelayMax:          5 * time.Second,
			FetchTimeout:      30 * time.Second,
			ValidateTimeout:   15 * time.Second,
			ValidateWorkers:   5,
			RateLimitDefault:  100,
			RateLimitScraper:  10,
			RateLimitWindow:   60 * time.Second,
			MaxConcurrentRuns: 3,
		},
		Browser: BrowserConfig{
			Enabled:     true,
			Headless:    true,
			NavTimeout:  20 * time.Second,
			SettleDelay: 1500 * time.Millisecond,
			PoolSize:    5,
		},
		Auth: AuthConfig{
			Audience: "authenticated",
		},
		Enrich: EnrichConfig{
			Provider:    "keyword",
			Timeout:     30 * time.Second,
			PacingDelay: 500 * time.Millisecond,
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/jobscout",
			},
		},
		Notify: NotifyConfig{
			SMTPPort: 587,
		},
		Scheduler: SchedulerConfig{
			Enabled:        true,
			EvictSchedule:  "*/10 * * * *",
			ResetSchedule:  "0 0 * * *",
			MaxStoredRuns:  100,
			RunMaxAgeHours: 24,
		},
	}
}

// LoadConfig loads configuration from the given TOML files in order
// (later files override earlier files), then applies environment
// variable overrides. Missing paths are skipped silently so callers can
// pass optional locations.
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config.
// Secrets (auth key, enrichment credential, SMTP password) are expected
// to arrive this way rather than through files.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("JOBSCOUT_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("JOBSCOUT_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("JOBSCOUT_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if origins := os.Getenv("JOBSCOUT_ALLOWED_ORIGINS"); origins != "" {
		parts := strings.Split(origins, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		config.Server.AllowedOrigins = cleaned
	}

	if level := os.Getenv("JOBSCOUT_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("JOBSCOUT_LOG_OUTPUT"); output != "" {
		config.Logging.Output = strings.Split(output, ",")
	}
	if debug := os.Getenv("JOBSCOUT_DEBUG"); debug == "true" || debug == "1" {
		config.Logging.Level = "debug"
	}

	if budget := os.Getenv("JOBSCOUT_SESSION_BUDGET"); budget != "" {
		if b, err := strconv.Atoi(budget); err == nil && b > 0 {
			config.Scraper.SessionBudget = b
		}
	}
	if endpoint := os.Getenv("JOBSCOUT_PRIMARY_ENDPOINT"); endpoint != "" {
		config.Scraper.PrimaryEndpoint = endpoint
	}
	if endpoint := os.Getenv("JOBSCOUT_FALLBACK_ENDPOINT"); endpoint != "" {
		config.Scraper.FallbackEndpoint = endpoint
	}

	if issuer := os.Getenv("JOBSCOUT_AUTH_ISSUER"); issuer != "" {
		config.Auth.Issuer = issuer
	}
	if key := os.Getenv("JOBSCOUT_AUTH_SHARED_KEY"); key != "" {
		config.Auth.SharedKey = key
	}

	if provider := os.Getenv("JOBSCOUT_ENRICH_PROVIDER"); provider != "" {
		config.Enrich.Provider = provider
	}
	if key := os.Getenv("JOBSCOUT_ENRICH_API_KEY"); key != "" {
		config.Enrich.APIKey = key
	}
	if model := os.Getenv("JOBSCOUT_ENRICH_MODEL"); model != "" {
		config.Enrich.Model = model
	}

	if path := os.Getenv("JOBSCOUT_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}

	if host := os.Getenv("JOBSCOUT_SMTP_HOST"); host != "" {
		config.Notify.SMTPHost = host
	}
	if password := os.Getenv("JOBSCOUT_SMTP_PASSWORD"); password != "" {
		config.Notify.Password = password
	}
}
