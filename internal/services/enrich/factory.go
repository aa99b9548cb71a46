package enrich

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/jobscout/internal/common"
	"github.com/ternarybob/jobscout/internal/interfaces"
)

// NewEnricher creates the enrichment service for the configured
// provider. An unset provider falls back to the deterministic keyword
// matcher so enrichment always works without credentials.
func NewEnricher(cfg common.EnrichConfig, logger arbor.ILogger) (interfaces.Enricher, error) {
	var (
		extractor skillExtractor
		err       error
	)

	switch cfg.Provider {
	case "gemini":
		extractor, err = NewGeminiExtractor(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini enrichment provider: %w", err)
		}
	case "claude":
		extractor, err = NewClaudeExtractor(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Claude enrichment provider: %w", err)
		}
	case "keyword", "":
		extractor = NewKeywordExtractor()
	default:
		return nil, fmt.Errorf("unsupported enrichment provider: %s (use 'gemini', 'claude', or 'keyword')", cfg.Provider)
	}

	logger.Info().Str("provider", extractor.Name()).Msg("Enrichment service initialized")
	return NewService(cfg, extractor, logger), nil
}
