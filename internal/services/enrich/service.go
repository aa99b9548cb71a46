package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/jobscout/internal/common"
	"github.com/ternarybob/jobscout/internal/models"
)

// maxPromptChars caps how much job text is sent to a provider.
const maxPromptChars = 4000

// skillExtractor is the provider-specific piece: given job text, return
// the skills the posting requires.
type skillExtractor interface {
	ExtractSkills(ctx context.Context, text string) ([]string, error)
	Name() string
}

// Service scores jobs against the user's skills using a pluggable
// extraction provider. Extraction failures never fail a run: the job
// comes back unchanged with a zero score.
type Service struct {
	extractor skillExtractor
	timeout   time.Duration
	logger    arbor.ILogger
}

// NewService wraps an extractor selected by the factory.
func NewService(cfg common.EnrichConfig, extractor skillExtractor, logger arbor.ILogger) *Service {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Service{
		extractor: extractor,
		timeout:   timeout,
		logger:    logger,
	}
}

func (s *Service) Name() string {
	return s.extractor.Name()
}

// Enrich extracts required skills from the job's best available text
// and scores the overlap with the user's skills.
func (s *Service) Enrich(ctx context.Context, job models.Job, userSkills []string) models.Job {
	text := job.Text()
	if strings.TrimSpace(text) == "" {
		job.MatchScore = 0
		return job
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	skills, err := s.extractor.ExtractSkills(callCtx, truncateText(text, maxPromptChars))
	if err != nil {
		s.logger.Warn().Err(err).
			Str("provider", s.extractor.Name()).
			Str("url", job.URL).
			Msg("Skill extraction failed, job left unscored")
		job.MatchScore = 0
		return job
	}

	job.RequiredSkills = NormalizeSkills(skills)
	job.MatchScore, job.MatchedSkills, job.MissingSkills = MatchSkills(job.RequiredSkills, userSkills)
	return job
}

func truncateText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// skillExtraction is the JSON shape the LLM providers are asked to
// return.
type skillExtraction struct {
	RequiredSkills []string `json:"required_skills"`
}

// extractionPrompt builds the shared provider prompt.
func extractionPrompt(text string) string {
	return fmt.Sprintf(`Analyze this job description and extract the required skills in JSON format:
{"required_skills": ["skill1", "skill2", ...]}

Include technologies, tools, languages, and named qualifications that the posting requires. Return ONLY valid JSON.

Job description:
%s`, text)
}

// parseExtraction strips markdown code fences and decodes the provider
// response.
func parseExtraction(raw string) ([]string, error) {
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		if idx := strings.LastIndex(cleaned, "```"); idx >= 0 {
			cleaned = cleaned[:idx]
		}
		cleaned = strings.TrimSpace(cleaned)
	}

	var parsed skillExtraction
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, fmt.Errorf("provider returned invalid JSON: %w", err)
	}
	return parsed.RequiredSkills, nil
}
