package enrich

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/ternarybob/jobscout/internal/common"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiExtractor asks a Gemini model for the required skills in a job
// posting.
type GeminiExtractor struct {
	client *genai.Client
	model  string
	logger arbor.ILogger
}

func NewGeminiExtractor(cfg common.EnrichConfig, logger arbor.ILogger) (*GeminiExtractor, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required (set via JOBSCOUT_ENRICH_API_KEY or enrich.api_key in config)")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}

	logger.Debug().Str("model", model).Msg("Gemini enrichment provider initialized")

	return &GeminiExtractor{
		client: client,
		model:  model,
		logger: logger,
	}, nil
}

func (e *GeminiExtractor) Name() string {
	return "gemini"
}

func (e *GeminiExtractor) ExtractSkills(ctx context.Context, text string) ([]string, error) {
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0.1),
	}

	resp, err := e.client.Models.GenerateContent(ctx, e.model, genai.Text(extractionPrompt(text)), config)
	if err != nil {
		return nil, fmt.Errorf("skill extraction failed: %w", err)
	}

	var response strings.Builder
	if resp != nil {
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					response.WriteString(part.Text)
				}
			}
			if response.Len() > 0 {
				break
			}
		}
	}
	if response.Len() == 0 {
		return nil, fmt.Errorf("no response generated from Gemini")
	}

	return parseExtraction(response.String())
}
