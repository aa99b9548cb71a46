package enrich

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/jobscout/internal/common"
)

const defaultClaudeModel = "claude-3-5-haiku-latest"

// ClaudeExtractor asks a Claude model for the required skills in a job
// posting.
type ClaudeExtractor struct {
	client anthropic.Client
	model  string
	logger arbor.ILogger
}

func NewClaudeExtractor(cfg common.EnrichConfig, logger arbor.ILogger) (*ClaudeExtractor, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Claude API key is required (set via JOBSCOUT_ENRICH_API_KEY or enrich.api_key in config)")
	}

	client := anthropic.NewClient(
		option.WithAPIKey(cfg.APIKey),
	)

	model := cfg.Model
	if model == "" {
		model = defaultClaudeModel
	}

	logger.Debug().Str("model", model).Msg("Claude enrichment provider initialized")

	return &ClaudeExtractor{
		client: client,
		model:  model,
		logger: logger,
	}, nil
}

func (e *ClaudeExtractor) Name() string {
	return "claude"
}

func (e *ClaudeExtractor) ExtractSkills(ctx context.Context, text string) ([]string, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(e.model),
		MaxTokens:   1024,
		Temperature: anthropic.Float(0.1),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(extractionPrompt(text)),
			),
		},
	}

	resp, err := e.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("skill extraction failed: %w", err)
	}

	var response strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			response.WriteString(block.Text)
		}
	}
	if response.Len() == 0 {
		return nil, fmt.Errorf("no response generated from Claude")
	}

	return parseExtraction(response.String())
}
