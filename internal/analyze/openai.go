package analyze

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"annotator/internal/domain"
	"annotator/internal/taxonomy"
)

const (
	DefaultModel = "gpt-4o-mini"
	maxTokens    = 4092

	systemPrompt = "You are an assistant that detects guard-dog tactics in news articles and outputs annotations in JSON format."
)

const userPrompt = `Analyze the following article text and extract any guard-dog tactics as annotations.

Article Text:
"""
%s
"""

Guard-Dog Tactics to Detect:
%s
Instructions:
1. Extract all guard-dog tactics in the article.
2. Be concise and very specific; only include tactics directly present in the article.
3. Copy "highlighted_text" verbatim from the article.
4. Answer with a JSON object {"annotations": [...]} whose entries have the fields "category", "subcategory" and "highlighted_text".

Category can be one of [%s].
Subcategory can be any of the tactics listed above with the corresponding number in parentheses.`

type OpenAIConfig struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint, for compatible gateways.
	BaseURL string
}

// OpenAIAnalyzer calls the chat completions API.
type OpenAIAnalyzer struct {
	client *openai.Client
	model  string
	log    zerolog.Logger
}

func NewOpenAIAnalyzer(cfg OpenAIConfig, logger zerolog.Logger) (*OpenAIAnalyzer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	logger.Info().Str("model", cfg.Model).Msg("initializing openai analyzer")
	return &OpenAIAnalyzer{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
		log:    logger.With().Str("component", "analyze").Logger(),
	}, nil
}

func (a *OpenAIAnalyzer) Analyze(ctx context.Context, article domain.Article, tax *taxonomy.Taxonomy) ([]Suggestion, error) {
	if strings.TrimSpace(article.Text) == "" {
		return []Suggestion{}, nil
	}
	req := openai.ChatCompletionRequest{
		Model: a.model,
		// Zero is dropped by omitempty and would fall back to the API default.
		Temperature: math.SmallestNonzeroFloat32,
		MaxTokens:   maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(article.Text, tax)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	a.log.Debug().Str("article_id", article.ID).Str("model", a.model).Msg("requesting analysis")
	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}
	a.log.Debug().
		Str("article_id", article.ID).
		Str("finish_reason", string(resp.Choices[0].FinishReason)).
		Int("total_tokens", resp.Usage.TotalTokens).
		Msg("analysis received")

	suggestions, err := parseSuggestions(resp.Choices[0].Message.Content, tax)
	if err != nil {
		return nil, fmt.Errorf("parse analysis for article %s: %w", article.ID, err)
	}
	return suggestions, nil
}

func buildPrompt(text string, tax *taxonomy.Taxonomy) string {
	ids := make([]string, 0)
	for _, c := range tax.Categories() {
		ids = append(ids, fmt.Sprintf("%q", c.ID))
	}
	return fmt.Sprintf(userPrompt, text, tax.Describe(), strings.Join(ids, ", "))
}
