// Package analyze asks a language model to suggest manipulation annotations
// for an article.
package analyze

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"annotator/internal/domain"
	"annotator/internal/taxonomy"
)

// Suggestion is one annotation proposed by a model. It carries no offsets;
// the caller locates the text in the article.
type Suggestion struct {
	Category        string `json:"category"`
	Subcategory     string `json:"subcategory"`
	HighlightedText string `json:"highlighted_text"`
}

type Analyzer interface {
	Analyze(ctx context.Context, article domain.Article, tax *taxonomy.Taxonomy) ([]Suggestion, error)
}

// parseSuggestions accepts either {"annotations": [...]} or a bare array,
// optionally wrapped in a markdown code fence. Suggestions with an unknown
// category or blank text are dropped.
func parseSuggestions(content string, tax *taxonomy.Taxonomy) ([]Suggestion, error) {
	content = stripFence(strings.TrimSpace(content))
	if content == "" {
		return []Suggestion{}, nil
	}

	var raw []Suggestion
	if strings.HasPrefix(content, "[") {
		if err := json.Unmarshal([]byte(content), &raw); err != nil {
			return nil, fmt.Errorf("decode suggestions: %w", err)
		}
	} else {
		var envelope struct {
			Annotations []Suggestion `json:"annotations"`
		}
		if err := json.Unmarshal([]byte(content), &envelope); err != nil {
			return nil, fmt.Errorf("decode suggestions: %w", err)
		}
		raw = envelope.Annotations
	}

	out := make([]Suggestion, 0, len(raw))
	for _, s := range raw {
		s.Category = strings.TrimSpace(s.Category)
		s.Subcategory = strings.TrimSpace(s.Subcategory)
		s.HighlightedText = strings.TrimSpace(s.HighlightedText)
		if s.HighlightedText == "" || !tax.Valid(s.Category) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func stripFence(content string) string {
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimPrefix(content, "json")
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}
