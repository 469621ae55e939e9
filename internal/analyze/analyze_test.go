package analyze

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"annotator/internal/domain"
	"annotator/internal/taxonomy"
)

func TestParseSuggestions(t *testing.T) {
	tax := taxonomy.Default()
	tests := []struct {
		name     string
		content  string
		expected []Suggestion
	}{
		{
			name:     "object envelope",
			content:  `{"annotations":[{"category":"A","subcategory":"Euphemism (4)","highlighted_text":"collateral damage"}]}`,
			expected: []Suggestion{{Category: "A", Subcategory: "Euphemism (4)", HighlightedText: "collateral damage"}},
		},
		{
			name:     "bare array in a fence",
			content:  "```json\n[{\"category\":\" B \",\"subcategory\":\"Scapegoating\",\"highlighted_text\":\" them \"}]\n```",
			expected: []Suggestion{{Category: "B", Subcategory: "Scapegoating", HighlightedText: "them"}},
		},
		{
			name:     "unknown category and blank text dropped",
			content:  `{"annotations":[{"category":"Z","highlighted_text":"x"},{"category":"C","highlighted_text":"  "}]}`,
			expected: []Suggestion{},
		},
		{
			name:     "empty content",
			content:  "  ",
			expected: []Suggestion{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSuggestions(tt.content, tax)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}

	_, err := parseSuggestions("not json", tax)
	assert.Error(t, err)
}

func TestOpenAIAnalyzer(t *testing.T) {
	var received struct {
		Model          string `json:"model"`
		ResponseFormat struct {
			Type string `json:"type"`
		} `json:"response_format"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		content := `{"annotations":[{"category":"A","subcategory":"Loaded language (8)","highlighted_text":"regime"}]}`
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	}))
	defer server.Close()

	analyzer, err := NewOpenAIAnalyzer(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL}, zerolog.Nop())
	require.NoError(t, err)

	got, err := analyzer.Analyze(context.Background(), domain.Article{ID: "art_1", Text: "The regime said so."}, taxonomy.Default())
	require.NoError(t, err)

	assert.Equal(t, []Suggestion{{Category: "A", Subcategory: "Loaded language (8)", HighlightedText: "regime"}}, got)
	assert.Equal(t, DefaultModel, received.Model)
	assert.Equal(t, "json_object", received.ResponseFormat.Type)
	require.Len(t, received.Messages, 2)
	assert.Equal(t, "system", received.Messages[0].Role)
	assert.Contains(t, received.Messages[1].Content, "The regime said so.")
	assert.Contains(t, received.Messages[1].Content, "Category A: Manipulation of language")
}

func TestOpenAIAnalyzerRequiresKey(t *testing.T) {
	_, err := NewOpenAIAnalyzer(OpenAIConfig{}, zerolog.Nop())
	assert.Error(t, err)
}

func TestOpenAIAnalyzerServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer server.Close()

	analyzer, err := NewOpenAIAnalyzer(OpenAIConfig{APIKey: "k", BaseURL: server.URL}, zerolog.Nop())
	require.NoError(t, err)

	_, err = analyzer.Analyze(context.Background(), domain.Article{ID: "art_1", Text: "text"}, taxonomy.Default())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "openai chat completion"))
}

type fakeAnalyzer struct {
	calls int
	out   []Suggestion
	err   error
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, article domain.Article, tax *taxonomy.Taxonomy) ([]Suggestion, error) {
	f.calls++
	return f.out, f.err
}

type memoryCache struct {
	values map[string][]byte
}

func (m *memoryCache) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	raw, ok := m.values[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (m *memoryCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.values[key] = raw
	return nil
}

func TestCachedAnalyzer(t *testing.T) {
	next := &fakeAnalyzer{out: []Suggestion{{Category: "A", HighlightedText: "x"}}}
	cache := &memoryCache{values: map[string][]byte{}}
	cached := NewCached(next, cache, time.Hour, zerolog.Nop())
	article := domain.Article{ID: "art_1", Text: "x marks the spot"}

	first, err := cached.Analyze(context.Background(), article, taxonomy.Default())
	require.NoError(t, err)
	second, err := cached.Analyze(context.Background(), article, taxonomy.Default())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, next.calls)

	article.Text = "edited text"
	_, err = cached.Analyze(context.Background(), article, taxonomy.Default())
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls, "edited text misses the cache")
}

func TestCachedAnalyzerDoesNotCacheErrors(t *testing.T) {
	next := &fakeAnalyzer{err: errors.New("boom")}
	cache := &memoryCache{values: map[string][]byte{}}
	cached := NewCached(next, cache, time.Hour, zerolog.Nop())

	_, err := cached.Analyze(context.Background(), domain.Article{ID: "a"}, taxonomy.Default())
	require.Error(t, err)
	assert.Empty(t, cache.values)
}
