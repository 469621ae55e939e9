package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/rs/zerolog"

	"annotator/internal/domain"
)

const idxArticles = "annotator_articles"

// Meili implements Searcher via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
	log     zerolog.Logger
}

// NewMeili creates a Meilisearch client and configures the article index.
// An unreachable server is not an error: the health loop keeps probing and
// the facade falls back to Postgres meanwhile.
func NewMeili(url, apiKey string, logger zerolog.Logger) *Meili {
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		done:   make(chan struct{}),
		log:    logger.With().Str("component", "search").Logger(),
	}

	if _, err := m.client.Health(); err != nil {
		m.log.Warn().Err(err).Str("url", url).Msg("meilisearch unavailable")
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop(10 * time.Second)
	return m
}

func (m *Meili) configureIndexes() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxArticles,
		PrimaryKey: "id",
	}); err != nil {
		m.log.Debug().Err(err).Str("index", idxArticles).Msg("create index (may already exist)")
	}

	index := m.client.Index(idxArticles)
	filterable := []interface{}{"source", "published_ts"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.log.Warn().Err(err).Msg("update filterable attributes")
	}
	sortable := []string{"published_ts"}
	if _, err := index.UpdateSortableAttributes(&sortable); err != nil {
		m.log.Warn().Err(err).Msg("update sortable attributes")
	}
	searchable := []string{"title", "source", "author", "link", "topic", "text"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.log.Warn().Err(err).Msg("update searchable attributes")
	}
}

func (m *Meili) healthLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.log.Info().Msg("meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) Search(ctx context.Context, q domain.ArticleQuery) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}
	limit := int64(q.Limit)
	if limit <= 0 {
		limit = 20
	}

	req := &meili.SearchRequest{
		Limit:                 limit,
		AttributesToHighlight: []string{"title"},
		AttributesToCrop:      []string{"text"},
		CropLength:            30,
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
	}
	if filters := filtersFor(q); len(filters) > 0 {
		req.Filter = filters
	}
	if strings.TrimSpace(q.Text) == "" {
		req.Sort = []string{"published_ts:desc"}
	}

	resp, err := m.client.Index(idxArticles).SearchWithContext(ctx, q.Text, req)
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	results := make([]Result, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		results = append(results, hitToResult(hit))
	}
	return results, int(resp.EstimatedTotalHits), nil
}

func filtersFor(q domain.ArticleQuery) []string {
	var filters []string
	if source := strings.TrimSpace(q.Source); source != "" {
		filters = append(filters, fmt.Sprintf("source = %q", source))
	}
	if q.From != nil {
		filters = append(filters, fmt.Sprintf("published_ts >= %d", q.From.Unix()))
	}
	if q.To != nil {
		filters = append(filters, fmt.Sprintf("published_ts <= %d", q.To.Unix()))
	}
	return filters
}

func hitToResult(hit meili.Hit) Result {
	r := Result{
		ID:     decodeString(hit, "id"),
		Title:  firstNonBlank(decodeFormattedString(hit, "title"), decodeString(hit, "title")),
		Source: decodeString(hit, "source"),
		Author: decodeString(hit, "author"),
		Link:   decodeString(hit, "link"),
	}
	r.Snippet = firstNonBlank(decodeFormattedString(hit, "text"), snippet(decodeString(hit, "text"), 240))
	if published := decodeString(hit, "published_date"); published != "" {
		if t, err := time.Parse(time.RFC3339, published); err == nil {
			r.PublishedDate = &t
		}
	}
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]json.RawMessage
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(formatted[key], &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexArticle adds or updates one article in the index.
func (m *Meili) IndexArticle(rec ArticleRecord) error {
	_, err := m.client.Index(idxArticles).AddDocuments([]ArticleRecord{rec}, nil)
	return err
}

// IndexArticles bulk-indexes articles.
func (m *Meili) IndexArticles(records []ArticleRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxArticles).AddDocuments(records, nil)
	return err
}

func (m *Meili) DeleteArticle(id string) error {
	_, err := m.client.Index(idxArticles).DeleteDocument(id, nil)
	return err
}
