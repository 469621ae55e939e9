package search

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"annotator/internal/domain"
)

type fakeArticleStore struct {
	searchFn func(ctx context.Context, q domain.ArticleQuery) ([]domain.Article, error)
	all      []domain.Article
}

func (f *fakeArticleStore) SearchArticles(ctx context.Context, q domain.ArticleQuery) ([]domain.Article, error) {
	return f.searchFn(ctx, q)
}

func (f *fakeArticleStore) ListAllArticles(ctx context.Context) ([]domain.Article, error) {
	return f.all, nil
}

func TestServiceFallsBackToPostgres(t *testing.T) {
	published := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	var got domain.ArticleQuery
	store := &fakeArticleStore{searchFn: func(ctx context.Context, q domain.ArticleQuery) ([]domain.Article, error) {
		got = q
		return []domain.Article{{ID: "a1", Title: "Budget", Source: "lemonde.fr", Text: strings.Repeat("é", 300), PublishedDate: &published}}, nil
	}}
	svc := NewService(nil, NewPgSearch(store), zerolog.Nop())

	resp := svc.Search(context.Background(), domain.ArticleQuery{Text: "budget", Source: "lemonde.fr"})

	assert.Equal(t, "budget", got.Text)
	assert.Equal(t, "lemonde.fr", got.Source)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, "budget", resp.Query)
	assert.Equal(t, &published, resp.Results[0].PublishedDate)
	assert.Equal(t, 241, len([]rune(resp.Results[0].Snippet)))
}

func TestServiceSwallowsPostgresErrors(t *testing.T) {
	store := &fakeArticleStore{searchFn: func(ctx context.Context, q domain.ArticleQuery) ([]domain.Article, error) {
		return nil, errors.New("db down")
	}}
	svc := NewService(nil, NewPgSearch(store), zerolog.Nop())

	resp := svc.Search(context.Background(), domain.ArticleQuery{Text: "x"})
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
}

func TestRecordOf(t *testing.T) {
	published := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := RecordOf(domain.Article{ID: "a1", Title: "T", PublishedDate: &published})

	require.NotNil(t, rec.PublishedTS)
	assert.Equal(t, published.Unix(), *rec.PublishedTS)
	assert.Equal(t, "2024-01-02T03:04:05Z", rec.PublishedDate)

	assert.Nil(t, RecordOf(domain.Article{ID: "a2"}).PublishedTS)
}

func TestFiltersFor(t *testing.T) {
	from := time.Unix(100, 0)
	to := time.Unix(200, 0)

	assert.Equal(t, []string{`source = "lemonde.fr"`, "published_ts >= 100", "published_ts <= 200"},
		filtersFor(domain.ArticleQuery{Source: " lemonde.fr ", From: &from, To: &to}))
	assert.Empty(t, filtersFor(domain.ArticleQuery{Text: "x"}))
}

// fakeMeili answers the handful of Meilisearch endpoints the client uses.
type fakeMeili struct {
	mu       sync.Mutex
	searches []map[string]any
	indexed  [][]map[string]any
}

func (f *fakeMeili) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	body, _ := io.ReadAll(r.Body)

	switch {
	case r.URL.Path == "/health":
		_, _ = w.Write([]byte(`{"status":"available"}`))
	case strings.HasSuffix(r.URL.Path, "/search"):
		var req map[string]any
		_ = json.Unmarshal(body, &req)
		f.mu.Lock()
		f.searches = append(f.searches, req)
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{
			"hits": [{
				"id": "a1", "title": "Budget", "source": "lemonde.fr", "text": "full text",
				"published_date": "2024-01-02T00:00:00Z",
				"_formatted": {"title": "<mark>Budget</mark>", "text": "…full <mark>text</mark>"}
			}],
			"estimatedTotalHits": 7, "limit": 20, "offset": 0, "processingTimeMs": 1, "query": "budget"
		}`))
	default:
		if r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/documents") {
			var docs []map[string]any
			_ = json.Unmarshal(body, &docs)
			f.mu.Lock()
			f.indexed = append(f.indexed, docs)
			f.mu.Unlock()
		}
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"taskUid":1,"indexUid":"annotator_articles","status":"enqueued","type":"documentAdditionOrUpdate","enqueuedAt":"2024-01-01T00:00:00Z"}`))
	}
}

func TestMeiliSearch(t *testing.T) {
	fake := &fakeMeili{}
	server := httptest.NewServer(fake)
	defer server.Close()

	m := NewMeili(server.URL, "key", zerolog.Nop())
	defer m.Close()
	require.True(t, m.Healthy())

	store := &fakeArticleStore{searchFn: func(ctx context.Context, q domain.ArticleQuery) ([]domain.Article, error) {
		t.Fatal("postgres must not be queried while meilisearch is healthy")
		return nil, nil
	}}
	svc := NewService(m, NewPgSearch(store), zerolog.Nop())

	resp := svc.Search(context.Background(), domain.ArticleQuery{Text: "budget", Source: "lemonde.fr", Limit: 5})

	require.Len(t, resp.Results, 1)
	assert.Equal(t, 7, resp.Total)
	hit := resp.Results[0]
	assert.Equal(t, "a1", hit.ID)
	assert.Equal(t, "<mark>Budget</mark>", hit.Title)
	assert.Equal(t, "…full <mark>text</mark>", hit.Snippet)
	require.NotNil(t, hit.PublishedDate)
	assert.Equal(t, 2024, hit.PublishedDate.Year())

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.searches, 1)
	assert.Equal(t, "budget", fake.searches[0]["q"])
	assert.Equal(t, float64(5), fake.searches[0]["limit"])
}

func TestMeiliReindex(t *testing.T) {
	fake := &fakeMeili{}
	server := httptest.NewServer(fake)
	defer server.Close()

	m := NewMeili(server.URL, "key", zerolog.Nop())
	defer m.Close()
	store := &fakeArticleStore{all: []domain.Article{{ID: "a1"}, {ID: "a2"}}}
	svc := NewService(m, NewPgSearch(store), zerolog.Nop())

	svc.ReindexAllFromPG(context.Background())

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.indexed, 1)
	assert.Len(t, fake.indexed[0], 2)
}

func TestMeiliUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	m := NewMeili(server.URL, "key", zerolog.Nop())
	defer m.Close()

	assert.False(t, m.Healthy())
	_, _, err := m.Search(context.Background(), domain.ArticleQuery{Text: "x"})
	assert.Error(t, err)
}
