package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"annotator/internal/domain"
	"annotator/internal/workspace"
)

var _ workspace.Backend = (*Client)(nil)

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestClientRoutes(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	mux := http.NewServeMux()
	record := func(r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Method+" "+r.URL.Path)
		mu.Unlock()
	}
	mux.HandleFunc("GET /api/articles/{id}/annotations", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeJSON(t, w, http.StatusOK, []domain.Annotation{{ID: "ann_1", ArticleID: r.PathValue("id")}})
	})
	mux.HandleFunc("DELETE /api/articles/{id}/annotations", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /api/annotations", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		var in domain.NewAnnotation
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		writeJSON(t, w, http.StatusCreated, domain.Annotation{
			ID: "ann_2", ArticleID: in.ArticleID, Category: in.Category,
			StartOffset: in.StartOffset, EndOffset: in.EndOffset,
		})
	})
	mux.HandleFunc("POST /api/annotations/{id}/comments", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		var in domain.NewComment
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		writeJSON(t, w, http.StatusCreated, domain.Comment{ID: "c1", AnnotationID: r.PathValue("id"), Text: in.Text})
	})
	mux.HandleFunc("DELETE /api/annotations/{id}/comments/{commentId}", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /api/articles", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		assert.Equal(t, "retraites", r.URL.Query().Get("q"))
		assert.Equal(t, "2024-01-01", r.URL.Query().Get("from"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		writeJSON(t, w, http.StatusOK, map[string]any{"results": []map[string]any{{"id": "art_1", "title": "T"}}, "total": 1, "query": "retraites"})
	})
	mux.HandleFunc("GET /api/options/subcategories/{id}", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeJSON(t, w, http.StatusOK, []domain.SubcategoryGroup{{Header: "Lexical", Options: []string{"Euphemism (4)"}}})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := New(server.URL + "/")
	ctx := context.Background()

	list, err := c.ListAnnotations(ctx, "art 1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "art 1", list[0].ArticleID)

	created, err := c.CreateAnnotation(ctx, domain.NewAnnotation{ArticleID: "art_1", Category: "A", StartOffset: domain.Offset(1), EndOffset: domain.Offset(4)})
	require.NoError(t, err)
	assert.Equal(t, "ann_2", created.ID)
	require.NotNil(t, created.StartOffset)
	assert.Equal(t, 1, *created.StartOffset)

	comment, err := c.CreateComment(ctx, domain.NewComment{AnnotationID: "ann_2", Text: "why?"})
	require.NoError(t, err)
	assert.Equal(t, "ann_2", comment.AnnotationID)
	require.NoError(t, c.DeleteComment(ctx, "ann_2", "c1"))
	require.NoError(t, c.DeleteArticleAnnotations(ctx, "art_1"))

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	res, err := c.SearchArticles(ctx, domain.ArticleQuery{Text: "retraites", From: &from, Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, "art_1", res.Results[0].ID)

	groups, err := c.Subcategories(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, "Lexical", groups[0].Header)

	assert.Equal(t, []string{
		"GET /api/articles/art 1/annotations",
		"POST /api/annotations",
		"POST /api/annotations/ann_2/comments",
		"DELETE /api/annotations/ann_2/comments/c1",
		"DELETE /api/articles/art_1/annotations",
		"GET /api/articles",
		"GET /api/options/subcategories/A",
	}, seen)
}

func TestClientErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/annotations/missing":
			writeJSON(t, w, http.StatusNotFound, map[string]any{"code": "NOT_FOUND", "error": "Annotation not found"})
		case "/api/annotations":
			writeJSON(t, w, http.StatusUnprocessableEntity, map[string]any{
				"code": "VALIDATION_ERROR", "error": "Invalid annotation",
				"details": map[string]string{"category": "cannot be blank"},
			})
		default:
			http.Error(w, "upstream exploded", http.StatusBadGateway)
		}
	}))
	defer server.Close()

	c := New(server.URL)
	ctx := context.Background()

	err := c.DeleteAnnotation(ctx, "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "NOT_FOUND", apiErr.Code)

	_, err = c.CreateAnnotation(ctx, domain.NewAnnotation{})
	assert.ErrorIs(t, err, domain.ErrValidation)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, map[string]any{"category": "cannot be blank"}, apiErr.Details)

	_, err = c.AnalyzeArticle(ctx, "art_1")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "upstream exploded", apiErr.Message)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}

func TestClientTransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	_, err := New(server.URL).ListAnnotations(context.Background(), "art_1")
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}

func TestClientDrivesWorkspace(t *testing.T) {
	text := "The cat sat on the mat."
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/articles/art_1/annotations":
			writeJSON(t, w, http.StatusOK, []domain.Annotation{
				{ID: "ann_1", ArticleID: "art_1", Category: "B", HighlightedText: "mat"},
			})
		case r.Method == http.MethodPut && r.URL.Path == "/api/annotations/ann_1":
			writeJSON(t, w, http.StatusNotFound, map[string]any{"code": "NOT_FOUND", "error": "Annotation not found"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	var notices []workspace.Notice
	ctrl := workspace.New(New(server.URL), workspace.Options{
		Logger:   zerolog.Nop(),
		Notifier: workspace.NotifierFunc(func(n workspace.Notice) { notices = append(notices, n) }),
	})
	defer ctrl.Close()

	require.NoError(t, ctrl.SelectArticle(context.Background(), domain.Article{ID: "art_1", Text: text}))
	decos := ctrl.Decorations()
	require.Len(t, decos, 1)
	assert.Equal(t, 19, decos[0].Start)
	assert.Equal(t, 22, decos[0].End)
	assert.Equal(t, "#ADFF2F", decos[0].Color)

	category := "A"
	_, err := ctrl.UpdateAnnotation(context.Background(), "ann_1", domain.AnnotationUpdate{Category: &category})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	require.Len(t, notices, 1)
	assert.Equal(t, workspace.KindNotFound, notices[0].Kind)
	assert.Equal(t, "#ADFF2F", ctrl.Decorations()[0].Color)
}
