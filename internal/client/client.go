// Package client talks to the annotator HTTP API. *Client implements
// workspace.Backend.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"annotator/internal/domain"
	"annotator/internal/search"
)

// DefaultTimeout bounds a single API call.
const DefaultTimeout = 30 * time.Second

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api error (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api error (status %d): %s: %s", e.Status, e.Code, e.Message)
}

// Is maps statuses onto the domain sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case domain.ErrNotFound:
		return e.Status == http.StatusNotFound
	case domain.ErrValidation:
		return e.Status == http.StatusBadRequest || e.Status == http.StatusUnprocessableEntity
	}
	return false
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the default client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) ListAnnotations(ctx context.Context, articleID string) ([]domain.Annotation, error) {
	var out []domain.Annotation
	err := c.do(ctx, http.MethodGet, "/api/articles/"+url.PathEscape(articleID)+"/annotations", nil, &out)
	return out, err
}

func (c *Client) ListUserAnnotations(ctx context.Context, user string) ([]domain.Annotation, error) {
	var out []domain.Annotation
	err := c.do(ctx, http.MethodGet, "/api/users/"+url.PathEscape(user)+"/annotations", nil, &out)
	return out, err
}

func (c *Client) CreateAnnotation(ctx context.Context, input domain.NewAnnotation) (domain.Annotation, error) {
	var out domain.Annotation
	err := c.do(ctx, http.MethodPost, "/api/annotations", input, &out)
	return out, err
}

func (c *Client) UpdateAnnotation(ctx context.Context, id string, update domain.AnnotationUpdate) (domain.Annotation, error) {
	var out domain.Annotation
	err := c.do(ctx, http.MethodPut, "/api/annotations/"+url.PathEscape(id), update, &out)
	return out, err
}

func (c *Client) DeleteAnnotation(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/annotations/"+url.PathEscape(id), nil, nil)
}

func (c *Client) DeleteArticleAnnotations(ctx context.Context, articleID string) error {
	return c.do(ctx, http.MethodDelete, "/api/articles/"+url.PathEscape(articleID)+"/annotations", nil, nil)
}

func (c *Client) AnalyzeArticle(ctx context.Context, articleID string) ([]domain.Annotation, error) {
	var out []domain.Annotation
	err := c.do(ctx, http.MethodPost, "/api/articles/"+url.PathEscape(articleID)+"/analyze", nil, &out)
	return out, err
}

func (c *Client) CreateComment(ctx context.Context, input domain.NewComment) (domain.Comment, error) {
	var out domain.Comment
	err := c.do(ctx, http.MethodPost, "/api/annotations/"+url.PathEscape(input.AnnotationID)+"/comments", input, &out)
	return out, err
}

func (c *Client) DeleteComment(ctx context.Context, annotationID, commentID string) error {
	path := "/api/annotations/" + url.PathEscape(annotationID) + "/comments/" + url.PathEscape(commentID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) GetArticle(ctx context.Context, id string) (domain.Article, error) {
	var out domain.Article
	err := c.do(ctx, http.MethodGet, "/api/articles/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) SearchArticles(ctx context.Context, q domain.ArticleQuery) (search.Response, error) {
	params := url.Values{}
	if q.Text != "" {
		params.Set("q", q.Text)
	}
	if q.From != nil {
		params.Set("from", q.From.Format("2006-01-02"))
	}
	if q.To != nil {
		params.Set("to", q.To.Format("2006-01-02"))
	}
	if q.Source != "" {
		params.Set("source", q.Source)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	path := "/api/articles"
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out search.Response
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) Categories(ctx context.Context) ([]domain.Category, error) {
	var out []domain.Category
	err := c.do(ctx, http.MethodGet, "/api/options/categories", nil, &out)
	return out, err
}

func (c *Client) Subcategories(ctx context.Context, categoryID string) ([]domain.SubcategoryGroup, error) {
	var out []domain.SubcategoryGroup
	err := c.do(ctx, http.MethodGet, "/api/options/subcategories/"+url.PathEscape(categoryID), nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, raw)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(status int, raw []byte) error {
	apiErr := &APIError{Status: status}
	var body struct {
		Code    string `json:"code"`
		Error   string `json:"error"`
		Details any    `json:"details"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && (body.Code != "" || body.Error != "") {
		apiErr.Code = body.Code
		apiErr.Message = body.Error
		apiErr.Details = body.Details
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(raw))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}
