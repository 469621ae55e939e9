package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"annotator/internal/domain"
	"annotator/internal/export"
)

const maxBodyBytes = 8 << 20

type HTTPServer struct {
	service     *Service
	corsOrigins []string
	log         zerolog.Logger
}

func NewHTTPServer(service *Service, corsOrigin string, logger zerolog.Logger) *HTTPServer {
	origins := []string{}
	for _, o := range strings.Split(corsOrigin, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &HTTPServer{service: service, corsOrigins: origins, log: logger}
}

func (s *HTTPServer) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "Content-Disposition"},
		MaxAge:         600,
	})
	return c.Handler(s.withMiddleware(http.HandlerFunc(s.handle)))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if isRead(r) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}
	if isRead(r) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		return
	}

	switch parts[1] {
	case "options":
		s.handleOptions(w, r, parts)
	case "articles":
		s.handleArticles(w, r, parts)
	case "annotations":
		s.handleAnnotations(w, r, parts)
	case "users":
		s.handleUsers(w, r, parts)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}
	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

// /api/options/categories, /api/options/subcategories/{categoryId}
func (s *HTTPServer) handleOptions(w http.ResponseWriter, r *http.Request, parts []string) {
	switch {
	case len(parts) == 3 && parts[2] == "categories":
		if !allow(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, http.StatusOK, s.service.Categories())
	case len(parts) == 4 && parts[2] == "subcategories":
		if !allow(w, r, http.MethodGet) {
			return
		}
		groups, err := s.service.Subcategories(parts[3])
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, groups)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

func (s *HTTPServer) handleArticles(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet, http.MethodHead:
			s.handleSearch(w, r)
		case http.MethodPost:
			var body CreateArticleInput
			if err := decodeBody(w, r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			article, err := s.service.CreateArticle(r.Context(), body)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, article)
		default:
			methodNotAllowed(w)
		}
		return
	}

	articleID := parts[2]
	if len(parts) == 3 {
		if !allow(w, r, http.MethodGet) {
			return
		}
		article, err := s.service.GetArticle(r.Context(), articleID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, article)
		return
	}
	if len(parts) != 4 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		return
	}

	switch parts[3] {
	case "annotations":
		switch r.Method {
		case http.MethodGet, http.MethodHead:
			list, err := s.service.ListArticleAnnotations(r.Context(), articleID)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, nonNil(list))
		case http.MethodDelete:
			n, err := s.service.DeleteArticleAnnotations(r.Context(), articleID)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"deleted": n})
		default:
			methodNotAllowed(w)
		}
	case "analyze":
		if !allow(w, r, http.MethodPost) {
			return
		}
		created, err := s.service.AnalyzeArticle(r.Context(), articleID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, nonNil(created))
	case "annotations.csv":
		if !allow(w, r, http.MethodGet) {
			return
		}
		s.writeExport(w, r, func(ctx context.Context) (*export.Result, error) {
			return s.service.ArticleCSV(ctx, articleID)
		}, true)
	case "highlighted":
		if !allow(w, r, http.MethodGet) {
			return
		}
		s.writeExport(w, r, func(ctx context.Context) (*export.Result, error) {
			return s.service.ArticleHTML(ctx, articleID)
		}, false)
	case "highlighted.pdf":
		if !allow(w, r, http.MethodGet) {
			return
		}
		s.writeExport(w, r, func(ctx context.Context) (*export.Result, error) {
			return s.service.ArticlePDF(ctx, articleID)
		}, true)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	q, err := parseArticleQuery(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	res, err := s.service.SearchArticles(r.Context(), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func parseArticleQuery(r *http.Request) (domain.ArticleQuery, error) {
	values := r.URL.Query()
	q := domain.ArticleQuery{
		Text:   strings.TrimSpace(values.Get("q")),
		Source: strings.TrimSpace(values.Get("source")),
	}
	for _, p := range []struct {
		key  string
		dest **time.Time
	}{{"from", &q.From}, {"to", &q.To}} {
		raw := strings.TrimSpace(values.Get(p.key))
		if raw == "" {
			continue
		}
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return domain.ArticleQuery{}, fmt.Errorf("%s must be a date (YYYY-MM-DD)", p.key)
		}
		if p.key == "to" {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		*p.dest = &t
	}
	if raw := values.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return domain.ArticleQuery{}, fmt.Errorf("limit must be a positive integer")
		}
		q.Limit = limit
	}
	return q, nil
}

// /api/annotations, /api/annotations/{id}, /api/annotations/{id}/comments[/{commentId}]
func (s *HTTPServer) handleAnnotations(w http.ResponseWriter, r *http.Request, parts []string) {
	switch len(parts) {
	case 2:
		if !allow(w, r, http.MethodPost) {
			return
		}
		var body domain.NewAnnotation
		if err := decodeBody(w, r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		created, err := s.service.CreateAnnotation(r.Context(), body)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	case 3:
		id := parts[2]
		switch r.Method {
		case http.MethodPut:
			var body domain.AnnotationUpdate
			if err := decodeBody(w, r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			updated, err := s.service.UpdateAnnotation(r.Context(), id, body)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, updated)
		case http.MethodDelete:
			if err := s.service.DeleteAnnotation(r.Context(), id); err != nil {
				s.fail(w, r, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			methodNotAllowed(w)
		}
	case 4, 5:
		if parts[3] != "comments" {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
			return
		}
		id := parts[2]
		if len(parts) == 4 {
			if !allow(w, r, http.MethodPost) {
				return
			}
			var body domain.NewComment
			if err := decodeBody(w, r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			created, err := s.service.CreateComment(r.Context(), id, body)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, created)
			return
		}
		if !allow(w, r, http.MethodDelete) {
			return
		}
		if err := s.service.DeleteComment(r.Context(), id, parts[4]); err != nil {
			s.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

// /api/users/{user}/annotations[.csv|/archive]
func (s *HTTPServer) handleUsers(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) < 4 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		return
	}
	user := parts[2]
	switch {
	case len(parts) == 4 && parts[3] == "annotations":
		if !allow(w, r, http.MethodGet) {
			return
		}
		list, err := s.service.ListUserAnnotations(r.Context(), user)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(list))
	case len(parts) == 4 && parts[3] == "annotations.csv":
		if !allow(w, r, http.MethodGet) {
			return
		}
		s.writeExport(w, r, func(ctx context.Context) (*export.Result, error) {
			return s.service.UserCSV(ctx, user)
		}, true)
	case len(parts) == 5 && parts[3] == "annotations" && parts[4] == "archive":
		if !allow(w, r, http.MethodPost) {
			return
		}
		res, err := s.service.ArchiveUserCSV(r.Context(), user)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, res)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

func (s *HTTPServer) writeExport(w http.ResponseWriter, r *http.Request, build func(context.Context) (*export.Result, error), attachment bool) {
	res, err := build(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", res.MimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Data)))
	if attachment {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Filename))
	}
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(res.Data)
	}
}

// fail maps err to a JSON error response. Server errors are logged with the
// request logger.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("code", code).Msg("request failed")
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		logger := s.log.With().Str("request_id", requestID).Logger()
		r = r.WithContext(logger.WithContext(r.Context()))

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		writer.Header().Set("X-Request-ID", requestID)
		writer.Header().Set("Cache-Control", "no-store")

		next.ServeHTTP(writer, r)

		logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", writer.status).
			Int64("duration_ms", time.Since(started).Milliseconds()).
			Msg("request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func isRead(r *http.Request) bool {
	return r.Method == http.MethodGet || r.Method == http.MethodHead
}

// allow writes a 405 unless r uses method. GET also admits HEAD.
func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method || (method == http.MethodGet && r.Method == http.MethodHead) {
		return true
	}
	methodNotAllowed(w)
	return false
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(w http.ResponseWriter, r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(target); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("request body too large")
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func mapError(err error) (status int, code, message string, details any) {
	if domainErr, ok := asDomainError(err); ok {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, domain.ErrValidation):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, export.ErrPDFDependencyMissing):
		return http.StatusServiceUnavailable, "PDF_UNAVAILABLE", "PDF rendering is not available", nil
	case errors.Is(err, export.ErrArchiveUnavailable):
		return http.StatusServiceUnavailable, "ARCHIVE_UNAVAILABLE", "Object storage is not configured", nil
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT", "Request timed out", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
