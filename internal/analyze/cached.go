package analyze

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/rs/zerolog"

	"annotator/internal/domain"
	"annotator/internal/taxonomy"
)

// Cache stores JSON-encodable values by key.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Cached memoizes an Analyzer per article id and text digest, so an edited
// article is analysed again.
type Cached struct {
	next  Analyzer
	cache Cache
	ttl   time.Duration
	log   zerolog.Logger
}

func NewCached(next Analyzer, cache Cache, ttl time.Duration, logger zerolog.Logger) *Cached {
	return &Cached{next: next, cache: cache, ttl: ttl, log: logger}
}

func (c *Cached) Analyze(ctx context.Context, article domain.Article, tax *taxonomy.Taxonomy) ([]Suggestion, error) {
	key := CacheKey(article)
	var cached []Suggestion
	hit, err := c.cache.GetJSON(ctx, key, &cached)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("analysis cache read failed")
	}
	if hit {
		c.log.Debug().Str("article_id", article.ID).Msg("analysis cache hit")
		return cached, nil
	}

	suggestions, err := c.next.Analyze(ctx, article, tax)
	if err != nil {
		return nil, err
	}
	if err := c.cache.SetJSON(ctx, key, suggestions, c.ttl); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("analysis cache write failed")
	}
	return suggestions, nil
}

// CacheKey identifies an article revision by id and text digest.
func CacheKey(article domain.Article) string {
	sum := sha256.Sum256([]byte(article.Text))
	return article.ID + ":" + hex.EncodeToString(sum[:])
}
