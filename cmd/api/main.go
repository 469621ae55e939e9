package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"annotator/internal/analyze"
	"annotator/internal/app"
	"annotator/internal/cache"
	"annotator/internal/config"
	"annotator/internal/export"
	"annotator/internal/search"
	"annotator/internal/store"
	"annotator/internal/taxonomy"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := config.Load()
	logger := config.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	if _, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir, logger); err != nil {
		logger.Fatal().Err(err).Msg("migrations failed")
	}

	tax, err := taxonomy.Load(cfg.TaxonomyFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("taxonomy failed to load")
	}

	dataStore := store.NewPostgresStore(db)

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, search.NewPgSearch(dataStore), logger)
	go searchService.ReindexAllFromPG(ctx)

	analyzer := newAnalyzer(cfg, logger)

	archive := newArchive(ctx, cfg, logger)
	exports := export.NewService(dataStore, export.Options{
		Palette: tax.Palette(),
		Archive: archive,
		Logger:  logger,
	})

	service := app.New(cfg, app.Deps{
		Store:    dataStore,
		Taxonomy: tax,
		Analyzer: analyzer,
		Search:   searchService,
		Exports:  exports,
		Logger:   logger,
	})

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, logger)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// PDF rendering and analysis calls run well past the usual budget.
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("annotator api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
}

// newAnalyzer returns nil when no API key is configured, which disables the
// analyze endpoint. With Redis configured, results are cached per article
// text.
func newAnalyzer(cfg config.Config, logger zerolog.Logger) analyze.Analyzer {
	if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
		logger.Info().Msg("OPENAI_API_KEY not set, analysis disabled")
		return nil
	}
	openai, err := analyze.NewOpenAIAnalyzer(analyze.OpenAIConfig{
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.OpenAIModel,
		BaseURL: cfg.OpenAIBaseURL,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("analyzer setup failed")
	}
	if strings.TrimSpace(cfg.RedisURL) == "" {
		return openai
	}
	redisStore, err := cache.NewRedisStore(cfg.RedisURL)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, analysis results not cached")
		return openai
	}
	logger.Info().Dur("ttl", cfg.AnalysisCacheTTL).Msg("caching analysis results in redis")
	return analyze.NewCached(openai, redisStore, cfg.AnalysisCacheTTL, logger)
}

func newArchive(ctx context.Context, cfg config.Config, logger zerolog.Logger) *export.Archive {
	if strings.TrimSpace(cfg.MinioEndpoint) == "" {
		return nil
	}
	archive, err := export.NewArchive(export.ArchiveConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	}, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("export archive disabled")
		return nil
	}
	if err := archive.EnsureBucket(ctx); err != nil {
		logger.Warn().Err(err).Str("bucket", cfg.MinioBucket).Msg("export archive bucket unavailable")
		return nil
	}
	return archive
}
