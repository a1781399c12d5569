package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/taisaku-ai/taisaku/api"
	"github.com/taisaku-ai/taisaku/internal/advisor"
	"github.com/taisaku-ai/taisaku/internal/analyst"
	"github.com/taisaku-ai/taisaku/internal/auth"
	"github.com/taisaku-ai/taisaku/internal/cache"
	"github.com/taisaku-ai/taisaku/internal/config"
	"github.com/taisaku-ai/taisaku/internal/guardrail"
	"github.com/taisaku-ai/taisaku/internal/insights"
	"github.com/taisaku-ai/taisaku/internal/mcp"
	"github.com/taisaku-ai/taisaku/internal/pipeline"
	"github.com/taisaku-ai/taisaku/internal/ratelimit"
	"github.com/taisaku-ai/taisaku/internal/server"
	"github.com/taisaku-ai/taisaku/internal/storage"
	"github.com/taisaku-ai/taisaku/internal/telemetry"
	"github.com/taisaku-ai/taisaku/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("TAISAKU_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("taisaku starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	// Connect to database.
	db, err := storage.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer db.Close()

	// Run embedded migrations. RunMigrations tracks applied files in
	// schema_migrations and skips duplicates, so errors here indicate real
	// failures (not "already exists").
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	// Create JWT manager.
	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	// Decision cache. A configured path selects the SQLite backend, which
	// survives restarts; otherwise entries live in process memory.
	var backend cache.Backend
	if cfg.CachePath != "" {
		sqliteBackend, err := cache.NewSQLiteBackend(ctx, cfg.CachePath)
		if err != nil {
			return fmt.Errorf("cache: %w", err)
		}
		backend = sqliteBackend
		logger.Info("cache: sqlite", "path", cfg.CachePath, "ttl", cfg.CacheTTL)
	} else {
		backend = cache.NewMemoryBackend()
		logger.Info("cache: memory", "ttl", cfg.CacheTTL)
	}
	defer func() { _ = backend.Close() }()
	decisionCache := cache.New(backend, cfg.CacheTTL, logger)

	// Rate limiter shared by the HTTP middleware and the pipeline's quota guard.
	limiter := ratelimit.NewMemoryLimiter()
	defer func() { _ = limiter.Close() }()
	rateGuard := guardrail.NewRateGuard(limiter, guardrail.RateLimits{
		PerMinute: cfg.RatePerMinute,
		PerHour:   cfg.RatePerHour,
		PerDay:    cfg.RatePerDay,
	})

	// Analyst and advisor providers.
	analystProvider, advisorProvider, err := newProviders(ctx, cfg, logger)
	if err != nil {
		return err
	}

	// Core services (shared by HTTP and MCP handlers).
	pipelineSvc := pipeline.New(rateGuard, analystProvider, advisorProvider, decisionCache, db, logger, pipeline.Timeouts{
		Extract: cfg.ExtractTimeout,
		Explain: cfg.ExplainTimeout,
		Cache:   cfg.CacheTimeout,
		Memory:  cfg.MemoryTimeout,
	})
	insightsSvc := insights.NewService(db, logger)

	// Create MCP server.
	mcpSrv := mcp.New(pipelineSvc, insightsSvc, logger)

	// Create and start HTTP server (MCP mounted at /mcp).
	srv := server.New(server.ServerConfig{
		DB:                  db,
		JWTMgr:              jwtMgr,
		PipelineSvc:         pipelineSvc,
		InsightsSvc:         insightsSvc,
		Limiter:             limiter,
		MCPServer:           mcpSrv.MCPServer(),
		Logger:              logger,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		AdminAPIKey:         cfg.AdminAPIKey,
		OpenAPISpec:         api.OpenAPISpec,
	})

	// Start HTTP server in background.
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	// Graceful shutdown: stop accepting new requests and drain in-flight
	// ones. Memory appends are synchronous, so draining HTTP is enough.
	slog.Info("taisaku shutting down")

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := srv.Shutdown(httpCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	slog.Info("taisaku stopped")
	return nil
}

// newProviders selects the extraction and explanation providers. A configured
// Gemini API key enables the LLM providers; otherwise the deterministic
// keyword analyst and template advisor run, which need no network access.
func newProviders(ctx context.Context, cfg config.Config, logger *slog.Logger) (analyst.Provider, advisor.Provider, error) {
	if cfg.GeminiAPIKey == "" {
		logger.Info("analyst: keyword, advisor: template (no GEMINI_API_KEY)")
		return analyst.NewKeywordProvider(), advisor.NewTemplateProvider(), nil
	}

	an, err := analyst.NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		return nil, nil, fmt.Errorf("analyst: %w", err)
	}
	adv, err := advisor.NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		return nil, nil, fmt.Errorf("advisor: %w", err)
	}
	logger.Info("analyst and advisor: gemini", "model", cfg.GeminiModel)
	return an, adv, nil
}
