// Package server implements the HTTP API server for Taisaku.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/taisaku-ai/taisaku/internal/auth"
	"github.com/taisaku-ai/taisaku/internal/insights"
	"github.com/taisaku-ai/taisaku/internal/pipeline"
	"github.com/taisaku-ai/taisaku/internal/ratelimit"
	"github.com/taisaku-ai/taisaku/internal/storage"
)

// Server is the Taisaku HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): Limiter, MCPServer.
type ServerConfig struct {
	// Required dependencies.
	DB          *storage.DB
	JWTMgr      *auth.JWTManager
	PipelineSvc *pipeline.Service
	InsightsSvc *insights.Service
	Logger      *slog.Logger

	// Optional dependencies (nil = disabled).
	Limiter   ratelimit.Limiter
	MCPServer *mcpserver.MCPServer

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
	AdminAPIKey         string
	OpenAPISpec         []byte // Embedded OpenAPI YAML.
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		DB:                  cfg.DB,
		JWTMgr:              cfg.JWTMgr,
		PipelineSvc:         cfg.PipelineSvc,
		InsightsSvc:         cfg.InsightsSvc,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		AdminAPIKey:         cfg.AdminAPIKey,
		OpenAPISpec:         cfg.OpenAPISpec,
	})

	// Request ID extractor for rate limit error responses.
	reqIDFunc := func(r *http.Request) string {
		return RequestIDFromContext(r.Context())
	}

	// HTTP-level rules. Per-business minute/hour/day quotas are enforced
	// inside the pipeline's rate guard; these protect the endpoints
	// themselves from abuse.
	authRL := ratelimit.Middleware(cfg.Limiter, ratelimit.Rule{
		Prefix: "auth", Limit: 20, Window: time.Minute,
	}, ratelimit.IPKeyFunc, reqIDFunc)
	queryRL := ratelimit.Middleware(cfg.Limiter, ratelimit.Rule{
		Prefix: "query", Limit: 120, Window: time.Minute,
	}, businessKeyFunc, reqIDFunc)

	mux := http.NewServeMux()

	// Auth endpoint (no auth required, rate limited by IP).
	mux.Handle("POST /auth/token", authRL(http.HandlerFunc(h.HandleAuthToken)))

	// Business bootstrap (admin key or admin token, checked in the handler).
	mux.Handle("POST /v1/businesses", authRL(http.HandlerFunc(h.HandleCreateBusiness)))

	// Analysis pipeline (business+). Quotas enforced by the pipeline's
	// rate guard so denials surface as guardrail violations.
	businessRole := requireRole(auth.RoleBusiness, auth.RoleAdmin)
	mux.Handle("POST /v1/analyze", businessRole(http.HandlerFunc(h.HandleAnalyze)))

	// Memory and analytics (business+, rate limited).
	mux.Handle("GET /v1/insights", queryRL(businessRole(http.HandlerFunc(h.HandleInsights))))
	mux.Handle("GET /v1/competitors/{name}/history", queryRL(businessRole(http.HandlerFunc(h.HandleCompetitorHistory))))
	mux.Handle("GET /v1/decisions/recent", queryRL(businessRole(http.HandlerFunc(h.HandleRecentDecisions))))

	// MCP StreamableHTTP transport (auth required, business+).
	if cfg.MCPServer != nil {
		mcpHTTP := mcpserver.NewStreamableHTTPServer(cfg.MCPServer)
		mux.Handle("/mcp", businessRole(mcpHTTP))
	}

	// Health and API spec (no auth, no rate limit).
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("GET /openapi.yaml", h.HandleOpenAPISpec)

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// businessKeyFunc extracts the business ID from the request context for rate
// limiting. Returns empty string for admins (exempt from rate limits).
func businessKeyFunc(r *http.Request) string {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		return ""
	}
	if claims.Role == auth.RoleAdmin {
		return ""
	}
	return claims.BusinessID.String()
}

// Handlers returns the underlying Handlers for use in tests.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
