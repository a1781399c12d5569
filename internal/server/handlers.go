package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/taisaku-ai/taisaku/internal/auth"
	"github.com/taisaku-ai/taisaku/internal/insights"
	"github.com/taisaku-ai/taisaku/internal/model"
	"github.com/taisaku-ai/taisaku/internal/pipeline"
	"github.com/taisaku-ai/taisaku/internal/storage"
)

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	db                  *storage.DB
	jwtMgr              *auth.JWTManager
	pipelineSvc         *pipeline.Service
	insightsSvc         *insights.Service
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
	adminAPIKey         string
	openapiSpec         []byte
}

// HandlersDeps holds all dependencies for constructing Handlers.
type HandlersDeps struct {
	DB                  *storage.DB
	JWTMgr              *auth.JWTManager
	PipelineSvc         *pipeline.Service
	InsightsSvc         *insights.Service
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
	AdminAPIKey         string
	OpenAPISpec         []byte
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		db:                  d.DB,
		jwtMgr:              d.JWTMgr,
		pipelineSvc:         d.PipelineSvc,
		insightsSvc:         d.InsightsSvc,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
		adminAPIKey:         d.AdminAPIKey,
		openapiSpec:         d.OpenAPISpec,
	}
}

// HandleAuthToken handles POST /auth/token. Exchanges a business name and
// API key for a short-lived JWT.
func (h *Handlers) HandleAuthToken(w http.ResponseWriter, r *http.Request) {
	var req model.AuthTokenRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.BusinessName == "" || req.APIKey == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "business_name and api_key are required")
		return
	}

	business, err := h.db.GetBusinessByName(r.Context(), req.BusinessName)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Burn comparable time so unknown names are indistinguishable
			// from wrong keys.
			auth.DummyVerify()
			writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
			return
		}
		h.writeInternalError(w, r, "failed to look up business", err)
		return
	}

	valid, err := auth.VerifyAPIKey(req.APIKey, business.APIKeyHash)
	if err != nil || !valid {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := h.jwtMgr.IssueToken(business, auth.RoleBusiness)
	if err != nil {
		h.writeInternalError(w, r, "failed to issue token", err)
		return
	}

	writeJSON(w, r, http.StatusOK, model.AuthTokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

// HandleAnalyze handles POST /v1/analyze. Runs the full decision pipeline
// for the authenticated business.
func (h *Handlers) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "no claims in context")
		return
	}

	var req model.AnalyzeRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, err.Error())
		return
	}

	rec, err := h.pipelineSvc.Analyze(r.Context(), claims.BusinessID, req.Text)
	if err != nil {
		var blocked *pipeline.BlockedError
		var extraction *pipeline.ExtractionError
		switch {
		case errors.As(err, &blocked):
			if blocked.RateLimited() {
				writeError(w, r, http.StatusTooManyRequests, model.ErrCodeRateLimited, blocked.Result.First().Message)
				return
			}
			writeBlockedError(w, r, blocked)
			return
		case errors.As(err, &extraction):
			writeError(w, r, http.StatusBadGateway, model.ErrCodeExtractionFailed, "signal extraction failed, try again")
			return
		default:
			h.writeInternalError(w, r, "analysis failed", err)
			return
		}
	}

	writeJSON(w, r, http.StatusOK, rec)
}

// writeBlockedError returns 422 with the guardrail violations attached so
// callers can see exactly which checks failed.
func writeBlockedError(w http.ResponseWriter, r *http.Request, blocked *pipeline.BlockedError) {
	writeErrorDetail(w, r, http.StatusUnprocessableEntity, model.ErrorDetail{
		Code:    model.ErrCodeBlocked,
		Message: blocked.Result.First().Message,
		Details: blocked.Result.Violations,
	})
}

// HandleInsights handles GET /v1/insights.
func (h *Handlers) HandleInsights(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "no claims in context")
		return
	}

	profile, spiral, err := h.insightsSvc.Insights(r.Context(), claims.BusinessID)
	if err != nil {
		h.writeInternalError(w, r, "failed to build insights", err)
		return
	}

	writeJSON(w, r, http.StatusOK, model.InsightsResponse{
		Profile:       &profile,
		SpiralWarning: spiral,
	})
}

// HandleCompetitorHistory handles GET /v1/competitors/{name}/history.
func (h *Handlers) HandleCompetitorHistory(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "no claims in context")
		return
	}

	name := strings.TrimSpace(r.PathValue("name"))
	if name == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "competitor name is required")
		return
	}

	days := 0
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "days must be a positive integer")
			return
		}
		days = n
	}

	trend, decisions, err := h.insightsSvc.CompetitorHistory(r.Context(), claims.BusinessID, name, days)
	if err != nil {
		h.writeInternalError(w, r, "failed to load competitor history", err)
		return
	}

	writeJSON(w, r, http.StatusOK, model.CompetitorHistoryResponse{
		Trend:     &trend,
		Decisions: decisions,
	})
}

// HandleRecentDecisions handles GET /v1/decisions/recent.
func (h *Handlers) HandleRecentDecisions(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "no claims in context")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	decisions, err := h.insightsSvc.Recent(r.Context(), claims.BusinessID, limit)
	if err != nil {
		h.writeInternalError(w, r, "failed to load recent decisions", err)
		return
	}

	writeJSON(w, r, http.StatusOK, decisions)
}

// HandleCreateBusiness handles POST /v1/businesses. Admin-only bootstrap
// endpoint: registers a business and returns its API key exactly once.
func (h *Handlers) HandleCreateBusiness(w http.ResponseWriter, r *http.Request) {
	if !h.adminAuthorized(r) {
		writeError(w, r, http.StatusForbidden, model.ErrCodeForbidden, "admin credentials required")
		return
	}

	var req model.CreateBusinessRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "name is required")
		return
	}

	apiKey, err := auth.GenerateAPIKey()
	if err != nil {
		h.writeInternalError(w, r, "failed to generate api key", err)
		return
	}
	hash, err := auth.HashAPIKey(apiKey)
	if err != nil {
		h.writeInternalError(w, r, "failed to hash api key", err)
		return
	}

	business, err := h.db.CreateBusiness(r.Context(), req.Name, hash)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateName) {
			writeError(w, r, http.StatusConflict, model.ErrCodeConflict, "a business with that name already exists")
			return
		}
		h.writeInternalError(w, r, "failed to create business", err)
		return
	}

	h.logger.Info("business created", "business_id", business.ID, "name", business.Name)

	writeJSON(w, r, http.StatusCreated, model.CreateBusinessResponse{
		Business: business,
		APIKey:   apiKey,
	})
}

// adminAuthorized accepts either the configured bootstrap admin key or a
// bearer token carrying the admin role. The bootstrap key exists so the
// first business can be created before any token has ever been issued.
func (h *Handlers) adminAuthorized(r *http.Request) bool {
	if h.adminAPIKey != "" {
		key := r.Header.Get("X-Admin-Key")
		if key != "" && subtle.ConstantTimeCompare([]byte(key), []byte(h.adminAPIKey)) == 1 {
			return true
		}
	}
	if claims := ClaimsFromContext(r.Context()); claims != nil {
		return claims.Role == auth.RoleAdmin
	}
	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return false
	}
	claims, err := h.jwtMgr.ValidateToken(parts[1])
	if err != nil {
		return false
	}
	return claims.Role == auth.RoleAdmin
}

// healthStatus is the body of GET /health.
type healthStatus struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Database      string `json:"database"`
}

// HandleHealth handles GET /health. Reports degraded rather than failing
// when the database is unreachable; the pipeline itself fails open.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := healthStatus{
		Status:        "ok",
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		Database:      "ok",
	}
	code := http.StatusOK
	if h.db == nil {
		status.Database = "disabled"
	} else if err := h.db.Ping(ctx); err != nil {
		status.Status = "degraded"
		status.Database = "unreachable"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, r, code, status)
}

// HandleOpenAPISpec serves the embedded OpenAPI specification.
func (h *Handlers) HandleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	if len(h.openapiSpec) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.openapiSpec)
}

func (h *Handlers) writeInternalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg, "error", err, "request_id", RequestIDFromContext(r.Context()))
	writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, msg)
}

// handleDecodeError maps body decode failures to the right status code.
func handleDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		writeError(w, r, http.StatusRequestEntityTooLarge, model.ErrCodeBadRequest, "request body too large")
		return
	}
	writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "invalid request body: "+err.Error())
}
