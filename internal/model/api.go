package model

import (
	"fmt"
	"time"
)

// Input length bounds for analysis requests. The guardrail layer enforces
// the same bounds; this early check rejects oversized bodies before they
// reach the pipeline.
const (
	MinAnalysisTextLen = 10
	MaxAnalysisTextLen = 3000
)

// API error codes used in the standard error envelope.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeBlocked          = "blocked_by_guardrail"
	ErrCodeExtractionFailed = "extraction_failed"
	ErrCodeInternal         = "internal_error"
)

// APIResponse is the standard success envelope.
type APIResponse struct {
	Data any          `json:"data"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ErrorDetail carries a machine-readable code and human-readable message.
// Details carries structured context (e.g. guardrail violations) when present.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ResponseMeta carries request correlation data on every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// AuthTokenRequest is the body of POST /auth/token.
type AuthTokenRequest struct {
	BusinessName string `json:"business_name"`
	APIKey       string `json:"api_key"`
}

// AuthTokenResponse returns a bearer token and its expiry.
type AuthTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AnalyzeRequest is the body of POST /v1/analyze.
type AnalyzeRequest struct {
	Text string `json:"text"`
}

// Validate checks request-level constraints before the pipeline runs.
func (r AnalyzeRequest) Validate() error {
	if len(r.Text) < MinAnalysisTextLen {
		return fmt.Errorf("text must be at least %d characters", MinAnalysisTextLen)
	}
	if len(r.Text) > MaxAnalysisTextLen {
		return fmt.Errorf("text exceeds maximum length of %d characters", MaxAnalysisTextLen)
	}
	return nil
}

// InsightsResponse is the body of GET /v1/insights.
type InsightsResponse struct {
	Profile       *BusinessProfile `json:"profile"`
	SpiralWarning *SpiralWarning   `json:"spiral_warning,omitempty"`
}

// CompetitorHistoryResponse is the body of GET /v1/competitors/{name}/history.
type CompetitorHistoryResponse struct {
	Trend     *CompetitorTrend `json:"trend"`
	Decisions []DecisionMemory `json:"decisions"`
}

// CreateBusinessRequest is the admin bootstrap body of POST /v1/businesses.
type CreateBusinessRequest struct {
	Name string `json:"name"`
}

// CreateBusinessResponse returns the plaintext API key exactly once.
type CreateBusinessResponse struct {
	Business Business `json:"business"`
	APIKey   string   `json:"api_key"`
}
