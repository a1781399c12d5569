// Package mcp implements the Model Context Protocol server for Taisaku.
//
// The MCP server exposes the same capabilities as the HTTP API through
// MCP resources and tools, allowing MCP-compatible AI agents to analyze
// competitor moves and inspect the decision memory.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/taisaku-ai/taisaku/internal/ctxutil"
	"github.com/taisaku-ai/taisaku/internal/insights"
	"github.com/taisaku-ai/taisaku/internal/model"
	"github.com/taisaku-ai/taisaku/internal/pipeline"
)

// Server wraps the MCP server with Taisaku's service layer.
type Server struct {
	mcpServer   *mcpserver.MCPServer
	pipelineSvc *pipeline.Service
	insightsSvc *insights.Service
	logger      *slog.Logger
}

// New creates and configures a new MCP server with all resources and tools.
func New(pipelineSvc *pipeline.Service, insightsSvc *insights.Service, logger *slog.Logger) *Server {
	s := &Server{
		pipelineSvc: pipelineSvc,
		insightsSvc: insightsSvc,
		logger:      logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"taisaku",
		"0.1.0",
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
	)

	s.registerResources()
	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func (s *Server) registerResources() {
	// taisaku://decisions/recent — the newest decision memory records.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"taisaku://decisions/recent",
			"Recent Decisions",
			mcplib.WithResourceDescription("The newest decision memory records for the authenticated business"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleRecentResource,
	)

	// taisaku://insights/profile — the business decision profile.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"taisaku://insights/profile",
			"Business Profile",
			mcplib.WithResourceDescription("Aggregated decision patterns and spiral warning for the authenticated business"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleProfileResource,
	)
}

func (s *Server) handleRecentResource(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	businessID := ctxutil.BusinessIDFromContext(ctx)
	if businessID == uuid.Nil {
		return nil, fmt.Errorf("mcp: authentication required")
	}

	decisions, err := s.insightsSvc.Recent(ctx, businessID, 20)
	if err != nil {
		return nil, fmt.Errorf("mcp: recent decisions: %w", err)
	}

	data, err := json.MarshalIndent(decisions, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal decisions: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      "taisaku://decisions/recent",
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleProfileResource(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	businessID := ctxutil.BusinessIDFromContext(ctx)
	if businessID == uuid.Nil {
		return nil, fmt.Errorf("mcp: authentication required")
	}

	profile, spiral, err := s.insightsSvc.Insights(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("mcp: insights: %w", err)
	}

	data, err := json.MarshalIndent(model.InsightsResponse{
		Profile:       &profile,
		SpiralWarning: spiral,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal insights: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      "taisaku://insights/profile",
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

func jsonResult(v any) *mcplib.CallToolResult {
	data, _ := json.MarshalIndent(v, "", "  ")
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}
}
