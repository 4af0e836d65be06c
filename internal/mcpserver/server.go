// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the evolution queue to LLM tooling via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/jeebs/internal/autonomy"
	"github.com/starford/jeebs/internal/models"
	"github.com/starford/jeebs/internal/proposal"
)

// ArtifactFormatURI names the artifact format resource.
const ArtifactFormatURI = "jeebs://artifact-format"

// Server wraps the MCP server with the evolution tools.
type Server struct {
	mcp     *server.MCPServer
	svc     *proposal.Service
	thinker *autonomy.Thinker
}

// New creates a new MCP server with all tools registered.
func New(svc *proposal.Service, thinker *autonomy.Thinker) *Server {
	s := &Server{svc: svc, thinker: thinker}

	s.mcp = server.NewMCPServer(
		"Jeebs",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_proposals",
		mcp.WithDescription("List proposed updates, newest first. Returns id, title, severity and status of each."),
		mcp.WithString("status", mcp.Description("Optional status filter"),
			mcp.Enum("pending", "applied", "denied", "resolved", "rolled_back")),
	), s.listProposals)

	s.mcp.AddTool(mcp.NewTool("get_proposal",
		mcp.WithDescription("Read a proposed update including its file changes, rationale and comments."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Proposal ID")),
	), s.getProposal)

	s.mcp.AddTool(mcp.NewTool("runtime_status",
		mcp.WithDescription("Report the think-cycle runtime state and scheduler settings."),
	), s.runtimeStatus)

	s.mcp.AddTool(mcp.NewTool("list_notifications",
		mcp.WithDescription("List operator notifications, newest first."),
	), s.listNotifications)

	s.mcp.AddTool(mcp.NewTool("think_now",
		mcp.WithDescription("Run one think-cycle immediately, skipping the cooldown. "+
			"The pending cap and duplicate detection still apply. Generated proposals "+
			"follow the artifact format described by the "+ArtifactFormatURI+" resource."),
	), s.thinkNow)

	s.mcp.AddResource(
		mcp.NewResource(ArtifactFormatURI, "Artifact Format",
			mcp.WithResourceDescription("Layout of the markdown documents a proposal writes."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readArtifactFormatResource,
	)

	return s
}

// ServeStdio serves MCP on stdin/stdout until ctx is cancelled or stdin closes.
func (s *Server) ServeStdio(ctx context.Context) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// proposalSummary is one row of list_proposals.
type proposalSummary struct {
	ID         string                `json:"id"`
	Title      string                `json:"title"`
	Severity   models.Severity       `json:"severity"`
	Status     models.ProposalStatus `json:"status"`
	Confidence float32               `json:"confidence"`
	Files      int                   `json:"files"`
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listProposals(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var status models.ProposalStatus
	if v, err := req.RequireString("status"); err == nil {
		status = models.ProposalStatus(v)
	}
	items, err := s.svc.List(ctx, status)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out := make([]proposalSummary, 0, len(items))
	for _, u := range items {
		out = append(out, proposalSummary{
			ID:         u.ID,
			Title:      u.Title,
			Severity:   u.Severity,
			Status:     u.Status,
			Confidence: u.Confidence,
			Files:      len(u.Changes),
		})
	}
	return jsonResult(out)
}

func (s *Server) getProposal(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	u, err := s.svc.Get(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	// The backup holds pre-images of workspace files and stays server side.
	u.Backup = nil
	return jsonResult(u)
}

func (s *Server) runtimeStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.thinker.State(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	settings := s.thinker.Settings()
	return jsonResult(map[string]any{
		"state":            st,
		"enabled":          settings.Enabled,
		"interval_seconds": int(settings.Interval.Seconds()),
		"cooldown_seconds": int(settings.Cooldown.Seconds()),
		"pending_cap":      settings.PendingCap,
	})
}

func (s *Server) listNotifications(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ns, err := s.svc.Notifications().List(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(ns) == 0 {
		return mcp.NewToolResultText("no notifications"), nil
	}
	return jsonResult(ns)
}

func (s *Server) thinkNow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.thinker.Cycle(ctx, true)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) readArtifactFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ArtifactFormatURI,
			MIMEType: "text/markdown",
			Text:     ArtifactFormat,
		},
	}, nil
}
