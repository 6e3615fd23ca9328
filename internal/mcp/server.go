package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/reviewpipe/internal/review"
	"github.com/joescharf/reviewpipe/internal/store"
)

// ReviewFunc runs a review of local files and returns its final state.
type ReviewFunc func(ctx context.Context, paths []string) (*review.State, error)

// Server exposes the review workflow and the review history as MCP tools.
type Server struct {
	store      store.Store
	review     ReviewFunc
	thresholds review.Thresholds
	version    string
}

// NewServer creates the MCP server wrapper. st may be nil when history is
// disabled; the history tools then report an error.
func NewServer(st store.Store, fn ReviewFunc, th review.Thresholds, version string) *Server {
	if version == "" {
		version = "dev"
	}
	if th == (review.Thresholds{}) {
		th = review.DefaultThresholds()
	}
	return &Server{store: st, review: fn, thresholds: th, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("reviewpipe", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.reviewFilesTool())
	srv.AddTool(s.listReviewsTool())
	srv.AddTool(s.getReviewTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// review_files
func (s *Server) reviewFilesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("review_files",
		mcp.WithDescription("Run a full code review (security, quality, coverage, AI review, documentation) on local files. Returns the decision, summary and the formatted report."),
		mcp.WithString("paths", mcp.Required(), mcp.Description("Comma-separated list of file paths to review")),
	)
	return tool, s.handleReviewFiles
}

func (s *Server) handleReviewFiles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := request.RequireString("paths")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: paths"), nil
	}
	var paths []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	if len(paths) == 0 {
		return mcp.NewToolResultError("no file paths given"), nil
	}
	if s.review == nil {
		return mcp.NewToolResultError("review workflow is not configured"), nil
	}

	st, err := s.review(ctx, paths)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("review failed: %v", err)), nil
	}

	type reviewOut struct {
		ReviewID          string   `json:"review_id"`
		Stage             string   `json:"stage"`
		Recommendation    string   `json:"recommendation,omitempty"`
		HasCriticalIssues bool     `json:"has_critical_issues"`
		CriticalReason    string   `json:"critical_reason,omitempty"`
		FilesReviewed     int      `json:"files_reviewed"`
		CompletedTasks    []string `json:"completed_tasks"`
		Error             string   `json:"error,omitempty"`
		Report            string   `json:"report,omitempty"`
	}
	out := reviewOut{
		ReviewID:          st.ID,
		Stage:             string(st.Stage),
		HasCriticalIssues: st.HasCriticalIssues,
		CriticalReason:    st.CriticalReason,
		FilesReviewed:     len(st.Files),
		CompletedTasks:    st.CompletedTasks,
		Error:             st.Error,
	}
	if st.Summary != nil {
		out.Recommendation = string(st.Summary.Recommendation)
		out.Report = review.FormatReport(st, s.thresholds)
	}

	return jsonResult(out, "review")
}

// list_reviews
func (s *Server) listReviewsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("list_reviews",
		mcp.WithDescription("List finished reviews from the history archive, newest first."),
		mcp.WithString("repo", mcp.Description("Filter by repository as owner/repo")),
		mcp.WithString("stage", mcp.Description("Filter by final stage: completed, escalated, error")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of reviews to return (default 20)")),
	)
	return tool, s.handleListReviews
}

func (s *Server) handleListReviews(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.store == nil {
		return mcp.NewToolResultError("review history is disabled"), nil
	}

	filter := store.ReviewFilter{
		Stage: request.GetString("stage", ""),
		Limit: request.GetInt("limit", 20),
	}
	if repo := request.GetString("repo", ""); repo != "" {
		owner, name, ok := strings.Cut(repo, "/")
		if !ok || owner == "" || name == "" {
			return mcp.NewToolResultError(fmt.Sprintf("invalid repo %q, expected owner/repo", repo)), nil
		}
		filter.Owner, filter.Repo = owner, name
	}

	recs, err := s.store.ListReviews(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list reviews: %v", err)), nil
	}

	type reviewRow struct {
		ID             string    `json:"id"`
		ReviewID       string    `json:"review_id"`
		Repo           string    `json:"repo,omitempty"`
		Number         int       `json:"number,omitempty"`
		Stage          string    `json:"stage"`
		Recommendation string    `json:"recommendation,omitempty"`
		Critical       bool      `json:"critical"`
		FilesReviewed  int       `json:"files_reviewed"`
		FinishedAt     time.Time `json:"finished_at"`
	}
	out := make([]reviewRow, len(recs))
	for i, r := range recs {
		row := reviewRow{
			ID:             r.ID,
			ReviewID:       r.ReviewID,
			Number:         r.ChangeID,
			Stage:          r.Stage,
			Recommendation: r.Recommendation,
			Critical:       r.Critical,
			FilesReviewed:  r.FilesReviewed,
			FinishedAt:     r.FinishedAt,
		}
		if r.Owner != "" {
			row.Repo = r.Owner + "/" + r.Repo
		}
		out[i] = row
	}
	return jsonResult(out, "reviews")
}

// get_review
func (s *Server) getReviewTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("get_review",
		mcp.WithDescription("Get the full state of a finished review, including every analyzer result and the summary. Accepts a review id or a unique prefix of one."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Review id (e.g. REV-20260101-1A2B3C4D) or a unique prefix")),
	)
	return tool, s.handleGetReview
}

func (s *Server) handleGetReview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}
	if s.store == nil {
		return mcp.NewToolResultError("review history is disabled"), nil
	}

	rec, err := s.store.GetReview(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("review not found: %s", id)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get review: %v", err)), nil
	}

	st, err := store.StateFromRecord(rec)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(st, "review")
}

func jsonResult(v any, what string) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal %s: %v", what, err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
