package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/jeebs/internal/autonomy"
	"github.com/starford/jeebs/internal/models"
	"github.com/starford/jeebs/internal/proposal"
	"github.com/starford/jeebs/internal/signals"
	"github.com/starford/jeebs/internal/testutil"
	"github.com/starford/jeebs/internal/workspace"
)

func testServer(t *testing.T) (*Server, *proposal.Service) {
	t.Helper()
	_, fs := testutil.TestWorkspace(t)
	db := testutil.TestDB(t)

	props := proposal.NewStore(db, nil)
	svc := proposal.NewService(proposal.ServiceDeps{
		Store:         props,
		Notifications: proposal.NewNotifications(db, proposal.DefaultNotificationCap, nil),
		Applier:       workspace.NewApplier(fs, workspace.DefaultPolicy(), nil),
	})
	th := autonomy.New(autonomy.Deps{
		Settings:  autonomy.DefaultSettings(),
		Collector: signals.NewCollector(db, props, nil),
		Proposals: svc,
		KV:        db,
	})
	return New(svc, th), svc
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_proposals":
		result, err = srv.listProposals(ctx, req)
	case "get_proposal":
		result, err = srv.getProposal(ctx, req)
	case "runtime_status":
		result, err = srv.runtimeStatus(ctx, req)
	case "list_notifications":
		result, err = srv.listNotifications(ctx, req)
	case "think_now":
		result, err = srv.thinkNow(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func propose(t *testing.T, svc *proposal.Service, id string, sev models.Severity) {
	t.Helper()
	err := svc.Propose(context.Background(), &models.ProposedUpdate{
		ID:        id,
		Title:     "Proposal " + id,
		Severity:  sev,
		Changes:   []models.FileChange{{Path: "evolution/" + id + ".md", NewContent: id}},
		Backup:    []models.FileChange{{Path: "evolution/" + id + ".md", NewContent: "old"}},
		CreatedAt: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
}

func TestListProposals(t *testing.T) {
	srv, svc := testServer(t)
	propose(t, svc, "a", models.SeverityLow)
	propose(t, svc, "b", models.SeverityHigh)
	if _, err := svc.Deny(context.Background(), "a", "root"); err != nil {
		t.Fatal(err)
	}

	var all []proposalSummary
	if err := json.Unmarshal([]byte(resultText(callTool(t, srv, "list_proposals", nil))), &all); err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("list = %+v", all)
	}

	var pending []proposalSummary
	r := callTool(t, srv, "list_proposals", map[string]interface{}{"status": "pending"})
	if err := json.Unmarshal([]byte(resultText(r)), &pending); err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ID != "b" || pending[0].Files != 1 {
		t.Errorf("pending = %+v", pending)
	}
}

func TestGetProposal(t *testing.T) {
	srv, svc := testServer(t)
	propose(t, svc, "a", models.SeverityLow)

	r := callTool(t, srv, "get_proposal", map[string]interface{}{"id": "a"})
	var u models.ProposedUpdate
	if err := json.Unmarshal([]byte(resultText(r)), &u); err != nil {
		t.Fatal(err)
	}
	if u.ID != "a" || len(u.Changes) != 1 {
		t.Errorf("proposal = %+v", u)
	}
	if len(u.Backup) != 0 {
		t.Error("backup leaked through get_proposal")
	}
}

func TestGetProposalMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_proposal", map[string]interface{}{"id": "nope"})
	if !r.IsError {
		t.Error("expected error for missing proposal")
	}
	r = callTool(t, srv, "get_proposal", map[string]interface{}{})
	if !r.IsError {
		t.Error("expected error for missing id")
	}
}

func TestThinkNowAndStatus(t *testing.T) {
	srv, svc := testServer(t)

	r := callTool(t, srv, "think_now", nil)
	if r.IsError {
		t.Fatalf("think_now: %s", resultText(r))
	}
	var res autonomy.CycleResult
	if err := json.Unmarshal([]byte(resultText(r)), &res); err != nil {
		t.Fatal(err)
	}
	if !res.CreatedUpdate {
		t.Fatalf("result = %+v", res)
	}
	if _, err := svc.Get(context.Background(), res.UpdateID); err != nil {
		t.Errorf("created proposal not stored: %v", err)
	}

	text := resultText(callTool(t, srv, "runtime_status", nil))
	var status struct {
		State      models.RuntimeState `json:"state"`
		PendingCap int                 `json:"pending_cap"`
	}
	if err := json.Unmarshal([]byte(text), &status); err != nil {
		t.Fatal(err)
	}
	if status.State.TotalCycles != 1 || status.State.TotalProposals != 1 {
		t.Errorf("state = %+v", status.State)
	}
	if status.PendingCap != autonomy.DefaultPendingCap {
		t.Errorf("pending_cap = %d", status.PendingCap)
	}
}

func TestListNotifications(t *testing.T) {
	srv, svc := testServer(t)
	if text := resultText(callTool(t, srv, "list_notifications", nil)); text != "no notifications" {
		t.Errorf("empty list = %q", text)
	}
	propose(t, svc, "hot", models.SeverityHigh)
	text := resultText(callTool(t, srv, "list_notifications", nil))
	if !strings.Contains(text, "/api/evolution/updates/hot") {
		t.Errorf("notifications = %s", text)
	}
}

func TestArtifactFormatResource(t *testing.T) {
	srv, _ := testServer(t)
	contents, err := srv.readArtifactFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || tc.URI != ArtifactFormatURI || !strings.Contains(tc.Text, "experiment_backlog") {
		t.Errorf("resource = %+v", contents)
	}
}
