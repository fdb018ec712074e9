package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/pewpi-infinity/spark/internal/model"
	"github.com/pewpi-infinity/spark/internal/publish"
	"github.com/pewpi-infinity/spark/internal/search"
	"github.com/pewpi-infinity/spark/internal/site"
)

func newTestMCPDeps(t *testing.T) MCPDeps {
	t.Helper()
	env := newTestEnv(t)
	return MCPDeps{
		Workflow:  env.deps.Workflow,
		Publisher: env.deps.Publisher,
		Site:      env.deps.Site,
	}
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func callTool(t *testing.T, h func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	result, err := h(context.Background(), makeCallToolRequest(name, args))
	if err != nil {
		t.Fatalf("%s: unexpected error: %v", name, err)
	}
	return result
}

func TestMCPTool_SearchPromotePublish(t *testing.T) {
	deps := newTestMCPDeps(t)

	result := callTool(t, mcpSearch(deps), "search", map[string]interface{}{"query": "history of jazz"})
	if result.IsError {
		t.Fatalf("search: %s", toolText(t, result))
	}
	var sr SearchResponse
	if err := json.Unmarshal([]byte(toolText(t, result)), &sr); err != nil {
		t.Fatalf("parsing search result: %v", err)
	}

	result = callTool(t, mcpPromote(deps), "promote", map[string]interface{}{
		"token_id":  sr.Token.ID,
		"structure": "business",
		"title":     "Jazz History",
		"features":  []interface{}{"video", "files"},
	})
	if result.IsError {
		t.Fatalf("promote: %s", toolText(t, result))
	}
	var page model.BuildPage
	if err := json.Unmarshal([]byte(toolText(t, result)), &page); err != nil {
		t.Fatalf("parsing page: %v", err)
	}
	if page.Title != "Jazz History" || page.Features != (model.Features{Video: true, Files: true}) {
		t.Errorf("page = %+v", page)
	}

	result = callTool(t, mcpPublish(deps), "publish", map[string]interface{}{"page_id": page.ID})
	if result.IsError {
		t.Fatalf("publish: %s", toolText(t, result))
	}
	var res publish.Result
	json.Unmarshal([]byte(toolText(t, result)), &res)
	if !strings.HasSuffix(res.URL, "/pages/jazz-history/") {
		t.Errorf("url = %q", res.URL)
	}

	result = callTool(t, mcpVerify(deps), "verify", map[string]interface{}{"page_id": page.ID})
	if result.IsError || !strings.Contains(toolText(t, result), "awaiting-build") {
		t.Errorf("verify = %s", toolText(t, result))
	}
}

func TestMCPTool_Expand(t *testing.T) {
	deps := newTestMCPDeps(t)
	ctx := context.Background()

	tok, _, err := deps.Workflow.Search(ctx, "jazz")
	if err != nil {
		t.Fatal(err)
	}
	result := callTool(t, mcpExpand(deps), "expand", map[string]interface{}{
		"token_id":  tok.ID,
		"query":     "swing era",
		"structure": "tool",
	})
	if result.IsError {
		t.Fatalf("expand: %s", toolText(t, result))
	}
	var page model.BuildPage
	if err := json.Unmarshal([]byte(toolText(t, result)), &page); err != nil {
		t.Fatalf("parsing page: %v", err)
	}
	if page.Title != "swing era" || page.TokenID != tok.ID || page.Features != model.StructureTool.Preset() {
		t.Errorf("page = %+v", page)
	}

	got, err := deps.Workflow.Token(ctx, tok.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.PageIDs) != 1 || got.PageIDs[0] != page.ID {
		t.Errorf("pageIds = %v", got.PageIDs)
	}
}

func TestMCPTool_RequiredArgs(t *testing.T) {
	deps := newTestMCPDeps(t)

	tests := []struct {
		name string
		h    func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)
		args map[string]interface{}
	}{
		{"search", mcpSearch(deps), map[string]interface{}{}},
		{"search blank", mcpSearch(deps), map[string]interface{}{"query": "  "}},
		{"promote", mcpPromote(deps), map[string]interface{}{"structure": "blank"}},
		{"promote structure", mcpPromote(deps), map[string]interface{}{"token_id": "INF-X", "structure": "wiki"}},
		{"promote missing token", mcpPromote(deps), map[string]interface{}{"token_id": "INF-X", "structure": "blank"}},
		{"expand", mcpExpand(deps), map[string]interface{}{"query": "more", "structure": "blank"}},
		{"expand query", mcpExpand(deps), map[string]interface{}{"token_id": "INF-X", "structure": "blank"}},
		{"expand missing token", mcpExpand(deps), map[string]interface{}{"token_id": "INF-X", "query": "more", "structure": "blank"}},
		{"publish", mcpPublish(deps), map[string]interface{}{}},
		{"verify", mcpVerify(deps), map[string]interface{}{}},
		{"find type", mcpFind(deps), map[string]interface{}{"type": "bogus"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := callTool(t, tt.h, tt.name, tt.args)
			if !result.IsError {
				t.Errorf("expected error result, got %s", toolText(t, result))
			}
		})
	}
}

func TestMCPTool_Find(t *testing.T) {
	deps := newTestMCPDeps(t)
	deps.Workflow.Seed(context.Background())

	result := callTool(t, mcpFind(deps), "find", map[string]interface{}{"query": "technology", "type": "pages"})
	if result.IsError {
		t.Fatalf("find: %s", toolText(t, result))
	}
	var items []search.Item
	if err := json.Unmarshal([]byte(toolText(t, result)), &items); err != nil {
		t.Fatalf("parsing items: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	for _, it := range items {
		if it.Kind != search.KindPage || it.Score != search.ScoreTag {
			t.Errorf("item = %+v", it)
		}
	}
}

func TestMCPResources(t *testing.T) {
	deps := newTestMCPDeps(t)

	contents, err := mcpResourceSite(deps)(context.Background(), makeReadResourceRequest("spark://site"))
	if err != nil {
		t.Fatalf("site resource: %v", err)
	}
	text := contents[0].(mcp.TextResourceContents)
	var cfg site.Config
	if err := json.Unmarshal([]byte(text.Text), &cfg); err != nil {
		t.Fatalf("parsing site: %v", err)
	}
	if cfg.RepoName != "infinity-spark" || text.URI != "spark://site" {
		t.Errorf("site resource = %+v", text)
	}

	contents, err = mcpResourceRegistry(deps)(context.Background(), makeReadResourceRequest("spark://registry"))
	if err != nil {
		t.Fatalf("registry resource: %v", err)
	}
	if got := contents[0].(mcp.TextResourceContents).Text; got != "[]" {
		t.Errorf("empty registry = %s", got)
	}
}

func TestNewMCPServer(t *testing.T) {
	if s := NewMCPServer(newTestMCPDeps(t)); s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}
