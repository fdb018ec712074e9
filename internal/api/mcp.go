package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/pewpi-infinity/spark/internal/generator"
	"github.com/pewpi-infinity/spark/internal/model"
	"github.com/pewpi-infinity/spark/internal/publish"
	"github.com/pewpi-infinity/spark/internal/search"
	"github.com/pewpi-infinity/spark/internal/site"
	"github.com/pewpi-infinity/spark/internal/workflow"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Workflow  *workflow.Workflow
	Publisher *publish.Publisher
	Site      *site.Store
}

// NewMCPServer creates an MCP server with the spark tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"spark",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("spark turns questions into tokens, promotes tokens into pages and publishes them to GitHub Pages."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("search",
			mcp.WithDescription("Generate content for a query and mint a new token from it."),
			mcp.WithString("query", mcp.Description("The question or topic"), mcp.Required()),
			mcp.WithString("context", mcp.Description("Optional background for the generator")),
			mcp.WithString("mode", mcp.Description("Optional generation mode, e.g. research or summary")),
		),
		mcpSearch(deps),
	)

	s.AddTool(
		mcp.NewTool("find",
			mcp.WithDescription("Search existing tokens and pages locally. No content is generated."),
			mcp.WithString("query", mcp.Description("Text to match; empty lists everything newest first")),
			mcp.WithString("type", mcp.Description("all, tokens or pages (default all)")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 10)")),
		),
		mcpFind(deps),
	)

	s.AddTool(
		mcp.NewTool("promote",
			mcp.WithDescription("Promote a token into a draft page with the chosen structure."),
			mcp.WithString("token_id", mcp.Description("Token id (INF-...)"), mcp.Required()),
			mcp.WithString("structure", mcp.Description("blank, knowledge, business, tool or multipage"), mcp.Required()),
			mcp.WithString("title", mcp.Description("Page title; defaults to the token query")),
			mcp.WithArray("features", mcp.Description("Feature names to enable instead of the structure preset")),
		),
		mcpPromote(deps),
	)

	s.AddTool(
		mcp.NewTool("expand",
			mcp.WithDescription("Generate content for a follow-up query and add it to an existing token as another draft page."),
			mcp.WithString("token_id", mcp.Description("Token id (INF-...)"), mcp.Required()),
			mcp.WithString("query", mcp.Description("The follow-up question or topic"), mcp.Required()),
			mcp.WithString("structure", mcp.Description("blank, knowledge, business, tool or multipage"), mcp.Required()),
			mcp.WithString("title", mcp.Description("Page title; defaults to the follow-up query")),
			mcp.WithArray("features", mcp.Description("Feature names to enable instead of the structure preset")),
		),
		mcpExpand(deps),
	)

	s.AddTool(
		mcp.NewTool("publish",
			mcp.WithDescription("Render a page and publish it with the configured strategy."),
			mcp.WithString("page_id", mcp.Description("Page id (PAGE-...)"), mcp.Required()),
		),
		mcpPublish(deps),
	)

	s.AddTool(
		mcp.NewTool("verify",
			mcp.WithDescription("Check whether a published page is live yet."),
			mcp.WithString("page_id", mcp.Description("Page id (PAGE-...)"), mcp.Required()),
		),
		mcpVerify(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"spark://site",
			"Site Configuration",
			mcp.WithResourceDescription("Publishing target configuration as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceSite(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"spark://registry",
			"Published Pages",
			mcp.WithResourceDescription("Registry of published pages, newest first"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRegistry(deps),
	)

	return s
}

func mcpSearch(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		tok, sr, err := deps.Workflow.SearchWith(ctx, generator.Request{
			Query:   query,
			Context: req.GetString("context", ""),
			Mode:    req.GetString("mode", ""),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		return mcpJSON(SearchResponse{Token: tok, Result: sr})
	}
}

func mcpFind(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		typ, err := search.ParseType(req.GetString("type", ""))
		if err != nil {
			return mcpError(err.Error()), nil
		}
		n := req.GetInt("limit", 10)
		if n <= 0 {
			n = 10
		}
		if n > 50 {
			n = 50
		}

		items := search.Search(deps.Workflow.Tokens(ctx), deps.Workflow.Pages(ctx), req.GetString("query", ""), search.Filters{Type: typ})
		items = limit(items, n)
		if items == nil {
			items = []search.Item{}
		}
		return mcpJSON(items)
	}
}

func mcpPromote(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tokenID, err := req.RequireString("token_id")
		if err != nil {
			return mcpError("token_id is required"), nil
		}
		structure, res := mcpStructure(req)
		if res != nil {
			return res, nil
		}

		p, err := deps.Workflow.Promote(ctx, tokenID)
		if err != nil {
			return mcpError(fmt.Sprintf("promote failed: %v", err)), nil
		}
		return mcpFinalize(ctx, deps, req, p, structure, "promote")
	}
}

func mcpExpand(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tokenID, err := req.RequireString("token_id")
		if err != nil {
			return mcpError("token_id is required"), nil
		}
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		structure, res := mcpStructure(req)
		if res != nil {
			return res, nil
		}

		p, err := deps.Workflow.Expand(ctx, tokenID, query)
		if err != nil {
			return mcpError(fmt.Sprintf("expand failed: %v", err)), nil
		}
		return mcpFinalize(ctx, deps, req, p, structure, "expand")
	}
}

func mcpStructure(req mcp.CallToolRequest) (model.Structure, *mcp.CallToolResult) {
	raw, err := req.RequireString("structure")
	if err != nil {
		return "", mcpError("structure is required")
	}
	structure, err := model.ParseStructure(raw)
	if err != nil {
		return "", mcpError(err.Error())
	}
	return structure, nil
}

func mcpFinalize(ctx context.Context, deps MCPDeps, req mcp.CallToolRequest, p *workflow.Promotion, structure model.Structure, action string) (*mcp.CallToolResult, error) {
	p.SelectStructure(structure, req.GetString("title", ""))

	if names := req.GetStringSlice("features", nil); names != nil {
		var f model.Features
		for _, name := range names {
			if err := f.Set(name, true); err != nil {
				return mcpError(err.Error()), nil
			}
		}
		p.SetFeatures(f)
	}

	page, err := deps.Workflow.FinalizePage(ctx, p)
	if err != nil {
		return mcpError(fmt.Sprintf("%s failed: %v", action, err)), nil
	}
	return mcpJSON(page)
}

func mcpPublish(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		pageID, err := req.RequireString("page_id")
		if err != nil {
			return mcpError("page_id is required"), nil
		}
		res, err := deps.Publisher.Publish(ctx, pageID)
		if err != nil {
			return mcpError(fmt.Sprintf("publish failed: %v", err)), nil
		}
		return mcpJSON(res)
	}
}

func mcpVerify(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		pageID, err := req.RequireString("page_id")
		if err != nil {
			return mcpError("page_id is required"), nil
		}
		page, err := deps.Publisher.Verify(ctx, pageID)
		if err != nil {
			return mcpError(fmt.Sprintf("verify failed: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("%s is %s", page.ID, page.State)), nil
	}
}

func mcpResourceSite(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return mcpResourceJSON(req.Params.URI, deps.Site.Get(ctx))
	}
}

func mcpResourceRegistry(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return mcpResourceJSON(req.Params.URI, deps.Publisher.Registry(ctx))
	}
}

func mcpResourceJSON(uri string, v any) ([]mcp.ResourceContents, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
