package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/rolo/internal/composer"
	"github.com/kalambet/rolo/internal/intent"
	"github.com/kalambet/rolo/internal/retrieval"
)

const (
	defaultFindLimit = 20
	maxFindLimit     = 100
	statsURI         = "contacts://stats"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Pipeline Asker
	Contacts Finder
	Version  string
}

// NewMCPServer creates an MCP server exposing the contact tools and resources.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"rolo",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("rolo answers questions about a personal contact book: who works where, who holds which role, who carries a tag."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask_contacts",
			mcp.WithDescription("Answer a natural-language question about the contact book. Returns a formatted answer."),
			mcp.WithString("query", mcp.Description("Question, e.g. \"who works at Acme?\" or \"#investor\""), mcp.Required()),
		),
		mcpAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("find_contacts",
			mcp.WithDescription("Search the contact book without generating an answer. An empty query lists the most recent contacts."),
			mcp.WithString("query", mcp.Description("Name, company, role or #tag")),
			mcp.WithNumber("limit", mcp.Description(fmt.Sprintf("Maximum number of contacts (default %d)", defaultFindLimit))),
		),
		mcpFind(deps),
	)

	s.AddResource(
		mcp.NewResource(
			statsURI,
			"Contact Statistics",
			mcp.WithResourceDescription("Totals of contacts, interactions and unique tags as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceStats(deps),
	)

	return s
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil || strings.TrimSpace(query) == "" {
			return mcpError("query is required"), nil
		}
		if err := checkQuery(query); err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpText(deps.Pipeline.Run(ctx, query).Answer), nil
	}
}

func mcpFind(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := strings.TrimSpace(req.GetString("query", ""))
		limit := req.GetInt("limit", defaultFindLimit)
		if limit <= 0 {
			limit = defaultFindLimit
		}
		if limit > maxFindLimit {
			limit = maxFindLimit
		}

		in := intent.Intent{Kind: intent.KindGeneral}
		if query != "" {
			in = intent.Classify(query)
		}

		found := deps.Contacts.Search(ctx, in)
		switch found.Status {
		case retrieval.StatusUnavailable:
			return mcpError("contact store is unavailable"), nil
		case retrieval.StatusNoMatches:
			return mcpText("No contacts found."), nil
		}

		return mcpText(composer.BuildContext(found.Contacts, limit)), nil
	}
}

func mcpResourceStats(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		st, err := deps.Contacts.Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read stats: %w", err)
		}

		b, err := json.Marshal(StatsResponse{Stats: st, AvgInteractions: st.AvgInteractions()})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal stats: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
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
