package grok

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/atharv/grokipedia-mcp/internal/dispatch"
	"github.com/atharv/grokipedia-mcp/internal/grokipedia"
)

// registerQuery registers the grokipedia_query MCP tool.
func registerQuery(s *server.MCPServer, d *dispatch.Dispatcher, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("grokipedia_query",
			mcp.WithDescription(
				"All-in-one Grokipedia knowledge-base tool. Handles every query in one call. "+
					"Actions: 'smart' (default) searches and fetches full content for the top results; "+
					"'search' returns just the search results with slugs; "+
					"'page' returns metadata and citations for a slug; "+
					"'content' returns the full article text for a slug."),
			mcp.WithString("query", mcp.Description(
				"What you're looking for (topic, person, concept). "+
					"Required for 'smart' and 'search'; ignored for 'page' and 'content'.")),
			mcp.WithString("action", mcp.Description(
				"How to process the query (default: smart)."),
				mcp.Enum("smart", "search", "page", "content")),
			mcp.WithString("slug", mcp.Description(
				"Page slug, e.g. 'Albert_Einstein'. Required for 'page' and 'content'.")),
			mcp.WithNumber("limit", mcp.Description(
				"How many search results to expand in 'smart' mode, or to return in 'search' mode (default 2, max 10).")),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()

			dreq := dispatch.Request{
				Query: optionalString(args, "query"),
				Mode:  dispatch.Mode(optionalString(args, "action")),
				Slug:  optionalString(args, "slug"),
				Limit: optionalInt(args, "limit", 0),
			}

			resp, err := d.Query(ctx, dreq)
			if err != nil {
				logger.Printf("grokipedia_query: %v", err)
				return errorResult(dreq, err), nil
			}

			data, err := json.MarshalIndent(resp, "", "  ")
			if err != nil {
				return errorResult(dreq, fmt.Errorf("encode response: %w", err)), nil
			}
			logger.Printf("grokipedia_query: action=%s ok", resp.Mode)
			return mcp.NewToolResultText(string(data)), nil
		},
	)
}

// toolError is the JSON body of a structured tool failure.
type toolError struct {
	Error  string `json:"error"`
	Kind   string `json:"kind"`
	Query  string `json:"query,omitempty"`
	Action string `json:"action,omitempty"`
	Slug   string `json:"slug,omitempty"`
}

// errorResult wraps err in a tool result with IsError set, carrying the
// error kind so the calling agent can distinguish bad input from upstream
// trouble. Errors never surface as protocol-level failures.
func errorResult(req dispatch.Request, err error) *mcp.CallToolResult {
	body := toolError{
		Error:  err.Error(),
		Kind:   errorKind(err),
		Query:  req.Query,
		Action: string(req.Mode),
		Slug:   req.Slug,
	}
	data, jerr := json.MarshalIndent(body, "", "  ")
	if jerr != nil {
		data = []byte(err.Error())
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(data))},
		IsError: true,
	}
}

// errorKind maps an error to its taxonomy name for the tool payload.
func errorKind(err error) string {
	switch {
	case errors.Is(err, dispatch.ErrInvalidMode):
		return "invalid_mode"
	case errors.Is(err, dispatch.ErrMissingSlug):
		return "missing_slug"
	case errors.Is(err, dispatch.ErrMissingQuery):
		return "missing_query"
	case errors.Is(err, grokipedia.ErrNotFound):
		return "not_found"
	case errors.Is(err, grokipedia.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, grokipedia.ErrSchema):
		return "upstream_schema"
	case errors.Is(err, grokipedia.ErrUnavailable):
		return "upstream_unavailable"
	default:
		return "internal"
	}
}

// optionalString extracts a string argument, returning "" when absent.
func optionalString(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

// optionalInt extracts an int argument, returning fallback when absent.
// The MCP protocol serialises numbers as float64.
func optionalInt(args map[string]any, key string, fallback int) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	return fallback
}
