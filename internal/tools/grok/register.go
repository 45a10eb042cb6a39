// Package grok registers the grokipedia_query MCP tool.
package grok

import (
	"log"

	"github.com/mark3labs/mcp-go/server"

	"github.com/atharv/grokipedia-mcp/internal/dispatch"
)

// Register registers the query tool with the mcp-go server.
func Register(s *server.MCPServer, d *dispatch.Dispatcher, logger *log.Logger) {
	registerQuery(s, d, logger)
}

// InstructionsText returns the server instructions shown to connecting agents.
func InstructionsText() string {
	return `You are connected to a Grokipedia MCP server.

One tool, grokipedia_query, answers all knowledge-base queries:
- action "smart" (default): searches and fetches full content for the top results in one call
- action "search": returns search results with slugs, for browsing
- action "page": returns metadata and citations for a specific slug
- action "content": returns the full article text for a specific slug

All data is read-only and comes from the public Grokipedia API. Prefer "smart"
unless you already know the page slug.`
}
