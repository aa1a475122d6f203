// Package mcp provides the Model Context Protocol (MCP) server implementation.
package mcp

import (
	"context"
	"net/http"

	"github.com/huangsam/offcache/internal/contract"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Dispatcher runs a request through the host as one client would send it.
type Dispatcher interface {
	Fetch(ctx context.Context, clientID string, req *http.Request) (*http.Response, error)
}

// NewMCPServer initializes and configures the offcache MCP server without starting it.
// This is exposed for unit testing.
func NewMCPServer(baseCfg *contract.Config, mgr contract.CacheManager, dispatcher Dispatcher) *server.MCPServer {
	s := server.NewMCPServer(
		"Offcache Server",
		"1.0.0",
		server.WithLogging(),
	)

	h := &toolHandler{
		baseCfg:    baseCfg,
		mgr:        mgr,
		dispatcher: dispatcher,
	}

	// --- 1. Tool: list_caches ---
	s.AddTool(mcp.NewTool("list_caches",
		mcp.WithDescription("List the named caches for the origin and the entries they hold."),
		mcp.WithString("cache_name", mcp.Description("Only list entries of this cache (defaults to all caches).")),
	), h.handleListCaches)

	// --- 2. Tool: cache_status ---
	s.AddTool(mcp.NewTool("cache_status",
		mcp.WithDescription("Show the storage backend, its caches, entry count and size."),
	), h.handleCacheStatus)

	// --- 3. Tool: match_request ---
	s.AddTool(mcp.NewTool("match_request",
		mcp.WithDescription("Look a GET request up in every cache, oldest cache first, without touching the network."),
		mcp.WithString("url", mcp.Description("Absolute URL or a path on the origin."), mcp.Required()),
	), h.handleMatchRequest)

	// --- 4. Tool: fetch_through_worker ---
	s.AddTool(mcp.NewTool("fetch_through_worker",
		mcp.WithDescription("Send a request through the active worker the way a page would, and return the response it produced."),
		mcp.WithString("url", mcp.Description("Absolute URL or a path on the origin."), mcp.Required()),
		mcp.WithString("method", mcp.Description("Request method. Defaults to 'GET'.")),
		mcp.WithString("client_id", mcp.Description("Client to send as. Defaults to 'mcp'.")),
		mcp.WithBoolean("navigate", mcp.Description("Send as a navigation, which puts the client under worker control.")),
	), h.handleFetchThroughWorker)

	return s
}

// StartMCPServer starts the offcache MCP server on stdio.
func StartMCPServer(_ context.Context, baseCfg *contract.Config, mgr contract.CacheManager, dispatcher Dispatcher) error {
	s := NewMCPServer(baseCfg, mgr, dispatcher)
	return server.ServeStdio(s)
}
