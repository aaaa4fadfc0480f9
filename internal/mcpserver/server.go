// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the metadata cache to LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vebland/clipvault/internal/cache"
	"github.com/vebland/clipvault/internal/history"
)

// Server wraps the MCP server with cache tools.
type Server struct {
	mcp  *server.MCPServer
	mgr  *cache.Manager
	hist *history.Log
}

// New creates an MCP server with all cache tools registered. hist may
// be nil; the cache_stats tool then reports that history is disabled.
func New(mgr *cache.Manager, hist *history.Log) *Server {
	s := &Server{mgr: mgr, hist: hist}

	s.mcp = server.NewMCPServer(
		"Clipvault",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("get_video_metadata",
		mcp.WithDescription("Look up cached metadata for a video URL, fetching from the remote provider on a cache miss."),
		mcp.WithString("url", mcp.Required(), mcp.Description("Video URL or bare video id")),
	), s.getVideoMetadata)

	s.mcp.AddTool(mcp.NewTool("refresh_metadata",
		mcp.WithDescription("Force a fresh provider fetch for a video URL, replacing the cached record wholesale."),
		mcp.WithString("url", mcp.Required(), mcp.Description("Video URL or bare video id")),
	), s.refreshMetadata)

	s.mcp.AddTool(mcp.NewTool("list_cached",
		mcp.WithDescription("List cached videos newest-first as title/URL pairs."),
	), s.listCached)

	s.mcp.AddTool(mcp.NewTool("evict_cache",
		mcp.WithDescription("Keep only the N most recently used cache entries and delete the rest."),
		mcp.WithNumber("retain", mcp.Required(), mcp.Description("Number of entries to keep (>= 0)")),
	), s.evictCache)

	s.mcp.AddTool(mcp.NewTool("remove_cached",
		mcp.WithDescription("Remove a single cached video and all of its artifacts."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Video id or URL to remove")),
	), s.removeCached)

	s.mcp.AddTool(mcp.NewTool("cache_stats",
		mcp.WithDescription("Aggregate lookup statistics: hits, misses, refreshes, evictions, and the most requested videos."),
	), s.cacheStats)

	// Resource: on-disk cache layout contract.
	s.mcp.AddResource(
		mcp.NewResource("clipvault://cache-layout", "Cache Layout",
			mcp.WithResourceDescription("How records are laid out in the cache directory."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readCacheLayoutResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) getVideoMetadata(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.mgr.GetMetadata(ctx, ref)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(rec, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) refreshMetadata(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.mgr.Refresh(ctx, ref)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(rec, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listCached(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	choices := s.mgr.Choices()
	if len(choices) == 0 {
		return mcp.NewToolResultText("cache is empty"), nil
	}
	var b strings.Builder
	for _, c := range choices {
		fmt.Fprintf(&b, "%s\t%s\n", c.Title, c.URL)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) evictCache(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	retain, err := req.RequireInt("retain")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.mgr.Evict(retain); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("retained %d entries", s.mgr.Len())), nil
}

func (s *Server) removeCached(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.mgr.Remove(id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("removed: %s", id)), nil
}

func (s *Server) cacheStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.hist == nil {
		return mcp.NewToolResultText("history is not configured"), nil
	}
	stats, err := s.hist.Aggregate()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	top, err := s.hist.Top(10)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(map[string]any{"stats": stats, "top": top}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readCacheLayoutResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "clipvault://cache-layout",
			MIMEType: "text/markdown",
			Text:     CacheLayoutContract,
		},
	}, nil
}
