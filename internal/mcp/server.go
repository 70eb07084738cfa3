// Package mcp exposes the bridge's tool registry over the Model Context
// Protocol so external agent hosts can call the same tools the workflow
// factory hands to its agents.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Qredence/handoff-bridge/internal/tools"
)

// Server wraps an MCP server around a tool registry.
type Server struct {
	mcpServer *server.MCPServer
	registry  *tools.Registry
}

// NewServer creates the MCP server and registers every tool in the registry.
func NewServer(registry *tools.Registry) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Handoff Bridge Tools",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		registry: registry,
	}
	s.registerTools()
	return s
}

// GetMCPServer returns the underlying MCP server.
func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	for _, t := range s.registry.List() {
		opts := []mcp.ToolOption{
			mcp.WithDescription(t.Description + " (risk: " + string(t.Risk) + ")"),
		}
		required := map[string]bool{}
		for _, name := range t.Required {
			required[name] = true
		}
		for name, p := range t.Params {
			propOpts := []mcp.PropertyOption{mcp.Description(p.Description)}
			if required[name] {
				propOpts = append(propOpts, mcp.Required())
			}
			switch p.Type {
			case "integer", "number":
				opts = append(opts, mcp.WithNumber(name, propOpts...))
			case "boolean":
				opts = append(opts, mcp.WithBoolean(name, propOpts...))
			default:
				opts = append(opts, mcp.WithString(name, propOpts...))
			}
		}
		s.mcpServer.AddTool(mcp.NewTool(t.Name, opts...), s.handleTool(t))
	}
}

func (s *Server) handleTool(t *tools.Tool) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, ok := request.Params.Arguments.(map[string]interface{})
		if !ok {
			return mcp.NewToolResultError("Invalid arguments type"), nil
		}
		result := t.Execute(ctx, args)
		if !result.Success {
			return mcp.NewToolResultError(result.Error), nil
		}
		raw, err := json.Marshal(result.Output)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode output: %v", err)), nil
		}
		return mcp.NewToolResultText(string(raw)), nil
	}
}

// MountHTTPHandlers mounts the MCP SSE endpoints on the given mux.
func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})
	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
