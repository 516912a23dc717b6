// Package mcp serves the DataGem tool catalog over the Model Context
// Protocol, so MCP clients can run Python analysis and search through the
// same tool providers the chat engine uses.
package mcp

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/datagem/pkg/debug"
	"github.com/rhuss/datagem/pkg/tools"
)

// ServerName is the implementation name announced during the handshake.
const ServerName = "datagem"

// NewServer creates an MCP server exposing every tool in registry. Tool
// failures are reported as results with IsError set, not as protocol
// errors, so clients see the same text the model would.
func NewServer(registry *tools.Registry, version string) *mcp.Server {
	if version == "" {
		version = "dev"
	}
	server := mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: version}, nil)

	for _, def := range registry.List() {
		server.AddTool(&mcp.Tool{
			Name:        string(def.Name),
			Description: def.Description,
			InputSchema: inputSchema(def.Parameters),
		}, toolHandler(registry, def.Name))
	}
	return server
}

// NewHandler returns the streamable HTTP handler for server.
func NewHandler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, nil)
}

func toolHandler(registry *tools.Registry, name tools.Name) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args string
		if req.Params != nil && len(req.Params.Arguments) > 0 {
			args = string(req.Params.Arguments)
		}

		debug.Log(debug.Tools, "mcp tool call", "tool", name, "args", debug.Truncate(args, 200))

		out, err := registry.Invoke(ctx, string(name), args)
		if err != nil {
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: "Error: " + err.Error()}},
				IsError: true,
			}, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: out}},
		}, nil
	}
}

// inputSchema decodes a tool's JSON Schema. The SDK requires an object
// schema, so an empty or unreadable one becomes {"type":"object"}.
func inputSchema(raw json.RawMessage) map[string]any {
	schema := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &schema); err != nil {
			schema = map[string]any{}
		}
	}
	if _, ok := schema["type"]; !ok {
		schema["type"] = "object"
	}
	return schema
}
