// Package mcp connects to Model Context Protocol servers so their tools can
// be offered to the agent next to the built-in ones.
package mcp

import (
	"context"
)

// ToolDefinition represents an MCP tool definition.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// Client is the interface for interacting with MCP servers.
type Client interface {
	// Start initializes the connection.
	Start(ctx context.Context) error

	// ListTools returns all tools available from the server.
	ListTools(ctx context.Context) ([]ToolDefinition, error)

	// InvokeTool invokes a tool with the given input. The result holds
	// "text" and, on tool errors, "error" and "error_message".
	InvokeTool(ctx context.Context, name string, input map[string]interface{}) (map[string]interface{}, error)

	Close() error
}
