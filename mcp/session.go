package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// ClientName and ClientVersion are announced to servers on initialize.
const (
	ClientName    = "flyercal"
	ClientVersion = "1.0.0"
)

// session implements Client over an mcp-go client, whatever its transport.
type session struct {
	client *client.Client
	target string
	logger zerolog.Logger
	// running is set for transports that start on construction.
	running bool
}

var _ Client = (*session)(nil)

// NewStdioClient starts command (split on spaces, followed by args) and
// talks to it over stdin/stdout.
func NewStdioClient(logger zerolog.Logger, command string, args, env []string) (Client, error) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return nil, fmt.Errorf("command is required for stdio MCP client")
	}
	cmdArgs := append(parts[1:len(parts):len(parts)], args...)

	c, err := client.NewStdioMCPClient(parts[0], env, cmdArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to create stdio MCP client: %w", err)
	}
	return &session{
		client:  c,
		target:  parts[0],
		logger:  logger.With().Str("component", "mcpClient").Str("transport", "stdio").Str("command", parts[0]).Logger(),
		running: true,
	}, nil
}

// NewHTTPClient connects to a streamable HTTP MCP server.
func NewHTTPClient(logger zerolog.Logger, baseURL string) (Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("url is required for HTTP MCP client")
	}
	c, err := client.NewStreamableHttpClient(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP MCP client: %w", err)
	}
	return &session{
		client: c,
		target: baseURL,
		logger: logger.With().Str("component", "mcpClient").Str("transport", "http").Str("url", baseURL).Logger(),
	}, nil
}

// Start starts the transport and performs the initialize handshake. Both
// calls are raced against ctx since a misbehaving server can hang them.
func (s *session) Start(ctx context.Context) error {
	if !s.running {
		if err := s.await(ctx, "start", func() error { return s.client.Start(ctx) }); err != nil {
			return err
		}
		s.running = true
	}
	req := mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo:      mcp.Implementation{Name: ClientName, Version: ClientVersion},
		},
	}
	if err := s.await(ctx, "initialize", func() error {
		_, err := s.client.Initialize(ctx, req)
		return err
	}); err != nil {
		return err
	}
	s.logger.Info().Msg("MCP client started")
	return nil
}

func (s *session) await(ctx context.Context, phase string, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		if err != nil {
			s.logger.Error().Err(err).Str("phase", phase).Msg("MCP handshake failed")
			return fmt.Errorf("failed to %s MCP client: %w", phase, err)
		}
		return nil
	case <-ctx.Done():
		s.logger.Error().Err(ctx.Err()).Str("phase", phase).Msg("MCP handshake timed out")
		return fmt.Errorf("context cancelled during %s: %w", phase, ctx.Err())
	}
}

// ListTools returns all tools available from the server.
func (s *session) ListTools(ctx context.Context) ([]ToolDefinition, error) {
	result, err := s.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	s.logger.Info().Int("tool_count", len(result.Tools)).Msg("Received tools from MCP server")

	return lo.Map(result.Tools, func(tool mcp.Tool, _ int) ToolDefinition {
		schema := map[string]interface{}{"type": tool.InputSchema.Type}
		if tool.InputSchema.Properties != nil {
			schema["properties"] = tool.InputSchema.Properties
		}
		if len(tool.InputSchema.Required) > 0 {
			schema["required"] = tool.InputSchema.Required
		}
		if len(tool.InputSchema.Defs) > 0 {
			schema["$defs"] = tool.InputSchema.Defs
		}
		return ToolDefinition{Name: tool.Name, Description: tool.Description, InputSchema: schema}
	}), nil
}

// InvokeTool invokes a tool on the server.
func (s *session) InvokeTool(ctx context.Context, name string, input map[string]interface{}) (map[string]interface{}, error) {
	s.logger.Debug().Str("tool_name", name).Msg("Invoking MCP tool")
	result, err := s.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: input},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to invoke tool %s: %w", name, err)
	}
	return resultMap(result), nil
}

func resultMap(result *mcp.CallToolResult) map[string]interface{} {
	output := make(map[string]interface{})
	texts := lo.FilterMap(result.Content, func(content mcp.Content, _ int) (string, bool) {
		if tc, ok := mcp.AsTextContent(content); ok {
			return tc.Text, true
		}
		text := mcp.GetTextFromContent(content)
		return text, text != ""
	})
	switch len(texts) {
	case 0:
	case 1:
		output["text"] = texts[0]
	default:
		output["text"] = texts
	}
	if result.IsError {
		output["error"] = true
		if len(texts) > 0 {
			output["error_message"] = texts[0]
		}
	}
	return output
}

// Close closes the connection to the server.
func (s *session) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
