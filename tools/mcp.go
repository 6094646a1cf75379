package tools

import (
	"context"
	"fmt"
	"sort"

	"github.com/samber/lo"
)

// MCPToolInvoker represents something that can invoke an MCP tool.
type MCPToolInvoker interface {
	InvokeTool(ctx context.Context, originalName string, input map[string]interface{}) (map[string]interface{}, error)
}

// MCPTool exposes a tool served by an MCP server. safeName is the catalog
// name; originalName is the server's name for it.
type MCPTool struct {
	safeName     string
	originalName string
	description  string
	params       []string
	invoker      MCPToolInvoker
}

// NewMCPTool adapts an MCP tool definition. Parameters are taken from the
// input schema: required properties first, then the rest alphabetically.
func NewMCPTool(safeName, originalName, description string, inputSchema map[string]interface{}, invoker MCPToolInvoker) *MCPTool {
	return &MCPTool{
		safeName:     safeName,
		originalName: originalName,
		description:  description,
		params:       SchemaParams(inputSchema),
		invoker:      invoker,
	}
}

func (t *MCPTool) Name() string        { return t.safeName }
func (t *MCPTool) Params() []string    { return t.params }
func (t *MCPTool) Description() string { return t.description }

func (t *MCPTool) Run(ctx context.Context, args map[string]string) (string, error) {
	input := make(map[string]interface{}, len(args))
	for k, v := range args {
		input[k] = v
	}
	out, err := t.invoker.InvokeTool(ctx, t.originalName, input)
	if err != nil {
		return "", Recoverable(t.safeName, err)
	}
	if isErr, _ := out["error"].(bool); isErr {
		return "", Recoverable(t.safeName, fmt.Errorf("%v", out["error_message"]))
	}
	if text, ok := out["text"].(string); ok && len(out) == 1 {
		return text, nil
	}
	return marshalResult(out)
}

// SchemaParams orders the properties of a JSON object schema.
func SchemaParams(schema map[string]interface{}) []string {
	props, _ := schema["properties"].(map[string]interface{})

	var required []string
	switch r := schema["required"].(type) {
	case []string:
		required = r
	case []interface{}:
		required = lo.FilterMap(r, func(v interface{}, _ int) (string, bool) {
			s, ok := v.(string)
			return s, ok
		})
	}
	required = lo.Filter(lo.Uniq(required), func(name string, _ int) bool {
		_, ok := props[name]
		return ok || props == nil
	})

	rest := lo.Filter(lo.Keys(props), func(name string, _ int) bool {
		return !lo.Contains(required, name)
	})
	sort.Strings(rest)
	return append(required, rest...)
}
