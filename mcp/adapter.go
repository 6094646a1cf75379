package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/aschepis/flyercal/tools"
)

// NameAdapter maps MCP tool names, which may contain dots or dashes, to
// catalog names and back.
type NameAdapter struct {
	safeToOriginal map[string]string
	originalToSafe map[string]string
}

// NewNameAdapter creates a new name adapter.
func NewNameAdapter() *NameAdapter {
	return &NameAdapter{
		safeToOriginal: make(map[string]string),
		originalToSafe: make(map[string]string),
	}
}

// ToSafeName converts an MCP tool name to a catalog name.
// Example: "calendar.events-list" -> "calendar_events_list"
func ToSafeName(original string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(original)
}

// ToOriginalName converts a safe name back to the original MCP tool name.
func (a *NameAdapter) ToOriginalName(safe string) (string, bool) {
	original, ok := a.safeToOriginal[safe]
	return original, ok
}

// SafeName returns the catalog name for original, registering the mapping.
// Different originals that collapse to the same safe name get a numeric
// suffix.
func (a *NameAdapter) SafeName(original string) string {
	if safe, ok := a.originalToSafe[original]; ok {
		return safe
	}
	safe := ToSafeName(original)
	for i := 2; ; i++ {
		if _, taken := a.safeToOriginal[safe]; !taken {
			break
		}
		safe = fmt.Sprintf("%s_%d", ToSafeName(original), i)
	}
	a.originalToSafe[original] = safe
	a.safeToOriginal[safe] = original
	return safe
}

// LoadTools lists the server's tools and adapts them for the registry.
func LoadTools(ctx context.Context, c Client, adapter *NameAdapter) ([]tools.Tool, error) {
	defs, err := c.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]tools.Tool, 0, len(defs))
	for _, def := range defs {
		out = append(out, tools.NewMCPTool(adapter.SafeName(def.Name), def.Name, def.Description, def.InputSchema, c))
	}
	return out, nil
}
