package tools

import (
	"context"

	"github.com/aschepis/flyercal/cache"
)

// cachedTool memoizes a tool's successful results in a cache.Cache under
// op and the bound argument values.
type cachedTool struct {
	Tool
	op    string
	cache *cache.Cache
}

// Cached wraps t so results are memoized under op. A nil cache disables
// memoization.
func Cached(t Tool, c *cache.Cache, op string) Tool {
	if c == nil {
		return t
	}
	if op == "" {
		op = t.Name()
	}
	return &cachedTool{Tool: t, op: op, cache: c}
}

func (c *cachedTool) Run(ctx context.Context, args map[string]string) (string, error) {
	out, _, err := c.cache.Do(ctx, c.op, Values(c.Tool, args), func(ctx context.Context) (string, error) {
		return c.Tool.Run(ctx, args)
	})
	return out, err
}
