// Package tools holds the information-gathering tools the agent can call and
// the registry that binds model commands to them.
//
// A tool declares an ordered list of parameter names. Commands arrive with
// positional arguments which are bound to those names before Run is called;
// checking arity is left to each tool.
package tools

import (
	"context"
	"fmt"
	"strings"
)

// Tool is a named operation taking string arguments and returning text.
// The text is usually JSON, but callers must accept plain text too.
type Tool interface {
	Name() string
	Params() []string
	Description() string
	Run(ctx context.Context, args map[string]string) (string, error)
}

// RunFunc is the signature of a tool body.
type RunFunc func(ctx context.Context, args map[string]string) (string, error)

type funcTool struct {
	name        string
	description string
	params      []string
	run         RunFunc
}

// NewFunc wraps fn as a Tool.
func NewFunc(name, description string, params []string, fn RunFunc) Tool {
	return &funcTool{
		name:        name,
		description: description,
		params:      append([]string(nil), params...),
		run:         fn,
	}
}

func (t *funcTool) Name() string        { return t.name }
func (t *funcTool) Params() []string    { return t.params }
func (t *funcTool) Description() string { return t.description }

func (t *funcTool) Run(ctx context.Context, args map[string]string) (string, error) {
	return t.run(ctx, args)
}

// Bind zips positional args onto the tool's parameter names. Surplus
// arguments are dropped and missing ones are left unset.
func Bind(t Tool, args []string) map[string]string {
	params := t.Params()
	bound := make(map[string]string, len(params))
	for i, name := range params {
		if i >= len(args) {
			break
		}
		bound[name] = args[i]
	}
	return bound
}

// Values returns the bound arguments in declaration order, the order used to
// derive cache keys.
func Values(t Tool, args map[string]string) []string {
	params := t.Params()
	out := make([]string, 0, len(params))
	for _, name := range params {
		if v, ok := args[name]; ok {
			out = append(out, v)
		}
	}
	return out
}

// required fetches a mandatory argument.
func required(tool string, args map[string]string, name string) (string, error) {
	v := strings.TrimSpace(args[name])
	if v == "" {
		return "", Recoverable(tool, fmt.Errorf("missing argument %q", name))
	}
	return v, nil
}
