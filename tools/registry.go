package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Registry keeps tools in registration order, which is also the order of the
// catalog shown to the model.
type Registry struct {
	tools  []Tool
	byName map[string]int
	logger zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		byName: make(map[string]int),
		logger: logger.With().Str("component", "toolRegistry").Logger(),
	}
}

// Register adds t. A tool with the same name is replaced in place.
func (r *Registry) Register(t Tool) {
	r.logger.Debug().Str("name", t.Name()).Strs("params", t.Params()).Msg("Registering tool")
	if i, ok := r.byName[t.Name()]; ok {
		r.tools[i] = t
		return
	}
	r.byName[t.Name()] = len(r.tools)
	r.tools = append(r.tools, t)
}

// Lookup finds a tool by exact name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	i, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return r.tools[i], true
}

// Names returns the registered tool names in order.
func (r *Registry) Names() []string {
	return lo.Map(r.tools, func(t Tool, _ int) string { return t.Name() })
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.tools)
}

// Catalog renders the numbered command list given to the model:
//
//  1. "google", "query" : description
func (r *Registry) Catalog() string {
	lines := make([]string, 0, len(r.tools))
	for i, t := range r.tools {
		lines = append(lines, fmt.Sprintf("%d. %s : %s", i+1, commandSignature(t), t.Description()))
	}
	return strings.Join(lines, "\n")
}

func commandSignature(t Tool) string {
	parts := make([]string, 0, len(t.Params())+1)
	for _, s := range append([]string{t.Name()}, t.Params()...) {
		quoted, err := json.Marshal(s)
		if err != nil {
			quoted = []byte(fmt.Sprintf("%q", s))
		}
		parts = append(parts, string(quoted))
	}
	return strings.Join(parts, ", ")
}

// Run executes t with already bound arguments, logging the call.
func (r *Registry) Run(ctx context.Context, t Tool, args map[string]string) (string, error) {
	log := r.logger.With().Str("tool", t.Name()).Logger()
	log.Info().Interface("args", args).Msg("Executing tool")

	start := time.Now()
	out, err := t.Run(ctx, args)
	elapsed := time.Since(start)
	if err != nil {
		log.Warn().Err(err).Dur("elapsed", elapsed).Msg("Tool returned error")
		return "", err
	}
	log.Info().Dur("elapsed", elapsed).Str("result", truncate(out, 500)).Msg("Tool returned result")
	return out, nil
}
