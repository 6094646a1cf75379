package config

import (
	"context"
	"errors"

	"github.com/aschepis/flyercal/agent"
	"github.com/aschepis/flyercal/cache"
	"github.com/aschepis/flyercal/llm"
	"github.com/aschepis/flyercal/notify"
	"github.com/rs/zerolog"
)

// App is a fully wired agent and the resources it holds.
type App struct {
	Agent   *agent.Agent
	Cache   *cache.Cache
	Toolset *Toolset
	LLM     *llm.ClientKey
}

// Close releases MCP connections and the cache store.
func (a *App) Close() error {
	return errors.Join(a.Toolset.Close(), a.Cache.Close())
}

// Build wires the agent described by cfg. Extra observers are added after
// the log observer and the ones enabled in cfg.
func Build(ctx context.Context, cfg *Config, logger zerolog.Logger, observers ...agent.Observer) (*App, error) {
	client, key, err := NewLLMClient(cfg, logger)
	if err != nil {
		return nil, err
	}

	c, err := OpenCache(cfg, logger)
	if err != nil {
		return nil, err
	}

	ts, err := NewToolset(ctx, cfg, c, client, key.Model, logger)
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	model, err := agent.NewLLMModel(client, agent.LLMOptions{
		Model:       key.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: key.Temperature,
		Prompts:     agent.Prompts{Location: cfg.Agent.Location},
	})
	if err != nil {
		_ = ts.Close()
		_ = c.Close()
		return nil, err
	}

	all := []agent.Observer{agent.NewLogObserver(logger)}
	if cfg.Notify.Enabled {
		all = append(all, notify.NewObserver(cfg.Notify.Title, nil, logger))
	}
	if cfg.Trace.Enabled {
		all = append(all, agent.NewTraceObserver(nil))
	}
	all = append(all, observers...)

	a := agent.New(model, ts.Registry, c, AgentOptions(cfg), logger, all...)
	return &App{Agent: a, Cache: c, Toolset: ts, LLM: key}, nil
}

// AgentOptions converts the agent section. A negative tool_retries disables
// tool retries.
func AgentOptions(cfg *Config) agent.Options {
	return agent.Options{
		MaxSteps:              cfg.Agent.MaxSteps,
		StepTimeout:           cfg.Agent.StepTimeout,
		ToolTimeout:           cfg.Agent.ToolTimeout,
		ToolRetries:           cfg.Agent.ToolRetries,
		RecordInvalidCommands: cfg.Agent.RecordInvalidCommands,
	}
}
