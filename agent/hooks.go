package agent

import (
	"context"
	"time"

	"github.com/aschepis/flyercal/llm"
)

// RunInfo describes a starting run.
type RunInfo struct {
	RunID    string
	Image    string
	MaxSteps int
	Force    bool
}

// Observer receives lifecycle notifications. Observers must not block for
// long; the run waits for them. Embed NopObserver to implement a subset.
type Observer interface {
	OnAgentStart(ctx context.Context, info RunInfo)
	OnAgentEnd(ctx context.Context, result *Result)
	// OnStepStart fires before a step's model call.
	OnStepStart(ctx context.Context, step int)
	// OnStep fires with the step's reply, or with nil before the OCR seed
	// and before the fallback extraction.
	OnStep(ctx context.Context, step int, reply *AssistantReply)
	OnModelStart(ctx context.Context, step int)
	OnModelEnd(ctx context.Context, step int, usage *llm.Usage, elapsed time.Duration, err error)
	OnToolStart(ctx context.Context, step int, tool string, args map[string]string)
	OnToolEnd(ctx context.Context, step int, tool string, output string, elapsed time.Duration, err error)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) OnAgentStart(context.Context, RunInfo)                                {}
func (NopObserver) OnAgentEnd(context.Context, *Result)                                  {}
func (NopObserver) OnStepStart(context.Context, int)                                     {}
func (NopObserver) OnStep(context.Context, int, *AssistantReply)                         {}
func (NopObserver) OnModelStart(context.Context, int)                                    {}
func (NopObserver) OnModelEnd(context.Context, int, *llm.Usage, time.Duration, error)    {}
func (NopObserver) OnToolStart(context.Context, int, string, map[string]string)          {}
func (NopObserver) OnToolEnd(context.Context, int, string, string, time.Duration, error) {}

// Observers fans notifications out in order. Nil entries are skipped.
type Observers []Observer

var _ Observer = Observers(nil)

func (o Observers) OnAgentStart(ctx context.Context, info RunInfo) {
	for _, ob := range o {
		if ob != nil {
			ob.OnAgentStart(ctx, info)
		}
	}
}

func (o Observers) OnAgentEnd(ctx context.Context, result *Result) {
	for _, ob := range o {
		if ob != nil {
			ob.OnAgentEnd(ctx, result)
		}
	}
}

func (o Observers) OnStepStart(ctx context.Context, step int) {
	for _, ob := range o {
		if ob != nil {
			ob.OnStepStart(ctx, step)
		}
	}
}

func (o Observers) OnStep(ctx context.Context, step int, reply *AssistantReply) {
	for _, ob := range o {
		if ob != nil {
			ob.OnStep(ctx, step, reply)
		}
	}
}

func (o Observers) OnModelStart(ctx context.Context, step int) {
	for _, ob := range o {
		if ob != nil {
			ob.OnModelStart(ctx, step)
		}
	}
}

func (o Observers) OnModelEnd(ctx context.Context, step int, usage *llm.Usage, elapsed time.Duration, err error) {
	for _, ob := range o {
		if ob != nil {
			ob.OnModelEnd(ctx, step, usage, elapsed, err)
		}
	}
}

func (o Observers) OnToolStart(ctx context.Context, step int, tool string, args map[string]string) {
	for _, ob := range o {
		if ob != nil {
			ob.OnToolStart(ctx, step, tool, args)
		}
	}
}

func (o Observers) OnToolEnd(ctx context.Context, step int, tool string, output string, elapsed time.Duration, err error) {
	for _, ob := range o {
		if ob != nil {
			ob.OnToolEnd(ctx, step, tool, output, elapsed, err)
		}
	}
}

type runIDKey struct{}

// WithRunID stores the run identifier in ctx.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunIDFromContext returns the identifier of the run ctx belongs to.
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}
