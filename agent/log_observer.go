package agent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aschepis/flyercal/llm"
	"github.com/rs/zerolog"
)

// LogObserver writes lifecycle events to a zerolog logger.
type LogObserver struct {
	logger zerolog.Logger
}

// NewLogObserver creates a LogObserver.
func NewLogObserver(logger zerolog.Logger) *LogObserver {
	return &LogObserver{logger: logger.With().Str("component", "agentObserver").Logger()}
}

func (o *LogObserver) log(ctx context.Context) *zerolog.Logger {
	l := o.logger.With().Str("run_id", RunIDFromContext(ctx)).Logger()
	return &l
}

func (o *LogObserver) OnAgentStart(ctx context.Context, info RunInfo) {
	o.log(ctx).Info().Str("image", info.Image).Int("max_steps", info.MaxSteps).Bool("force", info.Force).Msg("AGENT STARTED")
}

func (o *LogObserver) OnAgentEnd(ctx context.Context, result *Result) {
	ev := level(o.log(ctx), result.Err)
	ev.Str("outcome", string(result.Outcome)).
		Str("event", result.Event).
		Bool("cached", result.Cached).
		Int("steps", result.Steps).
		Msg("AGENT ENDED")
	if result.Calendar != "" {
		o.log(ctx).Debug().Str("calendar", result.Calendar).Msg("Calendar")
	}
}

func (o *LogObserver) OnStepStart(ctx context.Context, step int) {
	o.log(ctx).Debug().Int("step", step).Msg("STEP STARTED")
}

func (o *LogObserver) OnStep(ctx context.Context, step int, reply *AssistantReply) {
	ev := o.log(ctx).Info().Int("step", step)
	if reply != nil {
		if raw, err := json.Marshal(reply); err == nil {
			ev = ev.RawJSON("reply", raw)
		}
	}
	ev.Msg("STEP")
}

func (o *LogObserver) OnModelStart(ctx context.Context, step int) {
	o.log(ctx).Debug().Int("step", step).Msg("LLM STARTED")
}

func (o *LogObserver) OnModelEnd(ctx context.Context, step int, usage *llm.Usage, elapsed time.Duration, err error) {
	ev := level(o.log(ctx), err).Int("step", step).Dur("elapsed", elapsed)
	if usage != nil {
		ev = ev.Int64("input_tokens", usage.InputTokens).Int64("output_tokens", usage.OutputTokens)
	}
	ev.Msg("LLM ENDED")
}

func (o *LogObserver) OnToolStart(ctx context.Context, step int, tool string, args map[string]string) {
	o.log(ctx).Info().Int("step", step).Str("tool", tool).Interface("args", args).Msg("TOOL STARTED")
}

func (o *LogObserver) OnToolEnd(ctx context.Context, step int, tool string, output string, elapsed time.Duration, err error) {
	level(o.log(ctx), err).Int("step", step).Str("tool", tool).Dur("elapsed", elapsed).Int("output_bytes", len(output)).Msg("TOOL ENDED")
}

func level(l *zerolog.Logger, err error) *zerolog.Event {
	if err != nil {
		return l.Warn().Err(err)
	}
	return l.Info()
}
