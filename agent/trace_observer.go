package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aschepis/flyercal/llm"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/aschepis/flyercal/agent"

// TraceObserver records a run as OpenTelemetry spans: one span per run with
// children for steps, model calls and tool calls.
type TraceObserver struct {
	NopObserver

	tracer trace.Tracer
	mu     sync.Mutex
	runs   map[string]*runSpans
}

type runSpans struct {
	ctx   context.Context
	run   trace.Span
	step  trace.Span
	inner trace.Span
}

// NewTraceObserver creates a TraceObserver. A nil tracer uses the global
// provider.
func NewTraceObserver(tracer trace.Tracer) *TraceObserver {
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &TraceObserver{tracer: tracer, runs: make(map[string]*runSpans)}
}

func (o *TraceObserver) OnAgentStart(ctx context.Context, info RunInfo) {
	ctx, span := o.tracer.Start(ctx, "agent.run", trace.WithAttributes(
		attribute.String("flyercal.run_id", info.RunID),
		attribute.String("flyercal.image", info.Image),
		attribute.Int("flyercal.max_steps", info.MaxSteps),
		attribute.Bool("flyercal.force", info.Force),
	))
	o.mu.Lock()
	o.runs[info.RunID] = &runSpans{ctx: ctx, run: span}
	o.mu.Unlock()
}

func (o *TraceObserver) OnAgentEnd(ctx context.Context, result *Result) {
	rs := o.take(RunIDFromContext(ctx))
	if rs == nil {
		return
	}
	endSpan(rs.inner, nil)
	endSpan(rs.step, nil)
	rs.run.SetAttributes(
		attribute.String("flyercal.outcome", string(result.Outcome)),
		attribute.Bool("flyercal.cached", result.Cached),
		attribute.Int("flyercal.steps", result.Steps),
	)
	endSpan(rs.run, result.Err)
}

func (o *TraceObserver) OnStepStart(ctx context.Context, step int) {
	o.with(ctx, func(rs *runSpans) {
		endSpan(rs.inner, nil)
		endSpan(rs.step, nil)
		_, rs.step = o.tracer.Start(rs.ctx, fmt.Sprintf("agent.step %d", step), trace.WithAttributes(attribute.Int("flyercal.step", step)))
		rs.inner = nil
	})
}

func (o *TraceObserver) OnStep(ctx context.Context, step int, reply *AssistantReply) {
	if reply == nil {
		return
	}
	o.with(ctx, func(rs *runSpans) {
		if rs.step == nil {
			return
		}
		attrs := []attribute.KeyValue{attribute.String("flyercal.event", reply.Event)}
		if reply.Command != nil {
			attrs = append(attrs, attribute.String("flyercal.command", reply.Command.Name))
		}
		rs.step.SetAttributes(attrs...)
	})
}

func (o *TraceObserver) OnModelStart(ctx context.Context, step int) {
	o.startInner(ctx, "llm.call", attribute.Int("flyercal.step", step))
}

func (o *TraceObserver) OnModelEnd(ctx context.Context, step int, usage *llm.Usage, elapsed time.Duration, err error) {
	o.with(ctx, func(rs *runSpans) {
		if rs.inner == nil {
			return
		}
		if usage != nil {
			rs.inner.SetAttributes(
				attribute.Int64("llm.input_tokens", usage.InputTokens),
				attribute.Int64("llm.output_tokens", usage.OutputTokens),
			)
		}
		endSpan(rs.inner, err)
		rs.inner = nil
	})
}

func (o *TraceObserver) OnToolStart(ctx context.Context, step int, tool string, args map[string]string) {
	o.startInner(ctx, "tool "+tool, attribute.String("flyercal.tool", tool), attribute.Int("flyercal.step", step))
}

func (o *TraceObserver) OnToolEnd(ctx context.Context, step int, tool string, output string, elapsed time.Duration, err error) {
	o.with(ctx, func(rs *runSpans) {
		if rs.inner == nil {
			return
		}
		rs.inner.SetAttributes(attribute.Int("flyercal.output_bytes", len(output)))
		endSpan(rs.inner, err)
		rs.inner = nil
	})
}

func (o *TraceObserver) startInner(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	o.with(ctx, func(rs *runSpans) {
		parent := rs.ctx
		if rs.step != nil {
			parent = trace.ContextWithSpan(rs.ctx, rs.step)
		}
		endSpan(rs.inner, nil)
		_, rs.inner = o.tracer.Start(parent, name, trace.WithAttributes(attrs...))
	})
}

func (o *TraceObserver) with(ctx context.Context, fn func(rs *runSpans)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if rs, ok := o.runs[RunIDFromContext(ctx)]; ok {
		fn(rs)
	}
}

func (o *TraceObserver) take(runID string) *runSpans {
	o.mu.Lock()
	defer o.mu.Unlock()
	rs := o.runs[runID]
	delete(o.runs, runID)
	return rs
}

func endSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
