// Package agent turns a flyer image into an iCalendar entry. A run OCRs the
// image, then lets the model pick one tool per step until it can emit a
// calendar or the step budget runs out.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aschepis/flyercal/cache"
	"github.com/aschepis/flyercal/llm"
	"github.com/aschepis/flyercal/tools"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// DefaultMaxSteps is the step budget when the caller passes none.
	DefaultMaxSteps = 10
	// DefaultStepTimeout bounds each model call.
	DefaultStepTimeout = 2 * time.Minute
	// DefaultToolTimeout bounds each tool call, retries included.
	DefaultToolTimeout = 3 * time.Minute
	// DefaultToolRetries is how often a recoverable tool failure is retried.
	DefaultToolRetries = 2
	// DefaultRetryDelay is the first wait between tool retries.
	DefaultRetryDelay = time.Second
	// DefaultOCRTool names the tool that seeds memory.
	DefaultOCRTool = "ocr"

	runCacheOp = "agent"
)

// Options configures an Agent. Zero values take the defaults above.
type Options struct {
	MaxSteps    int
	StepTimeout time.Duration
	ToolTimeout time.Duration
	// ToolRetries below zero disables retries.
	ToolRetries int
	RetryDelay  time.Duration
	OCRTool     string
	// RecordInvalidCommands appends an error entry to memory when the model
	// asks for a tool that does not exist, so it can see the mistake. Off by
	// default: unknown commands leave no trace.
	RecordInvalidCommands bool
}

func (o Options) withDefaults() Options {
	if o.MaxSteps <= 0 {
		o.MaxSteps = DefaultMaxSteps
	}
	if o.StepTimeout == 0 {
		o.StepTimeout = DefaultStepTimeout
	}
	if o.ToolTimeout == 0 {
		o.ToolTimeout = DefaultToolTimeout
	}
	switch {
	case o.ToolRetries == 0:
		o.ToolRetries = DefaultToolRetries
	case o.ToolRetries < 0:
		o.ToolRetries = 0
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.OCRTool == "" {
		o.OCRTool = DefaultOCRTool
	}
	return o
}

// Agent runs flyers through the model and the registered tools. An Agent
// may serve concurrent runs; each run is sequential.
type Agent struct {
	model     Model
	registry  *tools.Registry
	cache     *cache.Cache
	observers Observers
	opts      Options
	logger    zerolog.Logger
}

// New creates an Agent. c may be nil to disable the run cache.
func New(model Model, registry *tools.Registry, c *cache.Cache, opts Options, logger zerolog.Logger, observers ...Observer) *Agent {
	return &Agent{
		model:     model,
		registry:  registry,
		cache:     c,
		observers: Observers(observers),
		opts:      opts.withDefaults(),
		logger:    logger.With().Str("component", "agent").Logger(),
	}
}

// AddObserver registers another observer for subsequent runs.
func (a *Agent) AddObserver(o Observer) {
	a.observers = append(a.observers, o)
}

// Run processes one image. maxSteps <= 0 uses the configured budget. With
// force the run cache is not consulted, but a successful run still writes
// it. "No event found" is a normal result, not an error.
func (a *Agent) Run(ctx context.Context, image string, maxSteps int, force bool) (*Result, error) {
	if maxSteps <= 0 {
		maxSteps = a.opts.MaxSteps
	}
	runID := uuid.NewString()
	ctx = WithRunID(ctx, runID)

	a.observers.OnAgentStart(ctx, RunInfo{RunID: runID, Image: image, MaxSteps: maxSteps, Force: force})

	r := &run{
		Agent:  a,
		id:     runID,
		memory: NewMemory(),
		logger: a.logger.With().Str("run_id", runID).Logger(),
	}
	result, err := r.execute(ctx, image, maxSteps, force)
	if err != nil {
		r.logger.Error().Err(err).Msg("Run failed")
		a.observers.OnAgentEnd(ctx, &Result{
			RunID:   runID,
			Steps:   r.steps,
			Outcome: OutcomeFailed,
			Memory:  r.memory.Entries(),
			Err:     err,
		})
		return nil, err
	}
	a.observers.OnAgentEnd(ctx, result)
	return result, nil
}

// run holds the state of a single Run.
type run struct {
	*Agent
	id     string
	memory *Memory
	logger zerolog.Logger
	steps  int

	// runKey and ocrText are empty when no OCR tool is registered; the run
	// cache is then bypassed.
	runKey  string
	ocrText string
}

func (r *run) execute(ctx context.Context, image string, maxSteps int, force bool) (*Result, error) {
	if ocr, ok := r.registry.Lookup(r.opts.OCRTool); ok {
		r.observers.OnStep(ctx, 1, nil)
		text, err := r.runTool(ctx, 1, ocr, []string{image})
		if err != nil {
			return nil, err
		}
		r.memory.Append(ocr.Name(), nil, text)
		r.ocrText = text
		r.runKey = cache.Key(runCacheOp, text)

		unlock := r.cache.Lock(r.runKey)
		defer unlock()

		if !force {
			if res, ok := r.lookup(ctx); ok {
				return res, nil
			}
		}
	} else {
		r.logger.Warn().Str("tool", r.opts.OCRTool).Msg("No OCR tool registered, run cache disabled")
	}

	catalog := r.registry.Catalog()
	var last *AssistantReply
	lastStep := 0

	for step := 2; step < maxSteps; step++ {
		reply, err := r.decide(ctx, step, catalog)
		if err != nil {
			return nil, err
		}
		r.steps++
		last, lastStep = reply, step
		r.observers.OnStep(ctx, step, reply)

		if reply.Command == nil {
			break
		}
		cmd := reply.Command
		t, ok := r.registry.Lookup(cmd.Name)
		if !ok {
			r.logger.Warn().Int("step", step).Str("command", cmd.Name).Msg("Model requested unknown command, skipping")
			if r.opts.RecordInvalidCommands {
				r.memory.AppendJSON(cmd.Name, cmd.Args, errorOutput(fmt.Errorf("%w: %s", tools.ErrUnknownTool, cmd.Name)))
			}
			continue
		}

		out, err := r.runTool(ctx, step, t, cmd.Args)
		if err != nil {
			var stepErr *StepError
			if errors.As(err, &stepErr) || !tools.IsRecoverable(err) {
				return nil, err
			}
			r.logger.Warn().Err(err).Int("step", step).Str("tool", t.Name()).Msg("Tool failed, recording error")
			r.memory.AppendJSON(t.Name(), cmd.Args, errorOutput(err))
			continue
		}
		r.memory.Append(t.Name(), cmd.Args, out)
	}

	event := ""
	if last != nil {
		event = last.Event
	}
	if calendar := last.Calendar(); calendar != "" {
		r.remember(ctx, calendar, event)
		return r.result(calendar, event), nil
	}

	if lastStep == 0 {
		lastStep = 1
	}
	r.observers.OnStep(ctx, lastStep, nil)
	reply, err := r.extract(ctx, lastStep)
	if err != nil {
		return nil, err
	}
	calendar := reply.Calendar()
	if calendar != "" {
		r.remember(ctx, calendar, event)
	} else {
		r.logger.Info().Str("event", event).Msg("No calendar could be extracted")
	}
	return r.result(calendar, event), nil
}

func (r *run) result(calendar, event string) *Result {
	return &Result{
		RunID:    r.id,
		Calendar: calendar,
		Event:    event,
		Steps:    r.steps,
		Outcome:  outcomeOf(calendar, event),
		Memory:   r.memory.Entries(),
	}
}

// lookup reads the run cache. Values are [calendar, event] pairs.
func (r *run) lookup(ctx context.Context) (*Result, bool) {
	raw, ok := r.cache.Lookup(ctx, r.runKey)
	if !ok {
		return nil, false
	}
	var pair []*string
	if err := json.Unmarshal(raw, &pair); err != nil || len(pair) == 0 || pair[0] == nil {
		r.logger.Warn().Err(err).Str("key", r.runKey).Msg("Ignoring malformed run cache entry")
		return nil, false
	}
	event := ""
	if len(pair) > 1 && pair[1] != nil {
		event = *pair[1]
	}
	r.logger.Info().Str("key", r.runKey).Msg("Using cached calendar")
	res := r.result(*pair[0], event)
	res.Cached = true
	return res, true
}

func (r *run) remember(ctx context.Context, calendar, event string) {
	if r.runKey == "" {
		return
	}
	var ev *string
	if event != "" {
		ev = &event
	}
	_ = r.cache.Put(ctx, r.runKey, cache.Trace(runCacheOp, r.ocrText), []*string{&calendar, ev})
}

func (r *run) decide(ctx context.Context, step int, catalog string) (*AssistantReply, error) {
	r.observers.OnStepStart(ctx, step)

	stepCtx, cancel := withTimeout(ctx, r.opts.StepTimeout)
	defer cancel()

	r.observers.OnModelStart(ctx, step)
	start := time.Now()
	reply, err := r.model.Decide(stepCtx, r.memory, catalog)
	var usage *llm.Usage
	if reply != nil {
		usage = reply.Usage
	}
	r.observers.OnModelEnd(ctx, step, usage, time.Since(start), err)
	if err != nil {
		return nil, stepError(ctx, stepCtx, step, "model", err)
	}
	if reply == nil {
		return nil, &SchemaError{Reply: "reply", Reason: errors.New("empty reply")}
	}
	return reply, nil
}

func (r *run) extract(ctx context.Context, step int) (*CalendarReply, error) {
	stepCtx, cancel := withTimeout(ctx, r.opts.StepTimeout)
	defer cancel()

	r.observers.OnModelStart(ctx, step)
	start := time.Now()
	reply, err := r.model.ExtractCalendar(stepCtx, r.memory)
	var usage *llm.Usage
	if reply != nil {
		usage = reply.Usage
	}
	r.observers.OnModelEnd(ctx, step, usage, time.Since(start), err)
	if err != nil {
		return nil, stepError(ctx, stepCtx, step, "model", err)
	}
	return reply, nil
}

// runTool runs t, retrying recoverable failures with exponential backoff
// until the tool deadline.
func (r *run) runTool(ctx context.Context, step int, t tools.Tool, args []string) (string, error) {
	bound := tools.Bind(t, args)
	r.observers.OnToolStart(ctx, step, t.Name(), bound)

	toolCtx, cancel := withTimeout(ctx, r.opts.ToolTimeout)
	defer cancel()

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.opts.RetryDelay
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(r.opts.ToolRetries)), toolCtx)

	attempt := 0
	op := func() (string, error) {
		attempt++
		out, err := r.registry.Run(toolCtx, t, bound)
		if err != nil && !tools.IsRecoverable(err) {
			return "", backoff.Permanent(err)
		}
		return out, err
	}
	notify := func(err error, wait time.Duration) {
		r.logger.Warn().Err(err).Str("tool", t.Name()).Int("attempt", attempt).Dur("wait", wait).Msg("Retrying tool")
	}

	start := time.Now()
	out, err := backoff.RetryNotifyWithData(op, b, notify)
	r.observers.OnToolEnd(ctx, step, t.Name(), out, time.Since(start), err)
	if err != nil {
		return "", stepError(ctx, toolCtx, step, phaseOf(step), err)
	}
	return out, nil
}

func phaseOf(step int) string {
	if step == 1 {
		return "ocr"
	}
	return "tool"
}

// stepError turns a failure caused by the step's deadline or by
// cancellation into a *StepError; other errors pass through.
func stepError(parent, scoped context.Context, step int, phase string, err error) error {
	if perr := parent.Err(); perr != nil {
		return &StepError{Step: step, Phase: phase, Err: perr}
	}
	if serr := scoped.Err(); serr != nil {
		return &StepError{Step: step, Phase: phase, Err: serr}
	}
	return err
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func errorOutput(err error) json.RawMessage {
	raw, _ := json.Marshal(map[string]string{"error": err.Error()})
	return raw
}
