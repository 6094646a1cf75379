package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aschepis/flyercal/llm"
	"github.com/aschepis/flyercal/tools/schemas"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// DefaultMaxTokens bounds each structured reply.
const DefaultMaxTokens = 2048

// Model produces the structured replies the loop runs on.
type Model interface {
	// Decide returns the reply for the next step.
	Decide(ctx context.Context, memory *Memory, catalog string) (*AssistantReply, error)
	// ExtractCalendar is the single fallback call made once steps run out.
	ExtractCalendar(ctx context.Context, memory *Memory) (*CalendarReply, error)
}

// LLMOptions configures an LLMModel.
type LLMOptions struct {
	Model       string
	MaxTokens   int64
	Temperature *float64
	Prompts     Prompts
}

// LLMModel implements Model over an llm.Client. The model is forced to answer
// through a tool whose input schema is the reply schema; the input is
// validated before it is decoded.
type LLMModel struct {
	client   llm.Client
	opts     LLMOptions
	reply    compiledSchema
	calendar compiledSchema
}

type compiledSchema struct {
	spec   llm.ToolSpec
	schema *jsonschema.Schema
}

// NewLLMModel creates an LLMModel. It fails only if a reply schema does not
// compile.
func NewLLMModel(client llm.Client, opts LLMOptions) (*LLMModel, error) {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	reply, err := compile(schemas.Reply())
	if err != nil {
		return nil, err
	}
	calendar, err := compile(schemas.Calendar())
	if err != nil {
		return nil, err
	}
	return &LLMModel{client: client, opts: opts, reply: reply, calendar: calendar}, nil
}

// Decide implements Model.
func (m *LLMModel) Decide(ctx context.Context, memory *Memory, catalog string) (*AssistantReply, error) {
	prompt, err := m.opts.Prompts.Step(memory, catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to render step prompt: %w", err)
	}
	var reply AssistantReply
	usage, err := m.ask(ctx, m.reply, prompt, &reply)
	if err != nil {
		return nil, err
	}
	reply.Usage = usage
	return &reply, nil
}

// ExtractCalendar implements Model.
func (m *LLMModel) ExtractCalendar(ctx context.Context, memory *Memory) (*CalendarReply, error) {
	prompt, err := m.opts.Prompts.Calendar(memory)
	if err != nil {
		return nil, fmt.Errorf("failed to render calendar prompt: %w", err)
	}
	var reply CalendarReply
	usage, err := m.ask(ctx, m.calendar, prompt, &reply)
	if err != nil {
		return nil, err
	}
	reply.Usage = usage
	return &reply, nil
}

func (m *LLMModel) ask(ctx context.Context, cs compiledSchema, prompt string, out any) (*llm.Usage, error) {
	resp, err := m.client.Synchronous(ctx, &llm.Request{
		Model:       m.opts.Model,
		System:      m.opts.Prompts.System(),
		Messages:    []llm.Message{llm.NewTextMessage(llm.RoleUser, prompt)},
		Tools:       []llm.ToolSpec{cs.spec},
		ToolChoice:  cs.spec.Name,
		MaxTokens:   m.opts.MaxTokens,
		Temperature: m.opts.Temperature,
	})
	if err != nil {
		return nil, err
	}

	use := resp.ToolUse(cs.spec.Name)
	if use == nil {
		return resp.Usage, &SchemaError{
			Reply:  cs.spec.Name,
			Raw:    resp.Text(),
			Reason: errors.New("model did not call the reply tool"),
		}
	}
	raw, err := json.Marshal(use.Input)
	if err != nil {
		return resp.Usage, &SchemaError{Reply: cs.spec.Name, Reason: err}
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return resp.Usage, &SchemaError{Reply: cs.spec.Name, Raw: string(raw), Reason: err}
	}
	if err := cs.schema.Validate(instance); err != nil {
		return resp.Usage, &SchemaError{Reply: cs.spec.Name, Raw: string(raw), Reason: err}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return resp.Usage, &SchemaError{Reply: cs.spec.Name, Raw: string(raw), Reason: err}
	}
	return resp.Usage, nil
}

func compile(ts schemas.ToolSchema) (compiledSchema, error) {
	raw, err := json.Marshal(ts.Schema)
	if err != nil {
		return compiledSchema{}, fmt.Errorf("failed to encode %s schema: %w", ts.Name, err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return compiledSchema{}, fmt.Errorf("failed to decode %s schema: %w", ts.Name, err)
	}
	url := "mem://" + ts.Name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return compiledSchema{}, fmt.Errorf("failed to add %s schema: %w", ts.Name, err)
	}
	sch, err := c.Compile(url)
	if err != nil {
		return compiledSchema{}, fmt.Errorf("failed to compile %s schema: %w", ts.Name, err)
	}
	return compiledSchema{spec: toolSpec(ts), schema: sch}, nil
}

// toolSpec converts a reply schema into the provider-neutral tool definition.
func toolSpec(ts schemas.ToolSchema) llm.ToolSpec {
	spec := llm.ToolSpec{
		Name:        ts.Name,
		Description: ts.Description,
		Schema:      llm.ToolSchema{Type: "object"},
	}
	for k, v := range ts.Schema {
		switch k {
		case "type":
			if s, ok := v.(string); ok {
				spec.Schema.Type = s
			}
		case "properties":
			if props, ok := v.(map[string]any); ok {
				spec.Schema.Properties = props
			}
		case "required":
			if req, ok := v.([]string); ok {
				spec.Schema.Required = req
			}
		default:
			if spec.Schema.ExtraFields == nil {
				spec.Schema.ExtraFields = make(map[string]interface{})
			}
			spec.Schema.ExtraFields[k] = v
		}
	}
	return spec
}
