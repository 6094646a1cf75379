package ollama

import (
	"fmt"

	"github.com/aschepis/flyercal/llm"
	"github.com/ollama/ollama/api"
	"github.com/samber/lo"
)

// ToOllamaMessages converts llm.Messages to Ollama chat message format.
func ToOllamaMessages(msgs []llm.Message) []api.Message {
	return lo.Map(msgs, func(msg llm.Message, _ int) api.Message {
		return ToOllamaMessage(msg)
	})
}

// ToOllamaMessage converts a single llm.Message to Ollama format.
// Text and tool results are joined into the message content; images travel
// in the Images field.
func ToOllamaMessage(msg llm.Message) api.Message {
	var (
		content   string
		images    []api.ImageData
		toolCalls []api.ToolCall
	)

	appendText := func(text string) {
		if content != "" {
			content += "\n"
		}
		content += text
	}

	for _, block := range msg.Content {
		switch block.Type {
		case llm.ContentBlockTypeText:
			appendText(block.Text)
		case llm.ContentBlockTypeImage:
			if block.Image != nil {
				images = append(images, api.ImageData(block.Image.Data))
			}
		case llm.ContentBlockTypeToolUse:
			if block.ToolUse != nil {
				args := make(api.ToolCallFunctionArguments)
				for k, v := range block.ToolUse.Input {
					args[k] = v
				}
				toolCalls = append(toolCalls, api.ToolCall{
					Function: api.ToolCallFunction{
						Name:      block.ToolUse.Name,
						Arguments: args,
					},
				})
			}
		case llm.ContentBlockTypeToolResult:
			if block.ToolResult != nil {
				appendText(block.ToolResult.Content)
			}
		}
	}

	return api.Message{
		Role:      string(msg.Role),
		Content:   content,
		Images:    images,
		ToolCalls: toolCalls,
	}
}

// ToOllamaTools converts llm.ToolSpecs to Ollama function format.
func ToOllamaTools(specs []llm.ToolSpec) []api.Tool {
	return lo.Map(specs, func(spec llm.ToolSpec, _ int) api.Tool {
		return ToOllamaTool(&spec)
	})
}

// ToOllamaTool converts a single llm.ToolSpec to Ollama Tool format.
// Only the property types are carried over.
func ToOllamaTool(spec *llm.ToolSpec) api.Tool {
	properties := make(map[string]api.ToolProperty)
	for k, v := range spec.Schema.Properties {
		prop := api.ToolProperty{Type: []string{"string"}}
		if propMap, ok := v.(map[string]interface{}); ok {
			if propType, ok := propMap["type"].(string); ok {
				prop.Type = []string{propType}
			}
			if desc, ok := propMap["description"].(string); ok {
				prop.Description = desc
			}
		}
		properties[k] = prop
	}

	typ := spec.Schema.Type
	if typ == "" {
		typ = "object"
	}

	return api.Tool{
		Type: "function",
		Function: api.ToolFunction{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters: api.ToolFunctionParameters{
				Type:       typ,
				Properties: properties,
				Required:   spec.Schema.Required,
			},
		},
	}
}

// FromOllamaToolCall converts an Ollama tool call response to llm.ToolUseBlock.
// Ollama does not return call IDs, so one is derived from the name and position.
func FromOllamaToolCall(toolCall api.ToolCall, index int) *llm.ToolUseBlock {
	input := make(map[string]interface{}, len(toolCall.Function.Arguments))
	for k, v := range toolCall.Function.Arguments {
		input[k] = v
	}
	return &llm.ToolUseBlock{
		ID:    fmt.Sprintf("call_%s_%d", toolCall.Function.Name, index),
		Name:  toolCall.Function.Name,
		Input: input,
	}
}
