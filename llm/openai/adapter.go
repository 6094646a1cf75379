package openai

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/aschepis/flyercal/llm"
	"github.com/samber/lo"
	openai "github.com/sashabaranov/go-openai"
)

// ToOpenAIMessages converts llm.Messages to OpenAI chat message format.
func ToOpenAIMessages(msgs []llm.Message) ([]openai.ChatCompletionMessage, error) {
	result := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, msg := range msgs {
		openaiMsg, err := ToOpenAIMessage(msg)
		if err != nil {
			return nil, fmt.Errorf("failed to convert message: %w", err)
		}
		result = append(result, openaiMsg)
	}
	return result, nil
}

// ToOpenAIMessage converts a single llm.Message to OpenAI format.
// Messages carrying images are sent as multi-part content with data URIs.
func ToOpenAIMessage(msg llm.Message) (openai.ChatCompletionMessage, error) {
	var role string
	switch msg.Role {
	case llm.RoleAssistant:
		role = openai.ChatMessageRoleAssistant
	case llm.RoleSystem:
		role = openai.ChatMessageRoleSystem
	default:
		role = openai.ChatMessageRoleUser
	}

	var (
		content   string
		parts     []openai.ChatMessagePart
		hasImage  bool
		toolCalls []openai.ToolCall
	)

	for _, block := range msg.Content {
		switch block.Type {
		case llm.ContentBlockTypeText:
			if content != "" {
				content += "\n"
			}
			content += block.Text
			parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: block.Text})
		case llm.ContentBlockTypeImage:
			if block.Image != nil {
				hasImage = true
				parts = append(parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL:    dataURI(block.Image),
						Detail: openai.ImageURLDetailHigh,
					},
				})
			}
		case llm.ContentBlockTypeToolUse:
			if block.ToolUse != nil {
				argsJSON, err := json.Marshal(block.ToolUse.Input)
				if err != nil {
					return openai.ChatCompletionMessage{}, fmt.Errorf("failed to marshal tool input: %w", err)
				}
				toolCalls = append(toolCalls, openai.ToolCall{
					ID:   block.ToolUse.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      block.ToolUse.Name,
						Arguments: string(argsJSON),
					},
				})
			}
		case llm.ContentBlockTypeToolResult:
			if block.ToolResult != nil {
				if content != "" {
					content += "\n"
				}
				content += block.ToolResult.Content
				parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: block.ToolResult.Content})
			}
		}
	}

	out := openai.ChatCompletionMessage{Role: role, ToolCalls: toolCalls}
	if hasImage {
		// Content and MultiContent are mutually exclusive.
		out.MultiContent = parts
	} else {
		out.Content = content
	}
	return out, nil
}

func dataURI(img *llm.ImageBlock) string {
	return "data:" + img.MediaType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// ToOpenAITools converts llm.ToolSpecs to OpenAI function format.
func ToOpenAITools(specs []llm.ToolSpec) []openai.Tool {
	return lo.Map(specs, func(spec llm.ToolSpec, _ int) openai.Tool {
		return ToOpenAITool(&spec)
	})
}

// ToOpenAITool converts a single llm.ToolSpec to OpenAI Tool format.
func ToOpenAITool(spec *llm.ToolSpec) openai.Tool {
	properties := make(map[string]interface{}, len(spec.Schema.Properties))
	for k, v := range spec.Schema.Properties {
		properties[k] = v
	}

	typ := spec.Schema.Type
	if typ == "" {
		typ = "object"
	}
	parameters := map[string]interface{}{
		"type":       typ,
		"properties": properties,
	}
	if len(spec.Schema.Required) > 0 {
		parameters["required"] = spec.Schema.Required
	}
	for k, v := range spec.Schema.ExtraFields {
		parameters[k] = v
	}

	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  parameters,
		},
	}
}

// FromOpenAIToolCall converts an OpenAI tool call response to llm.ToolUseBlock.
// Unparseable arguments yield an empty input; the caller validates it.
func FromOpenAIToolCall(toolCall openai.ToolCall) *llm.ToolUseBlock {
	input := make(map[string]interface{})
	if toolCall.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &input); err != nil {
			input = make(map[string]interface{})
		}
	}
	return &llm.ToolUseBlock{
		ID:    toolCall.ID,
		Name:  toolCall.Function.Name,
		Input: input,
	}
}
