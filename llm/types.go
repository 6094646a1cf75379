package llm

import (
	"encoding/json"
)

// MessageRole represents the role of a message in a conversation.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Message represents a single message in a conversation.
type Message struct {
	Role    MessageRole
	Content []ContentBlock
}

// ContentBlock represents a single content block within a message.
// It can be text, an image, a tool use, or a tool result.
type ContentBlock struct {
	Type       ContentBlockType
	Text       string           // For text blocks
	Image      *ImageBlock      // For image blocks
	ToolUse    *ToolUseBlock    // For tool use blocks
	ToolResult *ToolResultBlock // For tool result blocks
}

// ContentBlockType represents the type of content block.
type ContentBlockType string

const (
	ContentBlockTypeText       ContentBlockType = "text"
	ContentBlockTypeImage      ContentBlockType = "image"
	ContentBlockTypeToolUse    ContentBlockType = "tool_use"
	ContentBlockTypeToolResult ContentBlockType = "tool_result"
)

// ImageBlock carries raw image bytes for vision-capable models.
type ImageBlock struct {
	MediaType string // e.g. "image/png"
	Data      []byte
}

// ToolUseBlock represents a tool invocation request from the assistant.
type ToolUseBlock struct {
	ID    string
	Name  string
	Input map[string]interface{} // JSON-serializable input parameters
}

// ToolResultBlock represents the result of a tool invocation.
type ToolResultBlock struct {
	ID      string
	Content string // JSON-serialized result
	IsError bool
}

// ToolSpec represents a tool definition that can be provided to an LLM.
type ToolSpec struct {
	Name        string
	Description string
	Schema      ToolSchema
}

// ToolSchema represents the JSON schema for a tool's input parameters.
type ToolSchema struct {
	Type        string
	Properties  map[string]interface{}
	Required    []string
	ExtraFields map[string]interface{} // For any additional schema fields
}

// JSON renders the schema as a single JSON Schema document.
func (s ToolSchema) JSON() ([]byte, error) {
	doc := make(map[string]interface{}, len(s.ExtraFields)+3)
	for k, v := range s.ExtraFields {
		doc[k] = v
	}
	typ := s.Type
	if typ == "" {
		typ = "object"
	}
	doc["type"] = typ
	if s.Properties != nil {
		doc["properties"] = s.Properties
	}
	if len(s.Required) > 0 {
		doc["required"] = s.Required
	}
	return json.Marshal(doc)
}

// Request represents a complete LLM API request.
type Request struct {
	Model     string
	Messages  []Message
	System    string
	Tools     []ToolSpec
	MaxTokens int64
	// ToolChoice forces the model to answer by calling the named tool.
	// Empty lets the model decide.
	ToolChoice  string
	Temperature *float64 // Optional temperature override
}

// Response represents a complete LLM API response.
type Response struct {
	Content    []ContentBlock
	Usage      *Usage
	StopReason string
}

// ToolUse returns the first tool use block with the given name, or nil.
func (r *Response) ToolUse(name string) *ToolUseBlock {
	if r == nil {
		return nil
	}
	for _, block := range r.Content {
		if block.Type == ContentBlockTypeToolUse && block.ToolUse != nil && block.ToolUse.Name == name {
			return block.ToolUse
		}
	}
	return nil
}

// Text concatenates all text blocks of the response.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	var out string
	for _, block := range r.Content {
		if block.Type == ContentBlockTypeText {
			out += block.Text
		}
	}
	return out
}

// Usage represents token usage information from an LLM response.
type Usage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

// NewTextMessage creates a new message with text content.
func NewTextMessage(role MessageRole, text string) Message {
	return Message{
		Role: role,
		Content: []ContentBlock{
			{
				Type: ContentBlockTypeText,
				Text: text,
			},
		},
	}
}

// NewImageMessage creates a user message holding an image followed by a text instruction.
func NewImageMessage(mediaType string, data []byte, text string) Message {
	content := []ContentBlock{
		{
			Type:  ContentBlockTypeImage,
			Image: &ImageBlock{MediaType: mediaType, Data: data},
		},
	}
	if text != "" {
		content = append(content, ContentBlock{Type: ContentBlockTypeText, Text: text})
	}
	return Message{
		Role:    RoleUser,
		Content: content,
	}
}

// NewToolUseMessage creates a new assistant message with tool use blocks.
func NewToolUseMessage(toolUses []ToolUseBlock) Message {
	content := make([]ContentBlock, len(toolUses))
	for i := range toolUses {
		content[i] = ContentBlock{
			Type:    ContentBlockTypeToolUse,
			ToolUse: &toolUses[i],
		}
	}
	return Message{
		Role:    RoleAssistant,
		Content: content,
	}
}

// NewToolResultMessage creates a new user message with tool result blocks.
func NewToolResultMessage(toolResults []ToolResultBlock) Message {
	content := make([]ContentBlock, len(toolResults))
	for i := range toolResults {
		content[i] = ContentBlock{
			Type:       ContentBlockTypeToolResult,
			ToolResult: &toolResults[i],
		}
	}
	return Message{
		Role:    RoleUser,
		Content: content,
	}
}
