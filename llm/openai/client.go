package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aschepis/flyercal/llm"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAI API errors don't directly expose retry-after headers
const defaultRetryAfter = 20 * time.Second

// OpenAIClient implements the llm.Client interface for OpenAI-compatible APIs.
type OpenAIClient struct {
	client *openai.Client
	model  string // Default model to use if not specified in request
}

// NewOpenAIClient creates a new OpenAIClient.
// If baseURL is empty, it will use the default OpenAI API endpoint.
// A nil httpClient keeps the library default.
func NewOpenAIClient(apiKey, baseURL, model, organization string, httpClient *http.Client) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if organization != "" {
		config.OrgID = organization
	}
	if httpClient != nil {
		config.HTTPClient = httpClient
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}, nil
}

// Synchronous implements llm.Client.Synchronous.
func (c *OpenAIClient) Synchronous(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	model := req.Model
	if model == "" {
		model = c.model
	}
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}

	msgs, err := ToOpenAIMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}
	if req.System != "" {
		msgs = append([]openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		}}, msgs...)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: msgs,
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = ToOpenAITools(req.Tools)
		chatReq.ToolChoice = "auto"
		if req.ToolChoice != "" {
			chatReq.ToolChoice = openai.ToolChoice{
				Type:     openai.ToolTypeFunction,
				Function: openai.ToolFunction{Name: req.ToolChoice},
			}
		}
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = int(req.MaxTokens)
	}
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	}

	chatResp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, convertOpenAIError(err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, llm.NewProviderError("no choices in response", nil)
	}

	choice := chatResp.Choices[0]
	content := make([]llm.ContentBlock, 0, 1+len(choice.Message.ToolCalls))
	if choice.Message.Content != "" {
		content = append(content, llm.ContentBlock{
			Type: llm.ContentBlockTypeText,
			Text: choice.Message.Content,
		})
	}
	for _, toolCall := range choice.Message.ToolCalls {
		content = append(content, llm.ContentBlock{
			Type:    llm.ContentBlockTypeToolUse,
			ToolUse: FromOpenAIToolCall(toolCall),
		})
	}

	stopReason := "stop"
	switch choice.FinishReason {
	case openai.FinishReasonLength:
		stopReason = "max_tokens"
	case openai.FinishReasonToolCalls:
		stopReason = "tool_calls"
	}

	return &llm.Response{
		Content: content,
		Usage: &llm.Usage{
			InputTokens:  int64(chatResp.Usage.PromptTokens),
			OutputTokens: int64(chatResp.Usage.CompletionTokens),
		},
		StopReason: stopReason,
	}, nil
}

// convertOpenAIError converts OpenAI API errors to llm.Error types.
func convertOpenAIError(err error) error {
	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) {
			return llm.FromStatus(reqErr.HTTPStatusCode, "OpenAI request failed", err)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return llm.NewTimeoutError("OpenAI request timed out", err)
		}
		if errors.Is(err, context.Canceled) {
			return err
		}
		return llm.NewNetworkError("OpenAI request failed", err)
	}

	out := llm.FromStatus(apiErr.HTTPStatusCode, fmt.Sprintf("OpenAI API error: %s", apiErr.Message), err)
	if out.Type == llm.ErrorTypeRateLimit {
		retryAfter := defaultRetryAfter
		out.RetryAfter = &retryAfter
	}
	return out
}
