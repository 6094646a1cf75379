package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aschepis/flyercal/llm"
	"github.com/rs/zerolog"
)

// defaultMaxTokens is used when the request does not set one; the API requires it.
const defaultMaxTokens = 4096

// AnthropicClient implements the llm.Client interface for Anthropic's API.
type AnthropicClient struct {
	client *anthropic.Client
	model  string
	logger zerolog.Logger
}

// NewAnthropicClient creates a new AnthropicClient with the given API key.
// Extra request options (base URL, HTTP client) are passed through to the SDK.
func NewAnthropicClient(apiKey, model string, logger zerolog.Logger, opts ...option.RequestOption) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	client := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &AnthropicClient{
		client: &client,
		model:  model,
		logger: logger.With().Str("component", "anthropic").Logger(),
	}, nil
}

// Synchronous implements llm.Client.Synchronous.
func (c *AnthropicClient) Synchronous(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, convertAnthropicError(err)
	}

	content := make([]llm.ContentBlock, 0, len(message.Content))
	for _, blockUnion := range message.Content {
		switch block := blockUnion.AsAny().(type) {
		case anthropic.TextBlock:
			content = append(content, llm.ContentBlock{
				Type: llm.ContentBlockTypeText,
				Text: block.Text,
			})
		case anthropic.ToolUseBlock:
			content = append(content, llm.ContentBlock{
				Type: llm.ContentBlockTypeToolUse,
				ToolUse: &llm.ToolUseBlock{
					ID:    block.ID,
					Name:  block.Name,
					Input: decodeInput(block.Input),
				},
			})
		}
	}

	usage := &llm.Usage{
		InputTokens:              message.Usage.InputTokens,
		OutputTokens:             message.Usage.OutputTokens,
		CacheCreationInputTokens: message.Usage.CacheCreationInputTokens,
		CacheReadInputTokens:     message.Usage.CacheReadInputTokens,
	}
	if usage.CacheReadInputTokens > 0 {
		c.logger.Debug().
			Int64("input_tokens", usage.InputTokens).
			Int64("cache_read_tokens", usage.CacheReadInputTokens).
			Msg("Prompt cache hit")
	}

	return &llm.Response{
		Content:    content,
		Usage:      usage,
		StopReason: string(message.StopReason),
	}, nil
}

func (c *AnthropicClient) buildParams(req *llm.Request) (anthropic.MessageNewParams, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	if model == "" {
		return anthropic.MessageNewParams{}, fmt.Errorf("model is required")
	}

	msgs, err := ToMessageParams(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("failed to convert messages: %w", err)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages:  msgs,
		Tools:     ToToolUnionParams(req.Tools),
	}
	if req.System != "" {
		params.System = buildSystemBlocks(req.System)
	}
	if req.ToolChoice != "" {
		params.ToolChoice = anthropic.ToolChoiceParamOfTool(req.ToolChoice)
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	return params, nil
}

// buildSystemBlocks marks the system prompt for prompt caching. Tool
// definitions precede it, so they are cached along with it.
func buildSystemBlocks(systemPrompt string) []anthropic.TextBlockParam {
	return []anthropic.TextBlockParam{
		{Text: systemPrompt, CacheControl: anthropic.NewCacheControlEphemeralParam()},
	}
}

func decodeInput(v interface{}) map[string]interface{} {
	input := make(map[string]interface{})
	if v == nil {
		return input
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return input
	}
	if err := json.Unmarshal(raw, &input); err != nil {
		return make(map[string]interface{})
	}
	return input
}

// convertAnthropicError maps SDK errors onto llm.Error.
func convertAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		if errors.Is(err, context.DeadlineExceeded) {
			return llm.NewTimeoutError("Anthropic request timed out", err)
		}
		if errors.Is(err, context.Canceled) {
			return err
		}
		return llm.NewNetworkError("Anthropic request failed", err)
	}

	out := llm.FromStatus(apiErr.StatusCode, fmt.Sprintf("Anthropic API error (%d)", apiErr.StatusCode), err)
	if out.Type == llm.ErrorTypeRateLimit && apiErr.Response != nil {
		if secs, convErr := strconv.Atoi(apiErr.Response.Header.Get("Retry-After")); convErr == nil {
			d := time.Duration(secs) * time.Second
			out.RetryAfter = &d
		}
	}
	return out
}
