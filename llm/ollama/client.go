package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/aschepis/flyercal/llm"
	"github.com/ollama/ollama/api"
)

// OllamaClient implements the llm.Client interface for Ollama's API.
type OllamaClient struct {
	client *api.Client
	model  string // Default model to use if not specified in request
}

// NewOllamaClient creates a new OllamaClient.
// If host is empty, it will use the default from environment (OLLAMA_HOST or http://localhost:11434).
// A nil httpClient falls back to a plain http.Client.
func NewOllamaClient(host, model string, httpClient *http.Client) (*OllamaClient, error) {
	if host == "" {
		client, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
		return &OllamaClient{client: client, model: model}, nil
	}

	baseURL, err := parseHost(host)
	if err != nil {
		return nil, fmt.Errorf("invalid host: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &OllamaClient{
		client: api.NewClient(baseURL, httpClient),
		model:  model,
	}, nil
}

// parseHost parses a host string into a URL.
func parseHost(host string) (*url.URL, error) {
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	return url.Parse(host)
}

// Synchronous implements llm.Client.Synchronous.
//
// Ollama has no forced tool calls. When req.ToolChoice is set the chosen
// tool's schema is sent as the structured output format and the JSON reply
// is returned as a tool use block for that tool.
func (c *OllamaClient) Synchronous(ctx context.Context, req *llm.Request) (*llm.Response, error) {
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

	msgs := ToOllamaMessages(req.Messages)
	if req.System != "" {
		msgs = append([]api.Message{{Role: "system", Content: req.System}}, msgs...)
	}

	chatReq := &api.ChatRequest{
		Model:    model,
		Messages: msgs,
		Stream:   new(bool),
		Options:  make(map[string]interface{}),
	}

	var forced *llm.ToolSpec
	if req.ToolChoice != "" {
		for i := range req.Tools {
			if req.Tools[i].Name == req.ToolChoice {
				forced = &req.Tools[i]
				break
			}
		}
		if forced == nil {
			return nil, llm.NewInvalidRequestError(fmt.Sprintf("tool choice %q is not among the request tools", req.ToolChoice), nil)
		}
		schema, err := forced.Schema.JSON()
		if err != nil {
			return nil, fmt.Errorf("failed to render schema for %s: %w", forced.Name, err)
		}
		chatReq.Format = json.RawMessage(schema)
	} else if len(req.Tools) > 0 {
		chatReq.Tools = ToOllamaTools(req.Tools)
	}

	if req.MaxTokens > 0 {
		chatReq.Options["num_predict"] = int(req.MaxTokens)
	}
	if req.Temperature != nil {
		chatReq.Options["temperature"] = *req.Temperature
	}

	var chatResp api.ChatResponse
	err := c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		chatResp = resp
		return nil
	})
	if err != nil {
		return nil, convertOllamaError(err)
	}

	content := make([]llm.ContentBlock, 0, 1+len(chatResp.Message.ToolCalls))
	switch {
	case forced != nil:
		var input map[string]interface{}
		if err := json.Unmarshal([]byte(chatResp.Message.Content), &input); err != nil {
			// Leave the raw text so the caller can report the schema violation.
			content = append(content, llm.ContentBlock{Type: llm.ContentBlockTypeText, Text: chatResp.Message.Content})
			break
		}
		content = append(content, llm.ContentBlock{
			Type:    llm.ContentBlockTypeToolUse,
			ToolUse: &llm.ToolUseBlock{ID: "call_" + forced.Name, Name: forced.Name, Input: input},
		})
	default:
		if chatResp.Message.Content != "" {
			content = append(content, llm.ContentBlock{
				Type: llm.ContentBlockTypeText,
				Text: chatResp.Message.Content,
			})
		}
		for i, toolCall := range chatResp.Message.ToolCalls {
			content = append(content, llm.ContentBlock{
				Type:    llm.ContentBlockTypeToolUse,
				ToolUse: FromOllamaToolCall(toolCall, i),
			})
		}
	}

	usage := &llm.Usage{
		InputTokens:  int64(chatResp.PromptEvalCount),
		OutputTokens: int64(chatResp.EvalCount),
	}

	stopReason := "end_turn"
	if chatResp.DoneReason != "" {
		stopReason = chatResp.DoneReason
	}

	return &llm.Response{
		Content:    content,
		Usage:      usage,
		StopReason: stopReason,
	}, nil
}

func convertOllamaError(err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return llm.FromStatus(statusErr.StatusCode, "ollama chat request failed", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return llm.NewTimeoutError("ollama chat request timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return llm.NewNetworkError("ollama chat request failed", err)
}
