package llm

import (
	"context"

	"github.com/rs/zerolog"
)

// NewLoggingMiddleware logs every request and its token usage at debug level
// and failures at warn level.
func NewLoggingMiddleware(logger zerolog.Logger) Middleware {
	log := logger.With().Str("component", "llm").Logger()
	return MiddlewareFunc{
		BeforeRequestFunc: func(ctx context.Context, req *Request) (*Request, error) {
			log.Debug().
				Str("model", req.Model).
				Int("messages", len(req.Messages)).
				Int("tools", len(req.Tools)).
				Str("tool_choice", req.ToolChoice).
				Msg("LLM request")
			return req, nil
		},
		AfterResponseFunc: func(ctx context.Context, req *Request, resp *Response) (*Response, error) {
			ev := log.Debug().Str("model", req.Model).Str("stop_reason", resp.StopReason)
			if resp.Usage != nil {
				ev = ev.Int64("input_tokens", resp.Usage.InputTokens).Int64("output_tokens", resp.Usage.OutputTokens)
			}
			ev.Msg("LLM response")
			return resp, nil
		},
		OnErrorFunc: func(ctx context.Context, req *Request, err error) error {
			log.Warn().Err(err).Str("model", req.Model).Bool("retryable", IsRetryableError(err)).Msg("LLM request failed")
			return err
		},
	}
}
