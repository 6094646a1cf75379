package llm

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestWrapWithMiddleware_Order(t *testing.T) {
	var calls []string
	mw := func(name string) Middleware {
		return MiddlewareFunc{
			BeforeRequestFunc: func(ctx context.Context, req *Request) (*Request, error) {
				calls = append(calls, "before-"+name)
				return req, nil
			},
			AfterResponseFunc: func(ctx context.Context, req *Request, resp *Response) (*Response, error) {
				calls = append(calls, "after-"+name)
				return resp, nil
			},
		}
	}
	base := ClientFunc(func(ctx context.Context, req *Request) (*Response, error) {
		calls = append(calls, "call")
		return &Response{}, nil
	})

	if _, err := WrapWithMiddleware(base, mw("a"), mw("b")).Synchronous(context.Background(), &Request{}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	want := "before-a,before-b,call,after-b,after-a"
	if got := strings.Join(calls, ","); got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestWrapWithMiddleware_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	base := ClientFunc(func(ctx context.Context, req *Request) (*Response, error) {
		return nil, boom
	})
	passthrough := MiddlewareFunc{}
	_, err := WrapWithMiddleware(base, passthrough).Synchronous(context.Background(), &Request{})
	if !errors.Is(err, boom) {
		t.Errorf("Expected original error, got %v", err)
	}
}

func TestWrapWithMiddleware_NoMiddleware(t *testing.T) {
	base := ClientFunc(func(ctx context.Context, req *Request) (*Response, error) { return nil, nil })
	if _, ok := WrapWithMiddleware(base).(ClientFunc); !ok {
		t.Error("Expected the client to be returned unchanged")
	}
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	base := ClientFunc(func(ctx context.Context, req *Request) (*Response, error) {
		return &Response{StopReason: "tool_use", Usage: &Usage{InputTokens: 3, OutputTokens: 4}}, nil
	})
	client := WrapWithMiddleware(base, NewLoggingMiddleware(logger))
	if _, err := client.Synchronous(context.Background(), &Request{Model: "m"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"input_tokens":3`) || !strings.Contains(out, "LLM response") {
		t.Errorf("Expected usage to be logged, got %s", out)
	}
}
