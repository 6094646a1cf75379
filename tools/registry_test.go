package tools

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/rs/zerolog"
)

func TestRegistry_Catalog(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	r.Register(NewFunc("google", "web search", []string{"query"}, nil))
	r.Register(NewFunc("webpageqa", "page QA", []string{"url", "query_context", "query"}, nil))

	want := "1. \"google\", \"query\" : web search\n" +
		"2. \"webpageqa\", \"url\", \"query_context\", \"query\" : page QA"
	if got := r.Catalog(); got != want {
		t.Errorf("Expected catalog:\n%s\ngot:\n%s", want, got)
	}
}

func TestRegistry_RegisterReplacesInPlace(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	r.Register(NewFunc("a", "first", nil, nil))
	r.Register(NewFunc("b", "", nil, nil))
	r.Register(NewFunc("a", "second", nil, nil))

	if got := r.Names(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Expected names [a b], got %v", got)
	}
	tool, ok := r.Lookup("a")
	if !ok || tool.Description() != "second" {
		t.Errorf("Expected replaced tool, got %v", tool)
	}
	if r.Len() != 2 {
		t.Errorf("Expected 2 tools, got %d", r.Len())
	}
}

func TestBind(t *testing.T) {
	tool := NewFunc("webpageqa", "", []string{"url", "query_context", "query"}, nil)

	tests := []struct {
		name string
		args []string
		want map[string]string
	}{
		{"exact", []string{"u", "c", "q"}, map[string]string{"url": "u", "query_context": "c", "query": "q"}},
		{"missing", []string{"u"}, map[string]string{"url": "u"}},
		{"surplus", []string{"u", "c", "q", "extra"}, map[string]string{"url": "u", "query_context": "c", "query": "q"}},
		{"none", nil, map[string]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Bind(tool, tt.args); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestRegistry_LookupAndRun(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	r.Register(NewFunc("upper", "", []string{"text"}, func(ctx context.Context, args map[string]string) (string, error) {
		return "<" + args["text"] + ">", nil
	}))

	tool, ok := r.Lookup("upper")
	if !ok {
		t.Fatal("Expected upper to be registered")
	}
	out, err := r.Run(context.Background(), tool, Bind(tool, []string{"hi"}))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if out != "<hi>" {
		t.Errorf("Expected '<hi>', got %q", out)
	}

	if _, ok := r.Lookup("missing"); ok {
		t.Error("Expected missing tool not to be found")
	}
}

func TestRegistry_RunPropagatesErrors(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	boom := Fatal("broken", errors.New("no key"))
	tool := NewFunc("broken", "", nil, func(context.Context, map[string]string) (string, error) {
		return "partial", boom
	})

	out, err := r.Run(context.Background(), tool, nil)
	if !errors.Is(err, ErrFatal) {
		t.Errorf("Expected fatal error, got %v", err)
	}
	if out != "" {
		t.Errorf("Expected empty output on error, got %q", out)
	}
}

func TestValues(t *testing.T) {
	tool := NewFunc("x", "", []string{"a", "b", "c"}, nil)
	got := Values(tool, map[string]string{"c": "3", "a": "1"})
	if !reflect.DeepEqual(got, []string{"1", "3"}) {
		t.Errorf("Expected [1 3], got %v", got)
	}
}
