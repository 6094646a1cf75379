package agent

import (
	"strings"
	"testing"
	"time"
)

func TestMemory_Bootstrap(t *testing.T) {
	m := NewMemory()
	want := `[
  {
    "id": 0,
    "name": "load_image",
    "result": "Image is loaded. Please state your next question?"
  }
]`
	if got := m.Render(); got != want {
		t.Errorf("Expected:\n%s\ngot:\n%s", want, got)
	}
}

func TestMemory_Append(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   string
	}{
		{name: "json object", output: `{"address": "Plaza Mayor, Madrid"}`, want: `{"address": "Plaza Mayor, Madrid"}`},
		{name: "json string", output: `"NOT FOUND"`, want: `"NOT FOUND"`},
		{name: "plain text", output: "Fiesta <b>Mayor</b>", want: `"Fiesta <b>Mayor</b>"`},
		{name: "empty", output: "", want: `""`},
		{name: "surrounding whitespace", output: " [1, 2]\n", want: `[1, 2]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMemory()
			e := m.Append("google", []string{"q"}, tt.output)
			if e.ID != 1 {
				t.Errorf("Expected id 1, got %d", e.ID)
			}
			if string(e.Result) != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, e.Result)
			}
		})
	}
}

func TestMemory_RenderIsDeterministic(t *testing.T) {
	build := func() *Memory {
		m := NewMemory()
		m.Append("ocr", nil, "FIESTA")
		m.Append("gmaps", []string{"Plaza Mayor"}, `{"address": "Madrid"}`)
		return m
	}
	a, b := build().Render(), build().Render()
	if a != b {
		t.Errorf("Expected identical renders, got:\n%s\n%s", a, b)
	}
	if !strings.Contains(a, "\"args\": [\n      \"Plaza Mayor\"\n    ]") {
		t.Errorf("Expected args to be rendered, got:\n%s", a)
	}
	if strings.Count(a, `"args"`) != 1 {
		t.Errorf("Expected args only where present, got:\n%s", a)
	}
}

func TestFormatDate(t *testing.T) {
	got := FormatDate(time.Date(2024, 6, 23, 18, 0, 0, 0, time.UTC))
	if got != "23/06/2024, Sunday" {
		t.Errorf("Expected '23/06/2024, Sunday', got %q", got)
	}
}

func TestPrompts(t *testing.T) {
	p := Prompts{Now: func() time.Time { return time.Date(2024, 6, 23, 0, 0, 0, 0, time.UTC) }}
	m := NewMemory()

	step, err := p.Step(m, `1. "google", "query" : search`)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	for _, want := range []string{
		"1. Current date is 23/06/2024, Sunday",
		"2. Current location is Spain",
		`1. "google", "query" : search`,
		`"name": "load_image"`,
		"9. If you find that you've gathered enough credible information",
	} {
		if !strings.Contains(step, want) {
			t.Errorf("Expected step prompt to contain %q", want)
		}
	}

	calendar, err := p.Calendar(m)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !strings.HasPrefix(calendar, "MEMORY:\n[") || !strings.Contains(calendar, "please return the event information") {
		t.Errorf("Unexpected calendar prompt:\n%s", calendar)
	}

	if !strings.Contains((Prompts{Location: "Valencia"}).System(), "EventAnalizer-GPT") {
		t.Error("Expected the persona in the system prompt")
	}
}
