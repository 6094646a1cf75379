// Package schemas holds the JSON Schemas of the structured replies the agent
// requests from the model. Each schema doubles as the input schema of the
// tool the model is forced to call, and is used to validate what comes back.
package schemas

// ReplyToolName and CalendarToolName name the forced reply tools.
const (
	ReplyToolName    = "reply"
	CalendarToolName = "calendar"
)

// ToolSchema represents a tool's description and JSON schema.
type ToolSchema struct {
	Name        string
	Description string
	Schema      map[string]any
}

// Reply is the per-step reply: the event being researched, the reasoning
// behind the next move, and either a command to run or the final calendar.
func Reply() ToolSchema {
	return ToolSchema{
		Name:        ReplyToolName,
		Description: "Self-explanatory command. Report your reasoning and either the next command to execute or the finished iCalendar.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"event": map[string]any{
					"type":        "string",
					"description": "represents the title or designation of the event",
				},
				"thoughts": map[string]any{
					"type":        "object",
					"description": "explain your reasoning process",
					"properties": map[string]any{
						"text":      map[string]any{"type": "string", "description": "thoughts"},
						"reasoning": map[string]any{"type": "string", "description": "reasoning scratchpad"},
						"plan":      map[string]any{"type": "string", "description": "short bulleted list that conveys your goals"},
						"criticism": map[string]any{"type": "string", "description": "optional constructive self-criticism"},
					},
					"required": []string{"text", "reasoning", "plan", "criticism"},
				},
				"command": map[string]any{
					"type":        []string{"object", "null"},
					"description": "next command to be executed, only provided if the process is not finished",
					"properties": map[string]any{
						"name": map[string]any{"type": "string", "description": "command name"},
						"args": map[string]any{
							"type":        []string{"array", "null"},
							"description": "command arguments, in the order the command lists them",
							"items":       map[string]any{"type": "string"},
						},
					},
					"required": []string{"name"},
				},
				"iCalendar": map[string]any{
					"type":        []string{"string", "null"},
					"description": "event using iCalendar format. only provided when the process is finished",
				},
			},
			"required": []string{"event", "thoughts"},
		},
	}
}

// Calendar is the reply of the final extraction call.
func Calendar() ToolSchema {
	return ToolSchema{
		Name:        CalendarToolName,
		Description: "Return the event in iCalendar format.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"iCalendar": map[string]any{
					"type":        []string{"string", "null"},
					"description": "event using iCalendar format",
				},
			},
		},
	}
}
