package schemas

import (
	"encoding/json"
	"testing"
)

func TestSchemas(t *testing.T) {
	for name, s := range map[string]ToolSchema{ReplyToolName: Reply(), CalendarToolName: Calendar()} {
		if s.Name != name {
			t.Errorf("Expected name %q, got %q", name, s.Name)
		}
		if s.Schema["type"] != "object" {
			t.Errorf("Expected %q to be an object schema", name)
		}
		if _, err := json.Marshal(s.Schema); err != nil {
			t.Errorf("Expected %q to marshal, got %v", name, err)
		}
	}
}

func TestReply_RequiredFields(t *testing.T) {
	required, _ := Reply().Schema["required"].([]string)
	if len(required) != 2 || required[0] != "event" || required[1] != "thoughts" {
		t.Errorf("Expected required [event thoughts], got %v", required)
	}
}
