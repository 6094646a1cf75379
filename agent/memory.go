package agent

import (
	"bytes"
	"encoding/json"
	"strings"
)

const (
	bootstrapName   = "load_image"
	bootstrapResult = "Image is loaded. Please state your next question?"
)

// MemoryEntry records one step: the command run, its arguments and what it
// returned. ID is the entry's position.
type MemoryEntry struct {
	ID     int             `json:"id"`
	Name   string          `json:"name"`
	Args   []string        `json:"args,omitempty"`
	Result json.RawMessage `json:"result"`
}

// Memory is the append-only transcript of a run.
type Memory struct {
	entries []MemoryEntry
}

// NewMemory returns a memory seeded with the bootstrap entry.
func NewMemory() *Memory {
	m := &Memory{}
	m.Append(bootstrapName, nil, bootstrapResult)
	return m
}

// Append records a tool output. Output that parses as JSON is kept as JSON,
// anything else is stored as a string.
func (m *Memory) Append(name string, args []string, output string) MemoryEntry {
	e := MemoryEntry{
		ID:     len(m.entries),
		Name:   name,
		Args:   append([]string(nil), args...),
		Result: resultJSON(output),
	}
	m.entries = append(m.entries, e)
	return e
}

// AppendJSON records an already encoded result.
func (m *Memory) AppendJSON(name string, args []string, result json.RawMessage) MemoryEntry {
	e := MemoryEntry{
		ID:     len(m.entries),
		Name:   name,
		Args:   append([]string(nil), args...),
		Result: result,
	}
	m.entries = append(m.entries, e)
	return e
}

// Entries returns a copy of the transcript.
func (m *Memory) Entries() []MemoryEntry {
	return append([]MemoryEntry(nil), m.entries...)
}

// Len returns the number of entries.
func (m *Memory) Len() int {
	return len(m.entries)
}

// Render returns the transcript as indented JSON. The output only depends on
// the entries.
func (m *Memory) Render() string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m.entries); err != nil {
		return "[]"
	}
	return strings.TrimRight(buf.String(), "\n")
}

func resultJSON(output string) json.RawMessage {
	trimmed := strings.TrimSpace(output)
	if trimmed != "" && json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(output)
	return json.RawMessage(bytes.TrimRight(buf.Bytes(), "\n"))
}
