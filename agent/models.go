package agent

import "github.com/aschepis/flyercal/llm"

// Thoughts is the model's reasoning for a step.
type Thoughts struct {
	Text      string `json:"text"`
	Reasoning string `json:"reasoning"`
	Plan      string `json:"plan"`
	Criticism string `json:"criticism"`
}

// Command asks the agent to run a tool with positional arguments.
type Command struct {
	Name string   `json:"name"`
	Args []string `json:"args,omitempty"`
}

// AssistantReply is the model's answer to one step. A nil Command means the
// model is done; ICalendar is only set once it has enough information.
type AssistantReply struct {
	Event     string   `json:"event"`
	Thoughts  Thoughts `json:"thoughts"`
	Command   *Command `json:"command"`
	ICalendar *string  `json:"iCalendar"`

	Usage *llm.Usage `json:"-"`
}

// Calendar returns the iCalendar text, or "" when absent.
func (r *AssistantReply) Calendar() string {
	if r == nil || r.ICalendar == nil {
		return ""
	}
	return *r.ICalendar
}

// CalendarReply is the answer to the final extraction call.
type CalendarReply struct {
	ICalendar *string `json:"iCalendar"`

	Usage *llm.Usage `json:"-"`
}

// Calendar returns the iCalendar text, or "" when absent.
func (r *CalendarReply) Calendar() string {
	if r == nil || r.ICalendar == nil {
		return ""
	}
	return *r.ICalendar
}

// Outcome is how a run ended.
type Outcome string

const (
	// OutcomeFinished means a calendar was produced.
	OutcomeFinished Outcome = "finished"
	// OutcomeNoCalendar means an event was identified but no calendar could
	// be produced.
	OutcomeNoCalendar Outcome = "no_calendar"
	// OutcomeNoEvent means nothing was identified.
	OutcomeNoEvent Outcome = "no_event"
	// OutcomeFailed is only reported to observers; Run returns the error.
	OutcomeFailed Outcome = "failed"
)

// Result is the outcome of Run. Calendar and Event are empty when absent.
type Result struct {
	RunID    string
	Calendar string
	Event    string
	// Cached is set when the result came from the run cache.
	Cached bool
	// Steps counts model steps taken, excluding the fallback call.
	Steps   int
	Outcome Outcome
	Memory  []MemoryEntry
	// Err is set on failed runs reported to observers.
	Err error
}

// HasCalendar reports whether the run produced a calendar.
func (r *Result) HasCalendar() bool {
	return r != nil && r.Calendar != ""
}

func outcomeOf(calendar, event string) Outcome {
	switch {
	case calendar != "":
		return OutcomeFinished
	case event != "":
		return OutcomeNoCalendar
	default:
		return OutcomeNoEvent
	}
}
