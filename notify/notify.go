// Package notify raises a desktop notification when a flyer run ends.
package notify

import (
	"context"
	"fmt"

	"github.com/aschepis/flyercal/agent"
	"github.com/gen2brain/beeep"
	"github.com/rs/zerolog"
)

// DefaultTitle is used when no title is configured.
const DefaultTitle = "flyercal"

// Sender delivers one notification. beeep.Notify satisfies it.
type Sender func(title, message string, icon any) error

// Observer is an agent.Observer that only listens for the end of runs.
type Observer struct {
	agent.NopObserver

	title  string
	send   Sender
	logger zerolog.Logger
}

var _ agent.Observer = (*Observer)(nil)

// NewObserver creates an Observer. A nil send uses beeep.
func NewObserver(title string, send Sender, logger zerolog.Logger) *Observer {
	if title == "" {
		title = DefaultTitle
	}
	if send == nil {
		send = beeep.Notify
	}
	return &Observer{
		title:  title,
		send:   send,
		logger: logger.With().Str("component", "notify").Logger(),
	}
}

func (o *Observer) OnAgentEnd(ctx context.Context, result *agent.Result) {
	message := Message(result)
	if err := o.send(o.title, message, ""); err != nil {
		// Usually missing notification permissions; the run itself is fine.
		o.logger.Warn().Err(err).Msg("Failed to send desktop notification")
		return
	}
	o.logger.Debug().Str("message", message).Msg("Desktop notification sent")
}

// Message summarises a run for a notification body.
func Message(result *agent.Result) string {
	switch result.Outcome {
	case agent.OutcomeFinished:
		msg := "Calendar ready"
		if result.Event != "" {
			msg += ": " + result.Event
		}
		if result.Cached {
			msg += " (cached)"
		}
		return msg
	case agent.OutcomeNoCalendar:
		return fmt.Sprintf("Found %q but could not build a calendar", result.Event)
	case agent.OutcomeFailed:
		return fmt.Sprintf("Run failed: %v", result.Err)
	default:
		return "No event found on the flyer"
	}
}
