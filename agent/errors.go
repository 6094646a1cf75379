package agent

import (
	"context"
	"errors"
	"fmt"
)

// ErrSchemaViolation is wrapped by every SchemaError.
var ErrSchemaViolation = errors.New("model reply violates schema")

// SchemaError reports a model reply that does not match the requested
// structure. The run is aborted; replies are never coerced.
type SchemaError struct {
	Reply  string // schema name
	Raw    string
	Reason error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s reply: %v", e.Reply, e.Reason)
}

func (e *SchemaError) Unwrap() []error {
	return []error{ErrSchemaViolation, e.Reason}
}

// StepError reports a step that was cut short by its deadline or by
// cancellation. Nothing from the step is recorded in memory.
type StepError struct {
	Step  int
	Phase string // "model", "tool" or "ocr"
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Step, e.Phase, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Recoverable reports whether running the flyer again may succeed. Timeouts
// are recoverable, cancellation is not.
func (e *StepError) Recoverable() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// IsRecoverable reports whether err is a recoverable step failure.
func IsRecoverable(err error) bool {
	var stepErr *StepError
	return errors.As(err, &stepErr) && stepErr.Recoverable()
}
