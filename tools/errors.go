package tools

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"
)

var (
	// ErrFatal marks failures caused by configuration (missing credentials,
	// unusable endpoints). Retrying or letting the model adapt cannot help.
	ErrFatal = errors.New("fatal tool error")

	// ErrUnknownTool marks a command naming no registered tool.
	ErrUnknownTool = errors.New("unknown tool")
)

// Error is a failed tool invocation.
type Error struct {
	Tool  string
	Fatal bool
	Err   error
}

func (e *Error) Error() string {
	kind := "recoverable"
	if e.Fatal {
		kind = "fatal"
	}
	return fmt.Sprintf("tool %s (%s): %v", e.Tool, kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports ErrFatal for fatal errors.
func (e *Error) Is(target error) bool {
	return target == ErrFatal && e.Fatal
}

// Recoverable wraps err as a transient failure (network, timeout, upstream
// hiccup).
func Recoverable(tool string, err error) *Error {
	return &Error{Tool: tool, Err: err}
}

// Fatal wraps err as a configuration failure.
func Fatal(tool string, err error) *Error {
	return &Error{Tool: tool, Fatal: true, Err: err}
}

// IsRecoverable reports whether a failed call may succeed when repeated or
// when the model is told about it. Cancellation is never recoverable.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrFatal) || errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// statusError classifies a non-2xx HTTP response. Authentication failures
// point at configuration, everything else may clear up.
func statusError(tool string, status int, body string) *Error {
	err := fmt.Errorf("unexpected status %d: %s", status, truncate(body, 200))
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusPaymentRequired:
		return Fatal(tool, err)
	default:
		return Recoverable(tool, err)
	}
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "... (truncated)"
}
