package orchestrator

import (
	"errors"
	"fmt"
)

// TerminalError marks a failure that requeueing cannot fix, like an
// unsupported or unreadable file. The queue drops these instead of
// retrying.
type TerminalError struct {
	Err error
}

func (e *TerminalError) Error() string { return fmt.Sprintf("terminal: %v", e.Err) }
func (e *TerminalError) Unwrap() error { return e.Err }

// IsTerminal reports whether err should skip queue-level retry.
func IsTerminal(err error) bool {
	var te *TerminalError
	return errors.As(err, &te)
}
