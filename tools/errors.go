package tools

import "fmt"

// ErrToolUnavailable is returned when a call names a tool outside the
// registry. The agent treats it like a malformed decision, not a retryable
// execution failure.
type ErrToolUnavailable struct {
	ToolName string
}

func (e *ErrToolUnavailable) Error() string {
	return fmt.Sprintf("tool %q is not available", e.ToolName)
}
