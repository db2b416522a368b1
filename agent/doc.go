// Package agent answers one user request at a time by letting a language
// model pick tools from a fixed registry before writing a final answer.
//
// # Loop
//
// Run walks a small state machine:
//
//	DECIDING -> (ACTING -> DECIDING)* -> FINISHING -> DONE
//
// with ABORTED reachable from DECIDING when the model cannot be reached.
//
// In DECIDING the model sees the tool descriptions, the recent turns of the
// session, the results gathered so far in this Run and the request itself,
// and must reply with one JSON object:
//
//	{"action": "tool", "tool": "multiply", "args": {"a": 12.5, "b": 8}}
//	{"action": "finish", "final": "outline of the answer"}
//
// ParseDecision turns that reply into a ToolCall or a Finish, or a *Malformed.
// A malformed reply or an unknown tool does not stop the Run: any prose the
// model wrote is kept as the outline and the loop moves to FINISHING. Tool
// failures become "error: ..." results the model can read on its next step.
// After MaxSteps tool calls the loop finishes regardless.
//
// FINISHING makes exactly one more model call with the gathered results.
// When the model is unreachable, either while deciding (after one retry) or
// while finishing, the answer is the fixed DegradedMessage.
//
// # Memory
//
// Every Run that returns an Output has recorded exactly one turn in the
// session.Store. A canceled Run records nothing. A *session.StorageError is
// the only failure Run reports besides cancellation.
//
// # Subpackages
//
// agent/terminal: an interactive REPL over any reader and writer.
//
// agent/acp: an Agent Client Protocol server over stdio for editor
// integration.
package agent
