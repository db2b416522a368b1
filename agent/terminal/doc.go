// Package terminal implements the interactive command-line mode.
//
// Each line read from the input is one agent.Run in a fixed session. The
// answer is printed after "Assistant:", optionally preceded by the tool calls
// the run made and followed by its latency.
//
// # Usage
//
//	term := terminal.New(a, "my-session", os.Stdin, os.Stdout)
//	term.Verbosity = terminal.ToolVerbosityInfo
//	term.ShowLatency = true
//	err := term.Run(ctx, initialPrompt)
//
// # Exit words
//
// /quit, /exit, exit, quit and bye end the session, as does end of input.
//
// # Verbosity Levels
//
//   - none: tool calls are not shown
//   - info: tool names are shown
//   - all: tool names, arguments and results are shown
package terminal
