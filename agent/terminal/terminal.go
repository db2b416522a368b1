package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/m4xw311/studyagent/agent"
	"github.com/m4xw311/studyagent/errors"
)

// ToolVerbosity controls how much of each tool call is printed.
type ToolVerbosity string

const (
	ToolVerbosityNone ToolVerbosity = "none"
	ToolVerbosityInfo ToolVerbosity = "info"
	ToolVerbosityAll  ToolVerbosity = "all"
)

// ParseToolVerbosity accepts none, info or all. Empty means none.
func ParseToolVerbosity(s string) (ToolVerbosity, error) {
	switch v := ToolVerbosity(strings.ToLower(strings.TrimSpace(s))); v {
	case "":
		return ToolVerbosityNone, nil
	case ToolVerbosityNone, ToolVerbosityInfo, ToolVerbosityAll:
		return v, nil
	default:
		return "", errors.New("invalid tool verbosity %q, must be 'none', 'info', or 'all'", s)
	}
}

var exitWords = map[string]bool{
	"/quit": true,
	"/exit": true,
	"exit":  true,
	"quit":  true,
	"bye":   true,
}

// Terminal handles the terminal/CLI interaction mode for the agent
type Terminal struct {
	agent     *agent.Agent
	sessionID string
	in        io.Reader
	out       io.Writer

	Verbosity   ToolVerbosity
	ShowLatency bool
}

// New creates a Terminal reading prompts from in and writing to out.
func New(a *agent.Agent, sessionID string, in io.Reader, out io.Writer) *Terminal {
	return &Terminal{
		agent:     a,
		sessionID: sessionID,
		in:        in,
		out:       out,
		Verbosity: ToolVerbosityNone,
	}
}

// Run starts the interactive terminal session. It returns when the input
// ends, an exit word is typed or ctx is done.
func (t *Terminal) Run(ctx context.Context, initialPrompt string) error {
	// If there's an initial prompt from the command line, use it first
	if strings.TrimSpace(initialPrompt) != "" {
		if err := t.processTurn(ctx, initialPrompt); err != nil {
			fmt.Fprintf(t.out, "Error: %v\n", err)
		}
	}

	scanner := bufio.NewScanner(t.in)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		fmt.Fprint(t.out, "You: ")
		if !scanner.Scan() {
			// EOF or read error ends the session
			fmt.Fprintln(t.out)
			break
		}

		userInput := strings.TrimSpace(scanner.Text())
		if userInput == "" {
			continue
		}
		if exitWords[strings.ToLower(userInput)] {
			fmt.Fprintln(t.out, "Bye! Keep learning.")
			break
		}

		if err := t.processTurn(ctx, userInput); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(t.out, "Error: %v\n", err)
		}
	}

	return scanner.Err()
}

// processTurn handles a single user input turn
func (t *Terminal) processTurn(ctx context.Context, userInput string) error {
	out, err := t.agent.Run(ctx, userInput, t.sessionID)
	if err != nil {
		return err
	}

	for _, tc := range out.ToolCalls {
		switch t.Verbosity {
		case ToolVerbosityAll:
			fmt.Fprintf(t.out, "Tool `%s` called with args: %v\n", tc.Tool, tc.Args)
			fmt.Fprintf(t.out, "Tool `%s` output: %s\n", tc.Tool, tc.Result)
		case ToolVerbosityInfo:
			fmt.Fprintf(t.out, "Tool `%s` called\n", tc.Tool)
		}
	}

	fmt.Fprintf(t.out, "Assistant: %s\n", out.Text)
	if t.ShowLatency {
		fmt.Fprintf(t.out, "(answered in %s)\n", out.Latency.Round(time.Millisecond))
	}
	return nil
}
