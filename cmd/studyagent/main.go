package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/m4xw311/studyagent/agent"
	"github.com/m4xw311/studyagent/agent/acp"
	"github.com/m4xw311/studyagent/agent/terminal"
	"github.com/m4xw311/studyagent/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("studyagent", flag.ContinueOnError)
	flags.SetOutput(stderr)
	sessionFlag := flags.String("s", "", "Session to use (defaults to the current directory name)")
	toolsetFlag := flags.String("t", "default", "Toolset to use")
	toolVerbosityFlag := flags.String("tool-verbosity", "none", "Tool verbosity level: 'none', 'info', or 'all'")
	latencyFlag := flags.Bool("latency", false, "Show how long each answer took")
	acpFlag := flags.Bool("acp", false, "Serve the Agent Client Protocol on stdio")
	configFlag := flags.String("config", "", "Read configuration from this file only")
	logLevelFlag := flags.String("log-level", "", "Override the configured log level")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configFlag)
	if err != nil {
		return err
	}
	if *logLevelFlag != "" {
		cfg.Log.Level = *logLevelFlag
	}
	logger, err := config.NewLogger(cfg.Log, stderr)
	if err != nil {
		return err
	}

	verbosity, err := terminal.ParseToolVerbosity(*toolVerbosityFlag)
	if err != nil {
		return err
	}

	a, store, err := agent.Setup(ctx, cfg, *toolsetFlag, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if *acpFlag {
		// stdout carries JSON-RPC only.
		return acp.Run(ctx, a, bufio.NewReader(stdin), bufio.NewWriter(stdout), logger)
	}

	sessionID := *sessionFlag
	if sessionID == "" {
		sessionID = defaultSessionName()
	}
	fmt.Fprintf(stdout, "Study assistant is ready (session %s). Type your question, or 'bye' to leave.\n", sessionID)

	term := terminal.New(a, sessionID, stdin, stdout)
	term.Verbosity = verbosity
	term.ShowLatency = *latencyFlag
	return term.Run(ctx, strings.Join(flags.Args(), " "))
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.LoadConfig()
}

// defaultSessionName keys memory to the project directory, so reopening the
// assistant in the same place continues the conversation.
func defaultSessionName() string {
	wd, err := os.Getwd()
	if err != nil {
		return agent.DefaultSessionID
	}
	return filepath.Base(wd)
}
