package agent

import (
	"context"
	"log/slog"

	"github.com/m4xw311/studyagent/config"
	"github.com/m4xw311/studyagent/errors"
	"github.com/m4xw311/studyagent/llm"
	"github.com/m4xw311/studyagent/session"
	"github.com/m4xw311/studyagent/tools"
)

// Setup wires an Agent from cfg: the configured model client, the memory
// backend and the named toolset. The returned store must be closed by the
// caller.
func Setup(ctx context.Context, cfg *config.Config, toolset string, logger *slog.Logger) (*Agent, session.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := llm.NewClient(ctx, cfg)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "error initializing %s client", cfg.LLMClient)
	}

	ts, err := cfg.GetToolset(toolset)
	if err != nil {
		return nil, nil, err
	}
	registry, err := tools.NewToolRegistry(cfg, ts)
	if err != nil {
		return nil, nil, err
	}

	store, err := session.Open(cfg.Memory)
	if err != nil {
		return nil, nil, err
	}

	a, err := New(cfg, client, store, registry, logger)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	logger.Debug("agent ready",
		"llm", cfg.LLMClient,
		"model", cfg.Model,
		"toolset", ts.Name,
		"tools", registry.Names(),
		"memory", cfg.Memory.Backend,
	)
	return a, store, nil
}
