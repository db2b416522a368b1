package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFileAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
llm: openai
model: gpt-4o-mini
timeout: 15s
memory:
  backend: sqlite
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.LLMClient != "openai" || cfg.Model != "gpt-4o-mini" {
		t.Errorf("unexpected llm/model: %q/%q", cfg.LLMClient, cfg.Model)
	}
	if cfg.Timeout != 15*time.Second {
		t.Errorf("expected 15s timeout, got %v", cfg.Timeout)
	}
	if cfg.MaxSteps != DefaultMaxSteps {
		t.Errorf("expected default max steps, got %d", cfg.MaxSteps)
	}
	if cfg.Memory.Backend != "sqlite" || cfg.Memory.Window != DefaultWindow {
		t.Errorf("unexpected memory config: %+v", cfg.Memory)
	}
	if cfg.Persona != DefaultPersona {
		t.Errorf("expected default persona")
	}
}

func TestMemoryReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("memory:\n  replay: false\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Memory.ReplayHistory() {
		t.Error("replay: false was ignored")
	}
	if !Default().Memory.ReplayHistory() {
		t.Error("replay should default to true")
	}
}

func TestGetToolset(t *testing.T) {
	cfg := &Config{Toolsets: []Toolset{{Name: "study", Tools: []string{"read_notes"}}}}
	cfg.applyDefaults()

	ts, err := cfg.GetToolset("study")
	if err != nil || ts.Name != "study" {
		t.Fatalf("expected study toolset, got %v %v", ts, err)
	}

	ts, err = cfg.GetToolset("missing")
	if err != nil || ts.Name != "default" {
		t.Fatalf("expected fallback to default, got %v %v", ts, err)
	}
	if strings.Join(ts.Tools, ",") != "multiply,today,praise" {
		t.Errorf("unexpected default tools %v", ts.Tools)
	}

	empty := &Config{}
	if _, err := empty.GetToolset(""); err == nil {
		t.Error("expected error when no default toolset exists")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"TRACE", LevelTrace, false},
		{" debug ", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLogLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewLoggerJSONRendersTrace(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(Log{Level: "trace", Format: "json"}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	logger.Log(t.Context(), LevelTrace, "payload", "size", 3)
	if !strings.Contains(buf.String(), `"level":"TRACE"`) {
		t.Errorf("expected TRACE level name, got %s", buf.String())
	}

	if _, err := NewLogger(Log{Level: "nope"}, &buf); err == nil {
		t.Error("expected error for bad level")
	}
}
