package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/m4xw311/studyagent/errors"
	"gopkg.in/yaml.v3"
)

// Dir is the per-user and per-project configuration directory name.
const Dir = ".studyagent"

const (
	DefaultModel    = "gpt-4o"
	DefaultTimeout  = 60 * time.Second
	DefaultMaxSteps = 4
	DefaultWindow   = 20
)

// DefaultPersona is the system prompt used when none is configured.
const DefaultPersona = "You are a warm AI study assistant. The user is learning AI and " +
	"wants to become an AI product manager. Keep a relaxed, encouraging, everyday tone " +
	"and give concrete step-by-step suggestions."

type Notes struct {
	Dir    string   `yaml:"dir"`
	Hidden []string `yaml:"hidden"`
}

type Toolset struct {
	Name  string   `yaml:"name"`
	Tools []string `yaml:"tools"`
}

// Memory selects and sizes the turn memory backend.
type Memory struct {
	Backend string `yaml:"backend"` // "file" or "sqlite"
	Dir     string `yaml:"dir"`
	Window  int    `yaml:"window"`
	// Replay feeds stored turns back into prompts. Turns are recorded either
	// way; unset means true.
	Replay *bool `yaml:"replay"`
}

// ReplayHistory reports whether stored turns are shown to the model.
func (m Memory) ReplayHistory() bool {
	return m.Replay == nil || *m.Replay
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "tint", "text" or "json"
}

type Config struct {
	LLMClient string        `yaml:"llm"`
	Model     string        `yaml:"model"`
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
	MaxSteps  int           `yaml:"max_steps"`
	Persona   string        `yaml:"persona"`
	Toolsets  []Toolset     `yaml:"toolsets"`
	Notes     Notes         `yaml:"notes"`
	Memory    Memory        `yaml:"memory"`
	Log       Log           `yaml:"log"`
}

// Default returns a configuration that runs with the builtin toolset and
// file-backed memory under the project directory.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig loads configuration from the user's home directory and the current
// working directory, with the latter taking precedence.
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	home, err := os.UserHomeDir()
	if err == nil {
		userConfigPath := filepath.Join(home, Dir, "config.yaml")
		if _, err := os.Stat(userConfigPath); err == nil {
			if err := loadFromFile(userConfigPath, cfg); err != nil {
				return nil, errors.Wrapf(err, "error loading user config")
			}
		}
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	projectConfigPath := filepath.Join(wd, Dir, "config.yaml")
	if _, err := os.Stat(projectConfigPath); err == nil {
		if err := loadFromFile(projectConfigPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading project config")
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

// LoadFile reads a single configuration file and applies defaults.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{}
	if err := loadFromFile(path, cfg); err != nil {
		return nil, errors.Wrapf(err, "error loading config %s", path)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Fields present in the YAML overwrite earlier values; this is the whole
	// merge between user-level and project-level files.
	return yaml.Unmarshal(data, cfg)
}

func (c *Config) applyDefaults() {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxSteps <= 0 {
		c.MaxSteps = DefaultMaxSteps
	}
	if c.Persona == "" {
		c.Persona = DefaultPersona
	}
	if c.Memory.Backend == "" {
		c.Memory.Backend = "file"
	}
	if c.Memory.Dir == "" {
		c.Memory.Dir = filepath.Join(Dir, "memory")
	}
	if c.Memory.Window <= 0 {
		c.Memory.Window = DefaultWindow
	}
	if c.Notes.Dir == "" {
		c.Notes.Dir = "notes"
	}
	if !hasToolset(c.Toolsets, "default") {
		c.Toolsets = append(c.Toolsets, Toolset{
			Name:  "default",
			Tools: []string{"multiply", "today", "praise"},
		})
	}
}

func hasToolset(ts []Toolset, name string) bool {
	for _, t := range ts {
		if t.Name == name {
			return true
		}
	}
	return false
}

// GetToolset finds a toolset by name. Returns the "default" toolset if the
// named one is not found or if an empty name is provided.
func (c *Config) GetToolset(name string) (*Toolset, error) {
	if name == "" {
		name = "default"
	}
	for i := range c.Toolsets {
		if c.Toolsets[i].Name == name {
			return &c.Toolsets[i], nil
		}
	}
	if name == "default" {
		return nil, errors.New("mandatory 'default' toolset not found in configuration")
	}
	return c.GetToolset("default")
}
