package tools

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/m4xw311/studyagent/config"
	"github.com/m4xw311/studyagent/errors"
)

// Param types accepted in a tool's argument schema.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
)

// Param declares one named argument and its primitive type.
type Param struct {
	Name string
	Type string
}

// Tool defines the interface for any action the agent can take.
type Tool interface {
	Name() string
	Description() string
	Params() []Param
	Execute(ctx context.Context, args map[string]interface{}) (string, error)
}

// ToolRegistry is the closed set of tools available for one process. It is
// built once and only read afterwards, so it is safe to share.
type ToolRegistry struct {
	ordered []Tool
	tools   map[string]Tool
}

// builtins maps every tool name a toolset may reference to its constructor.
func builtins(cfg *config.Config) map[string]func() Tool {
	return map[string]func() Tool{
		"multiply": func() Tool { return &MultiplyTool{} },
		"today":    func() Tool { return &TodayTool{} },
		"praise":   func() Tool { return &PraiseTool{} },
		"read_notes": func() Tool {
			return &ReadNotesTool{dir: cfg.Notes.Dir, hidden: cfg.Notes.Hidden}
		},
	}
}

// NewToolRegistry resolves every tool named in ts against the builtins.
// Unknown or duplicate names are rejected here rather than at call time.
func NewToolRegistry(cfg *config.Config, ts *config.Toolset) (*ToolRegistry, error) {
	available := builtins(cfg)
	var selected []Tool
	for _, name := range ts.Tools {
		ctor, ok := available[name]
		if !ok {
			return nil, errors.New("tool '%s' from toolset '%s' is not registered", name, ts.Name)
		}
		selected = append(selected, ctor())
	}
	return New(selected...)
}

// New builds a registry from explicit tools.
func New(ts ...Tool) (*ToolRegistry, error) {
	r := &ToolRegistry{tools: make(map[string]Tool, len(ts))}
	for _, t := range ts {
		if t == nil {
			return nil, errors.New("nil tool")
		}
		name := t.Name()
		if name == "" {
			return nil, errors.New("tool with empty name")
		}
		if _, dup := r.tools[name]; dup {
			return nil, errors.New("duplicate tool name '%s'", name)
		}
		r.tools[name] = t
		r.ordered = append(r.ordered, t)
	}
	return r, nil
}

// Resolve returns the tool registered under name.
func (r *ToolRegistry) Resolve(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Has reports whether name is a registered tool.
func (r *ToolRegistry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// List returns the tools in registration order.
func (r *ToolRegistry) List() []Tool {
	out := make([]Tool, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Names returns the registered names, sorted.
func (r *ToolRegistry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe renders the capability list embedded in decision prompts, one
// "- name(param: type, ...): description" line per tool.
func (r *ToolRegistry) Describe() string {
	if len(r.ordered) == 0 {
		return "(no tools available)"
	}
	var b strings.Builder
	for i, t := range r.ordered {
		if i > 0 {
			b.WriteByte('\n')
		}
		params := make([]string, 0, len(t.Params()))
		for _, p := range t.Params() {
			params = append(params, p.Name+": "+p.Type)
		}
		fmt.Fprintf(&b, "- %s(%s): %s", t.Name(), strings.Join(params, ", "), t.Description())
	}
	return b.String()
}

// Invoke runs the named tool after checking its declared arguments. Every
// failure, including a panic inside the tool, comes back as an error so the
// caller can record it as text and keep going.
func (r *ToolRegistry) Invoke(ctx context.Context, name string, args map[string]interface{}) (result string, err error) {
	t, ok := r.tools[name]
	if !ok {
		return "", &ErrToolUnavailable{ToolName: name}
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	if err := checkArgs(t.Params(), args); err != nil {
		return "", errors.Wrapf(err, "tool '%s'", name)
	}

	defer func() {
		if p := recover(); p != nil {
			result = ""
			err = errors.New("tool '%s' panicked: %v", name, p)
		}
	}()
	return t.Execute(ctx, args)
}

func checkArgs(params []Param, args map[string]interface{}) error {
	for _, p := range params {
		v, ok := args[p.Name]
		if !ok {
			return errors.New("missing argument '%s'", p.Name)
		}
		switch p.Type {
		case TypeNumber:
			if _, err := toFloat(v); err != nil {
				return errors.Wrapf(err, "argument '%s'", p.Name)
			}
		case TypeInteger:
			f, err := toFloat(v)
			if err != nil {
				return errors.Wrapf(err, "argument '%s'", p.Name)
			}
			if f != math.Trunc(f) {
				return errors.New("argument '%s' must be a whole number, got %v", p.Name, v)
			}
		case TypeString:
			if _, ok := v.(string); !ok {
				return errors.New("argument '%s' must be a string, got %T", p.Name, v)
			}
		case TypeBoolean:
			if _, ok := v.(bool); !ok {
				return errors.New("argument '%s' must be a boolean, got %T", p.Name, v)
			}
		}
	}
	return nil
}
