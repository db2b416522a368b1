package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/m4xw311/studyagent/errors"
)

// MultiplyTool multiplies two numbers.
type MultiplyTool struct{}

func (t *MultiplyTool) Name() string        { return "multiply" }
func (t *MultiplyTool) Description() string { return "Multiply two numbers and return the product." }
func (t *MultiplyTool) Params() []Param {
	return []Param{{Name: "a", Type: TypeNumber}, {Name: "b", Type: TypeNumber}}
}

func (t *MultiplyTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	a, err := toFloat(args["a"])
	if err != nil {
		return "", errors.Wrapf(err, "invalid 'a' argument")
	}
	b, err := toFloat(args["b"])
	if err != nil {
		return "", errors.Wrapf(err, "invalid 'b' argument")
	}
	return strconv.FormatFloat(a*b, 'f', -1, 64), nil
}

// TodayTool reports the local date. Reading the clock is its only side effect.
type TodayTool struct {
	now func() time.Time
}

func (t *TodayTool) Name() string        { return "today" }
func (t *TodayTool) Description() string { return "Return today's date as YYYY-MM-DD." }
func (t *TodayTool) Params() []Param     { return nil }

func (t *TodayTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	now := time.Now
	if t.now != nil {
		now = t.now
	}
	return now().Format(time.DateOnly), nil
}

// PraiseTool writes a short encouragement for a named learner.
type PraiseTool struct{}

func (t *PraiseTool) Name() string        { return "praise" }
func (t *PraiseTool) Description() string { return "Write a few words praising the named learner." }
func (t *PraiseTool) Params() []Param     { return []Param{{Name: "name", Type: TypeString}} }

func (t *PraiseTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	name, _ := args["name"].(string)
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("missing or invalid 'name' argument")
	}
	return fmt.Sprintf("%s is amazing: still learning AI and aiming to become an AI product manager "+
		"shows more curiosity and drive than most people half their age!", name), nil
}

// toFloat accepts the number shapes a decoded JSON decision can carry,
// including numerals the model quoted as strings.
func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, errors.New("%q is not a number", n)
		}
		return f, nil
	default:
		return 0, errors.New("expected a number, got %T", v)
	}
}
