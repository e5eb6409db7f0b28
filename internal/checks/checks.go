// Package checks provides the built-in check kinds and worker init hooks.
//
// Every check reads its settings from the task's args and returns a record
// carrying at least a status. The task id, when set, is copied into the
// record so results can be matched to their tasks.
package checks

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/seantiz/parcheck/internal/model"
	"github.com/seantiz/parcheck/internal/worker"
)

// Check kind names.
const (
	KindStatic  = "static"
	KindSleep   = "sleep"
	KindExit    = "exit"
	KindPanic   = "panic"
	KindTCP     = "tcp"
	KindHTTP    = "http"
	KindDNS     = "dns"
	KindCommand = "command"
)

// InitLowerPriority renices the worker before its check runs.
const InitLowerPriority = "lower-priority"

// DefaultTimeout bounds a single network dial or command when its args set none.
const DefaultTimeout = 10 * time.Second

// Register adds every built-in check kind and init hook to reg.
func Register(reg *worker.Registry) {
	reg.RegisterCheck(KindStatic, Static)
	reg.RegisterCheck(KindSleep, Sleep)
	reg.RegisterCheck(KindExit, Exit)
	reg.RegisterCheck(KindPanic, Panic)
	reg.RegisterCheck(KindTCP, TCP)
	reg.RegisterCheck(KindHTTP, HTTP)
	reg.RegisterCheck(KindDNS, DNS)
	reg.RegisterCheck(KindCommand, Command)
	reg.RegisterInit(InitLowerPriority, LowerPriority)
}

// NewRegistry returns a registry holding the built-in kinds and hooks.
func NewRegistry() *worker.Registry {
	reg := worker.NewRegistry()
	Register(reg)
	return reg
}

// result builds a record for task, tagging it with the task id.
func result(t model.Task, status model.Status, info string) model.Result {
	res := model.NewResult(status, info)
	return withID(t, res)
}

func withID(t model.Task, res model.Result) model.Result {
	if t.ID != "" {
		res[model.FieldID] = t.ID
	}
	return res
}

func stringArg(args map[string]any, key, def string) string {
	if s, ok := args[key].(string); ok && s != "" {
		return s
	}
	return def
}

// floatArg reads a number that may have come through JSON, YAML or a string.
func floatArg(args map[string]any, key string, def float64) (float64, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %q is not a number", key, n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%s: expected a number, got %T", key, v)
	}
}

func intArg(args map[string]any, key string, def int) (int, error) {
	f, err := floatArg(args, key, float64(def))
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%s: %v is not an integer", key, f)
	}
	return int(f), nil
}

// secondsArg reads a duration given in (possibly fractional) seconds.
func secondsArg(args map[string]any, key string, def time.Duration) (time.Duration, error) {
	f, err := floatArg(args, key, def.Seconds())
	if err != nil {
		return 0, err
	}
	if f < 0 {
		return 0, fmt.Errorf("%s: must not be negative", key)
	}
	return time.Duration(f * float64(time.Second)), nil
}

func stringsArg(args map[string]any, key string) ([]string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch list := v.(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			switch s := item.(type) {
			case string:
				out = append(out, s)
			case float64, int:
				out = append(out, fmt.Sprint(s))
			default:
				return nil, fmt.Errorf("%s: expected strings, got %T", key, item)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s: expected a list, got %T", key, v)
	}
}

func latencyMS(d time.Duration) float64 {
	return math.Round(float64(d.Microseconds())/10) / 100
}
