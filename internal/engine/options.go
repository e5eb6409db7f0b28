package engine

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/seantiz/parcheck/internal/worker"
)

// Defaults applied when neither the constructor nor the call sets a value.
const (
	DefaultMaxProcs = 4
	DefaultTimeout  = 120

	// MaxTimeout is the longest timeout, in seconds, whose duration fits in
	// a time.Duration.
	MaxTimeout = math.MaxInt64 / int64(time.Second)
)

// Validation messages. They are part of the result contract and must not change.
const (
	msgMaxProcs  = "max_procs must be a zero or positive integer!"
	msgChildInit = "child_init must be a code reference!"
	msgTimeout   = "timeout must be a positive integer!"
	msgTempDir   = "tempdir must be a string!"
)

// ConfigError reports an invalid run option.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

// Options control one run. MaxProcs of 0 or 1 runs checks inline in the
// caller; anything larger runs each check in its own worker process.
type Options struct {
	MaxProcs int `json:"max_procs"`
	// ChildInit names an init hook in the worker registry, run once per
	// worker before the check body.
	ChildInit string `json:"child_init,omitempty"`
	// Timeout is the global deadline in seconds, covering dispatch and collection.
	Timeout int `json:"timeout"`
	// TempDir is exported to workers as TMPDIR and becomes their working
	// directory.
	TempDir string `json:"tempdir,omitempty"`
}

// DefaultOptions returns the built-in defaults.
func DefaultOptions() Options {
	return Options{
		MaxProcs: DefaultMaxProcs,
		Timeout:  DefaultTimeout,
	}
}

// Parallel reports whether checks run in worker processes.
func (o Options) Parallel() bool {
	return o.MaxProcs > 1
}

// Validate checks each option in turn and returns the first failure as a
// *ConfigError.
func (o Options) Validate(reg *worker.Registry) error {
	if o.MaxProcs < 0 {
		return &ConfigError{Field: "max_procs", Message: msgMaxProcs}
	}
	if o.ChildInit != "" {
		if reg == nil {
			return &ConfigError{Field: "child_init", Message: msgChildInit}
		}
		if _, err := reg.Init(o.ChildInit); err != nil {
			return &ConfigError{Field: "child_init", Message: msgChildInit}
		}
	}
	if o.Timeout <= 0 || int64(o.Timeout) > MaxTimeout {
		return &ConfigError{Field: "timeout", Message: msgTimeout}
	}
	return nil
}

// TimeoutDuration returns the global timeout as a duration. Only meaningful
// for validated options.
func (o Options) TimeoutDuration() time.Duration {
	return time.Duration(o.Timeout) * time.Second
}

// Params overrides options for a single call. Nil fields keep the
// constructor's value.
type Params struct {
	MaxProcs  *int
	ChildInit *string
	Timeout   *int
	TempDir   *string
}

// Apply layers p over base.
func (p Params) Apply(base Options) Options {
	if p.MaxProcs != nil {
		base.MaxProcs = *p.MaxProcs
	}
	if p.ChildInit != nil {
		base.ChildInit = *p.ChildInit
	}
	if p.Timeout != nil {
		base.Timeout = *p.Timeout
	}
	if p.TempDir != nil {
		base.TempDir = *p.TempDir
	}
	return base
}

// ParamsFromMap converts loosely typed overrides, such as a decoded JSON
// body, into Params. Unknown keys are ignored. A value of the wrong type is
// reported with the same message Validate uses for that field.
func ParamsFromMap(m map[string]any) (Params, error) {
	var p Params

	if v, ok := m["max_procs"]; ok && v != nil {
		n, ok := integer(v)
		if !ok {
			return Params{}, &ConfigError{Field: "max_procs", Message: msgMaxProcs}
		}
		p.MaxProcs = &n
	}
	if v, ok := m["child_init"]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return Params{}, &ConfigError{Field: "child_init", Message: msgChildInit}
		}
		p.ChildInit = &s
	}
	if v, ok := m["timeout"]; ok && v != nil {
		n, ok := integer(v)
		if !ok {
			return Params{}, &ConfigError{Field: "timeout", Message: msgTimeout}
		}
		p.Timeout = &n
	}
	if v, ok := m["tempdir"]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return Params{}, &ConfigError{Field: "tempdir", Message: msgTempDir}
		}
		p.TempDir = &s
	}
	return p, nil
}

// integer accepts Go integers, integral floats (JSON numbers) and decimal strings.
func integer(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) || math.Abs(n) >= float64(math.MaxInt) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	default:
		return 0, false
	}
}

// String renders options for logs.
func (o Options) String() string {
	return fmt.Sprintf("max_procs=%d timeout=%ds child_init=%q tempdir=%q", o.MaxProcs, o.Timeout, o.ChildInit, o.TempDir)
}
