package config

import (
	"fmt"
	"os"
	"regexp"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/seantiz/parcheck/internal/engine"
	"github.com/seantiz/parcheck/internal/model"
)

// ChecksFile is the YAML description of a check batch and its run options.
//
// Example:
//
//	max_procs: 4
//	timeout: 30
//	child_init: lower-priority
//
//	checks:
//	  - id: api
//	    kind: http
//	    args:
//	      url: ${API_URL:-http://localhost:8080}/healthz
//	  - id: db
//	    kind: tcp
//	    args:
//	      address: localhost:5432
type ChecksFile struct {
	MaxProcs  *int    `yaml:"max_procs"`
	Timeout   *int    `yaml:"timeout"`
	ChildInit *string `yaml:"child_init"`
	TempDir   *string `yaml:"tempdir"`

	Checks []model.Task `yaml:"checks"`
}

// KindLookup reports whether a check kind exists.
type KindLookup func(kind string) bool

// LoadChecks reads and parses the checks file at path.
func LoadChecks(path string, known KindLookup) (*ChecksFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checks file: %w", err)
	}
	return ParseChecks(data, known)
}

// ParseChecks parses a checks file, expands environment references in
// string args, and validates the result. known may be nil to skip kind checks.
func ParseChecks(data []byte, known KindLookup) (*ChecksFile, error) {
	var f ChecksFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse checks file: %w", err)
	}

	var errs *multierror.Error
	for i := range f.Checks {
		for k, v := range f.Checks[i].Args {
			expanded, err := expandValue(v)
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("checks[%d].args.%s: %w", i, k, err))
				continue
			}
			f.Checks[i].Args[k] = expanded
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}

	if err := f.Validate(known); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate reports every problem in the file at once.
func (f *ChecksFile) Validate(known KindLookup) error {
	var errs *multierror.Error

	if len(f.Checks) == 0 {
		errs = multierror.Append(errs, fmt.Errorf("checks: at least one check is required"))
	}
	if f.MaxProcs != nil && *f.MaxProcs < 0 {
		errs = multierror.Append(errs, fmt.Errorf("max_procs: must be zero or positive, got %d", *f.MaxProcs))
	}
	if f.Timeout != nil && *f.Timeout <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("timeout: must be positive, got %d", *f.Timeout))
	}

	seen := make(map[string]int)
	for i, c := range f.Checks {
		switch {
		case c.Kind == "":
			errs = multierror.Append(errs, fmt.Errorf("checks[%d]: kind is required", i))
		case known != nil && !known(c.Kind):
			errs = multierror.Append(errs, fmt.Errorf("checks[%d]: unknown kind %q", i, c.Kind))
		}
		if c.ID == "" {
			continue
		}
		if prev, dup := seen[c.ID]; dup {
			errs = multierror.Append(errs, fmt.Errorf("checks[%d]: id %q already used by checks[%d]", i, c.ID, prev))
			continue
		}
		seen[c.ID] = i
	}

	return errs.ErrorOrNil()
}

// Params returns the file's run options as checker defaults.
func (f *ChecksFile) Params() engine.Params {
	return engine.Params{
		MaxProcs:  f.MaxProcs,
		Timeout:   f.Timeout,
		ChildInit: f.ChildInit,
		TempDir:   f.TempDir,
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandValue substitutes environment references in strings, recursing
// into lists and maps.
func expandValue(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return expandEnvVars(val)
	case []any:
		for i, item := range val {
			expanded, err := expandValue(item)
			if err != nil {
				return nil, err
			}
			val[i] = expanded
		}
		return val, nil
	case map[string]any:
		for k, item := range val {
			expanded, err := expandValue(item)
			if err != nil {
				return nil, err
			}
			val[k] = expanded
		}
		return val, nil
	default:
		return v, nil
	}
}

// expandEnvVars replaces ${VAR} and ${VAR:-default}. An unset variable
// without a default is an error.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		sub := envVarPattern.FindStringSubmatch(match)
		name := sub[1]
		hasDefault := sub[2] != ""

		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		if hasDefault {
			return sub[3]
		}
		firstErr = fmt.Errorf("environment variable %q is not set", name)
		return match
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}
