package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func knownKinds(kinds ...string) KindLookup {
	return func(kind string) bool {
		for _, k := range kinds {
			if k == kind {
				return true
			}
		}
		return false
	}
}

const sampleChecks = `
max_procs: 2
timeout: 30
child_init: lower-priority
tempdir: /var/tmp/parcheck

checks:
  - id: api
    kind: http
    args:
      url: ${PARCHECK_TEST_API:-http://localhost:8080}/healthz
      expect_status: 204
  - id: db
    kind: tcp
    args:
      address: localhost:5432
  - kind: command
    args:
      command: check_disk
      args: ["-w", "${PARCHECK_TEST_WARN}"]
`

func TestParseChecks(t *testing.T) {
	t.Setenv("PARCHECK_TEST_WARN", "80%")

	f, err := ParseChecks([]byte(sampleChecks), knownKinds("http", "tcp", "command"))
	if err != nil {
		t.Fatalf("ParseChecks: %v", err)
	}

	if f.MaxProcs == nil || *f.MaxProcs != 2 {
		t.Errorf("MaxProcs = %v, want 2", f.MaxProcs)
	}
	if f.Timeout == nil || *f.Timeout != 30 {
		t.Errorf("Timeout = %v, want 30", f.Timeout)
	}
	if f.ChildInit == nil || *f.ChildInit != "lower-priority" {
		t.Errorf("ChildInit = %v, want lower-priority", f.ChildInit)
	}
	if len(f.Checks) != 3 {
		t.Fatalf("len(Checks) = %d, want 3", len(f.Checks))
	}

	api := f.Checks[0]
	if api.ID != "api" || api.Kind != "http" {
		t.Errorf("Checks[0] = %+v", api)
	}
	if got := api.Args["url"]; got != "http://localhost:8080/healthz" {
		t.Errorf("url = %v, want default expansion", got)
	}
	if got := api.Args["expect_status"]; got != 204 {
		t.Errorf("expect_status = %v (%T), want 204", got, got)
	}

	argv, ok := f.Checks[2].Args["args"].([]any)
	if !ok || len(argv) != 2 || argv[1] != "80%" {
		t.Errorf("command args = %v, want [-w 80%%]", f.Checks[2].Args["args"])
	}

	p := f.Params()
	if *p.MaxProcs != 2 || *p.Timeout != 30 || *p.TempDir != "/var/tmp/parcheck" {
		t.Errorf("Params = %+v", p)
	}
}

func TestParseChecksMinimal(t *testing.T) {
	f, err := ParseChecks([]byte("checks:\n  - kind: static\n"), nil)
	if err != nil {
		t.Fatalf("ParseChecks: %v", err)
	}
	p := f.Params()
	if p.MaxProcs != nil || p.Timeout != nil || p.ChildInit != nil || p.TempDir != nil {
		t.Errorf("unset options should stay nil: %+v", p)
	}
}

func TestParseChecksUnsetVariable(t *testing.T) {
	data := "checks:\n  - kind: tcp\n    args:\n      address: ${PARCHECK_TEST_UNSET_VAR}\n"
	_, err := ParseChecks([]byte(data), nil)
	if err == nil {
		t.Fatal("expected error for unset variable")
	}
	if !strings.Contains(err.Error(), "PARCHECK_TEST_UNSET_VAR") {
		t.Errorf("error = %v, want it to name the variable", err)
	}
}

func TestParseChecksInvalidYAML(t *testing.T) {
	if _, err := ParseChecks([]byte("checks: [\n"), nil); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	data := `
max_procs: -1
timeout: 0
checks:
  - id: a
    kind: static
  - id: a
    kind: static
  - kind: bogus
  - id: b
`
	_, err := ParseChecks([]byte(data), knownKinds("static"))
	if err == nil {
		t.Fatal("expected validation error")
	}

	msg := err.Error()
	for _, want := range []string{
		"max_procs",
		"timeout",
		`id "a" already used by checks[0]`,
		`checks[2]: unknown kind "bogus"`,
		"checks[3]: kind is required",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("error missing %q:\n%s", want, msg)
		}
	}
}

func TestValidateEmpty(t *testing.T) {
	_, err := ParseChecks([]byte("timeout: 5\n"), nil)
	if err == nil || !strings.Contains(err.Error(), "at least one check") {
		t.Errorf("error = %v, want missing checks", err)
	}
}

func TestLoadChecks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checks.yaml")
	if err := os.WriteFile(path, []byte("checks:\n  - id: x\n    kind: static\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	f, err := LoadChecks(path, knownKinds("static"))
	if err != nil {
		t.Fatalf("LoadChecks: %v", err)
	}
	if len(f.Checks) != 1 || f.Checks[0].ID != "x" {
		t.Errorf("Checks = %+v", f.Checks)
	}

	if _, err := LoadChecks(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("PARCHECK_TEST_HOST", "db.internal")

	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"${PARCHECK_TEST_HOST}:5432", "db.internal:5432"},
		{"${PARCHECK_TEST_MISSING:-fallback}", "fallback"},
		{"${PARCHECK_TEST_MISSING:-}", ""},
	}
	for _, tt := range tests {
		got, err := expandEnvVars(tt.in)
		if err != nil {
			t.Errorf("expandEnvVars(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
