package checks_test

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seantiz/parcheck/internal/checks"
	"github.com/seantiz/parcheck/internal/model"
)

func task(kind, id string, args map[string]any) model.Task {
	return model.Task{ID: id, Kind: kind, Args: args}
}

func TestRegisterAddsEveryKind(t *testing.T) {
	reg := checks.NewRegistry()

	assert.Equal(t, []string{
		checks.KindCommand, checks.KindDNS, checks.KindExit, checks.KindHTTP,
		checks.KindPanic, checks.KindSleep, checks.KindStatic, checks.KindTCP,
	}, reg.Kinds())
	assert.Equal(t, []string{checks.InitLowerPriority}, reg.Inits())
}

func TestStatic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		task model.Task
		want model.Result
	}{
		{
			"result map is returned verbatim",
			task("static", "id1", map[string]any{"result": map[string]any{"id": "id1", "status": "OK", "extra": 1.0}}),
			model.Result{"id": "id1", "status": "OK", "extra": 1.0},
		},
		{
			"task id is added to a result map without one",
			task("static", "id2", map[string]any{"result": map[string]any{"status": "WARNING"}}),
			model.Result{"id": "id2", "status": "WARNING"},
		},
		{
			"status and info args",
			task("static", "", map[string]any{"status": "CRITICAL", "info": "down"}),
			model.Result{"status": "CRITICAL", "info": "down"},
		},
		{
			"defaults to OK",
			task("static", "x", nil),
			model.Result{"id": "x", "status": "OK"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, checks.Static(context.Background(), tt.task))
		})
	}
}

func TestSleep(t *testing.T) {
	t.Parallel()

	got := checks.Sleep(context.Background(), task("sleep", "s", map[string]any{"seconds": 0.01}))
	assert.Equal(t, model.Result{"id": "s", "status": "OK"}, got)

	got = checks.Sleep(context.Background(), task("sleep", "s", map[string]any{"seconds": "soon"}))
	assert.Equal(t, model.StatusUnknown, got.Status())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got = checks.Sleep(ctx, task("sleep", "s", map[string]any{"seconds": 60}))
	assert.Equal(t, model.StatusCritical, got.Status())
}

func TestPanic(t *testing.T) {
	t.Parallel()

	assert.PanicsWithValue(t, "boom", func() {
		checks.Panic(context.Background(), task("panic", "", map[string]any{"message": "boom"}))
	})
}

func TestExitRejectsBadCode(t *testing.T) {
	t.Parallel()

	got := checks.Exit(context.Background(), task("exit", "", map[string]any{"code": 1.5}))
	assert.Equal(t, model.StatusUnknown, got.Status())
}

func TestTCP(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	got := checks.TCP(context.Background(), task("tcp", "db", map[string]any{"address": ln.Addr().String()}))
	assert.Equal(t, model.StatusOK, got.Status())
	assert.Equal(t, "db", got["id"])
	assert.Contains(t, got, "latency_ms")

	addr := ln.Addr().String()
	ln.Close()
	got = checks.TCP(context.Background(), task("tcp", "db", map[string]any{"address": addr, "timeout": 1}))
	assert.Equal(t, model.StatusCritical, got.Status())

	got = checks.TCP(context.Background(), task("tcp", "", nil))
	assert.Equal(t, model.Result{"status": "UNKNOWN", "info": "address is required"}, got)
}

func TestHTTP(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/down" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	tests := []struct {
		name string
		args map[string]any
		want model.Status
		code int
	}{
		{"healthy", map[string]any{"url": srv.URL + "/up"}, model.StatusOK, 200},
		{"unexpected status", map[string]any{"url": srv.URL + "/down"}, model.StatusCritical, 503},
		{"expected failure", map[string]any{"url": srv.URL + "/down", "expect_status": 503}, model.StatusOK, 503},
		{"head", map[string]any{"url": srv.URL, "method": "HEAD"}, model.StatusOK, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := checks.HTTP(context.Background(), task("http", "web", tt.args))
			assert.Equal(t, tt.want, got.Status(), got.Info())
			assert.Equal(t, tt.code, got["http_status"])
			assert.Equal(t, "web", got["id"])
		})
	}

	got := checks.HTTP(context.Background(), task("http", "", map[string]any{"url": "http://127.0.0.1:1/"}))
	assert.Equal(t, model.StatusCritical, got.Status())

	got = checks.HTTP(context.Background(), task("http", "", nil))
	assert.Equal(t, model.StatusUnknown, got.Status())
}

func TestDNS(t *testing.T) {
	t.Parallel()

	got := checks.DNS(context.Background(), task("dns", "local", map[string]any{"host": "localhost"}))
	assert.Equal(t, model.StatusOK, got.Status(), got.Info())
	assert.NotEmpty(t, got["addresses"])

	got = checks.DNS(context.Background(), task("dns", "", map[string]any{"host": "does-not-exist.invalid", "timeout": 2}))
	assert.Equal(t, model.StatusCritical, got.Status())
}

func TestCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	t.Parallel()

	tests := []struct {
		name   string
		script string
		status model.Status
		info   string
	}{
		{"ok", "echo 'OK - all good'", model.StatusOK, "OK - all good"},
		{"warning", "echo 'WARNING - disk 85%'; exit 1", model.StatusWarning, "WARNING - disk 85%"},
		{"critical", "echo 'CRITICAL - disk full'; echo detail; exit 2", model.StatusCritical, "CRITICAL - disk full"},
		{"unknown", "exit 3", model.StatusUnknown, "sh exited with code 3"},
		{"out of range", "exit 42", model.StatusUnknown, "sh exited with code 42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := checks.Command(context.Background(), task("command", "cmd", map[string]any{
				"command": "sh",
				"args":    []any{"-c", tt.script},
			}))
			assert.Equal(t, tt.status, got.Status())
			assert.Equal(t, tt.info, got.Info())
			assert.Equal(t, "cmd", got["id"])
		})
	}

	got := checks.Command(context.Background(), task("command", "", map[string]any{"command": "/nonexistent/plugin"}))
	assert.Equal(t, model.StatusUnknown, got.Status())

	got = checks.Command(context.Background(), task("command", "", map[string]any{
		"command": "sleep", "args": []any{"5"}, "timeout": 0.2,
	}))
	assert.Equal(t, model.StatusCritical, got.Status())
	assert.Contains(t, got.Info(), "timed out")
}
