package checks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/seantiz/parcheck/internal/model"
)

// Monitoring-plugin exit codes.
var pluginStatus = map[int]model.Status{
	0: model.StatusOK,
	1: model.StatusWarning,
	2: model.StatusCritical,
	3: model.StatusUnknown,
}

// Command runs args.command with args.args and maps its exit code the way
// monitoring plugins do. The first line of output becomes the info.
func Command(ctx context.Context, t model.Task) model.Result {
	name := stringArg(t.Args, "command", "")
	if name == "" {
		return result(t, model.StatusUnknown, "command is required")
	}
	argv, err := stringsArg(t.Args, "args")
	if err != nil {
		return result(t, model.StatusUnknown, err.Error())
	}
	timeout, err := secondsArg(t.Args, "timeout", DefaultTimeout)
	if err != nil {
		return result(t, model.StatusUnknown, err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, name, argv...)
	cmd.Stdout = &out
	cmd.Stderr = &out

	err = cmd.Run()
	code := 0
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		code = exitErr.ExitCode()
	default:
		return result(t, model.StatusUnknown, fmt.Sprintf("run %s: %v", name, err))
	}
	if ctx.Err() != nil {
		return result(t, model.StatusCritical, fmt.Sprintf("%s timed out after %s", name, timeout))
	}

	status, ok := pluginStatus[code]
	if !ok {
		status = model.StatusUnknown
	}
	info := firstLine(out.String())
	if info == "" {
		info = fmt.Sprintf("%s exited with code %d", name, code)
	}

	res := result(t, status, info)
	res["exit_code"] = code
	return res
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
