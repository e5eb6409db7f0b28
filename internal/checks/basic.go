package checks

import (
	"context"
	"os"
	"time"

	"github.com/seantiz/parcheck/internal/model"
)

// Static returns args.result verbatim, or a record built from args.status
// and args.info when no result map is given.
func Static(_ context.Context, t model.Task) model.Result {
	if m, ok := t.Args["result"].(map[string]any); ok {
		res := make(model.Result, len(m)+1)
		for k, v := range m {
			res[k] = v
		}
		if _, ok := res[model.FieldID]; !ok {
			withID(t, res)
		}
		return res
	}
	status := model.Status(stringArg(t.Args, "status", string(model.StatusOK)))
	return result(t, status, stringArg(t.Args, "info", ""))
}

// Sleep waits args.seconds and then behaves like Static.
func Sleep(ctx context.Context, t model.Task) model.Result {
	d, err := secondsArg(t.Args, "seconds", 0)
	if err != nil {
		return result(t, model.StatusUnknown, err.Error())
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return result(t, model.StatusCritical, "interrupted: "+ctx.Err().Error())
	}
	return Static(ctx, t)
}

// Exit terminates the worker with args.code without reporting a result.
func Exit(_ context.Context, t model.Task) model.Result {
	code, err := intArg(t.Args, "code", 0)
	if err != nil {
		return result(t, model.StatusUnknown, err.Error())
	}
	os.Exit(code)
	return nil
}

// Panic panics with args.message.
func Panic(_ context.Context, t model.Task) model.Result {
	panic(stringArg(t.Args, "message", "check panicked"))
}
