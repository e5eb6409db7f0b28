// Package health holds the base health-check contract shared by every checker:
// how individual statuses fold into one, and how a list of records is
// presented to the caller.
package health

import "github.com/seantiz/parcheck/internal/model"

// rank orders statuses from best to worst.
var rank = map[model.Status]int{
	model.StatusOK:       0,
	model.StatusWarning:  1,
	model.StatusUnknown:  2,
	model.StatusCritical: 3,
}

// Rank returns the severity of s. Unrecognised or missing statuses rank as UNKNOWN.
func Rank(s model.Status) int {
	if r, ok := rank[s]; ok {
		return r
	}
	return rank[model.StatusUnknown]
}

// Worst returns the more severe of a and b.
func Worst(a, b model.Status) model.Status {
	if Rank(b) > Rank(a) {
		return b
	}
	return a
}

// Aggregate folds the statuses of results into one. An empty list is UNKNOWN.
func Aggregate(results []model.Result) model.Status {
	if len(results) == 0 {
		return model.StatusUnknown
	}
	agg := model.StatusOK
	for _, r := range results {
		s := r.Status()
		if _, known := rank[s]; !known {
			s = model.StatusUnknown
		}
		agg = Worst(agg, s)
	}
	return agg
}

// Summarize presents results to the caller. A single record is returned
// unwrapped; anything else becomes an envelope whose status aggregates the
// children. When overrideInfo is set the envelope is forced CRITICAL and
// carries it as info; a single record is still returned unwrapped.
func Summarize(results []model.Result, overrideInfo string) model.Result {
	if len(results) == 1 {
		return results[0]
	}

	env := model.Result{
		model.FieldStatus:  string(Aggregate(results)),
		model.FieldResults: results,
	}
	if overrideInfo != "" {
		env[model.FieldStatus] = string(model.StatusCritical)
		env[model.FieldInfo] = overrideInfo
	}
	return env
}

// ExitCode maps a status to the conventional monitoring-plugin exit code.
func ExitCode(s model.Status) int {
	switch s {
	case model.StatusOK:
		return 0
	case model.StatusWarning:
		return 1
	case model.StatusCritical:
		return 2
	default:
		return 3
	}
}
