package store

import (
	"context"
	"errors"

	"github.com/seantiz/parcheck/internal/model"
)

// ErrInvalidTransition is returned when a run state transition is not allowed.
var ErrInvalidTransition = errors.New("invalid state transition")

// RunStats holds aggregate run history statistics.
type RunStats struct {
	Total         int            `json:"total"`
	CountByState  map[string]int `json:"count_by_state"`
	CountByStatus map[string]int `json:"count_by_status"`
	TasksByState  map[string]int `json:"tasks_by_state"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
}

// Store defines the persistence operations for runs and their task records.
type Store interface {
	CreateRun(ctx context.Context, r *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*model.Run, int, error)
	UpdateRunState(ctx context.Context, id, state string) error
	FinishRun(ctx context.Context, r *model.Run) error
	GetRunStats(ctx context.Context) (*RunStats, error)
	InsertTaskRecord(ctx context.Context, rec *model.TaskRecord) error
	GetTaskRecords(ctx context.Context, runID string) ([]model.TaskRecord, error)
	Close() error
}
