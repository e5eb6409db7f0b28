package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/seantiz/parcheck/internal/model"

	_ "modernc.org/sqlite"
)

const createRunsTable = `
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    state       TEXT NOT NULL,
    status      TEXT,
    task_count  INTEGER NOT NULL,
    max_procs   INTEGER NOT NULL,
    timeout_s   INTEGER NOT NULL,
    result      TEXT,
    error       TEXT,
    duration_ms INTEGER,
    created_at  DATETIME NOT NULL,
    started_at  DATETIME,
    finished_at DATETIME
)`

const createTaskResultsTable = `
CREATE TABLE IF NOT EXISTS task_results (
    run_id  TEXT NOT NULL REFERENCES runs(id),
    idx     INTEGER NOT NULL,
    task_id TEXT,
    kind    TEXT NOT NULL,
    state   TEXT NOT NULL,
    status  TEXT,
    info    TEXT,
    result  TEXT NOT NULL,
    PRIMARY KEY (run_id, idx)
)`

// ErrNotFound is returned when a run is not found.
var ErrNotFound = errors.New("run not found")

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec(createRunsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create runs table: %w", err)
	}

	if _, err := db.Exec(createTaskResultsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create task_results table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const runColumns = `id, state, status, task_count, max_procs, timeout_s,
	result, error, duration_ms, created_at, started_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.Run, error) {
	r := &model.Run{}
	var status, result, errMsg sql.NullString
	if err := row.Scan(
		&r.ID, &r.State, &status, &r.TaskCount, &r.MaxProcs, &r.TimeoutS,
		&result, &errMsg, &r.DurationMS, &r.CreatedAt, &r.StartedAt, &r.FinishedAt,
	); err != nil {
		return nil, err
	}
	r.Status = model.Status(status.String)
	r.Error = errMsg.String
	if result.Valid && result.String != "" {
		if err := json.Unmarshal([]byte(result.String), &r.Result); err != nil {
			return nil, fmt.Errorf("decode result of run %s: %w", r.ID, err)
		}
	}
	return r, nil
}

func encodeResult(res model.Result) (any, error) {
	if res == nil {
		return nil, nil
	}
	b, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return string(b), nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// CreateRun inserts a new run record.
func (s *SQLiteStore) CreateRun(ctx context.Context, r *model.Run) error {
	result, err := encodeResult(r.Result)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.State, nullable(string(r.Status)), r.TaskCount, r.MaxProcs, r.TimeoutS,
		result, nullable(r.Error), r.DurationMS, r.CreatedAt, r.StartedAt, r.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns a paginated list of runs ordered by created_at DESC,
// along with the total count of all runs.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*model.Run, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate runs: %w", err)
	}

	return runs, total, nil
}

// currentState reads a run's state inside tx.
func currentState(ctx context.Context, tx *sql.Tx, id string) (string, error) {
	var state string
	err := tx.QueryRowContext(ctx, "SELECT state FROM runs WHERE id = ?", id).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read run state: %w", err)
	}
	return state, nil
}

// UpdateRunState moves a run to state. Moving to running sets started_at;
// moving to a terminal state sets finished_at.
func (s *SQLiteStore) UpdateRunState(ctx context.Context, id, state string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	from, err := currentState(ctx, tx, id)
	if err != nil {
		return err
	}
	if !model.ValidRunTransition(from, state) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, from, state)
	}

	now := time.Now().UTC()
	switch {
	case state == model.RunRunning:
		_, err = tx.ExecContext(ctx,
			"UPDATE runs SET state = ?, started_at = ? WHERE id = ?", state, now, id)
	case model.IsTerminalRunState(state):
		_, err = tx.ExecContext(ctx,
			"UPDATE runs SET state = ?, finished_at = ? WHERE id = ?", state, now, id)
	default:
		_, err = tx.ExecContext(ctx,
			"UPDATE runs SET state = ? WHERE id = ?", state, id)
	}
	if err != nil {
		return fmt.Errorf("update run state: %w", err)
	}

	return tx.Commit()
}

// FinishRun writes the terminal record of a run.
func (s *SQLiteStore) FinishRun(ctx context.Context, r *model.Run) error {
	if !model.IsTerminalRunState(r.State) {
		return fmt.Errorf("%w: %s is not terminal", ErrInvalidTransition, r.State)
	}
	result, err := encodeResult(r.Result)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	from, err := currentState(ctx, tx, r.ID)
	if err != nil {
		return err
	}
	if !model.ValidRunTransition(from, r.State) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, from, r.State)
	}

	finished := time.Now().UTC()
	if r.FinishedAt != nil {
		finished = *r.FinishedAt
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE runs SET state = ?, status = ?, result = ?, error = ?, duration_ms = ?,
			started_at = COALESCE(?, started_at), finished_at = ?
		WHERE id = ?`,
		r.State, nullable(string(r.Status)), result, nullable(r.Error), r.DurationMS,
		r.StartedAt, finished, r.ID,
	); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}

	return tx.Commit()
}

// GetRunStats computes aggregate statistics over all runs.
func (s *SQLiteStore) GetRunStats(ctx context.Context) (*RunStats, error) {
	stats := &RunStats{
		CountByState:  make(map[string]int),
		CountByStatus: make(map[string]int),
		TasksByState:  make(map[string]int),
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var avg sql.NullFloat64
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*), AVG(duration_ms) FROM runs").Scan(&stats.Total, &avg); err != nil {
		return nil, fmt.Errorf("count runs: %w", err)
	}
	stats.AvgDurationMS = avg.Float64

	groups := []struct {
		query string
		into  map[string]int
	}{
		{"SELECT state, COUNT(*) FROM runs GROUP BY state", stats.CountByState},
		{"SELECT status, COUNT(*) FROM runs WHERE status IS NOT NULL GROUP BY status", stats.CountByStatus},
		{"SELECT state, COUNT(*) FROM task_results GROUP BY state", stats.TasksByState},
	}
	for _, g := range groups {
		if err := countInto(ctx, tx, g.query, g.into); err != nil {
			return nil, err
		}
	}

	return stats, nil
}

func countInto(ctx context.Context, tx *sql.Tx, query string, into map[string]int) error {
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("group counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("scan group count: %w", err)
		}
		into[key] = n
	}
	return rows.Err()
}

// InsertTaskRecord stores the terminal record of one task.
func (s *SQLiteStore) InsertTaskRecord(ctx context.Context, rec *model.TaskRecord) error {
	result, err := encodeResult(rec.Result)
	if err != nil {
		return err
	}
	if result == nil {
		result = "{}"
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO task_results (run_id, idx, task_id, kind, state, status, info, result)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Index, nullable(rec.TaskID), rec.Kind, rec.State,
		nullable(string(rec.Status)), nullable(rec.Info), result,
	)
	if err != nil {
		return fmt.Errorf("insert task record: %w", err)
	}
	return nil
}

// GetTaskRecords returns every task record of a run in task order.
func (s *SQLiteStore) GetTaskRecords(ctx context.Context, runID string) ([]model.TaskRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, idx, task_id, kind, state, status, info, result
		FROM task_results WHERE run_id = ? ORDER BY idx ASC`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("get task records: %w", err)
	}
	defer rows.Close()

	records := []model.TaskRecord{}
	for rows.Next() {
		var rec model.TaskRecord
		var taskID, status, info sql.NullString
		var result string
		if err := rows.Scan(&rec.RunID, &rec.Index, &taskID, &rec.Kind, &rec.State,
			&status, &info, &result); err != nil {
			return nil, fmt.Errorf("scan task record: %w", err)
		}
		rec.TaskID = taskID.String
		rec.Status = model.Status(status.String)
		rec.Info = info.String
		if err := json.Unmarshal([]byte(result), &rec.Result); err != nil {
			return nil, fmt.Errorf("decode task record %d: %w", rec.Index, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task records: %w", err)
	}

	return records, nil
}
