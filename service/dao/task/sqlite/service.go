// Package sqlite implements the task store on a local SQLite database. Claims
// run inside a BEGIN IMMEDIATE transaction, so processes sharing the database
// file serialise their select-and-mark steps on the database write lock.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/viant/taskgraph/internal/clock"
	"github.com/viant/taskgraph/model/task"
	"github.com/viant/taskgraph/service/dao"
)

//go:embed schema.sql
var schema string

const (
	maxRetries = 5
	columns    = "id, type, duration_ms, dependencies, status, last_error, created_at, updated_at"
)

// Service implements a SQLite-backed task store
type Service struct {
	db *sql.DB
}

var _ dao.TaskService = (*Service)(nil)

// Insert stores a new task
func (s *Service) Insert(ctx context.Context, t *task.Task) (*task.Task, error) {
	if t == nil {
		return nil, dao.ErrNilEntity
	}
	if t.ID == "" {
		return nil, dao.ErrInvalidID
	}
	stored := t.Clone()
	if stored.Status == "" {
		stored.Status = task.StatusQueued
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = clock.Now()
	}
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = stored.CreatedAt
	}
	if stored.Dependencies == nil {
		stored.Dependencies = []string{}
	}
	deps, err := json.Marshal(stored.Dependencies)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal dependencies: %w", err)
	}
	err = retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `INSERT INTO tasks (`+columns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			stored.ID, stored.Type, stored.DurationMs, string(deps), string(stored.Status), stored.LastError,
			stored.CreatedAt.UnixMicro(), stored.UpdatedAt.UnixMicro())
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", dao.ErrDuplicateID, t.ID)
		}
		return nil, fmt.Errorf("failed to insert task %s: %w", t.ID, err)
	}
	return stored, nil
}

// Load retrieves a task by id
func (s *Service) Load(ctx context.Context, id string) (*task.Task, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM tasks WHERE id = ?`, id)
	ret, err := scanTask(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dao.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task %s: %w", id, err)
	}
	return ret, nil
}

// List returns tasks newest first, optionally filtered by status
func (s *Service) List(ctx context.Context, parameters ...*dao.Parameter) ([]*task.Task, error) {
	query := `SELECT ` + columns + ` FROM tasks`
	var args []interface{}
	if statuses := dao.Statuses(parameters); len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// CountByStatus counts tasks in status
func (s *Service) CountByStatus(ctx context.Context, status task.Status) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE status = ?`, string(status)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s tasks: %w", status, err)
	}
	return count, nil
}

// Claim selects and marks up to limit eligible tasks in one write transaction.
// A dependency id with no matching row blocks its dependent.
func (s *Service) Claim(ctx context.Context, limit int) ([]*task.Task, error) {
	if limit <= 0 {
		return []*task.Task{}, nil
	}
	var claimed []*task.Task
	err := retryOnBusy(ctx, func() error {
		var err error
		claimed, err = s.claim(ctx, limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to claim tasks: %w", err)
	}
	return claimed, nil
}

func (s *Service) claim(ctx context.Context, limit int) ([]*task.Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT `+columns+` FROM tasks t
		WHERE t.status = 'QUEUED'
		  AND NOT EXISTS (
			SELECT 1 FROM json_each(t.dependencies) d
			LEFT JOIN tasks dep ON dep.id = d.value
			WHERE dep.id IS NULL OR dep.status <> 'COMPLETED'
		  )
		ORDER BY t.created_at, t.id
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	candidates, err := scanTasks(rows)
	_ = rows.Close()
	if err != nil {
		return nil, err
	}

	now := clock.Now()
	claimed := make([]*task.Task, 0, len(candidates))
	for _, candidate := range candidates {
		result, err := tx.ExecContext(ctx, `UPDATE tasks SET status = 'RUNNING', last_error = NULL, updated_at = ?
			WHERE id = ? AND status = 'QUEUED'`, now.UnixMicro(), candidate.ID)
		if err != nil {
			return nil, err
		}
		if affected, _ := result.RowsAffected(); affected == 0 {
			continue
		}
		candidate.Claim(now)
		claimed = append(claimed, candidate)
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return claimed, nil
}

// Complete marks a RUNNING task COMPLETED
func (s *Service) Complete(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, dao.ErrInvalidID
	}
	affected, err := s.exec(ctx, `UPDATE tasks SET status = 'COMPLETED', last_error = NULL, updated_at = ?
		WHERE id = ? AND status = 'RUNNING'`, clock.Now().UnixMicro(), id)
	if err != nil {
		return false, fmt.Errorf("failed to complete task %s: %w", id, err)
	}
	return affected == 1, nil
}

// Fail marks a task FAILED unconditionally
func (s *Service) Fail(ctx context.Context, id string, message string) error {
	if id == "" {
		return dao.ErrInvalidID
	}
	affected, err := s.exec(ctx, `UPDATE tasks SET status = 'FAILED', last_error = ?, updated_at = ? WHERE id = ?`,
		message, clock.Now().UnixMicro(), id)
	if err != nil {
		return fmt.Errorf("failed to fail task %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", dao.ErrNotFound, id)
	}
	return nil
}

// Recover requeues every RUNNING task
func (s *Service) Recover(ctx context.Context) (int, error) {
	affected, err := s.exec(ctx, `UPDATE tasks SET status = 'QUEUED', last_error = NULL, updated_at = ? WHERE status = 'RUNNING'`,
		clock.Now().UnixMicro())
	if err != nil {
		return 0, fmt.Errorf("failed to recover tasks: %w", err)
	}
	return int(affected), nil
}

// Close closes the database
func (s *Service) Close() error {
	return s.db.Close()
}

func (s *Service) exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	var affected int64
	err := retryOnBusy(ctx, func() error {
		result, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err = result.RowsAffected()
		return err
	})
	return affected, err
}

func scanTasks(rows *sql.Rows) ([]*task.Task, error) {
	ret := make([]*task.Task, 0)
	for rows.Next() {
		aTask, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		ret = append(ret, aTask)
	}
	return ret, rows.Err()
}

func scanTask(scan func(dest ...any) error) (*task.Task, error) {
	var (
		ret       task.Task
		deps      string
		status    string
		lastError sql.NullString
		created   int64
		updated   int64
	)
	if err := scan(&ret.ID, &ret.Type, &ret.DurationMs, &deps, &status, &lastError, &created, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(deps), &ret.Dependencies); err != nil {
		return nil, fmt.Errorf("invalid dependencies of %s: %w", ret.ID, err)
	}
	if ret.Dependencies == nil {
		ret.Dependencies = []string{}
	}
	ret.Status = task.Status(status)
	if lastError.Valid {
		msg := lastError.String
		ret.LastError = &msg
	}
	ret.CreatedAt = time.UnixMicro(created).UTC()
	ret.UpdatedAt = time.UnixMicro(updated).UTC()
	return &ret, nil
}

// retryOnBusy retries f with capped exponential backoff while SQLite reports BUSY or LOCKED.
func retryOnBusy(ctx context.Context, f func() error) error {
	const baseDelay = 50 * time.Millisecond
	const maxDelay = 500 * time.Millisecond
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err = f(); err == nil || !isBusy(err) || attempt == maxRetries {
			return err
		}
		delay := baseDelay << uint(attempt)
		if delay > maxDelay {
			delay = maxDelay
		}
		delay = delay - delay/4 + time.Duration(rand.IntN(int(delay/2)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// New opens (creating when needed) the database file at path and applies the schema
func New(ctx context.Context, path string) (*Service, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite store: path was empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_txlock=immediate", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite3: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{"PRAGMA journal_mode=WAL;", "PRAGMA synchronous=FULL;"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Service{db: db}, nil
}
