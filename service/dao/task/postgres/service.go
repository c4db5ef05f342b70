// Package postgres implements the task store on PostgreSQL. Claims select and
// mark in a single UPDATE whose candidate subquery uses FOR UPDATE SKIP LOCKED,
// so concurrent claimers on any number of hosts never block on or share a row.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/viant/taskgraph/internal/clock"
	"github.com/viant/taskgraph/model/task"
	"github.com/viant/taskgraph/service/dao"
	"github.com/viant/taskgraph/service/resolver"
)

//go:embed schema.sql
var schema string

const (
	columns          = "id, type, duration_ms, dependencies, status, last_error, created_at, updated_at"
	qualifiedColumns = "tasks.id, tasks.type, tasks.duration_ms, tasks.dependencies, tasks.status, tasks.last_error, tasks.created_at, tasks.updated_at"
	uniqueViolation  = "23505"
)

// Service implements a PostgreSQL-backed task store
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
	_, err = s.db.ExecContext(ctx, `INSERT INTO tasks (`+columns+`) VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7, $8)`,
		stored.ID, stored.Type, stored.DurationMs, string(deps), string(stored.Status), stored.LastError,
		stored.CreatedAt, stored.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
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
	row := s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM tasks WHERE id = $1`, id)
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
			args = append(args, string(status))
			placeholders[i] = fmt.Sprintf("$%d", len(args))
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
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE status = $1`, string(status)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s tasks: %w", status, err)
	}
	return count, nil
}

// Claim selects and marks up to limit eligible tasks in one statement. A
// dependency id with no matching row blocks its dependent.
func (s *Service) Claim(ctx context.Context, limit int) ([]*task.Task, error) {
	if limit <= 0 {
		return []*task.Task{}, nil
	}
	// Dependency rows are read, not locked: a dependency failed after
	// completing can still release its dependents in the same instant.
	rows, err := s.db.QueryContext(ctx, `WITH picked AS (
			SELECT t.id FROM tasks t
			WHERE t.status = 'QUEUED'
			  AND NOT EXISTS (
				SELECT 1 FROM jsonb_array_elements_text(t.dependencies) AS d(dep_id)
				LEFT JOIN tasks dep ON dep.id = d.dep_id
				WHERE dep.id IS NULL OR dep.status <> 'COMPLETED'
			  )
			ORDER BY t.created_at, t.id
			LIMIT $1
			FOR UPDATE OF t SKIP LOCKED
		)
		UPDATE tasks SET status = 'RUNNING', last_error = NULL, updated_at = $2
		FROM picked
		WHERE tasks.id = picked.id
		RETURNING `+qualifiedColumns, limit, clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to claim tasks: %w", err)
	}
	defer rows.Close()
	claimed, err := scanTasks(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to claim tasks: %w", err)
	}
	resolver.SortByCreation(claimed)
	return claimed, nil
}

// Complete marks a RUNNING task COMPLETED
func (s *Service) Complete(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, dao.ErrInvalidID
	}
	affected, err := s.exec(ctx, `UPDATE tasks SET status = 'COMPLETED', last_error = NULL, updated_at = $2
		WHERE id = $1 AND status = 'RUNNING'`, id, clock.Now())
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
	affected, err := s.exec(ctx, `UPDATE tasks SET status = 'FAILED', last_error = $2, updated_at = $3 WHERE id = $1`,
		id, message, clock.Now())
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
	affected, err := s.exec(ctx, `UPDATE tasks SET status = 'QUEUED', last_error = NULL, updated_at = $1 WHERE status = 'RUNNING'`,
		clock.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to recover tasks: %w", err)
	}
	return int(affected), nil
}

// Close closes the connection pool
func (s *Service) Close() error {
	return s.db.Close()
}

func (s *Service) exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
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
		deps      []byte
		status    string
		lastError sql.NullString
		created   time.Time
		updated   time.Time
	)
	if err := scan(&ret.ID, &ret.Type, &ret.DurationMs, &deps, &status, &lastError, &created, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(deps, &ret.Dependencies); err != nil {
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
	ret.CreatedAt = created.UTC()
	ret.UpdatedAt = updated.UTC()
	return &ret, nil
}

// New connects to dsn using the pgx driver and applies the schema
func New(ctx context.Context, dsn string) (*Service, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres store: dsn was empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err = db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Service{db: db}, nil
}
