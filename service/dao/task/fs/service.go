// Package fs implements a task store keeping one JSON document per task on a
// shared local filesystem. Several processes may point at the same base path:
// every record mutation holds an flock on the record's lock file, and claims
// skip records locked by another claimer.
package fs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	"github.com/viant/taskgraph/internal/clock"
	"github.com/viant/taskgraph/internal/filelock"
	"github.com/viant/taskgraph/internal/idgen"
	"github.com/viant/taskgraph/model/task"
	"github.com/viant/taskgraph/service/dao"
	"github.com/viant/taskgraph/service/dao/criteria"
	"github.com/viant/taskgraph/service/resolver"
)

const (
	tasksFolder = "tasks"
	locksFolder = "locks"
	extension   = ".json"

	encodedPrefix = "~"
)

// Service implements a filesystem-based task store
type Service struct {
	basePath string
	fs       afs.Service
}

var _ dao.TaskService = (*Service)(nil)

// Insert persists a new task
func (s *Service) Insert(ctx context.Context, t *task.Task) (*task.Task, error) {
	if t == nil {
		return nil, dao.ErrNilEntity
	}
	if t.ID == "" {
		return nil, dao.ErrInvalidID
	}
	lock, err := s.lock(t.ID)
	if err != nil {
		return nil, err
	}
	defer lock.Unlock()

	exists, err := s.fs.Exists(ctx, s.taskURL(t.ID))
	if err != nil {
		return nil, fmt.Errorf("failed to check if task exists: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", dao.ErrDuplicateID, t.ID)
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
	if err = s.save(ctx, stored); err != nil {
		return nil, err
	}
	return stored, nil
}

// Load retrieves a task from the filesystem
func (s *Service) Load(ctx context.Context, id string) (*task.Task, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}
	taskURL := s.taskURL(id)
	exists, err := s.fs.Exists(ctx, taskURL)
	if err != nil {
		return nil, fmt.Errorf("failed to check if task exists: %w", err)
	}
	if !exists {
		return nil, dao.ErrNotFound
	}
	data, err := s.fs.DownloadWithURL(ctx, taskURL)
	if err != nil {
		return nil, fmt.Errorf("failed to read task file: %w", err)
	}
	ret := &task.Task{}
	if err := json.Unmarshal(data, ret); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task %s: %w", id, err)
	}
	return ret, nil
}

// List returns all stored tasks, newest first
func (s *Service) List(ctx context.Context, parameters ...*dao.Parameter) ([]*task.Task, error) {
	objects, err := s.fs.List(ctx, s.folderURL(tasksFolder))
	if err != nil {
		return nil, fmt.Errorf("failed to list task files: %w", err)
	}
	var ret = make([]*task.Task, 0, len(objects))
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), extension) {
			continue
		}
		data, err := s.fs.Download(ctx, object)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read task file %s: %w", object.URL(), err)
		}
		aTask := &task.Task{}
		if err := json.Unmarshal(data, aTask); err != nil {
			return nil, fmt.Errorf("failed to unmarshal task from %s: %w", object.URL(), err)
		}
		if !criteria.FilterByStatus(aTask.Status, parameters) {
			continue
		}
		ret = append(ret, aTask)
	}
	resolver.SortNewestFirst(ret)
	return ret, nil
}

// CountByStatus counts tasks in status
func (s *Service) CountByStatus(ctx context.Context, status task.Status) (int, error) {
	tasks, err := s.List(ctx, dao.WithStatus(status))
	if err != nil {
		return 0, err
	}
	return len(tasks), nil
}

// Claim selects up to limit eligible tasks oldest first. A candidate whose lock
// is held by another claimer is skipped.
func (s *Service) Claim(ctx context.Context, limit int) ([]*task.Task, error) {
	if limit <= 0 {
		return []*task.Task{}, nil
	}
	snapshot, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	statuses := make(map[string]task.Status, len(snapshot))
	var candidates []*task.Task
	for _, aTask := range snapshot {
		statuses[aTask.ID] = aTask.Status
		if aTask.Status == task.StatusQueued {
			candidates = append(candidates, aTask)
		}
	}
	lookup := resolver.MapLookup(statuses)
	resolver.SortByCreation(candidates)

	claimed := make([]*task.Task, 0, limit)
	for _, candidate := range candidates {
		if len(claimed) == limit {
			break
		}
		if !resolver.DependenciesMet(candidate, lookup) {
			continue
		}
		aTask, err := s.tryClaim(ctx, candidate.ID)
		if err != nil {
			return claimed, err
		}
		if aTask != nil {
			claimed = append(claimed, aTask)
		}
	}
	return claimed, nil
}

// tryClaim claims id when its own lock and every dependency lock can be
// taken without waiting; eligibility is checked again under those locks.
func (s *Service) tryClaim(ctx context.Context, id string) (*task.Task, error) {
	lock := filelock.New(s.lockPath(id))
	acquired, err := lock.TryLock()
	if err != nil || !acquired {
		return nil, err
	}
	defer lock.Unlock()
	current, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != task.StatusQueued {
		return nil, nil
	}
	depLocks, met, err := s.lockCompletedDependencies(ctx, current)
	if err != nil || !met {
		return nil, err
	}
	defer unlockAll(depLocks)
	current.Claim(clock.Now())
	if err = s.save(ctx, current); err != nil {
		return nil, err
	}
	return current, nil
}

// lockCompletedDependencies reports whether every dependency of t is
// COMPLETED. The returned locks stay held until the caller unlocks them.
func (s *Service) lockCompletedDependencies(ctx context.Context, t *task.Task) ([]*filelock.Lock, bool, error) {
	locks := make([]*filelock.Lock, 0, len(t.Dependencies))
	fail := func(err error) ([]*filelock.Lock, bool, error) {
		unlockAll(locks)
		return nil, false, err
	}
	seen := make(map[string]bool, len(t.Dependencies))
	for _, dep := range t.Dependencies {
		if seen[dep] {
			continue
		}
		seen[dep] = true
		if dep == t.ID {
			return fail(nil)
		}
		depLock := filelock.New(s.lockPath(dep))
		acquired, err := depLock.TryLock()
		if err != nil || !acquired {
			return fail(err)
		}
		locks = append(locks, depLock)
		loaded, err := s.Load(ctx, dep)
		if errors.Is(err, dao.ErrNotFound) {
			return fail(nil)
		}
		if err != nil {
			return fail(err)
		}
		if loaded.Status != task.StatusCompleted {
			return fail(nil)
		}
	}
	return locks, true, nil
}

func unlockAll(locks []*filelock.Lock) {
	for _, lock := range locks {
		_ = lock.Unlock()
	}
}

// Complete marks a RUNNING task COMPLETED
func (s *Service) Complete(ctx context.Context, id string) (bool, error) {
	updated := false
	err := s.update(ctx, id, func(t *task.Task) bool {
		if t.Status != task.StatusRunning {
			return false
		}
		t.Complete(clock.Now())
		updated = true
		return true
	})
	if err == dao.ErrNotFound {
		return false, nil
	}
	return updated, err
}

// Fail marks a task FAILED unconditionally
func (s *Service) Fail(ctx context.Context, id string, message string) error {
	err := s.update(ctx, id, func(t *task.Task) bool {
		t.Fail(message, clock.Now())
		return true
	})
	if err == dao.ErrNotFound {
		return fmt.Errorf("%w: %s", dao.ErrNotFound, id)
	}
	return err
}

// Recover requeues all RUNNING tasks
func (s *Service) Recover(ctx context.Context) (int, error) {
	running, err := s.List(ctx, dao.WithStatus(task.StatusRunning))
	if err != nil {
		return 0, err
	}
	count := 0
	for _, candidate := range running {
		err := s.update(ctx, candidate.ID, func(t *task.Task) bool {
			if t.Status != task.StatusRunning {
				return false
			}
			t.Requeue(clock.Now())
			count++
			return true
		})
		if err != nil && err != dao.ErrNotFound {
			return count, err
		}
	}
	return count, nil
}

// Close is a no-op
func (s *Service) Close() error {
	return nil
}

// update applies fn to the current record under its lock; the record is saved only when fn returns true
func (s *Service) update(ctx context.Context, id string, fn func(t *task.Task) bool) error {
	if id == "" {
		return dao.ErrInvalidID
	}
	lock, err := s.lock(id)
	if err != nil {
		return err
	}
	defer lock.Unlock()
	current, err := s.Load(ctx, id)
	if err != nil {
		return err
	}
	if !fn(current) {
		return nil
	}
	return s.save(ctx, current)
}

func (s *Service) lock(id string) (*filelock.Lock, error) {
	lock := filelock.New(s.lockPath(id))
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("failed to lock task %s: %w", id, err)
	}
	return lock, nil
}

// save writes to a temporary file and moves it in place so readers never observe a partial record
func (s *Service) save(ctx context.Context, t *task.Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	taskURL := s.taskURL(t.ID)
	tmpURL := url.Join(s.folderURL(tasksFolder), fileName(t.ID)+".tmp-"+idgen.New())
	if err = s.fs.Upload(ctx, tmpURL, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to save task to file %s: %w", tmpURL, err)
	}
	if err = s.fs.Move(ctx, tmpURL, taskURL); err != nil {
		_ = s.fs.Delete(ctx, tmpURL)
		return fmt.Errorf("failed to move task file %s: %w", taskURL, err)
	}
	return nil
}

func (s *Service) folderURL(folder string) string {
	return url.Join(s.basePath, folder)
}

func (s *Service) taskURL(id string) string {
	return url.Join(s.folderURL(tasksFolder), fileName(id)+extension)
}

func (s *Service) lockPath(id string) string {
	return filepath.Join(s.basePath, locksFolder, fileName(id)+".lock")
}

// TasksPath returns the local directory holding task records
func (s *Service) TasksPath() string {
	return filepath.Join(s.basePath, tasksFolder)
}

// fileName keeps plain ids readable and encodes anything unsafe for a file name
func fileName(id string) string {
	for _, r := range id {
		if !isSafe(r) {
			return encodedPrefix + base64.RawURLEncoding.EncodeToString([]byte(id))
		}
	}
	return id
}

func decodeFileName(name string) (string, error) {
	if !strings.HasPrefix(name, encodedPrefix) {
		return name, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(name, encodedPrefix))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func isSafe(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '.' || r == '_' || r == '-':
		return true
	}
	return false
}

// New creates a filesystem-based task store rooted at basePath, a local directory.
func New(basePath string) (*Service, error) {
	if basePath == "" {
		return nil, fmt.Errorf("fs store: base path was empty")
	}
	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, err
	}
	for _, folder := range []string{tasksFolder, locksFolder} {
		if err := os.MkdirAll(filepath.Join(absPath, folder), file.DefaultDirOsMode); err != nil {
			return nil, fmt.Errorf("fs store: failed to create %s folder: %w", folder, err)
		}
	}
	return &Service{basePath: absPath, fs: afs.New()}, nil
}
