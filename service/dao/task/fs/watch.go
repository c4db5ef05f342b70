package fs

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watch calls onChange with the task id whenever a task record is created or
// replaced, including writes made by other processes sharing the base path.
// It blocks until ctx is done.
func (s *Service) Watch(ctx context.Context, onChange func(id string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fs store: failed to create watcher: %w", err)
	}
	defer watcher.Close()
	if err = watcher.Add(s.TasksPath()); err != nil {
		return fmt.Errorf("fs store: failed to watch %s: %w", s.TasksPath(), err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if id, ok := taskID(event.Name); ok {
				onChange(id)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("fs store: watcher failed: %w", err)
		}
	}
}

func taskID(name string) (string, bool) {
	base := filepath.Base(name)
	if !strings.HasSuffix(base, extension) {
		return "", false
	}
	id, err := decodeFileName(strings.TrimSuffix(base, extension))
	if err != nil {
		return "", false
	}
	return id, true
}
