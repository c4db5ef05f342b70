// Package filelock provides cross-process mutual exclusion using flock(2).
// The file task store takes one lock per task record, so a blocked claim on
// one record never stalls work on another.
package filelock

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

// Lock guards a single lock file. A Lock value is not safe for concurrent use;
// each goroutine acquires its own Lock for the same path.
type Lock struct {
	path string
	file *os.File
}

// New creates a Lock for the supplied lock file path. The file is created on
// first acquisition.
func New(path string) *Lock {
	return &Lock{path: path}
}

// Path returns the lock file path
func (l *Lock) Path() string {
	return l.path
}

// Lock acquires an exclusive lock, blocking until available.
func (l *Lock) Lock() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		_ = f.Close()
		return fmt.Errorf("flock: %w", err)
	}
	l.file = f
	return nil
}

// TryLock attempts to acquire the lock without blocking.
// Returns false if it is held elsewhere.
func (l *Lock) TryLock() (bool, error) {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return false, fmt.Errorf("open lock file: %w", err)
	}
	err = syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err != nil {
		_ = f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return false, nil
		}
		return false, fmt.Errorf("flock: %w", err)
	}
	l.file = f
	return true, nil
}

// Unlock releases the lock and closes the lock file.
func (l *Lock) Unlock() error {
	if l.file == nil {
		return nil
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		_ = l.file.Close()
		l.file = nil
		return fmt.Errorf("funlock: %w", err)
	}
	err := l.file.Close()
	l.file = nil
	return err
}
