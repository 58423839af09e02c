// Package lock provides the single-writer guard for one repository binding.
//
// A Lock combines an in-process mutex with an advisory file lock so that two
// bindings in one process, and two processes on one working directory, never
// run orchestrations concurrently. Acquisition never waits: a held lock is
// reported as busy.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/corpeningc/catsync/internal/errors"
)

type Lock struct {
	mu   sync.Mutex
	file *flock.Flock
	path string
}

// New creates a lock backed by the file at path. An empty path gives an
// in-process only lock.
func New(path string) *Lock {
	l := &Lock{path: path}
	if path != "" {
		l.file = flock.New(path)
	}
	return l
}

// Path returns the backing lock file path.
func (l *Lock) Path() string {
	return l.path
}

// TryAcquire takes the lock for op or fails with a busy error. The returned
// release func must be called exactly once.
func (l *Lock) TryAcquire(op string) (func(), error) {
	if !l.mu.TryLock() {
		return nil, errors.Busy(op)
	}

	if l.file != nil {
		if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
			l.mu.Unlock()
			return nil, errors.IO(op, fmt.Errorf("creating lock dir: %w", err))
		}
		locked, err := l.file.TryLock()
		if err != nil {
			l.mu.Unlock()
			return nil, errors.IO(op, fmt.Errorf("acquiring lock %s: %w", l.path, err))
		}
		if !locked {
			l.mu.Unlock()
			return nil, errors.Busy(op)
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if l.file != nil {
				_ = l.file.Unlock()
			}
			l.mu.Unlock()
		})
	}, nil
}
