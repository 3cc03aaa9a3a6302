// Package instancelock keeps a second labeler process off a media root.
// Triage serializes moves inside one process only, so two processes on the
// same root could race; the lock turns that into a startup failure.
package instancelock

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/platelab/labeler/internal/errors"
)

// ErrHeld is returned when another process holds the lock.
var ErrHeld = errors.NewStd("media root is in use by another labeler process")

// Lock is an exclusive advisory lock on a file in the media root.
type Lock struct {
	path string
	lock *flock.Flock
}

// Acquire takes the lock file name in dir without blocking.
func Acquire(dir, name string) (*Lock, error) {
	path := filepath.Join(dir, name)
	l := &Lock{path: path, lock: flock.New(path)}

	ok, err := l.lock.TryLock()
	if err != nil {
		return nil, errors.New(fmt.Errorf("acquire lock %s: %w", path, err)).
			Component("instancelock").
			Category(errors.CategoryFileIO).
			Build()
	}
	if !ok {
		return nil, errors.New(fmt.Errorf("%w: %s", ErrHeld, path)).
			Component("instancelock").
			Category(errors.CategoryConflict).
			Build()
	}
	return l, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Release unlocks. The lock file is left in place.
func (l *Lock) Release() error {
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("release lock %s: %w", l.path, err)
	}
	return nil
}
