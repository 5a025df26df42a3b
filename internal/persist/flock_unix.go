//go:build unix

package persist

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	lullerrors "github.com/Iron-Ham/lull/internal/errors"
)

// FileLock provides cross-process mutual exclusion over a storage file
// using flock(2). The lock lives in a sibling file named path+".lock".
type FileLock struct {
	path string
	file *os.File
}

// NewFileLock creates a FileLock guarding the storage file at storagePath.
func NewFileLock(storagePath string) *FileLock {
	return &FileLock{path: storagePath + ".lock"}
}

// Path returns the lock file location.
func (fl *FileLock) Path() string {
	return fl.path
}

// TryLock acquires the lock without blocking. It returns an error matching
// errors.ErrLocked when another process holds it.
func (fl *FileLock) TryLock() error {
	if fl.file != nil {
		return nil
	}

	f, err := os.OpenFile(fl.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if err == unix.EWOULDBLOCK {
			return fmt.Errorf("%w: %s", lullerrors.ErrLocked, fl.path)
		}
		return fmt.Errorf("flock: %w", err)
	}

	fl.file = f
	return nil
}

// Unlock releases the lock and closes the lock file.
func (fl *FileLock) Unlock() error {
	if fl.file == nil {
		return nil
	}

	if err := unix.Flock(int(fl.file.Fd()), unix.LOCK_UN); err != nil {
		_ = fl.file.Close()
		fl.file = nil
		return fmt.Errorf("funlock: %w", err)
	}

	err := fl.file.Close()
	fl.file = nil
	return err
}
