//go:build !unix

package persist

// FileLock is a no-op on platforms without flock(2).
type FileLock struct {
	path string
}

// NewFileLock creates a FileLock guarding the storage file at storagePath.
func NewFileLock(storagePath string) *FileLock {
	return &FileLock{path: storagePath + ".lock"}
}

// Path returns the lock file location.
func (fl *FileLock) Path() string {
	return fl.path
}

// TryLock always succeeds.
func (fl *FileLock) TryLock() error { return nil }

// Unlock always succeeds.
func (fl *FileLock) Unlock() error { return nil }
