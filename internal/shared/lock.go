package shared

import (
	"fmt"
	"os"
)

// FileLock is an exclusive advisory lock held on a sibling ".lock" file.
//
// The lock is shared between processes and between separate FileLocks in one
// process, so it serializes read-modify-write cycles on state files.
type FileLock struct {
	f *os.File
}

// LockFile blocks until it holds the exclusive lock for path.
func LockFile(path string) (*FileLock, error) {
	f, err := os.OpenFile(path+".lock", os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock for %s: %w", path, err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}
	return &FileLock{f: f}, nil
}

// Unlock releases the lock.
func (l *FileLock) Unlock() error {
	if err := unlockFile(l.f); err != nil {
		l.f.Close()
		return fmt.Errorf("failed to unlock %s: %w", l.f.Name(), err)
	}
	return l.f.Close()
}
