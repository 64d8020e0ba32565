package merge

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

const lockName = ".eds.lock"

// storeLock is a whole-store advisory lock. Exactly one merge run may hold
// it; a second run fails fast instead of interleaving table writes.
type storeLock struct {
	path string
}

// acquireLock creates the lock file with O_EXCL, taking over a stale lock
// whose owning process is gone.
func acquireLock(dir string) (*storeLock, error) {
	path := filepath.Join(dir, lockName)
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			if cerr := f.Close(); cerr != nil {
				os.Remove(path)
				return nil, fmt.Errorf("merge: write lock %s: %w", path, cerr)
			}
			return &storeLock{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("merge: lock %s: %w", path, err)
		}
		if !lockIsStale(path) {
			return nil, fmt.Errorf("merge: store %s is locked by another run", dir)
		}
		os.Remove(path)
	}
	return nil, fmt.Errorf("merge: store %s is locked by another run", dir)
}

func (l *storeLock) release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("merge: release lock %s: %w", l.path, err)
	}
	return nil
}

// lockIsStale reports whether the lock's recorded PID no longer names a
// running process. An unreadable or malformed lock is treated as live.
func lockIsStale(path string) bool {
	raw, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return true
	}
	return proc.Signal(syscall.Signal(0)) != nil
}
