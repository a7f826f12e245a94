// Package lock provides the process-wide run lock that keeps overlapping
// backup invocations from running concurrently on one host.
package lock

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// ErrHeld reports that another live process owns the lock. Callers treat it
// as a clean skip, not a failure.
var ErrHeld = errors.New("run lock held by a live process")

// FileLock is a filesystem marker holding the owning process's PID. A lock
// whose recorded owner is no longer alive is stale and gets reclaimed by
// the next acquirer.
type FileLock struct {
	path string

	// alive is swapped out in tests.
	alive func(pid int) bool
}

// New returns a FileLock backed by the marker file at path.
func New(path string) *FileLock {
	return &FileLock{path: path, alive: processAlive}
}

// Acquire takes the lock for the current process. The marker is created
// exclusively, so two racing acquirers cannot both succeed; when the marker
// already exists, a live owner yields ErrHeld and a stale one is removed
// before one retry.
func (l *FileLock) Acquire() error {
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, werr := f.WriteString(strconv.Itoa(os.Getpid()))
			if cerr := f.Close(); werr == nil {
				werr = cerr
			}
			if werr != nil {
				_ = os.Remove(l.path)
				return fmt.Errorf("write lock file %q: %w", l.path, werr)
			}
			return nil
		}
		if !errors.Is(err, os.ErrExist) {
			return fmt.Errorf("create lock file %q: %w", l.path, err)
		}
		if pid, ok := l.ownerPID(); ok && l.alive(pid) {
			return fmt.Errorf("%w (pid %d)", ErrHeld, pid)
		}
		// Stale or unreadable marker: reclaim it and retry the exclusive
		// create, so a concurrent reclaimer still loses the race cleanly.
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove stale lock %q: %w", l.path, err)
		}
	}
	return fmt.Errorf("acquire lock %q: lost reclaim race twice", l.path)
}

// Release removes the marker. Safe to call when the lock was never taken.
func (l *FileLock) Release() {
	_ = os.Remove(l.path)
}

// ownerPID reads the recorded owner, reporting ok=false if the marker is
// absent or unparseable.
func (l *FileLock) ownerPID() (int, bool) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// processAlive checks whether pid names a live process using signal 0.
// EPERM still means the process exists.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}
