// Package lock enforces single-instance execution per lock location.
//
// A run owns its lock by atomically creating the lock directory; a marker
// file inside records the owning process id. Acquisition fails without
// touching an existing lock, and release refuses to remove a lock whose
// marker names a different process.
package lock

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"routinely/internal/logging"
)

// markerName is the file inside the lock directory holding the owner pid.
const markerName = "pid"

// ErrHeld is the sentinel for an existing lock: another run is in progress.
// Callers map it to the concurrency-conflict exit code.
var ErrHeld = errors.New("lock already held by another run")

// Lock is the handle for one lock location.
//
// Zero value is unusable; create with [New]. Acquire and Release are safe
// for concurrent use on the same handle: fatal escalation releases from a
// timer or signal goroutine while the run goroutine's deferred release may
// fire too.
type Lock struct {
	dir  string
	sink *logging.Sink

	mu       sync.Mutex
	acquired bool
}

// New creates a handle for the lock directory at dir.
func New(dir string, sink *logging.Sink) *Lock {
	return &Lock{dir: dir, sink: sink}
}

// Dir returns the lock location.
func (l *Lock) Dir() string { return l.dir }

// Acquire atomically creates the lock directory and writes the pid marker.
//
// Returns [ErrHeld] when the directory already exists. Any other failure is
// returned as-is after cleaning up a half-created lock. There is no
// check-then-create window: os.Mkdir itself is the atomic claim.
func (l *Lock) Acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if parent := filepath.Dir(l.dir); parent != "." {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return err
		}
	}
	if err := os.Mkdir(l.dir, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrHeld
		}
		return err
	}
	pid := os.Getpid()
	if err := os.WriteFile(filepath.Join(l.dir, markerName), []byte(strconv.Itoa(pid)), 0o644); err != nil {
		os.RemoveAll(l.dir)
		return err
	}
	l.acquired = true
	l.sink.Infof("Lock acquired: %s (pid %d)", l.dir, pid)
	return nil
}

// Release removes the lock if this process still owns it.
//
// No-op when never acquired. A marker recording a foreign pid leaves the
// lock in place; a missing marker is treated as stale and removed
// best-effort. Release never returns or raises an error: it commonly runs
// during shutdown where a new failure would mask the original one.
func (l *Lock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.acquired {
		return
	}
	l.acquired = false

	data, err := os.ReadFile(filepath.Join(l.dir, markerName))
	if err != nil {
		if rmErr := os.RemoveAll(l.dir); rmErr != nil {
			l.sink.Warnf("Error removing stale lock: %v", rmErr)
		} else {
			l.sink.Infof("Stale lock removed: %s", l.dir)
		}
		return
	}

	if strings.TrimSpace(string(data)) != strconv.Itoa(os.Getpid()) {
		l.sink.Warnf("Lock %s owned by different pid - leaving it in place", l.dir)
		return
	}

	if err := os.RemoveAll(l.dir); err != nil {
		l.sink.Warnf("Error while releasing lock: %v", err)
		return
	}
	l.sink.Infof("Lock released: %s", l.dir)
}
