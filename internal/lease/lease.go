// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package lease guards a task against two concurrent runs across processes.
// A lease is an exclusive advisory lock on <dir>/<id>.lock held for the
// duration of a pass. The operating system drops the lock when the holder
// exits, so a crashed run never blocks the next start.
package lease

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pdiddy/docflow/internal/task"
)

// Dir hands out leases for task ids under one directory. It satisfies
// task.Locker.
type Dir struct {
	path string
}

// NewDir returns a lease directory, creating it if needed.
func NewDir(path string) (*Dir, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating lease directory: %w", err)
	}
	return &Dir{path: path}, nil
}

// Lock acquires the lease for id without waiting. A lease held elsewhere
// yields an error wrapping task.ErrAlreadyRunning.
func (d *Dir) Lock(id string) (func() error, error) {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return nil, fmt.Errorf("%w: invalid task id %q", task.ErrInvalidInput, id)
	}
	p := filepath.Join(d.path, "."+id+".lock")
	f, err := os.OpenFile(p, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening lease %s: %w", p, err)
	}

	if err := tryLock(f); err != nil {
		holder := readHolder(f)
		f.Close()
		if holder != "" {
			return nil, fmt.Errorf("%w: task %s is held by pid %s", task.ErrAlreadyRunning, id, holder)
		}
		return nil, fmt.Errorf("%w: task %s", task.ErrAlreadyRunning, id)
	}

	if err := f.Truncate(0); err == nil {
		f.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0)
	}

	return func() error {
		f.Truncate(0)
		if err := unlock(f); err != nil {
			f.Close()
			return fmt.Errorf("releasing lease %s: %w", p, err)
		}
		return f.Close()
	}, nil
}

func readHolder(f *os.File) string {
	buf := make([]byte, 32)
	n, _ := f.ReadAt(buf, 0)
	return strings.TrimSpace(string(buf[:n]))
}
