// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

//go:build !unix

package lease

import (
	"errors"
	"os"
	"sync"
)

// Without flock the lease only guards against runs in this process.
var (
	heldMu sync.Mutex
	held   = map[string]bool{}
)

func tryLock(f *os.File) error {
	heldMu.Lock()
	defer heldMu.Unlock()
	if held[f.Name()] {
		return errors.New("lease held")
	}
	held[f.Name()] = true
	return nil
}

func unlock(f *os.File) error {
	heldMu.Lock()
	defer heldMu.Unlock()
	delete(held, f.Name())
	return nil
}
