// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package task

import "context"

// Store persists task records keyed by id. Implementations live in
// internal/taskstore.
//
// Put must be atomic: after a crash, Get returns either the previous record
// or the new one, never a mix. Get fails with ErrNotFound for unknown ids;
// any other failure wraps ErrStore. Delete of a missing id is not an error.
type Store interface {
	Put(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context) ([]Summary, error)
	Delete(ctx context.Context, id string) error

	// RequestCancel records a cancel request for a task so that an engine
	// running in another process observes it between items.
	RequestCancel(ctx context.Context, id string) error

	// CancelRequested reports whether a cancel request is pending.
	CancelRequested(ctx context.Context, id string) (bool, error)

	// ClearCancel drops any pending cancel request.
	ClearCancel(ctx context.Context, id string) error
}

// Scanner discovers the ordered work items under an input root. It runs
// once, when a task is created.
type Scanner interface {
	Scan(ctx context.Context, inputPath string) ([]string, error)
}

// ScannerFunc adapts a function to the Scanner interface.
type ScannerFunc func(ctx context.Context, inputPath string) ([]string, error)

// Scan calls f.
func (f ScannerFunc) Scan(ctx context.Context, inputPath string) ([]string, error) {
	return f(ctx, inputPath)
}

// Processor handles one item. It returns where it wrote its output (may be
// empty). Returning an error wrapping ErrSkip marks the item skipped;
// wrapping ErrFatal aborts the pass; any other error fails only the item.
type Processor interface {
	Process(ctx context.Context, identity string) (output string, err error)
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, identity string) (string, error)

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, identity string) (string, error) {
	return f(ctx, identity)
}

// Locker grants exclusive run rights on a task id across processes. Lock
// returns an error wrapping ErrAlreadyRunning when another holder exists.
type Locker interface {
	Lock(id string) (unlock func() error, err error)
}
