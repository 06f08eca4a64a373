// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package task

import "errors"

var (
	// ErrNotFound reports an unknown task id.
	ErrNotFound = errors.New("task not found")

	// ErrInvalidInput reports a create request with bad paths, an unknown
	// type, or an input that yields zero items.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStore reports a persistence failure. The previously committed
	// record is left intact.
	ErrStore = errors.New("task store error")

	// ErrFatal reports a failure outside any single item that aborts the
	// whole pass. Processors wrap it to escalate.
	ErrFatal = errors.New("fatal task error")

	// ErrAlreadyRunning reports a start while another engine holds the task.
	ErrAlreadyRunning = errors.New("task already running")

	// ErrSkip is returned by a processor to mark an item skipped, for
	// example when its output already exists.
	ErrSkip = errors.New("item skipped")
)
