// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
)

// RunOptions tunes one pass of the engine. They are read once per start.
type RunOptions struct {
	// Resume skips items that already succeeded or were skipped. When false
	// every item is reset to pending with zero attempts first.
	Resume bool

	// ItemDelay is the pause between two processed items, for pacing calls
	// into a rate-limited service.
	ItemDelay time.Duration

	// BatchSize is how many processed items may accumulate before the
	// record is persisted. Values below 1 mean after every item.
	BatchSize int

	// MaxAttempts caps how often a failed item is retried across resumes.
	// Zero means no cap.
	MaxAttempts int

	// Out receives one progress line per item. Nil discards.
	Out io.Writer
}

// Result describes how a pass ended. The per-pass counters cover only items
// processed in this pass.
type Result struct {
	TaskID string
	Status Status

	Processed int
	Succeeded int
	Failed    int
	Skipped   int

	// Exhausted counts failed items left alone because they reached
	// MaxAttempts.
	Exhausted int

	// FailedItems lists every item of the task still failed after the pass.
	FailedItems []string
}

// HasFailures reports whether the task still has failed items.
func (r Result) HasFailures() bool {
	return len(r.FailedItems) > 0
}

// Engine drives one task at a time through its items, strictly in order.
// It holds no task state between runs; the Store is consulted on every run.
type Engine struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewEngine returns an engine persisting through store.
func NewEngine(store Store, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: store, logger: logger, now: time.Now}
}

// Run executes one pass over the task's items. Cancellation is observed
// between items only, through ctx or a cancel request in the store; the
// in-flight item always finishes and is recorded first.
//
// A cancelled pass returns a StatusCancelled result and a nil error. Store
// failures return an error wrapping ErrStore and leave the record at its
// last persisted state. A processor error wrapping ErrFatal marks the task
// failed and is returned.
func (e *Engine) Run(ctx context.Context, id string, proc Processor, opts RunOptions) (Result, error) {
	res := Result{TaskID: id}

	rec, err := e.store.Get(ctx, id)
	if err != nil {
		return res, err
	}

	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	batch := opts.BatchSize
	if batch < 1 {
		batch = 1
	}

	// Writes must land even after ctx is cancelled.
	pctx := context.WithoutCancel(ctx)
	log := e.logger.With(zap.String("task_id", id), zap.String("task_type", string(rec.Type)))

	if err := e.store.ClearCancel(pctx, id); err != nil {
		return res, err
	}

	if !opts.Resume {
		rec.reset()
	}
	started := e.now()
	rec.Status = StatusRunning
	rec.ErrorSummary = ""
	if rec.StartedAt == nil {
		rec.StartedAt = &started
	}
	if err := e.persist(pctx, rec); err != nil {
		return res, err
	}
	log.Info("task pass started", zap.Bool("resume", opts.Resume), zap.Int("items", len(rec.Items)))

	dirty := 0
	for i := range rec.Items {
		it := &rec.Items[i]
		if it.done() {
			continue
		}
		if it.Status == ItemFailed && opts.MaxAttempts > 0 && it.Attempts >= opts.MaxAttempts {
			res.Exhausted++
			fmt.Fprintf(out, "exhausted %s (%d attempts)\n", it.Identity, it.Attempts)
			continue
		}

		if res.Processed > 0 && opts.ItemDelay > 0 {
			sleep(ctx, opts.ItemDelay)
		}

		cancelled, err := e.cancelRequested(ctx, pctx, id)
		if err != nil {
			return res, err
		}
		if cancelled {
			return e.cancel(pctx, rec, res, log)
		}

		output, perr := proc.Process(pctx, it.Identity)
		if errors.Is(perr, ErrFatal) {
			return e.abort(pctx, rec, res, perr, log)
		}

		finished := e.now()
		it.Attempts++
		it.FinishedAt = &finished
		res.Processed++

		switch {
		case perr == nil:
			it.Status = ItemSuccess
			it.LastError = ""
			it.Output = output
			res.Succeeded++
			fmt.Fprintf(out, "ok      %s\n", it.Identity)
			log.Debug("item succeeded", zap.String("item", it.Identity), zap.Int("attempt", it.Attempts))
		case errors.Is(perr, ErrSkip):
			it.Status = ItemSkipped
			it.LastError = ""
			it.Output = output
			res.Skipped++
			fmt.Fprintf(out, "skipped %s\n", it.Identity)
			log.Debug("item skipped", zap.String("item", it.Identity))
		default:
			it.Status = ItemFailed
			it.LastError = perr.Error()
			res.Failed++
			fmt.Fprintf(out, "failed  %s: %v\n", it.Identity, perr)
			log.Warn("item failed", zap.String("item", it.Identity), zap.Int("attempt", it.Attempts), zap.Error(perr))
		}

		dirty++
		if dirty >= batch {
			if err := e.persist(pctx, rec); err != nil {
				return res, err
			}
			dirty = 0
		}
	}

	rec.Status = Derive(rec.Counts())
	if res.Processed > 0 || rec.FinishedAt == nil {
		finished := e.now()
		rec.FinishedAt = &finished
	}
	if err := e.persist(pctx, rec); err != nil {
		return res, err
	}
	if err := e.store.ClearCancel(pctx, id); err != nil {
		log.Warn("clearing cancel request", zap.Error(err))
	}

	res.Status = rec.Status
	res.FailedItems = failedIdentities(rec)
	fmt.Fprintf(out, "\nPass summary: %d succeeded, %d skipped, %d failed, %d exhausted (processed: %d)\n",
		res.Succeeded, res.Skipped, res.Failed, res.Exhausted, res.Processed)
	log.Info("task pass finished", zap.String("status", string(rec.Status)),
		zap.Int("processed", res.Processed), zap.Int("failed", len(res.FailedItems)))
	return res, nil
}

func (e *Engine) cancelRequested(ctx, pctx context.Context, id string) (bool, error) {
	if ctx.Err() != nil {
		return true, nil
	}
	return e.store.CancelRequested(pctx, id)
}

func (e *Engine) cancel(pctx context.Context, rec *Record, res Result, log *zap.Logger) (Result, error) {
	rec.Status = StatusCancelled
	if err := e.persist(pctx, rec); err != nil {
		return res, err
	}
	if err := e.store.ClearCancel(pctx, rec.ID); err != nil {
		log.Warn("clearing cancel request", zap.Error(err))
	}
	res.Status = StatusCancelled
	res.FailedItems = failedIdentities(rec)
	log.Info("task pass cancelled", zap.Int("processed", res.Processed))
	return res, nil
}

// abort ends the pass on a fatal error. The item being processed keeps its
// previous state since the failure was not its own.
func (e *Engine) abort(pctx context.Context, rec *Record, res Result, cause error, log *zap.Logger) (Result, error) {
	finished := e.now()
	rec.Status = StatusFailed
	rec.ErrorSummary = cause.Error()
	rec.FinishedAt = &finished
	res.Status = StatusFailed
	res.FailedItems = failedIdentities(rec)
	log.Error("task pass aborted", zap.Error(cause))
	if err := e.persist(pctx, rec); err != nil {
		return res, fmt.Errorf("%w (after %v)", err, cause)
	}
	return res, fmt.Errorf("task %s: %w", rec.ID, cause)
}

func (e *Engine) persist(ctx context.Context, rec *Record) error {
	rec.UpdatedAt = e.now()
	return e.store.Put(ctx, rec.clone())
}

func failedIdentities(rec *Record) []string {
	var ids []string
	for _, it := range rec.FailedItems() {
		ids = append(ids, it.Identity)
	}
	return ids
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
