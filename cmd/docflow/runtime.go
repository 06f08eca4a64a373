// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pdiddy/docflow/internal/config"
	"github.com/pdiddy/docflow/internal/lease"
	"github.com/pdiddy/docflow/internal/pipeline"
	"github.com/pdiddy/docflow/internal/rasterize"
	"github.com/pdiddy/docflow/internal/recognize"
	"github.com/pdiddy/docflow/internal/task"
	"github.com/pdiddy/docflow/internal/taskstore"
)

// signalContext is cancelled on SIGINT or SIGTERM. A running pass stops
// after its current item and records the task as cancelled.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// openManager opens the configured store and returns a manager that takes
// a per-task lease under the tasks directory before every pass.
func openManager(ctx context.Context) (*task.Manager, func(), error) {
	store, closeStore, err := taskstore.Open(ctx, cfg.TaskManager, logger)
	if err != nil {
		return nil, nil, err
	}
	leases, err := lease.NewDir(cfg.TaskManager.TasksDir)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	m := task.NewManager(store, pipeline.Scanners(),
		task.WithLogger(logger),
		task.WithLocker(leases))
	return m, func() { closeStore() }, nil
}

// buildPipeline creates only the collaborators typ needs, so a
// pdf_to_image task runs without model credentials.
func buildPipeline(ctx context.Context, typ task.Type, promptsPath string) (*pipeline.Pipeline, func(), error) {
	needRaster, needConvert := pipeline.Needs(typ)
	opts := []pipeline.Option{pipeline.WithLogger(logger)}
	closer := func() {}

	if needRaster {
		opts = append(opts, pipeline.WithRasterizer(rasterize.New(cfg.PDF2Img, logger)))
	}
	if needConvert {
		prompts, err := config.LoadPrompts(promptsPath)
		if err != nil {
			return nil, nil, err
		}
		backend, closeBackend, err := recognize.New(ctx, cfg.Model, recognize.PromptsFrom(prompts.Img2Markdown))
		if err != nil {
			return nil, nil, err
		}
		closer = func() { closeBackend() }
		opts = append(opts, pipeline.WithConverter(recognize.NewConverter(backend, cfg.Img2Markdown, logger)))
	}
	return pipeline.New(cfg, opts...), closer, nil
}

// runOptions maps the task_manager settings onto one pass.
func runOptions(resume bool) task.RunOptions {
	return task.RunOptions{
		Resume:      resume,
		ItemDelay:   cfg.TaskManager.ItemDelay,
		BatchSize:   cfg.TaskManager.BatchSize,
		MaxAttempts: cfg.TaskManager.MaxAttempts,
		Out:         os.Stdout,
	}
}

// passError turns the outcome of a pass into the command's exit status.
func passError(res task.Result, err error) error {
	if err != nil {
		if errors.Is(err, task.ErrAlreadyRunning) {
			return fmt.Errorf("%w (another docflow process holds it)", err)
		}
		return err
	}
	switch res.Status {
	case task.StatusCancelled:
		return fmt.Errorf("task %s cancelled; run it again to resume", res.TaskID)
	case task.StatusFailed:
		return fmt.Errorf("task %s failed", res.TaskID)
	}
	if res.HasFailures() {
		return fmt.Errorf("%d item(s) failed", len(res.FailedItems))
	}
	return nil
}
