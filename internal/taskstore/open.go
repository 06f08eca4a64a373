// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package taskstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pdiddy/docflow/internal/task"
	"github.com/pdiddy/docflow/pkg/types"
)

// Closer is returned alongside a store; call it when done.
type Closer func() error

// Open builds the backend selected by cfg.Store.
func Open(ctx context.Context, cfg types.TaskManagerConfig, logger *zap.Logger) (task.Store, Closer, error) {
	noop := func() error { return nil }

	switch cfg.Store {
	case types.StoreFile, "":
		s, err := NewFile(cfg.TasksDir, cfg.TaskFilePrefix, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	case types.StoreSQLite:
		s, err := NewSQLite(cfg.TasksDir)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case types.StoreFirestore:
		s, err := NewFirestore(ctx, cfg.FirestoreProject, cfg.FirestoreCollection)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown task store %q", task.ErrInvalidInput, cfg.Store)
	}
}
