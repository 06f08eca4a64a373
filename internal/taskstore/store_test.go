// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package taskstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pdiddy/docflow/internal/task"
	"github.com/pdiddy/docflow/pkg/types"
)

func sampleRecord(id string, created time.Time) *task.Record {
	finished := created.Add(time.Minute)
	return &task.Record{
		ID:         id,
		Type:       task.TypePDFToImage,
		InputPath:  "pdfs",
		OutputPath: "images",
		Status:     task.StatusPartiallyFailed,
		Items: []task.Item{
			{Identity: "pdfs/a.pdf", Status: task.ItemSuccess, Attempts: 1, Output: "images/a", FinishedAt: &finished},
			{Identity: "pdfs/b.pdf", Status: task.ItemFailed, Attempts: 2, LastError: "timeout"},
			{Identity: "pdfs/c.pdf", Status: task.ItemPending},
		},
		CreatedAt: created,
		UpdatedAt: created.Add(2 * time.Minute),
	}
}

// runStoreContract exercises the behavior every backend must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) task.Store) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("put and get round trip", func(t *testing.T) {
		s := newStore(t)
		rec := sampleRecord("t-"+uuid.NewString(), base)
		require.NoError(t, s.Put(ctx, rec))

		got, err := s.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, rec.ID, got.ID)
		assert.Equal(t, rec.Items, got.Items)
		assert.Equal(t, rec.Status, got.Status)
		assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("put replaces", func(t *testing.T) {
		s := newStore(t)
		rec := sampleRecord("t-"+uuid.NewString(), base)
		require.NoError(t, s.Put(ctx, rec))

		rec.Items[1].Status = task.ItemSuccess
		rec.Status = task.StatusPending
		require.NoError(t, s.Put(ctx, rec))

		got, err := s.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, task.ItemSuccess, got.Items[1].Status)
		assert.Equal(t, task.StatusPending, got.Status)
	})

	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "missing-"+uuid.NewString())
		assert.ErrorIs(t, err, task.ErrNotFound)
	})

	t.Run("list summaries", func(t *testing.T) {
		s := newStore(t)
		a := sampleRecord("t-"+uuid.NewString(), base)
		b := sampleRecord("t-"+uuid.NewString(), base.Add(time.Hour))
		b.Type = task.TypeFullPipeline
		require.NoError(t, s.Put(ctx, a))
		require.NoError(t, s.Put(ctx, b))

		all, err := s.List(ctx)
		require.NoError(t, err)
		byID := make(map[string]task.Summary)
		for _, sum := range all {
			byID[sum.ID] = sum
		}
		require.Contains(t, byID, a.ID)
		require.Contains(t, byID, b.ID)
		assert.Equal(t, task.TypeFullPipeline, byID[b.ID].Type)
		assert.Equal(t, task.Counts{Total: 3, Succeeded: 1, Failed: 1, Pending: 1}, byID[a.ID].Counts)
		assert.Equal(t, "pdfs", byID[a.ID].InputPath)
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		rec := sampleRecord("t-"+uuid.NewString(), base)
		require.NoError(t, s.Put(ctx, rec))
		require.NoError(t, s.RequestCancel(ctx, rec.ID))

		require.NoError(t, s.Delete(ctx, rec.ID))
		_, err := s.Get(ctx, rec.ID)
		assert.ErrorIs(t, err, task.ErrNotFound)
		pending, err := s.CancelRequested(ctx, rec.ID)
		require.NoError(t, err)
		assert.False(t, pending)

		assert.NoError(t, s.Delete(ctx, rec.ID))
	})

	t.Run("cancel marker", func(t *testing.T) {
		s := newStore(t)
		id := "t-" + uuid.NewString()

		pending, err := s.CancelRequested(ctx, id)
		require.NoError(t, err)
		assert.False(t, pending)

		require.NoError(t, s.RequestCancel(ctx, id))
		require.NoError(t, s.RequestCancel(ctx, id))
		pending, err = s.CancelRequested(ctx, id)
		require.NoError(t, err)
		assert.True(t, pending)

		require.NoError(t, s.ClearCancel(ctx, id))
		require.NoError(t, s.ClearCancel(ctx, id))
		pending, err = s.CancelRequested(ctx, id)
		require.NoError(t, err)
		assert.False(t, pending)
	})

	t.Run("drives a manager end to end", func(t *testing.T) {
		s := newStore(t)
		scanner := task.ScannerFunc(func(context.Context, string) ([]string, error) {
			return []string{"x.pdf", "y.pdf"}, nil
		})
		m := task.NewManager(s, map[task.Type]task.Scanner{task.TypePDFToImage: scanner},
			task.WithLogger(zaptest.NewLogger(t)))

		id, err := m.Create(ctx, task.TypePDFToImage, "in", "out")
		require.NoError(t, err)

		calls := 0
		proc := task.ProcessorFunc(func(_ context.Context, identity string) (string, error) {
			calls++
			if identity == "y.pdf" && calls == 2 {
				return "", fmt.Errorf("flaky")
			}
			return "out/" + identity, nil
		})
		res, err := m.Start(ctx, id, proc, task.RunOptions{Resume: true})
		require.NoError(t, err)
		assert.Equal(t, task.StatusPartiallyFailed, res.Status)

		res, err = m.Start(ctx, id, proc, task.RunOptions{Resume: true})
		require.NoError(t, err)
		assert.Equal(t, task.StatusCompleted, res.Status)
		assert.Equal(t, 3, calls)
	})
}

func TestFileStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) task.Store {
		s, err := NewFile(t.TempDir(), "task_", zaptest.NewLogger(t))
		require.NoError(t, err)
		return s
	})
}

func TestFileStore_Layout(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFile(dir, "task_", zaptest.NewLogger(t))
	require.NoError(t, err)
	ctx := context.Background()

	rec := sampleRecord("abc", time.Now().UTC())
	require.NoError(t, s.Put(ctx, rec))
	require.NoError(t, s.RequestCancel(ctx, "abc"))

	assert.FileExists(t, filepath.Join(dir, "task_abc.json"))
	assert.FileExists(t, filepath.Join(dir, "task_abc.cancel"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp", "temp files must not survive a put")
	}
}

func TestFileStore_CorruptRecord(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFile(dir, "task_", zaptest.NewLogger(t))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, sampleRecord("good", time.Now().UTC())))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "task_bad.json"), []byte("{not json"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o644))

	_, err = s.Get(ctx, "bad")
	assert.ErrorIs(t, err, task.ErrFatal)

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "good", all[0].ID)
}

func TestFileStore_RejectsPathLikeIDs(t *testing.T) {
	s, err := NewFile(t.TempDir(), "task_", nil)
	require.NoError(t, err)

	for _, id := range []string{"", "../escape", `a\b`, ".."} {
		_, err := s.Get(context.Background(), id)
		assert.ErrorIs(t, err, task.ErrInvalidInput, id)
	}
}

func TestSQLiteStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) task.Store {
		s, err := NewSQLite(t.TempDir())
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestSQLiteStore_ListNewestFirst(t *testing.T) {
	s, err := NewSQLite(t.TempDir())
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.Put(ctx, sampleRecord("old", base)))
	require.NoError(t, s.Put(ctx, sampleRecord("new", base.Add(time.Hour))))

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "new", all[0].ID)
	assert.Equal(t, "old", all[1].ID)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewSQLite(dir)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, sampleRecord("kept", time.Now().UTC())))
	require.NoError(t, s.Close())

	s, err = NewSQLite(dir)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get(ctx, "kept")
	require.NoError(t, err)
	assert.Len(t, got.Items, 3)
}

func TestFirestoreStore(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	runStoreContract(t, func(t *testing.T) task.Store {
		collection := "tasks_" + uuid.NewString()[:8]
		s, err := NewFirestore(context.Background(), "docflow-test", collection)
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestOpen(t *testing.T) {
	tests := []struct {
		name    string
		store   types.StoreBackend
		wantErr error
	}{
		{"file", types.StoreFile, nil},
		{"default", "", nil},
		{"sqlite", types.StoreSQLite, nil},
		{"firestore without project", types.StoreFirestore, task.ErrInvalidInput},
		{"unknown", "redis", task.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := types.TaskManagerConfig{TasksDir: t.TempDir(), TaskFilePrefix: "task_", Store: tt.store}
			s, closeFn, err := Open(context.Background(), cfg, zaptest.NewLogger(t))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, s)
			assert.NoError(t, closeFn())
		})
	}
}
