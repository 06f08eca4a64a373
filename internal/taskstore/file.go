// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package taskstore holds the durable backends for task records: one JSON
// file per task, a SQLite database, or a Firestore collection. Every
// backend writes a record atomically so a crash never leaves a torn
// record behind.
package taskstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/docflow/internal/fsutil"
	"github.com/pdiddy/docflow/internal/task"
)

const (
	recordExt = ".json"
	cancelExt = ".cancel"
)

// File stores each task as <dir>/<prefix><id>.json. Writes go to a temp
// file in the same directory, are synced, then renamed over the target.
type File struct {
	dir    string
	prefix string
	logger *zap.Logger
}

// NewFile returns a file store rooted at dir, creating dir if needed.
func NewFile(dir, prefix string, logger *zap.Logger) (*File, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: tasks directory is empty", task.ErrInvalidInput)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating tasks directory: %v", task.ErrStore, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &File{dir: dir, prefix: prefix, logger: logger}, nil
}

func (s *File) recordPath(id string) string {
	return filepath.Join(s.dir, s.prefix+id+recordExt)
}

func (s *File) cancelPath(id string) string {
	return filepath.Join(s.dir, s.prefix+id+cancelExt)
}

// Put replaces the stored record for rec.ID.
func (s *File) Put(_ context.Context, rec *task.Record) error {
	if err := validID(rec.ID); err != nil {
		return err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding task %s: %v", task.ErrStore, rec.ID, err)
	}
	if err := fsutil.WriteFile(s.recordPath(rec.ID), data); err != nil {
		return fmt.Errorf("%w: writing task %s: %v", task.ErrStore, rec.ID, err)
	}
	return nil
}

// Get loads one record. A file that exists but does not decode is reported
// as fatal rather than treated as missing.
func (s *File) Get(_ context.Context, id string) (*task.Record, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.recordPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: task %s", task.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading task %s: %v", task.ErrStore, id, err)
	}
	return decodeRecord(id, data)
}

// List summarizes every record in the directory. Files that fail to decode
// are logged and left out.
func (s *File) List(ctx context.Context) ([]task.Summary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: reading tasks directory: %v", task.ErrStore, err)
	}

	var out []task.Summary
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, s.prefix) || !strings.HasSuffix(name, recordExt) {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(name, s.prefix), recordExt)
		rec, err := s.Get(ctx, id)
		if err != nil {
			s.logger.Warn("skipping unreadable task file", zap.String("file", name), zap.Error(err))
			continue
		}
		out = append(out, rec.Summary())
	}
	return out, nil
}

// Delete removes the record and any pending cancel marker. Deleting a
// missing task is not an error.
func (s *File) Delete(_ context.Context, id string) error {
	if err := validID(id); err != nil {
		return err
	}
	for _, p := range []string{s.recordPath(id), s.cancelPath(id)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: deleting %s: %v", task.ErrStore, filepath.Base(p), err)
		}
	}
	return nil
}

// RequestCancel drops a marker file next to the record.
func (s *File) RequestCancel(_ context.Context, id string) error {
	if err := validID(id); err != nil {
		return err
	}
	if err := os.WriteFile(s.cancelPath(id), nil, 0o644); err != nil {
		return fmt.Errorf("%w: writing cancel marker: %v", task.ErrStore, err)
	}
	return nil
}

func (s *File) CancelRequested(_ context.Context, id string) (bool, error) {
	_, err := os.Stat(s.cancelPath(id))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("%w: checking cancel marker: %v", task.ErrStore, err)
	}
}

func (s *File) ClearCancel(_ context.Context, id string) error {
	if err := os.Remove(s.cancelPath(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: clearing cancel marker: %v", task.ErrStore, err)
	}
	return nil
}

func marshalRecord(rec *task.Record) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding task %s: %v", task.ErrStore, rec.ID, err)
	}
	return data, nil
}

func decodeRecord(id string, data []byte) (*task.Record, error) {
	var rec task.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: task %s is corrupt: %v", task.ErrFatal, id, err)
	}
	return &rec, nil
}

// validID rejects ids that would escape the store's namespace.
func validID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return fmt.Errorf("%w: invalid task id %q", task.ErrInvalidInput, id)
	}
	return nil
}
