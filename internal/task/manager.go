// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package task

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager is the public face of the task subsystem: create, start or
// resume, cancel, status, list and delete. Status and listing read the
// Store only and never wait on a running engine.
type Manager struct {
	store    Store
	engine   *Engine
	scanners map[Type]Scanner
	locker   Locker
	logger   *zap.Logger
	newID    func() string
	now      func() time.Time

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used by the manager and its engine.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithLocker adds a cross-process run lock on top of the in-process guard.
func WithLocker(l Locker) Option {
	return func(m *Manager) { m.locker = l }
}

// WithClock overrides the time source. Tests use it for stable timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIDGenerator overrides task id generation.
func WithIDGenerator(gen func() string) Option {
	return func(m *Manager) { m.newID = gen }
}

// NewManager builds a manager over store. scanners maps each task type to
// the scanner that discovers its items at creation.
func NewManager(store Store, scanners map[Type]Scanner, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		scanners: scanners,
		logger:   zap.NewNop(),
		newID:    func() string { return uuid.NewString() },
		now:      time.Now,
		active:   make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	m.engine = NewEngine(store, m.logger)
	m.engine.now = m.now
	return m
}

// Create scans inputPath for items, persists a new pending record and
// returns its id. Nothing is persisted when validation or scanning fails.
func (m *Manager) Create(ctx context.Context, typ Type, inputPath, outputPath string) (string, error) {
	inputPath = strings.TrimSpace(inputPath)
	outputPath = strings.TrimSpace(outputPath)
	if !typ.Valid() {
		return "", fmt.Errorf("%w: unknown task type %q", ErrInvalidInput, typ)
	}
	if inputPath == "" || outputPath == "" {
		return "", fmt.Errorf("%w: input and output paths are required", ErrInvalidInput)
	}
	scanner, ok := m.scanners[typ]
	if !ok {
		return "", fmt.Errorf("%w: no scanner registered for %s", ErrInvalidInput, typ)
	}

	found, err := scanner.Scan(ctx, inputPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return "", fmt.Errorf("%w: scanning %s: %v", ErrFatal, inputPath, err)
	}

	items := make([]Item, 0, len(found))
	seen := make(map[string]bool, len(found))
	for _, identity := range found {
		if identity == "" || seen[identity] {
			continue
		}
		seen[identity] = true
		items = append(items, Item{Identity: identity, Status: ItemPending})
	}
	if len(items) == 0 {
		return "", fmt.Errorf("%w: no items found under %s for %s", ErrInvalidInput, inputPath, typ)
	}

	now := m.now()
	rec := &Record{
		ID:         m.newID(),
		Type:       typ,
		InputPath:  inputPath,
		OutputPath: outputPath,
		Status:     StatusPending,
		Items:      items,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := m.store.Put(ctx, rec); err != nil {
		return "", err
	}
	m.logger.Info("task created", zap.String("task_id", rec.ID), zap.String("task_type", string(typ)),
		zap.Int("items", len(items)))
	return rec.ID, nil
}

// Start runs a pass over the task and returns when the pass ends or is
// cancelled. At most one pass per task id runs at a time; a concurrent
// Start fails with ErrAlreadyRunning.
func (m *Manager) Start(ctx context.Context, id string, proc Processor, opts RunOptions) (Result, error) {
	if proc == nil {
		return Result{TaskID: id}, fmt.Errorf("%w: nil processor", ErrInvalidInput)
	}
	if _, err := m.store.Get(ctx, id); err != nil {
		return Result{TaskID: id}, err
	}

	runCtx, release, err := m.acquire(ctx, id)
	if err != nil {
		return Result{TaskID: id}, err
	}
	defer release()

	return m.engine.Run(runCtx, id, proc, opts)
}

func (m *Manager) acquire(ctx context.Context, id string) (context.Context, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, busy := m.active[id]; busy {
		return nil, nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, id)
	}

	unlock := func() error { return nil }
	if m.locker != nil {
		u, err := m.locker.Lock(id)
		if err != nil {
			return nil, nil, err
		}
		unlock = u
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.active[id] = cancel

	release := func() {
		cancel()
		m.mu.Lock()
		delete(m.active, id)
		m.mu.Unlock()
		if err := unlock(); err != nil {
			m.logger.Warn("releasing task lock", zap.String("task_id", id), zap.Error(err))
		}
	}
	return runCtx, release, nil
}

// Cancel asks a running pass to stop after its current item. It does not
// wait for the engine. Cancelling a task that is not running is a no-op.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	rec, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	cancel, local := m.active[id]
	m.mu.Unlock()

	if !local && rec.Status != StatusRunning {
		return nil
	}
	if local {
		cancel()
	}
	if err := m.store.RequestCancel(ctx, id); err != nil {
		return err
	}
	m.logger.Info("task cancel requested", zap.String("task_id", id))
	return nil
}

// Status returns the last persisted summary of a task.
func (m *Manager) Status(ctx context.Context, id string) (Summary, error) {
	rec, err := m.store.Get(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	return rec.Summary(), nil
}

// Get returns the full persisted record of a task.
func (m *Manager) Get(ctx context.Context, id string) (*Record, error) {
	return m.store.Get(ctx, id)
}

// List returns task summaries, newest first. A non-empty typ filters by
// task type.
func (m *Manager) List(ctx context.Context, typ Type) ([]Summary, error) {
	all, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, s := range all {
		if typ == "" || s.Type == typ {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Delete removes a task record. A task running in this process cannot be
// deleted.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	_, busy := m.active[id]
	m.mu.Unlock()
	if busy {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, id)
	}
	return m.store.Delete(ctx, id)
}
