// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package task

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// memStore is an in-memory Store for tests. Records are stored as JSON so
// callers never share memory with the stored copy.
type memStore struct {
	mu      sync.Mutex
	records map[string][]byte
	cancels map[string]bool
	puts    int

	// failPutAfter makes every Put beyond the given count fail. Zero disables.
	failPutAfter int
}

func newMemStore() *memStore {
	return &memStore{
		records: make(map[string][]byte),
		cancels: make(map[string]bool),
	}
}

func (s *memStore) Put(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPutAfter > 0 && s.puts >= s.failPutAfter {
		return fmt.Errorf("%w: disk full", ErrStore)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	s.records[rec.ID] = data
	s.puts++
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return &rec, nil
}

func (s *memStore) List(ctx context.Context) ([]Summary, error) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	var out []Summary
	for _, id := range ids {
		rec, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, rec.Summary())
	}
	return out, nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	delete(s.cancels, id)
	return nil
}

func (s *memStore) RequestCancel(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels[id] = true
	return nil
}

func (s *memStore) CancelRequested(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancels[id], nil
}

func (s *memStore) ClearCancel(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cancels, id)
	return nil
}

func (s *memStore) putCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}
